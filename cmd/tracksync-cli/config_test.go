package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// resetFlags restores global flag state after each test.
func resetFlags(t *testing.T) {
	t.Helper()
	orig := struct {
		url, profile, fmt string
		timeout           time.Duration
	}{flagURL, flagProfile, flagFmt, flagTimeout}
	t.Cleanup(func() {
		flagURL = orig.url
		flagProfile = orig.profile
		flagFmt = orig.fmt
		flagTimeout = orig.timeout
	})
	flagURL = defaultURL
	flagProfile = ""
	flagTimeout = 0
}

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func sampleConfig() *profilesFile {
	return &profilesFile{
		ActiveProfile: "prod",
		Profiles: map[string]profileConfig{
			"default": {URL: "http://localhost:4000"},
			"prod":    {URL: "https://tracksync.internal:3030", Timeout: "10m"},
			"broken":  {URL: "http://broken:3030", Timeout: "soon"},
		},
	}
}

func TestResolveSettings_Defaults(t *testing.T) {
	resetFlags(t)

	s := resolveSettings(nil, envMap(nil))
	if s.URL != defaultURL || s.Timeout != defaultTimeout {
		t.Errorf("got %+v", s)
	}
}

func TestResolveSettings_ActiveProfile(t *testing.T) {
	resetFlags(t)

	s := resolveSettings(sampleConfig(), envMap(nil))
	if s.Profile != "prod" || s.URL != "https://tracksync.internal:3030" || s.Timeout != 10*time.Minute {
		t.Errorf("got %+v", s)
	}
}

func TestResolveSettings_EnvProfileBeatsActive(t *testing.T) {
	resetFlags(t)

	s := resolveSettings(sampleConfig(), envMap(map[string]string{"TRACKSYNC_PROFILE": "default"}))
	if s.URL != "http://localhost:4000" {
		t.Errorf("URL = %q", s.URL)
	}
}

func TestResolveSettings_EnvURLBeatsProfile(t *testing.T) {
	resetFlags(t)

	s := resolveSettings(sampleConfig(), envMap(map[string]string{"TRACKSYNC_URL": "http://env:9090"}))
	if s.URL != "http://env:9090" {
		t.Errorf("URL = %q", s.URL)
	}
}

func TestResolveSettings_FlagsWin(t *testing.T) {
	resetFlags(t)
	flagURL = "http://flag:1234"
	flagTimeout = 5 * time.Second

	s := resolveSettings(sampleConfig(), envMap(map[string]string{"TRACKSYNC_URL": "http://env:9090"}))
	if s.URL != "http://flag:1234" || s.Timeout != 5*time.Second {
		t.Errorf("got %+v", s)
	}
}

func TestResolveSettings_BadTimeoutFallsBack(t *testing.T) {
	resetFlags(t)
	flagProfile = "broken"

	s := resolveSettings(sampleConfig(), envMap(nil))
	if s.URL != "http://broken:3030" || s.Timeout != defaultTimeout {
		t.Errorf("got %+v", s)
	}
}

func TestWriteProfile_KeepsOtherProfiles(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfgPath := filepath.Join(home, ".tracksync", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o700); err != nil {
		t.Fatal(err)
	}
	data, err := yaml.Marshal(sampleConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfgPath, data, 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := writeProfile("staging", "http://staging:3030")
	if err != nil {
		t.Fatalf("writeProfile: %v", err)
	}
	if got != cfgPath {
		t.Errorf("path = %q, want %q", got, cfgPath)
	}

	_, cfg, err := loadConfigFile()
	if err != nil {
		t.Fatalf("loadConfigFile: %v", err)
	}
	if cfg.ActiveProfile != "staging" || cfg.Profiles["staging"].URL != "http://staging:3030" {
		t.Errorf("staging profile not written: %+v", cfg)
	}
	if cfg.Profiles["prod"].Timeout != "10m" {
		t.Errorf("prod profile lost: %+v", cfg.Profiles["prod"])
	}

	info, err := os.Stat(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v", info.Mode().Perm())
	}
}

func TestWriteProfile_CreatesFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if _, err := writeProfile("default", defaultURL); err != nil {
		t.Fatalf("writeProfile: %v", err)
	}

	_, cfg, err := loadConfigFile()
	if err != nil {
		t.Fatalf("loadConfigFile: %v", err)
	}
	if cfg.Profiles["default"].URL != defaultURL {
		t.Errorf("got %+v", cfg)
	}
}
