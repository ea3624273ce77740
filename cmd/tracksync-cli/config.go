package main

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultTimeout = 2 * time.Minute

// profileConfig holds connection settings for a single profile.
type profileConfig struct {
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout,omitempty"`
}

// profilesFile is the top-level config file structure.
type profilesFile struct {
	Profiles      map[string]profileConfig `yaml:"profiles"`
	ActiveProfile string                   `yaml:"active_profile"`
}

// settings are the resolved connection settings.
type settings struct {
	URL     string
	Profile string
	Timeout time.Duration
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".tracksync", "config.yaml"), nil
}

func loadConfigFile() (string, *profilesFile, error) {
	cfgPath, err := configPath()
	if err != nil {
		return "", nil, err
	}
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return cfgPath, nil, err
	}
	var cfg profilesFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfgPath, nil, err
	}
	return cfgPath, &cfg, nil
}

// resolveConfig applies flag, then env, then config file.
func resolveConfig() settings {
	_, cfg, _ := loadConfigFile()
	return resolveSettings(cfg, os.Getenv)
}

func resolveSettings(cfg *profilesFile, getenv func(string) string) settings {
	s := settings{URL: flagURL, Profile: flagProfile, Timeout: flagTimeout}

	if s.URL == defaultURL {
		if v := getenv("TRACKSYNC_URL"); v != "" {
			s.URL = v
		}
	}
	if s.Profile == "" {
		s.Profile = getenv("TRACKSYNC_PROFILE")
	}

	if cfg != nil {
		if s.Profile == "" {
			s.Profile = cfg.ActiveProfile
		}
		if s.Profile == "" {
			s.Profile = "default"
		}
		if p, ok := cfg.Profiles[s.Profile]; ok {
			if s.URL == defaultURL && p.URL != "" {
				s.URL = p.URL
			}
			if s.Timeout == 0 && p.Timeout != "" {
				if d, err := time.ParseDuration(p.Timeout); err == nil {
					s.Timeout = d
				}
			}
		}
	}

	if s.Timeout <= 0 {
		s.Timeout = defaultTimeout
	}
	return s
}

// writeProfile stores url under profile and makes it active, keeping other
// profiles intact.
func writeProfile(profile, url string) (string, error) {
	cfgPath, cfg, err := loadConfigFile()
	if cfgPath == "" {
		return "", err
	}
	if cfg == nil {
		cfg = &profilesFile{}
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]profileConfig{}
	}

	p := cfg.Profiles[profile]
	p.URL = url
	cfg.Profiles[profile] = p
	cfg.ActiveProfile = profile

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o700); err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(cfgPath, data, 0o600); err != nil {
		return "", err
	}

	return cfgPath, nil
}
