package main

import (
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// executeArgs runs the given root command with args and returns any error.
// It suppresses cobra's usage/error output so test output stays clean.
func executeArgs(t *testing.T, root *cobra.Command, args ...string) error {
	t.Helper()
	root.SetOut(&strings.Builder{})
	root.SetErr(&strings.Builder{})
	root.SetArgs(args)
	_, err := root.ExecuteC()
	return err
}

// newTestRoot builds the full command tree with argument validation only:
// every leaf's Run is replaced so no request is ever sent.
func newTestRoot(t *testing.T) *cobra.Command {
	t.Helper()
	resetFlags(t)

	root := newRootCmd()
	root.PersistentPreRun = func(*cobra.Command, []string) {}
	stubLeaves(root)
	return root
}

func stubLeaves(cmd *cobra.Command) {
	if cmd.Run != nil || cmd.RunE != nil {
		cmd.Run = func(*cobra.Command, []string) {}
		cmd.RunE = nil
	}
	for _, c := range cmd.Commands() {
		stubLeaves(c)
	}
}

func TestCommandArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"sync full needs a type", []string{"sync", "full"}, true},
		{"sync full one type", []string{"sync", "full", "song"}, false},
		{"sync incremental all", []string{"sync", "incremental", "all"}, false},
		{"sync cursors takes no args", []string{"sync", "cursors", "extra"}, true},
		{"graph sync-playlist", []string{"graph", "sync-playlist", "p1"}, false},
		{"graph neighbors requires --edge", []string{"graph", "neighbors", "Playlist", "p1"}, true},
		{"graph neighbors", []string{"graph", "neighbors", "Playlist", "p1", "--edge", "contains"}, false},
		{"recommend deep with limit", []string{"recommend", "deep", "u1", "--limit", "5"}, false},
		{"recommend playlist needs id", []string{"recommend", "playlist"}, true},
		{"search needs a query", []string{"search"}, true},
		{"search with filters", []string{"search", "blue", "--type", "song", "--filter", "genre=jazz"}, false},
		{"autocomplete needs prefix", []string{"search", "autocomplete", "song"}, true},
		{"audit all", []string{"audit"}, false},
		{"audit too many args", []string{"audit", "song", "album"}, true},
		{"ledger append", []string{"ledger", "append", "song", "s1", "delete"}, false},
		{"ledger append missing op", []string{"ledger", "append", "song", "s1"}, true},
		{"ledger history", []string{"ledger", "history", "song", "s1"}, false},
		{"ledger search takes flags only", []string{"ledger", "search", "song"}, true},
		{"journal purge", []string{"journal", "purge", "--retention-days", "30"}, false},
		{"journal purge bad days", []string{"journal", "purge", "--retention-days", "soon"}, true},
		{"events watch", []string{"events", "watch", "--type", "song", "--since-id", "12"}, false},
		{"events watch takes no args", []string{"events", "watch", "song"}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := executeArgs(t, newTestRoot(t), tc.args...)
			if (err != nil) != tc.wantErr {
				t.Errorf("args %v: err = %v, wantErr %v", tc.args, err, tc.wantErr)
			}
		})
	}
}

func TestTypesArg(t *testing.T) {
	if got := typesArg("all"); !reflect.DeepEqual(got, entityTypes) {
		t.Errorf("typesArg(all) = %v", got)
	}
	if got := typesArg("album"); !reflect.DeepEqual(got, []string{"album"}) {
		t.Errorf("typesArg(album) = %v", got)
	}
}

func TestParseFilters(t *testing.T) {
	got, err := parseFilters([]string{"genre=jazz", "year=1957"})
	if err != nil {
		t.Fatalf("parseFilters: %v", err)
	}
	if got["genre"] != "jazz" || got["year"] != "1957" {
		t.Errorf("got %v", got)
	}

	for _, bad := range []string{"genre", "=jazz", "genre=", "q=x", "size=3"} {
		if _, err := parseFilters([]string{bad}); err == nil {
			t.Errorf("parseFilters(%q) accepted", bad)
		}
	}
}

func TestReadAppendRequests(t *testing.T) {
	in := `{"entity_type":"song","entity_id":"s1","operation":"create","payload":{"name":"Blue Train"}}

{"entity_type":"song","entity_id":"s1","operation":"DELETE"}
`
	reqs, err := readAppendRequests(strings.NewReader(in))
	if err != nil {
		t.Fatalf("readAppendRequests: %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("got %d requests, want 2", len(reqs))
	}
	if reqs[0].Operation != "CREATE" || reqs[0].Payload["name"] != "Blue Train" {
		t.Errorf("first request = %+v", reqs[0])
	}
}

func TestReadAppendRequests_Errors(t *testing.T) {
	tests := map[string]string{
		"bad json":    `{"entity_type":`,
		"missing id":  `{"entity_type":"song","operation":"DELETE"}`,
		"missing op":  `{"entity_type":"song","entity_id":"s1"}`,
		"second line": "{\"entity_type\":\"song\",\"entity_id\":\"s1\",\"operation\":\"DELETE\"}\nnot json",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := readAppendRequests(strings.NewReader(in)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseTimeFlag(t *testing.T) {
	if ts, err := parseTimeFlag(""); err != nil || ts != nil {
		t.Errorf("empty: %v, %v", ts, err)
	}
	if _, err := parseTimeFlag("yesterday"); err == nil {
		t.Error("expected error for non-RFC3339 time")
	}
	ts, err := parseTimeFlag("2026-03-01T12:00:00Z")
	if err != nil || ts.Hour() != 12 {
		t.Errorf("got %v, %v", ts, err)
	}
}
