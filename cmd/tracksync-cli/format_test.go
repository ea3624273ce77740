package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/persistorai/tracksync/client"
)

// captureStdout replaces os.Stdout with a pipe, calls f, then returns the
// captured output and restores os.Stdout. It is NOT safe for parallel use
// because os.Stdout is a package-level variable.
func captureStdout(t *testing.T, f func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w

	done := make(chan struct{})
	var buf bytes.Buffer
	go func() {
		io.Copy(&buf, r) //nolint:errcheck
		close(done)
	}()

	f()

	w.Close()
	<-done
	os.Stdout = orig
	r.Close()
	return buf.String()
}

func TestFormatJSON(t *testing.T) {
	type sample struct {
		SongID string  `json:"song_id"`
		Score  float64 `json:"score"`
	}
	got := captureStdout(t, func() { formatJSON(sample{SongID: "s1", Score: 2.5}) })

	var out sample
	if err := json.Unmarshal([]byte(got), &out); err != nil {
		t.Fatalf("output is not valid JSON: %v\noutput: %s", err, got)
	}
	if out.SongID != "s1" || out.Score != 2.5 {
		t.Errorf("got %+v", out)
	}
	if !strings.Contains(got, "\n  ") {
		t.Errorf("expected indented JSON but got: %s", got)
	}
}

func TestFormatTable(t *testing.T) {
	headers := []string{"TYPE", "APPLIED", "CURSOR"}
	rows := [][]string{
		{"song", "12", "4→16"},
		{"playlist", "0", "9→9"},
	}

	got := captureStdout(t, func() { formatTable(headers, rows) })
	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")

	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d:\n%s", len(lines), got)
	}
	for _, h := range headers {
		if !strings.Contains(lines[0], h) {
			t.Errorf("header line missing %q: %s", h, lines[0])
		}
	}
	for _, ch := range lines[1] {
		if ch != '-' && ch != ' ' {
			t.Errorf("separator contains unexpected char %q: %s", ch, lines[1])
		}
	}
	// "playlist" is the widest TYPE cell, so APPLIED starts at the same column in every row.
	col := strings.Index(lines[0], "APPLIED")
	if strings.Index(lines[2], "12") != col || strings.Index(lines[3], "0") != col {
		t.Errorf("columns not aligned:\n%s", got)
	}
	for i, l := range lines {
		if strings.HasSuffix(l, " ") {
			t.Errorf("line %d has trailing space: %q", i, l)
		}
	}
}

func TestFormatTableEmpty(t *testing.T) {
	got := captureStdout(t, func() { formatTable([]string{"SEQ", "OP"}, nil) })
	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and separator, got %d lines:\n%s", len(lines), got)
	}
}

func TestOutputQuiet(t *testing.T) {
	resetFlags(t)
	flagFmt = "quiet"

	got := captureStdout(t, func() { output(map[string]int{"deleted": 4}, "4") })
	if got != "4\n" {
		t.Errorf("got %q", got)
	}
}

func TestTableOnlyWhenRequested(t *testing.T) {
	resetFlags(t)

	flagFmt = "json"
	if got := captureStdout(t, func() {
		if table([]string{"ID"}, [][]string{{"x"}}) {
			t.Error("table printed in json mode")
		}
	}); got != "" {
		t.Errorf("unexpected output %q", got)
	}

	flagFmt = "table"
	got := captureStdout(t, func() {
		if !table([]string{"ID"}, [][]string{{"x"}}) {
			t.Error("table not printed in table mode")
		}
	})
	if !strings.HasPrefix(got, "ID\n--\nx") {
		t.Errorf("got %q", got)
	}
}

func TestPrintEvent(t *testing.T) {
	resetFlags(t)
	evt := client.Event{Type: client.EventSyncCompleted, ID: 7, EntityType: "song", Data: json.RawMessage(`{"applied":2}`)}

	flagFmt = "json"
	got := captureStdout(t, func() { printEvent(evt) }) //nolint:errcheck
	if !strings.Contains(got, `"type":"sync.completed"`) || !strings.HasSuffix(got, "\n") {
		t.Errorf("json line = %q", got)
	}

	flagFmt = "quiet"
	if got := captureStdout(t, func() { printEvent(evt) }); got != "7\n" { //nolint:errcheck
		t.Errorf("quiet = %q", got)
	}

	flagFmt = "table"
	got = captureStdout(t, func() { printEvent(evt) }) //nolint:errcheck
	if !strings.Contains(got, "sync.completed") || !strings.Contains(got, `{"applied":2}`) {
		t.Errorf("table row = %q", got)
	}
}
