package db

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/pressly/goose/v3"
)

func result(version int64, path string, err error) *goose.MigrationResult {
	return &goose.MigrationResult{Source: &goose.Source{Type: goose.TypeSQL, Path: path, Version: version}, Error: err}
}

func TestSummarize(t *testing.T) {
	report, err := summarize(4, []*goose.MigrationResult{
		result(5, "005_search.sql", nil),
		result(6, "006_deferred_edges.sql", nil),
	})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}

	if report.From != 4 || report.To != 6 {
		t.Errorf("versions = %d -> %d", report.From, report.To)
	}

	if want := []string{"005_search.sql", "006_deferred_edges.sql"}; !reflect.DeepEqual(report.Applied, want) {
		t.Errorf("applied = %v", report.Applied)
	}

	current, err := summarize(6, nil)
	if err != nil || current.To != 6 || len(current.Applied) != 0 {
		t.Errorf("up to date = %+v, %v", current, err)
	}
}

func TestSummarize_FailedMigration(t *testing.T) {
	boom := errors.New("relation exists")

	_, err := summarize(5, []*goose.MigrationResult{result(6, "006_deferred_edges.sql", boom)})
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "006_deferred_edges.sql") {
		t.Errorf("err = %v", err)
	}
}

func TestMigrationError(t *testing.T) {
	boom := errors.New("syntax error")
	partial := &goose.PartialError{
		Applied: []*goose.MigrationResult{result(5, "005_search.sql", nil)},
		Failed:  result(6, "006_deferred_edges.sql", boom),
		Err:     boom,
	}

	err := migrationError(partial)
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "006_deferred_edges.sql") || !strings.Contains(err.Error(), "1 applied") {
		t.Errorf("partial err = %v", err)
	}

	other := errors.New("connection refused")
	if err := migrationError(other); !errors.Is(err, other) {
		t.Errorf("err = %v", err)
	}
}
