package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/persistorai/tracksync/internal/db/migrations"
	"github.com/persistorai/tracksync/internal/dbpool"
)

// SchemaVersion returns the number of embedded SQL migrations, which equals
// the schema version the binary expects.
func SchemaVersion() int {
	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return 0
	}

	count := 0

	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			count++
		}
	}

	return count
}

// SchemaCheck returns a readiness check that fails when the database schema
// is behind the migrations embedded in this binary, e.g. while another
// replica is still migrating.
func SchemaCheck(pool *dbpool.Pool) func(ctx context.Context) error {
	want := int64(SchemaVersion())

	return func(ctx context.Context) error {
		var got int64

		err := pool.QueryRow(ctx,
			`SELECT COALESCE(MAX(version_id), 0) FROM goose_db_version WHERE is_applied`,
		).Scan(&got)
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}

		if got < want {
			return fmt.Errorf("schema version %d, binary expects %d", got, want)
		}

		return nil
	}
}
