// Package db owns the Postgres schema behind the change ledger, sync
// cursors, journal and graph store, and watches the ledger for appends via
// LISTEN/NOTIFY.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/tracksync/internal/dbpool"
	"github.com/persistorai/tracksync/internal/metrics"
)

// migrationLockID keys the advisory lock that serializes startup migrations
// when several tracksync replicas boot against one database.
const migrationLockID int64 = 0x74726b73

// MigrationReport describes one RunMigrations call.
type MigrationReport struct {
	From    int64
	To      int64
	Applied []string
}

// RunMigrations brings the schema up to the newest migration in fsys while
// holding a session advisory lock, then publishes the resulting version.
func RunMigrations(ctx context.Context, pool *dbpool.Pool, log *logrus.Logger, fsys fs.FS) error {
	sqlDB, err := sql.Open("pgx", pool.ConnString())
	if err != nil {
		return fmt.Errorf("opening sql.DB for migrations: %w", err)
	}
	defer sqlDB.Close()

	locker, err := lock.NewPostgresSessionLocker(lock.WithLockID(migrationLockID))
	if err != nil {
		return fmt.Errorf("creating migration lock: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, fsys, goose.WithSessionLocker(locker))
	if err != nil {
		return fmt.Errorf("creating goose provider: %w", err)
	}

	from, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return migrationError(err)
	}

	report, err := summarize(from, results)
	if err != nil {
		return err
	}

	metrics.SchemaVersion.Set(float64(report.To))

	fields := logrus.Fields{"from": report.From, "to": report.To}
	if len(report.Applied) == 0 {
		log.WithFields(fields).Debug("ledger schema current")
		return nil
	}

	fields["applied"] = report.Applied
	log.WithFields(fields).Info("ledger schema migrated")

	return nil
}

// summarize folds goose results into a report, failing on the first
// migration that errored.
func summarize(from int64, results []*goose.MigrationResult) (*MigrationReport, error) {
	report := &MigrationReport{From: from, To: from}

	for _, r := range results {
		if r.Error != nil {
			return nil, fmt.Errorf("migration %d (%s) failed: %w", r.Source.Version, r.Source.Path, r.Error)
		}

		report.Applied = append(report.Applied, r.Source.Path)
		report.To = max(report.To, r.Source.Version)
	}

	return report, nil
}

// migrationError names the failing file when goose applied part of the run.
func migrationError(err error) error {
	var partial *goose.PartialError
	if errors.As(err, &partial) && partial.Failed != nil {
		return fmt.Errorf("migration %d (%s) failed after %d applied: %w",
			partial.Failed.Source.Version, partial.Failed.Source.Path, len(partial.Applied), partial.Err)
	}

	return fmt.Errorf("applying migrations: %w", err)
}
