// Package syncer drives full and incremental synchronization from the
// canonical store and the change ledger into the graph and search mirrors.
package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/tracksync/internal/domain"
	"github.com/persistorai/tracksync/internal/models"
)

// Config bounds batch size, retries and per-attempt deadlines.
type Config struct {
	BatchSize int
	// RetryAttempts is the total number of attempts per batch call, including the first.
	RetryAttempts uint64
	RetryBase     time.Duration
	BatchTimeout  time.Duration
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		RetryAttempts: 5,
		RetryBase:     200 * time.Millisecond,
		BatchTimeout:  30 * time.Second,
	}
}

// Deps are the stores a sync job runs against. Handles are passed in
// explicitly and shared by every job; the orchestrator opens nothing itself.
type Deps struct {
	Canonical domain.CanonicalSource
	Ledger    domain.Ledger
	Cursors   domain.CursorStore
	Leases    domain.Leaser
	Graph     domain.Mirror
	Search    domain.Mirror
	Journal   domain.Journal
	Log       *logrus.Logger
}

// Orchestrator owns cursor advancement and is the only writer of the mirrors.
type Orchestrator struct {
	canonical domain.CanonicalSource
	ledger    domain.Ledger
	cursors   domain.CursorStore
	leases    domain.Leaser
	graph     domain.Mirror
	search    domain.Mirror
	journal   domain.Journal
	log       *logrus.Logger
	cfg       Config
}

// New creates an Orchestrator. Zero config fields fall back to DefaultConfig.
func New(deps Deps, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}

	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = def.RetryAttempts
	}

	if cfg.RetryBase <= 0 {
		cfg.RetryBase = def.RetryBase
	}

	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = def.BatchTimeout
	}

	return &Orchestrator{
		canonical: deps.Canonical,
		ledger:    deps.Ledger,
		cursors:   deps.Cursors,
		leases:    deps.Leases,
		graph:     deps.Graph,
		search:    deps.Search,
		journal:   deps.Journal,
		log:       deps.Log,
		cfg:       cfg,
	}
}

func (o *Orchestrator) mirrors() []domain.Mirror {
	return []domain.Mirror{o.graph, o.search}
}

// Cursors lists every persisted sync cursor.
func (o *Orchestrator) Cursors(ctx context.Context) ([]models.SyncCursor, error) {
	cursors, err := o.cursors.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing cursors: %w", err)
	}

	return cursors, nil
}

func (o *Orchestrator) record(entry *models.JournalEntry) {
	if o.journal == nil {
		return
	}

	o.journal.Enqueue(entry)
}

func validType(et models.EntityType) error {
	if !et.Valid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidEntityType, et)
	}

	return nil
}

// metaFromVersion derives a deterministic modification time from a canonical
// version, which the canonical adapter reports in Unix milliseconds.
func metaFromVersion(version int64) models.SourceMeta {
	var meta models.SourceMeta
	if version > 0 {
		meta.ModifiedAt = time.UnixMilli(version).UTC()
	}

	return meta
}
