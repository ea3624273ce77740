package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/tracksync/internal/api"
	"github.com/persistorai/tracksync/internal/canonical"
	"github.com/persistorai/tracksync/internal/config"
	"github.com/persistorai/tracksync/internal/db"
	"github.com/persistorai/tracksync/internal/db/migrations"
	"github.com/persistorai/tracksync/internal/dbpool"
	"github.com/persistorai/tracksync/internal/domain"
	"github.com/persistorai/tracksync/internal/graph"
	"github.com/persistorai/tracksync/internal/memstore"
	"github.com/persistorai/tracksync/internal/service"
	"github.com/persistorai/tracksync/internal/store"
)

// backends holds every store handle the process opens. Handles are shared by
// all sync jobs and closed once on shutdown.
type backends struct {
	pool *dbpool.Pool

	ledger    service.LedgerStore
	cursors   domain.CursorStore
	leases    domain.Leaser
	journal   service.JournalStore
	canonical domain.CanonicalSource
	graph     domain.GraphStore
	search    domain.SearchIndex

	checks  []api.ReadinessCheck
	closers []func(ctx context.Context) error

	// notifies is set when appends reach the scheduler through Postgres
	// NOTIFY rather than through LedgerService.
	notifies bool
}

func openBackends(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*backends, error) {
	b := &backends{}

	if err := b.openLedger(ctx, cfg, log); err != nil {
		b.close(ctx, log)
		return nil, err
	}

	if err := b.openCanonical(ctx, cfg, log); err != nil {
		b.close(ctx, log)
		return nil, err
	}

	if err := b.openMirrors(ctx, cfg, log); err != nil {
		b.close(ctx, log)
		return nil, err
	}

	return b, nil
}

// openLedger opens Postgres when configured and falls back to the in-memory
// ledger, cursors, leases and journal otherwise.
func (b *backends) openLedger(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	if !cfg.UsesPostgres() {
		log.Warn("DATABASE_URL not set, ledger and cursors are in-memory and lost on restart")

		b.ledger = memstore.NewLedger()
		b.cursors = memstore.NewCursors()
		b.leases = memstore.NewLeaser()
		b.journal = memstore.NewJournal()

		return nil
	}

	pool, err := dbpool.NewPool(ctx, cfg.DatabaseURL.Value())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}

	b.pool = pool
	b.closers = append(b.closers, func(context.Context) error {
		pool.Close()
		return nil
	})

	if err := db.RunMigrations(ctx, pool, log, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	base := store.Base{Pool: pool, Log: log}
	b.ledger = store.NewLedgerStore(base)
	b.cursors = store.NewCursorStore(base)
	b.leases = store.NewLeaseStore(base)
	b.journal = store.NewJournalStore(base)
	b.notifies = true

	b.checks = append(b.checks,
		api.ReadinessCheck{Name: "postgres", Required: true, Check: pool.HealthCheck},
		api.ReadinessCheck{Name: "schema", Required: true, Check: db.SchemaCheck(pool)},
	)

	return nil
}

// openCanonical connects to MongoDB. Without MONGO_URL the canonical store is
// materialized from the in-process ledger, so appends become readable records.
func (b *backends) openCanonical(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	if cfg.MongoURL.Value() == "" {
		mem, ok := b.ledger.(*memstore.Ledger)
		if !ok {
			return fmt.Errorf("MONGO_URL is required when the ledger is stored in Postgres")
		}

		c := memstore.NewCanonical()
		b.ledger = memstore.NewMaterializedLedger(mem, c)
		b.canonical = c

		log.Warn("MONGO_URL not set, canonical records are materialized from the in-memory ledger")

		return nil
	}

	src, err := canonical.Connect(ctx, cfg.MongoURL.Value(), cfg.MongoDatabase, log)
	if err != nil {
		return fmt.Errorf("connecting to mongodb: %w", err)
	}

	b.canonical = src
	b.closers = append(b.closers, src.Close)
	b.checks = append(b.checks, api.ReadinessCheck{Name: "mongodb", Check: src.Ping})

	return nil
}

func (b *backends) openMirrors(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	switch cfg.GraphBackend {
	case config.BackendNeo4j:
		g, err := graph.Connect(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword.Value(), cfg.Neo4jDatabase, log)
		if err != nil {
			return fmt.Errorf("connecting to neo4j: %w", err)
		}

		b.closers = append(b.closers, g.Close)

		if err := g.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensuring neo4j schema: %w", err)
		}

		b.graph = g
		b.checks = append(b.checks, api.ReadinessCheck{Name: "neo4j", Check: g.Ping})
	case config.BackendPostgres:
		b.graph = store.NewGraphStore(store.Base{Pool: b.pool, Log: log})
	default:
		b.graph = memstore.NewGraph()
	}

	if cfg.SearchBackend == config.BackendPostgres {
		b.search = store.NewSearchStore(store.Base{Pool: b.pool, Log: log})
	} else {
		b.search = memstore.NewSearch()
	}

	log.WithFields(logrus.Fields{
		"graph":  cfg.GraphBackend,
		"search": cfg.SearchBackend,
	}).Info("mirror backends selected")

	return nil
}

// close releases handles in reverse order of opening.
func (b *backends) close(ctx context.Context, log *logrus.Logger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](ctx); err != nil {
			log.WithError(err).Warn("closing backend")
		}
	}

	b.closers = nil
}
