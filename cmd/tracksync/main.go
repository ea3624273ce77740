// Package main is the entry point for the tracksync server.
//
// The server initializes components in the following order:
//
//  1. Configuration: environment variables, validated up front
//  2. Ledger: Postgres (with migrations) or in-memory
//  3. Canonical store: MongoDB, or records materialized from the ledger
//  4. Mirrors: graph (Neo4j, Postgres or memory) and search (Postgres or memory),
//     each behind a circuit breaker
//  5. Sync: orchestrator, journal worker and the ledger-driven scheduler
//  6. HTTP: REST API and event stream on PORT, Prometheus metrics on METRICS_PORT
//
// SIGINT and SIGTERM stop intake, flush event subscribers, let in-flight
// syncs finish their batch, drain the journal queue and close every store handle.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/persistorai/tracksync/internal/api"
	"github.com/persistorai/tracksync/internal/config"
	"github.com/persistorai/tracksync/internal/consistency"
	"github.com/persistorai/tracksync/internal/db"
	"github.com/persistorai/tracksync/internal/mirror"
	"github.com/persistorai/tracksync/internal/recommend"
	"github.com/persistorai/tracksync/internal/service"
	"github.com/persistorai/tracksync/internal/syncer"
	"github.com/persistorai/tracksync/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("loading config")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithError(err).Fatal("parsing log level")
	}

	log.SetLevel(level)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("tracksync exited")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}

	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer closeCancel()

		b.close(closeCtx, log)
	}()

	breaker := mirror.BreakerConfig{
		ConsecutiveFailures: uint32(cfg.BreakerFailures), //nolint:gosec // validated positive.
		OpenTimeout:         cfg.BreakerTimeout,
		HalfOpenRequests:    1,
	}
	graphMirror := mirror.NewGuarded(mirror.NewGraphMirror(b.graph, log), breaker, log)
	searchMirror := mirror.NewSearchMirror(b.search, log)
	guardedSearch := mirror.NewGuarded(searchMirror, breaker, log)

	journalWorker := service.NewJournalWorker(b.journal, log, cfg.JournalQueueSize)

	orchestrator := syncer.New(syncer.Deps{
		Canonical: b.canonical,
		Ledger:    b.ledger,
		Cursors:   b.cursors,
		Leases:    b.leases,
		Graph:     graphMirror,
		Search:    guardedSearch,
		Journal:   journalWorker,
		Log:       log,
	}, syncer.Config{
		BatchSize:     cfg.SyncBatchSize,
		RetryAttempts: uint64(cfg.SyncRetryAttempts), //nolint:gosec // validated positive.
		RetryBase:     cfg.SyncRetryBase,
		BatchTimeout:  cfg.SyncBatchTimeout,
	})

	engine := recommend.New(b.graph, recommend.Weights{
		Genre:  cfg.RecommendGenreWeight,
		Artist: cfg.RecommendArtistWeight,
		Listen: cfg.RecommendListenWeight,
	}, log, recommend.WithMaxFanOut(cfg.RecommendMaxFanOut))

	hub := ws.NewHub(log)

	auditor := consistency.NewAuditor(b.canonical, graphMirror, guardedSearch, log,
		consistency.WithThreshold(cfg.AuditDivergenceThreshold),
		consistency.WithJournal(journalWorker),
		consistency.WithNotifier(hub.DivergenceDetected),
	)

	scheduler := service.NewSyncScheduler(orchestrator, log, cfg.SyncDebounce, service.WithObserver(hub))

	appended := service.AppendNotifiers{hub}
	if cfg.SyncOnNotify {
		appended = append(appended, scheduler)
	}

	// In-memory appends notify directly; Postgres appends arrive through
	// the ledger watcher.
	var notifier service.AppendNotifier
	if !b.notifies {
		notifier = appended
	}

	ledgerSvc := service.NewLedgerService(b.ledger, notifier, log)
	journalSvc := service.NewJournalService(b.journal, log)

	if b.notifies {
		if err := db.NewLedgerWatcher(log, b.pool, appended).Start(ctx); err != nil {
			return err
		}
	}

	router := api.NewRouter(ctx, &api.RouterDeps{
		Log:         log,
		Sync:        orchestrator,
		Recommend:   engine,
		Graph:       b.graph,
		Search:      searchMirror,
		Audit:       auditor,
		Ledger:      ledgerSvc,
		Journal:     journalSvc,
		Events:      hub,
		Checks:      b.checks,
		CORSOrigins: cfg.CORSOrigins,
		Version:     config.Version,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // full syncs run inside the request
		IdleTimeout:       60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr(),
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// The hub outlives ctx so shutdown can flush subscribers before the
	// server stops.
	go hub.Run(context.Background())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		journalWorker.Run(gctx)
		return nil
	})

	g.Go(func() error {
		scheduler.Run(gctx)
		return nil
	})

	g.Go(func() error { return serve(srv, log, "api") })
	g.Go(func() error { return serve(metricsSrv, log, "metrics") })

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			log.WithField("signal", sig.String()).Info("received shutdown signal")
		case <-gctx.Done():
		}

		hub.Shutdown()
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		return errors.Join(srv.Shutdown(shutdownCtx), metricsSrv.Shutdown(shutdownCtx))
	})

	log.WithFields(logrus.Fields{
		"addr":         cfg.Addr(),
		"metrics_addr": cfg.MetricsAddr(),
		"version":      config.Version,
	}).Info("tracksync started")

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("tracksync stopped")

	return nil
}

func serve(srv *http.Server, log *logrus.Logger, name string) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).WithField("server", name).Error("server failed")
		return err
	}

	return nil
}
