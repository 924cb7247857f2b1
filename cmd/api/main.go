// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adiadia/flowsim/internal/config"
	"github.com/adiadia/flowsim/internal/demos"
	"github.com/adiadia/flowsim/internal/journal"
	"github.com/adiadia/flowsim/internal/logging"
	"github.com/adiadia/flowsim/internal/persistence/postgres"
	"github.com/adiadia/flowsim/internal/repository"
	"github.com/adiadia/flowsim/internal/session"
	httptransport "github.com/adiadia/flowsim/internal/transport/http"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg := config.Load()
	logger := logging.NewLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	catalog, err := demos.Load()
	if err != nil {
		return err
	}

	var (
		store  journal.Store
		health httptransport.HealthChecker
	)
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, 0)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := prepareSchema(ctx, cfg, pool, logger); err != nil {
			return err
		}
		store = repository.NewRunRepository(pool, logger)
		health = postgres.NewSchemaHealthChecker(pool)
		logger.Info("run journal backed by postgres")
	} else {
		store = journal.NewMemoryStore(0)
		logger.Info("run journal kept in memory", "reason", "DATABASE_URL is not set")
	}

	runs := journal.New(store, cfg.JournalBuffer, logger)
	if hook := journal.NewWebhook(cfg.RunWebhookURL, cfg.RunWebhookSecret, nil, logger); hook != nil {
		runs.SetNotifier(hook)
		logger.Info("run webhook enabled")
	}
	retention, err := journal.NewRetention(runs, cfg.JournalPurgeSchedule, cfg.JournalRetention, logger)
	if err != nil {
		return err
	}

	sessions := session.NewManager(catalog, session.Options{
		Capacity: cfg.SessionCapacity,
		TTL:      cfg.SessionTTL,
		Logger:   logger,
		Recorder: runs,
	})

	handler := httptransport.NewRouter(httptransport.Deps{
		Catalog:           catalog,
		Sessions:          sessions,
		Journal:           runs,
		HealthChecker:     health,
		Logger:            logger,
		AdminToken:        cfg.AdminToken,
		SessionsPerMinute: cfg.SessionsPerMinute,
		Version:           Version,
		Commit:            Commit,
		BuildDate:         BuildDate,
	})

	srv := newServer(cfg.HTTPAddr, handler, sessions)

	// The journal outlives the server so that runs ended by the final
	// session teardown are still written.
	journalCtx, stopJournal := context.WithCancel(context.WithoutCancel(ctx))
	journalDone := make(chan error, 1)
	go func() { journalDone <- runs.Run(journalCtx) }()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("api listening",
			"addr", cfg.HTTPAddr,
			"version", Version,
			"commit", Commit,
			"build_date", BuildDate,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return retention.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
		return nil
	})

	err = g.Wait()

	sessions.Shutdown()
	stopJournal()
	<-journalDone
	logger.Info("shutdown complete")
	return err
}

// newServer returns the API server. Sessions are closed as soon as shutdown
// starts so open event streams end instead of holding Shutdown until its
// deadline.
func newServer(addr string, handler http.Handler, sessions *session.Manager) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv.RegisterOnShutdown(sessions.Shutdown)
	return srv
}

func prepareSchema(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, logger *slog.Logger) error {
	if cfg.AutoMigrate {
		return postgres.EnsureSchema(ctx, pool, logger)
	}
	return postgres.SchemaReady(ctx, pool)
}
