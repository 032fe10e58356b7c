// Command identity-syncd receives identity provider webhooks and keeps the
// local user table in sync.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goliatone/go-command"
	identitysync "github.com/goliatone/go-identity-sync"
	"github.com/goliatone/go-identity-sync/adapters/gocommand"
	"github.com/goliatone/go-identity-sync/adapters/gologger"
	promrecorder "github.com/goliatone/go-identity-sync/metrics/prometheus"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "identity-syncd:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := identitysync.LoadConfig(ctx, os.Getenv("IDENTITY_SYNC_CONFIG"), os.Getenv)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	loggers := gologger.NewProvider(os.Stdout, os.Getenv("IDENTITY_SYNC_LOG_FORMAT"), os.Getenv("IDENTITY_SYNC_LOG_LEVEL"))
	logger := loggers.GetLogger("identity_sync.server")

	store, err := openStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer store.Close()

	options := append([]identitysync.Option{
		identitysync.WithLoggerProvider(loggers),
		identitysync.WithProviderResolver(providerFromRoute),
	}, store.options...)

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		recorder := promrecorder.NewRecorder(cfg.Metrics.Namespace)
		options = append(options, identitysync.WithMetricsRecorder(recorder))
		metricsHandler = recorder.Handler()
	}

	engine, err := identitysync.New(cfg, options...)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	subscriptions, err := engine.Register(adapter)
	if err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	defer subscriptions.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		return fmt.Errorf("initialize commands: %w", err)
	}

	scheduler := newScheduler(loggers.GetLogger("identity_sync.scheduler"))
	if _, err := schedulePurge(scheduler, engine.Commands().PurgeDedupLedger, cfg.Dedup.Retention/4); err != nil {
		return fmt.Errorf("schedule purge: %w", err)
	}
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer scheduler.Stop(context.Background())

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           newRouter(cfg, engine.Handler(), metricsHandler, engine.Sources().ProviderIDs()),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return serve(ctx, srv, logger)
}
