package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-command/cron"
	"github.com/goliatone/go-identity-sync/command"
	"github.com/goliatone/go-identity-sync/core"
)

const (
	shutdownTimeout = 10 * time.Second
	requestTimeout  = 60 * time.Second
)

type healthResponse struct {
	Status  string   `json:"status"`
	Service string   `json:"service"`
	Sources []string `json:"sources,omitempty"`
}

// newRouter mounts the webhook endpoint under {prefix}/{provider}. metrics
// may be nil when the exporter is disabled.
func newRouter(cfg core.Config, webhooks http.Handler, metrics http.Handler, sources []string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Service: cfg.ServiceName, Sources: sources})
	})

	prefix := "/" + strings.Trim(cfg.Webhook.PathPrefix, "/")
	if prefix == "/" {
		prefix = ""
	}
	r.Handle(prefix+"/{provider}", webhooks)

	if metrics != nil && cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, metrics)
	}
	return r
}

func providerFromRoute(r *http.Request) string {
	return chi.URLParam(r, "provider")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, logger core.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newScheduler(logger core.Logger) *cron.Scheduler {
	return cron.NewScheduler(
		cron.WithLogger(logger),
		cron.WithErrorHandler(func(err error) {
			logger.Warn("scheduled job failed", "error", err)
		}),
	)
}

// schedulePurge runs the dedup ledger purge every interval. A non positive
// interval disables the job and returns a nil handle.
func schedulePurge(scheduler *cron.Scheduler, purge *command.PurgeDedupLedgerCommand, interval time.Duration) (cron.Handle, error) {
	if interval <= 0 {
		return nil, nil
	}
	return scheduler.ScheduleCron(gocmd.HandlerConfig{
		Expression: "@every " + interval.String(),
		Timeout:    interval,
	}, purge)
}
