package reconcile

import (
	"time"

	"github.com/goliatone/go-identity-sync/core"
)

type Option func(*Reconciler)

func WithLedger(ledger core.DedupLedger) Option {
	return func(r *Reconciler) {
		if ledger != nil {
			r.ledger = ledger
		}
	}
}

func WithLocker(locker *core.KeyedLocker) Option {
	return func(r *Reconciler) {
		if locker != nil {
			r.locker = locker
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(r *Reconciler) {
		if provider != nil {
			r.loggerProvider = provider
		}
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(r *Reconciler) {
		if recorder != nil {
			r.observer.Metrics = recorder
		}
	}
}

// WithOperationTimeout bounds every individual store call.
func WithOperationTimeout(timeout time.Duration) Option {
	return func(r *Reconciler) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithMaxAttempts bounds how often a lost optimistic write is re-run.
func WithMaxAttempts(attempts int) Option {
	return func(r *Reconciler) {
		if attempts > 0 {
			r.maxAttempts = attempts
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}
