package identitysync

import (
	"time"

	"github.com/goliatone/go-identity-sync/core"
	"github.com/goliatone/go-identity-sync/inbound"
)

type Option func(*Engine)

// WithUserStore overrides the store selected by cfg.Store.Driver. Required
// for every driver other than memory.
func WithUserStore(store core.UserStore) Option {
	return func(e *Engine) {
		if store != nil {
			e.store = store
		}
	}
}

func WithDedupLedger(ledger core.DedupLedger) Option {
	return func(e *Engine) {
		if ledger != nil {
			e.ledger = ledger
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(e *Engine) {
		if provider != nil {
			e.loggerProvider = provider
		}
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(e *Engine) {
		if recorder != nil {
			e.metrics = recorder
		}
	}
}

// WithSource registers an extra provider next to the configured one.
func WithSource(source core.Source) Option {
	return func(e *Engine) {
		e.extraSources = append(e.extraSources, source)
	}
}

func WithProviderResolver(resolver inbound.ProviderResolver) Option {
	return func(e *Engine) {
		if resolver != nil {
			e.resolveProvider = resolver
		}
	}
}

// WithClock drives signature tolerance and record timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}
