package identitysync

import (
	"time"

	"github.com/goliatone/go-identity-sync/core"
	"github.com/goliatone/go-identity-sync/providers/clerk"
)

// ClerkSource builds the Clerk verifier and normalizer pair.
func ClerkSource(cfg clerk.SourceConfig) (core.Source, error) {
	return clerk.NewSource(cfg)
}

// sourceForConfig builds the built-in source named by cfg.Webhook.Provider.
// It returns false for providers that must be supplied through WithSource.
func sourceForConfig(cfg core.Config, now func() time.Time) (core.Source, bool, error) {
	switch cfg.Webhook.Provider {
	case clerk.ProviderID:
		sourceCfg := clerk.DefaultSourceConfig(cfg.Webhook.Secret)
		if cfg.Webhook.Tolerance > 0 {
			sourceCfg.Tolerance = cfg.Webhook.Tolerance
		}
		if now != nil {
			sourceCfg.Now = now
		}
		source, err := ClerkSource(sourceCfg)
		return source, true, err
	default:
		return core.Source{}, false, nil
	}
}
