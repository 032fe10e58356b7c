// Package identitysync wires the webhook identity sync engine: signature
// verification, event normalization, reconciliation against a user store
// and the HTTP delivery endpoint.
package identitysync

import (
	"context"

	"github.com/goliatone/go-identity-sync/core"
)

type Config = core.Config

type CanonicalEvent = core.CanonicalEvent
type UserRecord = core.UserRecord
type Outcome = core.Outcome
type Source = core.Source

type UserStore = core.UserStore
type DedupLedger = core.DedupLedger
type MetricsRecorder = core.MetricsRecorder

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// LoadConfig resolves defaults < YAML file at path < environment overrides.
// An empty path skips the file layer.
func LoadConfig(ctx context.Context, path string, lookup func(string) string) (Config, error) {
	provider := core.NewCfgxConfigProvider(core.YAMLConfigLoader{Path: path})
	return core.LoadConfig(ctx, provider, core.GoOptionsResolver{}, core.RuntimeConfigFromEnv(lookup))
}
