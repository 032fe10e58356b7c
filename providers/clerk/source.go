package clerk

import (
	"strings"
	"time"

	"github.com/goliatone/go-identity-sync/core"
	"github.com/goliatone/go-identity-sync/webhooks"
)

type SourceConfig struct {
	Secret    string
	Tolerance time.Duration
	Now       func() time.Time
}

func DefaultSourceConfig(secret string) SourceConfig {
	return SourceConfig{
		Secret:    strings.TrimSpace(secret),
		Tolerance: core.DefaultClockSkewTolerance,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// NewSource pairs the svix verifier with the Clerk normalizer.
func NewSource(cfg SourceConfig) (core.Source, error) {
	verifier, err := webhooks.NewSignatureVerifier(webhooks.SignatureConfig{
		ProviderID: ProviderID,
		Secret:     cfg.Secret,
		Tolerance:  cfg.Tolerance,
		Now:        cfg.Now,
	})
	if err != nil {
		return core.Source{}, err
	}
	return core.Source{
		ProviderID: ProviderID,
		Verifier:   verifier,
		Normalizer: NewNormalizer(),
	}, nil
}
