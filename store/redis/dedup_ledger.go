// Package redis keeps the dedup ledger in Redis so replicas behind a load
// balancer share one view of applied event ids. Keys expire on their own.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-identity-sync/core"
	goredis "github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "identity-sync:dedup:"

// Client is the subset of *goredis.Client the ledger uses.
type Client interface {
	Exists(ctx context.Context, keys ...string) *goredis.IntCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
}

type DedupLedger struct {
	client    Client
	prefix    string
	retention time.Duration
}

func NewDedupLedger(client Client, prefix string, retention time.Duration) (*DedupLedger, error) {
	if client == nil {
		return nil, fmt.Errorf("store/redis: client is required")
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultKeyPrefix
	}
	if retention <= 0 {
		retention = core.DefaultDedupRetention
	}
	return &DedupLedger{client: client, prefix: prefix, retention: retention}, nil
}

// NewClient dials addr and pings it once before returning.
func NewClient(ctx context.Context, cfg core.RedisConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("store/redis: ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

func (l *DedupLedger) Seen(ctx context.Context, eventID string) (bool, error) {
	if l == nil || l.client == nil {
		return false, fmt.Errorf("store/redis: dedup ledger is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return false, nil
	}
	count, err := l.client.Exists(ctx, l.key(eventID)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Mark overwrites any existing key so the retention window restarts.
func (l *DedupLedger) Mark(ctx context.Context, eventID string) error {
	if l == nil || l.client == nil {
		return fmt.Errorf("store/redis: dedup ledger is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return fmt.Errorf("store/redis: event id is required")
	}
	return l.client.Set(ctx, l.key(eventID), time.Now().UTC().Format(time.RFC3339), l.retention).Err()
}

// Purge is a no-op; Redis expires entries itself.
func (l *DedupLedger) Purge(context.Context) (int, error) {
	return 0, nil
}

func (l *DedupLedger) key(eventID string) string {
	return l.prefix + eventID
}

var _ core.DedupLedger = (*DedupLedger)(nil)
