package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-identity-sync/core"
	goredis "github.com/redis/go-redis/v9"
)

type stubClient struct {
	mu      sync.Mutex
	values  map[string]time.Duration
	failErr error
}

func newStubClient() *stubClient {
	return &stubClient{values: map[string]time.Duration{}}
}

func (c *stubClient) Exists(_ context.Context, keys ...string) *goredis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failErr != nil {
		return goredis.NewIntResult(0, c.failErr)
	}
	var count int64
	for _, key := range keys {
		if _, ok := c.values[key]; ok {
			count++
		}
	}
	return goredis.NewIntResult(count, nil)
}

func (c *stubClient) Set(_ context.Context, key string, _ any, expiration time.Duration) *goredis.StatusCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failErr != nil {
		return goredis.NewStatusResult("", c.failErr)
	}
	c.values[key] = expiration
	return goredis.NewStatusResult("OK", nil)
}

func TestDedupLedger_MarkThenSeen(t *testing.T) {
	client := newStubClient()
	ledger, err := NewDedupLedger(client, "test:", time.Hour)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	ctx := context.Background()

	seen, err := ledger.Seen(ctx, "msg_1")
	if err != nil || seen {
		t.Fatalf("expected unseen, got %v, %v", seen, err)
	}
	if err := ledger.Mark(ctx, "msg_1"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	seen, err = ledger.Seen(ctx, "msg_1")
	if err != nil || !seen {
		t.Fatalf("expected seen, got %v, %v", seen, err)
	}
	if ttl, ok := client.values["test:msg_1"]; !ok || ttl != time.Hour {
		t.Fatalf("expected prefixed key with retention ttl, got %v (present=%v)", ttl, ok)
	}
}

func TestDedupLedger_Defaults(t *testing.T) {
	client := newStubClient()
	ledger, err := NewDedupLedger(client, "", 0)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	if err := ledger.Mark(context.Background(), "msg_1"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if ttl := client.values[DefaultKeyPrefix+"msg_1"]; ttl != core.DefaultDedupRetention {
		t.Fatalf("expected default retention, got %v", ttl)
	}
	if purged, err := ledger.Purge(context.Background()); err != nil || purged != 0 {
		t.Fatalf("expected no-op purge, got %d, %v", purged, err)
	}
}

func TestDedupLedger_PropagatesClientErrors(t *testing.T) {
	client := newStubClient()
	boom := errors.New("redis down")
	client.failErr = boom
	ledger, _ := NewDedupLedger(client, "", time.Minute)

	if _, err := ledger.Seen(context.Background(), "msg_1"); !errors.Is(err, boom) {
		t.Fatalf("expected seen error, got %v", err)
	}
	if err := ledger.Mark(context.Background(), "msg_1"); !errors.Is(err, boom) {
		t.Fatalf("expected mark error, got %v", err)
	}
}

func TestDedupLedger_RejectsBadInput(t *testing.T) {
	if _, err := NewDedupLedger(nil, "", time.Minute); err == nil {
		t.Fatalf("expected error for nil client")
	}
	ledger, _ := NewDedupLedger(newStubClient(), "", time.Minute)
	if err := ledger.Mark(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for blank event id")
	}
	if seen, err := ledger.Seen(context.Background(), ""); err != nil || seen {
		t.Fatalf("expected blank id to be unseen, got %v, %v", seen, err)
	}
}
