package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryDedupLedger is a bounded, TTL based DedupLedger for single process
// deployments. When full, the entry closest to expiry is evicted first.
type MemoryDedupLedger struct {
	mu         sync.Mutex
	retention  time.Duration
	maxEntries int
	entries    map[string]time.Time
	Now        func() time.Time
}

func NewMemoryDedupLedger(retention time.Duration) *MemoryDedupLedger {
	return NewMemoryDedupLedgerWithLimits(retention, DefaultDedupMaxEntries)
}

func NewMemoryDedupLedgerWithLimits(retention time.Duration, maxEntries int) *MemoryDedupLedger {
	if retention <= 0 {
		retention = DefaultDedupRetention
	}
	if maxEntries <= 0 {
		maxEntries = DefaultDedupMaxEntries
	}
	return &MemoryDedupLedger{
		retention:  retention,
		maxEntries: maxEntries,
		entries:    map[string]time.Time{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (l *MemoryDedupLedger) Seen(_ context.Context, eventID string) (bool, error) {
	if l == nil {
		return false, fmt.Errorf("core: dedup ledger is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return false, fmt.Errorf("core: event id is required")
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	expiresAt, ok := l.entries[eventID]
	if !ok {
		return false, nil
	}
	if !now.Before(expiresAt) {
		delete(l.entries, eventID)
		return false, nil
	}
	return true, nil
}

func (l *MemoryDedupLedger) Mark(_ context.Context, eventID string) error {
	if l == nil {
		return fmt.Errorf("core: dedup ledger is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return fmt.Errorf("core: event id is required")
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[eventID]; !ok {
		l.pruneExpiredLocked(now)
		l.enforceCapacityLocked(1)
	}
	l.entries[eventID] = now.Add(l.retention)
	return nil
}

func (l *MemoryDedupLedger) Purge(_ context.Context) (int, error) {
	if l == nil {
		return 0, fmt.Errorf("core: dedup ledger is not configured")
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pruneExpiredLocked(now), nil
}

func (l *MemoryDedupLedger) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *MemoryDedupLedger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *MemoryDedupLedger) pruneExpiredLocked(now time.Time) int {
	pruned := 0
	for key, expiresAt := range l.entries {
		if !now.Before(expiresAt) {
			delete(l.entries, key)
			pruned++
		}
	}
	return pruned
}

func (l *MemoryDedupLedger) enforceCapacityLocked(incoming int) {
	target := l.maxEntries - incoming
	if target < 0 {
		target = 0
	}
	for len(l.entries) > target {
		l.evictOldestLocked()
	}
}

func (l *MemoryDedupLedger) evictOldestLocked() {
	var oldestKey string
	var oldestExpiry time.Time
	for key, expiry := range l.entries {
		if oldestKey == "" || expiry.Before(oldestExpiry) {
			oldestKey = key
			oldestExpiry = expiry
		}
	}
	delete(l.entries, oldestKey)
}

// NopDedupLedger never remembers anything. Version ordering alone then
// decides whether a redelivery is applied.
type NopDedupLedger struct{}

func (NopDedupLedger) Seen(context.Context, string) (bool, error) { return false, nil }

func (NopDedupLedger) Mark(context.Context, string) error { return nil }

func (NopDedupLedger) Purge(context.Context) (int, error) { return 0, nil }
