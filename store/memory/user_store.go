// Package memory provides an in-process core.UserStore for tests and single
// node deployments that do not need durability.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-identity-sync/core"
)

type UserStore struct {
	mu      sync.RWMutex
	records map[string]core.UserRecord
	Now     func() time.Time
}

func NewUserStore() *UserStore {
	return &UserStore{
		records: map[string]core.UserRecord{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *UserStore) FindByExternalID(ctx context.Context, externalID string) (*core.UserRecord, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[strings.TrimSpace(externalID)]
	if !ok {
		return nil, nil
	}
	cloned := record.Clone()
	return &cloned, nil
}

func (s *UserStore) CreateOrReincarnate(ctx context.Context, record core.UserRecord) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	externalID := strings.TrimSpace(record.ExternalID)
	if externalID == "" {
		return fmt.Errorf("store/memory: external id is required")
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	next := record.Clone()
	next.ExternalID = externalID
	if next.Attributes == nil {
		next.Attributes = core.Attributes{}
	}
	if existing, ok := s.records[externalID]; ok {
		if !existing.Tombstoned || existing.Version >= next.Version {
			return fmt.Errorf("store/memory: create %s: %w", externalID, core.ErrVersionConflict)
		}
		next.CreatedAt = existing.CreatedAt
	}
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}
	next.UpdatedAt = now
	s.records[externalID] = next
	return nil
}

func (s *UserStore) Update(ctx context.Context, externalID string, attributes core.Attributes, version int64, eventID string) error {
	return s.mutate(ctx, externalID, version, func(record *core.UserRecord) {
		record.Attributes = attributes.Clone()
		if record.Attributes == nil {
			record.Attributes = core.Attributes{}
		}
		record.LastEventID = eventID
	})
}

func (s *UserStore) Tombstone(ctx context.Context, externalID string, version int64, eventID string) error {
	return s.mutate(ctx, externalID, version, func(record *core.UserRecord) {
		record.Attributes = core.Attributes{}
		record.Tombstoned = true
		record.LastEventID = eventID
	})
}

// mutate applies fn only when the stored record is active and older than version.
func (s *UserStore) mutate(ctx context.Context, externalID string, version int64, fn func(*core.UserRecord)) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	externalID = strings.TrimSpace(externalID)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[externalID]
	if !ok {
		return fmt.Errorf("store/memory: %s: %w", externalID, core.ErrUserNotFound)
	}
	if record.Tombstoned || record.Version >= version {
		return fmt.Errorf("store/memory: %s at version %d: %w", externalID, record.Version, core.ErrVersionConflict)
	}
	fn(&record)
	record.Version = version
	record.UpdatedAt = now
	s.records[externalID] = record
	return nil
}

// List returns every record ordered by external id.
func (s *UserStore) List() []core.UserRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.UserRecord, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, record.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out
}

func (s *UserStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *UserStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}

var _ core.UserStore = (*UserStore)(nil)
