package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-identity-sync/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DedupLedger records applied event ids in identity_applied_events so the
// duplicate check survives restarts and is shared between replicas.
type DedupLedger struct {
	db        *bun.DB
	retention time.Duration
	Now       func() time.Time
}

func NewDedupLedger(db *bun.DB, retention time.Duration) (*DedupLedger, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	if retention <= 0 {
		retention = core.DefaultDedupRetention
	}
	return &DedupLedger{db: db, retention: retention}, nil
}

func (l *DedupLedger) Seen(ctx context.Context, eventID string) (bool, error) {
	if l == nil || l.db == nil {
		return false, fmt.Errorf("sqlstore: dedup ledger is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return false, nil
	}
	return l.db.NewSelect().
		Model((*appliedEventRecord)(nil)).
		Where("?TableAlias.event_id = ?", eventID).
		Where("?TableAlias.expires_at > ?", l.now()).
		Exists(ctx)
}

// Mark is idempotent. An expired row for the same id is refreshed in place.
func (l *DedupLedger) Mark(ctx context.Context, eventID string) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("sqlstore: dedup ledger is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return fmt.Errorf("sqlstore: event id is required")
	}
	now := l.now()
	record := &appliedEventRecord{
		ID:        uuid.NewString(),
		EventID:   eventID,
		AppliedAt: now,
		ExpiresAt: now.Add(l.retention),
	}
	if _, err := l.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if !isUniqueViolation(err) {
			return err
		}
		_, err = l.db.NewUpdate().
			Model((*appliedEventRecord)(nil)).
			Set("applied_at = ?", record.AppliedAt).
			Set("expires_at = ?", record.ExpiresAt).
			Where("event_id = ?", eventID).
			Exec(ctx)
		return err
	}
	return nil
}

func (l *DedupLedger) Purge(ctx context.Context) (int, error) {
	if l == nil || l.db == nil {
		return 0, fmt.Errorf("sqlstore: dedup ledger is not configured")
	}
	res, err := l.db.NewDelete().
		Model((*appliedEventRecord)(nil)).
		Where("expires_at <= ?", l.now()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (l *DedupLedger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}
