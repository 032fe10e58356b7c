package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-identity-sync/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserStore persists user records in identity_users. Every write is a single
// statement conditioned on version < incoming version, so concurrent writers
// on different processes lose with core.ErrVersionConflict instead of
// overwriting newer state.
type UserStore struct {
	db   *bun.DB
	repo repository.Repository[*userRecord]
	Now  func() time.Time
}

func NewUserStore(db *bun.DB) (*UserStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*userRecord](db, userHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid user repository wiring: %w", err)
		}
	}
	return &UserStore{db: db, repo: repo}, nil
}

func (s *UserStore) FindByExternalID(ctx context.Context, externalID string) (*core.UserRecord, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: user store is not configured")
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, fmt.Errorf("sqlstore: external id is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("external_id", "=", externalID),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Limit(1)
		}),
	)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	found := records[0].toDomain()
	return &found, nil
}

func (s *UserStore) CreateOrReincarnate(ctx context.Context, in core.UserRecord) error {
	if s == nil || s.db == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: user store is not configured")
	}
	externalID := strings.TrimSpace(in.ExternalID)
	if externalID == "" {
		return fmt.Errorf("sqlstore: external id is required")
	}
	in.ExternalID = externalID
	now := s.now()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := &userRecord{}
		err := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.external_id = ?", externalID).
			Limit(1).
			Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if errors.Is(err, sql.ErrNoRows) {
			record := newUserRecord(uuid.NewString(), in, now)
			if _, createErr := s.repo.CreateTx(ctx, tx, record); createErr != nil {
				if isUniqueViolation(createErr) {
					return fmt.Errorf("sqlstore: create %s: %w", externalID, core.ErrVersionConflict)
				}
				return createErr
			}
			return nil
		}
		if !existing.Tombstoned || existing.Version >= in.Version {
			return fmt.Errorf("sqlstore: reincarnate %s at version %d: %w", externalID, existing.Version, core.ErrVersionConflict)
		}

		in.CreatedAt = existing.CreatedAt
		record := newUserRecord(existing.ID, in, now)
		res, updateErr := tx.NewUpdate().
			Model(record).
			Column("attributes", "role", "version", "tombstoned", "last_event_id", "updated_at").
			Where("id = ?", existing.ID).
			Where("tombstoned = ?", true).
			Where("version < ?", in.Version).
			Exec(ctx)
		if updateErr != nil {
			return updateErr
		}
		return expectOneRow(res, externalID)
	})
}

func (s *UserStore) Update(ctx context.Context, externalID string, attributes core.Attributes, version int64, eventID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: user store is not configured")
	}
	externalID = strings.TrimSpace(externalID)
	record := &userRecord{
		Attributes:  attributesColumn(attributes),
		Version:     version,
		LastEventID: eventID,
		UpdatedAt:   s.now(),
	}
	res, err := s.db.NewUpdate().
		Model(record).
		Column("attributes", "version", "last_event_id", "updated_at").
		Where("external_id = ?", externalID).
		Where("tombstoned = ?", false).
		Where("version < ?", version).
		Exec(ctx)
	if err != nil {
		return err
	}
	return s.classifyMiss(ctx, res, externalID)
}

func (s *UserStore) Tombstone(ctx context.Context, externalID string, version int64, eventID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: user store is not configured")
	}
	externalID = strings.TrimSpace(externalID)
	// Tombstones carry no profile.
	record := &userRecord{
		Attributes:  attributesColumn(nil),
		Tombstoned:  true,
		Version:     version,
		LastEventID: eventID,
		UpdatedAt:   s.now(),
	}
	res, err := s.db.NewUpdate().
		Model(record).
		Column("attributes", "tombstoned", "version", "last_event_id", "updated_at").
		Where("external_id = ?", externalID).
		Where("tombstoned = ?", false).
		Where("version < ?", version).
		Exec(ctx)
	if err != nil {
		return err
	}
	return s.classifyMiss(ctx, res, externalID)
}

// classifyMiss turns a zero row update into ErrUserNotFound or ErrVersionConflict.
func (s *UserStore) classifyMiss(ctx context.Context, res sql.Result, externalID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	count, err := s.db.NewSelect().
		Model((*userRecord)(nil)).
		Where("?TableAlias.external_id = ?", externalID).
		Count(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("sqlstore: %s: %w", externalID, core.ErrUserNotFound)
	}
	return fmt.Errorf("sqlstore: %s: %w", externalID, core.ErrVersionConflict)
}

func (s *UserStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func expectOneRow(res sql.Result, externalID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sqlstore: %s: %w", externalID, core.ErrVersionConflict)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
