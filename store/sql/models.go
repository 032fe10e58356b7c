package sqlstore

import (
	"time"

	"github.com/goliatone/go-identity-sync/core"
	"github.com/uptrace/bun"
)

type userRecord struct {
	bun.BaseModel `bun:"table:identity_users,alias:iu"`

	ID          string            `bun:"id,pk"`
	ExternalID  string            `bun:"external_id,notnull"`
	Attributes  map[string]string `bun:"attributes,type:jsonb,notnull"`
	Role        string            `bun:"role,notnull"`
	Version     int64             `bun:"version,notnull"`
	Tombstoned  bool              `bun:"tombstoned,notnull"`
	LastEventID string            `bun:"last_event_id,notnull"`
	CreatedAt   time.Time         `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time         `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type appliedEventRecord struct {
	bun.BaseModel `bun:"table:identity_applied_events,alias:iae"`

	ID        string    `bun:"id,pk"`
	EventID   string    `bun:"event_id,notnull"`
	AppliedAt time.Time `bun:"applied_at,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
}

func newUserRecord(id string, in core.UserRecord, now time.Time) *userRecord {
	createdAt := in.CreatedAt.UTC()
	if in.CreatedAt.IsZero() {
		createdAt = now
	}
	return &userRecord{
		ID:          id,
		ExternalID:  in.ExternalID,
		Attributes:  attributesColumn(in.Attributes),
		Role:        in.Role,
		Version:     in.Version,
		Tombstoned:  in.Tombstoned,
		LastEventID: in.LastEventID,
		CreatedAt:   createdAt,
		UpdatedAt:   now,
	}
}

func (r *userRecord) toDomain() core.UserRecord {
	if r == nil {
		return core.UserRecord{}
	}
	attributes := core.Attributes{}
	for key, value := range r.Attributes {
		attributes[key] = value
	}
	return core.UserRecord{
		ExternalID:  r.ExternalID,
		Attributes:  attributes,
		Role:        r.Role,
		Version:     r.Version,
		Tombstoned:  r.Tombstoned,
		LastEventID: r.LastEventID,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

// attributesColumn never returns nil so the json column stays NOT NULL.
func attributesColumn(in core.Attributes) map[string]string {
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
