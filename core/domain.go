package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrUserNotFound     = errors.New("core: user record not found")
	ErrVersionConflict  = errors.New("core: user record version conflict")
	ErrInvalidEventKind = errors.New("core: invalid event kind")
)

type EventKind string

const (
	EventKindUserCreated EventKind = "user_created"
	EventKindUserUpdated EventKind = "user_updated"
	EventKindUserDeleted EventKind = "user_deleted"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventKindUserCreated, EventKindUserUpdated, EventKindUserDeleted:
		return true
	default:
		return false
	}
}

const (
	AttributeEmail     = "email"
	AttributeFirstName = "first_name"
	AttributeLastName  = "last_name"
	AttributeImageURL  = "image_url"
)

// DefaultRole is assigned on first creation. Sync never writes roles afterwards.
const DefaultRole = "user"

// Attributes holds provider profile fields. A present key with an empty value
// means the provider cleared the field; an absent key means it was not reported.
type Attributes map[string]string

func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for key, value := range a {
		out[key] = value
	}
	return out
}

// Merge overlays incoming keys on top of a copy of a.
func (a Attributes) Merge(incoming Attributes) Attributes {
	out := a.Clone()
	if out == nil {
		out = Attributes{}
	}
	for key, value := range incoming {
		out[key] = value
	}
	return out
}

func (a Attributes) Email() string {
	return a[AttributeEmail]
}

func (a Attributes) Equal(other Attributes) bool {
	if len(a) != len(other) {
		return false
	}
	for key, value := range a {
		if otherValue, ok := other[key]; !ok || otherValue != value {
			return false
		}
	}
	return true
}

func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for key := range a {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// CanonicalEvent is the provider agnostic shape every normalizer converges on.
type CanonicalEvent struct {
	EventID    string
	ProviderID string
	Kind       EventKind
	SubjectID  string
	OccurredAt time.Time
	Attributes Attributes
}

func (e CanonicalEvent) Validate() error {
	if strings.TrimSpace(e.EventID) == "" {
		return fmt.Errorf("core: event id is required")
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidEventKind, e.Kind)
	}
	if strings.TrimSpace(e.SubjectID) == "" {
		return fmt.Errorf("core: subject id is required")
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("core: occurred_at is required")
	}
	return nil
}

// Version returns the logical clock value the event carries.
func (e CanonicalEvent) Version() int64 {
	return VersionAt(e.OccurredAt)
}

// VersionAt converts an event time into the record version clock (unix millis).
func VersionAt(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

type UserState string

const (
	UserStateAbsent     UserState = "absent"
	UserStateActive     UserState = "active"
	UserStateTombstoned UserState = "tombstoned"
)

type UserRecord struct {
	ExternalID  string
	Attributes  Attributes
	Role        string
	Version     int64
	Tombstoned  bool
	LastEventID string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (r *UserRecord) State() UserState {
	switch {
	case r == nil:
		return UserStateAbsent
	case r.Tombstoned:
		return UserStateTombstoned
	default:
		return UserStateActive
	}
}

func (r UserRecord) Clone() UserRecord {
	out := r
	out.Attributes = r.Attributes.Clone()
	return out
}

type OutcomeAction string

const (
	OutcomeCreated OutcomeAction = "created"
	OutcomeUpdated OutcomeAction = "updated"
	OutcomeDeleted OutcomeAction = "deleted"
	OutcomeIgnored OutcomeAction = "ignored"
)

type IgnoreReason string

const (
	IgnoreReasonDuplicate         IgnoreReason = "duplicate"
	IgnoreReasonStale             IgnoreReason = "stale"
	IgnoreReasonAlreadyTombstoned IgnoreReason = "already_tombstoned"
)

type Outcome struct {
	Action OutcomeAction
	Reason IgnoreReason
	Record *UserRecord
}

func Ignored(reason IgnoreReason, record *UserRecord) Outcome {
	return Outcome{Action: OutcomeIgnored, Reason: reason, Record: record}
}

func (o Outcome) IsIgnored() bool {
	return o.Action == OutcomeIgnored
}

func (o Outcome) String() string {
	if o.Action == OutcomeIgnored && o.Reason != "" {
		return string(o.Action) + "(" + string(o.Reason) + ")"
	}
	return string(o.Action)
}
