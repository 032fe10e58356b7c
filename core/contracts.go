package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// InboundRequest is a raw delivery as received by a transport.
type InboundRequest struct {
	ProviderID string
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

// VerifiedEnvelope is an inbound delivery whose signature has been checked.
// Body holds the exact bytes the signature was computed over.
type VerifiedEnvelope struct {
	ProviderID string
	DeliveryID string
	Timestamp  time.Time
	Body       []byte
}

// UserStore is the persistence boundary owned by the embedding application.
// Every write is conditioned on advancing the stored version and must be
// atomic with respect to concurrent callers on the same external id.
type UserStore interface {
	// FindByExternalID returns nil, nil when no record exists.
	FindByExternalID(ctx context.Context, externalID string) (*UserRecord, error)
	// CreateOrReincarnate inserts a record or replaces a tombstoned one.
	CreateOrReincarnate(ctx context.Context, record UserRecord) error
	Update(ctx context.Context, externalID string, attributes Attributes, version int64, eventID string) error
	Tombstone(ctx context.Context, externalID string, version int64, eventID string) error
}

// DedupLedger remembers recently applied event ids. Entries may age out;
// the reconciler's version check covers anything that does.
type DedupLedger interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
	Purge(ctx context.Context) (int, error)
}

type Verifier interface {
	Verify(ctx context.Context, req InboundRequest) (VerifiedEnvelope, error)
}

type Normalizer interface {
	ProviderID() string
	Normalize(envelope VerifiedEnvelope) (CanonicalEvent, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, event CanonicalEvent) (Outcome, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
