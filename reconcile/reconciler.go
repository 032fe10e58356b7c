package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-identity-sync/core"
	glog "github.com/goliatone/go-logger/glog"
)

const loggerName = "identity_sync.reconcile"

type Reconciler struct {
	store    core.UserStore
	ledger   core.DedupLedger
	locker   *core.KeyedLocker
	observer core.Observer

	logger         core.Logger
	loggerProvider core.LoggerProvider

	timeout     time.Duration
	maxAttempts int
	now         func() time.Time
}

func New(store core.UserStore, opts ...Option) (*Reconciler, error) {
	if store == nil {
		return nil, fmt.Errorf("reconcile: user store is required")
	}
	r := &Reconciler{
		store:       store,
		ledger:      core.NewMemoryDedupLedger(core.DefaultDedupRetention),
		locker:      core.NewKeyedLocker(),
		observer:    core.NewObserver(nil, core.NopMetricsRecorder{}),
		timeout:     core.DefaultOperationTimeout,
		maxAttempts: core.DefaultMaxAttempts,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(r)
	}

	provider, logger := glog.Resolve(loggerName, r.loggerProvider, r.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger(loggerName); named != nil {
			logger = glog.Ensure(named)
		}
	}
	r.observer.Logger = logger
	return r, nil
}

// Reconcile applies event under the per-subject lock. A StoreFailure leaves
// the event unmarked so that a redelivery is processed again.
func (r *Reconciler) Reconcile(ctx context.Context, event core.CanonicalEvent) (outcome core.Outcome, err error) {
	startedAt := time.Now()
	attempts := 0
	defer func() {
		fields := map[string]any{
			"provider_id": event.ProviderID,
			"event_id":    event.EventID,
			"external_id": event.SubjectID,
			"kind":        string(event.Kind),
			"version":     event.Version(),
			"attempts":    attempts,
		}
		if err == nil {
			fields["outcome"] = string(outcome.Action)
			if outcome.Reason != "" {
				fields["reason"] = string(outcome.Reason)
			}
		}
		r.observer.Observe(ctx, startedAt, "reconcile", err, fields)
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	if err := event.Validate(); err != nil {
		return core.Outcome{}, core.BadInputError("reconcile: " + err.Error())
	}

	unlock, err := r.locker.Lock(ctx, event.SubjectID)
	if err != nil {
		return core.Outcome{}, core.StoreFailure(err, "lock", event.SubjectID)
	}
	defer unlock()

	if r.seen(ctx, event) {
		return core.Ignored(core.IgnoreReasonDuplicate, nil), nil
	}

	for attempts < r.maxAttempts {
		attempts++
		outcome, err = r.apply(ctx, event)
		if !isRetryable(err) {
			break
		}
		r.observer.Debug(ctx, "reconcile lost an optimistic write, retrying", map[string]any{
			"external_id": event.SubjectID,
			"event_id":    event.EventID,
			"attempt":     attempts,
		})
	}
	if isRetryable(err) {
		return core.Outcome{}, core.StoreFailure(err, "write", event.SubjectID)
	}
	if err != nil {
		return core.Outcome{}, err
	}

	r.mark(ctx, event)
	return outcome, nil
}

func (r *Reconciler) apply(ctx context.Context, event core.CanonicalEvent) (core.Outcome, error) {
	externalID := event.SubjectID
	record, err := r.find(ctx, externalID)
	if err != nil {
		return core.Outcome{}, core.StoreFailure(err, "find", externalID)
	}
	if record != nil && record.ExternalID != externalID {
		return core.Outcome{}, core.InvariantViolation("store returned a record for another external id", map[string]any{
			"requested_external_id": externalID,
			"returned_external_id":  record.ExternalID,
		})
	}

	version := event.Version()
	if record != nil {
		if record.LastEventID != "" && record.LastEventID == event.EventID {
			return core.Ignored(core.IgnoreReasonDuplicate, record), nil
		}
		if version <= record.Version {
			return core.Ignored(core.IgnoreReasonStale, record), nil
		}
	}

	now := r.now().UTC()
	switch record.State() {
	case core.UserStateAbsent:
		next := core.UserRecord{
			ExternalID:  externalID,
			Attributes:  event.Attributes.Clone(),
			Role:        core.DefaultRole,
			Version:     version,
			LastEventID: event.EventID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		action := core.OutcomeCreated
		if event.Kind == core.EventKindUserDeleted {
			next.Attributes = core.Attributes{}
			next.Tombstoned = true
			action = core.OutcomeDeleted
		}
		if err := r.write(ctx, "create", externalID, func(opCtx context.Context) error {
			return r.store.CreateOrReincarnate(opCtx, next)
		}); err != nil {
			return core.Outcome{}, err
		}
		return core.Outcome{Action: action, Record: &next}, nil

	case core.UserStateActive:
		next := record.Clone()
		next.Version = version
		next.LastEventID = event.EventID
		next.UpdatedAt = now
		if event.Kind == core.EventKindUserDeleted {
			next.Attributes = core.Attributes{}
			next.Tombstoned = true
			if err := r.write(ctx, "tombstone", externalID, func(opCtx context.Context) error {
				return r.store.Tombstone(opCtx, externalID, version, event.EventID)
			}); err != nil {
				return core.Outcome{}, err
			}
			return core.Outcome{Action: core.OutcomeDeleted, Record: &next}, nil
		}
		next.Attributes = record.Attributes.Merge(event.Attributes)
		if err := r.write(ctx, "update", externalID, func(opCtx context.Context) error {
			return r.store.Update(opCtx, externalID, next.Attributes, version, event.EventID)
		}); err != nil {
			return core.Outcome{}, err
		}
		return core.Outcome{Action: core.OutcomeUpdated, Record: &next}, nil

	case core.UserStateTombstoned:
		if event.Kind != core.EventKindUserCreated {
			return core.Ignored(core.IgnoreReasonAlreadyTombstoned, record), nil
		}
		next := record.Clone()
		next.Attributes = event.Attributes.Clone()
		if next.Attributes == nil {
			next.Attributes = core.Attributes{}
		}
		if strings.TrimSpace(next.Role) == "" {
			next.Role = core.DefaultRole
		}
		next.Tombstoned = false
		next.Version = version
		next.LastEventID = event.EventID
		next.UpdatedAt = now
		if err := r.write(ctx, "reincarnate", externalID, func(opCtx context.Context) error {
			return r.store.CreateOrReincarnate(opCtx, next)
		}); err != nil {
			return core.Outcome{}, err
		}
		return core.Outcome{Action: core.OutcomeCreated, Record: &next}, nil
	}

	return core.Outcome{}, core.InvariantViolation("unreachable user state", map[string]any{
		"external_id": externalID,
		"state":       string(record.State()),
	})
}

func (r *Reconciler) find(ctx context.Context, externalID string) (*core.UserRecord, error) {
	opCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	record, err := r.store.FindByExternalID(opCtx, externalID)
	if err == nil && opCtx.Err() != nil {
		err = opCtx.Err()
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// write runs one mutating store call. Version conflicts and vanished rows
// are returned untouched so Reconcile can re-run the transition.
func (r *Reconciler) write(ctx context.Context, operation string, externalID string, fn func(context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	err := fn(opCtx)
	if err == nil {
		return nil
	}
	if isRetryable(err) {
		return err
	}
	return core.StoreFailure(err, operation, externalID)
}

func (r *Reconciler) seen(ctx context.Context, event core.CanonicalEvent) bool {
	opCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	seen, err := r.ledger.Seen(opCtx, event.EventID)
	if err != nil {
		r.observer.Warn(ctx, "dedup ledger lookup failed, relying on version ordering", map[string]any{
			"event_id": event.EventID,
			"error":    err.Error(),
		})
		return false
	}
	return seen
}

func (r *Reconciler) mark(ctx context.Context, event core.CanonicalEvent) {
	opCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.ledger.Mark(opCtx, event.EventID); err != nil {
		r.observer.Warn(ctx, "dedup ledger mark failed", map[string]any{
			"event_id": event.EventID,
			"error":    err.Error(),
		})
	}
}

func isRetryable(err error) bool {
	return errors.Is(err, core.ErrVersionConflict) || errors.Is(err, core.ErrUserNotFound)
}

var _ core.Reconciler = (*Reconciler)(nil)
