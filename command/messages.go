package command

import (
	"github.com/goliatone/go-identity-sync/core"
)

const (
	TypeReconcileEvent   = "identity_sync.command.event.reconcile"
	TypePurgeDedupLedger = "identity_sync.command.dedup_ledger.purge"
)

// ReconcileEventMessage applies an already verified and normalized event.
// It lets embedding applications replay events they captured elsewhere.
type ReconcileEventMessage struct {
	Event core.CanonicalEvent
}

func (ReconcileEventMessage) Type() string { return TypeReconcileEvent }

func (m ReconcileEventMessage) Validate() error {
	if err := m.Event.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid canonical event")
	}
	return nil
}

type PurgeDedupLedgerMessage struct{}

func (PurgeDedupLedgerMessage) Type() string { return TypePurgeDedupLedger }
