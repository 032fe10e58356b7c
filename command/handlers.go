package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-identity-sync/core"
)

type ReconcileEventCommand struct {
	reconciler core.Reconciler
}

func NewReconcileEventCommand(reconciler core.Reconciler) *ReconcileEventCommand {
	return &ReconcileEventCommand{reconciler: reconciler}
}

// Execute stores the core.Outcome on the context result collector when one is present.
func (c *ReconcileEventCommand) Execute(ctx context.Context, msg ReconcileEventMessage) error {
	if c == nil || c.reconciler == nil {
		return commandDependencyError("command: reconciler is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	outcome, err := c.reconciler.Reconcile(ctx, msg.Event)
	if err != nil {
		return err
	}
	storeResult(ctx, outcome)
	return nil
}

type PurgeDedupLedgerCommand struct {
	ledger core.DedupLedger
}

func NewPurgeDedupLedgerCommand(ledger core.DedupLedger) *PurgeDedupLedgerCommand {
	return &PurgeDedupLedgerCommand{ledger: ledger}
}

// Execute stores the number of purged entries as an int result.
func (c *PurgeDedupLedgerCommand) Execute(ctx context.Context, _ PurgeDedupLedgerMessage) error {
	if c == nil || c.ledger == nil {
		return commandDependencyError("command: dedup ledger is required")
	}
	purged, err := c.ledger.Purge(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, purged)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
