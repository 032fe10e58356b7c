package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[ReconcileEventMessage]   = (*ReconcileEventCommand)(nil)
	_ gocmd.Commander[PurgeDedupLedgerMessage] = (*PurgeDedupLedgerCommand)(nil)
)
