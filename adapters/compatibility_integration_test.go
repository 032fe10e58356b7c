package adapters_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-command"
	"github.com/goliatone/go-identity-sync/adapters/gocommand"
	"github.com/goliatone/go-identity-sync/adapters/gologger"
	identitycommand "github.com/goliatone/go-identity-sync/command"
	"github.com/goliatone/go-identity-sync/core"
	identityquery "github.com/goliatone/go-identity-sync/query"
	"github.com/goliatone/go-identity-sync/reconcile"
	"github.com/goliatone/go-identity-sync/store/memory"
)

func TestRuntimeCompatibility_CommandsAndQueriesDispatchThroughWrappers(t *testing.T) {
	var logs bytes.Buffer
	provider := gologger.NewProvider(&logs, "json", "info")

	store := memory.NewUserStore()
	ledger := core.NewMemoryDedupLedger(time.Hour)
	reconciler, err := reconcile.New(store,
		reconcile.WithLedger(ledger),
		reconcile.WithLoggerProvider(provider),
	)
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}

	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	reconcileSub, err := gocommand.RegisterAndSubscribe(adapter, identitycommand.NewReconcileEventCommand(reconciler))
	if err != nil {
		t.Fatalf("register reconcile command: %v", err)
	}
	defer reconcileSub.Unsubscribe()

	purgeSub, err := gocommand.RegisterAndSubscribe(adapter, identitycommand.NewPurgeDedupLedgerCommand(ledger))
	if err != nil {
		t.Fatalf("register purge command: %v", err)
	}
	defer purgeSub.Unsubscribe()

	userSub, err := gocommand.RegisterAndSubscribeQuery(adapter, identityquery.NewGetUserQuery(store))
	if err != nil {
		t.Fatalf("register user query: %v", err)
	}
	defer userSub.Unsubscribe()

	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize adapter: %v", err)
	}

	ctx := context.Background()
	if err := gocommand.Dispatch(ctx, identitycommand.ReconcileEventMessage{Event: core.CanonicalEvent{
		EventID:    "msg_1",
		ProviderID: "clerk",
		Kind:       core.EventKindUserCreated,
		SubjectID:  "user_1",
		OccurredAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Attributes: core.Attributes{core.AttributeEmail: "a@x.io"},
	}}); err != nil {
		t.Fatalf("dispatch reconcile: %v", err)
	}

	record, err := gocommand.Query[identityquery.GetUserMessage, core.UserRecord](ctx, identityquery.GetUserMessage{ExternalID: "user_1"})
	if err != nil {
		t.Fatalf("query user: %v", err)
	}
	if record.Attributes.Email() != "a@x.io" || record.Role != core.DefaultRole {
		t.Fatalf("unexpected synced user: %#v", record)
	}

	if err := gocommand.Dispatch(ctx, identitycommand.PurgeDedupLedgerMessage{}); err != nil {
		t.Fatalf("dispatch purge: %v", err)
	}
	if !strings.Contains(logs.String(), "identity_sync.reconcile") {
		t.Fatalf("expected reconciler to log through the slog bridge, got %q", logs.String())
	}
}
