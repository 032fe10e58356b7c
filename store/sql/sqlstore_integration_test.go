package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/goliatone/go-identity-sync/core"
	identitymigrations "github.com/goliatone/go-identity-sync/migrations"
	"github.com/goliatone/go-identity-sync/reconcile"
	sqlstore "github.com/goliatone/go-identity-sync/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "identity-sync-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{"identity_users", "identity_applied_events"} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestUserStore_CreateFindUpdateTombstone(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	ctx := context.Background()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.UserStore()

	missing, err := store.FindByExternalID(ctx, "user_1")
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for a missing record, got %+v, %v", missing, err)
	}

	if err := store.CreateOrReincarnate(ctx, core.UserRecord{
		ExternalID:  "user_1",
		Attributes:  core.Attributes{core.AttributeEmail: "a@x.io", core.AttributeFirstName: "Ada"},
		Role:        core.DefaultRole,
		Version:     100,
		LastEventID: "msg_1",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	record, err := store.FindByExternalID(ctx, "user_1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if record == nil || record.Attributes.Email() != "a@x.io" || record.Role != core.DefaultRole {
		t.Fatalf("unexpected record after create: %+v", record)
	}
	if record.Version != 100 || record.LastEventID != "msg_1" || record.Tombstoned {
		t.Fatalf("unexpected bookkeeping after create: %+v", record)
	}

	if err := store.Update(ctx, "user_1", core.Attributes{core.AttributeEmail: "b@x.io", core.AttributeFirstName: ""}, 200, "msg_2"); err != nil {
		t.Fatalf("update: %v", err)
	}
	record, _ = store.FindByExternalID(ctx, "user_1")
	if record.Attributes.Email() != "b@x.io" || record.Version != 200 || record.LastEventID != "msg_2" {
		t.Fatalf("unexpected record after update: %+v", record)
	}
	if value, ok := record.Attributes[core.AttributeFirstName]; !ok || value != "" {
		t.Fatalf("expected cleared first_name to persist as empty, got %q (present=%v)", value, ok)
	}

	if err := store.Tombstone(ctx, "user_1", 300, "msg_3"); err != nil {
		t.Fatalf("tombstone: %v", err)
	}
	record, _ = store.FindByExternalID(ctx, "user_1")
	if !record.Tombstoned || record.Version != 300 {
		t.Fatalf("expected tombstoned record at version 300, got %+v", record)
	}
	if len(record.Attributes) != 0 || record.Role != core.DefaultRole {
		t.Fatalf("expected tombstone to drop attributes and keep role, got %+v", record)
	}
}

func TestUserStore_ConditionalWrites(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	ctx := context.Background()

	store, err := sqlstore.NewUserStore(client.DB())
	if err != nil {
		t.Fatalf("new user store: %v", err)
	}
	if err := store.CreateOrReincarnate(ctx, core.UserRecord{ExternalID: "user_1", Role: core.DefaultRole, Version: 100}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.Update(ctx, "user_1", core.Attributes{}, 100, "msg"); !errors.Is(err, core.ErrVersionConflict) {
		t.Fatalf("expected conflict for non-advancing version, got %v", err)
	}
	if err := store.CreateOrReincarnate(ctx, core.UserRecord{ExternalID: "user_1", Role: core.DefaultRole, Version: 500}); !errors.Is(err, core.ErrVersionConflict) {
		t.Fatalf("expected conflict when creating over an active record, got %v", err)
	}
	if err := store.Update(ctx, "user_2", core.Attributes{}, 1, "msg"); !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}
	if err := store.Tombstone(ctx, "user_2", 1, "msg"); !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("expected not found on tombstone, got %v", err)
	}

	if err := store.Tombstone(ctx, "user_1", 200, "msg_del"); err != nil {
		t.Fatalf("tombstone: %v", err)
	}
	if err := store.Update(ctx, "user_1", core.Attributes{}, 300, "msg"); !errors.Is(err, core.ErrVersionConflict) {
		t.Fatalf("expected conflict when updating a tombstone, got %v", err)
	}
	if err := store.CreateOrReincarnate(ctx, core.UserRecord{ExternalID: "user_1", Role: core.DefaultRole, Version: 150}); !errors.Is(err, core.ErrVersionConflict) {
		t.Fatalf("expected stale reincarnation conflict, got %v", err)
	}
	if err := store.CreateOrReincarnate(ctx, core.UserRecord{
		ExternalID: "user_1",
		Role:       "admin",
		Version:    250,
		Attributes: core.Attributes{core.AttributeEmail: "back@x.io"},
	}); err != nil {
		t.Fatalf("expected newer reincarnation to succeed: %v", err)
	}

	record, _ := store.FindByExternalID(ctx, "user_1")
	if record.Tombstoned || record.Version != 250 || record.Attributes.Email() != "back@x.io" || record.Role != "admin" {
		t.Fatalf("unexpected reincarnated record: %+v", record)
	}
}

func TestDedupLedger_SeenMarkPurge(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	ctx := context.Background()

	factory, err := sqlstore.NewRepositoryFactoryFromDB(client.DB())
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	ledger, err := factory.DedupLedger(time.Hour)
	if err != nil {
		t.Fatalf("dedup ledger: %v", err)
	}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ledger.Now = func() time.Time { return now }

	seen, err := ledger.Seen(ctx, "msg_1")
	if err != nil || seen {
		t.Fatalf("expected unseen event, got %v, %v", seen, err)
	}
	if err := ledger.Mark(ctx, "msg_1"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := ledger.Mark(ctx, "msg_1"); err != nil {
		t.Fatalf("second mark should be idempotent: %v", err)
	}
	seen, err = ledger.Seen(ctx, "msg_1")
	if err != nil || !seen {
		t.Fatalf("expected marked event to be seen, got %v, %v", seen, err)
	}

	now = now.Add(2 * time.Hour)
	seen, _ = ledger.Seen(ctx, "msg_1")
	if seen {
		t.Fatalf("expected expired entry to be unseen")
	}
	if err := ledger.Mark(ctx, "msg_2"); err != nil {
		t.Fatalf("mark second: %v", err)
	}
	purged, err := ledger.Purge(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged entry, got %d", purged)
	}
	seen, _ = ledger.Seen(ctx, "msg_2")
	if !seen {
		t.Fatalf("expected live entry to survive purge")
	}
}

func TestReconciler_OverSQLiteStore(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	ctx := context.Background()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	ledger, err := factory.DedupLedger(time.Hour)
	if err != nil {
		t.Fatalf("dedup ledger: %v", err)
	}
	cached, err := factory.CachedUserStore(time.Minute)
	if err != nil {
		t.Fatalf("cached user store: %v", err)
	}
	reconciler, err := reconcile.New(cached, reconcile.WithLedger(ledger))
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []core.CanonicalEvent{
		{EventID: "msg_1", ProviderID: "clerk", Kind: core.EventKindUserCreated, SubjectID: "user_1", OccurredAt: base.Add(time.Second), Attributes: core.Attributes{core.AttributeEmail: "a@x.io"}},
		{EventID: "msg_1", ProviderID: "clerk", Kind: core.EventKindUserCreated, SubjectID: "user_1", OccurredAt: base.Add(time.Second), Attributes: core.Attributes{core.AttributeEmail: "a@x.io"}},
		{EventID: "msg_3", ProviderID: "clerk", Kind: core.EventKindUserDeleted, SubjectID: "user_1", OccurredAt: base.Add(3 * time.Second)},
		{EventID: "msg_2", ProviderID: "clerk", Kind: core.EventKindUserUpdated, SubjectID: "user_1", OccurredAt: base.Add(2 * time.Second), Attributes: core.Attributes{core.AttributeEmail: "b@x.io"}},
	}
	want := []string{"created", "ignored(duplicate)", "deleted", "ignored(stale)"}
	for i, event := range events {
		outcome, err := reconciler.Reconcile(ctx, event)
		if err != nil {
			t.Fatalf("reconcile %s: %v", event.EventID, err)
		}
		if outcome.String() != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], outcome)
		}
	}

	record, err := factory.UserStore().FindByExternalID(ctx, "user_1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !record.Tombstoned || len(record.Attributes) != 0 || record.Version != core.VersionAt(base.Add(3*time.Second)) {
		t.Fatalf("unexpected final record: %+v", record)
	}
}

func TestReconciler_CreateDeleteOrderToleranceOverSQLite(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	created := core.CanonicalEvent{
		EventID: "msg_c", ProviderID: "clerk", Kind: core.EventKindUserCreated, SubjectID: "user_1",
		OccurredAt: base.Add(time.Second),
		Attributes: core.Attributes{core.AttributeEmail: "a@x.io", core.AttributeFirstName: "Ada"},
	}
	deleted := core.CanonicalEvent{
		EventID: "msg_d", ProviderID: "clerk", Kind: core.EventKindUserDeleted, SubjectID: "user_1",
		OccurredAt: base.Add(2 * time.Second),
	}

	finalState := func(order ...core.CanonicalEvent) *core.UserRecord {
		client, cleanup := newSQLiteClient(t)
		defer cleanup()
		ctx := context.Background()

		store, err := sqlstore.NewUserStore(client.DB())
		if err != nil {
			t.Fatalf("new user store: %v", err)
		}
		reconciler, err := reconcile.New(store)
		if err != nil {
			t.Fatalf("new reconciler: %v", err)
		}
		for _, event := range order {
			if _, err := reconciler.Reconcile(ctx, event); err != nil {
				t.Fatalf("reconcile %s: %v", event.EventID, err)
			}
		}
		record, err := store.FindByExternalID(ctx, "user_1")
		if err != nil || record == nil {
			t.Fatalf("find: %+v %v", record, err)
		}
		return record
	}

	forward := finalState(created, deleted)
	reverse := finalState(deleted, created)
	if !forward.Tombstoned || !reverse.Tombstoned || forward.Version != reverse.Version {
		t.Fatalf("expected matching tombstones, forward=%+v reverse=%+v", forward, reverse)
	}
	if !forward.Attributes.Equal(reverse.Attributes) || forward.Role != reverse.Role {
		t.Fatalf("final state depends on delivery order, forward=%+v reverse=%+v", forward, reverse)
	}
}

func TestResolveDB_RejectsUnsupportedClients(t *testing.T) {
	if _, err := sqlstore.NewRepositoryFactoryFromDB(nil); err == nil {
		t.Fatalf("expected error for nil db")
	}
	factory := sqlstore.NewRepositoryFactory()
	if err := factory.Build("not a client"); err == nil {
		t.Fatalf("expected error for unsupported client type")
	}
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:identity-sync-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	err = identitymigrations.Apply(context.Background(), identitymigrations.DialectSQLite, func(fsys fs.FS) {
		client.RegisterSQLMigrations(fsys)
	}, client.Migrate)
	if err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
