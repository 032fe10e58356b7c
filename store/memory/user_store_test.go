package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-identity-sync/core"
)

func TestUserStore_CreateFindUpdateTombstone(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore()

	record, err := store.FindByExternalID(ctx, "user_1")
	if err != nil || record != nil {
		t.Fatalf("expected nil, nil for missing record, got %#v, %v", record, err)
	}

	err = store.CreateOrReincarnate(ctx, core.UserRecord{
		ExternalID:  "user_1",
		Attributes:  core.Attributes{core.AttributeEmail: "a@x.io"},
		Role:        core.DefaultRole,
		Version:     100,
		LastEventID: "msg_1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.Update(ctx, "user_1", core.Attributes{core.AttributeEmail: "b@x.io"}, 200, "msg_2"); err != nil {
		t.Fatalf("update: %v", err)
	}
	record, err = store.FindByExternalID(ctx, "user_1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if record.Attributes.Email() != "b@x.io" || record.Version != 200 || record.LastEventID != "msg_2" {
		t.Fatalf("unexpected record after update %#v", record)
	}
	if record.Role != core.DefaultRole {
		t.Fatalf("expected role to survive update, got %q", record.Role)
	}

	if err := store.Tombstone(ctx, "user_1", 300, "msg_3"); err != nil {
		t.Fatalf("tombstone: %v", err)
	}
	record, _ = store.FindByExternalID(ctx, "user_1")
	if !record.Tombstoned || record.Version != 300 {
		t.Fatalf("expected tombstoned record at version 300, got %#v", record)
	}
	if len(record.Attributes) != 0 {
		t.Fatalf("expected tombstone to drop attributes, got %#v", record.Attributes)
	}
}

func TestUserStore_OptimisticConflicts(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore()
	_ = store.CreateOrReincarnate(ctx, core.UserRecord{ExternalID: "user_1", Version: 100})

	if err := store.Update(ctx, "user_1", core.Attributes{}, 100, "msg"); !errors.Is(err, core.ErrVersionConflict) {
		t.Fatalf("expected conflict for non-advancing version, got %v", err)
	}
	if err := store.CreateOrReincarnate(ctx, core.UserRecord{ExternalID: "user_1", Version: 500}); !errors.Is(err, core.ErrVersionConflict) {
		t.Fatalf("expected conflict when creating over an active record, got %v", err)
	}
	if err := store.Update(ctx, "user_2", core.Attributes{}, 1, "msg"); !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	_ = store.Tombstone(ctx, "user_1", 200, "msg_del")
	if err := store.Update(ctx, "user_1", core.Attributes{}, 300, "msg"); !errors.Is(err, core.ErrVersionConflict) {
		t.Fatalf("expected conflict when updating a tombstone, got %v", err)
	}
	if err := store.CreateOrReincarnate(ctx, core.UserRecord{ExternalID: "user_1", Version: 150}); !errors.Is(err, core.ErrVersionConflict) {
		t.Fatalf("expected stale reincarnation conflict, got %v", err)
	}
	if err := store.CreateOrReincarnate(ctx, core.UserRecord{ExternalID: "user_1", Version: 250}); err != nil {
		t.Fatalf("expected newer reincarnation to succeed: %v", err)
	}
}

func TestUserStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore()
	_ = store.CreateOrReincarnate(ctx, core.UserRecord{ExternalID: "user_1", Version: 1, Attributes: core.Attributes{"email": "a@x.io"}})

	record, _ := store.FindByExternalID(ctx, "user_1")
	record.Attributes["email"] = "mutated@x.io"

	again, _ := store.FindByExternalID(ctx, "user_1")
	if again.Attributes.Email() != "a@x.io" {
		t.Fatalf("expected store to be isolated from caller mutation")
	}
}
