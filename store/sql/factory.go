package sqlstore

import (
	"fmt"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds the SQL backed stores over one bun handle.
type RepositoryFactory struct {
	db *bun.DB

	userStore   *UserStore
	dedupLedger *DedupLedger
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.Build(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.Build(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// Build accepts a *bun.DB or anything exposing DB() *bun.DB.
func (f *RepositoryFactory) Build(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.userStore != nil {
		return nil
	}
	userStore, err := NewUserStore(f.db)
	if err != nil {
		return err
	}
	f.userStore = userStore
	return nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) UserStore() *UserStore {
	if f == nil {
		return nil
	}
	return f.userStore
}

// CachedUserStore wraps the user store with a read-through cache. A zero ttl
// falls back to the go-repository-cache default.
func (f *RepositoryFactory) CachedUserStore(ttl time.Duration) (*CachedUserStore, error) {
	if f == nil || f.userStore == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is not built")
	}
	config := repositorycache.DefaultConfig()
	if ttl > 0 {
		config.TTL = ttl
	}
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: build user cache: %w", err)
	}
	return NewCachedUserStore(f.userStore, service)
}

func (f *RepositoryFactory) DedupLedger(retention time.Duration) (*DedupLedger, error) {
	if f == nil || f.db == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is not built")
	}
	if f.dedupLedger != nil {
		return f.dedupLedger, nil
	}
	ledger, err := NewDedupLedger(f.db, retention)
	if err != nil {
		return nil, err
	}
	f.dedupLedger = ledger
	return ledger, nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
