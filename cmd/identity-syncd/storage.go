package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	identitysync "github.com/goliatone/go-identity-sync"
	"github.com/goliatone/go-identity-sync/core"
	"github.com/goliatone/go-identity-sync/migrations"
	redisstore "github.com/goliatone/go-identity-sync/store/redis"
	sqlstore "github.com/goliatone/go-identity-sync/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

type persistenceConfig struct {
	driver  string
	server  string
	service string
}

func (c persistenceConfig) GetDebug() bool {
	return false
}

func (c persistenceConfig) GetDriver() string {
	return c.driver
}

func (c persistenceConfig) GetServer() string {
	return c.server
}

func (c persistenceConfig) GetPingTimeout() time.Duration {
	return 5 * time.Second
}

func (c persistenceConfig) GetOtelIdentifier() string {
	return c.service
}

// storage holds the engine options derived from cfg plus the closers the
// process must run on shutdown.
type storage struct {
	options []identitysync.Option
	closers []func() error
}

func (s *storage) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

func openStorage(ctx context.Context, cfg core.Config) (*storage, error) {
	out := &storage{}

	var factory *sqlstore.RepositoryFactory
	driver := strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if driver != core.StoreDriverMemory {
		client, err := openPersistence(ctx, cfg)
		if err != nil {
			return nil, err
		}
		out.closers = append(out.closers, client.Close)

		factory, err = sqlstore.NewRepositoryFactoryFromPersistence(client)
		if err != nil {
			out.Close()
			return nil, err
		}
		var store core.UserStore = factory.UserStore()
		if cfg.Store.CacheTTL > 0 {
			cached, err := factory.CachedUserStore(cfg.Store.CacheTTL)
			if err != nil {
				out.Close()
				return nil, err
			}
			store = cached
		}
		out.options = append(out.options, identitysync.WithUserStore(store))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Dedup.Backend)) {
	case core.DedupBackendSQL:
		ledger, err := factory.DedupLedger(cfg.Dedup.Retention)
		if err != nil {
			out.Close()
			return nil, err
		}
		out.options = append(out.options, identitysync.WithDedupLedger(ledger))
	case core.DedupBackendRedis:
		client, err := redisstore.NewClient(ctx, cfg.Redis)
		if err != nil {
			out.Close()
			return nil, err
		}
		out.closers = append(out.closers, client.Close)
		ledger, err := redisstore.NewDedupLedger(client, cfg.Redis.KeyPrefix, cfg.Dedup.Retention)
		if err != nil {
			out.Close()
			return nil, err
		}
		out.options = append(out.options, identitysync.WithDedupLedger(ledger))
	}
	return out, nil
}

// openPersistence opens the configured database, registers the embedded
// migrations for its dialect and applies them.
func openPersistence(ctx context.Context, cfg core.Config) (*persistence.Client, error) {
	dialect, err := migrations.DialectForDriver(cfg.Store.Driver)
	if err != nil {
		return nil, err
	}
	sqlDriver, bunDialect := "postgres", schema.Dialect(pgdialect.New())
	if dialect == migrations.DialectSQLite {
		sqlDriver, bunDialect = "sqlite3", sqlitedialect.New()
	}

	sqlDB, err := sql.Open(sqlDriver, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("identity-syncd: open %s: %w", sqlDriver, err)
	}
	if dialect == migrations.DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{
		driver:  sqlDriver,
		server:  cfg.Store.DSN,
		service: cfg.ServiceName,
	}, sqlDB, bunDialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("identity-syncd: persistence client: %w", err)
	}

	err = migrations.Apply(ctx, dialect, func(fsys fs.FS) {
		client.RegisterSQLMigrations(fsys)
	}, client.Migrate)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
