package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	identitysync "github.com/goliatone/go-identity-sync"
	_ "github.com/mattn/go-sqlite3"
)

func TestFilesystems_ReturnsPostgresAndSQLite(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}

	var postgresFound bool
	var sqliteFound bool
	for _, entry := range filesystems {
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob %s: %v", entry.Dialect, globErr)
		}
		if len(matches) == 0 {
			t.Fatalf("expected %s migration files, got none", entry.Dialect)
		}
		switch entry.Dialect {
		case DialectPostgres:
			postgresFound = true
		case DialectSQLite:
			sqliteFound = true
		}
	}

	if !postgresFound {
		t.Fatalf("expected postgres filesystem")
	}
	if !sqliteFound {
		t.Fatalf("expected sqlite filesystem")
	}
}

func TestFilesystems_RejectsTreeWithoutMigrations(t *testing.T) {
	_, err := Filesystems(fstest.MapFS{
		"README.md": &fstest.MapFile{Data: []byte("nothing here")},
	})
	if err == nil {
		t.Fatalf("expected error for a tree without migrations")
	}
}

func TestRegister_FiltersDialects(t *testing.T) {
	var calls []string
	var label string
	_, err := Register(context.Background(), func(_ context.Context, dialect string, sourceLabel string, _ fs.FS) error {
		calls = append(calls, dialect)
		label = sourceLabel
		return nil
	}, WithDialects(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if len(calls) != 1 {
		t.Fatalf("expected 1 registration call, got %d", len(calls))
	}
	if calls[0] != DialectSQLite {
		t.Fatalf("expected sqlite registration, got %q", calls[0])
	}
	if label != DefaultSourceLabel {
		t.Fatalf("expected default source label, got %q", label)
	}
}

func TestRegister_RequiresRegisterFunc(t *testing.T) {
	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected error without register function")
	}
}

func TestRegister_UnknownDialectFails(t *testing.T) {
	_, err := Register(context.Background(), func(context.Context, string, string, fs.FS) error {
		return nil
	}, WithDialects("mysql"))
	if err == nil {
		t.Fatalf("expected an unmatched dialect to fail")
	}
}

func TestDialectForDriver(t *testing.T) {
	cases := map[string]string{
		"sqlite":   DialectSQLite,
		"sqlite3":  DialectSQLite,
		"postgres": DialectPostgres,
		" PG ":     DialectPostgres,
	}
	for driver, want := range cases {
		got, err := DialectForDriver(driver)
		if err != nil || got != want {
			t.Fatalf("driver %q: expected %q, got %q (%v)", driver, want, got, err)
		}
	}
	if _, err := DialectForDriver("memory"); err == nil {
		t.Fatalf("expected memory driver to have no dialect")
	}
}

func TestApply_RegistersOneDialectThenMigrates(t *testing.T) {
	var registered []fs.FS
	migrated := false
	err := Apply(context.Background(), DialectSQLite, func(fsys fs.FS) {
		registered = append(registered, fsys)
	}, func(context.Context) error {
		if len(registered) != 1 {
			t.Fatalf("expected migrate to run after registration, got %d filesystems", len(registered))
		}
		migrated = true
		return nil
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !migrated {
		t.Fatalf("expected migrate to run")
	}
	if _, err := fs.ReadFile(registered[0], "00001_identity_users.up.sql"); err != nil {
		t.Fatalf("expected sqlite schema to be registered: %v", err)
	}
}

func TestApply_RequiresCallbacks(t *testing.T) {
	if err := Apply(context.Background(), DialectSQLite, nil, nil); err == nil {
		t.Fatalf("expected missing callbacks to fail")
	}
}

func TestIdentityMigrationPairs_ExistForBothDialects(t *testing.T) {
	root := identitysync.GetMigrationsFS()
	names := []string{
		"00001_identity_users",
		"00002_identity_applied_events",
	}
	for _, name := range names {
		for _, dir := range []string{"data/sql/migrations", "data/sql/migrations/sqlite"} {
			for _, suffix := range []string{".up.sql", ".down.sql"} {
				migrationPath := dir + "/" + name + suffix
				content, err := fs.ReadFile(root, migrationPath)
				if err != nil {
					t.Fatalf("read migration %s: %v", migrationPath, err)
				}
				if strings.TrimSpace(string(content)) == "" {
					t.Fatalf("expected migration %s to have SQL content", migrationPath)
				}
			}
		}
	}
}

func TestSQLiteIdentityUsersMigration_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-identity-users?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	sqliteMigrations, err := fs.Sub(identitysync.GetMigrationsFS(), "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}
	if err := execSQLMigration(context.Background(), db, sqliteMigrations, "00001_identity_users.up.sql"); err != nil {
		t.Fatalf("apply users migration up: %v", err)
	}

	insertStatement := `INSERT INTO identity_users (id, external_id, attributes, role, version) VALUES (?, ?, ?, ?, ?)`
	if _, err := db.ExecContext(context.Background(), insertStatement, "row-1", "user_1", "{}", "user", 1); err != nil {
		t.Fatalf("insert first row: %v", err)
	}
	if _, err := db.ExecContext(context.Background(), insertStatement, "row-2", "user_1", "{}", "user", 2); err == nil {
		t.Fatalf("expected unique external_id violation")
	}

	if err := execSQLMigration(context.Background(), db, sqliteMigrations, "00001_identity_users.down.sql"); err != nil {
		t.Fatalf("apply users migration down: %v", err)
	}
	var count int
	if err := db.QueryRowContext(
		context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`,
		"identity_users",
	).Scan(&count); err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected identity_users to be dropped after down migration")
	}
}

func TestSQLiteAppliedEventsMigration_EnforcesUniqueEventID(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-applied-events?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	sqliteMigrations, err := fs.Sub(identitysync.GetMigrationsFS(), "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}
	if err := execSQLMigration(context.Background(), db, sqliteMigrations, "00002_identity_applied_events.up.sql"); err != nil {
		t.Fatalf("apply applied events migration up: %v", err)
	}

	insertStatement := `INSERT INTO identity_applied_events (id, event_id, applied_at, expires_at) VALUES (?, ?, ?, ?)`
	args := []any{"row-1", "msg_1", "2026-01-01T00:00:00Z", "2026-01-02T00:00:00Z"}
	if _, err := db.ExecContext(context.Background(), insertStatement, args...); err != nil {
		t.Fatalf("insert first row: %v", err)
	}
	args[0] = "row-2"
	if _, err := db.ExecContext(context.Background(), insertStatement, args...); err == nil {
		t.Fatalf("expected unique event_id violation")
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
