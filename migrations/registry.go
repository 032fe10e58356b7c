// Package migrations exposes the embedded identity schema per SQL dialect
// and applies it through go-persistence-bun style clients.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	identitysync "github.com/goliatone/go-identity-sync"
	"github.com/goliatone/go-identity-sync/core"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	DefaultSourceLabel = "go-identity-sync"
	migrationsDir      = "data/sql/migrations"
)

// dialectDirs lists each dialect's directory relative to the migrations root.
var dialectDirs = []struct {
	dialect string
	dir     string
}{
	{dialect: DialectPostgres, dir: "."},
	{dialect: DialectSQLite, dir: "sqlite"},
}

type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type Registration struct {
	SourceLabel string
	Dialects    []string
	Filesystems []FilesystemSpec
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithSourceLabel(label string) Option {
	return func(r *Registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.SourceLabel = trimmed
		}
	}
}

// WithDialects restricts registration to the given dialects.
func WithDialects(dialects ...string) Option {
	return func(r *Registration) {
		if next := normalizeDialects(dialects); len(next) > 0 {
			r.Dialects = next
		}
	}
}

func WithFilesystems(filesystems ...FilesystemSpec) Option {
	return func(r *Registration) {
		copied := make([]FilesystemSpec, 0, len(filesystems))
		for _, fsys := range filesystems {
			dialect := strings.TrimSpace(strings.ToLower(fsys.Dialect))
			if dialect == "" || fsys.FS == nil {
				continue
			}
			copied = append(copied, FilesystemSpec{Dialect: dialect, Path: fsys.Path, FS: fsys.FS})
		}
		if len(copied) > 0 {
			r.Filesystems = copied
		}
	}
}

// DialectForDriver maps a store.driver value onto its migration dialect.
func DialectForDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case core.StoreDriverSQLite, "sqlite3":
		return DialectSQLite, nil
	case core.StoreDriverPostgres, "pg", "postgresql":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("migrations: store driver %q has no sql dialect", driver)
	}
}

// Filesystems splits a migration tree into one filesystem per dialect. The
// embedded identity schema is used when no source is given.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	root := identitysync.GetMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}
	base, basePath, err := migrationsRoot(root)
	if err != nil {
		return nil, err
	}

	filesystems := make([]FilesystemSpec, 0, len(dialectDirs))
	for _, entry := range dialectDirs {
		dialectFS, path := base, basePath
		if entry.dir != "." {
			if dialectFS, err = fs.Sub(base, entry.dir); err != nil {
				return nil, fmt.Errorf("migrations: resolve %s filesystem: %w", entry.dialect, err)
			}
			path = pathJoin(basePath, entry.dir)
		}
		matches, err := fs.Glob(dialectFS, "*.up.sql")
		if err != nil {
			return nil, fmt.Errorf("migrations: glob %s %s: %w", entry.dialect, path, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", entry.dialect, path)
		}
		filesystems = append(filesystems, FilesystemSpec{Dialect: entry.dialect, Path: path, FS: dialectFS})
	}
	return filesystems, nil
}

// Register hands every selected dialect filesystem to registerFn.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel: DefaultSourceLabel,
		Dialects:    []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}
	if len(reg.Filesystems) == 0 {
		filesystems, err := Filesystems()
		if err != nil {
			return reg, err
		}
		reg.Filesystems = filesystems
	}

	registered := 0
	for _, fsys := range reg.Filesystems {
		if !slices.Contains(reg.Dialects, fsys.Dialect) {
			continue
		}
		if err := registerFn(ctx, fsys.Dialect, reg.SourceLabel, fsys.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", fsys.Dialect, fsys.Path, err)
		}
		registered++
	}
	if registered == 0 {
		return reg, fmt.Errorf("migrations: no filesystem matches dialects %v", reg.Dialects)
	}
	return reg, nil
}

// Apply registers the schema for one dialect and runs migrate. register is
// usually persistence.Client.RegisterSQLMigrations, migrate its Migrate.
func Apply(ctx context.Context, dialect string, register func(fs.FS), migrate func(context.Context) error) error {
	if register == nil || migrate == nil {
		return fmt.Errorf("migrations: register and migrate functions are required")
	}
	_, err := Register(ctx, func(_ context.Context, _ string, _ string, fsys fs.FS) error {
		register(fsys)
		return nil
	}, WithDialects(dialect))
	if err != nil {
		return err
	}
	if err := migrate(ctx); err != nil {
		return fmt.Errorf("migrations: migrate %s: %w", dialect, err)
	}
	return nil
}

func migrationsRoot(root fs.FS) (fs.FS, string, error) {
	sub, err := fs.Sub(root, migrationsDir)
	if err == nil {
		if _, statErr := fs.Stat(sub, "."); statErr == nil {
			return sub, migrationsDir, nil
		}
	}
	matches, globErr := fs.Glob(root, "*.sql")
	if globErr == nil && len(matches) > 0 {
		return root, ".", nil
	}
	return nil, "", fmt.Errorf("migrations: %s not found", migrationsDir)
}

func normalizeDialects(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(strings.ToLower(value))
		if trimmed == "" || slices.Contains(out, trimmed) {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func pathJoin(base string, suffix string) string {
	if base == "." {
		return suffix
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(suffix, "/")
}
