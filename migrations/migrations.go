// Package migrations holds the postgres schema of the ledger tables and a
// runner that applies it in order.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

//go:embed *.sql
var files embed.FS

// Migration represents a database migration
type Migration struct {
	ID       int
	Filename string
	Content  string
}

// Load returns the embedded migrations sorted by ID.
// File names start with the ID, e.g. "001_ledger_tables.sql".
func Load() ([]Migration, error) {
	return load(files)
}

func load(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		id, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}
		if other, dup := seen[id]; dup {
			return nil, fmt.Errorf("migrations %s and %s share id %d", other, name, id)
		}
		seen[id] = name

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", name, err)
		}
		migrations = append(migrations, Migration{ID: id, Filename: name, Content: string(content)})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].ID < migrations[j].ID
	})
	return migrations, nil
}

// Runner applies pending migrations to a postgres database.
type Runner struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewRunner(db *sql.DB, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{db: db, logger: logger}
}

// Up runs every migration newer than the recorded version and returns how many ran.
func (r *Runner) Up(ctx context.Context, migrations []Migration) (int, error) {
	if err := r.createMigrationsTable(ctx); err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}
	current, err := r.CurrentVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		if m.ID <= current {
			continue
		}
		r.logger.Info("running migration", zap.Int("id", m.ID), zap.String("file", m.Filename))
		if err := r.run(ctx, m); err != nil {
			return applied, fmt.Errorf("migration %d (%s): %w", m.ID, m.Filename, err)
		}
		applied++
	}
	return applied, nil
}

func (r *Runner) createMigrationsTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			filename VARCHAR(255) NOT NULL,
			executed_at TIMESTAMP DEFAULT NOW()
		)
	`)
	return err
}

// CurrentVersion returns the highest applied migration ID, 0 when none ran.
func (r *Runner) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := r.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

func (r *Runner) run(ctx context.Context, m Migration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.Content); err != nil {
		return fmt.Errorf("failed to execute migration: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, filename) VALUES ($1, $2)",
		m.ID, m.Filename,
	); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}
