// Package database applies plain .up.sql schema migrations at startup.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// The migrator's advisory lock lives under its own classid so it can never
// contend with the ledger's per-user locks (class 1), whatever ids users get.
const (
	migrationLockClass = 2
	migrationLockID    = 7420310
)

// Migrator executes *.up.sql files in lexical order. Applied files are
// recorded in schema_migrations and skipped on subsequent boots, so the
// directory is append-only: never edit a shipped file, add a new one.
type Migrator struct {
	db  *sql.DB
	log *slog.Logger
}

func NewMigrator(db *sql.DB, log *slog.Logger) *Migrator {
	if log == nil {
		log = slog.Default()
	}

	return &Migrator{db: db, log: log}
}

// ApplyDir runs every pending migration in dir inside its own transaction.
// The whole pass holds an advisory lock so only one instance migrates.
func (m *Migrator) ApplyDir(ctx context.Context, dir string) error {
	names, err := upMigrations(dir)
	if err != nil {
		return err
	}

	log := m.log.With(slog.String("dir", dir))
	if len(names) == 0 {
		log.Info("no migrations found")
		return nil
	}

	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx,
		"SELECT pg_advisory_lock($1::int, $2::int)",
		migrationLockClass, migrationLockID); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(ctx,
			"SELECT pg_advisory_unlock($1::int, $2::int)",
			migrationLockClass, migrationLockID); err != nil {
			log.Error("release migration lock", slog.Any("error", err))
		}
	}()

	if _, err := conn.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied, err := m.appliedSet(ctx, conn)
	if err != nil {
		return err
	}

	ran := 0
	for _, name := range names {
		if applied[name] {
			continue
		}

		if err := m.apply(ctx, conn, log, dir, name); err != nil {
			return err
		}
		ran++
	}

	log.Info("migrations up to date",
		slog.Int("applied", ran),
		slog.Int("total", len(names)))

	return nil
}

func (m *Migrator) appliedSet(ctx context.Context, conn *sql.Conn) (map[string]bool, error) {
	rows, err := conn.QueryContext(ctx, "SELECT name FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan schema_migrations row: %w", err)
		}
		applied[name] = true
	}

	return applied, rows.Err()
}

func (m *Migrator) apply(ctx context.Context, conn *sql.Conn, log *slog.Logger, dir, name string) error {
	path := filepath.Join(dir, name)

	// #nosec G304: migration paths come from the deployment image
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	stmt := strings.TrimSpace(string(body))
	if stmt == "" {
		log.Warn("skipping empty migration", slog.String("file", name))
		return nil
	}

	log.Info("applying migration", slog.String("file", name))

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		rollback(tx, log)
		return fmt.Errorf("execute migration %s: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (name) VALUES ($1)", name); err != nil {
		rollback(tx, log)
		return fmt.Errorf("record migration %s: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}

	return nil
}

func rollback(tx *sql.Tx, log *slog.Logger) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		log.Error("migration rollback failed", slog.Any("error", err))
	}
}

func upMigrations(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir %q: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		names = append(names, entry.Name())
	}

	sort.Strings(names)

	return names, nil
}
