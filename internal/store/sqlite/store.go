// Package sqlite provides a SQLite-backed command store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperifyio/cmdbot/internal/store"
	"github.com/hyperifyio/cmdbot/internal/store/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists command records in a single SQLite table.
type Store struct {
	sqlDB *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens and migrates the SQLite database at path. The special path
// ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := ":memory:"
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// Each new connection to :memory: is a fresh database.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// FindAll returns every stored record ordered by name.
func (s *Store) FindAll(ctx context.Context) ([]store.Record, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT name, script, template, description, updated_at FROM commands ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("find all commands: %w", err)
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		var rec store.Record
		var updated int64
		if err := rows.Scan(&rec.Name, &rec.Script, &rec.Template, &rec.Description, &updated); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		rec.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commands: %w", err)
	}
	return out, nil
}

// FindByKey loads a single record by name.
func (s *Store) FindByKey(ctx context.Context, name string) (store.Record, bool, error) {
	if s == nil || s.sqlDB == nil {
		return store.Record{}, false, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT name, script, template, description, updated_at FROM commands WHERE name = ?`, name)

	var rec store.Record
	var updated int64
	if err := row.Scan(&rec.Name, &rec.Script, &rec.Template, &rec.Description, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Record{}, false, nil
		}
		return store.Record{}, false, fmt.Errorf("find command: %w", err)
	}
	rec.UpdatedAt = time.UnixMilli(updated).UTC()
	return rec, true, nil
}

// Upsert inserts or replaces a record by name.
func (s *Store) Upsert(ctx context.Context, rec store.Record) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	rec.Name = strings.TrimSpace(rec.Name)
	if rec.Name == "" {
		return store.ErrNameRequired
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO commands (name, script, template, description, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		    script = excluded.script,
		    template = excluded.template,
		    description = excluded.description,
		    updated_at = excluded.updated_at`,
		rec.Name, rec.Script, rec.Template, rec.Description, rec.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert command: %w", err)
	}
	return nil
}

// Delete removes a record by name.
func (s *Store) Delete(ctx context.Context, name string) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM commands WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete command: %w", err)
	}
	return nil
}
