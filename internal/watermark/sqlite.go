package watermark

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver registration.
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Fixed-width UTC layout, so stored values order lexically.
const timeLayout = "2006-01-02T15:04:05Z"

// SQLite stores the table in a SQLite database.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	return goose.Up(db, "migrations")
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load reads every stored watermark in insertion order.
func (s *SQLite) Load(ctx context.Context) (*Table, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, last_download_date FROM watermarks ORDER BY position, source`)
	if err != nil {
		return nil, fmt.Errorf("query watermarks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	t := NewTable()
	for rows.Next() {
		var source, date string
		if err := rows.Scan(&source, &date); err != nil {
			return nil, fmt.Errorf("scan watermark: %w", err)
		}
		ts, err := time.Parse(timeLayout, date)
		if err != nil {
			return nil, fmt.Errorf("parse watermark %s: %w", source, err)
		}
		t.put(source, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watermarks: %w", err)
	}
	return t, nil
}

// Save upserts every row of t. A stored date is never replaced by an
// earlier one.
func (s *SQLite) Save(ctx context.Context, t *Table) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	updated := s.now().UTC().Format(timeLayout)
	for i, source := range t.Sources() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO watermarks (source, last_download_date, position, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(source) DO UPDATE SET
				last_download_date = MAX(watermarks.last_download_date, excluded.last_download_date),
				position = excluded.position,
				updated_at = excluded.updated_at
		`, source, t.Get(source).UTC().Format(timeLayout), i, updated)
		if err != nil {
			return fmt.Errorf("upsert watermark %s: %w", source, err)
		}
	}
	return tx.Commit()
}
