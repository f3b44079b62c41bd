package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	// registers the "sqlite" driver
	_ "modernc.org/sqlite"
)

const sqlSchema = `CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at DATETIME NOT NULL
)`

// SQLBackend keeps values in a single sqlite table
type SQLBackend struct {
	db *sql.DB
}

// NewSQLBackend opens the sqlite database at dsn, e.g. "file:/var/lib/snippetserver/snippets.db"
// or ":memory:", and creates the table if needed.
func NewSQLBackend(ctx context.Context, dsn string) (*SQLBackend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sqlite database")
	}
	// sqlite allows a single writer, and ":memory:" databases are per connection
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqlSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to create kv table")
	}
	return &SQLBackend{db: db}, nil
}

func (b *SQLBackend) Read(ctx context.Context, key string, def []byte) ([]byte, error) {
	var value []byte
	err := b.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "failed to read key %q", key)
	}
	return value, nil
}

func (b *SQLBackend) Write(ctx context.Context, key string, value []byte) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to write key %q", key)
	}
	return nil
}

func (b *SQLBackend) Close() error {
	return b.db.Close()
}
