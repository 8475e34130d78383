package clientstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = &SQLiteStore{}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite client store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("sqlite client store: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS client_kv (
		  key TEXT PRIMARY KEY,
		  value TEXT NOT NULL,
		  updated_at_ms INTEGER NOT NULL
		);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite client store: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, errors.New("sqlite client store: db is nil")
	}
	if key == "" {
		return "", false, errors.New("sqlite client store: key is empty")
	}
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM client_kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "sqlite client store: get")
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite client store: db is nil")
	}
	if key == "" {
		return errors.New("sqlite client store: key is empty")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_kv (key, value, updated_at_ms) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at_ms = excluded.updated_at_ms
	`, key, value, time.Now().UnixMilli())
	if err != nil {
		return errors.Wrap(err, "sqlite client store: set")
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, keys ...string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite client store: db is nil")
	}
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlite client store: begin delete")
	}
	defer func() { _ = tx.Rollback() }()
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM client_kv WHERE key = ?`, key); err != nil {
			return errors.Wrap(err, "sqlite client store: delete")
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "sqlite client store: commit delete")
	}
	return nil
}

func (s *SQLiteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite client store: db is nil")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM client_kv WHERE substr(key, 1, ?) = ? ORDER BY key ASC`, len(prefix), prefix)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite client store: keys")
	}
	defer func() { _ = rows.Close() }()

	out := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, errors.Wrap(err, "sqlite client store: scan key")
		}
		out = append(out, key)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite client store: iterate keys")
	}
	return out, nil
}

// SQLiteDSNForFile builds a DSN for a file-backed store with WAL and a busy timeout.
func SQLiteDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite client store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}
