package storage

import (
	"context"
	"database/sql"
	"time"
	"unicode/utf8"

	_ "github.com/mattn/go-sqlite3"

	"github.com/saiset-co/sai-cache/types"
	"github.com/saiset-co/sai-cache/utils"
)

type SQLiteConfig struct {
	Path         string `json:"path"`
	QueryTimeout string `json:"query_timeout"`
}

type SQLiteStore struct {
	ctx          context.Context
	db           *sql.DB
	queryTimeout time.Duration
}

func NewSQLiteStore(ctx context.Context, config interface{}) (*SQLiteStore, error) {
	sqliteConfig := &SQLiteConfig{
		Path:         "./sai-cache.db",
		QueryTimeout: "5s",
	}

	if config != nil {
		if err := utils.UnmarshalConfig(config, sqliteConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal sqlite storage config")
		}
	}

	db, err := sql.Open("sqlite3", sqliteConfig.Path)
	if err != nil {
		return nil, types.WrapError(err, "failed to open SQLite database")
	}

	db.SetMaxOpenConns(1)

	store := &SQLiteStore{
		ctx:          ctx,
		db:           db,
		queryTimeout: parseDuration(sqliteConfig.QueryTimeout, 5*time.Second),
	}

	if err := store.initDatabase(); err != nil {
		_ = db.Close()
		return nil, types.WrapError(err, "failed to initialize database")
	}

	return store, nil
}

func (s *SQLiteStore) initDatabase() error {
	ctx, cancel := s.withTimeout()
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS cache_items (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`)
	return err
}

func (s *SQLiteStore) GetItem(key string) (string, bool, error) {
	ctx, cancel := s.withTimeout()
	defer cancel()

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM cache_items WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if types.IsError(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, types.WrapError(err, "failed to get item")
	}

	return value, true, nil
}

func (s *SQLiteStore) SetItem(key, value string) error {
	ctx, cancel := s.withTimeout()
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_items (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixNano())
	if err != nil {
		return types.WrapError(err, "failed to set item")
	}

	return nil
}

func (s *SQLiteStore) RemoveItem(key string) error {
	ctx, cancel := s.withTimeout()
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_items WHERE key = ?`, key); err != nil {
		return types.WrapError(err, "failed to delete item")
	}
	return nil
}

func (s *SQLiteStore) Keys(prefix string) ([]string, error) {
	ctx, cancel := s.withTimeout()
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM cache_items WHERE substr(key, 1, ?) = ? ORDER BY key`,
		utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return nil, types.WrapError(err, "failed to list keys")
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, types.WrapError(err, "failed to scan key")
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, types.WrapError(err, "failed to iterate keys")
	}

	return keys, nil
}

func (s *SQLiteStore) Ping() error {
	ctx, cancel := s.withTimeout()
	defer cancel()

	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return types.WrapError(err, "failed to close SQLite database")
	}
	return nil
}

func (s *SQLiteStore) withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.ctx, s.queryTimeout)
}
