package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Tyrowin/goircd/internal/irc"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS channel_state (
	name  TEXT PRIMARY KEY,
	topic TEXT NOT NULL DEFAULT '',
	key   TEXT
)`

// SQLiteStore keeps channel state in a single SQLite database.
type SQLiteStore struct {
	sqlDB *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, channel string) (ChannelState, error) {
	var (
		st  ChannelState
		key sql.NullString
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT topic, key FROM channel_state WHERE name = ?`,
		irc.Fold(channel),
	).Scan(&st.Topic, &key)
	if errors.Is(err, sql.ErrNoRows) {
		return ChannelState{}, nil
	}
	if err != nil {
		return ChannelState{}, fmt.Errorf("load channel state: %w", err)
	}
	st.Key = key.String
	return st, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, channel string, st ChannelState) error {
	var key sql.NullString
	if st.Key != "" {
		key = sql.NullString{String: st.Key, Valid: true}
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO channel_state (name, topic, key) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET topic = excluded.topic, key = excluded.key`,
		irc.Fold(channel), st.Topic, key,
	)
	if err != nil {
		return fmt.Errorf("save channel state: %w", err)
	}
	return nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}
