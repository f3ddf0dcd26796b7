package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"action-limiter/actionlimit/domain"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS action_history (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStore persiste o histórico num arquivo SQLite local ao device.
//
// Update usa BEGIN IMMEDIATE (_txlock=immediate), então dois processos no
// mesmo device não perdem atualizações um do outro.
type SQLiteStore struct {
	db    *sql.DB
	clock domain.Clock
}

// OpenSQLiteStore abre (ou cria) o banco em path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// um único writer evita SQLITE_BUSY dentro do mesmo processo
	db.SetMaxOpenConns(1)

	s, err := NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore usa um *sql.DB já aberto e garante o schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("create action_history schema: %w", err)
	}
	return &SQLiteStore{db: db, clock: time.Now}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Load(ctx context.Context, key string) (domain.History, error) {
	return s.load(ctx, s.db, key)
}

func (s *SQLiteStore) Save(ctx context.Context, key string, h domain.History) error {
	return s.save(ctx, s.db, key, h)
}

// Update implementa domain.AtomicHistoryStore.
func (s *SQLiteStore) Update(ctx context.Context, key string, fn domain.UpdateFunc) (domain.History, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %w", domain.ErrHistoryWrite, err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := s.load(ctx, tx, key)
	if err != nil {
		return nil, err
	}
	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, tx, key, next); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %w", domain.ErrHistoryWrite, err)
	}
	return next, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) load(ctx context.Context, q querier, key string) (domain.History, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT value FROM action_history WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.History{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrHistoryRead, key, err)
	}
	return decodeHistory(raw)
}

func (s *SQLiteStore) save(ctx context.Context, q querier, key string, h domain.History) error {
	raw, err := encodeHistory(h)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", domain.ErrHistoryWrite, key, err)
	}
	_, err = q.ExecContext(ctx, `
INSERT INTO action_history (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, raw, s.clock().UnixMilli())
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrHistoryWrite, key, err)
	}
	return nil
}

var _ domain.AtomicHistoryStore = (*SQLiteStore)(nil)
