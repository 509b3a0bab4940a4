package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"time"

	_ "modernc.org/sqlite"

	"github.com/animus-labs/freezer/internal/domain"
)

// SQLiteStore keeps records in an embedded database keyed by directory path.
// Records are stored in the same encoding as FileStore so validation is shared.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func OpenSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite dsn is required")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open state db %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS frozen_records (
		dir TEXT PRIMARY KEY,
		record TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create frozen_records: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context, dir string) (domain.Record, error) {
	if s == nil || s.db == nil {
		return domain.Record{}, errors.New("sqlite store not initialized")
	}
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT record FROM frozen_records WHERE dir = ?", path.Clean(dir)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Record{}, ErrNotFound
	}
	if err != nil {
		return domain.Record{}, fmt.Errorf("select record: %w", err)
	}
	return Unmarshal([]byte(raw))
}

func (s *SQLiteStore) Save(ctx context.Context, dir string, rec domain.Record) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite store not initialized")
	}
	raw, err := Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO frozen_records (dir, record, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(dir) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at`,
		path.Clean(dir), string(raw), s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}
