package journal

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SessionRecord is one journaled connection.
type SessionRecord struct {
	ID           string
	Path         string
	Remote       string
	OpenedAt     time.Time
	ClosedAt     time.Time
	CloseCode    int
	CloseReason  string
	TextFrames   int64
	BinaryFrames int64
	BytesIn      int64
}

// Open reports whether the session has no close recorded yet.
func (r SessionRecord) Open() bool { return r.ClosedAt.IsZero() }

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite journal: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// one writer goroutine; a single connection also keeps :memory: coherent
	db.SetMaxOpenConns(1)
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
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT NOT NULL PRIMARY KEY,
			path TEXT NOT NULL,
			remote TEXT NOT NULL DEFAULT '',
			opened_at_ms INTEGER NOT NULL,
			closed_at_ms INTEGER NOT NULL DEFAULT 0,
			close_code INTEGER NOT NULL DEFAULT 0,
			close_reason TEXT NOT NULL DEFAULT '',
			text_frames INTEGER NOT NULL DEFAULT 0,
			binary_frames INTEGER NOT NULL DEFAULT 0,
			bytes_in INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS sessions_by_path ON sessions(path, opened_at_ms DESC);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite journal: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) RecordOpen(ctx context.Context, r SessionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, path, remote, opened_at_ms) VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET path = excluded.path, remote = excluded.remote, opened_at_ms = excluded.opened_at_ms`,
		r.ID, r.Path, r.Remote, r.OpenedAt.UnixMilli())
	return errors.Wrap(err, "sqlite journal: record open")
}

// RecordClose stores the close status and the final frame counters.
func (s *SQLiteStore) RecordClose(ctx context.Context, r SessionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET closed_at_ms = ?, close_code = ?, close_reason = ?,
		   text_frames = ?, binary_frames = ?, bytes_in = ?
		 WHERE session_id = ?`,
		r.ClosedAt.UnixMilli(), r.CloseCode, r.CloseReason,
		r.TextFrames, r.BinaryFrames, r.BytesIn, r.ID)
	return errors.Wrap(err, "sqlite journal: record close")
}

const selectColumns = `session_id, path, remote, opened_at_ms, closed_at_ms, close_code, close_reason, text_frames, binary_frames, bytes_in`

func (s *SQLiteStore) Get(ctx context.Context, id string) (SessionRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM sessions WHERE session_id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, false, nil
	}
	if err != nil {
		return SessionRecord{}, false, errors.Wrap(err, "sqlite journal: get")
	}
	return r, true, nil
}

// List returns the most recently opened sessions, newest first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM sessions ORDER BY opened_at_ms DESC, session_id LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite journal: list")
	}
	defer func() { _ = rows.Close() }()

	var out []SessionRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, "sqlite journal: scan")
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "sqlite journal: list")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (SessionRecord, error) {
	var r SessionRecord
	var openedMs, closedMs int64
	if err := sc.Scan(&r.ID, &r.Path, &r.Remote, &openedMs, &closedMs, &r.CloseCode, &r.CloseReason,
		&r.TextFrames, &r.BinaryFrames, &r.BytesIn); err != nil {
		return SessionRecord{}, err
	}
	r.OpenedAt = time.UnixMilli(openedMs)
	if closedMs > 0 {
		r.ClosedAt = time.UnixMilli(closedMs)
	}
	return r, nil
}
