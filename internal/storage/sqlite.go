package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"petreminder/pkg/logx"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("storage.opened", logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context, owner uuid.UUID) (*Snapshot, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	var (
		body     string
		paused   bool
		pausedAt sql.NullString
		savedAt  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT reminders, paused, paused_at, saved_at FROM snapshots WHERE owner = ?`, owner.String(),
	).Scan(&body, &paused, &pausedAt, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, owner)
	}
	if err != nil {
		return nil, err
	}
	rs, err := decodeReminders([]byte(body))
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Owner: owner, Reminders: rs, Paused: paused}
	if snap.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt); err != nil {
		return nil, fmt.Errorf("saved_at: %w", err)
	}
	if pausedAt.Valid {
		if snap.PausedAt, err = time.Parse(time.RFC3339Nano, pausedAt.String); err != nil {
			return nil, fmt.Errorf("paused_at: %w", err)
		}
	}
	return snap, nil
}

func (s *sqliteStore) Save(ctx context.Context, snap *Snapshot) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if err := validSnapshot(snap); err != nil {
		return err
	}
	body, err := encodeReminders(snap.Reminders)
	if err != nil {
		return err
	}
	var pausedAt any
	if !snap.PausedAt.IsZero() {
		pausedAt = snap.PausedAt.Format(time.RFC3339Nano)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots(owner, reminders, paused, paused_at, saved_at) VALUES(?,?,?,?,?)
		 ON CONFLICT(owner) DO UPDATE SET reminders=excluded.reminders, paused=excluded.paused,
		 paused_at=excluded.paused_at, saved_at=excluded.saved_at`,
		snap.Owner.String(), string(body), snap.Paused, pausedAt, snap.SavedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) Owners(ctx context.Context) ([]uuid.UUID, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, `SELECT owner FROM snapshots ORDER BY owner`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			s.log.Warn("storage.bad_owner", logx.String("owner", raw))
			continue
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AppendHistory(ctx context.Context, e HistoryEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history(at, owner, reminder, event, detail) VALUES(?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.Owner.String(), nullUUID(e.Reminder), e.Event, nullStr(e.Detail),
	)
	return err
}

func (s *sqliteStore) History(ctx context.Context, owner uuid.UUID, limit int) ([]HistoryEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, reminder, event, detail FROM
		   (SELECT id, at, reminder, event, detail FROM history WHERE owner = ? ORDER BY id DESC LIMIT ?)
		 ORDER BY id ASC`,
		owner.String(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HistoryEntry
	for rows.Next() {
		var (
			at     string
			rem    sql.NullString
			event  string
			detail sql.NullString
		)
		if err := rows.Scan(&at, &rem, &event, &detail); err != nil {
			return nil, err
		}
		e := HistoryEntry{Owner: owner, Event: event, Detail: detail.String}
		if e.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, err
		}
		if rem.Valid {
			e.Reminder, _ = uuid.Parse(rem.String)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id.String()
}
