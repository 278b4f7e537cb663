package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"petreminder/pkg/logx"
)

//go:embed postgres_schema.sql
var postgresSchema string

type pgStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	log.Debug("storage.opened")
	return &pgStore{pool: pool, log: log}, nil
}

func (s *pgStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *pgStore) Load(ctx context.Context, owner uuid.UUID) (*Snapshot, error) {
	if s == nil || s.pool == nil {
		return nil, ErrDisabled
	}
	var (
		body     []byte
		paused   bool
		pausedAt pgtype.Timestamptz
		snap     = &Snapshot{Owner: owner}
	)
	err := s.pool.QueryRow(ctx,
		`SELECT reminders, paused, paused_at, saved_at FROM reminder_snapshots WHERE owner = $1`, owner.String(),
	).Scan(&body, &paused, &pausedAt, &snap.SavedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, owner)
	}
	if err != nil {
		return nil, err
	}
	if snap.Reminders, err = decodeReminders(body); err != nil {
		return nil, err
	}
	snap.Paused = paused
	if pausedAt.Valid {
		snap.PausedAt = pausedAt.Time
	}
	return snap, nil
}

func (s *pgStore) Save(ctx context.Context, snap *Snapshot) error {
	if s == nil || s.pool == nil {
		return ErrDisabled
	}
	if err := validSnapshot(snap); err != nil {
		return err
	}
	body, err := encodeReminders(snap.Reminders)
	if err != nil {
		return err
	}
	pausedAt := pgtype.Timestamptz{Time: snap.PausedAt, Valid: !snap.PausedAt.IsZero()}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO reminder_snapshots(owner, reminders, paused, paused_at, saved_at)
VALUES($1, $2, $3, $4, $5)
ON CONFLICT (owner) DO UPDATE SET reminders = EXCLUDED.reminders, paused = EXCLUDED.paused,
paused_at = EXCLUDED.paused_at, saved_at = EXCLUDED.saved_at`,
		snap.Owner.String(), body, snap.Paused, pausedAt, snap.SavedAt,
	)
	return err
}

func (s *pgStore) Owners(ctx context.Context) ([]uuid.UUID, error) {
	if s == nil || s.pool == nil {
		return nil, ErrDisabled
	}
	rows, err := s.pool.Query(ctx, `SELECT owner::text FROM reminder_snapshots ORDER BY owner`)
	if err != nil {
		return nil, err
	}
	raw, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			s.log.Warn("storage.bad_owner", logx.String("owner", r))
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *pgStore) AppendHistory(ctx context.Context, e HistoryEntry) error {
	if s == nil || s.pool == nil {
		return ErrDisabled
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO alarm_history(at, owner, reminder, event, detail) VALUES($1, $2, $3, $4, $5)`,
		e.At, e.Owner.String(), nullUUID(e.Reminder), e.Event, nullStr(e.Detail),
	)
	return err
}

func (s *pgStore) History(ctx context.Context, owner uuid.UUID, limit int) ([]HistoryEntry, error) {
	if s == nil || s.pool == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT at, reminder::text, event, detail FROM
  (SELECT id, at, reminder, event, detail FROM alarm_history WHERE owner = $1 ORDER BY id DESC LIMIT $2) recent
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
			e      = HistoryEntry{Owner: owner}
			rem    pgtype.Text
			detail pgtype.Text
		)
		if err := rows.Scan(&e.At, &rem, &e.Event, &detail); err != nil {
			return nil, err
		}
		if rem.Valid {
			e.Reminder, _ = uuid.Parse(rem.String)
		}
		e.Detail = detail.String
		out = append(out, e)
	}
	return out, rows.Err()
}
