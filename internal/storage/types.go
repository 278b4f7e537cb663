package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"petreminder/internal/reminder"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("snapshot not found")
)

type Config struct {
	Driver      string
	Path        string        // file: directory, sqlite: database file
	DSN         string        // postgres only
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Snapshot is one owner's persisted state.
type Snapshot struct {
	Owner     uuid.UUID
	Reminders []*reminder.Reminder
	Paused    bool
	PausedAt  time.Time
	SavedAt   time.Time
}

// HistoryEntry records an alarm lifecycle event such as a fire or an
// acknowledgement. Keep it compact and schema-stable.
type HistoryEntry struct {
	At       time.Time `json:"at"`
	Owner    uuid.UUID `json:"owner"`
	Reminder uuid.UUID `json:"reminder,omitempty"`
	Event    string    `json:"event"`
	Detail   string    `json:"detail,omitempty"`
}

type Store interface {
	// Load returns ErrNotFound for an owner that was never saved.
	Load(ctx context.Context, owner uuid.UUID) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	Owners(ctx context.Context) ([]uuid.UUID, error)
	AppendHistory(ctx context.Context, e HistoryEntry) error
	// History returns up to limit most recent entries, oldest first.
	History(ctx context.Context, owner uuid.UUID, limit int) ([]HistoryEntry, error)
	Close() error
}

type wireSnapshot struct {
	Owner     uuid.UUID            `json:"owner"`
	Reminders []*reminder.Reminder `json:"reminders"`
	Paused    bool                 `json:"paused"`
	PausedAt  *time.Time           `json:"paused_at,omitempty"`
	SavedAt   time.Time            `json:"saved_at"`
}

func encodeSnapshot(s *Snapshot) ([]byte, error) {
	w := wireSnapshot{Owner: s.Owner, Reminders: s.Reminders, Paused: s.Paused, SavedAt: s.SavedAt}
	if w.Reminders == nil {
		w.Reminders = []*reminder.Reminder{}
	}
	if !s.PausedAt.IsZero() {
		at := s.PausedAt
		w.PausedAt = &at
	}
	return json.Marshal(w)
}

func decodeSnapshot(b []byte) (*Snapshot, error) {
	var w wireSnapshot
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	s := &Snapshot{Owner: w.Owner, Reminders: w.Reminders, Paused: w.Paused, SavedAt: w.SavedAt}
	if w.PausedAt != nil {
		s.PausedAt = *w.PausedAt
	}
	return s, nil
}

func encodeReminders(rs []*reminder.Reminder) ([]byte, error) {
	if rs == nil {
		rs = []*reminder.Reminder{}
	}
	return json.Marshal(rs)
}

func decodeReminders(b []byte) ([]*reminder.Reminder, error) {
	var rs []*reminder.Reminder
	if err := json.Unmarshal(b, &rs); err != nil {
		return nil, fmt.Errorf("decode reminders: %w", err)
	}
	return rs, nil
}

func validSnapshot(s *Snapshot) error {
	if s == nil {
		return errors.New("nil snapshot")
	}
	if s.Owner == uuid.Nil {
		return errors.New("snapshot owner is required")
	}
	return nil
}
