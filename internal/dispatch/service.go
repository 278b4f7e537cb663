// Package dispatch turns due alarms into deliveries. Deliveries are rate
// limited, recorded in the alarm history and handed to a Sink. The daemon's
// sink writes to the log; a push or chat transport plugs in as another Sink.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmhodges/clock"
	"golang.org/x/time/rate"

	"petreminder/internal/reminder"
	"petreminder/internal/storage"
	"petreminder/pkg/logx"
)

const historySize = 200

type Config struct {
	RatePerSec float64
	Burst      int
}

// Alarm is one delivery.
type Alarm struct {
	Owner    uuid.UUID `json:"owner"`
	Reminder uuid.UUID `json:"reminder"`
	Action   string    `json:"action,omitempty"`
	Name     string    `json:"name,omitempty"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}

type Sink interface {
	Deliver(ctx context.Context, a Alarm) error
}

type SinkFunc func(ctx context.Context, a Alarm) error

func (f SinkFunc) Deliver(ctx context.Context, a Alarm) error { return f(ctx, a) }

// Lookup returns a copy of the reminder an alarm refers to.
type Lookup func(owner, id uuid.UUID) (*reminder.Reminder, bool)

type Options struct {
	Sink   Sink
	Lookup Lookup
	Store  storage.Store // optional
	Clock  clock.Clock
	Logger logx.Logger
}

// Service implements alarm.Dispatcher. It is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	sink   Sink
	lookup Lookup
	store  storage.Store
	clk    clock.Clock
	log    logx.Logger

	hmu     sync.Mutex
	history []Alarm
}

func New(cfg Config, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger.IsZero() {
		opts.Logger = logx.Nop()
	}
	log := opts.Logger.With(logx.String("comp", "dispatch"))
	if opts.Sink == nil {
		opts.Sink = LogSink{Log: log}
	}
	s := &Service{sink: opts.Sink, lookup: opts.Lookup, store: opts.Store, clk: opts.Clock, log: log}
	s.Apply(cfg)
	return s
}

// Apply swaps the rate limit. Waiters on the old limiter finish on it.
func (s *Service) Apply(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = max(1, int(cfg.RatePerSec))
	}
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)
	s.mu.Unlock()
}

func (s *Service) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Service) OnAlarmDue(ctx context.Context, owner, id uuid.UUID) error {
	s.mu.Lock()
	lim := s.limiter
	s.mu.Unlock()
	if err := lim.Wait(ctx); err != nil {
		s.log.Warn("dispatch.throttled", logx.Owner(owner), logx.Reminder(id), logx.Err(err))
		return fmt.Errorf("dispatch throttled: %w", err)
	}

	a := Alarm{Owner: owner, Reminder: id, At: s.clk.Now()}
	if s.lookup != nil {
		if r, ok := s.lookup(owner, id); ok {
			a.Action = string(r.Action())
			a.Name = r.DisplayName()
		}
	}

	err := s.sink.Deliver(ctx, a)
	event := "alarm.delivered"
	if err != nil {
		a.Error = err.Error()
		event = "alarm.delivery_failed"
	}
	s.remember(a)
	if s.store != nil {
		detail := a.Name
		if err != nil {
			detail = a.Error
		}
		herr := s.store.AppendHistory(ctx, storage.HistoryEntry{At: a.At, Owner: owner, Reminder: id, Event: event, Detail: detail})
		if herr != nil {
			s.log.Warn("dispatch.history_failed", logx.Reminder(id), logx.Err(herr))
		}
	}
	if err != nil {
		return fmt.Errorf("deliver alarm %s: %w", id, err)
	}
	return nil
}

func (s *Service) remember(a Alarm) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, a)
	if over := len(s.history) - historySize; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
}

// Recent returns up to n most recent deliveries for owner, newest first.
// uuid.Nil matches every owner.
func (s *Service) Recent(owner uuid.UUID, n int) []Alarm {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	out := make([]Alarm, 0, min(n, len(s.history)))
	for i := len(s.history) - 1; i >= 0 && len(out) < n; i-- {
		if owner == uuid.Nil || s.history[i].Owner == owner {
			out = append(out, s.history[i])
		}
	}
	return out
}

// LogSink records alarms in the log.
type LogSink struct {
	Log logx.Logger
}

func (l LogSink) Deliver(_ context.Context, a Alarm) error {
	l.Log.Info("alarm.due",
		logx.Owner(a.Owner),
		logx.Reminder(a.Reminder),
		logx.String("action", a.Action),
		logx.String("name", a.Name),
	)
	return nil
}
