// Package eventbus fans scheduling events out to in-process listeners such as
// the snapshot writer and the status API.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jmhodges/clock"
)

const (
	AlarmArmed      = "alarm.armed"
	AlarmCancelled  = "alarm.cancelled"
	AlarmFired      = "alarm.fired"
	AlarmUnskipped  = "alarm.unskipped"
	ReminderChanged = "reminder.changed"
	PauseChanged    = "pause.changed"
)

// Event describes something that happened to one owner's reminders.
// Reminder is uuid.Nil for owner-wide events.
type Event struct {
	Type     string
	Time     time.Time
	Owner    uuid.UUID
	Reminder uuid.UUID
	Data     any
}

// Bus delivers events without blocking the publisher. Slow subscribers lose
// events once their buffer is full.
type Bus interface {
	Publish(e Event)
	// Subscribe registers a listener. With types given, only those event
	// types are delivered.
	Subscribe(buffer int, types ...string) (ch <-chan Event, unsubscribe func())
}

func New(clk clock.Clock) Bus {
	if clk == nil {
		clk = clock.New()
	}
	return &memBus{clk: clk, subs: map[uint64]*subscriber{}}
}

type subscriber struct {
	ch    chan Event
	types map[string]struct{}
}

func (s *subscriber) wants(t string) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

type memBus struct {
	clk     clock.Clock
	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = b.clk.Now()
	}
	b.mu.RLock()
	targets := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		if s.wants(e.Type) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		b.deliver(s.ch, e)
	}
}

// deliver tolerates a concurrent unsubscribe closing the channel.
func (b *memBus) deliver(ch chan Event, e Event) {
	defer func() { _ = recover() }()
	select {
	case ch <- e:
	default:
		b.dropped.Add(1)
	}
}

func (b *memBus) Subscribe(buffer int, types ...string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	s := &subscriber{ch: make(chan Event, buffer)}
	if len(types) > 0 {
		s.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(s.ch)
		})
	}
}

// Dropped reports how many deliveries were discarded on a full buffer.
func Dropped(b Bus) uint64 {
	if mb, ok := b.(*memBus); ok {
		return mb.dropped.Load()
	}
	return 0
}
