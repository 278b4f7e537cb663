// Package pause freezes and resumes one owner's reminders. While paused no
// alarm timer is armed and countdown progress is banked in each reminder's
// elapsed counter, so resuming continues exactly where pausing stopped.
package pause

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"petreminder/internal/eventbus"
	"petreminder/internal/reminder"
	"petreminder/pkg/logx"
)

type State int

const (
	Running State = iota
	Pausing
	Paused
	Unpausing
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Pausing:
		return "pausing"
	case Paused:
		return "paused"
	case Unpausing:
		return "unpausing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrBusy is returned when a transition is already in progress.
var ErrBusy = errors.New("pause transition in progress")

// Scheduler is the part of the alarm engine the coordinator drives.
type Scheduler interface {
	Collection() *reminder.Collection
	Hold() int
	Release()
	ArmAll(ctx context.Context) error
}

type Coordinator struct {
	sched Scheduler
	log   logx.Logger
	bus   eventbus.Bus

	mu       sync.Mutex
	state    State
	pausedAt time.Time
}

func New(sched Scheduler, log logx.Logger, bus eventbus.Bus) *Coordinator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Coordinator{
		sched: sched,
		log:   log.With(logx.String("comp", "pause"), logx.Owner(sched.Collection().Owner())),
		bus:   bus,
	}
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PausedAt is the instant of the last completed pause; zero while running.
func (c *Coordinator) PausedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pausedAt
}

func (c *Coordinator) begin(from, via State) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case from:
		c.state = via
		return true, nil
	case Pausing, Unpausing:
		return false, ErrBusy
	default:
		return false, nil
	}
}

func (c *Coordinator) finish(to State, at time.Time) {
	c.mu.Lock()
	c.state = to
	c.pausedAt = at
	c.mu.Unlock()
	if c.bus != nil {
		c.bus.Publish(eventbus.Event{Type: eventbus.PauseChanged, Owner: c.sched.Collection().Owner(), Data: to.String()})
	}
}

// Pause banks elapsed countdown and snooze time up to at, moving each banked
// reminder's basis to at, then cancels every timer. Pausing while paused
// reports false without changing anything.
func (c *Coordinator) Pause(ctx context.Context, at time.Time) (bool, error) {
	ok, err := c.begin(Running, Pausing)
	if !ok || err != nil {
		return false, err
	}
	banked := 0
	err = c.sched.Collection().Each(func(r *reminder.Reminder) error {
		if r.AccumulateElapsed(at) {
			banked++
		}
		return nil
	})
	cancelled := c.sched.Hold()
	c.finish(Paused, at)
	c.log.Info("pause.paused", logx.Time("at", at), logx.Int("banked", banked), logx.Int("cancelled", cancelled))
	return true, err
}

// Unpause restarts the banked reminders from at and arms everything again.
func (c *Coordinator) Unpause(ctx context.Context, at time.Time) (bool, error) {
	ok, err := c.begin(Paused, Unpausing)
	if !ok || err != nil {
		return false, err
	}
	resumed := 0
	err = c.sched.Collection().Each(func(r *reminder.Reminder) error {
		if r.CountsElapsed() {
			r.SetExecutionBasis(at, false)
			resumed++
		}
		return nil
	})
	c.sched.Release()
	c.finish(Running, time.Time{})
	armErr := c.sched.ArmAll(ctx)
	c.log.Info("pause.resumed", logx.Time("at", at), logx.Int("resumed", resumed))
	return true, errors.Join(err, armErr)
}

// Restore puts the coordinator back into a persisted paused state without
// banking anything again. Reminders loaded from storage already carry their
// elapsed counters.
func (c *Coordinator) Restore(paused bool, at time.Time) {
	if !paused {
		return
	}
	c.mu.Lock()
	if c.state != Running {
		c.mu.Unlock()
		return
	}
	c.state = Paused
	c.pausedAt = at
	c.mu.Unlock()
	c.sched.Hold()
	c.log.Info("pause.restored", logx.Time("paused_at", at))
}
