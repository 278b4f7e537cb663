package alarm

import (
	"context"
	"errors"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jmhodges/clock"

	"petreminder/internal/eventbus"
	"petreminder/internal/reminder"
	"petreminder/pkg/logx"
)

type Options struct {
	Clock  clock.Clock
	Logger logx.Logger
	Bus    eventbus.Bus
	// QueueSize bounds due events waiting for Run. Timer goroutines block
	// when it is full.
	QueueSize int
	// DispatchTimeout bounds a single Dispatcher call. Zero means no limit.
	DispatchTimeout time.Duration
}

type timerKind uint8

const (
	kindAlarm timerKind = iota
	kindUnskip
)

func (k timerKind) String() string {
	if k == kindUnskip {
		return "unskip"
	}
	return "alarm"
}

type pending struct {
	gen   uint64
	at    time.Time
	timer *clock.Timer
	stop  chan struct{}
}

type due struct {
	id   uuid.UUID
	gen  uint64
	kind timerKind
}

// Armed describes a scheduled timer.
type Armed struct {
	Reminder uuid.UUID
	At       time.Time
	Unskip   bool
}

// Engine owns the alarm and unskip timers of one reminder collection.
type Engine struct {
	clk      clock.Clock
	log      logx.Logger
	bus      eventbus.Bus
	dispatch Dispatcher
	opts     Options

	col atomic.Pointer[reminder.Collection]

	mu      sync.Mutex
	timers  [2]map[uuid.UUID]*pending
	gen     uint64
	held    bool
	stopped bool

	queue    chan due
	done     chan struct{}
	stopOnce sync.Once
	inflight sync.WaitGroup
}

func New(col *reminder.Collection, d Dispatcher, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger.IsZero() {
		opts.Logger = logx.Nop()
	}
	if opts.Bus == nil {
		opts.Bus = eventbus.New(opts.Clock)
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	e := &Engine{
		clk:      opts.Clock,
		log:      opts.Logger.With(logx.String("comp", "alarm"), logx.Owner(col.Owner())),
		bus:      opts.Bus,
		dispatch: d,
		opts:     opts,
		timers:   [2]map[uuid.UUID]*pending{{}, {}},
		queue:    make(chan due, opts.QueueSize),
		done:     make(chan struct{}),
	}
	e.col.Store(col)
	return e
}

func (e *Engine) Owner() uuid.UUID                  { return e.Collection().Owner() }
func (e *Engine) Collection() *reminder.Collection { return e.col.Load() }

// Run consumes due events until ctx is cancelled or Stop is called.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Debug("alarm.run")
	for {
		select {
		case <-ctx.Done():
			e.Stop()
			return ctx.Err()
		case <-e.done:
			return ErrStopped
		case d := <-e.queue:
			e.handle(ctx, d)
		}
	}
}

// Stop cancels every timer and waits for in-flight dispatches.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		e.stopped = true
		e.cancelAllLocked()
		e.mu.Unlock()
		close(e.done)
	})
	e.inflight.Wait()
}

// Hold cancels all timers and keeps them cancelled until Release. Mutations
// still apply while held; only arming is suppressed.
func (e *Engine) Hold() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.held = true
	return e.cancelAllLocked()
}

func (e *Engine) Release() {
	e.mu.Lock()
	e.held = false
	e.mu.Unlock()
}

func (e *Engine) Held() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.held
}

// ArmAll arms every enabled reminder that has not fired yet and cancels the
// timers of the rest. Failures are collected as *ArmError.
func (e *Engine) ArmAll(ctx context.Context) error {
	if e.Held() {
		e.log.Debug("alarm.arm_all.held")
		return nil
	}
	col := e.Collection()
	var errs []error
	err := col.Each(func(r *reminder.Reminder) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.arm(r); err != nil {
			errs = append(errs, &ArmError{Owner: col.Owner(), Reminder: r.ID(), Err: err})
		}
		return nil
	})
	if err != nil {
		errs = append(errs, err)
	}
	e.dropOrphans(col)
	return errors.Join(errs...)
}

// RearmAll replaces the collection, for example after a remote sync, and arms
// it from scratch.
func (e *Engine) RearmAll(ctx context.Context, next *reminder.Collection) error {
	if next == nil {
		return errors.New("rearm: nil collection")
	}
	n := e.CancelAll()
	e.col.Store(next)
	e.log.Info("alarm.rearm_all", logx.Int("cancelled", n), logx.Int("reminders", next.Len()))
	return e.ArmAll(ctx)
}

// CancelAll cancels every alarm and unskip timer and returns how many were
// pending.
func (e *Engine) CancelAll() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelAllLocked()
}

func (e *Engine) cancelAllLocked() int {
	n := 0
	for k := range e.timers {
		for id := range e.timers[k] {
			if e.cancelLocked(timerKind(k), id) {
				n++
			}
		}
	}
	if n > 0 {
		e.bus.Publish(eventbus.Event{Type: eventbus.AlarmCancelled, Owner: e.Owner(), Data: n})
	}
	return n
}

func (e *Engine) cancelLocked(k timerKind, id uuid.UUID) bool {
	p, ok := e.timers[k][id]
	if !ok {
		return false
	}
	delete(e.timers[k], id)
	if p.timer != nil {
		p.timer.Stop()
	}
	close(p.stop)
	return true
}

func (e *Engine) cancel(id uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	a := e.cancelLocked(kindAlarm, id)
	u := e.cancelLocked(kindUnskip, id)
	return a || u
}

// dropOrphans cancels timers for ids that are no longer in col.
func (e *Engine) dropOrphans(col *reminder.Collection) {
	present := make(map[uuid.UUID]struct{}, col.Len())
	for _, id := range col.IDs() {
		present[id] = struct{}{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for k := range e.timers {
		for id := range e.timers[k] {
			if _, ok := present[id]; !ok {
				e.cancelLocked(timerKind(k), id)
			}
		}
	}
}

// Pending lists armed timers ordered by fire instant.
func (e *Engine) Pending() []Armed {
	e.mu.Lock()
	out := make([]Armed, 0, len(e.timers[kindAlarm])+len(e.timers[kindUnskip]))
	for k := range e.timers {
		for id, p := range e.timers[k] {
			out = append(out, Armed{Reminder: id, At: p.at, Unskip: timerKind(k) == kindUnskip})
		}
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].At.Equal(out[j].At) {
			return out[i].Reminder.String() < out[j].Reminder.String()
		}
		return out[i].At.Before(out[j].At)
	})
	return out
}

// arm must run inside the collection's per-reminder section.
func (e *Engine) arm(r *reminder.Reminder) error {
	id := r.ID()
	e.cancel(id)
	if !r.Enabled() || r.Deleted() || r.AlarmPresentationHandled() {
		return nil
	}
	now := e.clk.Now()
	next, ok := r.NextExecutionDate(now)
	if !ok {
		return nil
	}
	if w, isWeekly := r.Recurrence().(reminder.Weekly); isWeekly && w.Degenerate() {
		e.log.Warn("alarm.weekly_without_days", logx.Reminder(id), logx.Time("next", next))
	}
	armed, err := e.schedule(kindAlarm, id, next)
	if err != nil || !armed {
		return err
	}
	if at, skipping := r.UnskipInstant(); skipping {
		if _, err := e.schedule(kindUnskip, id, at); err != nil {
			return err
		}
	}
	e.log.Debug("alarm.armed", logx.Reminder(id), logx.Time("at", next), logx.String("mode", r.Mode().String()))
	e.bus.Publish(eventbus.Event{Type: eventbus.AlarmArmed, Owner: e.Owner(), Reminder: id, Data: next})
	return nil
}

func (e *Engine) schedule(k timerKind, id uuid.UUID, at time.Time) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return false, ErrStopped
	}
	if e.held {
		return false, nil
	}
	e.cancelLocked(k, id)
	e.gen++
	p := &pending{gen: e.gen, at: at, stop: make(chan struct{})}
	if delay := at.Sub(e.clk.Now()); delay > 0 {
		p.timer = e.clk.NewTimer(delay)
	}
	e.timers[k][id] = p
	go e.wait(p, due{id: id, gen: p.gen, kind: k})
	return true, nil
}

// wait blocks until the timer fires, then posts the due event. Past instants
// are posted immediately.
func (e *Engine) wait(p *pending, d due) {
	if p.timer != nil {
		select {
		case <-p.timer.C:
		case <-p.stop:
			return
		case <-e.done:
			return
		}
	}
	select {
	case e.queue <- d:
	case <-p.stop:
	case <-e.done:
	}
}

func (e *Engine) current(d due) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.timers[d.kind][d.id]
	if !ok || p.gen != d.gen {
		return false
	}
	delete(e.timers[d.kind], d.id)
	return true
}

func (e *Engine) handle(ctx context.Context, d due) {
	fire := false
	err := e.Collection().With(d.id, func(r *reminder.Reminder) error {
		if !e.current(d) {
			e.log.Debug("alarm.stale", logx.Reminder(d.id), logx.String("timer", d.kind.String()))
			return nil
		}
		now := e.clk.Now()
		switch d.kind {
		case kindUnskip:
			if r.AutoUnskip(now) {
				e.log.Info("alarm.unskipped", logx.Reminder(d.id))
				e.bus.Publish(eventbus.Event{Type: eventbus.AlarmUnskipped, Owner: e.Owner(), Reminder: d.id})
				return e.arm(r)
			}
		case kindAlarm:
			if !r.Enabled() || r.Deleted() {
				return nil
			}
			// The unskip timer is due at or before this instant and may still
			// be queued.
			if r.AutoUnskip(now) {
				e.bus.Publish(eventbus.Event{Type: eventbus.AlarmUnskipped, Owner: e.Owner(), Reminder: d.id})
			}
			e.cancel(d.id)
			fire = r.MarkAlarmPresented()
		}
		return nil
	})
	if err != nil {
		e.log.Warn("alarm.handle_failed", logx.Reminder(d.id), logx.String("timer", d.kind.String()), logx.Err(err))
		return
	}
	if !fire {
		return
	}
	e.log.Info("alarm.fired", logx.Reminder(d.id))
	e.bus.Publish(eventbus.Event{Type: eventbus.AlarmFired, Owner: e.Owner(), Reminder: d.id})
	e.deliver(ctx, d.id)
}

func (e *Engine) deliver(ctx context.Context, id uuid.UUID) {
	if e.dispatch == nil {
		return
	}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		defer func() {
			if rec := recover(); rec != nil {
				e.log.Error("alarm.dispatch_panic", logx.Reminder(id), logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
			}
		}()
		dctx := ctx
		if e.opts.DispatchTimeout > 0 {
			var cancel context.CancelFunc
			dctx, cancel = context.WithTimeout(ctx, e.opts.DispatchTimeout)
			defer cancel()
		}
		if err := e.dispatch.OnAlarmDue(dctx, e.Owner(), id); err != nil {
			e.log.Warn("alarm.dispatch_failed", logx.Reminder(id), logx.Err(err))
		}
	}()
}
