package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmhodges/clock"

	"petreminder/pkg/logx"
)

// Supervisor runs named goroutines under a shared context.
// - Panic recovery
// - Optional cancel-on-first-error
// - Restart loops with backoff for long-running watchers
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	clk         clock.Clock
	log         logx.Logger
	cancelOnErr bool

	active   atomic.Int64
	errOnce  sync.Once
	firstErr atomic.Value // error
	wg       sync.WaitGroup
	waitOnce sync.Once
	doneCh   chan struct{}

	mu    sync.Mutex
	stats map[string]*Stats
}

// Stats is a best-effort view of one named goroutine. Goroutines sharing a
// name are aggregated.
type Stats struct {
	Name        string    `json:"name"`
	Active      int       `json:"active"`
	Starts      int       `json:"starts"`
	Panics      int       `json:"panics"`
	LastStartAt time.Time `json:"last_start_at"`
	LastErr     string    `json:"last_err,omitempty"`
	LastErrAt   time.Time `json:"last_err_at,omitempty"`
}

type Snapshot struct {
	Active     int64   `json:"active"`
	FirstError string  `json:"first_error,omitempty"`
	Goroutines []Stats `json:"goroutines"`
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError cancels the shared context on the first error or panic.
func WithCancelOnError(enabled bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

func WithClock(clk clock.Clock) Option {
	return func(s *Supervisor) { s.clk = clk }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		doneCh: make(chan struct{}),
		stats:  map[string]*Stats{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.clk == nil {
		s.clk = clock.New()
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.log = s.log.With(logx.String("comp", "supervisor"))
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel cancels the shared context without waiting.
func (s *Supervisor) Cancel() { s.cancel() }

// Err returns the first error recorded by any goroutine.
func (s *Supervisor) Err() error {
	if err, ok := s.firstErr.Load().(error); ok {
		return err
	}
	return nil
}

func (s *Supervisor) Snapshot() Snapshot {
	snap := Snapshot{Active: s.active.Load()}
	if err := s.Err(); err != nil {
		snap.FirstError = err.Error()
	}
	s.mu.Lock()
	for _, st := range s.stats {
		snap.Goroutines = append(snap.Goroutines, *st)
	}
	s.mu.Unlock()
	sort.Slice(snap.Goroutines, func(i, j int) bool {
		return snap.Goroutines[i].Name < snap.Goroutines[j].Name
	})
	return snap
}

func (s *Supervisor) stat(name string) *Stats {
	st := s.stats[name]
	if st == nil {
		st = &Stats{Name: name}
		s.stats[name] = st
	}
	return st
}

func (s *Supervisor) noteStart(name string) {
	s.mu.Lock()
	st := s.stat(name)
	st.Active++
	st.Starts++
	st.LastStartAt = s.clk.Now()
	s.mu.Unlock()
}

func (s *Supervisor) noteStop(name string, err error, panicked bool) {
	s.mu.Lock()
	st := s.stat(name)
	if st.Active > 0 {
		st.Active--
	}
	if panicked {
		st.Panics++
	}
	if err != nil {
		st.LastErr = err.Error()
		st.LastErrAt = s.clk.Now()
	}
	s.mu.Unlock()
}

func (s *Supervisor) fail(err error) {
	s.errOnce.Do(func() { s.firstErr.Store(err) })
	if s.cancelOnErr {
		s.cancel()
	}
}

// run calls fn and converts a panic into an error.
func (s *Supervisor) run(name string, fn func(context.Context) error) (panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("goroutine.panic", logx.String("name", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic in %s: %v", name, r)
			panicked = true
		}
	}()
	return false, fn(s.ctx)
}

// Go runs fn once. A non-nil error other than context.Canceled is recorded.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	s.active.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.active.Add(-1)

		s.noteStart(name)
		s.log.Debug("goroutine.started", logx.String("name", name))
		panicked, err := s.run(name, fn)
		if errors.Is(err, context.Canceled) && !panicked {
			err = nil
		}
		if err != nil && !panicked {
			err = fmt.Errorf("%s: %w", name, err)
		}
		s.noteStop(name, err, panicked)
		if err != nil {
			s.fail(err)
		}
		s.log.Debug("goroutine.stopped", logx.String("name", name))
	}()
}

func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// GoRestart runs fn and restarts it after an error or panic, with jittered
// exponential backoff between lo and hi, until the context is done. A
// clean return stops the loop.
func (s *Supervisor) GoRestart(name string, lo, hi time.Duration, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	if lo <= 0 {
		lo = 250 * time.Millisecond
	}
	if hi < lo {
		hi = lo
	}
	s.Go0(name+".restart", func(ctx context.Context) {
		rng := rand.New(rand.NewSource(s.clk.Now().UnixNano()))
		backoff := lo
		for {
			s.noteStart(name)
			startedAt := s.clk.Now()
			panicked, err := s.run(name, fn)
			if ctx.Err() != nil || (err == nil && !panicked) || (errors.Is(err, context.Canceled) && !panicked) {
				s.noteStop(name, nil, false)
				return
			}
			s.noteStop(name, err, panicked)

			// A long healthy run resets the backoff.
			if s.clk.Now().Sub(startedAt) >= 30*time.Second {
				backoff = lo
			}
			wait := backoff + time.Duration(rng.Int63n(int64(backoff)/5+1))
			s.log.Warn("goroutine.restarting", logx.String("name", name), logx.Duration("backoff", wait), logx.Err(err))

			t := s.clk.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			backoff = min(backoff*2, hi)
		}
	})
}

// Stop cancels the context and waits for every goroutine.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

// Wait blocks until every goroutine returned or ctx is done. It returns the
// first recorded error.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.waitOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.doneCh)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.doneCh:
		return s.Err()
	}
}
