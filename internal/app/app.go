package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jmhodges/clock"
	"github.com/robfig/cron/v3"

	"petreminder/internal/config"
	"petreminder/internal/dispatch"
	"petreminder/internal/eventbus"
	"petreminder/internal/runtime/supervisor"
	"petreminder/internal/statusapi"
	"petreminder/internal/storage"
	"petreminder/pkg/logx"
)

type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
)

type App struct {
	cfgm *config.Manager
	rt   atomic.Pointer[config.Runtime]
	sup  *supervisor.Supervisor

	clk   clock.Clock
	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	disp  *dispatch.Service

	mu     sync.RWMutex
	owners map[uuid.UUID]*Owner

	dirtyMu sync.Mutex
	dirty   map[uuid.UUID]struct{}
	kick    chan struct{}

	cronMu sync.Mutex
	cron   *cron.Cron

	status *statusapi.Server
}

type Option func(*appOptions)

type appOptions struct {
	clk  clock.Clock
	sink dispatch.Sink
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(clk clock.Clock) Option { return func(o *appOptions) { o.clk = clk } }

// WithSink delivers alarms somewhere other than the log.
func WithSink(s dispatch.Sink) Option { return func(o *appOptions) { o.sink = s } }

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	var o appOptions
	for _, fn := range opts {
		fn(&o)
	}
	if o.clk == nil {
		o.clk = clock.New()
	}

	ctx := context.Background()
	cfgm := config.NewManager(cfgPath, logx.NewConsole("INFO").With(logx.String("comp", "config")))
	cfg, err := cfgm.Load(ctx)
	if err != nil {
		return nil, err
	}
	rt, err := config.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logConfig(cfg))
	a := &App{
		cfgm:   cfgm,
		clk:    o.clk,
		log:    log.With(logx.String("comp", "app")),
		logs:   logSvc,
		bus:    eventbus.New(o.clk),
		owners: map[uuid.UUID]*Owner{},
		dirty:  map[uuid.UUID]struct{}{},
		kick:   make(chan struct{}, 1),
	}
	a.rt.Store(rt)

	store, err := storage.Open(ctx, storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		DSN:         cfg.Storage.DSN,
		BusyTimeout: rt.BusyTimeout,
	}, log)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	a.store = store
	if store != nil {
		a.log.Info("storage.enabled", logx.String("driver", cfg.Storage.Driver))
	}

	a.disp = dispatch.New(dispatch.Config{RatePerSec: rt.DispatchRate, Burst: rt.DispatchBurst}, dispatch.Options{
		Sink:   o.sink,
		Lookup: a.lookup,
		Store:  store,
		Clock:  o.clk,
		Logger: log,
	})

	if err := a.loadOwners(ctx, rt); err != nil {
		if store != nil {
			_ = store.Close()
		}
		logSvc.Close()
		return nil, err
	}
	return a, nil
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func (a *App) runtime() *config.Runtime { return a.rt.Load() }

func (a *App) Logger() logx.Logger { return a.log }

func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true),
		supervisor.WithClock(a.clk),
	)
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		_, err := config.Resolve(cfg)
		return err
	})

	events, unsub := a.bus.Subscribe(256)
	a.sup.Go0("events", func(c context.Context) {
		defer unsub()
		a.eventLoop(c, events)
	})
	a.sup.Go0("snapshots.save", a.saveLoop)

	for _, o := range a.ownerList() {
		a.startOwner(a.sup.Context(), o)
	}
	a.restartCron(a.runtime())

	updates, unsubCfg := a.cfgm.Subscribe(8)
	a.sup.Go0("config.apply", func(c context.Context) {
		defer unsubCfg()
		a.reloadLoop(c, updates)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	if st := a.cfgm.Get().Status; st.Enabled {
		a.status = statusapi.New(a, statusapi.Config{
			Addr:         a.runtime().StatusAddr,
			Token:        st.Token,
			AllowOrigins: st.AllowOrigins,
		}, a.log)
		a.sup.GoRestart("status.http", time.Second, 30*time.Second, a.status.Run)
	}

	a.log.Info("app.started", logx.Int("owners", len(a.ownerList())))
	return nil
}

// Err returns the first failure of a supervised goroutine.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Done is closed when the app context ends, either through Stop or a fatal
// goroutine error.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		return nil
	}
	return a.sup.Context().Done()
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.close()
	}
	a.log.Info("app.stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("app.stop_step_failed", logx.String("step", name), logx.Err(err))
			}
			a.log.Debug("app.stop_step", logx.String("step", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("app.stop_step_deadline", logx.String("step", name), logx.Err(stepCtx.Err()))
		}
	}

	step("reconcile", time.Second, func(c context.Context) error {
		a.stopCron(c)
		return nil
	})
	step("engines", 2*time.Second, func(context.Context) error {
		for _, o := range a.ownerList() {
			o.Engine.Stop()
		}
		return nil
	})
	step("snapshots", 2*time.Second, func(c context.Context) error {
		return a.saveAll(c)
	})
	step("supervisor", 2*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	a.log.Info("app.stopped")
	return a.close()
}

func (a *App) close() error {
	var err error
	if a.store != nil {
		err = a.store.Close()
	}
	if a.logs != nil {
		if cerr := a.logs.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// eventLoop logs bus traffic and marks owners whose state changed.
func (a *App) eventLoop(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", ev.Type), logx.Owner(ev.Owner), logx.Reminder(ev.Reminder))
			switch ev.Type {
			case eventbus.ReminderChanged, eventbus.AlarmFired, eventbus.AlarmUnskipped, eventbus.PauseChanged:
				a.markDirty(ev.Owner)
			}
		}
	}
}

func (a *App) reloadLoop(ctx context.Context, updates <-chan *config.Config) {
	prev := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-updates:
			if !ok {
				return
			}
			// Coalesce bursts so only the latest config is applied.
		drain:
			for {
				select {
				case n, ok := <-updates:
					if !ok {
						return
					}
					next = n
				default:
					break drain
				}
			}
			if err := a.applyConfig(ctx, prev, next); err != nil {
				a.log.Warn("config.apply_failed", logx.Err(err))
				continue
			}
			prev = next
		}
	}
}

func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) error {
	rt, err := config.Resolve(next)
	if err != nil {
		return err
	}
	old := a.runtime()
	sections, attrs := config.SummarizeChange(prev, next)

	a.logs.Apply(logConfig(next))
	a.disp.Apply(dispatch.Config{RatePerSec: rt.DispatchRate, Burst: rt.DispatchBurst})
	a.rt.Store(rt)

	tzChanged := old.Location.String() != rt.Location.String()
	if tzChanged || old.ReconcileSpec != rt.ReconcileSpec {
		a.restartCron(rt)
	}
	if tzChanged {
		for _, o := range a.ownerList() {
			o.Engine.Collection().Localize(rt.Location)
			if err := o.Engine.ArmAll(ctx); err != nil {
				a.log.Warn("alarm.rearm_failed", logx.Owner(o.ID), logx.Err(err))
			}
		}
	}

	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config.restart_required", logx.String("sections", strings.Join(restart, ",")))
	}
	if len(sections) == 0 {
		a.log.Info("config.applied")
		return nil
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config.applied", fields...)
	return nil
}
