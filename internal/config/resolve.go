package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

const (
	DefaultReconcile       = "@every 15m"
	DefaultQueueSize       = 64
	DefaultSnooze          = 5 * time.Minute
	DefaultDispatchRate    = 5.0
	DefaultDispatchBurst   = 10
	DefaultDispatchTimeout = 10 * time.Second
	DefaultSaveDebounce    = 500 * time.Millisecond
	DefaultStatusAddr      = "127.0.0.1:8089"
)

// SecondOptional accepts both 5-field and 6-field (with seconds) specs.
var scheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func ParseSchedule(spec string) (cron.Schedule, error) {
	s := strings.TrimSpace(spec)
	if s == "" {
		return nil, errors.New("empty schedule")
	}
	return scheduleParser.Parse(s)
}

// Runtime is the parsed, defaulted view of a Config.
type Runtime struct {
	Location      *time.Location
	ReconcileSpec string
	Reconcile     cron.Schedule
	QueueSize     int
	DefaultSnooze time.Duration

	DispatchRate    float64
	DispatchBurst   int
	DispatchTimeout time.Duration

	BusyTimeout  time.Duration
	SaveDebounce time.Duration

	StatusAddr string
	Owners     []uuid.UUID
}

// Resolve validates cfg and fills in defaults. Every invalid field is
// reported, not just the first.
func Resolve(cfg *Config) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	var errs []error
	dur := func(path, raw string, def time.Duration) time.Duration {
		s := strings.TrimSpace(raw)
		if s == "" {
			return def
		}
		d, err := time.ParseDuration(s)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err))
			return def
		case d < 0:
			errs = append(errs, fmt.Errorf("%s: duration must be >= 0", path))
			return def
		case d == 0:
			return def
		}
		return d
	}

	rt := &Runtime{
		QueueSize:       cfg.Scheduler.QueueSize,
		DefaultSnooze:   dur("scheduler.default_snooze", cfg.Scheduler.DefaultSnooze, DefaultSnooze),
		DispatchRate:    cfg.Dispatch.RatePerSec,
		DispatchBurst:   cfg.Dispatch.Burst,
		DispatchTimeout: dur("dispatch.timeout", cfg.Dispatch.Timeout, DefaultDispatchTimeout),
		BusyTimeout:     dur("storage.busy_timeout", cfg.Storage.BusyTimeout, 0),
		SaveDebounce:    dur("storage.save_debounce", cfg.Storage.SaveDebounce, DefaultSaveDebounce),
		StatusAddr:      strings.TrimSpace(cfg.Status.Addr),
	}

	tz := strings.TrimSpace(cfg.Scheduler.Timezone)
	if tz == "" {
		rt.Location = time.Local
	} else if loc, err := time.LoadLocation(tz); err != nil {
		errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
	} else {
		rt.Location = loc
	}

	rt.ReconcileSpec = strings.TrimSpace(cfg.Scheduler.Reconcile)
	if rt.ReconcileSpec == "" {
		rt.ReconcileSpec = DefaultReconcile
	}
	if sched, err := ParseSchedule(rt.ReconcileSpec); err != nil {
		errs = append(errs, fmt.Errorf("scheduler.reconcile: %w", err))
	} else {
		rt.Reconcile = sched
	}

	switch {
	case rt.QueueSize < 0:
		errs = append(errs, errors.New("scheduler.queue_size: must be >= 0"))
	case rt.QueueSize == 0:
		rt.QueueSize = DefaultQueueSize
	}
	switch {
	case rt.DispatchRate < 0:
		errs = append(errs, errors.New("dispatch.rate_per_sec: must be >= 0"))
	case rt.DispatchRate == 0:
		rt.DispatchRate = DefaultDispatchRate
	}
	if rt.DispatchBurst <= 0 {
		rt.DispatchBurst = DefaultDispatchBurst
	}
	if rt.StatusAddr == "" {
		rt.StatusAddr = DefaultStatusAddr
	}

	switch d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); d {
	case "", "none":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			errs = append(errs, fmt.Errorf("storage.path: required for driver %q", d))
		}
	case "postgres", "postgresql", "pg":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			errs = append(errs, errors.New("storage.dsn: required for driver postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", d))
	}

	for i, raw := range cfg.Owners {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			errs = append(errs, fmt.Errorf("owners[%d]: %w", i, err))
			continue
		}
		rt.Owners = append(rt.Owners, id)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return rt, nil
}

// expandSecrets resolves ${NAME} references in fields that usually come from
// the environment.
func expandSecrets(cfg *Config) {
	cfg.Storage.DSN = os.ExpandEnv(cfg.Storage.DSN)
	cfg.Status.Token = os.ExpandEnv(cfg.Status.Token)
}
