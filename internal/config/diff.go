package config

import (
	"slices"
	"strings"

	"petreminder/pkg/logx"
)

// SummarizeChange returns the changed top-level sections and log fields that
// describe the new values. Secrets (storage.dsn, status.token) are reported
// only as set/unset.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		fields  []logx.Field
	)
	eq := func(a, b string) bool { return strings.TrimSpace(a) == strings.TrimSpace(b) }

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	prev, next := oldCfg.Scheduler, newCfg.Scheduler
	if !eq(prev.Timezone, next.Timezone) || !eq(prev.Reconcile, next.Reconcile) ||
		prev.QueueSize != next.QueueSize || !eq(prev.DefaultSnooze, next.DefaultSnooze) {
		changed = append(changed, "scheduler")
		fields = append(fields,
			logx.String("scheduler.timezone", strings.TrimSpace(next.Timezone)),
			logx.String("scheduler.reconcile", strings.TrimSpace(next.Reconcile)),
			logx.Int("scheduler.queue_size", next.QueueSize),
		)
	}

	if oldCfg.Dispatch != newCfg.Dispatch {
		changed = append(changed, "dispatch")
		fields = append(fields,
			logx.Any("dispatch.rate_per_sec", newCfg.Dispatch.RatePerSec),
			logx.Int("dispatch.burst", newCfg.Dispatch.Burst),
			logx.String("dispatch.timeout", strings.TrimSpace(newCfg.Dispatch.Timeout)),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		fields = append(fields,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.String("storage.path", strings.TrimSpace(newCfg.Storage.Path)),
			logx.Bool("storage.dsn_set", strings.TrimSpace(newCfg.Storage.DSN) != ""),
		)
	}

	if oldCfg.Status.Enabled != newCfg.Status.Enabled || !eq(oldCfg.Status.Addr, newCfg.Status.Addr) ||
		oldCfg.Status.Token != newCfg.Status.Token || !slices.Equal(oldCfg.Status.AllowOrigins, newCfg.Status.AllowOrigins) {
		changed = append(changed, "status")
		fields = append(fields,
			logx.Bool("status.enabled", newCfg.Status.Enabled),
			logx.String("status.addr", strings.TrimSpace(newCfg.Status.Addr)),
			logx.Bool("status.token_set", strings.TrimSpace(newCfg.Status.Token) != ""),
		)
	}

	if !slices.Equal(oldCfg.Owners, newCfg.Owners) {
		changed = append(changed, "owners")
		fields = append(fields, logx.Int("owners.count", len(newCfg.Owners)))
	}
	return changed, fields
}

// RestartRequired reports sections that only take effect after a restart.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "storage", "status":
			out = append(out, s)
		}
	}
	return out
}
