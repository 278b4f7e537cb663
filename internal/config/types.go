package config

// Config is the daemon configuration file (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// String values of storage.dsn and status.token may reference environment
// variables as ${NAME}; they are expanded after parsing.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Storage   StorageConfig   `json:"storage"`
	Status    StatusConfig    `json:"status"`

	// Owners lists owner ids (UUID strings) that get an empty collection
	// when storage has nothing for them yet.
	Owners []string `json:"owners,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls alarm scheduling.
//
// Defaults (when fields are omitted/zero):
//   - timezone: "Local"
//   - reconcile: "@every 15m"
//   - queue_size: 64
//   - default_snooze: "5m"
type SchedulerConfig struct {
	// Timezone is an IANA name. Weekly and monthly fire times are computed in it.
	Timezone string `json:"timezone,omitempty"`
	// Reconcile is a cron spec (5 or 6 fields, or a descriptor) for the pass
	// that re-arms every reminder and writes snapshots.
	Reconcile     string `json:"reconcile,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	DefaultSnooze string `json:"default_snooze,omitempty"`
}

// DispatchConfig throttles alarm delivery.
//
// Defaults: rate_per_sec 5, burst 10, timeout "10s".
type DispatchConfig struct {
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`
	Timeout    string  `json:"timeout,omitempty"`
}

// StorageConfig controls persistence.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/petreminder.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`          // postgres (do not log)
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
	// SaveDebounce coalesces snapshot writes after reminder changes.
	SaveDebounce string `json:"save_debounce,omitempty"`
}

// StatusConfig controls the HTTP status/action API.
//
// Security note: bind to localhost unless a token is set.
type StatusConfig struct {
	Enabled      bool     `json:"enabled"`
	Addr         string   `json:"addr,omitempty"` // default: "127.0.0.1:8089"
	Token        string   `json:"token,omitempty"`
	AllowOrigins []string `json:"allow_origins,omitempty"`
}
