package config

// Config is the process configuration, loaded once at startup and
// re-read on file change. Only a subset of fields is hot-reloadable
// (logging, dispatcher pacing); the jobs section is fixed for the
// process lifetime.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Directory  DirectoryConfig  `json:"directory"`
	Gateway    GatewayConfig    `json:"gateway"`
	Dispatcher DispatcherConfig `json:"dispatcher,omitempty"`
	Scheduler  SchedulerConfig  `json:"scheduler,omitempty"`
	Admin      AdminConfig      `json:"admin,omitempty"`
	Alerts     AlertsConfig     `json:"alerts,omitempty"`
	Jobs       []JobConfig      `json:"jobs"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// DirectoryConfig selects the user/device registry backend.
//
// Example:
//
//	"directory": { "driver": "postgres", "dsn": "postgres://..." }
//	"directory": { "driver": "sqlite", "path": "./nudge.db" }
type DirectoryConfig struct {
	Driver      string `json:"driver"`
	DSN         string `json:"dsn,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type GatewayConfig struct {
	CredentialsFile string `json:"credentials_file"`
	ProjectID       string `json:"project_id,omitempty"`
}

// DispatcherConfig controls batch size and send pacing.
// BatchSize is clamped to the gateway's 500-token cap.
type DispatcherConfig struct {
	BatchSize  int `json:"batch_size,omitempty"`
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type SchedulerConfig struct {
	Workers     int    `json:"workers,omitempty"`
	PollSpec    string `json:"poll_spec,omitempty"`
	TickTimeout string `json:"tick_timeout,omitempty"`
	HistorySize int    `json:"history_size,omitempty"`
}

// AdminConfig controls the local administrative HTTP surface.
// Prefer binding to localhost; the server has no authentication.
type AdminConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8091"
}

// AlertsConfig routes tick-failure notices to a Telegram ops channel.
// Disabled unless both token and chat_id are set.
type AlertsConfig struct {
	TelegramToken string `json:"telegram_token,omitempty"`
	ChatID        int64  `json:"chat_id,omitempty"`
	RatePerMin    int    `json:"rate_per_min,omitempty"`
}

// JobConfig is the on-disk shape of one job definition.
type JobConfig struct {
	Name        string         `json:"name"`
	Level       string         `json:"level"`
	Schedule    ScheduleConfig `json:"schedule"`
	Message     MessageConfig  `json:"message"`
	Eligibility string         `json:"eligibility,omitempty"`
}

// ScheduleConfig mirrors engine.Schedule: exactly one field set.
type ScheduleConfig struct {
	Cron            string        `json:"cron,omitempty"`
	TargetLocalHour *int          `json:"target_local_hour,omitempty"`
	Window          *WindowConfig `json:"window,omitempty"`
}

type WindowConfig struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type MessageConfig struct {
	Title string            `json:"title,omitempty"`
	Body  string            `json:"body,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}
