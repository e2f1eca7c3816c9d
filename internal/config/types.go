package config

// Config is the on-disk configuration. All durations are Go duration strings
// (e.g. "500ms", "10s", "1m") parsed by ParseDurationField.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Server    ServerConfig    `json:"server"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Storage   StorageConfig   `json:"storage"`
	Report    ReportConfig    `json:"report"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	// RatePerSec caps outgoing API calls. 0 disables throttling.
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	// GroupLog is the chat id receiving forwarded log records.
	GroupLog int64 `json:"group_log,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// ServerConfig controls the broadcast protocol listener.
//
// Example:
//
//	"server": { "listen": "127.0.0.1:7777", "read_timeout": "10s" }
type ServerConfig struct {
	Listen       string `json:"listen"`
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
}

type BroadcastConfig struct {
	// DefaultTimeout applies to prompts submitted without a timeout.
	DefaultTimeout string `json:"default_timeout,omitempty"`
	// MaxPending bounds outstanding replies. 0 means unbounded.
	MaxPending int `json:"max_pending,omitempty"`
}

// StorageConfig selects the recipient directory backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./baubot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type ReportConfig struct {
	// Schedule is a cron spec ("@every 5m", "0 * * * *"). Empty disables reports.
	Schedule string `json:"schedule,omitempty"`
}
