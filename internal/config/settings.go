package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultPollTimeout    = 10 * time.Second
	DefaultListen         = "127.0.0.1:7777"
	DefaultIOTimeout      = 10 * time.Second
	DefaultPromptTimeout  = 60 * time.Second
	DefaultSQLiteBusyWait = 5 * time.Second
)

var ErrMissingToken = errors.New("telegram.token is required")

// Settings is the validated, typed view of a Config.
type Settings struct {
	Token       string
	PollTimeout time.Duration
	RatePerSec  float64
	GroupLog    int64

	Listen       string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	PromptTimeout time.Duration
	MaxPending    int

	StorageDriver string
	StoragePath   string
	BusyTimeout   time.Duration

	ReportSchedule string
}

// Resolve parses durations, applies defaults and checks cross-field rules.
func (c *Config) Resolve() (Settings, error) {
	var s Settings
	if c == nil {
		return s, errors.New("config is nil")
	}
	var errs []error
	dur := func(path, raw string, def time.Duration) time.Duration {
		d, err := ParseDurationOrDefault(path, raw, def)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	s.Token = strings.TrimSpace(c.Telegram.Token)
	if s.Token == "" {
		errs = append(errs, ErrMissingToken)
	}
	s.PollTimeout = dur("telegram.poll_timeout", c.Telegram.PollTimeout, DefaultPollTimeout)
	if c.Telegram.RatePerSec < 0 {
		errs = append(errs, fmt.Errorf("telegram.rate_per_sec must be >= 0"))
	}
	s.RatePerSec = c.Telegram.RatePerSec
	s.GroupLog = c.Telegram.GroupLog
	if c.Logging.Telegram.Enabled && s.GroupLog == 0 {
		errs = append(errs, fmt.Errorf("logging.telegram.enabled requires telegram.group_log"))
	}

	s.Listen = strings.TrimSpace(c.Server.Listen)
	if s.Listen == "" {
		s.Listen = DefaultListen
	}
	if _, _, err := net.SplitHostPort(s.Listen); err != nil {
		errs = append(errs, fmt.Errorf("server.listen: %w", err))
	}
	s.ReadTimeout = dur("server.read_timeout", c.Server.ReadTimeout, DefaultIOTimeout)
	s.WriteTimeout = dur("server.write_timeout", c.Server.WriteTimeout, DefaultIOTimeout)

	s.PromptTimeout = dur("broadcast.default_timeout", c.Broadcast.DefaultTimeout, DefaultPromptTimeout)
	if c.Broadcast.MaxPending < 0 {
		errs = append(errs, fmt.Errorf("broadcast.max_pending must be >= 0"))
	}
	s.MaxPending = c.Broadcast.MaxPending

	s.StorageDriver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	s.StoragePath = strings.TrimSpace(c.Storage.Path)
	switch s.StorageDriver {
	case "", "memory":
	case "file", "sqlite", "sqlite3":
		if s.StoragePath == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for driver %q", s.StorageDriver))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	s.BusyTimeout = dur("storage.busy_timeout", c.Storage.BusyTimeout, DefaultSQLiteBusyWait)

	s.ReportSchedule = strings.TrimSpace(c.Report.Schedule)
	if s.ReportSchedule != "" {
		if _, err := cron.ParseStandard(s.ReportSchedule); err != nil {
			errs = append(errs, fmt.Errorf("report.schedule: %w", err))
		}
	}

	return s, errors.Join(errs...)
}
