package config

import (
	"sort"
	"strings"

	logx "baubot/pkg/logx"
)

// SummarizeConfigChange returns the changed sections, safe structured attrs
// for logging (never includes the token), and whether any changed section
// needs a process restart to take effect. Only logging is reloaded in place.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, bool) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)
	restart := false

	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		restart = true
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
			logx.Bool("telegram.group_log_set", newCfg.Telegram.GroupLog != 0),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Server != newCfg.Server {
		changed = append(changed, "server")
		restart = true
		attrs = append(attrs, logx.String("server.listen", strings.TrimSpace(newCfg.Server.Listen)))
	}

	if oldCfg.Broadcast != newCfg.Broadcast {
		changed = append(changed, "broadcast")
		restart = true
		attrs = append(attrs,
			logx.String("broadcast.default_timeout", strings.TrimSpace(newCfg.Broadcast.DefaultTimeout)),
			logx.Int("broadcast.max_pending", newCfg.Broadcast.MaxPending),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		restart = true
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
		)
	}

	if oldCfg.Report != newCfg.Report {
		changed = append(changed, "report")
		restart = true
		attrs = append(attrs, logx.String("report.schedule", strings.TrimSpace(newCfg.Report.Schedule)))
	}

	sort.Strings(changed)
	return changed, attrs, restart
}
