package app

import (
	"baubot/internal/broadcast"
	"baubot/internal/config"
	"baubot/internal/protocol"
	telegram "baubot/internal/transport/telegram/adapter"
	logx "baubot/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Telegram.GroupLog,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapAdapterConfig(s config.Settings) telegram.Config {
	return telegram.Config{
		Token:       s.Token,
		PollTimeout: s.PollTimeout,
		RatePerSec:  s.RatePerSec,
	}
}

func mapServerConfig(s config.Settings) protocol.ServerConfig {
	return protocol.ServerConfig{
		Listen:       s.Listen,
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
	}
}

func mapDispatchOptions(s config.Settings) broadcast.Options {
	return broadcast.Options{
		DefaultTimeout: s.PromptTimeout,
		MaxPending:     s.MaxPending,
		IOTimeout:      s.WriteTimeout,
	}
}
