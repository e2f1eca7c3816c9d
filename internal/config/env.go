package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "BAUBOT_"

// envOverrides lists the settings that may be supplied through the
// environment. Empty values leave the file value untouched.
type envOverrides struct {
	Token         string `env:"TOKEN"`
	Listen        string `env:"LISTEN"`
	LogLevel      string `env:"LOG_LEVEL"`
	StorageDriver string `env:"STORAGE_DRIVER"`
	StoragePath   string `env:"STORAGE_PATH"`
}

// ApplyEnv overlays BAUBOT_* variables from environ (os.Environ form) onto cfg.
// A nil environ reads the process environment.
func ApplyEnv(cfg *Config, environ []string) error {
	if cfg == nil {
		return nil
	}
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = env.ToMap(environ)
	}
	var o envOverrides
	if err := env.ParseWithOptions(&o, opts); err != nil {
		return fmt.Errorf("env: %w", err)
	}
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cfg.Telegram.Token, o.Token)
	set(&cfg.Server.Listen, o.Listen)
	set(&cfg.Logging.Level, o.LogLevel)
	set(&cfg.Storage.Driver, o.StorageDriver)
	set(&cfg.Storage.Path, o.StoragePath)
	return nil
}
