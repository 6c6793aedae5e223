// Package config loads hlcmail settings from the environment.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable, e.g. HLCMAIL_DB.
const Prefix = "HLCMAIL"

// Config holds settings shared by every command. Command-line flags
// override whatever the environment provides.
type Config struct {
	// DB is the path of the shared SQLite database.
	DB string `envconfig:"DB" default:".hlcmail/hlcmail.db"`
	// Node is this process's node ID.
	Node string `envconfig:"NODE"`
	// Addr is where "hm serve" listens and "hm post" connects.
	Addr string `envconfig:"ADDR" default:"127.0.0.1:7474"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	// ActiveWindow is how recently a node must have been seen to count
	// towards the stability watermark.
	ActiveWindow time.Duration `envconfig:"ACTIVE_WINDOW" default:"10m"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var c Config
	if err := envconfig.Process(Prefix, &c); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if _, err := c.Level(); err != nil {
		return Config{}, err
	}
	if c.ActiveWindow <= 0 {
		return Config{}, fmt.Errorf("load config: %s_ACTIVE_WINDOW must be positive, got %s", Prefix, c.ActiveWindow)
	}
	return c, nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return l, nil
}

// Logger returns a text logger writing to w at the configured level. An
// unparseable level falls back to info.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, err := c.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Usage writes the supported environment variables to w.
func Usage(w io.Writer) error {
	var c Config
	return envconfig.Usagef(Prefix, &c, w, "{{range .}}{{usage_key .}}\t{{usage_default .}}\n{{end}}")
}
