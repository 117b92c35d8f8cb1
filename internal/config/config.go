// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads modreload settings from flags and an optional YAML file.
//
// Precedence, lowest first: flag defaults, the config file, flags set on the
// command line. DATABASE_URL fills database-url when nothing else does.
package config

import (
	"os"

	"github.com/gobwas/glob"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/modreload/internal/logging"
	"github.com/holomush/modreload/internal/xdg"
)

// CodeInvalid marks configuration that failed to load or validate.
const CodeInvalid = "CONFIG_INVALID"

// Flag names double as configuration keys.
const (
	KeyPluginsDir    = "plugins-dir"
	KeyDataDir       = "data-dir"
	KeyLogFormat     = "log-format"
	KeyLogLevel      = "log-level"
	KeyMetricsAddr   = "metrics-addr"
	KeyDatabaseURL   = "database-url"
	KeyConsole       = "console"
	KeyConsoleGrants = "console-grants"
)

// DefaultConsoleGrants lets the console operator run every lifecycle command.
var DefaultConsoleGrants = []string{"modreload.*"}

// Config is the resolved server configuration.
type Config struct {
	PluginsDir    string   `koanf:"plugins-dir"`
	DataDir       string   `koanf:"data-dir"`
	LogFormat     string   `koanf:"log-format"`
	LogLevel      string   `koanf:"log-level"`
	MetricsAddr   string   `koanf:"metrics-addr"`
	DatabaseURL   string   `koanf:"database-url"`
	Console       bool     `koanf:"console"`
	ConsoleGrants []string `koanf:"console-grants"`
}

// RegisterFlags adds the configuration flags to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String(KeyPluginsDir, "", "plugin archive directory (default: XDG_DATA_HOME/modreload/plugins)")
	flags.String(KeyDataDir, "", "data directory (default: XDG_DATA_HOME/modreload)")
	flags.String(KeyLogFormat, logging.FormatJSON, "log format (json or text)")
	flags.String(KeyLogLevel, "info", "log level (debug, info, warn or error)")
	flags.String(KeyMetricsAddr, "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	flags.String(KeyDatabaseURL, "", "PostgreSQL URL for the lifecycle audit log (empty = disabled)")
	flags.Bool(KeyConsole, true, "read lifecycle commands from stdin")
	flags.StringSlice(KeyConsoleGrants, DefaultConsoleGrants, "permission patterns granted to the console")
}

// Load resolves the configuration from flags and the file at path. An empty
// path falls back to the XDG config file, which may be absent.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		if _, err := os.Stat(xdg.ConfigFile()); err == nil {
			path = xdg.ConfigFile()
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code(CodeInvalid).With("path", path).Wrapf(err, "load config file")
		}
	}

	// Flags left at their defaults only fill keys the file did not set.
	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code(CodeInvalid).Wrapf(err, "load flags")
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code(CodeInvalid).Wrapf(err, "decode config")
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = xdg.DataDir()
	}
	if c.PluginsDir == "" {
		c.PluginsDir = xdg.PluginsDir()
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.LogFormat == "" {
		c.LogFormat = logging.FormatJSON
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	errb := oops.Code(CodeInvalid)
	if c.PluginsDir == "" {
		return errb.Errorf("%s is required", KeyPluginsDir)
	}
	if c.LogFormat != logging.FormatJSON && c.LogFormat != logging.FormatText {
		return errb.With("value", c.LogFormat).Errorf("%s must be %q or %q", KeyLogFormat, logging.FormatJSON, logging.FormatText)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return errb.Wrapf(err, "%s", KeyLogLevel)
	}
	for _, pattern := range c.ConsoleGrants {
		if pattern == "" {
			return errb.Errorf("%s: empty pattern", KeyConsoleGrants)
		}
		if _, err := glob.Compile(pattern, '.'); err != nil {
			return errb.With("pattern", pattern).Wrapf(err, "%s", KeyConsoleGrants)
		}
	}
	return nil
}
