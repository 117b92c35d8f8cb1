// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/modreload/pkg/errutil"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	require.NoError(t, flags.Parse(args))
	return flags
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", "/xdg/data")
	t.Setenv("DATABASE_URL", "")
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("", newFlags(t))
	require.NoError(t, err)

	assert.Equal(t, "/xdg/data/modreload/plugins", cfg.PluginsDir)
	assert.Equal(t, "/xdg/data/modreload", cfg.DataDir)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:9100", cfg.MetricsAddr)
	assert.Empty(t, cfg.DatabaseURL)
	assert.True(t, cfg.Console)
	assert.Equal(t, DefaultConsoleGrants, cfg.ConsoleGrants)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
plugins-dir: /srv/plugins
log-format: text
metrics-addr: ""
console: false
console-grants:
  - modreload.load
  - modreload.list
`)

	cfg, err := Load(path, newFlags(t))
	require.NoError(t, err)

	assert.Equal(t, "/srv/plugins", cfg.PluginsDir)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Empty(t, cfg.MetricsAddr)
	assert.False(t, cfg.Console)
	assert.Equal(t, []string{"modreload.load", "modreload.list"}, cfg.ConsoleGrants)
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "plugins-dir: /srv/plugins\nlog-level: warn\n")

	cfg, err := Load(path, newFlags(t, "--plugins-dir=/opt/plugins"))
	require.NoError(t, err)

	assert.Equal(t, "/opt/plugins", cfg.PluginsDir)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_XDGConfigFile(t *testing.T) {
	isolate(t)
	dir := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "modreload")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log-level: debug\n"), 0o600))

	cfg, err := Load("", newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_DatabaseURLFromEnv(t *testing.T) {
	isolate(t)
	t.Setenv("DATABASE_URL", "postgres://env/db")

	cfg, err := Load("", newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/db", cfg.DatabaseURL)

	cfg, err = Load("", newFlags(t, "--database-url=postgres://flag/db"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag/db", cfg.DatabaseURL)
}

func TestLoad_Errors(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), newFlags(t))
	errutil.AssertErrorCode(t, err, CodeInvalid)

	_, err = Load(writeConfig(t, "plugins-dir: [unterminated\n"), newFlags(t))
	errutil.AssertErrorCode(t, err, CodeInvalid)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			PluginsDir:    "plugins",
			LogFormat:     "json",
			LogLevel:      "info",
			ConsoleGrants: []string{"modreload.*"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"text format", func(c *Config) { c.LogFormat = "text" }, false},
		{"no grants", func(c *Config) { c.ConsoleGrants = nil }, false},
		{"missing plugins dir", func(c *Config) { c.PluginsDir = "" }, true},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, true},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"empty grant", func(c *Config) { c.ConsoleGrants = []string{""} }, true},
		{"bad grant", func(c *Config) { c.ConsoleGrants = []string{"modreload.[a"} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				errutil.AssertErrorCode(t, err, CodeInvalid)
				return
			}
			assert.NoError(t, err)
		})
	}
}
