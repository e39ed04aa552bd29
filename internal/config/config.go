// Package config manages downsampler configuration from multiple sources.
//
// Precedence, lowest to highest: built-in defaults, an optional YAML config
// file, environment variables (a .env file next to the working directory is
// loaded first if present), then command-line flags applied by the caller.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all downsampler settings.
//
// The original tool also accepted a sample-count parameter that nothing ever
// read; it has been removed from the surface entirely rather than carried
// along unused.
type Config struct {
	// Windows is the colon-separated window specification list,
	// e.g. "1hour:1day:3day:30day".
	Windows string `yaml:"windows"`

	// OutPattern names each window's output file: a Go time layout evaluated
	// at run start, with "{window}" replaced by the window label.
	OutPattern string `yaml:"out_pattern"`

	// Logging settings.
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Windows:    "1hour:1day:3day:30day",
		OutPattern: "summary-20060102-150405-{window}.log",
		LogLevel:   "info",
		LogFormat:  "auto",
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path (empty path skips the file; a named file must exist), and environment
// overrides.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	// Best effort; a missing .env is the normal case.
	_ = godotenv.Load()

	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

// applyEnv overlays environment variables onto the configuration. Split out
// with an injectable getenv so precedence is testable without the process
// environment.
func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Windows, "PULSE_WINDOWS")
	set(&c.OutPattern, "PULSE_OUT_PATTERN")
	set(&c.LogLevel, "LOG_LEVEL")
	set(&c.LogFormat, "LOG_FORMAT")
	set(&c.LogFile, "LOG_FILE")
}
