// Package config loads, saves, and watches the wharf configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration.
type Config struct {
	App AppConfig `yaml:"app"`
	Log LogConfig `yaml:"log"`
}

type AppConfig struct {
	// RefreshInterval is how often the container list is re-polled,
	// in seconds.
	RefreshInterval float64 `yaml:"refresh_interval"`
}

// LogConfig bounds what the log pane keeps in memory and how much
// backlog a fresh stream replays.
type LogConfig struct {
	MaxLines int    `yaml:"max_lines"`
	Tail     int    `yaml:"tail"`
	Since    string `yaml:"since"`
}

const defaultSince = 15 * time.Minute

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		App: AppConfig{RefreshInterval: 5},
		Log: LogConfig{MaxLines: 2000, Tail: 200, Since: "15m"},
	}
}

// DefaultPath resolves the config file location: $WHARF_CONFIG if set,
// then ./wharf.yaml if present, then the user config directory.
func DefaultPath() string {
	if p := os.Getenv("WHARF_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("wharf.yaml"); err == nil {
		return "wharf.yaml"
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "wharf.yaml"
	}
	return filepath.Join(dir, "wharf", "config.yaml")
}

// Load reads the config at path, creating it with defaults on first run.
// Keys missing from the file keep their default values, and environment
// variables override both.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := Save(path, cfg); err != nil {
			return Config{}, err
		}
	case err != nil:
		return Config{}, fmt.Errorf("reading config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg.normalized(), nil
}

const configHeader = `# wharf configuration
#
# Every key below can be overridden with an environment variable:
# WHARF_APP_REFRESH_INTERVAL, WHARF_LOG_MAX_LINES, WHARF_LOG_TAIL,
# WHARF_LOG_SINCE.
`

// Save writes cfg to path, creating parent directories as needed.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, append([]byte(configHeader), data...), 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("WHARF_APP_REFRESH_INTERVAL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.App.RefreshInterval = f
		}
	}
	if v := os.Getenv("WHARF_LOG_MAX_LINES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Log.MaxLines = n
		}
	}
	if v := os.Getenv("WHARF_LOG_TAIL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Log.Tail = n
		}
	}
	if v := os.Getenv("WHARF_LOG_SINCE"); v != "" {
		c.Log.Since = v
	}
}

// normalized clamps values that would otherwise break the log pane: a
// buffer under 100 lines thrashes, a sub-second poll hammers the daemon.
func (c Config) normalized() Config {
	if c.App.RefreshInterval < 1 {
		c.App.RefreshInterval = 1
	}
	if c.Log.MaxLines < 100 {
		c.Log.MaxLines = 100
	}
	if c.Log.Tail < 0 {
		c.Log.Tail = 0
	}
	return c
}

// RefreshEvery returns the container poll interval.
func (c Config) RefreshEvery() time.Duration {
	if c.App.RefreshInterval < 1 {
		return time.Second
	}
	return time.Duration(c.App.RefreshInterval * float64(time.Second))
}

// SinceWindow returns the log backlog window, falling back to the
// default when the configured value doesn't parse.
func (c Config) SinceWindow() time.Duration {
	d, err := ParseSince(c.Log.Since)
	if err != nil || d <= 0 {
		return defaultSince
	}
	return d
}

var sinceRe = regexp.MustCompile(`^(\d+)([smhd])$`)

// ParseSince understands the docker-style shorthand 30s, 15m, 2h, 1d,
// plus anything time.ParseDuration accepts.
func ParseSince(s string) (time.Duration, error) {
	if m := sinceRe.FindStringSubmatch(s); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			switch m[2] {
			case "s":
				return time.Duration(n) * time.Second, nil
			case "m":
				return time.Duration(n) * time.Minute, nil
			case "h":
				return time.Duration(n) * time.Hour, nil
			case "d":
				return time.Duration(n) * 24 * time.Hour, nil
			}
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid since value %q", s)
	}
	return d, nil
}
