// Package config loads devtrack configuration from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Log         LogConfig         `yaml:"log"`
	Assignments AssignmentsConfig `yaml:"assignments"`
	Redis       RedisConfig       `yaml:"redis"`
	Admin       AdminConfig       `yaml:"admin"`
	Client      ClientConfig      `yaml:"client"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig contains the server database location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// AssignmentsConfig contains assignment policy.
type AssignmentsConfig struct {
	ApprovalRequired bool `yaml:"approval_required"`
	OverdueDays      int  `yaml:"overdue_days"`
}

// RedisConfig enables event forwarding to Redis when Addr is set.
type RedisConfig struct {
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
}

// AdminConfig controls the account created on first run.
type AdminConfig struct {
	Username string `yaml:"username"`
}

// ClientConfig is used by the offline queue commands.
type ClientConfig struct {
	ServerURL string `yaml:"server_url"`
	QueuePath string `yaml:"queue_path"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

// Default returns a configuration with defaults applied.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{Path: "devtrack.sqlite3"},
		Log:      LogConfig{Level: "info"},
		Assignments: AssignmentsConfig{
			ApprovalRequired: true,
			OverdueDays:      7,
		},
		Redis: RedisConfig{Channel: "devtrack:events"},
		Admin: AdminConfig{Username: "Admin"},
		Client: ClientConfig{
			ServerURL: "http://localhost:8080",
			QueuePath: "devtrack-queue.sqlite3",
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides and validates the result. An empty path skips the
// file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies DEVTRACK_SECTION_KEY variables.
func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"DEVTRACK_SERVER_ADDR":       &cfg.Server.Addr,
		"DEVTRACK_DATABASE_PATH":     &cfg.Database.Path,
		"DEVTRACK_LOG_PATH":          &cfg.Log.Path,
		"DEVTRACK_LOG_LEVEL":         &cfg.Log.Level,
		"DEVTRACK_REDIS_ADDR":        &cfg.Redis.Addr,
		"DEVTRACK_REDIS_CHANNEL":     &cfg.Redis.Channel,
		"DEVTRACK_ADMIN_USERNAME":    &cfg.Admin.Username,
		"DEVTRACK_CLIENT_SERVER_URL": &cfg.Client.ServerURL,
		"DEVTRACK_CLIENT_QUEUE_PATH": &cfg.Client.QueuePath,
		"DEVTRACK_CLIENT_USERNAME":   &cfg.Client.Username,
		"DEVTRACK_CLIENT_PASSWORD":   &cfg.Client.Password,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("DEVTRACK_ASSIGNMENTS_APPROVAL_REQUIRED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DEVTRACK_ASSIGNMENTS_APPROVAL_REQUIRED: %w", err)
		}
		cfg.Assignments.ApprovalRequired = b
	}
	if v := os.Getenv("DEVTRACK_ASSIGNMENTS_OVERDUE_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DEVTRACK_ASSIGNMENTS_OVERDUE_DAYS: %w", err)
		}
		cfg.Assignments.OverdueDays = n
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Addr == "" {
		errs = append(errs, "server.addr is required")
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Assignments.OverdueDays < 1 {
		errs = append(errs, "assignments.overdue_days must be at least 1")
	}
	if c.Redis.Addr != "" && c.Redis.Channel == "" {
		errs = append(errs, "redis.channel is required when redis.addr is set")
	}
	if c.Admin.Username == "" {
		errs = append(errs, "admin.username is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SlogLevel parses log.level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return level, nil
}

// OverdueAfter returns the overdue threshold as a duration.
func (c *Config) OverdueAfter() time.Duration {
	return time.Duration(c.Assignments.OverdueDays) * 24 * time.Hour
}
