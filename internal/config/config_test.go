package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devtrack.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" || !cfg.Assignments.ApprovalRequired || cfg.OverdueAfter() != 7*24*time.Hour {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Redis.Addr != "" {
		t.Errorf("redis should be disabled by default, got %q", cfg.Redis.Addr)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: "127.0.0.1:9000"
database:
  path: /var/lib/devtrack/db.sqlite3
log:
  level: debug
assignments:
  approval_required: false
  overdue_days: 14
redis:
  addr: localhost:6379
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" || cfg.Database.Path != "/var/lib/devtrack/db.sqlite3" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Assignments.ApprovalRequired || cfg.Assignments.OverdueDays != 14 {
		t.Errorf("assignment values not applied: %+v", cfg.Assignments)
	}
	if cfg.Redis.Channel != "devtrack:events" {
		t.Errorf("expected default channel to survive, got %q", cfg.Redis.Channel)
	}
	if level, _ := cfg.SlogLevel(); level != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", level)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "database:\n  path: from-file.sqlite3\n")
	t.Setenv("DEVTRACK_DATABASE_PATH", "from-env.sqlite3")
	t.Setenv("DEVTRACK_ASSIGNMENTS_APPROVAL_REQUIRED", "false")
	t.Setenv("DEVTRACK_ASSIGNMENTS_OVERDUE_DAYS", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "from-env.sqlite3" {
		t.Errorf("expected env to win, got %q", cfg.Database.Path)
	}
	if cfg.Assignments.ApprovalRequired || cfg.Assignments.OverdueDays != 3 {
		t.Errorf("unexpected assignments: %+v", cfg.Assignments)
	}
}

func TestEnvOverrideInvalid(t *testing.T) {
	t.Setenv("DEVTRACK_ASSIGNMENTS_OVERDUE_DAYS", "soon")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for non-numeric overdue days")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing db", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"zero overdue", func(c *Config) { c.Assignments.OverdueDays = 0 }, "overdue_days"},
		{"redis without channel", func(c *Config) { c.Redis.Addr = "x:1"; c.Redis.Channel = "" }, "redis.channel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
