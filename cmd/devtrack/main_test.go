package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devtrack.yaml")
	data := "server:\n  addr: \":9000\"\ndatabase:\n  path: file.sqlite3\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	addr, empty, level := ":9100", "", "DEBUG"
	cfg, err := loadConfig(path, map[string]*string{"addr": &addr, "db": &empty, "level": &level})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Server.Addr != ":9100" {
		t.Errorf("expected flag to win, got %q", cfg.Server.Addr)
	}
	if cfg.Database.Path != "file.sqlite3" {
		t.Errorf("expected file value when flag unset, got %q", cfg.Database.Path)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected lowercased level, got %q", cfg.Log.Level)
	}
}

func TestLoadConfigRejectsInvalidFlag(t *testing.T) {
	level := "chatty"
	if _, err := loadConfig("", map[string]*string{"level": &level}); err == nil {
		t.Error("expected invalid level to be rejected")
	}
}

func TestLevelRouterEnabled(t *testing.T) {
	lr := &levelRouter{level: slog.LevelWarn}
	if lr.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !lr.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled at warn level")
	}
}

func TestGeneratePassword(t *testing.T) {
	a, err := generatePassword(16)
	if err != nil {
		t.Fatalf("generatePassword: %v", err)
	}
	b, _ := generatePassword(16)
	if len(a) != 16 || a == b {
		t.Errorf("unexpected passwords %q %q", a, b)
	}
}
