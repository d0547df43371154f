package store

import (
	"context"
	"testing"

	"github.com/erazemk/devtrack/internal/db"
)

func TestGetJWTSecretGeneratesAndPersists(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	secret, err := GetJWTSecret(ctx, database)
	if err != nil {
		t.Fatalf("GetJWTSecret: %v", err)
	}
	if len(secret) != 64 { // 32 bytes hex encoded
		t.Fatalf("expected 64 hex chars, got %d", len(secret))
	}

	again, err := GetJWTSecret(ctx, database)
	if err != nil {
		t.Fatalf("GetJWTSecret: %v", err)
	}
	if again != secret {
		t.Fatalf("expected the stored secret, got %q and %q", secret, again)
	}
}

func TestSettings(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	if _, ok, err := GetSetting(ctx, database, "missing"); err != nil || ok {
		t.Fatalf("expected missing setting, got ok=%v err=%v", ok, err)
	}

	if err := SetSetting(ctx, database, "site", "HQ"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := SetSetting(ctx, database, "site", "Annex"); err != nil {
		t.Fatalf("SetSetting overwrite: %v", err)
	}

	value, ok, err := GetSetting(ctx, database, "site")
	if err != nil || !ok || value != "Annex" {
		t.Errorf("expected Annex, got %q ok=%v err=%v", value, ok, err)
	}

	kept, err := ensureSetting(ctx, database, "site", "ignored")
	if err != nil || kept != "Annex" {
		t.Errorf("expected existing value to win, got %q err=%v", kept, err)
	}
}
