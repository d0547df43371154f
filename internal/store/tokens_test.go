package store

import (
	"context"
	"testing"
	"time"

	"github.com/erazemk/devtrack/internal/db"
)

func TestRevokeAndCheckToken(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	if revoked, err := IsTokenRevoked(ctx, database, "jti-1"); err != nil || revoked {
		t.Fatalf("expected fresh token, got revoked=%v err=%v", revoked, err)
	}

	// Revoking twice is harmless.
	for i := 0; i < 2; i++ {
		if err := RevokeToken(ctx, database, "jti-1", time.Now().Add(time.Hour)); err != nil {
			t.Fatalf("RevokeToken: %v", err)
		}
	}

	if revoked, _ := IsTokenRevoked(ctx, database, "jti-1"); !revoked {
		t.Error("expected token to be revoked")
	}
	if revoked, _ := IsTokenRevoked(ctx, database, "jti-2"); revoked {
		t.Error("expected other token not to be revoked")
	}
}

func TestPurgeRevokedTokens(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()

	RevokeToken(ctx, database, "live", now.Add(time.Hour))
	RevokeToken(ctx, database, "stale", now.Add(time.Minute))

	n, err := PurgeRevokedTokens(ctx, database, now.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("PurgeRevokedTokens: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged revocation, got %d", n)
	}
	if revoked, _ := IsTokenRevoked(ctx, database, "stale"); revoked {
		t.Error("expected stale revocation to be purged")
	}
	if revoked, _ := IsTokenRevoked(ctx, database, "live"); !revoked {
		t.Error("expected live revocation to remain")
	}
}
