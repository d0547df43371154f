package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/devtrack/internal/model"
)

// GetReceipt returns the receipt for an idempotency key, or nil.
func GetReceipt(ctx context.Context, q Querier, key string) (*model.SyncReceipt, error) {
	r := &model.SyncReceipt{}
	err := q.QueryRowContext(ctx,
		`SELECT key, type, device_id, user_id, result_id, created_at FROM sync_receipts WHERE key = ?`, key,
	).Scan(&r.Key, &r.Type, &r.DeviceID, &r.UserID, &r.ResultID, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting sync receipt: %w", err)
	}
	return r, nil
}

// PutReceipt records the outcome of an applied keyed action.
func PutReceipt(ctx context.Context, q Querier, r *model.SyncReceipt) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO sync_receipts (key, type, device_id, user_id, result_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.Key, r.Type, r.DeviceID, r.UserID, r.ResultID, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("recording sync receipt: %w", err)
	}
	return nil
}
