package model

import "time"

// Offline action types.
const (
	ActionTypeAssign = "assign"
	ActionTypeReturn = "return"
)

// SyncAction is one action captured while offline and replayed later.
// Key is a client-generated idempotency key.
type SyncAction struct {
	Key       string `json:"key,omitempty"`
	Type      string `json:"type"`
	DeviceID  int64  `json:"deviceId"`
	UserID    int64  `json:"userId,omitempty"`
	Notes     string `json:"notes,omitempty"`
	Condition string `json:"condition,omitempty"`
}

// SyncRequest is the body of a sync batch.
type SyncRequest struct {
	Actions []SyncAction `json:"actions"`
}

// SyncResult is the outcome of one replayed action.
type SyncResult struct {
	Type     string `json:"type"`
	ID       *int64 `json:"id,omitempty"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	Replayed bool   `json:"replayed,omitempty"`
}

// SyncResponse reports per-action outcomes in submission order.
type SyncResponse struct {
	Results []SyncResult `json:"results"`
	Synced  int          `json:"synced"`
}

// SyncReceipt remembers the outcome of an applied keyed action.
type SyncReceipt struct {
	Key       string    `json:"key"`
	Type      string    `json:"type"`
	DeviceID  int64     `json:"device_id"`
	UserID    int64     `json:"user_id,omitempty"`
	ResultID  int64     `json:"result_id"`
	CreatedAt time.Time `json:"created_at"`
}

// QueuedAction is an action held in the client's offline queue.
type QueuedAction struct {
	LocalID    int64      `json:"local_id"`
	Action     SyncAction `json:"action"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
}
