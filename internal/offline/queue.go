// Package offline holds actions captured without connectivity until they
// can be submitted to the server. The queue lives in a client-side SQLite
// file and survives restarts.
package offline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/devtrack/internal/db"
	"github.com/erazemk/devtrack/internal/model"
)

// ErrSyncFailed is returned by Flush when the batch could not be
// submitted. The queue is left untouched.
var ErrSyncFailed = errors.New("sync failed")

// ErrInvalidAction is returned by Enqueue for malformed actions.
var ErrInvalidAction = errors.New("invalid action")

// Submitter delivers a batch of actions to the server.
type Submitter interface {
	Sync(ctx context.Context, actions []model.SyncAction) (*model.SyncResponse, error)
}

// FlushResult reports what a flush submitted and how the server answered.
type FlushResult struct {
	Submitted int                `json:"submitted"`
	Synced    int                `json:"synced"`
	Results   []model.SyncResult `json:"results"`
}

// Queue is a durable FIFO of offline actions.
type Queue struct {
	db    *sql.DB
	flush sync.Mutex
	now   func() time.Time
}

// Open opens (or creates) the queue file at path.
func Open(path string) (*Queue, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, err
	}

	q, err := New(database)
	if err != nil {
		database.Close()
		return nil, err
	}
	return q, nil
}

// New creates a queue on an open database.
func New(database *sql.DB) (*Queue, error) {
	if err := db.EnsureClientSchema(database); err != nil {
		return nil, err
	}
	return &Queue{db: database, now: time.Now}, nil
}

// Close closes the underlying database.
func (q *Queue) Close() error {
	return q.db.Close()
}

// Enqueue appends an action. Actions without an idempotency key get a
// fresh one so a resubmitted batch is not applied twice.
func (q *Queue) Enqueue(ctx context.Context, action model.SyncAction) (*model.QueuedAction, error) {
	if err := validate(action); err != nil {
		return nil, err
	}
	if action.Key == "" {
		action.Key = uuid.NewString()
	}

	payload, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("encoding action: %w", err)
	}

	enqueuedAt := q.now().UTC()
	result, err := q.db.ExecContext(ctx,
		`INSERT INTO queue (key, type, payload, enqueued_at) VALUES (?, ?, ?, ?)`,
		action.Key, action.Type, string(payload), enqueuedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("enqueuing action: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting queue id: %w", err)
	}

	return &model.QueuedAction{LocalID: id, Action: action, EnqueuedAt: enqueuedAt}, nil
}

func validate(action model.SyncAction) error {
	switch action.Type {
	case model.ActionTypeAssign:
		if action.UserID <= 0 {
			return fmt.Errorf("%w: assign requires a user", ErrInvalidAction)
		}
	case model.ActionTypeReturn:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidAction, action.Type)
	}
	if action.DeviceID <= 0 {
		return fmt.Errorf("%w: device is required", ErrInvalidAction)
	}
	return nil
}

// List returns queued actions in insertion order.
func (q *Queue) List(ctx context.Context) ([]model.QueuedAction, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, payload, enqueued_at FROM queue ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing queue: %w", err)
	}
	defer rows.Close()

	var actions []model.QueuedAction
	for rows.Next() {
		var qa model.QueuedAction
		var payload string
		if err := rows.Scan(&qa.LocalID, &payload, &qa.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("scanning queued action: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &qa.Action); err != nil {
			return nil, fmt.Errorf("decoding queued action %d: %w", qa.LocalID, err)
		}
		actions = append(actions, qa)
	}
	return actions, rows.Err()
}

// Len returns the number of queued actions.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting queue: %w", err)
	}
	return n, nil
}

// Flush submits every queued action as one batch. If the submission
// fails the queue is unchanged and the error wraps ErrSyncFailed.
// Otherwise the submitted actions are removed regardless of their
// individual outcomes; actions enqueued during the flush stay queued.
// Concurrent flushes are serialized.
func (q *Queue) Flush(ctx context.Context, s Submitter) (*FlushResult, error) {
	q.flush.Lock()
	defer q.flush.Unlock()

	queued, err := q.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(queued) == 0 {
		return &FlushResult{Results: []model.SyncResult{}}, nil
	}

	actions := make([]model.SyncAction, len(queued))
	ids := make([]any, len(queued))
	for i, qa := range queued {
		actions[i] = qa.Action
		ids[i] = qa.LocalID
	}

	resp, err := s.Sync(ctx, actions)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSyncFailed, err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	if _, err := q.db.ExecContext(ctx, `DELETE FROM queue WHERE id IN (`+placeholders+`)`, ids...); err != nil {
		return nil, fmt.Errorf("removing flushed actions: %w", err)
	}

	return &FlushResult{
		Submitted: len(actions),
		Synced:    resp.Synced,
		Results:   resp.Results,
	}, nil
}
