package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/devtrack/internal/model"
)

// AppendAudit appends an entry to the audit log and fills in its ID.
// CreatedAt defaults to now. The log has no update or delete path.
func AppendAudit(ctx context.Context, q Querier, e *model.AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	result, err := q.ExecContext(ctx,
		`INSERT INTO audit_logs (entity, entity_id, action, old_status, new_status, comments, actor_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Entity, e.EntityID, e.Action,
		nullableString(e.OldStatus), nullableString(e.NewStatus), nullableString(e.Comments),
		e.ActorID, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting audit entry id: %w", err)
	}
	e.ID = id
	return nil
}

// ListAudit returns the audit entries of one entity, newest first.
func ListAudit(ctx context.Context, q Querier, entity string, entityID int64) ([]model.AuditEntry, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, entity, entity_id, action, old_status, new_status, comments, actor_id, created_at
		 FROM audit_logs WHERE entity = ? AND entity_id = ?
		 ORDER BY id DESC`, entity, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var oldStatus, newStatus, comments sql.NullString
		if err := rows.Scan(&e.ID, &e.Entity, &e.EntityID, &e.Action,
			&oldStatus, &newStatus, &comments, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.OldStatus = oldStatus.String
		e.NewStatus = newStatus.String
		e.Comments = comments.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
