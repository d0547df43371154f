package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/devtrack/internal/model"
)

const assignmentColumns = `id, device_id, user_id, requested_by, approved_by, status,
	assigned_at, approved_at, returned_at, notes, return_condition, return_notes, return_photo, created_at`

// CreateAssignment inserts an assignment and fills in its ID.
func CreateAssignment(ctx context.Context, q Querier, a *model.Assignment) error {
	result, err := q.ExecContext(ctx,
		`INSERT INTO assignments (device_id, user_id, requested_by, approved_by, status,
		                          assigned_at, approved_at, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.DeviceID, a.UserID, a.RequestedBy, a.ApprovedBy, a.Status,
		a.AssignedAt, a.ApprovedAt, nullableString(a.Notes), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating assignment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting assignment id: %w", err)
	}
	a.ID = id
	return nil
}

// GetAssignment returns an assignment by ID, or nil if it does not exist.
func GetAssignment(ctx context.Context, q Querier, id int64) (*model.Assignment, error) {
	a, err := scanAssignment(q.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting assignment: %w", err)
	}
	return a, nil
}

// LatestActiveAssignment returns the most recently created assignment with
// status assigned for a device, or nil if the device has none.
func LatestActiveAssignment(ctx context.Context, q Querier, deviceID int64) (*model.Assignment, error) {
	a, err := scanAssignment(q.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments
		 WHERE device_id = ? AND status = 'assigned'
		 ORDER BY id DESC LIMIT 1`, deviceID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting active assignment: %w", err)
	}
	return a, nil
}

// UpdateAssignment writes the mutable fields of an assignment. Returned
// assignments are immutable and cannot be updated.
func UpdateAssignment(ctx context.Context, q Querier, a *model.Assignment) error {
	result, err := q.ExecContext(ctx,
		`UPDATE assignments
		 SET status = ?, approved_by = ?, assigned_at = ?, approved_at = ?, returned_at = ?,
		     return_condition = ?, return_notes = ?, return_photo = ?
		 WHERE id = ? AND status != 'returned'`,
		a.Status, a.ApprovedBy, a.AssignedAt, a.ApprovedAt, a.ReturnedAt,
		nullableString(a.ReturnCondition), nullableString(a.ReturnNotes), nullableString(a.ReturnPhoto),
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("updating assignment: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("updating assignment: assignment %d is missing or returned", a.ID)
	}
	return nil
}

// ListDeviceAssignments returns all assignments of a device, newest first.
func ListDeviceAssignments(ctx context.Context, q Querier, deviceID int64) ([]model.Assignment, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE device_id = ? ORDER BY id DESC`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("listing device assignments: %w", err)
	}
	defer rows.Close()

	return scanAssignments(rows)
}

// ListAssignmentsByStatus returns all assignments with a status, newest first.
func ListAssignmentsByStatus(ctx context.Context, q Querier, status string) ([]model.Assignment, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE status = ? ORDER BY id DESC`, status)
	if err != nil {
		return nil, fmt.Errorf("listing assignments: %w", err)
	}
	defer rows.Close()

	return scanAssignments(rows)
}

// CountOverdueAssignments counts active assignments handed out before cutoff.
func CountOverdueAssignments(ctx context.Context, q Querier, cutoff time.Time) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assignments
		 WHERE status = 'assigned' AND returned_at IS NULL AND assigned_at < ?`, cutoff,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting overdue assignments: %w", err)
	}
	return n, nil
}

func scanAssignments(rows *sql.Rows) ([]model.Assignment, error) {
	var assignments []model.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning assignment: %w", err)
		}
		assignments = append(assignments, *a)
	}
	return assignments, rows.Err()
}

func scanAssignment(s scanner) (*model.Assignment, error) {
	a := &model.Assignment{}
	var notes, condition, returnNotes, photo sql.NullString
	if err := s.Scan(&a.ID, &a.DeviceID, &a.UserID, &a.RequestedBy, &a.ApprovedBy, &a.Status,
		&a.AssignedAt, &a.ApprovedAt, &a.ReturnedAt, &notes, &condition, &returnNotes, &photo,
		&a.CreatedAt); err != nil {
		return nil, err
	}
	a.Notes = notes.String
	a.ReturnCondition = condition.String
	a.ReturnNotes = returnNotes.String
	a.ReturnPhoto = photo.String
	return a, nil
}
