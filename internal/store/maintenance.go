package store

import (
	"context"
	"fmt"

	"github.com/erazemk/devtrack/internal/model"
)

// AddMaintenance records a maintenance activity and fills in its ID.
func AddMaintenance(ctx context.Context, q Querier, m *model.MaintenanceRecord) error {
	result, err := q.ExecContext(ctx,
		`INSERT INTO maintenance (device_id, description, created_by, created_at) VALUES (?, ?, ?, ?)`,
		m.DeviceID, m.Description, m.CreatedBy, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("adding maintenance record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting maintenance id: %w", err)
	}
	m.ID = id
	return nil
}

// ListMaintenance returns the maintenance records of a device, newest first.
func ListMaintenance(ctx context.Context, q Querier, deviceID int64) ([]model.MaintenanceRecord, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, device_id, description, created_by, created_at
		 FROM maintenance WHERE device_id = ? ORDER BY id DESC`, deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing maintenance: %w", err)
	}
	defer rows.Close()

	var records []model.MaintenanceRecord
	for rows.Next() {
		var m model.MaintenanceRecord
		if err := rows.Scan(&m.ID, &m.DeviceID, &m.Description, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning maintenance record: %w", err)
		}
		records = append(records, m)
	}
	return records, rows.Err()
}
