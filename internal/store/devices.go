package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/erazemk/devtrack/internal/model"
)

const deviceColumns = `id, name, serial, category, location, status, created_at, updated_at`

// CreateDevice inserts a device. The caller picks the initial status.
func CreateDevice(ctx context.Context, q Querier, d model.NewDevice, at time.Time) (*model.Device, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO devices (name, serial, category, location, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.Name, d.Serial, d.Category, nullableString(d.Location), d.Status, at, at,
	)
	if err != nil {
		return nil, fmt.Errorf("creating device: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting device id: %w", err)
	}

	return GetDevice(ctx, q, id)
}

// GetDevice returns a device by ID, or nil if it does not exist.
func GetDevice(ctx context.Context, q Querier, id int64) (*model.Device, error) {
	d, err := scanDevice(q.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting device: %w", err)
	}
	return d, nil
}

// GetDeviceBySerial returns the device with the given serial, or nil.
func GetDeviceBySerial(ctx context.Context, q Querier, serial string) (*model.Device, error) {
	d, err := scanDevice(q.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE serial = ?`, serial))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting device by serial: %w", err)
	}
	return d, nil
}

// ListDevices returns devices matching the filter, newest first.
// Text filters are case-insensitive substring matches.
func ListDevices(ctx context.Context, q Querier, f model.DeviceFilter) ([]model.Device, error) {
	var conditions []string
	var args []any

	if f.ID > 0 {
		conditions = append(conditions, "id = ?")
		args = append(args, f.ID)
	}
	for _, c := range []struct{ column, value string }{
		{"name", f.Name},
		{"serial", f.Serial},
		{"category", f.Category},
		{"location", f.Location},
	} {
		if c.value != "" {
			conditions = append(conditions, c.column+" LIKE ?")
			args = append(args, "%"+c.value+"%")
		}
	}
	if f.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, f.Status)
	}
	if f.UserID > 0 {
		conditions = append(conditions,
			`EXISTS (SELECT 1 FROM assignments a
			         WHERE a.device_id = devices.id AND a.user_id = ? AND a.status = 'assigned')`)
		args = append(args, f.UserID)
	}

	query := `SELECT ` + deviceColumns + ` FROM devices`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id DESC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var devices []model.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	return devices, rows.Err()
}

// SetDeviceStatus overwrites a device's status.
func SetDeviceStatus(ctx context.Context, q Querier, id int64, status string, at time.Time) error {
	result, err := q.ExecContext(ctx,
		`UPDATE devices SET status = ?, updated_at = ? WHERE id = ?`,
		status, at, id,
	)
	if err != nil {
		return fmt.Errorf("setting device status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("setting device status: device %d does not exist", id)
	}
	return nil
}

// CountDevicesByStatus returns the number of devices per status.
func CountDevicesByStatus(ctx context.Context, q Querier) (map[string]int, error) {
	rows, err := q.QueryContext(ctx, `SELECT status, COUNT(*) FROM devices GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting devices: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning device count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func scanDevice(s scanner) (*model.Device, error) {
	d := &model.Device{}
	var location sql.NullString
	if err := s.Scan(&d.ID, &d.Name, &d.Serial, &d.Category, &location, &d.Status, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Location = location.String
	return d, nil
}
