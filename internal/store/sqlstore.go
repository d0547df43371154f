package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/devtrack/internal/lifecycle"
	"github.com/erazemk/devtrack/internal/model"
)

// SQLStore runs lifecycle operations against the SQLite database.
type SQLStore struct {
	DB *sql.DB
}

var _ lifecycle.Store = (*SQLStore)(nil)

// NewSQLStore wraps an open database.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{DB: db}
}

// Update runs fn in a transaction and commits if it returns nil.
func (s *SQLStore) Update(ctx context.Context, fn func(lifecycle.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(queries{tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// View runs fn directly against the database.
func (s *SQLStore) View(ctx context.Context, fn func(lifecycle.Tx) error) error {
	return fn(queries{s.DB})
}

// queries binds the package functions to one Querier.
type queries struct {
	q Querier
}

func (x queries) GetDevice(ctx context.Context, id int64) (*model.Device, error) {
	return GetDevice(ctx, x.q, id)
}

func (x queries) GetDeviceBySerial(ctx context.Context, serial string) (*model.Device, error) {
	return GetDeviceBySerial(ctx, x.q, serial)
}

func (x queries) CreateDevice(ctx context.Context, d model.NewDevice, at time.Time) (*model.Device, error) {
	return CreateDevice(ctx, x.q, d, at)
}

func (x queries) ListDevices(ctx context.Context, f model.DeviceFilter) ([]model.Device, error) {
	return ListDevices(ctx, x.q, f)
}

func (x queries) SetDeviceStatus(ctx context.Context, id int64, status string, at time.Time) error {
	return SetDeviceStatus(ctx, x.q, id, status, at)
}

func (x queries) CountDevicesByStatus(ctx context.Context) (map[string]int, error) {
	return CountDevicesByStatus(ctx, x.q)
}

func (x queries) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return GetUser(ctx, x.q, id)
}

func (x queries) CreateAssignment(ctx context.Context, a *model.Assignment) error {
	return CreateAssignment(ctx, x.q, a)
}

func (x queries) GetAssignment(ctx context.Context, id int64) (*model.Assignment, error) {
	return GetAssignment(ctx, x.q, id)
}

func (x queries) LatestActiveAssignment(ctx context.Context, deviceID int64) (*model.Assignment, error) {
	return LatestActiveAssignment(ctx, x.q, deviceID)
}

func (x queries) UpdateAssignment(ctx context.Context, a *model.Assignment) error {
	return UpdateAssignment(ctx, x.q, a)
}

func (x queries) ListDeviceAssignments(ctx context.Context, deviceID int64) ([]model.Assignment, error) {
	return ListDeviceAssignments(ctx, x.q, deviceID)
}

func (x queries) ListAssignmentsByStatus(ctx context.Context, status string) ([]model.Assignment, error) {
	return ListAssignmentsByStatus(ctx, x.q, status)
}

func (x queries) CountOverdueAssignments(ctx context.Context, cutoff time.Time) (int, error) {
	return CountOverdueAssignments(ctx, x.q, cutoff)
}

func (x queries) AppendAudit(ctx context.Context, e *model.AuditEntry) error {
	return AppendAudit(ctx, x.q, e)
}

func (x queries) ListAudit(ctx context.Context, entity string, entityID int64) ([]model.AuditEntry, error) {
	return ListAudit(ctx, x.q, entity, entityID)
}

func (x queries) AddMaintenance(ctx context.Context, m *model.MaintenanceRecord) error {
	return AddMaintenance(ctx, x.q, m)
}

func (x queries) ListMaintenance(ctx context.Context, deviceID int64) ([]model.MaintenanceRecord, error) {
	return ListMaintenance(ctx, x.q, deviceID)
}

func (x queries) GetReceipt(ctx context.Context, key string) (*model.SyncReceipt, error) {
	return GetReceipt(ctx, x.q, key)
}

func (x queries) PutReceipt(ctx context.Context, r *model.SyncReceipt) error {
	return PutReceipt(ctx, x.q, r)
}
