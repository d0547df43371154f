package lifecycle

import (
	"context"
	"time"

	"github.com/erazemk/devtrack/internal/model"
)

// Store is the persistence collaborator. Update runs fn in one
// transaction that commits only if fn returns nil; View runs fn without
// write guarantees.
type Store interface {
	Update(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error
}

// Tx is the set of record operations available inside a Store call.
// Lookups return nil, nil when the record does not exist.
type Tx interface {
	GetDevice(ctx context.Context, id int64) (*model.Device, error)
	GetDeviceBySerial(ctx context.Context, serial string) (*model.Device, error)
	CreateDevice(ctx context.Context, d model.NewDevice, at time.Time) (*model.Device, error)
	ListDevices(ctx context.Context, f model.DeviceFilter) ([]model.Device, error)
	SetDeviceStatus(ctx context.Context, id int64, status string, at time.Time) error
	CountDevicesByStatus(ctx context.Context) (map[string]int, error)

	GetUser(ctx context.Context, id int64) (*model.User, error)

	CreateAssignment(ctx context.Context, a *model.Assignment) error
	GetAssignment(ctx context.Context, id int64) (*model.Assignment, error)
	LatestActiveAssignment(ctx context.Context, deviceID int64) (*model.Assignment, error)
	UpdateAssignment(ctx context.Context, a *model.Assignment) error
	ListDeviceAssignments(ctx context.Context, deviceID int64) ([]model.Assignment, error)
	ListAssignmentsByStatus(ctx context.Context, status string) ([]model.Assignment, error)
	CountOverdueAssignments(ctx context.Context, cutoff time.Time) (int, error)

	AppendAudit(ctx context.Context, e *model.AuditEntry) error
	ListAudit(ctx context.Context, entity string, entityID int64) ([]model.AuditEntry, error)

	AddMaintenance(ctx context.Context, m *model.MaintenanceRecord) error
	ListMaintenance(ctx context.Context, deviceID int64) ([]model.MaintenanceRecord, error)

	GetReceipt(ctx context.Context, key string) (*model.SyncReceipt, error)
	PutReceipt(ctx context.Context, r *model.SyncReceipt) error
}
