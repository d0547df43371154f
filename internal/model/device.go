package model

import "time"

// Device is a tracked physical asset and its current custody status.
type Device struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Serial    string    `json:"serial"`
	Category  string    `json:"category"`
	Location  string    `json:"location,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Device statuses.
const (
	DeviceStatusInventory   = "inventory"
	DeviceStatusAssigned    = "assigned"
	DeviceStatusMaintenance = "maintenance"
	DeviceStatusRetired     = "retired"
	DeviceStatusLost        = "lost"
)

// DeviceStatuses lists every accepted device status.
var DeviceStatuses = []string{
	DeviceStatusInventory,
	DeviceStatusAssigned,
	DeviceStatusMaintenance,
	DeviceStatusRetired,
	DeviceStatusLost,
}

// ValidDeviceStatus reports whether status is in the fixed status set.
// Any valid status may follow any other.
func ValidDeviceStatus(status string) bool {
	for _, s := range DeviceStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// NewDevice holds the fields supplied at intake.
type NewDevice struct {
	Name     string `json:"name"`
	Serial   string `json:"serial"`
	Category string `json:"category"`
	Location string `json:"location"`
	Status   string `json:"status"`
}

// DeviceFilter narrows a device listing. Zero values are ignored.
type DeviceFilter struct {
	ID       int64
	Name     string
	Serial   string
	Category string
	Location string
	Status   string
	UserID   int64 // devices currently assigned to this user
}

// MaintenanceRecord is a logged maintenance activity on a device.
type MaintenanceRecord struct {
	ID          int64     `json:"id"`
	DeviceID    int64     `json:"device_id"`
	Description string    `json:"description"`
	CreatedBy   *int64    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DeviceDetail bundles a device with its history.
type DeviceDetail struct {
	Device      *Device             `json:"device"`
	Assignments []Assignment        `json:"assignments"`
	Maintenance []MaintenanceRecord `json:"maintenance"`
	Audit       []AuditEntry        `json:"audit"`
}

// DashboardStats summarizes device custody.
type DashboardStats struct {
	Available   int `json:"available"`
	Assigned    int `json:"assigned"`
	Maintenance int `json:"maintenance"`
	Retired     int `json:"retired"`
	Lost        int `json:"lost"`
	Overdue     int `json:"overdue"`
}
