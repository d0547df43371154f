package model

import "time"

// AuditEntry is one append-only audit record.
type AuditEntry struct {
	ID        int64     `json:"id"`
	Entity    string    `json:"entity"`
	EntityID  int64     `json:"entity_id"`
	Action    string    `json:"action"`
	OldStatus string    `json:"old_status,omitempty"`
	NewStatus string    `json:"new_status,omitempty"`
	Comments  string    `json:"comments,omitempty"`
	ActorID   *int64    `json:"actor_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Audited entity kinds.
const (
	EntityDevice     = "device"
	EntityAssignment = "assignment"
)

// Audit actions written by the lifecycle engine.
const (
	ActionCreated           = "created"
	ActionStatusChange      = "status_change"
	ActionRequested         = "requested"
	ActionAssigned          = "assigned"
	ActionApproved          = "approved"
	ActionReturned          = "returned"
	ActionMaintenanceLogged = "maintenance_logged"
)
