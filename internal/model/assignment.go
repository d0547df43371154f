package model

import "time"

// Assignment is one custody episode linking a device to a user.
type Assignment struct {
	ID              int64      `json:"id"`
	DeviceID        int64      `json:"device_id"`
	UserID          int64      `json:"user_id"`
	RequestedBy     *int64     `json:"requested_by,omitempty"`
	ApprovedBy      *int64     `json:"approved_by,omitempty"`
	Status          string     `json:"status"`
	AssignedAt      *time.Time `json:"assigned_at,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	ReturnedAt      *time.Time `json:"returned_at,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	ReturnCondition string     `json:"return_condition,omitempty"`
	ReturnNotes     string     `json:"return_notes,omitempty"`
	ReturnPhoto     string     `json:"return_photo,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Assignment statuses. Returned is terminal.
const (
	AssignmentPending  = "pending_approval"
	AssignmentAssigned = "assigned"
	AssignmentReturned = "returned"
)

// AssignRequest asks for a device to be handed to a user.
type AssignRequest struct {
	DeviceID int64  `json:"deviceId"`
	UserID   int64  `json:"userId"`
	Notes    string `json:"notes"`
}

// ReturnRequest closes an active assignment.
type ReturnRequest struct {
	Target    ReturnTarget `json:"-"`
	Condition string       `json:"condition"`
	Notes     string       `json:"notes"`
	PhotoRef  string       `json:"-"`
}

type returnBy int

const (
	returnByAssignment returnBy = iota + 1
	returnByDevice
)

// ReturnTarget selects the assignment a return applies to.
type ReturnTarget struct {
	by returnBy
	id int64
}

// ByAssignmentID targets an explicit assignment.
func ByAssignmentID(id int64) ReturnTarget {
	return ReturnTarget{by: returnByAssignment, id: id}
}

// LatestActiveForDevice targets the most recently created assigned
// assignment of a device.
func LatestActiveForDevice(deviceID int64) ReturnTarget {
	return ReturnTarget{by: returnByDevice, id: deviceID}
}

// AssignmentID returns the explicit assignment id, if the target has one.
func (t ReturnTarget) AssignmentID() (int64, bool) {
	return t.id, t.by == returnByAssignment
}

// DeviceID returns the device id, if the target is a device lookup.
func (t ReturnTarget) DeviceID() (int64, bool) {
	return t.id, t.by == returnByDevice
}

// Valid reports whether the target was built by one of the constructors
// with a positive id.
func (t ReturnTarget) Valid() bool {
	return t.by != 0 && t.id > 0
}
