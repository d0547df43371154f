// Package lifecycle is the single authority for device and assignment
// state changes. Every accepted change is applied atomically together with
// its audit entries, and events are published after commit.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/erazemk/devtrack/internal/model"
)

// DefaultOverdueAfter is how long an assignment may stay active before it
// counts as overdue.
const DefaultOverdueAfter = 7 * 24 * time.Hour

// Engine validates and applies lifecycle transitions.
type Engine struct {
	store        Store
	events       Publisher
	logger       *slog.Logger
	now          func() time.Time
	overdueAfter time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithOverdueAfter sets the overdue threshold used by DashboardStats.
func WithOverdueAfter(d time.Duration) Option {
	return func(e *Engine) { e.overdueAfter = d }
}

// New creates an engine. A nil publisher discards events.
func New(store Store, pub Publisher, opts ...Option) *Engine {
	if pub == nil {
		pub = discard{}
	}
	e := &Engine{
		store:        store,
		events:       pub,
		logger:       slog.Default(),
		now:          time.Now,
		overdueAfter: DefaultOverdueAfter,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) timestamp() time.Time {
	return e.now().UTC()
}

// update runs fn in one transaction. Collected events are published after
// commit, followed by a single dashboard update.
func (e *Engine) update(ctx context.Context, fn func(tx Tx, out *outbox) error) error {
	var out outbox
	err := e.store.Update(ctx, func(tx Tx) error {
		out = out[:0]
		return fn(tx, &out)
	})
	if err != nil {
		return classify(err)
	}
	if len(out) > 0 {
		e.publish(out)
		e.events.Publish(EventDashboardUpdate, nil)
	}
	return nil
}

func (e *Engine) view(ctx context.Context, fn func(tx Tx) error) error {
	return classify(e.store.View(ctx, fn))
}

func (e *Engine) publish(out outbox) {
	for _, ev := range out {
		e.events.Publish(ev.name, ev.payload)
	}
}

func actorRef(actor model.Actor) *int64 {
	if actor.ID <= 0 {
		return nil
	}
	id := actor.ID
	return &id
}

// CreateDevice registers a new device. Devices enter service unassigned,
// in inventory unless another valid status is given.
func (e *Engine) CreateDevice(ctx context.Context, actor model.Actor, in model.NewDevice) (*model.Device, error) {
	if !actor.AtLeast(model.RoleManager) {
		return nil, newError(ErrForbidden, "manager role required")
	}

	in.Name = strings.TrimSpace(in.Name)
	in.Serial = strings.TrimSpace(in.Serial)
	in.Category = strings.TrimSpace(in.Category)
	in.Location = strings.TrimSpace(in.Location)
	if in.Name == "" || in.Serial == "" || in.Category == "" {
		return nil, newError(ErrInvalidInput, "name, serial and category are required")
	}
	if in.Status == "" {
		in.Status = model.DeviceStatusInventory
	}
	if !model.ValidDeviceStatus(in.Status) || in.Status == model.DeviceStatusAssigned {
		return nil, newError(ErrInvalidTransition, "invalid initial status %q", in.Status)
	}

	var device *model.Device
	err := e.update(ctx, func(tx Tx, out *outbox) error {
		existing, err := tx.GetDeviceBySerial(ctx, in.Serial)
		if err != nil {
			return err
		}
		if existing != nil {
			return newError(ErrInvalidState, "serial %q is already registered to device %d", in.Serial, existing.ID)
		}

		now := e.timestamp()
		device, err = tx.CreateDevice(ctx, in, now)
		if err != nil {
			return err
		}

		if err := tx.AppendAudit(ctx, &model.AuditEntry{
			Entity:    model.EntityDevice,
			EntityID:  device.ID,
			Action:    model.ActionCreated,
			NewStatus: device.Status,
			ActorID:   actorRef(actor),
			CreatedAt: now,
		}); err != nil {
			return err
		}

		out.add(EventDeviceCreated, device)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("device created", "device", device.ID, "serial", device.Serial, "actor", actor.ID)
	return device, nil
}

// ListDevices returns devices matching the filter, newest first.
func (e *Engine) ListDevices(ctx context.Context, f model.DeviceFilter) ([]model.Device, error) {
	if f.Status != "" && !model.ValidDeviceStatus(f.Status) {
		return nil, newError(ErrInvalidInput, "invalid status filter %q", f.Status)
	}

	var devices []model.Device
	err := e.view(ctx, func(tx Tx) error {
		var err error
		devices, err = tx.ListDevices(ctx, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []model.Device{}
	}
	return devices, nil
}

// DeviceDetail returns a device with its assignments, maintenance records
// and audit history.
func (e *Engine) DeviceDetail(ctx context.Context, id int64) (*model.DeviceDetail, error) {
	detail := &model.DeviceDetail{}
	err := e.view(ctx, func(tx Tx) error {
		device, err := tx.GetDevice(ctx, id)
		if err != nil {
			return err
		}
		if device == nil {
			return newError(ErrNotFound, "device %d not found", id)
		}
		detail.Device = device

		if detail.Assignments, err = tx.ListDeviceAssignments(ctx, id); err != nil {
			return err
		}
		if detail.Maintenance, err = tx.ListMaintenance(ctx, id); err != nil {
			return err
		}
		detail.Audit, err = tx.ListAudit(ctx, model.EntityDevice, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	if detail.Assignments == nil {
		detail.Assignments = []model.Assignment{}
	}
	if detail.Maintenance == nil {
		detail.Maintenance = []model.MaintenanceRecord{}
	}
	if detail.Audit == nil {
		detail.Audit = []model.AuditEntry{}
	}
	return detail, nil
}

// ChangeDeviceStatus overrides a device's status. Any status in the fixed
// set may follow any other.
func (e *Engine) ChangeDeviceStatus(ctx context.Context, actor model.Actor, id int64, status, comments string) (*model.Device, error) {
	if !actor.IsAdmin() {
		return nil, newError(ErrForbidden, "admin role required")
	}
	if !model.ValidDeviceStatus(status) {
		return nil, newError(ErrInvalidTransition, "invalid status %q", status)
	}

	var device *model.Device
	var oldStatus string
	err := e.update(ctx, func(tx Tx, out *outbox) error {
		current, err := tx.GetDevice(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return newError(ErrNotFound, "device %d not found", id)
		}
		oldStatus = current.Status

		now := e.timestamp()
		if err := tx.SetDeviceStatus(ctx, id, status, now); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, &model.AuditEntry{
			Entity:    model.EntityDevice,
			EntityID:  id,
			Action:    model.ActionStatusChange,
			OldStatus: oldStatus,
			NewStatus: status,
			Comments:  comments,
			ActorID:   actorRef(actor),
			CreatedAt: now,
		}); err != nil {
			return err
		}

		current.Status = status
		current.UpdatedAt = now
		device = current
		out.add(EventDeviceStatus, DeviceStatusPayload{ID: id, Status: status})
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("device status changed", "device", id, "from", oldStatus, "to", status, "actor", actor.ID)
	return device, nil
}

// CreateAssignment requests custody of a device for a user. When approval
// is required and the requester is not an admin, the assignment waits in
// pending_approval and the device is untouched.
func (e *Engine) CreateAssignment(ctx context.Context, actor model.Actor, req model.AssignRequest, requiresApproval bool) (*model.Assignment, error) {
	if err := validateAssign(req); err != nil {
		return nil, err
	}

	pending := requiresApproval && !actor.IsAdmin()

	var assignment *model.Assignment
	err := e.update(ctx, func(tx Tx, out *outbox) error {
		var err error
		if pending {
			assignment, err = e.request(ctx, tx, actor, req)
		} else {
			assignment, err = e.assign(ctx, tx, out, actor, req)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("assignment created", "assignment", assignment.ID, "device", req.DeviceID,
		"user", req.UserID, "status", assignment.Status, "actor", actor.ID)
	return assignment, nil
}

func validateAssign(req model.AssignRequest) error {
	if req.DeviceID <= 0 {
		return newError(ErrInvalidInput, "deviceId is required")
	}
	if req.UserID <= 0 {
		return newError(ErrInvalidInput, "userId is required")
	}
	return nil
}

// custodyTarget loads the device and user of an assignment request.
func custodyTarget(ctx context.Context, tx Tx, req model.AssignRequest) (*model.Device, error) {
	device, err := tx.GetDevice(ctx, req.DeviceID)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, newError(ErrNotFound, "device %d not found", req.DeviceID)
	}

	user, err := tx.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.DeletedAt != nil {
		return nil, newError(ErrNotFound, "user %d not found", req.UserID)
	}

	if device.Status == model.DeviceStatusRetired || device.Status == model.DeviceStatusLost {
		return nil, newError(ErrInvalidState, "device %d is %s", device.ID, device.Status)
	}
	return device, nil
}

// ensureUnassigned keeps at most one active assignment per device.
func ensureUnassigned(ctx context.Context, tx Tx, deviceID int64) error {
	active, err := tx.LatestActiveAssignment(ctx, deviceID)
	if err != nil {
		return err
	}
	if active != nil {
		return newError(ErrInvalidState, "device %d is already assigned (assignment %d)", deviceID, active.ID)
	}
	return nil
}

func (e *Engine) request(ctx context.Context, tx Tx, actor model.Actor, req model.AssignRequest) (*model.Assignment, error) {
	if _, err := custodyTarget(ctx, tx, req); err != nil {
		return nil, err
	}

	now := e.timestamp()
	a := &model.Assignment{
		DeviceID:    req.DeviceID,
		UserID:      req.UserID,
		RequestedBy: actorRef(actor),
		Status:      model.AssignmentPending,
		Notes:       req.Notes,
		CreatedAt:   now,
	}
	if err := tx.CreateAssignment(ctx, a); err != nil {
		return nil, err
	}

	err := tx.AppendAudit(ctx, &model.AuditEntry{
		Entity:    model.EntityAssignment,
		EntityID:  a.ID,
		Action:    model.ActionRequested,
		NewStatus: model.AssignmentPending,
		Comments:  req.Notes,
		ActorID:   actorRef(actor),
		CreatedAt: now,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// assign creates an active assignment directly, bypassing approval.
func (e *Engine) assign(ctx context.Context, tx Tx, out *outbox, actor model.Actor, req model.AssignRequest) (*model.Assignment, error) {
	device, err := custodyTarget(ctx, tx, req)
	if err != nil {
		return nil, err
	}
	if err := ensureUnassigned(ctx, tx, device.ID); err != nil {
		return nil, err
	}

	now := e.timestamp()
	a := &model.Assignment{
		DeviceID:    req.DeviceID,
		UserID:      req.UserID,
		RequestedBy: actorRef(actor),
		Status:      model.AssignmentAssigned,
		AssignedAt:  &now,
		Notes:       req.Notes,
		CreatedAt:   now,
	}
	if err := tx.CreateAssignment(ctx, a); err != nil {
		return nil, err
	}
	if err := e.takeCustody(ctx, tx, actor, device, a, "", model.ActionAssigned, now); err != nil {
		return nil, err
	}

	out.add(EventAssignmentCreated, a)
	return a, nil
}

// takeCustody marks the device assigned and audits both sides of the
// transition.
func (e *Engine) takeCustody(ctx context.Context, tx Tx, actor model.Actor, device *model.Device, a *model.Assignment, oldAssignmentStatus, action string, now time.Time) error {
	if err := tx.SetDeviceStatus(ctx, device.ID, model.DeviceStatusAssigned, now); err != nil {
		return err
	}

	entries := []*model.AuditEntry{
		{
			Entity:    model.EntityAssignment,
			EntityID:  a.ID,
			Action:    action,
			OldStatus: oldAssignmentStatus,
			NewStatus: model.AssignmentAssigned,
			Comments:  a.Notes,
		},
		{
			Entity:    model.EntityDevice,
			EntityID:  device.ID,
			Action:    model.ActionAssigned,
			OldStatus: device.Status,
			NewStatus: model.DeviceStatusAssigned,
			Comments:  fmt.Sprintf("assignment %d to user %d", a.ID, a.UserID),
		},
	}
	for _, entry := range entries {
		entry.ActorID = actorRef(actor)
		entry.CreatedAt = now
		if err := tx.AppendAudit(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

// ApproveAssignment activates a pending assignment.
func (e *Engine) ApproveAssignment(ctx context.Context, actor model.Actor, id int64) (*model.Assignment, error) {
	if !actor.IsAdmin() {
		return nil, newError(ErrForbidden, "admin role required")
	}

	var assignment *model.Assignment
	err := e.update(ctx, func(tx Tx, out *outbox) error {
		a, err := tx.GetAssignment(ctx, id)
		if err != nil {
			return err
		}
		if a == nil {
			return newError(ErrNotFound, "assignment %d not found", id)
		}
		if a.Status != model.AssignmentPending {
			return newError(ErrInvalidState, "assignment %d is %s, not pending approval", id, a.Status)
		}

		device, err := custodyTarget(ctx, tx, model.AssignRequest{DeviceID: a.DeviceID, UserID: a.UserID})
		if err != nil {
			return err
		}
		if err := ensureUnassigned(ctx, tx, device.ID); err != nil {
			return err
		}

		now := e.timestamp()
		a.Status = model.AssignmentAssigned
		a.AssignedAt = &now
		a.ApprovedAt = &now
		a.ApprovedBy = actorRef(actor)
		if err := tx.UpdateAssignment(ctx, a); err != nil {
			return err
		}
		if err := e.takeCustody(ctx, tx, actor, device, a, model.AssignmentPending, model.ActionApproved, now); err != nil {
			return err
		}

		assignment = a
		out.add(EventAssignmentApproved, a)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("assignment approved", "assignment", id, "device", assignment.DeviceID, "actor", actor.ID)
	return assignment, nil
}

// ReturnAssignment closes an active assignment and puts the device back
// into inventory.
func (e *Engine) ReturnAssignment(ctx context.Context, actor model.Actor, req model.ReturnRequest) (*model.Assignment, error) {
	if !req.Target.Valid() {
		return nil, newError(ErrInvalidInput, "assignmentId or deviceId is required")
	}

	var assignment *model.Assignment
	err := e.update(ctx, func(tx Tx, out *outbox) error {
		var err error
		assignment, err = e.giveBack(ctx, tx, out, actor, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("assignment returned", "assignment", assignment.ID, "device", assignment.DeviceID,
		"condition", assignment.ReturnCondition, "actor", actor.ID)
	return assignment, nil
}

// resolveReturn finds the assignment a return request targets.
func resolveReturn(ctx context.Context, tx Tx, target model.ReturnTarget) (*model.Assignment, error) {
	if id, ok := target.AssignmentID(); ok {
		a, err := tx.GetAssignment(ctx, id)
		if err != nil {
			return nil, err
		}
		if a == nil {
			return nil, newError(ErrNotFound, "assignment %d not found", id)
		}
		if a.Status != model.AssignmentAssigned {
			return nil, newError(ErrInvalidState, "assignment %d is %s, not assigned", id, a.Status)
		}
		return a, nil
	}

	deviceID, _ := target.DeviceID()
	a, err := tx.LatestActiveAssignment(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, newError(ErrNotFound, "no active assignment")
	}
	return a, nil
}

func (e *Engine) giveBack(ctx context.Context, tx Tx, out *outbox, actor model.Actor, req model.ReturnRequest) (*model.Assignment, error) {
	a, err := resolveReturn(ctx, tx, req.Target)
	if err != nil {
		return nil, err
	}

	device, err := tx.GetDevice(ctx, a.DeviceID)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, newError(ErrNotFound, "device %d not found", a.DeviceID)
	}

	now := e.timestamp()
	a.Status = model.AssignmentReturned
	a.ReturnedAt = &now
	a.ReturnCondition = req.Condition
	a.ReturnNotes = req.Notes
	a.ReturnPhoto = req.PhotoRef
	if err := tx.UpdateAssignment(ctx, a); err != nil {
		return nil, err
	}
	if err := tx.SetDeviceStatus(ctx, device.ID, model.DeviceStatusInventory, now); err != nil {
		return nil, err
	}

	comments := req.Notes
	if req.Condition != "" {
		comments = strings.TrimSpace("condition: " + req.Condition + ". " + req.Notes)
	}
	entries := []*model.AuditEntry{
		{
			Entity:    model.EntityAssignment,
			EntityID:  a.ID,
			Action:    model.ActionReturned,
			OldStatus: model.AssignmentAssigned,
			NewStatus: model.AssignmentReturned,
			Comments:  comments,
		},
		{
			Entity:    model.EntityDevice,
			EntityID:  device.ID,
			Action:    model.ActionReturned,
			OldStatus: device.Status,
			NewStatus: model.DeviceStatusInventory,
			Comments:  fmt.Sprintf("assignment %d returned", a.ID),
		},
	}
	for _, entry := range entries {
		entry.ActorID = actorRef(actor)
		entry.CreatedAt = now
		if err := tx.AppendAudit(ctx, entry); err != nil {
			return nil, err
		}
	}

	out.add(EventAssignmentReturned, a)
	return a, nil
}

// PendingApprovals lists assignments waiting for approval, newest first.
func (e *Engine) PendingApprovals(ctx context.Context, actor model.Actor) ([]model.Assignment, error) {
	if !actor.IsAdmin() {
		return nil, newError(ErrForbidden, "admin role required")
	}

	var pending []model.Assignment
	err := e.view(ctx, func(tx Tx) error {
		var err error
		pending, err = tx.ListAssignmentsByStatus(ctx, model.AssignmentPending)
		return err
	})
	if err != nil {
		return nil, err
	}
	if pending == nil {
		pending = []model.Assignment{}
	}
	return pending, nil
}

// AddMaintenance logs maintenance work on a device. The device status is
// left as is; moving it into maintenance is a separate status change.
func (e *Engine) AddMaintenance(ctx context.Context, actor model.Actor, deviceID int64, description string) (*model.MaintenanceRecord, error) {
	if !actor.AtLeast(model.RoleManager) {
		return nil, newError(ErrForbidden, "manager role required")
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, newError(ErrInvalidInput, "description is required")
	}

	record := &model.MaintenanceRecord{
		DeviceID:    deviceID,
		Description: description,
		CreatedBy:   actorRef(actor),
	}
	err := e.update(ctx, func(tx Tx, _ *outbox) error {
		device, err := tx.GetDevice(ctx, deviceID)
		if err != nil {
			return err
		}
		if device == nil {
			return newError(ErrNotFound, "device %d not found", deviceID)
		}

		record.CreatedAt = e.timestamp()
		if err := tx.AddMaintenance(ctx, record); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, &model.AuditEntry{
			Entity:    model.EntityDevice,
			EntityID:  deviceID,
			Action:    model.ActionMaintenanceLogged,
			OldStatus: device.Status,
			NewStatus: device.Status,
			Comments:  description,
			ActorID:   actorRef(actor),
			CreatedAt: record.CreatedAt,
		})
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// DashboardStats counts devices per status and overdue assignments.
func (e *Engine) DashboardStats(ctx context.Context) (*model.DashboardStats, error) {
	stats := &model.DashboardStats{}
	err := e.view(ctx, func(tx Tx) error {
		counts, err := tx.CountDevicesByStatus(ctx)
		if err != nil {
			return err
		}
		stats.Available = counts[model.DeviceStatusInventory]
		stats.Assigned = counts[model.DeviceStatusAssigned]
		stats.Maintenance = counts[model.DeviceStatusMaintenance]
		stats.Retired = counts[model.DeviceStatusRetired]
		stats.Lost = counts[model.DeviceStatusLost]

		stats.Overdue, err = tx.CountOverdueAssignments(ctx, e.timestamp().Add(-e.overdueAfter))
		return err
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
