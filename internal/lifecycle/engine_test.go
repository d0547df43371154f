package lifecycle_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erazemk/devtrack/internal/db"
	"github.com/erazemk/devtrack/internal/lifecycle"
	"github.com/erazemk/devtrack/internal/model"
	"github.com/erazemk/devtrack/internal/store"
)

type published struct {
	name    string
	payload any
}

// recorder is a Publisher that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []published
}

func (r *recorder) Publish(name string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{name, payload})
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for _, e := range r.events {
		names = append(names, e.name)
	}
	return names
}

func (r *recorder) count(name string) int {
	n := 0
	for _, got := range r.names() {
		if got == name {
			n++
		}
	}
	return n
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type fixture struct {
	db      *sql.DB
	engine  *lifecycle.Engine
	events  *recorder
	admin   model.Actor
	manager model.Actor
	user    model.Actor
	now     time.Time
}

func newFixture(t *testing.T, database *sql.DB) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		db:     database,
		events: &recorder{},
		now:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	for _, u := range []struct {
		name  string
		role  string
		actor *model.Actor
	}{
		{"admin", model.RoleAdmin, &f.admin},
		{"manager", model.RoleManager, &f.manager},
		{"user", model.RoleUser, &f.user},
	} {
		created, err := store.CreateUser(ctx, database, u.name, "hash", u.role)
		if err != nil {
			t.Fatalf("CreateUser(%s): %v", u.name, err)
		}
		*u.actor = model.Actor{ID: created.ID, Role: created.Role}
	}

	f.engine = lifecycle.New(store.NewSQLStore(database), f.events,
		lifecycle.WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) device(t *testing.T, serial string) *model.Device {
	t.Helper()
	d, err := f.engine.CreateDevice(context.Background(), f.admin, model.NewDevice{
		Name: "Laptop", Serial: serial, Category: "laptop",
	})
	if err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}
	return d
}

func (f *fixture) status(t *testing.T, id int64) string {
	t.Helper()
	d, err := store.GetDevice(context.Background(), f.db, id)
	if err != nil || d == nil {
		t.Fatalf("GetDevice(%d): %v", id, err)
	}
	return d.Status
}

func (f *fixture) auditCount(t *testing.T, entity string, id int64) int {
	t.Helper()
	entries, err := store.ListAudit(context.Background(), f.db, entity, id)
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	return len(entries)
}

func TestCreateDevice(t *testing.T) {
	f := newFixture(t, db.NewTestDB(t))
	ctx := context.Background()

	_, err := f.engine.CreateDevice(ctx, f.user, model.NewDevice{Name: "X", Serial: "S", Category: "c"})
	if !errors.Is(err, lifecycle.ErrForbidden) {
		t.Errorf("expected ErrForbidden for user, got %v", err)
	}

	_, err = f.engine.CreateDevice(ctx, f.manager, model.NewDevice{Name: "X"})
	if !errors.Is(err, lifecycle.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for missing fields, got %v", err)
	}

	_, err = f.engine.CreateDevice(ctx, f.manager, model.NewDevice{Name: "X", Serial: "S", Category: "c", Status: model.DeviceStatusAssigned})
	if !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for assigned intake, got %v", err)
	}

	d, err := f.engine.CreateDevice(ctx, f.manager, model.NewDevice{Name: " Phone ", Serial: "P-1", Category: "phone"})
	if err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}
	if d.Name != "Phone" || d.Status != model.DeviceStatusInventory {
		t.Errorf("unexpected device: %+v", d)
	}
	if n := f.auditCount(t, model.EntityDevice, d.ID); n != 1 {
		t.Errorf("expected 1 audit entry, got %d", n)
	}

	_, err = f.engine.CreateDevice(ctx, f.manager, model.NewDevice{Name: "Dup", Serial: "P-1", Category: "phone"})
	if !errors.Is(err, lifecycle.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for duplicate serial, got %v", err)
	}

	want := []string{lifecycle.EventDeviceCreated, lifecycle.EventDashboardUpdate}
	if got := f.events.names(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("expected events %v, got %v", want, got)
	}
}

func TestChangeDeviceStatus(t *testing.T) {
	f := newFixture(t, db.NewTestDB(t))
	ctx := context.Background()
	d := f.device(t, "SN-1")
	f.events.reset()

	if _, err := f.engine.ChangeDeviceStatus(ctx, f.manager, d.ID, model.DeviceStatusLost, ""); !errors.Is(err, lifecycle.ErrForbidden) {
		t.Errorf("expected ErrForbidden for manager, got %v", err)
	}
	if _, err := f.engine.ChangeDeviceStatus(ctx, f.admin, d.ID, "broken", ""); !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := f.engine.ChangeDeviceStatus(ctx, f.admin, 9999, model.DeviceStatusLost, ""); !errors.Is(err, lifecycle.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if n := f.auditCount(t, model.EntityDevice, d.ID); n != 1 {
		t.Fatalf("rejected changes must not be audited, got %d entries", n)
	}

	// Any status may follow any other.
	for i, status := range []string{model.DeviceStatusRetired, model.DeviceStatusMaintenance, model.DeviceStatusRetired, model.DeviceStatusInventory} {
		before := f.status(t, d.ID)
		updated, err := f.engine.ChangeDeviceStatus(ctx, f.admin, d.ID, status, "check")
		if err != nil {
			t.Fatalf("ChangeDeviceStatus(%s): %v", status, err)
		}
		if updated.Status != status {
			t.Errorf("expected status %q, got %q", status, updated.Status)
		}

		entries, _ := store.ListAudit(ctx, f.db, model.EntityDevice, d.ID)
		if len(entries) != i+2 {
			t.Fatalf("expected exactly one new audit entry, have %d", len(entries))
		}
		if entries[0].OldStatus != before || entries[0].NewStatus != status || entries[0].Action != model.ActionStatusChange {
			t.Errorf("unexpected audit entry: %+v", entries[0])
		}
	}

	if n := f.events.count(lifecycle.EventDeviceStatus); n != 4 {
		t.Errorf("expected 4 device:status events, got %d", n)
	}
}

func TestDirectAssignAndReturn(t *testing.T) {
	f := newFixture(t, db.NewTestDB(t))
	ctx := context.Background()
	d := f.device(t, "SN-1")
	f.events.reset()

	a, err := f.engine.CreateAssignment(ctx, f.manager, model.AssignRequest{DeviceID: d.ID, UserID: f.user.ID, Notes: "onboarding"}, false)
	if err != nil {
		t.Fatalf("CreateAssignment: %v", err)
	}
	if a.Status != model.AssignmentAssigned || a.AssignedAt == nil {
		t.Errorf("unexpected assignment: %+v", a)
	}
	if s := f.status(t, d.ID); s != model.DeviceStatusAssigned {
		t.Errorf("expected device assigned, got %q", s)
	}

	_, err = f.engine.CreateAssignment(ctx, f.admin, model.AssignRequest{DeviceID: d.ID, UserID: f.admin.ID}, false)
	if !errors.Is(err, lifecycle.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for second assignment, got %v", err)
	}

	f.now = f.now.Add(48 * time.Hour)
	returned, err := f.engine.ReturnAssignment(ctx, f.user, model.ReturnRequest{
		Target:    model.LatestActiveForDevice(d.ID),
		Condition: "scratched",
		Notes:     "lid dented",
	})
	if err != nil {
		t.Fatalf("ReturnAssignment: %v", err)
	}
	if returned.ID != a.ID || returned.Status != model.AssignmentReturned || returned.ReturnCondition != "scratched" {
		t.Errorf("unexpected returned assignment: %+v", returned)
	}
	if s := f.status(t, d.ID); s != model.DeviceStatusInventory {
		t.Errorf("expected device inventory, got %q", s)
	}

	want := []string{
		lifecycle.EventAssignmentCreated, lifecycle.EventDashboardUpdate,
		lifecycle.EventAssignmentReturned, lifecycle.EventDashboardUpdate,
	}
	got := f.events.names()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	// created + assigned + returned on the device, assigned + returned on the assignment.
	if n := f.auditCount(t, model.EntityDevice, d.ID); n != 3 {
		t.Errorf("expected 3 device audit entries, got %d", n)
	}
	if n := f.auditCount(t, model.EntityAssignment, a.ID); n != 2 {
		t.Errorf("expected 2 assignment audit entries, got %d", n)
	}
}

func TestReturnTwice(t *testing.T) {
	f := newFixture(t, db.NewTestDB(t))
	ctx := context.Background()
	d := f.device(t, "SN-1")

	a, err := f.engine.CreateAssignment(ctx, f.admin, model.AssignRequest{DeviceID: d.ID, UserID: f.user.ID}, true)
	if err != nil {
		t.Fatalf("CreateAssignment: %v", err)
	}
	if _, err := f.engine.ReturnAssignment(ctx, f.admin, model.ReturnRequest{Target: model.ByAssignmentID(a.ID)}); err != nil {
		t.Fatalf("ReturnAssignment: %v", err)
	}

	f.engine.ChangeDeviceStatus(ctx, f.admin, d.ID, model.DeviceStatusMaintenance, "")
	auditBefore := f.auditCount(t, model.EntityDevice, d.ID)

	_, err = f.engine.ReturnAssignment(ctx, f.admin, model.ReturnRequest{Target: model.ByAssignmentID(a.ID)})
	if !errors.Is(err, lifecycle.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
	_, err = f.engine.ReturnAssignment(ctx, f.admin, model.ReturnRequest{Target: model.LatestActiveForDevice(d.ID)})
	if !errors.Is(err, lifecycle.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if s := f.status(t, d.ID); s != model.DeviceStatusMaintenance {
		t.Errorf("second return must not touch the device, got %q", s)
	}
	if n := f.auditCount(t, model.EntityDevice, d.ID); n != auditBefore {
		t.Errorf("second return must not be audited, %d -> %d entries", auditBefore, n)
	}

	_, err = f.engine.ReturnAssignment(ctx, f.admin, model.ReturnRequest{Target: model.ByAssignmentID(9999)})
	if !errors.Is(err, lifecycle.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown assignment, got %v", err)
	}
	_, err = f.engine.ReturnAssignment(ctx, f.admin, model.ReturnRequest{})
	if !errors.Is(err, lifecycle.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput without a target, got %v", err)
	}
}

func TestApprovalFlow(t *testing.T) {
	f := newFixture(t, db.NewTestDB(t))
	ctx := context.Background()
	d := f.device(t, "SN-1")
	f.events.reset()

	a, err := f.engine.CreateAssignment(ctx, f.user, model.AssignRequest{DeviceID: d.ID, UserID: f.user.ID}, true)
	if err != nil {
		t.Fatalf("CreateAssignment: %v", err)
	}
	if a.Status != model.AssignmentPending {
		t.Fatalf("expected pending assignment, got %q", a.Status)
	}
	if s := f.status(t, d.ID); s != model.DeviceStatusInventory {
		t.Errorf("pending request must not touch the device, got %q", s)
	}
	if len(f.events.names()) != 0 {
		t.Errorf("pending request must not publish events, got %v", f.events.names())
	}

	if _, err := f.engine.PendingApprovals(ctx, f.manager); !errors.Is(err, lifecycle.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	pending, err := f.engine.PendingApprovals(ctx, f.admin)
	if err != nil {
		t.Fatalf("PendingApprovals: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != a.ID {
		t.Errorf("expected pending assignment %d, got %+v", a.ID, pending)
	}

	if _, err := f.engine.ApproveAssignment(ctx, f.manager, a.ID); !errors.Is(err, lifecycle.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if _, err := f.engine.ApproveAssignment(ctx, f.admin, 9999); !errors.Is(err, lifecycle.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	approved, err := f.engine.ApproveAssignment(ctx, f.admin, a.ID)
	if err != nil {
		t.Fatalf("ApproveAssignment: %v", err)
	}
	if approved.Status != model.AssignmentAssigned || approved.ApprovedBy == nil || *approved.ApprovedBy != f.admin.ID {
		t.Errorf("unexpected approved assignment: %+v", approved)
	}
	if s := f.status(t, d.ID); s != model.DeviceStatusAssigned {
		t.Errorf("expected device assigned, got %q", s)
	}
	if n := f.events.count(lifecycle.EventAssignmentApproved); n != 1 {
		t.Errorf("expected 1 approval event, got %d", n)
	}

	deviceAudit := f.auditCount(t, model.EntityDevice, d.ID)
	assignmentAudit := f.auditCount(t, model.EntityAssignment, a.ID)

	_, err = f.engine.ApproveAssignment(ctx, f.admin, a.ID)
	if !errors.Is(err, lifecycle.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState approving twice, got %v", err)
	}
	if f.auditCount(t, model.EntityDevice, d.ID) != deviceAudit || f.auditCount(t, model.EntityAssignment, a.ID) != assignmentAudit {
		t.Error("failed approval must not write audit entries")
	}
}

func TestApproveWhileDeviceHeld(t *testing.T) {
	f := newFixture(t, db.NewTestDB(t))
	ctx := context.Background()
	d := f.device(t, "SN-1")

	first, _ := f.engine.CreateAssignment(ctx, f.user, model.AssignRequest{DeviceID: d.ID, UserID: f.user.ID}, true)
	second, _ := f.engine.CreateAssignment(ctx, f.user, model.AssignRequest{DeviceID: d.ID, UserID: f.manager.ID}, true)

	if _, err := f.engine.ApproveAssignment(ctx, f.admin, first.ID); err != nil {
		t.Fatalf("ApproveAssignment: %v", err)
	}
	_, err := f.engine.ApproveAssignment(ctx, f.admin, second.ID)
	if !errors.Is(err, lifecycle.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState while device is held, got %v", err)
	}

	got, _ := store.GetAssignment(ctx, f.db, second.ID)
	if got.Status != model.AssignmentPending {
		t.Errorf("expected second assignment to stay pending, got %q", got.Status)
	}
}

func TestAssignValidation(t *testing.T) {
	f := newFixture(t, db.NewTestDB(t))
	ctx := context.Background()
	d := f.device(t, "SN-1")

	tests := []struct {
		name string
		req  model.AssignRequest
		want error
	}{
		{"missing device", model.AssignRequest{UserID: f.user.ID}, lifecycle.ErrInvalidInput},
		{"missing user", model.AssignRequest{DeviceID: d.ID}, lifecycle.ErrInvalidInput},
		{"unknown device", model.AssignRequest{DeviceID: 9999, UserID: f.user.ID}, lifecycle.ErrNotFound},
		{"unknown user", model.AssignRequest{DeviceID: d.ID, UserID: 9999}, lifecycle.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CreateAssignment(ctx, f.admin, tt.req, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	f.engine.ChangeDeviceStatus(ctx, f.admin, d.ID, model.DeviceStatusRetired, "")
	_, err := f.engine.CreateAssignment(ctx, f.admin, model.AssignRequest{DeviceID: d.ID, UserID: f.user.ID}, false)
	if !errors.Is(err, lifecycle.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for retired device, got %v", err)
	}
}

func TestDeviceDetailAndMaintenance(t *testing.T) {
	f := newFixture(t, db.NewTestDB(t))
	ctx := context.Background()
	d := f.device(t, "SN-1")

	if _, err := f.engine.AddMaintenance(ctx, f.user, d.ID, "x"); !errors.Is(err, lifecycle.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if _, err := f.engine.AddMaintenance(ctx, f.manager, d.ID, "  "); !errors.Is(err, lifecycle.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := f.engine.AddMaintenance(ctx, f.manager, 9999, "x"); !errors.Is(err, lifecycle.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.engine.AddMaintenance(ctx, f.manager, d.ID, "new battery"); err != nil {
		t.Fatalf("AddMaintenance: %v", err)
	}
	f.engine.CreateAssignment(ctx, f.admin, model.AssignRequest{DeviceID: d.ID, UserID: f.user.ID}, false)

	detail, err := f.engine.DeviceDetail(ctx, d.ID)
	if err != nil {
		t.Fatalf("DeviceDetail: %v", err)
	}
	if detail.Device.Status != model.DeviceStatusAssigned {
		t.Errorf("expected assigned device, got %q", detail.Device.Status)
	}
	if len(detail.Assignments) != 1 || len(detail.Maintenance) != 1 {
		t.Errorf("unexpected detail: %d assignments, %d maintenance", len(detail.Assignments), len(detail.Maintenance))
	}
	// created, maintenance_logged, assigned
	if len(detail.Audit) != 3 || detail.Audit[0].Action != model.ActionAssigned {
		t.Errorf("unexpected audit history: %+v", detail.Audit)
	}

	if _, err := f.engine.DeviceDetail(ctx, 9999); !errors.Is(err, lifecycle.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListDevices(t *testing.T) {
	f := newFixture(t, db.NewTestDB(t))
	ctx := context.Background()

	empty, err := f.engine.ListDevices(ctx, model.DeviceFilter{})
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil list, got %#v", empty)
	}

	f.device(t, "SN-1")
	d := f.device(t, "SN-2")
	f.engine.CreateAssignment(ctx, f.admin, model.AssignRequest{DeviceID: d.ID, UserID: f.user.ID}, false)

	mine, err := f.engine.ListDevices(ctx, model.DeviceFilter{UserID: f.user.ID})
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != d.ID {
		t.Errorf("expected device %d, got %+v", d.ID, mine)
	}

	if _, err := f.engine.ListDevices(ctx, model.DeviceFilter{Status: "broken"}); !errors.Is(err, lifecycle.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDashboardStats(t *testing.T) {
	f := newFixture(t, db.NewTestDB(t))
	ctx := context.Background()

	a := f.device(t, "A")
	b := f.device(t, "B")
	c := f.device(t, "C")
	f.device(t, "D")
	f.engine.ChangeDeviceStatus(ctx, f.admin, c.ID, model.DeviceStatusLost, "")

	f.engine.CreateAssignment(ctx, f.admin, model.AssignRequest{DeviceID: a.ID, UserID: f.user.ID}, false)
	f.now = f.now.Add(8 * 24 * time.Hour)
	f.engine.CreateAssignment(ctx, f.admin, model.AssignRequest{DeviceID: b.ID, UserID: f.user.ID}, false)

	stats, err := f.engine.DashboardStats(ctx)
	if err != nil {
		t.Fatalf("DashboardStats: %v", err)
	}
	want := model.DashboardStats{Available: 1, Assigned: 2, Lost: 1, Overdue: 1}
	if *stats != want {
		t.Errorf("expected %+v, got %+v", want, *stats)
	}
}

func TestDependencyUnavailable(t *testing.T) {
	database := db.NewTestDB(t)
	f := newFixture(t, database)
	database.Close()

	_, err := f.engine.ListDevices(context.Background(), model.DeviceFilter{})
	if !errors.Is(err, lifecycle.ErrDependencyUnavailable) {
		t.Errorf("expected ErrDependencyUnavailable, got %v", err)
	}
	_, err = f.engine.ChangeDeviceStatus(context.Background(), f.admin, 1, model.DeviceStatusLost, "")
	if !errors.Is(err, lifecycle.ErrDependencyUnavailable) {
		t.Errorf("expected ErrDependencyUnavailable, got %v", err)
	}
	if len(f.events.names()) != 0 {
		t.Error("failed operations must not publish events")
	}
}

func TestConcurrentAssignments(t *testing.T) {
	f := newFixture(t, db.NewTestFileDB(t))
	ctx := context.Background()
	d := f.device(t, "SN-1")

	users := []int64{f.admin.ID, f.manager.ID, f.user.ID}
	var wg sync.WaitGroup
	errs := make(chan error, 12)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			_, err := f.engine.CreateAssignment(ctx, f.admin, model.AssignRequest{DeviceID: d.ID, UserID: user}, false)
			errs <- err
		}(users[i%len(users)])
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, lifecycle.ErrInvalidState):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("expected exactly one assignment to win, got %d", succeeded)
	}

	active, _ := store.ListAssignmentsByStatus(ctx, f.db, model.AssignmentAssigned)
	if len(active) != 1 {
		t.Errorf("expected one active assignment, got %d", len(active))
	}
}
