package store

import (
	"context"
	"testing"
	"time"

	"github.com/erazemk/devtrack/internal/db"
	"github.com/erazemk/devtrack/internal/model"
)

func createTestDevice(t *testing.T, q Querier, serial string) *model.Device {
	t.Helper()
	d, err := CreateDevice(context.Background(), q, model.NewDevice{
		Name:     "Laptop " + serial,
		Serial:   serial,
		Category: "laptop",
		Location: "HQ",
		Status:   model.DeviceStatusInventory,
	}, time.Now().UTC())
	if err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}
	return d
}

func TestCreateAndGetDevice(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	d := createTestDevice(t, database, "SN-1")
	if d.ID == 0 {
		t.Fatal("expected device ID to be set")
	}

	got, err := GetDevice(ctx, database, d.ID)
	if err != nil {
		t.Fatalf("GetDevice: %v", err)
	}
	if got.Serial != "SN-1" || got.Location != "HQ" || got.Status != model.DeviceStatusInventory {
		t.Errorf("unexpected device: %+v", got)
	}

	bySerial, err := GetDeviceBySerial(ctx, database, "SN-1")
	if err != nil {
		t.Fatalf("GetDeviceBySerial: %v", err)
	}
	if bySerial == nil || bySerial.ID != d.ID {
		t.Errorf("expected device %d by serial, got %+v", d.ID, bySerial)
	}

	missing, err := GetDevice(ctx, database, 9999)
	if err != nil {
		t.Fatalf("GetDevice: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing device")
	}
}

func TestDuplicateSerialRejected(t *testing.T) {
	database := db.NewTestDB(t)

	createTestDevice(t, database, "SN-1")
	_, err := CreateDevice(context.Background(), database, model.NewDevice{
		Name: "Other", Serial: "SN-1", Category: "phone", Status: model.DeviceStatusInventory,
	}, time.Now().UTC())
	if err == nil {
		t.Fatal("expected duplicate serial to fail")
	}
}

func TestListDevicesFilters(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	a := createTestDevice(t, database, "ABC-100")
	b := createTestDevice(t, database, "XYZ-200")
	if err := SetDeviceStatus(ctx, database, b.ID, model.DeviceStatusMaintenance, time.Now().UTC()); err != nil {
		t.Fatalf("SetDeviceStatus: %v", err)
	}

	all, err := ListDevices(ctx, database, model.DeviceFilter{})
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(all) != 2 || all[0].ID != b.ID {
		t.Fatalf("expected 2 devices newest first, got %+v", all)
	}

	bySerial, _ := ListDevices(ctx, database, model.DeviceFilter{Serial: "abc"})
	if len(bySerial) != 1 || bySerial[0].ID != a.ID {
		t.Errorf("expected substring serial match on device %d, got %+v", a.ID, bySerial)
	}

	byStatus, _ := ListDevices(ctx, database, model.DeviceFilter{Status: model.DeviceStatusMaintenance})
	if len(byStatus) != 1 || byStatus[0].ID != b.ID {
		t.Errorf("expected status match on device %d, got %+v", b.ID, byStatus)
	}

	user, _ := CreateUser(ctx, database, "alice", "hash", model.RoleUser)
	now := time.Now().UTC()
	if err := CreateAssignment(ctx, database, &model.Assignment{
		DeviceID: a.ID, UserID: user.ID, Status: model.AssignmentAssigned, AssignedAt: &now, CreatedAt: now,
	}); err != nil {
		t.Fatalf("CreateAssignment: %v", err)
	}

	byUser, _ := ListDevices(ctx, database, model.DeviceFilter{UserID: user.ID})
	if len(byUser) != 1 || byUser[0].ID != a.ID {
		t.Errorf("expected device %d held by user, got %+v", a.ID, byUser)
	}
}

func TestSetDeviceStatusMissing(t *testing.T) {
	database := db.NewTestDB(t)

	err := SetDeviceStatus(context.Background(), database, 42, model.DeviceStatusLost, time.Now().UTC())
	if err == nil {
		t.Fatal("expected error for missing device")
	}
}

func TestCountDevicesByStatus(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	createTestDevice(t, database, "A")
	createTestDevice(t, database, "B")
	c := createTestDevice(t, database, "C")
	SetDeviceStatus(ctx, database, c.ID, model.DeviceStatusRetired, time.Now().UTC())

	counts, err := CountDevicesByStatus(ctx, database)
	if err != nil {
		t.Fatalf("CountDevicesByStatus: %v", err)
	}
	if counts[model.DeviceStatusInventory] != 2 || counts[model.DeviceStatusRetired] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}
