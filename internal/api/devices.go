package api

import (
	"net/http"

	"github.com/erazemk/devtrack/internal/lifecycle"
	"github.com/erazemk/devtrack/internal/model"
)

// DevicesHandler handles device endpoints.
type DevicesHandler struct {
	Engine *lifecycle.Engine
}

type statusRequest struct {
	Status   string `json:"status"`
	Comments string `json:"comments"`
}

type maintenanceRequest struct {
	Description string `json:"description"`
}

// List handles GET /api/devices. Query parameters id, name, serial,
// category, location, status and user_id narrow the result.
func (h *DevicesHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, ok := queryID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid id filter")
		return
	}
	userID, ok := queryID(r, "user_id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user_id filter")
		return
	}

	devices, err := h.Engine.ListDevices(r.Context(), model.DeviceFilter{
		ID:       id,
		Name:     q.Get("name"),
		Serial:   q.Get("serial"),
		Category: q.Get("category"),
		Location: q.Get("location"),
		Status:   q.Get("status"),
		UserID:   userID,
	})
	if err != nil {
		lifecycleError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, devices)
}

// Create handles POST /api/devices.
func (h *DevicesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.NewDevice
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	device, err := h.Engine.CreateDevice(r.Context(), actor(r), req)
	if err != nil {
		lifecycleError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, device)
}

// Get handles GET /api/devices/{id}.
func (h *DevicesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid device id")
		return
	}

	detail, err := h.Engine.DeviceDetail(r.Context(), id)
	if err != nil {
		lifecycleError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, detail)
}

// ChangeStatus handles POST /api/devices/{id}/status.
func (h *DevicesHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid device id")
		return
	}

	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	device, err := h.Engine.ChangeDeviceStatus(r.Context(), actor(r), id, req.Status, req.Comments)
	if err != nil {
		lifecycleError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, device)
}

// AddMaintenance handles POST /api/devices/{id}/maintenance.
func (h *DevicesHandler) AddMaintenance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid device id")
		return
	}

	var req maintenanceRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	record, err := h.Engine.AddMaintenance(r.Context(), actor(r), id, req.Description)
	if err != nil {
		lifecycleError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, record)
}
