package api

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/erazemk/devtrack/internal/imaging"
	"github.com/erazemk/devtrack/internal/lifecycle"
	"github.com/erazemk/devtrack/internal/model"
	"github.com/erazemk/devtrack/internal/store"
)

// AssignmentsHandler handles assignment, approval and return endpoints.
type AssignmentsHandler struct {
	DB               *sql.DB
	Engine           *lifecycle.Engine
	ApprovalRequired bool
}

type returnRequest struct {
	AssignmentID int64  `json:"assignmentId"`
	DeviceID     int64  `json:"deviceId"`
	Condition    string `json:"condition"`
	Notes        string `json:"notes"`
}

// Assign handles POST /api/assign.
func (h *AssignmentsHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req model.AssignRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a, err := h.Engine.CreateAssignment(r.Context(), actor(r), req, h.ApprovalRequired)
	if err != nil {
		lifecycleError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, a)
}

// Approve handles POST /api/assign/{id}/approve.
func (h *AssignmentsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid assignment id")
		return
	}

	a, err := h.Engine.ApproveAssignment(r.Context(), actor(r), id)
	if err != nil {
		lifecycleError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, a)
}

// Pending handles GET /api/approvals/pending.
func (h *AssignmentsHandler) Pending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.Engine.PendingApprovals(r.Context(), actor(r))
	if err != nil {
		lifecycleError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, pending)
}

// Return handles POST /api/return. The body is either JSON or a multipart
// form with the same fields and an optional photo file.
func (h *AssignmentsHandler) Return(w http.ResponseWriter, r *http.Request) {
	var req returnRequest
	var photoRef string

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		var status int
		var err error
		req, photoRef, status, err = h.parseReturnForm(w, r)
		if err != nil {
			jsonError(w, status, err.Error())
			return
		}
	} else if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var target model.ReturnTarget
	switch {
	case req.AssignmentID > 0:
		target = model.ByAssignmentID(req.AssignmentID)
	case req.DeviceID > 0:
		target = model.LatestActiveForDevice(req.DeviceID)
	}

	a, err := h.Engine.ReturnAssignment(r.Context(), actor(r), model.ReturnRequest{
		Target:    target,
		Condition: strings.TrimSpace(req.Condition),
		Notes:     strings.TrimSpace(req.Notes),
		PhotoRef:  photoRef,
	})
	if err != nil {
		lifecycleError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, a)
}

// parseReturnForm reads a multipart return and stores its photo, if any.
func (h *AssignmentsHandler) parseReturnForm(w http.ResponseWriter, r *http.Request) (returnRequest, string, int, error) {
	var req returnRequest

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		return req, "", http.StatusBadRequest, errors.New("file too large or invalid multipart form")
	}

	for name, dst := range map[string]*int64{"assignmentId": &req.AssignmentID, "deviceId": &req.DeviceID} {
		if v := r.FormValue(name); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return req, "", http.StatusBadRequest, fmt.Errorf("invalid %s", name)
			}
			*dst = id
		}
	}
	req.Condition = r.FormValue("condition")
	req.Notes = r.FormValue("notes")

	file, _, err := r.FormFile("photo")
	if errors.Is(err, http.ErrMissingFile) {
		return req, "", 0, nil
	}
	if err != nil {
		return req, "", http.StatusBadRequest, errors.New("invalid photo upload")
	}
	defer file.Close()

	photo, err := imaging.Process(file)
	if err != nil {
		if errors.Is(err, imaging.ErrUnsupportedFormat) || errors.Is(err, imaging.ErrTooLarge) {
			return req, "", http.StatusBadRequest, err
		}
		slog.Error("failed to process photo", "error", err)
		return req, "", http.StatusInternalServerError, errors.New("failed to process photo")
	}

	id, err := store.SavePhoto(r.Context(), h.DB, photo.Data, photo.MIME)
	if err != nil {
		slog.Error("failed to save photo", "error", err)
		return req, "", http.StatusServiceUnavailable, errors.New("storage unavailable")
	}
	return req, photoPath(id), 0, nil
}

func photoPath(id int64) string {
	return fmt.Sprintf("/api/photos/%d", id)
}

// Photo handles GET /api/photos/{id}.
func (h *AssignmentsHandler) Photo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid photo id")
		return
	}

	data, mimeType, err := store.GetPhoto(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get photo", "error", err)
		jsonError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "photo not found")
		return
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.Write(data)
}
