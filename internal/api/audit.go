package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/devtrack/internal/model"
	"github.com/erazemk/devtrack/internal/store"
)

// AuditHandler exposes the audit log.
type AuditHandler struct {
	DB *sql.DB
}

type auditRequest struct {
	Entity    string `json:"entity"`
	EntityID  int64  `json:"entity_id"`
	Action    string `json:"action"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
	Comments  string `json:"comments"`
}

// List handles GET /api/audit?entity=&entity_id=.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	entity := r.URL.Query().Get("entity")
	id, ok := queryID(r, "entity_id")
	if entity == "" || !ok || id == 0 {
		jsonError(w, http.StatusBadRequest, "entity and entity_id required")
		return
	}

	entries, err := store.ListAudit(r.Context(), h.DB, entity, id)
	if err != nil {
		slog.Error("failed to list audit entries", "error", err)
		jsonError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	jsonResponse(w, http.StatusOK, entries)
}

// Create handles POST /api/audit, recording a freeform entry such as a
// note from a physical stock check.
func (h *AuditHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req auditRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Entity = strings.TrimSpace(req.Entity)
	req.Action = strings.TrimSpace(req.Action)
	if req.Entity == "" || req.EntityID <= 0 || req.Action == "" {
		jsonError(w, http.StatusBadRequest, "entity, entity_id and action required")
		return
	}

	claims := GetClaims(r.Context())
	entry := &model.AuditEntry{
		Entity:    req.Entity,
		EntityID:  req.EntityID,
		Action:    req.Action,
		OldStatus: req.OldStatus,
		NewStatus: req.NewStatus,
		Comments:  req.Comments,
		ActorID:   &claims.UserID,
	}
	if err := store.AppendAudit(r.Context(), h.DB, entry); err != nil {
		slog.Error("failed to append audit entry", "error", err)
		jsonError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}

	slog.Info("audit entry recorded", "user", claims.Username, "entity", entry.Entity, "entity_id", entry.EntityID, "action", entry.Action)
	jsonResponse(w, http.StatusCreated, entry)
}
