package api

import (
	"encoding/json"
	"net/http"

	"github.com/erazemk/devtrack/internal/lifecycle"
	"github.com/erazemk/devtrack/internal/model"
)

// maxSyncBody bounds a sync request body.
const maxSyncBody = 1 << 20

// SyncHandler accepts batches of offline actions.
type SyncHandler struct {
	Reconciler *lifecycle.Reconciler
}

// Sync handles POST /api/sync. A structurally invalid body fails the whole
// request; everything else is reported per action.
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Actions json.RawMessage `json:"actions"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSyncBody)
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var actions []model.SyncAction
	if len(req.Actions) == 0 || string(req.Actions) == "null" || json.Unmarshal(req.Actions, &actions) != nil {
		jsonError(w, http.StatusBadRequest, "actions must be a list")
		return
	}
	if actions == nil {
		actions = []model.SyncAction{}
	}

	resp, err := h.Reconciler.Reconcile(r.Context(), actor(r), actions)
	if err != nil {
		lifecycleError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, resp)
}
