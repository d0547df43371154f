package api

import (
	"net/http"

	"github.com/erazemk/devtrack/internal/lifecycle"
)

// DashboardHandler serves summary statistics.
type DashboardHandler struct {
	Engine *lifecycle.Engine
}

// Stats handles GET /api/dashboard/stats.
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Engine.DashboardStats(r.Context())
	if err != nil {
		lifecycleError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, stats)
}
