package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/devtrack/internal/lifecycle"
	"github.com/erazemk/devtrack/internal/model"
)

// Config holds the collaborators the API is built from.
type Config struct {
	DB               *sql.DB
	JWTSecret        string
	Engine           *lifecycle.Engine
	Reconciler       *lifecycle.Reconciler
	Hub              *Hub
	ApprovalRequired bool
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(cfg Config) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: cfg.DB, JWTSecret: cfg.JWTSecret}
	usersHandler := &UsersHandler{DB: cfg.DB}
	devicesHandler := &DevicesHandler{Engine: cfg.Engine}
	assignmentsHandler := &AssignmentsHandler{DB: cfg.DB, Engine: cfg.Engine, ApprovalRequired: cfg.ApprovalRequired}
	auditHandler := &AuditHandler{DB: cfg.DB}
	syncHandler := &SyncHandler{Reconciler: cfg.Reconciler}
	dashboardHandler := &DashboardHandler{Engine: cfg.Engine}

	authMW := AuthMiddleware(cfg.JWTSecret, cfg.DB)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireManager := RequireRole(model.RoleManager)

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("GET /api/me", authMW(http.HandlerFunc(authHandler.Me)))

	// Users: listing for managers picking a custodian, everything else admin only.
	mux.Handle("GET /api/users", authMW(requireManager(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Devices. Role checks for writes live in the lifecycle engine.
	mux.Handle("GET /api/devices", authMW(http.HandlerFunc(devicesHandler.List)))
	mux.Handle("POST /api/devices", authMW(http.HandlerFunc(devicesHandler.Create)))
	mux.Handle("GET /api/devices/{id}", authMW(http.HandlerFunc(devicesHandler.Get)))
	mux.Handle("POST /api/devices/{id}/status", authMW(http.HandlerFunc(devicesHandler.ChangeStatus)))
	mux.Handle("POST /api/devices/{id}/maintenance", authMW(http.HandlerFunc(devicesHandler.AddMaintenance)))

	// Assignments.
	mux.Handle("POST /api/assign", authMW(http.HandlerFunc(assignmentsHandler.Assign)))
	mux.Handle("POST /api/assign/{id}/approve", authMW(http.HandlerFunc(assignmentsHandler.Approve)))
	mux.Handle("POST /api/return", authMW(http.HandlerFunc(assignmentsHandler.Return)))
	mux.Handle("GET /api/approvals/pending", authMW(http.HandlerFunc(assignmentsHandler.Pending)))
	mux.Handle("GET /api/photos/{id}", authMW(http.HandlerFunc(assignmentsHandler.Photo)))

	// Audit: read (all), freeform entries (manager+).
	mux.Handle("GET /api/audit", authMW(http.HandlerFunc(auditHandler.List)))
	mux.Handle("POST /api/audit", authMW(requireManager(http.HandlerFunc(auditHandler.Create))))

	// Offline sync and dashboard.
	mux.Handle("POST /api/sync", authMW(http.HandlerFunc(syncHandler.Sync)))
	mux.Handle("GET /api/dashboard/stats", authMW(http.HandlerFunc(dashboardHandler.Stats)))

	if cfg.Hub != nil {
		mux.Handle("GET /api/events", StreamAuthMiddleware(cfg.JWTSecret, cfg.DB)(cfg.Hub))
	}

	return mux
}
