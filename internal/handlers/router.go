package handlers

import (
	"net/http"
	"time"

	"github.com/ukydev/carbuddy/internal/middleware"
	"github.com/ukydev/carbuddy/internal/models"
)

// RouterConfig collects everything the HTTP surface needs.
type RouterConfig struct {
	Auth          *middleware.AuthMiddleware
	RateLimit     *middleware.RateLimitMiddleware
	Vehicles      *VehicleHandler
	Jobs          *JobHandler
	Ping          Pinger
	RequestsLimit int
	LimitWindow   time.Duration
}

// NewRouter wires the API routes and the middleware chain.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", Health(cfg.Ping))

	perm := func(action string, h http.HandlerFunc) http.Handler {
		return cfg.Auth.RequirePermission(action)(h)
	}

	v := cfg.Vehicles
	mux.Handle("GET /api/vehicles/{id}/maintenance/status", perm("view_maintenance", v.Status))
	mux.Handle("GET /api/vehicles/{id}/maintenance/recommendations", perm("view_maintenance", v.Recommendations))
	mux.Handle("POST /api/vehicles/{id}/maintenance", perm("record_service", v.RecordService))
	mux.Handle("POST /api/vehicles/{id}/mileage", perm("update_mileage", v.UpdateMileage))
	mux.Handle("GET /api/vehicles/{id}/shops", perm("find_shops", v.Shops))
	mux.Handle("POST /api/vehicles/{id}/diagnose", perm("request_diagnosis", v.Diagnose))

	if cfg.Jobs != nil {
		admin := cfg.Auth.RequireRole(models.RoleAdmin)
		mux.Handle("GET /api/admin/jobs", admin(http.HandlerFunc(cfg.Jobs.List)))
		mux.Handle("POST /api/admin/jobs/{name}/run", admin(http.HandlerFunc(cfg.Jobs.Run)))
	}

	var handler http.Handler = cfg.Auth.Authenticate(mux)
	if cfg.RateLimit != nil {
		limit, window := cfg.RequestsLimit, cfg.LimitWindow
		if limit <= 0 {
			limit = 100
		}
		if window <= 0 {
			window = time.Minute
		}
		handler = cfg.RateLimit.RateLimit(limit, window)(handler)
	}
	return middleware.RequestLogger(handler)
}
