package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/KalharPandya/upstocks-mcp/internal/auth"
	"github.com/KalharPandya/upstocks-mcp/internal/session"
)

// HealthResponse reports process and authorization status.
type HealthResponse struct {
	Status      string `json:"status"`
	Authorized  bool   `json:"authorized"`
	TokenExpiry string `json:"token_expiry,omitempty"`
	Sessions    int    `json:"sessions"`
	Uptime      string `json:"uptime"`
}

// HealthChecker serves the /health endpoint.
type HealthChecker struct {
	auth      *auth.Manager
	sessions  *session.Registry
	startTime time.Time
}

// NewHealthChecker creates a health checker.
func NewHealthChecker(authManager *auth.Manager, sessions *session.Registry) *HealthChecker {
	return &HealthChecker{
		auth:      authManager,
		sessions:  sessions,
		startTime: time.Now(),
	}
}

// Handler returns the /health HTTP handler. The endpoint always answers 200
// while the process is up; authorization state is data, not liveness.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		state := h.auth.Snapshot()

		response := HealthResponse{
			Status:     "ok",
			Authorized: state.Authorized,
			Sessions:   h.sessions.Count(),
			Uptime:     time.Since(h.startTime).Truncate(time.Second).String(),
		}
		if state.Authorized {
			response.TokenExpiry = state.TokenExpiry.Format(time.RFC3339)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	})
}
