package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"time"

	"github.com/KalharPandya/upstocks-mcp/internal/auth"
	"github.com/KalharPandya/upstocks-mcp/internal/dispatch"
	"github.com/KalharPandya/upstocks-mcp/internal/instrumentation"
	"github.com/KalharPandya/upstocks-mcp/internal/logging"
	"github.com/KalharPandya/upstocks-mcp/internal/session"
	"github.com/KalharPandya/upstocks-mcp/internal/transport"
)

const shutdownTimeout = 30 * time.Second

// Server hosts the gateway's HTTP surface.
type Server struct {
	addr       string
	dispatcher *dispatch.Dispatcher
	auth       *auth.Manager
	sessions   *session.Registry
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
	httpServer *http.Server
}

// New creates the HTTP server. metrics may be nil.
func New(addr string, d *dispatch.Dispatcher, authManager *auth.Manager, sessions *session.Registry, logger *slog.Logger, metrics *instrumentation.Metrics) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:       addr,
		dispatcher: d,
		auth:       authManager,
		sessions:   sessions,
		logger:     logger,
		metrics:    metrics,
	}
}

// Handler builds the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/mcp", transport.NewHTTPHandler(s.dispatcher, s.logger))
	mux.Handle("/ws", transport.NewWebSocketHandler(s.dispatcher, s.logger))
	mux.HandleFunc("/callback", s.handleOAuthCallback)
	mux.HandleFunc("/webhook/token", s.handleTokenWebhook)
	mux.Handle("/health", NewHealthChecker(s.auth, s.sessions).Handler())
	return mux
}

// Start serves until Shutdown. A failure to bind is fatal to the process
// and is returned to the caller.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting gateway server", "addr", s.addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains connections and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// handleOAuthCallback receives the redirect from the Upstox login dialog and
// completes the code exchange.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	state, err := s.auth.ExchangeCode(r.Context(), code)
	if err != nil {
		s.metrics.RecordAuthEvent(r.Context(), "exchange", logging.StatusError)
		http.Error(w, fmt.Sprintf("authorization failed: %s", err), http.StatusBadGateway)
		return
	}
	s.metrics.RecordAuthEvent(r.Context(), "exchange", logging.StatusSuccess)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<html><body><h2>Authorization complete</h2><p>Token valid until %s. You can close this window.</p></body></html>",
		html.EscapeString(state.TokenExpiry.Format(time.RFC1123)))
}

// tokenWebhookRequest is the body accepted by the token webhook.
type tokenWebhookRequest struct {
	AccessToken string `json:"access_token"`
	ExpiryDays  int    `json:"expiry_days,omitempty"`
}

// handleTokenWebhook accepts externally delivered tokens, e.g. from a
// notifier service that performs the Upstox login elsewhere.
func (s *Server) handleTokenWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req tokenWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AccessToken == "" {
		http.Error(w, "access_token is required", http.StatusBadRequest)
		return
	}

	state := s.auth.SetToken(req.AccessToken, req.ExpiryDays)
	s.metrics.RecordAuthEvent(r.Context(), "webhook", logging.StatusSuccess)
	s.logger.Info("token received via webhook",
		"token", logging.SanitizeToken(req.AccessToken),
		"expiry", state.TokenExpiry)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"authorized":   state.Authorized,
		"token_expiry": state.TokenExpiry.Format(time.RFC3339),
	})
}
