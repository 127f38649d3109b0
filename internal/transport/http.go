package transport

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/KalharPandya/upstocks-mcp/internal/dispatch"
	"github.com/KalharPandya/upstocks-mcp/internal/logging"
)

// maxBodyBytes caps a single request body. Envelopes are small; anything
// larger is not a legitimate request.
const maxBodyBytes = 1 << 20

// HTTPHandler serves one envelope per POST body, synchronously.
type HTTPHandler struct {
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// NewHTTPHandler creates the HTTP transport adapter.
func NewHTTPHandler(d *dispatch.Dispatcher, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{dispatcher: d, logger: logging.WithTransport(logger, "http")}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	resp := h.dispatcher.DispatchRaw(r.Context(), body)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Warn("failed to write response", logging.Err(err))
	}
}
