package health

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// HTTPHandler exposes health endpoints on the admin mux.
type HTTPHandler struct {
	manager *Manager
	logger  *zap.Logger
}

func NewHTTPHandler(manager *Manager, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{manager: manager, logger: logger}
}

// RegisterRoutes registers /health, /healthz, and /readiness.
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/healthz", h.handleLiveness)
	mux.HandleFunc("/readiness", h.handleReadiness)
}

// handleHealth returns the detailed component view.
func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	results := h.manager.Results()
	status := http.StatusOK
	if !h.manager.IsReady() {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"ready":      h.manager.IsReady(),
		"components": results,
	}); err != nil {
		h.logger.Warn("Failed to encode health response", zap.Error(err))
	}
}

// handleLiveness always reports alive while the process serves requests.
func (h *HTTPHandler) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *HTTPHandler) handleReadiness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !h.manager.IsReady() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"ready":false}`))
		return
	}
	_, _ = w.Write([]byte(`{"ready":true}`))
}
