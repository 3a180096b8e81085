// Package httpapi exposes the orchestrator operations and the event stream
// on the admin HTTP mux: JSON endpoints for start/cancel/restart/status,
// SSE and WebSocket endpoints for live progress.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/inkpad-ai/researchd/internal/orchestrator"
)

// ResearchHandler serves the research operation endpoints.
type ResearchHandler struct {
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
}

func NewResearchHandler(orch *orchestrator.Orchestrator, logger *zap.Logger) *ResearchHandler {
	return &ResearchHandler{orch: orch, logger: logger}
}

// RegisterRoutes registers the /api/research endpoints.
func (h *ResearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/research/start", h.handleStart)
	mux.HandleFunc("/api/research/cancel", h.handleCancel)
	mux.HandleFunc("/api/research/restart", h.handleRestart)
	mux.HandleFunc("/api/research/status", h.handleStatus)
}

type startRequest struct {
	DocumentID string `json:"document_id"`
	Purpose    string `json:"purpose"`
}

type documentRequest struct {
	DocumentID string `json:"document_id"`
}

func (h *ResearchHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.orch.StartResearch(req.DocumentID, req.Purpose); err != nil {
		h.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"started": true})
}

func (h *ResearchHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.orch.Cancel(req.DocumentID); err != nil {
		h.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

func (h *ResearchHandler) handleRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.orch.Restart(r.Context(), req.DocumentID); err != nil {
		h.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"restarted": true})
}

func (h *ResearchHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	documentID := r.URL.Query().Get("document_id")
	if documentID == "" {
		writeError(w, http.StatusBadRequest, "document_id required")
		return
	}
	writeJSON(w, http.StatusOK, h.orch.Status(documentID))
}

func (h *ResearchHandler) writeOpError(w http.ResponseWriter, err error) {
	var vErr *orchestrator.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Error())
	case errors.Is(err, orchestrator.ErrAlreadyResearching):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, orchestrator.ErrNotResearching),
		errors.Is(err, orchestrator.ErrUnknownDocument):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("Research operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
