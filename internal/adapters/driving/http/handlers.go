package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/swaggo/swag"

	// Registers the generated OpenAPI document with swag
	_ "github.com/custodia-labs/applicant-sync/docs"
	"github.com/custodia-labs/applicant-sync/internal/core/domain"
)

// maxSyncRequestBytes bounds the manual trigger body
const maxSyncRequestBytes = 1 << 20

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"invalid request body"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// ReadyResponse reports the state of each dependency
// @Description Readiness response
type ReadyResponse struct {
	Status string            `json:"status" example:"ready"`
	Checks map[string]string `json:"checks,omitempty"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// SyncResponse carries the state updates of a manual batch
// @Description Result of a manual sync batch
type SyncResponse struct {
	MessageID string                `json:"message_id"`
	Updates   []*domain.StateUpdate `json:"updates"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the service
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Pings Redis and PostgreSQL
// @Tags         Health
// @Produce      json
// @Success      200  {object}  ReadyResponse
// @Failure      503  {object}  ReadyResponse
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := ReadyResponse{Status: "ready", Checks: make(map[string]string, len(s.checks))}
	status := http.StatusOK
	for name, p := range s.checks {
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", "dependency", name, "error", err)
			resp.Checks[name] = "unavailable"
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}

// handleVersion godoc
// @Summary      Get service version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

func (s *Server) handleSwaggerDoc(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "api document unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(doc))
}

// Sync endpoints

// handleSync godoc
// @Summary      Run a sync batch
// @Description  Runs every configuration of the trigger synchronously and returns one state update per enabled item. Updates are also reported on the state stream.
// @Tags         Sync
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      domain.TriggerMessage  true  "Trigger message"
// @Success      200      {object}  SyncResponse
// @Failure      400      {object}  ErrorResponse  "Invalid request body"
// @Failure      401      {object}  ErrorResponse  "Missing or invalid token"
// @Failure      403      {object}  ErrorResponse  "Missing sync:trigger scope"
// @Router       /api/v1/sync [post]
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var msg domain.TriggerMessage
	body := http.MaxBytesReader(w, r.Body, maxSyncRequestBytes)
	if err := json.NewDecoder(body).Decode(&msg); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(msg.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items are required")
		return
	}
	if msg.ID == "" {
		msg.ID = domain.NewMessageID()
	}
	if msg.RequestedAt.IsZero() {
		msg.RequestedAt = time.Now().UTC()
	}

	if claims := GetOperatorClaims(r.Context()); claims != nil {
		s.logger.Info("manual sync requested",
			"message_id", msg.ID,
			"subject", claims.Subject,
			"items", len(msg.Items),
		)
	}

	updates := s.syncOrchestrator.SyncBatch(r.Context(), &msg)
	if updates == nil {
		updates = []*domain.StateUpdate{}
	}
	writeJSON(w, http.StatusOK, SyncResponse{MessageID: msg.ID, Updates: updates})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
