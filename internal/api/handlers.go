package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gatekeeper/internal/engine"
	"gatekeeper/internal/models"
	"gatekeeper/internal/version"
)

// Handlers contains HTTP handlers for the gatekeeper operations API
type Handlers struct {
	engine  *engine.Engine
	version version.Info
}

// NewHandlers creates a new handlers instance
func NewHandlers(eng *engine.Engine, ver version.Info) *Handlers {
	return &Handlers{
		engine:  eng,
		version: ver,
	}
}

// HealthCheck handles health check requests
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   h.version.Version,
	}

	h.writeJSONResponse(w, http.StatusOK, models.NewDataResponse(response))
}

// GetStatus reports the engine configuration snapshot and backend health.
// GET /api/v1/ratelimit/status
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, models.NewDataResponse(h.engine.Status()))
}

// GetEvents returns the retained blocking/warning events, newest first.
// GET /api/v1/ratelimit/events
func (h *Handlers) GetEvents(w http.ResponseWriter, r *http.Request) {
	events, total, capacity := h.engine.RecentEvents()

	response := models.EventsResponse{
		Events:   events,
		Total:    total,
		Capacity: capacity,
	}

	h.writeJSONResponse(w, http.StatusOK, models.NewDataResponse(response))
}

// ClearEvents empties the event trail.
// DELETE /api/v1/ratelimit/events
func (h *Handlers) ClearEvents(w http.ResponseWriter, r *http.Request) {
	h.engine.ClearEvents()
	w.WriteHeader(http.StatusNoContent)
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// If we can't encode the response, log it but don't try to send another
		// response as headers have already been written
		fmt.Printf("Error encoding JSON response: %v\n", err)
	}
}
