package handlers

import (
	"net/http"

	"github.com/ndewijer/networth-tracker/internal/api/response"
	"github.com/ndewijer/networth-tracker/internal/service"
)

// SystemHandler handles system-related HTTP requests
type SystemHandler struct {
	systemService *service.SystemService
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(systemService *service.SystemService) *SystemHandler {
	return &SystemHandler{
		systemService: systemService,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Error    string `json:"error,omitempty"`
}

// Health checks database connectivity.
//
// Endpoint: GET /api/system/health
// Response: 200 OK with HealthResponse
// Error: 503 Service Unavailable if the database is unreachable
func (h *SystemHandler) Health(w http.ResponseWriter, _ *http.Request) {
	if err := h.systemService.CheckHealth(); err != nil {
		response.RespondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:   "unhealthy",
			Database: "disconnected",
			Error:    err.Error(),
		})
		return
	}

	response.RespondJSON(w, http.StatusOK, HealthResponse{
		Status:   "healthy",
		Database: "connected",
	})
}

// Status reports component health, the schema version and the rate cache state.
//
// Endpoint: GET /api/system/status
// Response: 200 OK with service.SystemStatus
// Error: 500 Internal Server Error if the schema version cannot be read
func (h *SystemHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.systemService.Status(r.Context())
	if err != nil {
		response.RespondError(w, http.StatusInternalServerError, "failed to get system status", err.Error())
		return
	}
	response.RespondJSON(w, http.StatusOK, status)
}
