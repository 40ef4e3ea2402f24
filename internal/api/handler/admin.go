package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tobk/ytvault/internal/service"
)

// AdminHandler handles maintenance operations.
type AdminHandler struct {
	cleanup *service.CleanupService
}

// NewAdminHandler creates a new admin handler.
// Parameters:
//   - cleanup: retention cleanup service instance.
// Returns:
//   - *AdminHandler: initialized handler.
func NewAdminHandler(cleanup *service.CleanupService) *AdminHandler {
	return &AdminHandler{
		cleanup: cleanup,
	}
}

// CleanupRequest represents the cleanup API request. A zero or missing
// older_than_days falls back to the configured retention window.
type CleanupRequest struct {
	OlderThanDays int `json:"older_than_days"`
}

// CleanupResponse represents the cleanup API response.
type CleanupResponse struct {
	Message string                 `json:"message"`
	Report  *service.CleanupReport `json:"report"`
}

// RunCleanup handles POST /api/v1/admin/cleanup.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) RunCleanup(c *gin.Context) {
	// The body is optional; an empty one means configured retention.
	var req CleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	report, err := h.cleanup.RemoveOlderThan(c.Request.Context(), req.OlderThanDays)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Cleanup failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, CleanupResponse{
		Message: fmt.Sprintf("Removed %d jobs", report.JobsRemoved),
		Report:  report,
	})
}
