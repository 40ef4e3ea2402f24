package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tobk/ytvault/internal/api/middleware"
	"github.com/tobk/ytvault/internal/service"
)

// StatsHandler handles the per-user statistics endpoint.
type StatsHandler struct {
	stats *service.StatsService
}

// NewStatsHandler creates a new stats handler.
// Parameters:
//   - stats: statistics service instance.
// Returns:
//   - *StatsHandler: initialized handler.
func NewStatsHandler(stats *service.StatsService) *StatsHandler {
	return &StatsHandler{
		stats: stats,
	}
}

// StatsResponse represents the statistics API response: the stored
// overview plus the derived presentation fields.
type StatsResponse struct {
	*service.StatsOverview
	SuccessRate float64 `json:"success_rate"`
	StorageUsed string  `json:"storage_used"`
}

// GetStats handles GET /api/v1/stats.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *StatsHandler) GetStats(c *gin.Context) {
	overview, err := h.stats.Overview(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load stats: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, StatsResponse{
		StatsOverview: overview,
		SuccessRate:   overview.Stats.SuccessRate(),
		StorageUsed:   overview.Stats.StorageFormatted(),
	})
}
