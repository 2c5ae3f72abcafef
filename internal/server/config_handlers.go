package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/cryptopilot-dev/cryptopilot/internal/models"
)

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	ID                     string     `json:"id"`
	InsightRefreshSchedule string     `json:"insight_refresh_schedule"`
	LastInsightRefreshAt   *time.Time `json:"last_insight_refresh_at"`
	NextInsightRefreshAt   *time.Time `json:"next_insight_refresh_at"`
	CreatedAt              time.Time  `json:"created_at"`
}

// UpdateConfigRequest represents the request to update configuration
type UpdateConfigRequest struct {
	InsightRefreshSchedule *string `json:"insightRefreshSchedule"`
}

func configResponse(config *models.Config) ConfigResponse {
	return ConfigResponse{
		ID:                     config.ID,
		InsightRefreshSchedule: config.InsightRefreshSchedule,
		LastInsightRefreshAt:   config.LastInsightRefreshAt,
		NextInsightRefreshAt:   config.NextInsightRefreshAt,
		CreatedAt:              config.CreatedAt,
	}
}

// @Summary Get configuration
// @Description Get the current global configuration
// @Tags config
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ConfigResponse
// @Failure 404 {object} map[string]interface{}
// @Router /api/config [get]
func (s *Server) getConfig(c *gin.Context) {
	var config models.Config
	if err := s.db.First(&config).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Configuration not found"})
			return
		}
		s.logger.Error().Err(err).Msg("Failed to get config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, configResponse(&config))
}

// @Summary Update configuration
// @Description Update the global configuration
// @Tags config
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body UpdateConfigRequest true "Configuration updates"
// @Success 200 {object} ConfigResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/config [patch]
func (s *Server) updateConfig(c *gin.Context) {
	var req UpdateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	var config models.Config
	if err := s.db.First(&config).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Configuration not found"})
			return
		}
		s.logger.Error().Err(err).Msg("Failed to get config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	// Update refresh schedule (empty string disables auto refresh)
	if req.InsightRefreshSchedule != nil {
		schedule := *req.InsightRefreshSchedule
		if schedule != "" {
			next := calculateNextRefresh(schedule, time.Now())
			if next == nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cron expression"})
				return
			}
			config.NextInsightRefreshAt = next
		} else {
			config.NextInsightRefreshAt = nil
		}
		config.InsightRefreshSchedule = schedule
	}

	if err := s.db.Save(&config).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to update config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update configuration"})
		return
	}

	s.logger.Info().Str("config_id", config.ID).Msg("Configuration updated")
	c.JSON(http.StatusOK, configResponse(&config))
}

// calculateNextRefresh calculates the next refresh time from a cron expression
func calculateNextRefresh(cronExpr string, from time.Time) *time.Time {
	if cronExpr == "" {
		return nil
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil
	}

	next := schedule.Next(from)
	return &next
}
