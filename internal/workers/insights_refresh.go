package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/cryptopilot-dev/cryptopilot/internal/insights"
	"github.com/cryptopilot-dev/cryptopilot/internal/models"
	"github.com/cryptopilot-dev/cryptopilot/internal/tasks"
)

// HandleRefreshInsights regenerates the market insights for the whole
// tracked catalog
func HandleRefreshInsights(ctx context.Context, _ *asynq.Task, db *gorm.DB, service *insights.Service, logger zerolog.Logger) error {
	now := time.Now().UTC()

	if err := service.Refresh(ctx, now); err != nil {
		return fmt.Errorf("failed to refresh insights: %w", err)
	}

	// Record the run on the singleton config so the dashboard can show
	// freshness
	var config models.Config
	if err := db.First(&config).Error; err == nil {
		if err := db.Model(&config).Update("last_insight_refresh_at", now).Error; err != nil {
			logger.Warn().Err(err).Msg("Failed to update last_insight_refresh_at")
		}
	}

	return nil
}

// StartInsightScheduler runs a periodic check (every minute) for a due
// insight refresh
func StartInsightScheduler(client *asynq.Client, db *gorm.DB, logger zerolog.Logger) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	// Run immediately on startup, then every minute
	checkAndEnqueueRefresh(client, db, logger)

	for range ticker.C {
		checkAndEnqueueRefresh(client, db, logger)
	}
}

func checkAndEnqueueRefresh(client *asynq.Client, db *gorm.DB, logger zerolog.Logger) {
	// Load the singleton config
	var config models.Config
	err := db.First(&config).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			logger.Debug().Msg("No config found - skipping refresh check")
			return
		}
		logger.Error().Err(err).Msg("Failed to query config for refresh")
		return
	}

	if config.InsightRefreshSchedule == "" {
		logger.Debug().Msg("No insight refresh schedule configured")
		return
	}

	if config.NextInsightRefreshAt != nil && config.NextInsightRefreshAt.After(time.Now()) {
		logger.Debug().
			Time("next_refresh_at", *config.NextInsightRefreshAt).
			Msg("Insight refresh not due yet")
		return
	}

	task, err := tasks.NewRefreshInsightsTask()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create insight refresh task")
		return
	}

	if _, err := client.Enqueue(task, asynq.Timeout(5*time.Minute)); err != nil {
		logger.Error().Err(err).Msg("Failed to enqueue insight refresh task")
		return
	}

	// Advance NextInsightRefreshAt immediately so the scheduler does not
	// re-enqueue every minute
	nextRefresh := nextRefreshTime(config.InsightRefreshSchedule, time.Now())
	if nextRefresh != nil {
		if err := db.Model(&config).Update("next_insight_refresh_at", nextRefresh).Error; err != nil {
			logger.Error().Err(err).Msg("Failed to update next_insight_refresh_at")
		}
	}

	logger.Info().
		Str("config_id", config.ID).
		Str("schedule", config.InsightRefreshSchedule).
		Msg("Insight refresh task enqueued")
}

// nextRefreshTime calculates the next refresh time from a cron schedule
// (standard 5-field format)
func nextRefreshTime(cronExpr string, from time.Time) *time.Time {
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
