package workers

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/cryptopilot-dev/cryptopilot/internal/insights"
	"github.com/cryptopilot-dev/cryptopilot/internal/models"
	"github.com/cryptopilot-dev/cryptopilot/internal/tasks"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	return db
}

func TestHandleRefreshInsights(t *testing.T) {
	db := newTestDB(t)

	catalog, err := insights.LoadCatalog()
	require.NoError(t, err)
	service := insights.NewService(db, catalog, zerolog.Nop())

	config := models.Config{InsightRefreshSchedule: "0 * * * *"}
	require.NoError(t, db.Create(&config).Error)

	task, err := tasks.NewRefreshInsightsTask()
	require.NoError(t, err)

	require.NoError(t, HandleRefreshInsights(context.Background(), task, db, service, zerolog.Nop()))

	var insightCount int64
	require.NoError(t, db.Model(&models.Insight{}).Count(&insightCount).Error)
	require.Equal(t, int64(len(catalog.Coins)), insightCount)

	// The run is recorded on the singleton config
	var updated models.Config
	require.NoError(t, db.First(&updated).Error)
	require.NotNil(t, updated.LastInsightRefreshAt)
}

func TestHandleSendVerificationEmail(t *testing.T) {
	db := newTestDB(t)

	user := models.User{Username: "alice", Email: "alice@example.com", Role: models.RoleUser}
	require.NoError(t, db.Create(&user).Error)

	verification := models.EmailVerification{
		UserID:    user.ID,
		Token:     "token-abc",
		ExpiresAt: time.Now().Add(time.Hour).UTC(),
	}
	require.NoError(t, db.Create(&verification).Error)

	task, err := tasks.NewSendVerificationEmailTask(user.ID, verification.ID)
	require.NoError(t, err)

	require.NoError(t, HandleSendVerificationEmail(context.Background(), task, db, zerolog.Nop()))
}

func TestHandleSendVerificationEmail_MissingVerificationIsNoop(t *testing.T) {
	db := newTestDB(t)

	task, err := tasks.NewSendVerificationEmailTask("user-1", "gone")
	require.NoError(t, err)

	// A consumed-and-cleaned-up token must not fail the task, or asynq
	// would retry it forever
	require.NoError(t, HandleSendVerificationEmail(context.Background(), task, db, zerolog.Nop()))
}

func TestHandleSendVerificationEmail_ConsumedIsNoop(t *testing.T) {
	db := newTestDB(t)

	user := models.User{Username: "alice", Email: "alice@example.com", Role: models.RoleUser}
	require.NoError(t, db.Create(&user).Error)

	now := time.Now().UTC()
	verification := models.EmailVerification{
		UserID:     user.ID,
		Token:      "token-abc",
		ExpiresAt:  now.Add(time.Hour),
		ConsumedAt: &now,
	}
	require.NoError(t, db.Create(&verification).Error)

	task, err := tasks.NewSendVerificationEmailTask(user.ID, verification.ID)
	require.NoError(t, err)

	require.NoError(t, HandleSendVerificationEmail(context.Background(), task, db, zerolog.Nop()))
}

func TestNextRefreshTime(t *testing.T) {
	from := time.Date(2026, 3, 14, 10, 20, 0, 0, time.UTC)

	tests := []struct {
		name string
		expr string
		want *time.Time
	}{
		{
			name: "hourly",
			expr: "0 * * * *",
			want: timePtr(time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC)),
		},
		{
			name: "every fifteen minutes",
			expr: "*/15 * * * *",
			want: timePtr(time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)),
		},
		{
			name: "daily at midnight",
			expr: "0 0 * * *",
			want: timePtr(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)),
		},
		{
			name: "empty disables",
			expr: "",
			want: nil,
		},
		{
			name: "invalid expression",
			expr: "not a cron",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextRefreshTime(tt.expr, from)
			if tt.want == nil {
				require.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			require.True(t, got.Equal(*tt.want), "next = %v, want %v", got, tt.want)
		})
	}
}

func timePtr(t time.Time) *time.Time { return &t }
