package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/cryptopilot-dev/cryptopilot/internal/models"
	"github.com/cryptopilot-dev/cryptopilot/internal/tasks"
)

// HandleSendVerificationEmail delivers a pending verification email.
// Delivery is logged rather than sent over SMTP; the deployment wires a
// real mail relay by tailing the structured log or replacing this
// handler.
func HandleSendVerificationEmail(ctx context.Context, t *asynq.Task, db *gorm.DB, logger zerolog.Logger) error {
	payload, err := tasks.ParseVerificationEmailPayload(t)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}

	var verification models.EmailVerification
	if err := models.FindByID(db.WithContext(ctx), payload.VerificationID, &verification); err != nil {
		if err == gorm.ErrRecordNotFound {
			// Token was consumed or cleaned up; nothing to deliver
			logger.Debug().Str("verification_id", payload.VerificationID).Msg("Verification no longer exists")
			return nil
		}
		return fmt.Errorf("failed to load verification: %w", err)
	}

	if verification.ConsumedAt != nil {
		logger.Debug().Str("verification_id", verification.ID).Msg("Verification already consumed")
		return nil
	}
	if verification.ExpiresAt.Before(time.Now()) {
		logger.Debug().Str("verification_id", verification.ID).Msg("Verification expired before delivery")
		return nil
	}

	var user models.User
	if err := models.FindByID(db.WithContext(ctx), verification.UserID, &user); err != nil {
		return fmt.Errorf("failed to load user %s: %w", verification.UserID, err)
	}

	logger.Info().
		Str("user_id", user.ID).
		Str("email", user.Email).
		Str("token", verification.Token).
		Time("expires_at", verification.ExpiresAt).
		Msg("Verification email dispatched")

	return nil
}
