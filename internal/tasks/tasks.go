package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	TypeSendVerificationEmail = "verification_email:send"
	TypeRefreshInsights       = "insights:refresh"
)

// VerificationEmailPayload identifies the pending verification to send
type VerificationEmailPayload struct {
	UserID         string `json:"user_id"`
	VerificationID string `json:"verification_id"`
}

// NewSendVerificationEmailTask creates a task to deliver a verification email
func NewSendVerificationEmailTask(userID, verificationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(VerificationEmailPayload{
		UserID:         userID,
		VerificationID: verificationID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TypeSendVerificationEmail, payload), nil
}

// ParseVerificationEmailPayload parses the payload from an Asynq task
func ParseVerificationEmailPayload(task *asynq.Task) (VerificationEmailPayload, error) {
	var payload VerificationEmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return payload, nil
}

// NewRefreshInsightsTask creates a task to regenerate market insights.
// The payload is empty; the refresh always covers the whole catalog.
func NewRefreshInsightsTask() (*asynq.Task, error) {
	return asynq.NewTask(TypeRefreshInsights, nil), nil
}
