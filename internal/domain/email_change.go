package domain

import "time"

const (
	EmailChangePending   = "pending"
	EmailChangeCompleted = "completed"
	EmailChangeExpired   = "expired"
)

// EmailChangeRequest tracks a pending address change that needs codes from both mailboxes.
type EmailChangeRequest struct {
	RequestID   string     `json:"id" dynamodbav:"request_id"`
	AccountID   string     `json:"account_id" dynamodbav:"account_id"`
	OldEmail    string     `json:"old_email" dynamodbav:"old_email"`
	NewEmail    string     `json:"new_email" dynamodbav:"new_email"`
	Status      string     `json:"status" dynamodbav:"status"`
	ExpiresAt   time.Time  `json:"expires_at" dynamodbav:"expires_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" dynamodbav:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created" dynamodbav:"created_at"`
}

type EmailChangeStartRequest struct {
	NewEmail string `json:"new_email" validate:"required,email"`
}

type EmailChangeConfirmRequest struct {
	CurrentCode string `json:"current_code" validate:"required,len=6,numeric"`
	NewCode     string `json:"new_code" validate:"required,len=6,numeric"`
}
