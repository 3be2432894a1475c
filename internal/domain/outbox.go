package domain

import "time"

// Outbox message statuses. processing is held only while a drain owns the message.
const (
	OutboxQueued     = "queued"
	OutboxRetry      = "retry"
	OutboxProcessing = "processing"
	OutboxSent       = "sent"
	OutboxFailed     = "failed"
)

// OutboxMessage is a rendered email awaiting delivery. Transitions are driven by the dispatcher only.
type OutboxMessage struct {
	MessageID  string     `json:"id" dynamodbav:"message_id"`
	PurposeKey string     `json:"purpose" dynamodbav:"purpose_key"`
	Recipient  string     `json:"recipient" dynamodbav:"recipient"`
	Subject    string     `json:"subject" dynamodbav:"subject"`
	HTML       string     `json:"html,omitempty" dynamodbav:"html"`
	Status     string     `json:"status" dynamodbav:"status"`
	Attempts   int        `json:"attempts" dynamodbav:"attempts"`
	LastError  string     `json:"last_error,omitempty" dynamodbav:"last_error,omitempty"`
	QueuedAt   time.Time  `json:"queued_at" dynamodbav:"queued_at,unixtime"` // GSI sort key
	ClaimedAt  *time.Time `json:"claimed_at,omitempty" dynamodbav:"claimed_at,omitempty,unixtime"`
	SentAt     *time.Time `json:"sent_at,omitempty" dynamodbav:"sent_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated" dynamodbav:"updated_at"`
}

// DrainResult summarises one dispatcher pass.
type DrainResult struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

type DrainRequest struct {
	Limit       int    `json:"limit" validate:"omitempty,min=1,max=100"`
	MaxAttempts int    `json:"max_attempts" validate:"omitempty,min=1,max=20"`
	Purpose     string `json:"purpose"`
	// SkipFailed leaves terminal failures for an operator; scheduled drains set it.
	SkipFailed  bool   `json:"-"`
}

type CleanupRequest struct {
	RetentionDays int `json:"retention_days" validate:"omitempty,min=1,max=3650"`
}
