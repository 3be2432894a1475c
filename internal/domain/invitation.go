package domain

import "time"

const (
	InvitationIssued   = "issued"
	InvitationAccepted = "accepted"
	InvitationExpired  = "expired"
	InvitationRevoked  = "revoked"
)

// Invitation lets an admin pre-authorise a signup for one email address.
type Invitation struct {
	InvitationID string     `json:"id" dynamodbav:"invitation_id"`
	Email        string     `json:"email" dynamodbav:"email"`
	Role         string     `json:"role" dynamodbav:"role"`
	InvitedBy    string     `json:"invited_by" dynamodbav:"invited_by"`
	Status       string     `json:"status" dynamodbav:"status"`
	ExpiresAt    time.Time  `json:"expires_at" dynamodbav:"expires_at"`
	AcceptedAt   *time.Time `json:"accepted_at,omitempty" dynamodbav:"accepted_at,omitempty"`
	CreatedAt    time.Time  `json:"created" dynamodbav:"created_at"`
}

type CreateInvitationRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"omitempty,oneof=user admin"`
}

type AcceptInvitationRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Code     string `json:"code" validate:"required,len=6,numeric"`
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}
