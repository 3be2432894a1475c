package domain

import "time"

// Purpose keys partition OTP records by flow.
const (
	PurposeReauthentication   = "reauthentication"
	PurposeResetPassword      = "reset_password"
	PurposeChangeEmailCurrent = "change_email_current"
	PurposeChangeEmailNew     = "change_email_new"
	PurposeMagicLink          = "magic_link"
	PurposeVerifyRegistration = "verify_registration"
	PurposeInvite             = "invite"
)

// OTPRecord is one issued code. PK: subject_key, SK: record_key ("<purpose>#<ulid>").
// Once Used is true the record is never written again.
type OTPRecord struct {
	SubjectKey  string     `json:"subject_key" dynamodbav:"subject_key"`
	RecordKey   string     `json:"record_key" dynamodbav:"record_key"`
	PurposeKey  string     `json:"purpose" dynamodbav:"purpose_key"`
	Code        string     `json:"-" dynamodbav:"code"`
	Used        bool       `json:"used" dynamodbav:"used"`
	Attempts    int        `json:"attempts" dynamodbav:"attempts"`
	MaxAttempts int        `json:"max_attempts" dynamodbav:"max_attempts"`
	CreatedAt   time.Time  `json:"created" dynamodbav:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at" dynamodbav:"expires_at"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty" dynamodbav:"verified_at,omitempty"`
	PurgeAt     int64      `json:"-" dynamodbav:"purge_at"` // TTL (Unix seconds)
}

// Expired reports whether the record is past its expiry at now.
func (r *OTPRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

type CodeRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

type ReauthConfirmRequest struct {
	Code   string `json:"code" validate:"required,len=6,numeric"`
	Action string `json:"action" validate:"omitempty,oneof=delete_account suspend_account change_password change_email"`
}
