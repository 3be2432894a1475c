package domain

import (
	"strings"
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Account is the identity record. TokenVersion only ever grows; every
// credential-invalidating event increments it by one.
type Account struct {
	AccountID     string    `json:"id" dynamodbav:"account_id"`
	Email         string    `json:"email" dynamodbav:"email"`
	Username      string    `json:"username" dynamodbav:"username"`
	PasswordHash  string    `json:"-" dynamodbav:"password_hash"`
	Role          string    `json:"role" dynamodbav:"role"`
	TokenVersion  int64     `json:"-" dynamodbav:"token_version"`
	VerifiedEmail bool      `json:"verified_email" dynamodbav:"verified_email"`
	Suspended     bool      `json:"suspended" dynamodbav:"suspended"`
	AuthProvider  string    `json:"auth_provider,omitempty" dynamodbav:"auth_provider"` // "local" | "google"
	GoogleSub     string    `json:"-" dynamodbav:"google_sub,omitempty"`
	CreatedAt     time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt     time.Time `json:"updated" dynamodbav:"updated_at"`
}

// IsAdmin reports whether the account carries the admin role.
func (a *Account) IsAdmin() bool { return a.Role == RoleAdmin }

// Permissions returns the flags exposed to message templates.
func (a *Account) Permissions() map[string]bool {
	return map[string]bool{
		"admin":    a.IsAdmin(),
		"verified": a.VerifiedEmail,
	}
}

// NormalizeEmail lower-cases and trims an address so lookups compare case-insensitively.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required"` // username or email
	Password   string `json:"password" validate:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

type SetPasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

// AuthTokens is the result of any sign-in. RefreshToken travels only as a cookie.
type AuthTokens struct {
	AccessToken  string
	RefreshToken string
	Account      *Account
}

type GoogleLoginRequest struct {
	IDToken string `json:"id_token" validate:"required"`
}

type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type PasswordResetConfirmRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required,len=6,numeric"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

type MagicLinkConsumeRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}
