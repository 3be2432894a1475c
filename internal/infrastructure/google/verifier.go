package google

import (
	"context"
	"fmt"

	"github.com/go-auth-nosql/internal/domain"
	"google.golang.org/api/idtoken"
)

// Identity is the verified subset of a Google ID token used for sign-in.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

type validateFunc func(ctx context.Context, token, audience string) (*idtoken.Payload, error)

// Verifier checks Google ID tokens issued for one OAuth client.
type Verifier struct {
	clientID string
	validate validateFunc
}

func NewVerifier(clientID string) *Verifier {
	return &Verifier{clientID: clientID, validate: idtoken.Validate}
}

// Verify validates signature, audience and expiry. Any failure is
// domain.ErrInvalidToken; tokens without an email cannot sign in.
func (v *Verifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if v.clientID == "" {
		return nil, fmt.Errorf("google sign-in not configured: %w", domain.ErrBadRequest)
	}
	p, err := v.validate(ctx, token, v.clientID)
	if err != nil {
		return nil, fmt.Errorf("google token: %w", domain.ErrInvalidToken)
	}
	email, _ := p.Claims["email"].(string)
	if email == "" {
		return nil, fmt.Errorf("google token has no email: %w", domain.ErrInvalidToken)
	}
	verified, _ := p.Claims["email_verified"].(bool)
	name, _ := p.Claims["name"].(string)
	return &Identity{
		Subject:       p.Subject,
		Email:         domain.NormalizeEmail(email),
		EmailVerified: verified,
		Name:          name,
	}, nil
}
