package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/validate"
	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", validate.ErrInvalid), http.StatusUnprocessableEntity},
		{domain.ErrCodeInvalid, http.StatusBadRequest},
		{domain.ErrInvalidToken, http.StatusUnauthorized},
		{domain.ErrTokenRevoked, http.StatusForbidden},
		{domain.ErrCodeNotFound, http.StatusNotFound},
		{domain.ErrConflict, http.StatusConflict},
		{domain.ErrCodeExpired, http.StatusGone},
		{domain.ErrCodeLocked, http.StatusTooManyRequests},
		{errors.New("dynamo exploded"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, StatusFor(c.err), c.err.Error())
	}
}

func TestPublicMessage_HidesInternalErrors(t *testing.T) {
	assert.Equal(t, "internal server error", PublicMessage(errors.New("table users-prod missing")))
	assert.Equal(t, "Token revoked", PublicMessage(domain.ErrTokenRevoked))
}
