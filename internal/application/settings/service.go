// Package settings manages the operator-editable mail configuration and
// resolves the settings the mailer uses on each send.
package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/infrastructure/smtp"
)

// Mask replaces a stored password in responses. Sending it back keeps the stored value.
const Mask = "********"

type Service interface {
	GetMail(ctx context.Context) (*domain.MailSettings, error)
	PutMail(ctx context.Context, in domain.MailSettings) (*domain.MailSettings, error)
	MailSettings(ctx context.Context) (smtp.Settings, error)
}

type settingsStore interface {
	PutMail(ctx context.Context, s *domain.MailSettings) error
	GetMail(ctx context.Context) (*domain.MailSettings, error)
}

type sealer interface {
	Seal(plaintext string) (string, error)
	Open(value string) (string, error)
}

type ServiceDeps struct {
	SettingsRepo settingsStore
	// Box may be nil when no credentials key is configured; stored
	// overrides then cannot carry SMTP credentials.
	Box      sealer
	Fallback smtp.Settings
}

type service struct {
	repo     settingsStore
	box      sealer
	fallback smtp.Settings
}

func NewService(deps ServiceDeps) Service {
	return &service{repo: deps.SettingsRepo, box: deps.Box, fallback: deps.Fallback}
}

// GetMail returns the effective settings with the password masked.
func (s *service) GetMail(ctx context.Context) (*domain.MailSettings, error) {
	eff, err := s.MailSettings(ctx)
	if err != nil {
		return nil, err
	}
	out := &domain.MailSettings{
		Host:     eff.Host,
		Port:     eff.Port,
		From:     eff.From,
		Username: eff.Username,
		TLS:      eff.TLS,
	}
	if eff.Password != "" {
		out.Password = Mask
	}
	if stored, err := s.repo.GetMail(ctx); err == nil {
		out.UpdatedAt = stored.UpdatedAt
	}
	return out, nil
}

// PutMail stores an override. Credentials are sealed before they are written.
func (s *service) PutMail(ctx context.Context, in domain.MailSettings) (*domain.MailSettings, error) {
	if in.Password == Mask {
		current, err := s.MailSettings(ctx)
		if err != nil {
			return nil, err
		}
		in.Password = current.Password
	}
	if (in.Username != "" || in.Password != "") && s.box == nil {
		return nil, fmt.Errorf("CREDENTIALS_KEY is not configured: %w", domain.ErrBadRequest)
	}

	stored := in
	stored.UpdatedAt = time.Now().UTC()
	if s.box != nil {
		var err error
		if stored.Username, err = s.box.Seal(in.Username); err != nil {
			return nil, err
		}
		if stored.Password, err = s.box.Seal(in.Password); err != nil {
			return nil, err
		}
	}
	if err := s.repo.PutMail(ctx, &stored); err != nil {
		return nil, err
	}

	out := in
	out.SettingKey = ""
	out.UpdatedAt = stored.UpdatedAt
	if out.Password != "" {
		out.Password = Mask
	}
	return &out, nil
}

// MailSettings resolves the stored override, or the environment settings when
// none exists.
func (s *service) MailSettings(ctx context.Context) (smtp.Settings, error) {
	stored, err := s.repo.GetMail(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return s.fallback, nil
	}
	if err != nil {
		return smtp.Settings{}, fmt.Errorf("load mail settings: %w", err)
	}
	out := smtp.Settings{
		Host:     stored.Host,
		Port:     stored.Port,
		From:     stored.From,
		Username: stored.Username,
		Password: stored.Password,
		TLS:      stored.TLS,
	}
	if s.box != nil {
		if out.Username, err = s.box.Open(stored.Username); err != nil {
			return smtp.Settings{}, fmt.Errorf("open smtp username: %w", err)
		}
		if out.Password, err = s.box.Open(stored.Password); err != nil {
			return smtp.Settings{}, fmt.Errorf("open smtp password: %w", err)
		}
	}
	return out, nil
}
