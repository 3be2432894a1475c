package smtp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-auth-nosql/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

type failingSource struct{}

func (failingSource) MailSettings(context.Context) (Settings, error) {
	return Settings{}, errors.New("settings unavailable")
}

func TestBuildMessage(t *testing.T) {
	msg, err := buildMessage("noreply@example.com", "a@b.com", "Your code", "<p>123456</p>")
	require.NoError(t, err)

	rcpts, err := msg.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"a@b.com"}, rcpts)
	assert.Equal(t, []string{"Your code"}, msg.GetGenHeader(mail.HeaderSubject))
}

func TestBuildMessage_InvalidRecipient(t *testing.T) {
	_, err := buildMessage("noreply@example.com", "not an address", "s", "b")
	require.Error(t, err)
}

func TestBuildMessage_InvalidSender(t *testing.T) {
	_, err := buildMessage("", "a@b.com", "s", "b")
	require.Error(t, err)
}

func TestClientOptions(t *testing.T) {
	plain := clientOptions(Settings{Port: 1025}, time.Second)
	assert.Len(t, plain, 3)

	withAuth := clientOptions(Settings{Port: 587, TLS: true, Username: "u", Password: "p"}, time.Second)
	assert.Len(t, withAuth, 6)

	implicit := clientOptions(Settings{Port: 465, TLS: true}, time.Second)
	assert.Len(t, implicit, 4)
}

func TestEnvSettings(t *testing.T) {
	s := EnvSettings(&config.Config{SMTPHost: "mail", SMTPPort: 25, SMTPFrom: "f@x.io", SMTPTLS: true})
	assert.Equal(t, Settings{Host: "mail", Port: 25, From: "f@x.io", TLS: true}, s)
}

func TestSendEmail_SettingsError(t *testing.T) {
	m := NewMailer(failingSource{}, time.Second)
	err := m.SendEmail(context.Background(), "a@b.com", "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve mail settings")
}

func TestSendEmail_UnreachableServer(t *testing.T) {
	m := NewMailer(Static{Host: "127.0.0.1", Port: 1, From: "noreply@example.com"}, time.Second)
	err := m.SendEmail(context.Background(), "a@b.com", "s", "b")
	require.Error(t, err)
}
