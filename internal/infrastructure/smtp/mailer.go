package smtp

import (
	"context"
	"fmt"
	"time"

	"github.com/go-auth-nosql/internal/config"
	"github.com/wneessen/go-mail"
)

// Settings is the SMTP endpoint and sender a message goes out through.
type Settings struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
	TLS      bool
}

// SettingsSource resolves the effective settings at send time, so operator
// changes apply without a restart.
type SettingsSource interface {
	MailSettings(ctx context.Context) (Settings, error)
}

// Mailer sends emails.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, html string) error
}

type mailer struct {
	source  SettingsSource
	timeout time.Duration
}

func NewMailer(source SettingsSource, timeout time.Duration) Mailer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &mailer{source: source, timeout: timeout}
}

// EnvSettings returns the settings configured through SMTP_* variables.
func EnvSettings(cfg *config.Config) Settings {
	return Settings{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		From:     cfg.SMTPFrom,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		TLS:      cfg.SMTPTLS,
	}
}

// Static is a SettingsSource that always returns the same settings.
type Static Settings

func (s Static) MailSettings(context.Context) (Settings, error) { return Settings(s), nil }

func (m *mailer) SendEmail(ctx context.Context, to, subject, html string) error {
	s, err := m.source.MailSettings(ctx)
	if err != nil {
		return fmt.Errorf("resolve mail settings: %w", err)
	}
	msg, err := buildMessage(s.From, to, subject, html)
	if err != nil {
		return err
	}
	client, err := mail.NewClient(s.Host, clientOptions(s, m.timeout)...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}

func buildMessage(from, to, subject, html string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("setting from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, html)
	return msg, nil
}

func clientOptions(s Settings, timeout time.Duration) []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.Port),
		mail.WithTimeout(timeout),
	}
	if s.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		// 465 is implicit TLS; everything else negotiates STARTTLS.
		if s.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if s.Username != "" && s.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.Username),
			mail.WithPassword(s.Password),
		)
	}
	return opts
}
