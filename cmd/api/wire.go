package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-auth-nosql/internal/application/account"
	"github.com/go-auth-nosql/internal/application/emailchange"
	"github.com/go-auth-nosql/internal/application/invite"
	"github.com/go-auth-nosql/internal/application/notify"
	"github.com/go-auth-nosql/internal/application/otp"
	"github.com/go-auth-nosql/internal/application/outbox"
	"github.com/go-auth-nosql/internal/application/ratelimit"
	"github.com/go-auth-nosql/internal/application/recovery"
	"github.com/go-auth-nosql/internal/application/session"
	"github.com/go-auth-nosql/internal/application/settings"
	"github.com/go-auth-nosql/internal/application/stepup"
	"github.com/go-auth-nosql/internal/application/templates"
	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/infrastructure/dynamo"
	"github.com/go-auth-nosql/internal/infrastructure/google"
	jwtinfra "github.com/go-auth-nosql/internal/infrastructure/jwt"
	s3infra "github.com/go-auth-nosql/internal/infrastructure/s3"
	"github.com/go-auth-nosql/internal/infrastructure/smtp"
	"github.com/go-auth-nosql/internal/infrastructure/sns"
	"github.com/go-auth-nosql/internal/pkg/sealed"
	transporthttp "github.com/go-auth-nosql/internal/transport/http"
	"github.com/redis/go-redis/v9"
)

// app is the fully wired service graph shared by every command.
type app struct {
	cfg        *config.Config
	deps       *transporthttp.Deps
	dispatcher *outbox.Dispatcher
	closers    []func() error
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			slog.Warn("close failed", "err", err)
		}
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	setupLogger(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func build(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}

	dynamoClient, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	accountRepo := dynamo.NewAccountRepo(dynamoClient, cfg.DynamoTables.Accounts)
	otpRepo := dynamo.NewOTPRepo(dynamoClient, cfg.DynamoTables.OTPs)
	outboxRepo := dynamo.NewOutboxRepo(dynamoClient, cfg.DynamoTables.Outbox)
	invitationRepo := dynamo.NewInvitationRepo(dynamoClient, cfg.DynamoTables.Invitations)
	emailChangeRepo := dynamo.NewEmailChangeRepo(dynamoClient, cfg.DynamoTables.EmailChanges)
	settingsRepo := dynamo.NewSettingsRepo(dynamoClient, cfg.DynamoTables.Settings)

	tokens, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		return nil, err
	}

	var source templates.Source
	if cfg.TemplateBucket != "" {
		s3Client, err := s3infra.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		source = s3infra.NewStore(s3Client, cfg.TemplateBucket)
	}
	renderer, err := templates.NewRenderer(source)
	if err != nil {
		return nil, err
	}

	settingsDeps := settings.ServiceDeps{SettingsRepo: settingsRepo, Fallback: smtp.EnvSettings(cfg)}
	if cfg.CredentialsKey != "" {
		box, err := sealed.New(cfg.CredentialsKey)
		if err != nil {
			return nil, fmt.Errorf("credentials key: %w", err)
		}
		settingsDeps.Box = box
	}
	settingsSvc := settings.NewService(settingsDeps)
	mailer := smtp.NewMailer(settingsSvc, cfg.SMTPTimeout)

	var alerter outbox.Alerter
	if al, err := sns.NewAlerter(ctx, cfg); err == nil {
		alerter = al
	} else {
		slog.Warn("outbox alerts disabled", "err", err)
	}
	a.dispatcher = outbox.NewDispatcher(outboxRepo, mailer, alerter, outbox.Options{
		MaxAttempts:  cfg.OutboxMaxAttempts,
		Retention:    cfg.OutboxRetention,
		ClaimTimeout: cfg.OutboxClaimTimeout,
		SendRate:     cfg.OutboxSendRate,
	})

	notifier := notify.New(renderer, a.dispatcher, cfg.SiteURL)
	engine := otp.NewEngine(otpRepo, cfg.OTPTTL, cfg.OTPMaxAttempts)
	limiter, err := newLimiter(cfg, a)
	if err != nil {
		return nil, err
	}
	guard := stepup.NewGuard(accountRepo, tokens, engine, notifier, cfg.RequireReauthFor).UseOnce(limiter)
	openSignup := cfg.SignupMode == "open"

	sessionSvc := session.NewService(session.ServiceDeps{
		AccountRepo:    accountRepo,
		Tokens:         tokens,
		GoogleVerifier: google.NewVerifier(cfg.GoogleClientID),
		OpenSignup:     openSignup,
	})

	a.deps = &transporthttp.Deps{
		Tokens:      tokens,
		AccountRepo: accountRepo,
		Limiter:     limiter,
		StepUp:      guard,
		Health:      accountRepo,
		Sessions:    sessionSvc,
		Accounts: account.NewService(account.ServiceDeps{
			AccountRepo:     accountRepo,
			OTP:             engine,
			OTPRepo:         otpRepo,
			EmailChangeRepo: emailChangeRepo,
			InvitationRepo:  invitationRepo,
			Notifier:        notifier,
			OpenSignup:      openSignup,
		}),
		Recovery: recovery.NewService(recovery.ServiceDeps{
			AccountRepo: accountRepo,
			OTP:         engine,
			Notifier:    notifier,
			Sessions:    sessionSvc,
		}),
		EmailChanges: emailchange.NewService(emailchange.ServiceDeps{
			AccountRepo:     accountRepo,
			EmailChangeRepo: emailChangeRepo,
			OTP:             engine,
			Notifier:        notifier,
		}),
		Invites: invite.NewService(invite.ServiceDeps{
			AccountRepo:    accountRepo,
			InvitationRepo: invitationRepo,
			OTP:            engine,
			Notifier:       notifier,
		}),
		Settings:  settingsSvc,
		Outbox:    a.dispatcher,
		Templates: renderer,
	}
	return a, nil
}

func newLimiter(cfg *config.Config, a *app) (ratelimit.Limiter, error) {
	if cfg.RateLimitBackend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		a.closers = append(a.closers, client.Close)
		return ratelimit.NewRedis(client, "ratelimit:"), nil
	}
	return ratelimit.NewMemory(cfg.RateLimitMaxKeys)
}
