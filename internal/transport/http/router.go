package http

import (
	"net/http"

	"github.com/go-auth-nosql/internal/application/stepup"
	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/transport/http/handler"
	appmiddleware "github.com/go-auth-nosql/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", appmiddleware.ReauthHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authMw := appmiddleware.Auth(deps.Tokens, deps.AccountRepo)
	loginRL := appmiddleware.RateLimit(deps.Limiter, "login", cfg.LoginRateLimit, cfg.RateLimitWindow)
	otpRL := appmiddleware.RateLimit(deps.Limiter, "otp", cfg.OTPRateLimit, cfg.RateLimitWindow)
	signupRL := appmiddleware.RateLimit(deps.Limiter, "signup", cfg.SignupRateLimit, cfg.RateLimitWindow)
	stepUp := func(action string) func(http.Handler) http.Handler {
		return appmiddleware.RequireStepUp(deps.StepUp, action)
	}

	cookie := handler.CookieConfig{Secure: cfg.IsProduction(), MaxAge: cfg.RefreshTokenTTL}
	healthH := handler.NewHealthHandler(deps.Health)
	sessionH := handler.NewSessionHandler(deps.Sessions, cookie)
	accountH := handler.NewAccountHandler(deps.Accounts, cookie)
	recoveryH := handler.NewRecoveryHandler(deps.Recovery, cookie)
	reauthH := handler.NewReauthHandler(deps.StepUp)
	emailH := handler.NewEmailChangeHandler(deps.EmailChanges, cookie)
	inviteH := handler.NewInviteHandler(deps.Invites)
	outboxH := handler.NewOutboxHandler(deps.Outbox)
	settingsH := handler.NewSettingsHandler(deps.Settings, deps.Templates)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Check)
		r.With(loginRL).Post("/sessions/login", sessionH.Login)
		r.With(loginRL).Post("/sessions/google", sessionH.Google)
		r.Post("/sessions/refresh", sessionH.Refresh)
		r.Post("/sessions/logout", sessionH.Logout)
		r.With(signupRL).Post("/accounts", accountH.Register)
		r.With(otpRL).Post("/password-reset/request", recoveryH.RequestReset)
		r.With(otpRL).Post("/password-reset/confirm", recoveryH.ConfirmReset)
		r.With(otpRL).Post("/magic-link/request", recoveryH.RequestMagicLink)
		r.With(otpRL).Post("/magic-link/consume", recoveryH.ConsumeMagicLink)
		r.With(otpRL).Post("/invites/{id}/accept", inviteH.Accept)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/sessions", sessionH.Current)
			r.With(otpRL).Post("/accounts/verify", accountH.Verify)
			r.With(otpRL).Post("/accounts/verify/resend", accountH.ResendVerification)
			r.With(otpRL).Post("/reauth/request", reauthH.Request)
			r.With(otpRL).Post("/reauth/confirm", reauthH.Confirm)
			r.With(stepUp(stepup.ActionChangePassword)).Post("/accounts/password", accountH.ChangePassword)
			r.With(stepUp(stepup.ActionDeleteAccount)).Delete("/accounts/me", accountH.DeleteMe)
			r.With(stepUp(stepup.ActionChangeEmail)).Post("/email-change", emailH.Start)
			r.With(otpRL).Post("/email-change/{id}/confirm", emailH.Confirm)

			// Admin-only routes
			r.Route("/admin", func(r chi.Router) {
				r.Use(appmiddleware.AdminOnly)

				r.Post("/accounts/{id}/revoke-tokens", accountH.RevokeTokens)
				r.Post("/accounts/{id}/password", accountH.SetPassword)
				r.With(stepUp(stepup.ActionSuspendAccount)).Post("/accounts/{id}/suspend", accountH.Suspend)
				r.Post("/accounts/{id}/unsuspend", accountH.Unsuspend)

				r.Post("/invites", inviteH.Create)
				r.Delete("/invites/{id}", inviteH.Revoke)

				r.Get("/outbox", outboxH.List)
				r.Get("/outbox/stats", outboxH.Stats)
				r.Post("/outbox/drain", outboxH.Drain)
				r.Post("/outbox/cleanup", outboxH.Cleanup)

				r.Get("/settings/mail", settingsH.GetMail)
				r.Put("/settings/mail", settingsH.PutMail)
				r.Put("/templates/{purpose}", settingsH.PutTemplate)
			})
		})
	})

	return r
}
