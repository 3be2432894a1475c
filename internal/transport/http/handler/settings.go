package handler

import (
	"context"
	"net/http"

	"github.com/go-auth-nosql/internal/application/settings"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-chi/chi/v5"
)

type templateStore interface {
	SaveOverride(ctx context.Context, purpose, subject, body string) error
}

// SettingsHandler serves admin configuration: mail settings and template overrides.
type SettingsHandler struct {
	svc       settings.Service
	templates templateStore
}

func NewSettingsHandler(svc settings.Service, templates templateStore) *SettingsHandler {
	return &SettingsHandler{svc: svc, templates: templates}
}

func (h *SettingsHandler) GetMail(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.GetMail(r.Context())
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SettingsHandler) PutMail(w http.ResponseWriter, r *http.Request) {
	var req domain.MailSettings
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	s, err := h.svc.PutMail(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SettingsHandler) PutTemplate(w http.ResponseWriter, r *http.Request) {
	var req domain.TemplateOverrideRequest
	if err := decode(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	if err := h.templates.SaveOverride(r.Context(), chi.URLParam(r, "purpose"), req.Subject, req.HTML); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "template saved"})
}
