package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler answers liveness ("ping") and readiness ("ready") checks.
type HealthHandler struct {
	store pinger
}

func NewHealthHandler(store pinger) *HealthHandler { return &HealthHandler{store: store} }

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "ping":
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "pong"})
	case "ready":
		if h.store == nil {
			writeJSON(w, http.StatusOK, MessageEnvelope{Message: "ready"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			slog.Warn("readiness check failed", "err", err)
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "ready"})
	default:
		writeError(w, http.StatusNotFound, "unknown health action")
	}
}
