package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-auth-nosql/internal/domain"
)

type outboxService interface {
	Drain(ctx context.Context, req domain.DrainRequest) (domain.DrainResult, error)
	Cleanup(ctx context.Context, retention time.Duration) (int, error)
	Stats(ctx context.Context) (map[string]int, error)
	List(ctx context.Context, status string, limit int) ([]domain.OutboxMessage, error)
}

// OutboxHandler exposes operator controls for the email outbox.
type OutboxHandler struct {
	svc outboxService
}

func NewOutboxHandler(svc outboxService) *OutboxHandler { return &OutboxHandler{svc: svc} }

// Drain runs one pass. An empty body drains with defaults.
func (h *OutboxHandler) Drain(w http.ResponseWriter, r *http.Request) {
	var req domain.DrainRequest
	if err := decodeOptional(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	res, err := h.svc.Drain(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *OutboxHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req domain.CleanupRequest
	if err := decodeOptional(r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	n, err := h.svc.Cleanup(r.Context(), time.Duration(req.RetentionDays)*24*time.Hour)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (h *OutboxHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// List returns messages in ?status= (default failed), at most ?limit=.
func (h *OutboxHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = domain.OutboxFailed
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	msgs, err := h.svc.List(r.Context(), status, limit)
	if err != nil {
		httpError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []domain.OutboxMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": msgs})
}

// decodeOptional is decode for endpoints where every field has a default.
func decodeOptional(r *http.Request, dst interface{}) error {
	err := decode(r, dst)
	if errors.Is(err, errEmptyBody) {
		return nil
	}
	return err
}
