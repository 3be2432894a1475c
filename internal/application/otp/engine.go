package otp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/id"
	"github.com/go-auth-nosql/internal/pkg/token"
)

const (
	defaultTTL = 10 * time.Minute
	// purgeGrace keeps records past expiry so late attempts still report "expired".
	purgeGrace = 24 * time.Hour
)

// Store is the persistence the engine needs. The dynamo.OTPRepo satisfies it.
type Store interface {
	Put(ctx context.Context, rec *domain.OTPRecord) error
	Latest(ctx context.Context, subjectKey, purpose string) (*domain.OTPRecord, error)
	IncrementAttempts(ctx context.Context, subjectKey, recordKey string) (int, error)
	MarkUsed(ctx context.Context, subjectKey, recordKey string, verifiedAt *time.Time) error
}

// Issuer creates codes. Flows depend on this and Verifier rather than *Engine.
type Issuer interface {
	Issue(ctx context.Context, subjectKey, purpose string, ttl time.Duration, maxAttempts int) (string, error)
}

type Verifier interface {
	Verify(ctx context.Context, subjectKey, purpose, code string) error
}

// Engine issues and verifies one-time codes. Only the newest record for a
// subject and purpose can ever be verified.
type Engine struct {
	store       Store
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
}

func NewEngine(store Store, ttl time.Duration, maxAttempts int) *Engine {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Engine{store: store, ttl: ttl, maxAttempts: maxAttempts, now: time.Now}
}

// Issue stores a fresh code for subjectKey and purpose and returns it.
// Zero ttl or maxAttempts select the engine defaults. Nothing is sent.
func (e *Engine) Issue(ctx context.Context, subjectKey, purpose string, ttl time.Duration, maxAttempts int) (string, error) {
	if subjectKey == "" || purpose == "" {
		return "", fmt.Errorf("subject and purpose required: %w", domain.ErrBadRequest)
	}
	if ttl <= 0 {
		ttl = e.ttl
	}
	if maxAttempts <= 0 {
		maxAttempts = e.maxAttempts
	}
	code, err := token.NewCode()
	if err != nil {
		return "", err
	}
	now := e.now().UTC()
	expires := now.Add(ttl)
	rec := &domain.OTPRecord{
		SubjectKey:  subjectKey,
		RecordKey:   purpose + "#" + id.NewAt(now),
		PurposeKey:  purpose,
		Code:        code,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		ExpiresAt:   expires,
		PurgeAt:     expires.Add(purgeGrace).Unix(),
	}
	if err := e.store.Put(ctx, rec); err != nil {
		return "", fmt.Errorf("store otp: %w", err)
	}
	return code, nil
}

// Verify checks code against the newest record for subjectKey and purpose
// and consumes it on success.
// It returns nil, ErrCodeNotFound, ErrCodeExpired, ErrCodeInvalid or ErrCodeLocked.
func (e *Engine) Verify(ctx context.Context, subjectKey, purpose, code string) error {
	rec, now, err := e.match(ctx, subjectKey, purpose, code)
	if err != nil {
		return err
	}
	err = e.store.MarkUsed(ctx, rec.SubjectKey, rec.RecordKey, &now)
	if errors.Is(err, domain.ErrConflict) {
		return domain.ErrCodeNotFound
	}
	if err != nil {
		return fmt.Errorf("consume otp: %w", err)
	}
	return nil
}

// Check is Verify without consuming the record. Wrong codes still count
// toward the lock.
func (e *Engine) Check(ctx context.Context, subjectKey, purpose, code string) error {
	_, _, err := e.match(ctx, subjectKey, purpose, code)
	return err
}

func (e *Engine) match(ctx context.Context, subjectKey, purpose, code string) (*domain.OTPRecord, time.Time, error) {
	now := e.now().UTC()
	rec, err := e.store.Latest(ctx, subjectKey, purpose)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, now, domain.ErrCodeNotFound
	}
	if err != nil {
		return nil, now, fmt.Errorf("load otp: %w", err)
	}
	if rec.Used {
		return nil, now, domain.ErrCodeNotFound
	}
	if rec.Expired(now) {
		return nil, now, domain.ErrCodeExpired
	}
	if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(code)) != 1 {
		return nil, now, e.recordFailure(ctx, rec)
	}
	return rec, now, nil
}

func (e *Engine) recordFailure(ctx context.Context, rec *domain.OTPRecord) error {
	attempts, err := e.store.IncrementAttempts(ctx, rec.SubjectKey, rec.RecordKey)
	if errors.Is(err, domain.ErrConflict) {
		return domain.ErrCodeNotFound
	}
	if err != nil {
		return fmt.Errorf("record otp attempt: %w", err)
	}
	max := rec.MaxAttempts
	if max <= 0 {
		max = e.maxAttempts
	}
	if attempts < max {
		return domain.ErrCodeInvalid
	}
	if err := e.store.MarkUsed(ctx, rec.SubjectKey, rec.RecordKey, nil); err != nil && !errors.Is(err, domain.ErrConflict) {
		slog.Warn("failed to lock otp", "purpose", rec.PurposeKey, "err", err)
	}
	slog.Info("otp locked after too many attempts", "purpose", rec.PurposeKey, "attempts", attempts)
	return domain.ErrCodeLocked
}
