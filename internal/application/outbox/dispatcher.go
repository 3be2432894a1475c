package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/id"
	"golang.org/x/time/rate"
)

const (
	defaultLimit     = 10
	maxLimit         = 100
	defaultRetention = 7 * 24 * time.Hour
	cleanupBatch     = 100
	maxErrorLen      = 500

	markSentAttempts = 3
	markSentTimeout  = 5 * time.Second
)

// Store is the outbox persistence. dynamo.OutboxRepo satisfies it.
type Store interface {
	Put(ctx context.Context, m *domain.OutboxMessage) error
	ListByStatus(ctx context.Context, status, purpose string, limit int) ([]domain.OutboxMessage, error)
	ListQueuedBefore(ctx context.Context, status string, cutoff time.Time, limit int) ([]domain.OutboxMessage, error)
	CountByStatus(ctx context.Context, status string) (int, error)
	Claim(ctx context.Context, m *domain.OutboxMessage, now time.Time) error
	MarkSent(ctx context.Context, messageID string, sentAt time.Time) error
	MarkAttemptFailed(ctx context.Context, messageID string, attempts int, status, lastError string, now time.Time) error
	DeleteIfStatus(ctx context.Context, messageID, status string) error
}

// Sender delivers one rendered message.
type Sender interface {
	SendEmail(ctx context.Context, to, subject, html string) error
}

// Alerter is told about messages that reached terminal failure.
type Alerter interface {
	Alert(ctx context.Context, subject, message string) error
}

// Options configures a Dispatcher.
type Options struct {
	MaxAttempts  int
	Retention    time.Duration
	ClaimTimeout time.Duration
	SendRate     float64 // messages per second; 0 sends without pacing
}

// Dispatcher queues rendered messages and drains them against the mail
// transport. Every send is preceded by a conditional claim, so concurrent
// drains never deliver the same message twice.
type Dispatcher struct {
	store   Store
	sender  Sender
	alerter Alerter
	pacer   *rate.Limiter
	opts    Options
	now     func() time.Time

	markBackoff time.Duration
}

func NewDispatcher(store Store, sender Sender, alerter Alerter, opts Options) *Dispatcher {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.ClaimTimeout <= 0 {
		opts.ClaimTimeout = 5 * time.Minute
	}
	d := &Dispatcher{store: store, sender: sender, alerter: alerter, opts: opts, now: time.Now, markBackoff: 200 * time.Millisecond}
	if opts.SendRate > 0 {
		d.pacer = rate.NewLimiter(rate.Limit(opts.SendRate), 1)
	}
	return d
}

// Enqueue stores a message in status queued. Delivery happens on the next drain.
func (d *Dispatcher) Enqueue(ctx context.Context, purpose, to, subject, html string) (*domain.OutboxMessage, error) {
	if to == "" {
		return nil, fmt.Errorf("recipient required: %w", domain.ErrBadRequest)
	}
	now := d.now().UTC()
	m := &domain.OutboxMessage{
		MessageID:  id.NewAt(now),
		PurposeKey: purpose,
		Recipient:  to,
		Subject:    subject,
		HTML:       html,
		Status:     domain.OutboxQueued,
		QueuedAt:   now,
		UpdatedAt:  now,
	}
	if err := d.store.Put(ctx, m); err != nil {
		return nil, fmt.Errorf("enqueue %s message: %w", purpose, err)
	}
	return m, nil
}

// Drain attempts delivery of up to req.Limit eligible messages, oldest first.
// Messages another drain claimed first are skipped and not counted.
func (d *Dispatcher) Drain(ctx context.Context, req domain.DrainRequest) (domain.DrainResult, error) {
	var res domain.DrainResult
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = d.opts.MaxAttempts
	}

	candidates, err := d.candidates(ctx, req, limit)
	if err != nil {
		return res, err
	}
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		m := &candidates[i]
		sent, err := d.deliver(ctx, m, maxAttempts)
		if errors.Is(err, errClaimLost) {
			continue
		}
		if err != nil {
			return res, err
		}
		res.Processed++
		if sent {
			res.Sent++
		} else {
			res.Failed++
		}
	}
	return res, nil
}

var errClaimLost = errors.New("claim lost")

// deliver claims m, sends it, and records the outcome. It reports whether the send succeeded.
func (d *Dispatcher) deliver(ctx context.Context, m *domain.OutboxMessage, maxAttempts int) (bool, error) {
	err := d.store.Claim(ctx, m, d.now().UTC())
	if errors.Is(err, domain.ErrConflict) {
		return false, errClaimLost
	}
	if err != nil {
		return false, fmt.Errorf("claim message %s: %w", m.MessageID, err)
	}

	if d.pacer != nil {
		if err := d.pacer.Wait(ctx); err != nil {
			return false, err
		}
	}

	sendErr := d.sender.SendEmail(ctx, m.Recipient, m.Subject, m.HTML)
	now := d.now().UTC()
	if sendErr == nil {
		if err := d.markSent(ctx, m.MessageID, now); err != nil {
			// Left in processing, the message is redelivered once its claim
			// goes stale.
			slog.Error("message sent but not marked", "message_id", m.MessageID, "err", err)
		}
		return true, nil
	}

	attempts := m.Attempts + 1
	status := domain.OutboxRetry
	if attempts >= maxAttempts {
		status = domain.OutboxFailed
	}
	lastErr := truncate(sendErr.Error(), maxErrorLen)
	if err := d.store.MarkAttemptFailed(ctx, m.MessageID, attempts, status, lastErr, now); err != nil {
		return false, fmt.Errorf("record failed attempt for %s: %w", m.MessageID, err)
	}
	slog.Warn("outbox send failed", "message_id", m.MessageID, "purpose", m.PurposeKey, "attempts", attempts, "status", status, "err", sendErr)
	if status == domain.OutboxFailed {
		d.alert(ctx, m, attempts, lastErr)
	}
	return false, nil
}

// markSent records a delivered message. The mail already left, so the write
// is retried on a context detached from the drain's cancellation.
func (d *Dispatcher) markSent(ctx context.Context, messageID string, at time.Time) error {
	ctx = context.WithoutCancel(ctx)
	var err error
	for i := 0; i < markSentAttempts; i++ {
		if i > 0 {
			time.Sleep(d.markBackoff << (i - 1))
		}
		attemptCtx, cancel := context.WithTimeout(ctx, markSentTimeout)
		err = d.store.MarkSent(attemptCtx, messageID, at)
		cancel()
		if err == nil || errors.Is(err, domain.ErrConflict) {
			return err
		}
		slog.Warn("mark sent failed", "message_id", messageID, "attempt", i+1, "err", err)
	}
	return err
}

func (d *Dispatcher) alert(ctx context.Context, m *domain.OutboxMessage, attempts int, lastErr string) {
	if d.alerter == nil {
		return
	}
	msg := fmt.Sprintf("Outbox message %s (%s) to %s failed after %d attempts: %s",
		m.MessageID, m.PurposeKey, m.Recipient, attempts, lastErr)
	if err := d.alerter.Alert(ctx, "Outbox delivery failed", msg); err != nil {
		slog.Warn("failed to publish outbox alert", "message_id", m.MessageID, "err", err)
	}
}

// candidates returns eligible messages ordered by queued_at, at most limit.
func (d *Dispatcher) candidates(ctx context.Context, req domain.DrainRequest, limit int) ([]domain.OutboxMessage, error) {
	statuses := []string{domain.OutboxQueued, domain.OutboxRetry}
	if !req.SkipFailed {
		statuses = append(statuses, domain.OutboxFailed)
	}
	var all []domain.OutboxMessage
	for _, st := range statuses {
		msgs, err := d.store.ListByStatus(ctx, st, req.Purpose, limit)
		if err != nil {
			return nil, fmt.Errorf("list %s messages: %w", st, err)
		}
		all = append(all, msgs...)
	}

	stuck, err := d.store.ListByStatus(ctx, domain.OutboxProcessing, req.Purpose, limit)
	if err != nil {
		return nil, fmt.Errorf("list processing messages: %w", err)
	}
	staleBefore := d.now().Add(-d.opts.ClaimTimeout)
	for _, m := range stuck {
		if m.ClaimedAt != nil && m.ClaimedAt.Before(staleBefore) {
			all = append(all, m)
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].QueuedAt.Before(all[j].QueuedAt) })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Cleanup deletes sent and failed messages queued before now-retention.
// Zero retention selects the configured default. queued and retry messages are never removed.
func (d *Dispatcher) Cleanup(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		retention = d.opts.Retention
	}
	cutoff := d.now().Add(-retention)
	deleted := 0
	for _, st := range []string{domain.OutboxSent, domain.OutboxFailed} {
		for {
			msgs, err := d.store.ListQueuedBefore(ctx, st, cutoff, cleanupBatch)
			if err != nil {
				return deleted, fmt.Errorf("list %s messages: %w", st, err)
			}
			removed := 0
			for _, m := range msgs {
				err := d.store.DeleteIfStatus(ctx, m.MessageID, st)
				if errors.Is(err, domain.ErrConflict) {
					continue
				}
				if err != nil {
					return deleted, fmt.Errorf("delete message %s: %w", m.MessageID, err)
				}
				removed++
			}
			deleted += removed
			if len(msgs) < cleanupBatch || removed == 0 {
				break
			}
		}
	}
	return deleted, nil
}

// Stats counts messages per status.
func (d *Dispatcher) Stats(ctx context.Context) (map[string]int, error) {
	stats := make(map[string]int, 5)
	for _, st := range []string{domain.OutboxQueued, domain.OutboxRetry, domain.OutboxProcessing, domain.OutboxSent, domain.OutboxFailed} {
		n, err := d.store.CountByStatus(ctx, st)
		if err != nil {
			return nil, fmt.Errorf("count %s messages: %w", st, err)
		}
		stats[st] = n
	}
	return stats, nil
}

// List returns up to limit messages in status, oldest first, without bodies.
func (d *Dispatcher) List(ctx context.Context, status string, limit int) ([]domain.OutboxMessage, error) {
	switch status {
	case domain.OutboxQueued, domain.OutboxRetry, domain.OutboxProcessing, domain.OutboxSent, domain.OutboxFailed:
	default:
		return nil, fmt.Errorf("unknown status %q: %w", status, domain.ErrBadRequest)
	}
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}
	msgs, err := d.store.ListByStatus(ctx, status, "", limit)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		msgs[i].HTML = ""
	}
	return msgs, nil
}

// Run drains on every tick until ctx is cancelled. Terminal failures are left
// for an operator re-drain.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := d.Drain(ctx, domain.DrainRequest{SkipFailed: true})
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("scheduled outbox drain failed", "err", err)
				continue
			}
			if res.Processed > 0 {
				slog.Info("scheduled outbox drain", "processed", res.Processed, "sent", res.Sent, "failed", res.Failed)
			}
		}
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
