package outbox

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// memStore mirrors the conditional transitions of dynamo.OutboxRepo.
type memStore struct {
	mu   sync.Mutex
	msgs map[string]*domain.OutboxMessage
}

func newMemStore() *memStore { return &memStore{msgs: map[string]*domain.OutboxMessage{}} }

func (s *memStore) Put(_ context.Context, m *domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.msgs[m.MessageID] = &cp
	return nil
}

func (s *memStore) list(match func(*domain.OutboxMessage) bool, limit int) []domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.OutboxMessage
	for _, m := range s.msgs {
		if match(m) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueuedAt.Before(out[j].QueuedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *memStore) ListByStatus(_ context.Context, status, purpose string, limit int) ([]domain.OutboxMessage, error) {
	return s.list(func(m *domain.OutboxMessage) bool {
		return m.Status == status && (purpose == "" || m.PurposeKey == purpose)
	}, limit), nil
}

func (s *memStore) ListQueuedBefore(_ context.Context, status string, cutoff time.Time, limit int) ([]domain.OutboxMessage, error) {
	return s.list(func(m *domain.OutboxMessage) bool {
		return m.Status == status && m.QueuedAt.Before(cutoff)
	}, limit), nil
}

func (s *memStore) CountByStatus(ctx context.Context, status string) (int, error) {
	msgs, _ := s.ListByStatus(ctx, status, "", 1<<30)
	return len(msgs), nil
}

func (s *memStore) Claim(_ context.Context, m *domain.OutboxMessage, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.msgs[m.MessageID]
	if cur == nil || cur.Status != m.Status {
		return domain.ErrConflict
	}
	if m.Status == domain.OutboxProcessing && (cur.ClaimedAt == nil || m.ClaimedAt == nil || !cur.ClaimedAt.Equal(*m.ClaimedAt)) {
		return domain.ErrConflict
	}
	cur.Status = domain.OutboxProcessing
	cur.ClaimedAt = &now
	return nil
}

func (s *memStore) MarkSent(_ context.Context, id string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.msgs[id]
	if cur.Status != domain.OutboxProcessing {
		return domain.ErrConflict
	}
	cur.Status = domain.OutboxSent
	cur.SentAt = &sentAt
	cur.LastError = ""
	cur.ClaimedAt = nil
	return nil
}

func (s *memStore) MarkAttemptFailed(_ context.Context, id string, attempts int, status, lastError string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.msgs[id]
	if cur.Status != domain.OutboxProcessing {
		return domain.ErrConflict
	}
	cur.Status = status
	cur.Attempts = attempts
	cur.LastError = lastError
	cur.ClaimedAt = nil
	return nil
}

func (s *memStore) DeleteIfStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.msgs[id]
	if cur == nil || cur.Status != status {
		return domain.ErrConflict
	}
	delete(s.msgs, id)
	return nil
}

func (s *memStore) get(id string) domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.msgs[id]
}

// countingSender records sends per recipient and fails when err is set.
type countingSender struct {
	mu    sync.Mutex
	sends map[string]int
	err   error
	delay time.Duration
}

func (c *countingSender) SendEmail(_ context.Context, to, _, _ string) error {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sends == nil {
		c.sends = map[string]int{}
	}
	c.sends[to]++
	return c.err
}

type mockAlerter struct{ mock.Mock }

func (m *mockAlerter) Alert(ctx context.Context, subject, message string) error {
	return m.Called(ctx, subject, message).Error(0)
}

func newTestDispatcher(store Store, sender Sender, alerter Alerter) *Dispatcher {
	d := NewDispatcher(store, sender, alerter, Options{MaxAttempts: 3})
	d.markBackoff = 0
	clock := time.Now()
	var mu sync.Mutex
	d.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Millisecond)
		return clock
	}
	return d
}

func TestEnqueue_Queued(t *testing.T) {
	store := newMemStore()
	d := newTestDispatcher(store, &countingSender{}, nil)

	m, err := d.Enqueue(context.Background(), domain.PurposeInvite, "a@b.com", "s", "<p>h</p>")
	require.NoError(t, err)
	stored := store.get(m.MessageID)
	assert.Equal(t, domain.OutboxQueued, stored.Status)
	assert.Zero(t, stored.Attempts)
}

func TestEnqueue_RequiresRecipient(t *testing.T) {
	d := newTestDispatcher(newMemStore(), &countingSender{}, nil)
	_, err := d.Enqueue(context.Background(), domain.PurposeInvite, "", "s", "h")
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestDrain_Success(t *testing.T) {
	store := newMemStore()
	sender := &countingSender{}
	d := newTestDispatcher(store, sender, nil)
	ctx := context.Background()
	m, _ := d.Enqueue(ctx, domain.PurposeMagicLink, "a@b.com", "s", "h")

	res, err := d.Drain(ctx, domain.DrainRequest{})
	require.NoError(t, err)
	assert.Equal(t, domain.DrainResult{Processed: 1, Sent: 1}, res)

	stored := store.get(m.MessageID)
	assert.Equal(t, domain.OutboxSent, stored.Status)
	assert.NotNil(t, stored.SentAt)
	assert.Empty(t, stored.LastError)
	assert.Equal(t, 1, sender.sends["a@b.com"])
}

func TestDrain_FailsAcrossThreeDrains(t *testing.T) {
	store := newMemStore()
	alerter := &mockAlerter{}
	alerter.On("Alert", mock.Anything, "Outbox delivery failed", mock.Anything).Return(nil).Once()
	d := newTestDispatcher(store, &countingSender{err: errors.New("connection refused")}, alerter)
	ctx := context.Background()
	m, _ := d.Enqueue(ctx, domain.PurposeResetPassword, "a@b.com", "s", "h")

	for i, want := range []string{domain.OutboxRetry, domain.OutboxRetry, domain.OutboxFailed} {
		res, err := d.Drain(ctx, domain.DrainRequest{Limit: 10, MaxAttempts: 3})
		require.NoError(t, err)
		assert.Equal(t, domain.DrainResult{Processed: 1, Failed: 1}, res)
		stored := store.get(m.MessageID)
		assert.Equal(t, want, stored.Status, "drain %d", i+1)
		assert.Equal(t, i+1, stored.Attempts)
		assert.Equal(t, "connection refused", stored.LastError)
	}
	alerter.AssertExpectations(t)
}

func TestDrain_FailedIsRedrainableByOperator(t *testing.T) {
	store := newMemStore()
	sender := &countingSender{err: errors.New("down")}
	d := newTestDispatcher(store, sender, nil)
	ctx := context.Background()
	m, _ := d.Enqueue(ctx, domain.PurposeInvite, "a@b.com", "s", "h")
	for i := 0; i < 3; i++ {
		_, err := d.Drain(ctx, domain.DrainRequest{})
		require.NoError(t, err)
	}
	require.Equal(t, domain.OutboxFailed, store.get(m.MessageID).Status)

	res, err := d.Drain(ctx, domain.DrainRequest{SkipFailed: true})
	require.NoError(t, err)
	assert.Zero(t, res.Processed)

	sender.err = nil
	res, err = d.Drain(ctx, domain.DrainRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, domain.OutboxSent, store.get(m.MessageID).Status)
}

func TestDrain_ConcurrentDrainsSendOnce(t *testing.T) {
	store := newMemStore()
	sender := &countingSender{delay: time.Millisecond}
	d := newTestDispatcher(store, sender, nil)
	ctx := context.Background()
	const n = 20
	for i := 0; i < n; i++ {
		_, err := d.Enqueue(ctx, domain.PurposeInvite, string(rune('a'+i))+"@b.com", "s", "h")
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	results := make([]domain.DrainResult, 4)
	for w := range results {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			res, err := d.Drain(ctx, domain.DrainRequest{Limit: 100})
			assert.NoError(t, err)
			results[w] = res
		}(w)
	}
	wg.Wait()

	total := 0
	for _, r := range results {
		total += r.Processed
	}
	assert.Equal(t, n, total)
	assert.Len(t, sender.sends, n)
	for to, count := range sender.sends {
		assert.Equal(t, 1, count, to)
	}
}

func TestDrain_LimitAndOrder(t *testing.T) {
	store := newMemStore()
	sender := &countingSender{}
	d := newTestDispatcher(store, sender, nil)
	ctx := context.Background()
	first, _ := d.Enqueue(ctx, domain.PurposeInvite, "first@b.com", "s", "h")
	for i := 0; i < 14; i++ {
		_, _ = d.Enqueue(ctx, domain.PurposeInvite, "later@b.com", "s", "h")
	}

	res, err := d.Drain(ctx, domain.DrainRequest{})
	require.NoError(t, err)
	assert.Equal(t, 10, res.Processed)
	assert.Equal(t, domain.OutboxSent, store.get(first.MessageID).Status)

	res, err = d.Drain(ctx, domain.DrainRequest{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Processed)
}

func TestDrain_PurposeFilter(t *testing.T) {
	store := newMemStore()
	d := newTestDispatcher(store, &countingSender{}, nil)
	ctx := context.Background()
	invite, _ := d.Enqueue(ctx, domain.PurposeInvite, "a@b.com", "s", "h")
	reset, _ := d.Enqueue(ctx, domain.PurposeResetPassword, "a@b.com", "s", "h")

	res, err := d.Drain(ctx, domain.DrainRequest{Purpose: domain.PurposeInvite})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, domain.OutboxSent, store.get(invite.MessageID).Status)
	assert.Equal(t, domain.OutboxQueued, store.get(reset.MessageID).Status)
}

func TestDrain_ReclaimsStaleProcessing(t *testing.T) {
	store := newMemStore()
	d := newTestDispatcher(store, &countingSender{}, nil)
	ctx := context.Background()
	now := d.now()
	stale := now.Add(-time.Hour)
	fresh := now
	require.NoError(t, store.Put(ctx, &domain.OutboxMessage{MessageID: "stale", Recipient: "a@b.com", Status: domain.OutboxProcessing, QueuedAt: stale, ClaimedAt: &stale}))
	require.NoError(t, store.Put(ctx, &domain.OutboxMessage{MessageID: "fresh", Recipient: "c@d.com", Status: domain.OutboxProcessing, QueuedAt: stale, ClaimedAt: &fresh}))

	res, err := d.Drain(ctx, domain.DrainRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, domain.OutboxSent, store.get("stale").Status)
	assert.Equal(t, domain.OutboxProcessing, store.get("fresh").Status)
}

// flakyMarkStore fails the first failures MarkSent calls.
type flakyMarkStore struct {
	*memStore
	mu       sync.Mutex
	failures int
	marks    int
}

func (f *flakyMarkStore) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	f.mu.Lock()
	f.marks++
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return errors.New("throttled")
	}
	return f.memStore.MarkSent(ctx, id, sentAt)
}

func TestDrain_TransientMarkSentFailureDoesNotResend(t *testing.T) {
	store := &flakyMarkStore{memStore: newMemStore(), failures: 1}
	sender := &countingSender{}
	d := newTestDispatcher(store, sender, nil)
	ctx := context.Background()
	m, err := d.Enqueue(ctx, domain.PurposeInvite, "a@b.com", "s", "h")
	require.NoError(t, err)

	res, err := d.Drain(ctx, domain.DrainRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 2, store.marks)
	assert.Equal(t, domain.OutboxSent, store.get(m.MessageID).Status)

	later := time.Now().Add(time.Hour)
	d.now = func() time.Time { return later }
	res, err = d.Drain(ctx, domain.DrainRequest{})
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
	assert.Equal(t, 1, sender.sends["a@b.com"])
}

func TestDrain_MarkSentGivesUpAfterBoundedRetries(t *testing.T) {
	store := &flakyMarkStore{memStore: newMemStore(), failures: 10}
	d := newTestDispatcher(store, &countingSender{}, nil)
	ctx := context.Background()
	m, err := d.Enqueue(ctx, domain.PurposeInvite, "a@b.com", "s", "h")
	require.NoError(t, err)

	res, err := d.Drain(ctx, domain.DrainRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, markSentAttempts, store.marks)
	assert.Equal(t, domain.OutboxProcessing, store.get(m.MessageID).Status)
}

func TestTruncate_KeepsRuneBoundary(t *testing.T) {
	s := strings.Repeat("é", 300)
	for _, n := range []int{500, 501, 1} {
		out := truncate(s, n)
		assert.True(t, utf8.ValidString(out), "n=%d", n)
		assert.LessOrEqual(t, len(out), n)
	}
	assert.Equal(t, "é", truncate(s, 3))
	assert.Equal(t, "short", truncate("  short ", 10))
}

func TestCleanup_RemovesOldTerminalMessagesOnly(t *testing.T) {
	store := newMemStore()
	d := newTestDispatcher(store, &countingSender{}, nil)
	ctx := context.Background()
	old := time.Now().Add(-8 * 24 * time.Hour)
	recent := time.Now().Add(-time.Hour)
	for id, m := range map[string]domain.OutboxMessage{
		"old-sent":    {Status: domain.OutboxSent, QueuedAt: old},
		"old-failed":  {Status: domain.OutboxFailed, QueuedAt: old},
		"old-queued":  {Status: domain.OutboxQueued, QueuedAt: old},
		"old-retry":   {Status: domain.OutboxRetry, QueuedAt: old},
		"recent-sent": {Status: domain.OutboxSent, QueuedAt: recent},
	} {
		m.MessageID = id
		require.NoError(t, store.Put(ctx, &m))
	}

	n, err := d.Cleanup(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stats, err := d.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		domain.OutboxQueued: 1, domain.OutboxRetry: 1, domain.OutboxProcessing: 0,
		domain.OutboxSent: 1, domain.OutboxFailed: 0,
	}, stats)
}

func TestList_ValidatesStatusAndStripsBody(t *testing.T) {
	store := newMemStore()
	d := newTestDispatcher(store, &countingSender{}, nil)
	ctx := context.Background()
	_, _ = d.Enqueue(ctx, domain.PurposeInvite, "a@b.com", "s", "<p>secret code</p>")

	_, err := d.List(ctx, "bogus", 10)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))

	msgs, err := d.List(ctx, domain.OutboxQueued, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Empty(t, msgs[0].HTML)
}

func TestRun_StopsOnCancel(t *testing.T) {
	store := newMemStore()
	sender := &countingSender{}
	d := newTestDispatcher(store, sender, nil)
	ctx, cancel := context.WithCancel(context.Background())
	_, _ = d.Enqueue(ctx, domain.PurposeInvite, "a@b.com", "s", "h")

	done := make(chan struct{})
	go func() {
		d.Run(ctx, 5*time.Millisecond)
		close(done)
	}()
	require.Eventually(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return sender.sends["a@b.com"] == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
