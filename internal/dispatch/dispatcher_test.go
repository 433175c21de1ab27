package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-booking-relay-go/internal/config"
	"voice-booking-relay-go/internal/model"
	"voice-booking-relay-go/internal/notify"
)

type memoryJobStore struct {
	mu       sync.Mutex
	jobs     map[string]model.NotificationJob
	failures []model.NotificationFailure
}

func newMemoryJobStore() *memoryJobStore {
	return &memoryJobStore{jobs: make(map[string]model.NotificationJob)}
}

func (s *memoryJobStore) Create(_ context.Context, job *model.NotificationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *memoryJobStore) Update(_ context.Context, job *model.NotificationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *memoryJobStore) RecordFailure(_ context.Context, job *model.NotificationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, model.NotificationFailure{
		JobID:     job.ID,
		Channel:   job.Channel,
		Recipient: job.Recipient,
		Attempts:  job.Attempts,
		ErrorMsg:  job.LastError,
	})
	return nil
}

func (s *memoryJobStore) ListJobs(_ context.Context, limit int) ([]model.NotificationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.NotificationJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (s *memoryJobStore) ListByStatus(_ context.Context, statuses []string, limit int) ([]model.NotificationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.NotificationJob
	for _, j := range s.jobs {
		for _, status := range statuses {
			if j.Status == status {
				out = append(out, j)
				break
			}
		}
	}
	return out, nil
}

func (s *memoryJobStore) ListFailures(_ context.Context, limit int) ([]model.NotificationFailure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.NotificationFailure(nil), s.failures...), nil
}

func (s *memoryJobStore) get(id string) model.NotificationJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// fakeSender scripts a sequence of send outcomes and records call times
type fakeSender struct {
	mu      sync.Mutex
	name    string
	channel string
	errs    []error
	calls   []time.Time
	sent    chan struct{}
}

func newFakeSender(name, ch string, errs ...error) *fakeSender {
	return &fakeSender{name: name, channel: ch, errs: errs, sent: make(chan struct{}, 64)}
}

func (f *fakeSender) Name() string    { return f.name }
func (f *fakeSender) Channel() string { return f.channel }

func (f *fakeSender) Send(_ context.Context, _, _ string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, time.Now())
	n := len(f.calls)
	f.mu.Unlock()

	defer func() { f.sent <- struct{}{} }()
	if n <= len(f.errs) && f.errs[n-1] != nil {
		return "", f.errs[n-1]
	}
	return "prov-msg-1", nil
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSender) callTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.calls...)
}

func dispatchConfig() config.DispatchConfig {
	return config.DispatchConfig{
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
		QueueSize:   16,
	}
}

func waitForStatus(t *testing.T, store *memoryJobStore, id, status string) model.NotificationJob {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job := store.get(id)
		if job.Status == status {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s (last: %s)", id, status, store.get(id).Status)
	return model.NotificationJob{}
}

func TestDispatcherDeliversAndRecordsProviderID(t *testing.T) {
	store := newMemoryJobStore()
	sender := newFakeSender("primary", model.ChannelSMS)
	d, err := NewDispatcher(dispatchConfig(), store, nil, ChannelSpec{
		Name: model.ChannelSMS, Senders: []notify.Sender{sender}, Interval: time.Millisecond,
	})
	require.NoError(t, err)
	defer d.Close()

	id, err := d.Enqueue(context.Background(), &model.NotificationJob{
		RequestKey: "evt-1",
		Channel:    model.ChannelSMS,
		Recipient:  "+15551234567",
		Template:   "booking_confirmed",
		Body:       "see you tomorrow at 2pm",
	})
	require.NoError(t, err)

	job := waitForStatus(t, store, id, model.JobSent)
	assert.Equal(t, "prov-msg-1", job.ProviderMessageID)
	assert.Equal(t, 1, job.Attempts)
}

func TestDispatcherTerminalErrorSkipsRetry(t *testing.T) {
	store := newMemoryJobStore()
	terminal := &notify.SendError{Provider: "primary", Code: 400, Temporary: false, Msg: "invalid recipient"}
	sender := newFakeSender("primary", model.ChannelSMS, terminal, terminal, terminal)
	d, err := NewDispatcher(dispatchConfig(), store, nil, ChannelSpec{
		Name: model.ChannelSMS, Senders: []notify.Sender{sender}, Interval: time.Millisecond,
	})
	require.NoError(t, err)
	defer d.Close()

	id, err := d.Enqueue(context.Background(), &model.NotificationJob{
		Channel: model.ChannelSMS, Recipient: "bogus", Body: "hi",
	})
	require.NoError(t, err)

	job := waitForStatus(t, store, id, model.JobFailedTerminal)
	assert.Equal(t, 1, job.Attempts, "permanent failures get exactly one attempt")

	failures, err := store.ListFailures(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, id, failures[0].JobID)
}

func TestDispatcherRetriesTransientUntilExhausted(t *testing.T) {
	store := newMemoryJobStore()
	transient := &notify.SendError{Provider: "primary", Code: 503, Temporary: true, Msg: "upstream down"}
	sender := newFakeSender("primary", model.ChannelSMS, transient, transient, transient)
	d, err := NewDispatcher(dispatchConfig(), store, nil, ChannelSpec{
		Name: model.ChannelSMS, Senders: []notify.Sender{sender}, Interval: time.Millisecond,
	})
	require.NoError(t, err)
	defer d.Close()

	id, err := d.Enqueue(context.Background(), &model.NotificationJob{
		Channel: model.ChannelSMS, Recipient: "+15551234567", Body: "hi",
	})
	require.NoError(t, err)

	job := waitForStatus(t, store, id, model.JobFailedTerminal)
	assert.Equal(t, 3, job.Attempts, "transient failures retry up to the configured bound")
}

func TestDispatcherRecoversOnRetry(t *testing.T) {
	store := newMemoryJobStore()
	transient := &notify.SendError{Provider: "primary", Code: 500, Temporary: true, Msg: "blip"}
	sender := newFakeSender("primary", model.ChannelSMS, transient)
	d, err := NewDispatcher(dispatchConfig(), store, nil, ChannelSpec{
		Name: model.ChannelSMS, Senders: []notify.Sender{sender}, Interval: time.Millisecond,
	})
	require.NoError(t, err)
	defer d.Close()

	id, err := d.Enqueue(context.Background(), &model.NotificationJob{
		Channel: model.ChannelSMS, Recipient: "+15551234567", Body: "hi",
	})
	require.NoError(t, err)

	job := waitForStatus(t, store, id, model.JobSent)
	assert.Equal(t, 2, job.Attempts)
}

func TestDispatcherFallsBackToSecondarySender(t *testing.T) {
	store := newMemoryJobStore()
	transient := &notify.SendError{Provider: "primary", Code: 502, Temporary: true, Msg: "down"}
	primary := newFakeSender("primary", model.ChannelSMS, transient, transient, transient)
	secondary := newFakeSender("secondary", model.ChannelSMS)
	d, err := NewDispatcher(dispatchConfig(), store, nil, ChannelSpec{
		Name: model.ChannelSMS, Senders: []notify.Sender{primary, secondary}, Interval: time.Millisecond,
	})
	require.NoError(t, err)
	defer d.Close()

	id, err := d.Enqueue(context.Background(), &model.NotificationJob{
		Channel: model.ChannelSMS, Recipient: "+15551234567", Body: "hi",
	})
	require.NoError(t, err)

	job := waitForStatus(t, store, id, model.JobSent)
	assert.Equal(t, 1, job.Attempts, "secondary provider succeeds within the same attempt")
	assert.Equal(t, 1, secondary.callCount())
}

func TestDispatcherSpacesSendsPerChannel(t *testing.T) {
	store := newMemoryJobStore()
	sender := newFakeSender("primary", model.ChannelSMS)
	interval := 60 * time.Millisecond
	d, err := NewDispatcher(dispatchConfig(), store, nil, ChannelSpec{
		Name: model.ChannelSMS, Senders: []notify.Sender{sender}, Interval: interval,
	})
	require.NoError(t, err)
	defer d.Close()

	const n = 4
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := d.Enqueue(context.Background(), &model.NotificationJob{
			Channel: model.ChannelSMS, Recipient: "+15551234567", Body: "hi",
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for _, id := range ids {
		waitForStatus(t, store, id, model.JobSent)
	}

	calls := sender.callTimes()
	require.Len(t, calls, n)
	// The bucket starts with one token, so draining n jobs costs at least
	// n-1 refill intervals, and consecutive sends stay spaced.
	total := calls[n-1].Sub(calls[0])
	assert.GreaterOrEqual(t, total, time.Duration(n-2)*interval)
}

func TestEnqueueHonorsCallerContext(t *testing.T) {
	store := newMemoryJobStore()
	sender := newFakeSender("primary", model.ChannelSMS)
	cfg := dispatchConfig()
	cfg.QueueSize = 1
	// An hour-long refill interval wedges the worker after its first
	// token, so the queue stays full.
	d, err := NewDispatcher(cfg, store, nil, ChannelSpec{
		Name: model.ChannelSMS, Senders: []notify.Sender{sender}, Interval: time.Hour,
	})
	require.NoError(t, err)
	defer d.Close()

	for i := 0; i < 3; i++ {
		_, err := d.Enqueue(context.Background(), &model.NotificationJob{
			Channel: model.ChannelSMS, Recipient: "+15551234567", Body: "hi",
		})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = d.Enqueue(ctx, &model.NotificationJob{
		Channel: model.ChannelSMS, Recipient: "+15551234567", Body: "hi",
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second, "a full queue must not block the caller past its deadline")
}

func TestDispatcherReclaimsOrphanedJobs(t *testing.T) {
	store := newMemoryJobStore()
	require.NoError(t, store.Create(context.Background(), &model.NotificationJob{
		ID: "orphan-1", Channel: model.ChannelSMS, Recipient: "+15551234567",
		Body: "hi", Status: model.JobQueued,
	}))
	require.NoError(t, store.Create(context.Background(), &model.NotificationJob{
		ID: "orphan-2", Channel: model.ChannelSMS, Recipient: "+15551234567",
		Body: "hi", Status: model.JobFailedRetryable, Attempts: 1,
	}))
	// Already at the attempt bound: reclaiming must settle it terminally
	// with an audit row, not redeliver it.
	require.NoError(t, store.Create(context.Background(), &model.NotificationJob{
		ID: "orphan-3", Channel: model.ChannelSMS, Recipient: "+15551234567",
		Body: "hi", Status: model.JobFailedRetryable, Attempts: 3, LastError: "upstream down",
	}))

	sender := newFakeSender("primary", model.ChannelSMS)
	d, err := NewDispatcher(dispatchConfig(), store, nil, ChannelSpec{
		Name: model.ChannelSMS, Senders: []notify.Sender{sender}, Interval: time.Millisecond,
	})
	require.NoError(t, err)
	defer d.Close()

	waitForStatus(t, store, "orphan-1", model.JobSent)
	job := waitForStatus(t, store, "orphan-2", model.JobSent)
	assert.Equal(t, 2, job.Attempts, "reclaimed jobs keep their attempt count")
	waitForStatus(t, store, "orphan-3", model.JobFailedTerminal)

	failures, err := store.ListFailures(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "orphan-3", failures[0].JobID)
}

func TestDispatcherRejectsUnknownChannel(t *testing.T) {
	d, err := NewDispatcher(dispatchConfig(), newMemoryJobStore(), nil, ChannelSpec{
		Name: model.ChannelSMS, Senders: []notify.Sender{newFakeSender("primary", model.ChannelSMS)}, Interval: time.Millisecond,
	})
	require.NoError(t, err)
	defer d.Close()

	_, err = d.Enqueue(context.Background(), &model.NotificationJob{Channel: "pigeon"})
	assert.Error(t, err)
}
