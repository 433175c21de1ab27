package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-booking-relay-go/internal/model"
	"voice-booking-relay-go/internal/storage"
)

// memoryWebhookStore mimics the unique-constraint semantics of the real
// store: Insert is atomic under a mutex.
type memoryWebhookStore struct {
	mu   sync.Mutex
	rows map[string]*model.ProcessedWebhook
}

func newMemoryWebhookStore() *memoryWebhookStore {
	return &memoryWebhookStore{rows: make(map[string]*model.ProcessedWebhook)}
}

func (s *memoryWebhookStore) Insert(ctx context.Context, key, eventType string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[key]; ok {
		return false, nil
	}
	s.rows[key] = &model.ProcessedWebhook{
		RequestKey: key,
		EventType:  eventType,
		Status:     model.WebhookInFlight,
		ReceivedAt: time.Now(),
	}
	return true, nil
}

func (s *memoryWebhookStore) Get(ctx context.Context, key string) (*model.ProcessedWebhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *row
	return &copied, nil
}

func (s *memoryWebhookStore) Finalize(ctx context.Context, key string, response []byte, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[key]
	if !ok || row.Status != model.WebhookInFlight {
		return nil
	}
	now := time.Now()
	row.Status = status
	row.Response = response
	row.FinalizedAt = &now
	return nil
}

func (s *memoryWebhookStore) ReapStale(ctx context.Context, cutoff time.Time, response []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, row := range s.rows {
		if row.Status == model.WebhookInFlight && row.ReceivedAt.Before(cutoff) {
			now := time.Now()
			row.Status = model.WebhookFailed
			row.Response = response
			row.FinalizedAt = &now
			n++
		}
	}
	return n, nil
}

func (s *memoryWebhookStore) DeleteFinalizedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, row := range s.rows {
		if row.FinalizedAt != nil && row.FinalizedAt.Before(cutoff) {
			delete(s.rows, key)
			n++
		}
	}
	return n, nil
}

func TestGateAdmitNewKey(t *testing.T) {
	gate := NewGate(newMemoryWebhookStore())

	out, err := gate.Admit(context.Background(), "evt-1", model.EventCallCompleted)
	require.NoError(t, err)
	assert.Equal(t, Admitted, out.Decision)
}

func TestGateReplaysRecordedResponse(t *testing.T) {
	gate := NewGate(newMemoryWebhookStore())
	ctx := context.Background()

	out, err := gate.Admit(ctx, "evt-2", model.EventCallCompleted)
	require.NoError(t, err)
	require.Equal(t, Admitted, out.Decision)

	recorded := []byte(`{"status":"booked","booking_id":"b-77"}`)
	require.NoError(t, gate.Finalize(ctx, "evt-2", recorded, model.WebhookCompleted))

	out, err = gate.Admit(ctx, "evt-2", model.EventCallCompleted)
	require.NoError(t, err)
	assert.Equal(t, AlreadyCompleted, out.Decision)
	assert.Equal(t, recorded, out.Response)
	assert.Equal(t, model.WebhookCompleted, out.Status)
}

func TestGateInFlightDuplicate(t *testing.T) {
	gate := NewGate(newMemoryWebhookStore())
	ctx := context.Background()

	out, err := gate.Admit(ctx, "evt-3", model.EventAppointmentRequested)
	require.NoError(t, err)
	require.Equal(t, Admitted, out.Decision)

	// A second delivery before finalize must not be admitted.
	out, err = gate.Admit(ctx, "evt-3", model.EventAppointmentRequested)
	require.NoError(t, err)
	assert.Equal(t, InFlight, out.Decision)
}

func TestGateFinalizeRejectsNonTerminalStatus(t *testing.T) {
	gate := NewGate(newMemoryWebhookStore())

	err := gate.Finalize(context.Background(), "evt-4", nil, model.WebhookInFlight)
	assert.Error(t, err)
}

func TestGateConcurrentAdmitsExactlyOne(t *testing.T) {
	gate := NewGate(newMemoryWebhookStore())
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	admitted := make(chan Decision, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := gate.Admit(ctx, "evt-race", model.EventCallCompleted)
			require.NoError(t, err)
			admitted <- out.Decision
		}()
	}
	wg.Wait()
	close(admitted)

	wins := 0
	for d := range admitted {
		if d == Admitted {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent delivery may win the admit race")
}

func TestGateReadmitAfterReap(t *testing.T) {
	store := newMemoryWebhookStore()
	gate := NewGate(store)
	ctx := context.Background()

	out, err := gate.Admit(ctx, "evt-5", model.EventCallCompleted)
	require.NoError(t, err)
	require.Equal(t, Admitted, out.Decision)

	// Simulate a crash after admit: the reaper marks the row failed so a
	// redelivery sees a terminal outcome instead of hanging in flight.
	reaped, err := store.ReapStale(ctx, time.Now().Add(time.Minute), []byte(`{"status":"failed"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), reaped)

	out, err = gate.Admit(ctx, "evt-5", model.EventCallCompleted)
	require.NoError(t, err)
	assert.Equal(t, AlreadyCompleted, out.Decision)
	assert.Equal(t, model.WebhookFailed, out.Status)
}
