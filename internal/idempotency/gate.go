package idempotency

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"voice-booking-relay-go/internal/model"
	"voice-booking-relay-go/internal/storage"
)

// Decision classifies the outcome of Admit
type Decision int

const (
	// Admitted means this caller owns the key and must call Finalize
	Admitted Decision = iota
	// AlreadyCompleted means the key was finalized before; Response holds
	// the recorded body to replay verbatim
	AlreadyCompleted
	// InFlight means another delivery holds the key and has not finished
	InFlight
)

// Outcome is the result of Admit
type Outcome struct {
	Decision Decision
	// Response is set only for AlreadyCompleted
	Response []byte
	// Status is the recorded terminal status for AlreadyCompleted
	Status string
}

// Gate implements the two-phase admit/finalize protocol over a WebhookStore
type Gate struct {
	store storage.WebhookStore
}

// NewGate creates an idempotency gate
func NewGate(store storage.WebhookStore) *Gate {
	return &Gate{store: store}
}

// Admit claims the request key. Exactly one concurrent caller per key
// observes Admitted; the rest observe the recorded outcome or InFlight.
func (g *Gate) Admit(ctx context.Context, key, eventType string) (Outcome, error) {
	created, err := g.store.Insert(ctx, key, eventType)
	if err != nil {
		return Outcome{}, fmt.Errorf("admit insert failed for key %s: %w", key, err)
	}
	if created {
		return Outcome{Decision: Admitted}, nil
	}

	// Lost the insert race or a redelivery: read what the winner recorded.
	row, err := g.store.Get(ctx, key)
	if err != nil {
		return Outcome{}, fmt.Errorf("admit lookup failed for key %s: %w", key, err)
	}

	switch row.Status {
	case model.WebhookCompleted, model.WebhookFailed:
		logrus.Debugf("Webhook %s already processed, replaying recorded response", key)
		return Outcome{Decision: AlreadyCompleted, Response: row.Response, Status: row.Status}, nil
	default:
		logrus.Debugf("Webhook %s still in flight, deferring to first delivery", key)
		return Outcome{Decision: InFlight}, nil
	}
}

// Finalize records the terminal status and the exact response body to be
// replayed on future duplicates. Called once by the Admitted holder; safe
// to retry.
func (g *Gate) Finalize(ctx context.Context, key string, response []byte, status string) error {
	if status != model.WebhookCompleted && status != model.WebhookFailed {
		return fmt.Errorf("finalize requires a terminal status, got %q", status)
	}
	if err := g.store.Finalize(ctx, key, response, status); err != nil {
		return fmt.Errorf("finalize failed for key %s: %w", key, err)
	}
	return nil
}
