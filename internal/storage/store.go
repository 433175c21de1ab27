package storage

import (
	"context"
	"errors"
	"time"

	"voice-booking-relay-go/internal/model"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("storage: not found")

// WebhookStore persists ProcessedWebhook rows. Insert must be atomic:
// two concurrent calls with the same request key must yield exactly one
// created=true.
type WebhookStore interface {
	// Insert creates an in_flight row for the key. Returns created=false
	// without error when a row for the key already exists.
	Insert(ctx context.Context, key, eventType string) (created bool, err error)
	Get(ctx context.Context, key string) (*model.ProcessedWebhook, error)
	// Finalize records the terminal status and response for the key. It is
	// a point update and safe to retry.
	Finalize(ctx context.Context, key string, response []byte, status string) error
	// ReapStale marks in_flight rows received before cutoff as failed with
	// the given synthesized response. Returns the number of rows reaped.
	ReapStale(ctx context.Context, cutoff time.Time, response []byte) (int64, error)
	// DeleteFinalizedBefore removes completed/failed rows past retention.
	DeleteFinalizedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// JobStore persists NotificationJob rows and the failure-audit records
type JobStore interface {
	Create(ctx context.Context, job *model.NotificationJob) error
	Update(ctx context.Context, job *model.NotificationJob) error
	RecordFailure(ctx context.Context, job *model.NotificationJob) error
	ListJobs(ctx context.Context, limit int) ([]model.NotificationJob, error)
	// ListByStatus returns jobs in any of the given statuses, oldest first.
	// The dispatcher uses it to reclaim non-terminal jobs a previous
	// process left behind.
	ListByStatus(ctx context.Context, statuses []string, limit int) ([]model.NotificationJob, error)
	ListFailures(ctx context.Context, limit int) ([]model.NotificationFailure, error)
}
