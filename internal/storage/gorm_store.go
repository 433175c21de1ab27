package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"voice-booking-relay-go/internal/model"
)

// GormWebhookStore is the MySQL-backed WebhookStore
type GormWebhookStore struct {
	db *gorm.DB
}

// NewGormWebhookStore creates a GORM-backed webhook store
func NewGormWebhookStore(db *gorm.DB) *GormWebhookStore {
	return &GormWebhookStore{db: db}
}

// Insert relies on the unique index on request_key: the insert-or-nothing
// is a single statement, so concurrent duplicates race at the database,
// not in process.
func (s *GormWebhookStore) Insert(ctx context.Context, key, eventType string) (bool, error) {
	row := model.ProcessedWebhook{
		RequestKey: key,
		EventType:  eventType,
		Status:     model.WebhookInFlight,
		ReceivedAt: time.Now(),
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if result.Error != nil {
		return false, fmt.Errorf("failed to insert processed webhook: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *GormWebhookStore) Get(ctx context.Context, key string) (*model.ProcessedWebhook, error) {
	var row model.ProcessedWebhook
	result := s.db.WithContext(ctx).Where("request_key = ?", key).First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error reading processed webhook: %w", result.Error)
	}
	return &row, nil
}

func (s *GormWebhookStore) Finalize(ctx context.Context, key string, response []byte, status string) error {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&model.ProcessedWebhook{}).
		Where("request_key = ? AND status = ?", key, model.WebhookInFlight).
		Updates(map[string]interface{}{
			"status":       status,
			"response":     response,
			"finalized_at": &now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finalize webhook %s: %w", key, result.Error)
	}
	return nil
}

func (s *GormWebhookStore) ReapStale(ctx context.Context, cutoff time.Time, response []byte) (int64, error) {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&model.ProcessedWebhook{}).
		Where("status = ? AND received_at < ?", model.WebhookInFlight, cutoff).
		Updates(map[string]interface{}{
			"status":       model.WebhookFailed,
			"response":     response,
			"finalized_at": &now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reap stale webhooks: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *GormWebhookStore) DeleteFinalizedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("status IN ? AND finalized_at < ?", []string{model.WebhookCompleted, model.WebhookFailed}, cutoff).
		Delete(&model.ProcessedWebhook{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete expired webhooks: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// GormJobStore is the MySQL-backed JobStore
type GormJobStore struct {
	db *gorm.DB
}

// NewGormJobStore creates a GORM-backed job store
func NewGormJobStore(db *gorm.DB) *GormJobStore {
	return &GormJobStore{db: db}
}

func (s *GormJobStore) Create(ctx context.Context, job *model.NotificationJob) error {
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create notification job: %w", err)
	}
	return nil
}

func (s *GormJobStore) Update(ctx context.Context, job *model.NotificationJob) error {
	if err := s.db.WithContext(ctx).Save(job).Error; err != nil {
		return fmt.Errorf("failed to update notification job %s: %w", job.ID, err)
	}
	return nil
}

func (s *GormJobStore) RecordFailure(ctx context.Context, job *model.NotificationJob) error {
	failure := model.NotificationFailure{
		JobID:     job.ID,
		Channel:   job.Channel,
		Recipient: job.Recipient,
		Attempts:  job.Attempts,
		ErrorMsg:  job.LastError,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&failure).Error; err != nil {
		return fmt.Errorf("failed to record notification failure: %w", err)
	}
	return nil
}

func (s *GormJobStore) ListJobs(ctx context.Context, limit int) ([]model.NotificationJob, error) {
	var jobs []model.NotificationJob
	if err := s.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list notification jobs: %w", err)
	}
	return jobs, nil
}

func (s *GormJobStore) ListByStatus(ctx context.Context, statuses []string, limit int) ([]model.NotificationJob, error) {
	var jobs []model.NotificationJob
	if err := s.db.WithContext(ctx).Where("status IN ?", statuses).Order("created_at asc").Limit(limit).Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list notification jobs by status: %w", err)
	}
	return jobs, nil
}

func (s *GormJobStore) ListFailures(ctx context.Context, limit int) ([]model.NotificationFailure, error) {
	var failures []model.NotificationFailure
	if err := s.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&failures).Error; err != nil {
		return nil, fmt.Errorf("failed to list notification failures: %w", err)
	}
	return failures, nil
}
