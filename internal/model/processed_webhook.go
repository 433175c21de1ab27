package model

import (
	"time"
)

// ProcessedWebhook statuses
const (
	WebhookInFlight  = "in_flight"
	WebhookCompleted = "completed"
	WebhookFailed    = "failed"
)

// ProcessedWebhook records one logical webhook delivery to ensure idempotency.
// The Response column holds the exact body returned to the caller; once the
// status is completed or failed it is replayed verbatim on redelivery.
type ProcessedWebhook struct {
	ID          uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	RequestKey  string     `json:"request_key" gorm:"type:varchar(255);not null;uniqueIndex"`
	EventType   string     `json:"event_type" gorm:"type:varchar(100);not null"`
	Status      string     `json:"status" gorm:"type:varchar(20);not null;index"`
	Response    []byte     `json:"response,omitempty" gorm:"type:json"`
	ReceivedAt  time.Time  `json:"received_at"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
}

// TableName specifies the table name for ProcessedWebhook
func (ProcessedWebhook) TableName() string {
	return "processed_webhooks"
}
