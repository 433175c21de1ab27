package model

import (
	"time"
)

// Notification channels
const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

// NotificationJob statuses
const (
	JobQueued          = "queued"
	JobSent            = "sent"
	JobFailedRetryable = "failed_retryable"
	JobFailedTerminal  = "failed_terminal"
)

// NotificationJob represents one outbound notification owned by the
// dispatcher. Attempts only ever increases; a job reaches sent at most
// once, witnessed by the provider message id.
type NotificationJob struct {
	ID                string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	RequestKey        string    `json:"request_key" gorm:"type:varchar(255);not null;index"`
	Channel           string    `json:"channel" gorm:"type:varchar(10);not null"`
	Recipient         string    `json:"recipient" gorm:"type:varchar(255);not null"`
	Template          string    `json:"template" gorm:"type:varchar(100);not null"`
	Body              string    `json:"body" gorm:"type:text"`
	Attempts          int       `json:"attempts"`
	Status            string    `json:"status" gorm:"type:varchar(20);not null;index"`
	ProviderMessageID string    `json:"provider_message_id,omitempty" gorm:"type:varchar(255)"`
	LastError         string    `json:"last_error,omitempty" gorm:"type:text"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName specifies the table name for NotificationJob
func (NotificationJob) TableName() string {
	return "notification_jobs"
}
