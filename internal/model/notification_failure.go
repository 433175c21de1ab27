package model

import (
	"time"
)

// NotificationFailure is the durable failure-audit record written when a
// job reaches failed_terminal, for operator follow-up.
type NotificationFailure struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	JobID     string    `json:"job_id" gorm:"type:varchar(36);not null;index"`
	Channel   string    `json:"channel" gorm:"type:varchar(10);not null"`
	Recipient string    `json:"recipient" gorm:"type:varchar(255);not null"`
	Attempts  int       `json:"attempts"`
	ErrorMsg  string    `json:"error_msg" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for NotificationFailure
func (NotificationFailure) TableName() string {
	return "notification_failures"
}
