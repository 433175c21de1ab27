package model

import (
	"time"
)

// Webhook event types emitted by the voice platform
const (
	EventCallCompleted        = "call.completed"
	EventAppointmentRequested = "appointment.requested"
)

// WebhookRequest represents the inbound event payload from the voice platform
type WebhookRequest struct {
	EventType    string `json:"event_type" binding:"required"`
	CallID       string `json:"call_id"`
	Transcript   string `json:"transcript"`
	CustomerName string `json:"customer_name"`
	DatePhrase   string `json:"date_phrase"`
	Timezone     string `json:"timezone"`
	BusinessID   string `json:"business_id"`
}

// ExtractedEntities holds best-effort phone/email entities with a single
// confidence score; sub-threshold confidence means "needs confirmation"
type ExtractedEntities struct {
	Phone      string  `json:"phone,omitempty"`
	Email      string  `json:"email,omitempty"`
	Confidence float64 `json:"confidence"`
}

// ResolvedDateTime carries an absolute instant plus the timezone used to
// resolve it and the original phrase
type ResolvedDateTime struct {
	Instant  time.Time `json:"instant"`
	Timezone string    `json:"timezone"`
	Phrase   string    `json:"phrase"`
}

// WebhookResponse is the body returned to the voice platform. Message is
// read back to the caller as speech, so business failures stay 200-level.
type WebhookResponse struct {
	Status    string             `json:"status"` // booked, clarification_needed, failed, processing
	Message   string             `json:"message"`
	BookingID string             `json:"booking_id,omitempty"`
	Entities  *ExtractedEntities `json:"entities,omitempty"`
	Resolved  *ResolvedDateTime  `json:"resolved,omitempty"`
	Duplicate bool               `json:"duplicate,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Metrics   map[string]string `json:"metrics,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
