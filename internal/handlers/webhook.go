package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"voice-booking-relay-go/internal/booking"
	"voice-booking-relay-go/internal/idempotency"
	"voice-booking-relay-go/internal/model"
	"voice-booking-relay-go/internal/when"
)

// confirmThreshold is the extraction confidence below which contact
// details are treated as unconfirmed rather than fact.
const confirmThreshold = 0.5

// HandleVoiceWebhook processes one delivery from the voice platform.
// Every admitted request is finalized with a terminal, replayable
// response; duplicates are answered from the recorded response without
// re-executing side effects.
func (h *Handlers) HandleVoiceWebhook(c *gin.Context) {
	start := time.Now()
	h.metrics.WebhooksReceived.Inc()
	defer func() {
		h.metrics.HandlerDuration.Observe(time.Since(start).Seconds())
	}()

	var req model.WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	key := requestKey(c, req)
	if key == "" {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "missing_request_key",
			Message: "Provide an X-Request-ID header or a call_id",
			Code:    http.StatusBadRequest,
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.handlerTimeout)
	defer cancel()

	outcome, err := h.gate.Admit(ctx, key, req.EventType)
	if err != nil {
		logrus.Errorf("Admit failed for key %s: %v", key, err)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   "storage_error",
			Message: "Failed to admit webhook",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	switch outcome.Decision {
	case idempotency.AlreadyCompleted:
		h.metrics.WebhookDuplicates.Inc()
		var recorded model.WebhookResponse
		if err := json.Unmarshal(outcome.Response, &recorded); err != nil {
			logrus.Errorf("Recorded response for key %s is unreadable: %v", key, err)
			recorded = model.WebhookResponse{Status: "failed", Message: "Recorded response unavailable"}
		}
		recorded.Duplicate = true
		c.JSON(http.StatusOK, recorded)
		return

	case idempotency.InFlight:
		c.JSON(http.StatusAccepted, model.WebhookResponse{
			Status:  "processing",
			Message: "We're still working on this request.",
		})
		return
	}

	response := h.process(ctx, key, req)

	status := model.WebhookCompleted
	if response.Status == "failed" {
		status = model.WebhookFailed
		h.metrics.WebhookFailures.Inc()
	}

	body, err := json.Marshal(response)
	if err != nil {
		// Should not happen for our own response type; record something
		// replayable regardless.
		logrus.Errorf("Failed to encode response for key %s: %v", key, err)
		body = []byte(`{"status":"failed","message":"internal error"}`)
		status = model.WebhookFailed
	}

	if err := h.gate.Finalize(ctx, key, body, status); err != nil {
		// Finalize is a point update and safe to retry; one bounded retry
		// covers transient database blips. Past that the row stays
		// in_flight until the reaper claims it, so log loudly.
		logrus.Errorf("Finalize failed for key %s, retrying once: %v", key, err)
		if err := h.gate.Finalize(ctx, key, body, status); err != nil {
			logrus.Errorf("Finalize retry failed for key %s: %v", key, err)
		}
	}

	c.JSON(http.StatusOK, response)
}

// process runs the extraction -> resolution -> booking -> dispatch
// pipeline and always returns a structured response; faults become a
// terminal "failed" payload rather than an escaped panic or error.
func (h *Handlers) process(ctx context.Context, key string, req model.WebhookRequest) (response model.WebhookResponse) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("Panic processing webhook %s: %v", key, r)
			response = model.WebhookResponse{
				Status:  "failed",
				Message: "Something went wrong on our end. Please try again.",
			}
		}
	}()

	entities := h.extractor.Extract(ctx, req.Transcript)
	response.Entities = &entities

	if entities.Phone == "" && entities.Email == "" {
		response.Status = "clarification_needed"
		response.Message = "I couldn't catch your contact details. Could you repeat your phone number or email?"
		return response
	}
	if entities.Confidence < confirmThreshold {
		response.Status = "clarification_needed"
		response.Message = "I want to make sure I have your contact details right. Could you confirm them?"
		return response
	}

	if req.Timezone == "" {
		response.Status = "failed"
		response.Message = "This business has no timezone configured."
		return response
	}

	phrase := req.DatePhrase
	if phrase == "" {
		phrase = req.Transcript
	}
	resolved, err := when.Resolve(phrase, req.Timezone, time.Now())
	if err != nil {
		if errors.Is(err, when.ErrUnresolvable) {
			response.Status = "clarification_needed"
			response.Message = "I couldn't work out the time you wanted. Could you give me a day and a time?"
			return response
		}
		logrus.Errorf("Date resolution failed for key %s: %v", key, err)
		response.Status = "failed"
		response.Message = "We couldn't schedule that time. Please try again."
		return response
	}
	response.Resolved = &resolved

	booked, err := h.booking.Book(ctx, booking.Request{
		BusinessID:   req.BusinessID,
		CustomerName: req.CustomerName,
		Phone:        entities.Phone,
		Email:        entities.Email,
		Confidence:   entities.Confidence,
		Slot:         resolved,
	})
	if err != nil {
		if errors.Is(err, booking.ErrSlotUnavailable) {
			response.Status = "clarification_needed"
			response.Message = "That time is already taken. Would another time work?"
			return response
		}
		logrus.Errorf("Booking call failed for key %s: %v", key, err)
		response.Status = "failed"
		response.Message = "We couldn't complete your booking. Please try again."
		return response
	}
	h.metrics.BookingsCreated.Inc()

	h.enqueueConfirmations(ctx, key, entities, resolved)

	response.Status = "booked"
	response.BookingID = booked.ID
	response.Message = fmt.Sprintf("You're booked for %s.", spokenTime(resolved))
	return response
}

// enqueueConfirmations queues one notification per known contact
// channel. Dispatch failures degrade to the failure-audit trail; they
// never fail the webhook.
func (h *Handlers) enqueueConfirmations(ctx context.Context, key string, entities model.ExtractedEntities, resolved model.ResolvedDateTime) {
	body := fmt.Sprintf("Your appointment is confirmed for %s.", spokenTime(resolved))

	if entities.Phone != "" {
		if _, err := h.dispatcher.Enqueue(ctx, &model.NotificationJob{
			RequestKey: key,
			Channel:    model.ChannelSMS,
			Recipient:  entities.Phone,
			Template:   "booking_confirmed",
			Body:       body,
		}); err != nil {
			logrus.Errorf("Failed to enqueue SMS confirmation for key %s: %v", key, err)
		}
	}

	if entities.Email != "" {
		if _, err := h.dispatcher.Enqueue(ctx, &model.NotificationJob{
			RequestKey: key,
			Channel:    model.ChannelEmail,
			Recipient:  entities.Email,
			Template:   "booking_confirmed",
			Body:       body,
		}); err != nil {
			logrus.Errorf("Failed to enqueue email confirmation for key %s: %v", key, err)
		}
	}
}

// requestKey prefers the platform's idempotency header and falls back to
// a stable hash of the event identity, so redeliveries without the
// header still deduplicate.
func requestKey(c *gin.Context, req model.WebhookRequest) string {
	if key := strings.TrimSpace(c.GetHeader("X-Request-ID")); key != "" {
		return key
	}
	if req.CallID == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(req.EventType + ":" + req.CallID))
	return hex.EncodeToString(sum[:])
}

// spokenTime renders the slot the way the voice platform should read it
// back
func spokenTime(resolved model.ResolvedDateTime) string {
	loc, err := time.LoadLocation(resolved.Timezone)
	if err != nil {
		return resolved.Instant.Format("Monday, January 2 at 3:04 PM")
	}
	return resolved.Instant.In(loc).Format("Monday, January 2 at 3:04 PM")
}
