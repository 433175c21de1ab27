package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"voice-booking-relay-go/internal/booking"
	"voice-booking-relay-go/internal/dispatch"
	"voice-booking-relay-go/internal/extract"
	"voice-booking-relay-go/internal/idempotency"
	"voice-booking-relay-go/internal/metrics"
	"voice-booking-relay-go/internal/reaper"
	"voice-booking-relay-go/internal/storage"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	db             *gorm.DB
	gate           *idempotency.Gate
	extractor      *extract.Chain
	booking        booking.Client
	dispatcher     *dispatch.Dispatcher
	jobs           storage.JobStore
	reaper         *reaper.Reaper
	metrics        *metrics.Metrics
	handlerTimeout time.Duration
}

// NewHandlers creates new HTTP handlers
func NewHandlers(
	db *gorm.DB,
	gate *idempotency.Gate,
	extractor *extract.Chain,
	bookingClient booking.Client,
	dispatcher *dispatch.Dispatcher,
	jobs storage.JobStore,
	r *reaper.Reaper,
	m *metrics.Metrics,
	handlerTimeout time.Duration,
) *Handlers {
	return &Handlers{
		db:             db,
		gate:           gate,
		extractor:      extractor,
		booking:        bookingClient,
		dispatcher:     dispatcher,
		jobs:           jobs,
		reaper:         r,
		metrics:        m,
		handlerTimeout: handlerTimeout,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/webhooks/voice", h.HandleVoiceWebhook)

	api := router.Group("/api/v1")
	{
		api.GET("/jobs", h.GetJobs)
		api.GET("/failures", h.GetFailures)
	}
}
