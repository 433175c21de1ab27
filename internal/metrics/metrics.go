package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	WebhooksReceived   prometheus.Counter
	WebhookDuplicates  prometheus.Counter
	WebhookFailures    prometheus.Counter
	BookingsCreated    prometheus.Counter
	NotificationsSent  *prometheus.CounterVec
	NotificationErrors *prometheus.CounterVec
	HandlerDuration    prometheus.Histogram
	QueueDepth         *prometheus.GaugeVec
	ReapedWebhooks     prometheus.Counter
}

// NewMetrics creates new Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		WebhooksReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_booking_relay_webhooks_received",
			Help: "Total number of webhook deliveries received",
		}),
		WebhookDuplicates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_booking_relay_webhook_duplicates",
			Help: "Total number of webhook deliveries served from the replay cache",
		}),
		WebhookFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_booking_relay_webhook_failures",
			Help: "Total number of webhooks finalized as failed",
		}),
		BookingsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_booking_relay_bookings_created",
			Help: "Total number of bookings created through the collaborator",
		}),
		NotificationsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_booking_relay_notifications_sent",
			Help: "Total number of notifications delivered, by channel",
		}, []string{"channel"}),
		NotificationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_booking_relay_notification_errors",
			Help: "Total number of terminally failed notification jobs, by channel",
		}, []string{"channel"}),
		HandlerDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_booking_relay_handler_duration_seconds",
			Help:    "Time spent handling webhook deliveries",
			Buckets: prometheus.DefBuckets,
		}),
		QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voice_booking_relay_queue_depth",
			Help: "Number of notification jobs waiting per channel",
		}, []string{"channel"}),
		ReapedWebhooks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_booking_relay_reaped_webhooks",
			Help: "Total number of stale in-flight webhooks marked failed by the reaper",
		}),
	}
}
