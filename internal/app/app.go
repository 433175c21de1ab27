package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"voice-booking-relay-go/internal/booking"
	"voice-booking-relay-go/internal/config"
	"voice-booking-relay-go/internal/db"
	"voice-booking-relay-go/internal/dispatch"
	"voice-booking-relay-go/internal/extract"
	"voice-booking-relay-go/internal/handlers"
	"voice-booking-relay-go/internal/idempotency"
	"voice-booking-relay-go/internal/metrics"
	"voice-booking-relay-go/internal/model"
	"voice-booking-relay-go/internal/notify"
	"voice-booking-relay-go/internal/reaper"
	"voice-booking-relay-go/internal/server"
	"voice-booking-relay-go/internal/storage"
)

// Run initializes and starts the application
func Run() error {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("Starting Voice Booking Relay Service")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	dbConn, err := db.Init(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	m := metrics.NewMetrics()

	webhookStore := storage.NewGormWebhookStore(dbConn)
	jobStore := storage.NewGormJobStore(dbConn)
	gate := idempotency.NewGate(webhookStore)

	chain := buildExtractorChain(&cfg.Extractor)

	smsSenders, emailSenders, err := buildSenders(&cfg.Notify)
	if err != nil {
		return fmt.Errorf("failed to configure notification providers: %w", err)
	}

	dispatcher, err := dispatch.NewDispatcher(cfg.Dispatch, jobStore, m,
		dispatch.ChannelSpec{Name: model.ChannelSMS, Senders: smsSenders, Interval: cfg.Notify.SMSInterval},
		dispatch.ChannelSpec{Name: model.ChannelEmail, Senders: emailSenders, Interval: cfg.Notify.EmailInterval},
	)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	bookingClient, err := booking.NewHTTPClient(cfg.Booking)
	if err != nil {
		return fmt.Errorf("failed to create booking client: %w", err)
	}

	rp := reaper.New(&cfg.Reaper, webhookStore, m)

	h := handlers.NewHandlers(dbConn, gate, chain, bookingClient, dispatcher, jobStore, rp, m, cfg.Server.HandlerTimeout)
	router := server.SetupRouter(h)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if err := rp.Start(); err != nil {
		return fmt.Errorf("failed to start reaper: %w", err)
	}

	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	if err := rp.Stop(); err != nil {
		logrus.Errorf("Failed to stop reaper: %v", err)
	}
	rp.Wait()

	dispatcher.Close()

	logrus.Info("Server stopped gracefully")
	return nil
}

// buildExtractorChain assembles the detection tiers in priority order;
// the regex tier is always last so extraction cannot fail outright.
func buildExtractorChain(cfg *config.ExtractorConfig) *extract.Chain {
	var providers []extract.Provider

	if cfg.PrimaryURL != "" {
		providers = append(providers, extract.NewHTTPProvider("primary", cfg.PrimaryURL, cfg.PrimaryKey, 0.9, cfg.Timeout))
		logrus.Info("Primary entity detection provider configured")
	}
	if cfg.SecondaryURL != "" {
		providers = append(providers, extract.NewHTTPProvider("secondary", cfg.SecondaryURL, cfg.SecondaryKey, 0.85, cfg.Timeout))
		logrus.Info("Secondary entity detection provider configured")
	}
	providers = append(providers, extract.NewRegexProvider())

	return extract.NewChain(providers...)
}

// buildSenders constructs the per-channel sender lists. The primary SMS
// provider is required; the backup and email providers are optional.
func buildSenders(cfg *config.NotifyConfig) (sms, email []notify.Sender, err error) {
	twilio, err := notify.NewTwilioSender(*cfg)
	if err != nil {
		return nil, nil, err
	}
	sms = append(sms, twilio)

	if cfg.SMSBackupKey != "" {
		vonage, err := notify.NewVonageSender(*cfg)
		if err != nil {
			return nil, nil, err
		}
		sms = append(sms, vonage)
		logrus.Info("Backup SMS provider configured")
	}

	sendgrid, err := notify.NewSendgridSender(*cfg)
	if err != nil {
		return nil, nil, err
	}
	email = append(email, sendgrid)

	return sms, email, nil
}
