// Package reaper sweeps the processed_webhooks table in the background:
// in-flight rows orphaned by a crash are forced to a terminal state so
// redeliveries stop seeing a phantom in-flight owner, and finalized rows
// past retention are removed.
package reaper

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"voice-booking-relay-go/internal/config"
	"voice-booking-relay-go/internal/metrics"
	"voice-booking-relay-go/internal/model"
	"voice-booking-relay-go/internal/storage"
)

// Reaper runs the periodic sweep
type Reaper struct {
	cron      *cron.Cron
	entryID   cron.EntryID
	config    *config.ReaperConfig
	store     storage.WebhookStore
	metrics   *metrics.Metrics
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.RWMutex
}

// New creates a reaper over the webhook store
func New(cfg *config.ReaperConfig, store storage.WebhookStore, m *metrics.Metrics) *Reaper {
	ctx, cancel := context.WithCancel(context.Background())

	return &Reaper{
		cron:    cron.New(),
		config:  cfg,
		store:   store,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start starts the sweep schedule
func (r *Reaper) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isRunning {
		return fmt.Errorf("reaper is already running")
	}

	schedule := fmt.Sprintf("@every %s", r.config.Interval)
	entryID, err := r.cron.AddFunc(schedule, r.sweep)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	r.entryID = entryID
	r.cron.Start()
	r.isRunning = true

	logrus.Infof("Reaper started with interval %s, stale bound %s", r.config.Interval, r.config.StaleAfter)
	return nil
}

// Stop stops the sweep schedule
func (r *Reaper) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isRunning {
		return nil
	}

	r.cancel()
	ctx := r.cron.Stop()

	select {
	case <-ctx.Done():
		logrus.Info("Reaper stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Reaper stop timeout, forcing shutdown")
	}

	r.isRunning = false
	return nil
}

// IsRunning returns whether the reaper is running
func (r *Reaper) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isRunning
}

// Wait waits for an in-progress sweep to finish
func (r *Reaper) Wait() {
	r.wg.Wait()
}

// RunOnce triggers a sweep immediately (for manual triggering)
func (r *Reaper) RunOnce() {
	r.sweep()
}

// sweep performs one pass over the table
func (r *Reaper) sweep() {
	r.wg.Add(1)
	defer r.wg.Done()

	staleCutoff := time.Now().Add(-r.config.StaleAfter)
	response := staleResponse()

	reaped, err := r.store.ReapStale(r.ctx, staleCutoff, response)
	if err != nil {
		logrus.Errorf("Failed to reap stale in-flight webhooks: %v", err)
	} else if reaped > 0 {
		logrus.Warnf("Marked %d stale in-flight webhook(s) as failed", reaped)
		if r.metrics != nil {
			r.metrics.ReapedWebhooks.Add(float64(reaped))
		}
	}

	retentionCutoff := time.Now().Add(-r.config.Retention)
	removed, err := r.store.DeleteFinalizedBefore(r.ctx, retentionCutoff)
	if err != nil {
		logrus.Errorf("Failed to remove expired webhook rows: %v", err)
	} else if removed > 0 {
		logrus.Infof("Removed %d webhook row(s) past retention", removed)
	}
}

// staleResponse is the synthesized terminal body recorded for reaped
// rows, replayed to any later redelivery of the same key.
func staleResponse() []byte {
	body, _ := json.Marshal(model.WebhookResponse{
		Status:  "failed",
		Message: "Processing did not complete in time. Please try again.",
	})
	return body
}
