package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"voice-booking-relay-go/internal/config"
	"voice-booking-relay-go/internal/metrics"
	"voice-booking-relay-go/internal/model"
	"voice-booking-relay-go/internal/notify"
	"voice-booking-relay-go/internal/storage"
)

// channel bundles the per-channel machinery: an ordered sender list, a
// token bucket, and a queue drained by one worker goroutine.
type channel struct {
	name    string
	senders []notify.Sender
	limiter *Limiter
	queue   chan *model.NotificationJob
}

// Dispatcher owns outbound notification delivery. Jobs are persisted
// before they are queued, every attempt is recorded, and exhausted jobs
// land in the failure-audit store instead of being dropped.
type Dispatcher struct {
	cfg      config.DispatchConfig
	store    storage.JobStore
	metrics  *metrics.Metrics
	channels map[string]*channel
	rng      *rand.Rand
	rngMu    sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// ChannelSpec declares one channel's senders and pacing
type ChannelSpec struct {
	Name     string
	Senders  []notify.Sender
	Interval time.Duration
}

// NewDispatcher creates a dispatcher and starts one worker per channel
func NewDispatcher(cfg config.DispatchConfig, store storage.JobStore, m *metrics.Metrics, specs ...ChannelSpec) (*Dispatcher, error) {
	ctx, cancel := context.WithCancel(context.Background())

	d := &Dispatcher{
		cfg:      cfg,
		store:    store,
		metrics:  m,
		channels: make(map[string]*channel),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		ctx:      ctx,
		cancel:   cancel,
	}

	for _, spec := range specs {
		if len(spec.Senders) == 0 {
			cancel()
			return nil, fmt.Errorf("channel %s has no senders", spec.Name)
		}
		ch := &channel{
			name:    spec.Name,
			senders: spec.Senders,
			limiter: NewLimiter(spec.Interval, 1),
			queue:   make(chan *model.NotificationJob, cfg.QueueSize),
		}
		d.channels[spec.Name] = ch
		d.wg.Add(1)
		go d.drain(ch)
	}

	// Snapshot orphans before any caller can Enqueue, so a fresh job is
	// never reclaimed as its own duplicate. Requeueing happens off the
	// construction path; the backlog may exceed the queue capacity.
	orphans, err := store.ListByStatus(ctx, []string{model.JobQueued, model.JobFailedRetryable}, recoverBatch)
	if err != nil {
		logrus.Errorf("Failed to list orphaned notification jobs: %v", err)
	}
	d.wg.Add(1)
	go d.recover(orphans)

	return d, nil
}

// recoverBatch bounds one reclaim pass over the store
const recoverBatch = 500

// recover re-enqueues jobs a previous process left non-terminal, so a
// restart (or a shutdown that caught a job mid-queue) never strands a
// persisted job without delivery or an audit row.
func (d *Dispatcher) recover(jobs []model.NotificationJob) {
	defer d.wg.Done()

	for i := range jobs {
		job := jobs[i]
		ch, ok := d.channels[job.Channel]
		if !ok {
			logrus.Warnf("Orphaned job %s has unknown channel %q, leaving it for operator review", job.ID, job.Channel)
			continue
		}
		select {
		case ch.queue <- &job:
			if d.metrics != nil {
				d.metrics.QueueDepth.WithLabelValues(ch.name).Inc()
			}
			logrus.Infof("Reclaimed notification job %s (%s, attempt %d)", job.ID, job.Channel, job.Attempts)
		case <-d.ctx.Done():
			return
		}
	}
}

// Enqueue persists the job and hands it to its channel worker. The
// caller gets the job id back immediately; delivery is fire-and-forget.
func (d *Dispatcher) Enqueue(ctx context.Context, job *model.NotificationJob) (string, error) {
	ch, ok := d.channels[job.Channel]
	if !ok {
		return "", fmt.Errorf("unknown notification channel %q", job.Channel)
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Status = model.JobQueued
	job.CreatedAt = time.Now()

	if err := d.store.Create(ctx, job); err != nil {
		return "", err
	}

	select {
	case ch.queue <- job:
		if d.metrics != nil {
			d.metrics.QueueDepth.WithLabelValues(ch.name).Inc()
		}
	case <-ctx.Done():
		// The job is already durable as queued; the next recovery pass
		// will pick it up. The caller must not block on a full queue.
		return "", ctx.Err()
	case <-d.ctx.Done():
		return "", fmt.Errorf("dispatcher is shutting down")
	}

	return job.ID, nil
}

// drain is the per-channel worker: acquire a token, attempt the send,
// and keep the job's durable status current.
func (d *Dispatcher) drain(ch *channel) {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case job := <-ch.queue:
			if d.metrics != nil {
				d.metrics.QueueDepth.WithLabelValues(ch.name).Dec()
			}
			d.deliver(ch, job)
		}
	}
}

// deliver runs the bounded retry loop for one job
func (d *Dispatcher) deliver(ch *channel, job *model.NotificationJob) {
	for job.Attempts < d.cfg.MaxAttempts {
		if err := ch.limiter.Acquire(d.ctx); err != nil {
			// Shutdown mid-job: leave it queued for a future run.
			logrus.Warnf("Dispatcher stopping with job %s still queued", job.ID)
			return
		}

		job.Attempts++
		providerID, err := d.attempt(ch, job)
		if err == nil {
			job.Status = model.JobSent
			job.ProviderMessageID = providerID
			job.LastError = ""
			if uerr := d.store.Update(d.ctx, job); uerr != nil {
				logrus.Errorf("Failed to record sent status for job %s: %v", job.ID, uerr)
			}
			if d.metrics != nil {
				d.metrics.NotificationsSent.WithLabelValues(ch.name).Inc()
			}
			logrus.Infof("Notification %s delivered via %s on attempt %d", job.ID, ch.name, job.Attempts)
			return
		}

		job.LastError = err.Error()

		var sendErr *notify.SendError
		terminal := errors.As(err, &sendErr) && !sendErr.Temporary
		if terminal {
			d.fail(ch, job)
			return
		}

		if job.Attempts >= d.cfg.MaxAttempts {
			break
		}

		job.Status = model.JobFailedRetryable
		if uerr := d.store.Update(d.ctx, job); uerr != nil {
			logrus.Errorf("Failed to record retry status for job %s: %v", job.ID, uerr)
		}

		d.rngMu.Lock()
		delay := backoffDelay(job.Attempts, d.cfg.BaseBackoff, d.cfg.MaxBackoff, d.rng)
		d.rngMu.Unlock()
		logrus.Warnf("Notification %s attempt %d/%d failed, retrying in %v: %v",
			job.ID, job.Attempts, d.cfg.MaxAttempts, delay, err)

		timer := time.NewTimer(delay)
		select {
		case <-d.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	d.fail(ch, job)
}

// attempt tries the channel's senders in order; the first success wins
func (d *Dispatcher) attempt(ch *channel, job *model.NotificationJob) (string, error) {
	var lastErr error
	for _, sender := range ch.senders {
		id, err := sender.Send(d.ctx, job.Recipient, job.Body)
		if err == nil {
			return id, nil
		}
		lastErr = err

		// A terminal classification is about the message, not the
		// provider: no other sender will fare better.
		var sendErr *notify.SendError
		if errors.As(err, &sendErr) && !sendErr.Temporary {
			return "", err
		}
		logrus.Warnf("Sender %s failed for job %s, trying next: %v", sender.Name(), job.ID, err)
	}
	return "", lastErr
}

// fail marks the job terminally failed and writes the audit record
func (d *Dispatcher) fail(ch *channel, job *model.NotificationJob) {
	job.Status = model.JobFailedTerminal
	if err := d.store.Update(d.ctx, job); err != nil {
		logrus.Errorf("Failed to record terminal status for job %s: %v", job.ID, err)
	}
	if err := d.store.RecordFailure(d.ctx, job); err != nil {
		logrus.Errorf("Failed to write failure audit for job %s: %v", job.ID, err)
	}
	if d.metrics != nil {
		d.metrics.NotificationErrors.WithLabelValues(ch.name).Inc()
	}
	logrus.Errorf("Notification %s terminally failed after %d attempt(s): %s", job.ID, job.Attempts, job.LastError)
}

// Close stops the channel workers. Queued jobs remain durable in the
// store with their last recorded status.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}
