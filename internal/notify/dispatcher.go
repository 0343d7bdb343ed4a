package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mr1hm/vessel-alert-engine/internal/models"
	"github.com/mr1hm/vessel-alert-engine/internal/repository"
	"github.com/mr1hm/vessel-alert-engine/internal/worker"
)

// sendJob is a durable delivery intent: the DeliveryLog row is the
// source of truth, the queue only carries its id. A restart re-derives
// lost jobs from pending rows via RecoverUnsent.
type sendJob struct {
	deliveryID string
}

// Dispatcher fans an alert out to resolved contacts across their
// channels and records every attempt on a DeliveryLog. Sends run on a
// worker pool; Dispatch returns as soon as the intents are queued.
type Dispatcher struct {
	store       repository.DeliveryLogRepository
	registry    *Registry
	maxAttempts int
	pool        *worker.Pool[sendJob]
	now         func() time.Time
}

func NewDispatcher(store repository.DeliveryLogRepository, registry *Registry, maxAttempts, workers, bufferSize int) *Dispatcher {
	d := &Dispatcher{
		store:       store,
		registry:    registry,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
	d.pool = worker.NewPool(workers, bufferSize, func(ctx context.Context, job sendJob) error {
		return d.attempt(ctx, job.deliveryID)
	})
	return d
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.pool.Start(ctx)
}

func (d *Dispatcher) Stop() {
	d.pool.Stop()
}

// Dispatch creates one pending DeliveryLog per (contact, channel) and
// queues the sends. channelFilter, when non-empty, restricts the
// channels used; the escalation scheduler passes each step's channel
// list through it.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *models.Alert, resolved []models.ResolvedContact, channelFilter []models.Channel) ([]models.DeliveryLog, error) {
	allow := func(ch models.Channel) bool { return true }
	if len(channelFilter) > 0 {
		want := make(map[models.Channel]bool, len(channelFilter))
		for _, ch := range channelFilter {
			want[ch] = true
		}
		allow = func(ch models.Channel) bool { return want[ch] }
	}

	body := alert.Message
	if alert.Recommendation != "" {
		body += "\n" + alert.Recommendation
	}

	var logs []models.DeliveryLog
	var failed int
	for _, rc := range resolved {
		for _, ch := range rc.Channels {
			if !allow(ch) {
				continue
			}
			dest := rc.Contact.Destination(ch)
			if dest == "" {
				continue
			}
			entry := models.DeliveryLog{
				ID:          uuid.NewString(),
				AlertID:     alert.ID,
				ContactID:   rc.Contact.ID,
				Channel:     ch,
				Destination: dest,
				Body:        body,
				Status:      models.DeliveryPending,
				CreatedAt:   d.now(),
			}
			// A failed intent is skipped rather than aborting the
			// fan-out: aborting would leave earlier rows behind, and a
			// caller that retried the whole batch would duplicate them.
			if err := d.store.AddDeliveryLog(ctx, &entry); err != nil {
				slog.Error("error recording delivery intent", "alert_id", alert.ID,
					"contact_id", rc.Contact.ID, "channel", ch, "error", err)
				failed++
				continue
			}
			logs = append(logs, entry)
			d.pool.Submit(sendJob{deliveryID: entry.ID})
		}
	}

	if failed > 0 && len(logs) == 0 {
		return nil, fmt.Errorf("error recording delivery intents: all %d failed", failed)
	}
	slog.Info("dispatched alert", "alert_id", alert.ID, "deliveries", len(logs), "failed", failed)
	return logs, nil
}

// RetryFailed queues a new attempt for every failed delivery of the
// alert that has not exhausted the attempt cap. Returns how many were
// queued.
func (d *Dispatcher) RetryFailed(ctx context.Context, alertID string) (int, error) {
	retryable, err := d.store.ListRetryableDeliveries(ctx, alertID, d.maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("error listing retryable deliveries: %w", err)
	}
	for _, entry := range retryable {
		d.pool.Submit(sendJob{deliveryID: entry.ID})
	}
	return len(retryable), nil
}

// RecoverUnsent re-queues pending rows left behind by a crash between
// intent creation and send.
func (d *Dispatcher) RecoverUnsent(ctx context.Context) (int, error) {
	pending, err := d.store.ListUnsentDeliveries(ctx)
	if err != nil {
		return 0, fmt.Errorf("error listing unsent deliveries: %w", err)
	}
	for _, entry := range pending {
		d.pool.Submit(sendJob{deliveryID: entry.ID})
	}
	return len(pending), nil
}

// attempt performs one provider call for the delivery and records the
// outcome. It re-reads the row first so racing retries observe the
// attempt cap.
func (d *Dispatcher) attempt(ctx context.Context, deliveryID string) error {
	entry, err := d.store.GetDeliveryLog(ctx, deliveryID)
	if err != nil {
		slog.Error("delivery attempt: row lookup failed", "delivery_id", deliveryID, "error", err)
		return err
	}

	if entry.Status == models.DeliveryDelivered || entry.Status == models.DeliverySent {
		return nil
	}
	if entry.Attempts >= d.maxAttempts {
		return nil
	}

	now := d.now()
	entry.Attempts++
	entry.LastAttemptAt = &now

	result := d.registry.Send(ctx, entry.Channel, entry.Destination, entry.Body)
	if result.Success {
		entry.Status = models.DeliveryDelivered
		entry.ProviderMessageID = result.ProviderMessageID
		entry.ErrorMessage = ""
		entry.DeliveredAt = &now
	} else {
		entry.Status = models.DeliveryFailed
		entry.ErrorMessage = result.Error
		slog.Warn("delivery failed", "delivery_id", entry.ID, "channel", entry.Channel,
			"attempts", entry.Attempts, "error", result.Error)
	}

	if err := d.store.UpdateDeliveryLog(ctx, entry); err != nil {
		slog.Error("delivery attempt: update failed", "delivery_id", entry.ID, "error", err)
		return err
	}
	return nil
}
