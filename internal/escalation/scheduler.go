package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mr1hm/vessel-alert-engine/internal/contacts"
	"github.com/mr1hm/vessel-alert-engine/internal/models"
	"github.com/mr1hm/vessel-alert-engine/internal/repository"
)

// Store is the slice of persistence the scheduler needs.
type Store interface {
	repository.AlertRepository
	repository.EscalationRepository
}

// Dispatcher is the delivery capability the scheduler drives at each
// step.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert *models.Alert, resolved []models.ResolvedContact, channelFilter []models.Channel) ([]models.DeliveryLog, error)
}

// Resolver yields the notifiable contacts for a vessel at a severity.
type Resolver interface {
	Resolve(ctx context.Context, vesselID string, severity models.Severity) ([]models.ResolvedContact, error)
}

// Scheduler drives escalation runs. Next fire times live in the store
// (never in in-process timers), so a restart picks up exactly where
// the previous process stopped. A single scanner goroutine polls for
// due runs, which also guarantees steps of one run fire in order.
type Scheduler struct {
	store        Store
	resolver     Resolver
	dispatcher   Dispatcher
	pollInterval time.Duration
	now          func() time.Time
	wg           sync.WaitGroup
}

func NewScheduler(store Store, resolver Resolver, dispatcher Dispatcher, pollInterval time.Duration) *Scheduler {
	return &Scheduler{
		store:        store,
		resolver:     resolver,
		dispatcher:   dispatcher,
		pollInterval: pollInterval,
		now:          time.Now,
	}
}

// InitRun starts an escalation run for the alert against the policy.
// Step 0 fires after its own wait; a zero wait makes it due for the
// scanner's next pass.
func (s *Scheduler) InitRun(ctx context.Context, alert *models.Alert, policy *models.EscalationPolicy) (*models.EscalationRun, error) {
	if len(policy.Steps) == 0 {
		return nil, fmt.Errorf("policy %s has no steps", policy.ID)
	}
	now := s.now()
	run := &models.EscalationRun{
		ID:          uuid.NewString(),
		AlertID:     alert.ID,
		PolicyID:    policy.ID,
		CurrentStep: 0,
		NextFireAt:  now.Add(time.Duration(policy.Steps[0].WaitMinutes) * time.Minute),
		CreatedAt:   now,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("error creating escalation run: %w", err)
	}
	slog.Info("escalation run started", "alert_id", alert.ID, "policy", policy.Name,
		"next_fire_at", run.NextFireAt)
	return run, nil
}

// Halt stops the alert's run, cancelling all future fires. Safe to call
// for alerts that never had a run.
func (s *Scheduler) Halt(ctx context.Context, alertID string) error {
	return s.store.HaltRunByAlert(ctx, alertID, s.now())
}

func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		slog.Info("escalation scanner starting", "poll_interval", s.pollInterval)

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Info("escalation scanner shutting down")
				return
			case <-ticker.C:
				s.runDue(ctx, s.now())
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.wg.Wait()
}

// runDue fires every run whose next_fire_at has passed. Exposed to
// tests through synthetic clocks; production only reaches it from the
// scanner goroutine.
func (s *Scheduler) runDue(ctx context.Context, now time.Time) {
	due, err := s.store.DueRuns(ctx, now)
	if err != nil {
		slog.Error("error scanning due escalation runs", "error", err)
		return
	}
	for i := range due {
		if err := s.fire(ctx, &due[i], now); err != nil {
			slog.Error("error firing escalation step", "run_id", due[i].ID, "error", err)
		}
	}
}

// fire executes one step of a run: re-check halt conditions against the
// store, dispatch to the step's roles and channels, then advance or
// exhaust. The halt check reads the same store the acknowledgment
// wrote, so an ack that committed before the scan is always honored; an
// ack racing the dispatch itself may still let one extra notification
// out, which operators accept over holding a lock across provider
// calls.
func (s *Scheduler) fire(ctx context.Context, run *models.EscalationRun, now time.Time) error {
	alert, err := s.store.GetAlert(ctx, run.AlertID)
	if errors.Is(err, repository.ErrNotFound) {
		return s.store.HaltRun(ctx, run.ID, now)
	}
	if err != nil {
		return fmt.Errorf("error loading alert %s: %w", run.AlertID, err)
	}

	if status := alert.EffectiveStatus(now); status == models.AlertStatusAcknowledged || status == models.AlertStatusExpired {
		slog.Info("halting escalation run", "run_id", run.ID, "alert_id", alert.ID, "status", status)
		return s.store.HaltRun(ctx, run.ID, now)
	}

	policy, err := s.store.GetPolicy(ctx, run.PolicyID)
	if err != nil {
		return fmt.Errorf("error loading policy %s: %w", run.PolicyID, err)
	}
	if run.CurrentStep >= len(policy.Steps) {
		return s.store.HaltRun(ctx, run.ID, now)
	}
	step := policy.Steps[run.CurrentStep]

	resolved, err := s.resolver.Resolve(ctx, alert.VesselID, alert.Severity)
	if err != nil {
		return fmt.Errorf("error resolving contacts: %w", err)
	}
	targets := contacts.FilterByRoles(resolved, step.ContactRoles)
	if len(targets) == 0 {
		slog.Warn("escalation step resolved no contacts", "run_id", run.ID,
			"step", step.StepNumber, "roles", step.ContactRoles)
	} else {
		// Dispatch skips past individual intent failures and errors
		// only when nothing was recorded, so leaving the run in place
		// for the next poll cannot duplicate delivery rows.
		if _, err := s.dispatcher.Dispatch(ctx, alert, targets, step.Channels); err != nil {
			return fmt.Errorf("error dispatching step %d: %w", step.StepNumber, err)
		}
	}

	next := run.CurrentStep + 1
	if next >= len(policy.Steps) {
		slog.Info("escalation policy exhausted", "run_id", run.ID, "alert_id", alert.ID)
		return s.store.HaltRun(ctx, run.ID, now)
	}

	// The next step waits its own wait time; if the current step grants
	// a longer acknowledgment timeout, that wins. Either way an
	// unacknowledged alert proceeds to the next step.
	delay := time.Duration(policy.Steps[next].WaitMinutes) * time.Minute
	if timeout := time.Duration(step.TimeoutMinutes) * time.Minute; timeout > delay {
		delay = timeout
	}
	return s.store.AdvanceRun(ctx, run.ID, next, now.Add(delay))
}
