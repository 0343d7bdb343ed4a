package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mr1hm/vessel-alert-engine/internal/escalation"
	"github.com/mr1hm/vessel-alert-engine/internal/models"
	"github.com/mr1hm/vessel-alert-engine/internal/notify"
	"github.com/mr1hm/vessel-alert-engine/internal/repository"
)

// ErrInvalidRequest marks validation failures rejected at the call
// boundary.
var ErrInvalidRequest = errors.New("invalid alert request")

// CreateRequest carries everything needed to create and route one
// alert. Message is optional; the manager composes one when empty.
type CreateRequest struct {
	VesselID         string
	EventID          string
	EventKind        models.HazardKind
	Severity         models.Severity
	DistanceKm       float64
	Coordinates      models.Coordinates
	Message          string
	PolicyOverrideID string
	TsunamiEtaMin    *int
	WaveHeightMeters *float64
}

// CreateResult distinguishes a fresh alert from a suppressed duplicate.
type CreateResult struct {
	Alert       *models.Alert
	IsDuplicate bool
}

// Manager owns the Alert aggregate's lifecycle and ties resolution,
// dispatch and escalation together. All state lives in the store; the
// manager holds only its collaborators.
type Manager struct {
	store       repository.Store
	resolver    escalation.Resolver
	dispatcher  *notify.Dispatcher
	scheduler   *escalation.Scheduler
	broadcaster *Broadcaster
	alertTTL    time.Duration
	dupWindow   time.Duration
	now         func() time.Time
}

// NewManager wires the manager's collaborators. alertTTL bounds how
// long an alert stays actionable; dupWindow bounds duplicate
// suppression. The two are tuned independently.
func NewManager(store repository.Store, resolver escalation.Resolver, dispatcher *notify.Dispatcher, scheduler *escalation.Scheduler, broadcaster *Broadcaster, alertTTL, dupWindow time.Duration) *Manager {
	return &Manager{
		store:       store,
		resolver:    resolver,
		dispatcher:  dispatcher,
		scheduler:   scheduler,
		broadcaster: broadcaster,
		alertTTL:    alertTTL,
		dupWindow:   dupWindow,
		now:         time.Now,
	}
}

// CreateAndRoute is the engine's main entry point: dedup, persist,
// resolve, route. Duplicate triggers return the existing alert with
// IsDuplicate set and cause no side effects. Delivery problems never
// surface as errors here; they land on the delivery logs.
func (m *Manager) CreateAndRoute(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	vessel, event, err := m.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	now := m.now()
	alert := &models.Alert{
		ID:               uuid.NewString(),
		VesselID:         req.VesselID,
		EventID:          req.EventID,
		EventKind:        req.EventKind,
		Severity:         req.Severity,
		DistanceKm:       req.DistanceKm,
		Coordinates:      req.Coordinates,
		Message:          req.Message,
		Recommendation:   recommendationFor(req.EventKind, req.Severity),
		Actions:          actionsFor(req.Severity),
		Status:           models.AlertStatusPending,
		CreatedAt:        now,
		ExpiresAt:        now.Add(m.alertTTL),
		TsunamiEtaMin:    req.TsunamiEtaMin,
		WaveHeightMeters: req.WaveHeightMeters,
	}
	if alert.Message == "" {
		alert.Message = composeMessage(vessel, event, req.Severity, req.DistanceKm)
	}
	if alert.WaveHeightMeters == nil && event.Kind == models.HazardTsunami && event.WaveHeightMeters > 0 {
		wh := event.WaveHeightMeters
		alert.WaveHeightMeters = &wh
	}

	created, err := m.store.CreateAlertIfAbsent(ctx, alert, m.dupWindow)
	if errors.Is(err, repository.ErrDuplicateAlert) {
		slog.Debug("duplicate alert suppressed", "vessel_id", req.VesselID, "event_id", req.EventID)
		return &CreateResult{Alert: created, IsDuplicate: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error persisting alert: %w", err)
	}

	if m.broadcaster != nil {
		m.broadcaster.Publish(created)
	}

	resolved, err := m.resolver.Resolve(ctx, req.VesselID, req.Severity)
	if err != nil {
		return nil, fmt.Errorf("error resolving contacts: %w", err)
	}
	if len(resolved) == 0 {
		slog.Warn("alert has no resolvable contacts", "alert_id", created.ID,
			"vessel_id", req.VesselID, "severity", req.Severity)
		if err := m.store.AppendAlertWarning(ctx, created.ID, "no contacts resolved for severity "+string(req.Severity)); err != nil {
			slog.Error("error recording alert warning", "alert_id", created.ID, "error", err)
		}
		return &CreateResult{Alert: created}, nil
	}

	policy, err := escalation.SelectPolicy(ctx, m.store, req.EventKind, req.Severity, req.PolicyOverrideID)
	if err != nil {
		return nil, err
	}

	if policy != nil {
		// Policy-driven alerts defer entirely to the scheduler; step 0
		// with a zero wait fires on its next pass.
		if _, err := m.scheduler.InitRun(ctx, created, policy); err != nil {
			return nil, err
		}
	} else {
		if _, err := m.dispatcher.Dispatch(ctx, created, resolved, nil); err != nil {
			return nil, fmt.Errorf("error dispatching alert: %w", err)
		}
	}

	if err := m.store.MarkAlertSent(ctx, created.ID, m.now()); err != nil {
		slog.Error("error marking alert sent", "alert_id", created.ID, "error", err)
	} else {
		created.Status = models.AlertStatusSent
		sentAt := m.now()
		created.SentAt = &sentAt
	}

	slog.Info("alert created", "alert_id", created.ID, "vessel_id", req.VesselID,
		"event_id", req.EventID, "severity", req.Severity, "distance_km", req.DistanceKm,
		"policy_driven", policy != nil)

	return &CreateResult{Alert: created}, nil
}

// Acknowledge moves the alert to acknowledged and halts its escalation
// run, cancelling all future steps.
func (m *Manager) Acknowledge(ctx context.Context, alertID string) (*models.Alert, error) {
	now := m.now()
	if err := m.store.MarkAlertAcknowledged(ctx, alertID, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: alert %s is not acknowledgeable", ErrInvalidRequest, alertID)
		}
		return nil, err
	}
	if err := m.scheduler.Halt(ctx, alertID); err != nil {
		return nil, fmt.Errorf("error halting escalation: %w", err)
	}
	slog.Info("alert acknowledged", "alert_id", alertID)
	return m.GetAlert(ctx, alertID)
}

// RetryFailedDeliveries re-queues the alert's failed deliveries that
// are still under the attempt cap.
func (m *Manager) RetryFailedDeliveries(ctx context.Context, alertID string) (int, error) {
	if _, err := m.store.GetAlert(ctx, alertID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, fmt.Errorf("%w: unknown alert %s", ErrInvalidRequest, alertID)
		}
		return 0, err
	}
	return m.dispatcher.RetryFailed(ctx, alertID)
}

// GetAlert reads one alert with lazy expiry applied.
func (m *Manager) GetAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	a, err := m.store.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	a.Status = a.EffectiveStatus(m.now())
	return a, nil
}

// ListAlerts reads alerts with lazy expiry applied to each.
func (m *Manager) ListAlerts(ctx context.Context, f repository.AlertFilter) ([]models.Alert, error) {
	alerts, err := m.store.ListAlerts(ctx, f)
	if err != nil {
		return nil, err
	}
	now := m.now()
	for i := range alerts {
		alerts[i].Status = alerts[i].EffectiveStatus(now)
	}
	return alerts, nil
}

// ListDeliveries reads the alert's delivery logs.
func (m *Manager) ListDeliveries(ctx context.Context, alertID string) ([]models.DeliveryLog, error) {
	return m.store.ListDeliveriesByAlert(ctx, alertID)
}

// SweepExpired persists the expired status for alerts past their TTL.
// Lazy expiry already covers reads; the sweep keeps the table tidy.
func (m *Manager) SweepExpired(ctx context.Context) (int64, error) {
	return m.store.ExpireAlerts(ctx, m.now())
}

func (m *Manager) validate(ctx context.Context, req CreateRequest) (*models.Vessel, *models.HazardEvent, error) {
	if !req.EventKind.Valid() {
		return nil, nil, fmt.Errorf("%w: unknown event kind %q", ErrInvalidRequest, req.EventKind)
	}
	if !req.Severity.Valid() {
		return nil, nil, fmt.Errorf("%w: unknown severity %q", ErrInvalidRequest, req.Severity)
	}
	if req.DistanceKm < 0 {
		return nil, nil, fmt.Errorf("%w: negative distance", ErrInvalidRequest)
	}
	c := req.Coordinates
	if c.Latitude < -90 || c.Latitude > 90 || c.Longitude < -180 || c.Longitude > 180 {
		return nil, nil, fmt.Errorf("%w: malformed coordinates (%f, %f)", ErrInvalidRequest, c.Latitude, c.Longitude)
	}

	vessel, err := m.store.GetVessel(ctx, req.VesselID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: unknown vessel %s", ErrInvalidRequest, req.VesselID)
	}
	if err != nil {
		return nil, nil, err
	}

	event, err := m.store.GetEvent(ctx, req.EventID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: unknown event %s", ErrInvalidRequest, req.EventID)
	}
	if err != nil {
		return nil, nil, err
	}

	return vessel, event, nil
}
