package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mr1hm/vessel-alert-engine/internal/models"
)

var (
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateAlert is returned by CreateAlertIfAbsent when a live
	// alert for the same (vessel, event) pair already exists inside the
	// dedup window. Callers treat it as an idempotent outcome, not a
	// failure.
	ErrDuplicateAlert = errors.New("duplicate alert for vessel/event pair")
)

type AlertFilter struct {
	VesselID *string
	EventID  *string
	Status   *models.AlertStatus
	Severity *models.Severity
	Since    *time.Time
	Limit    int
	Offset   int
}

// BoundContact pairs a contact with its binding to a vessel.
type BoundContact struct {
	Contact models.Contact
	Binding models.VesselContactBinding
}

type HazardEventRepository interface {
	UpsertEvent(ctx context.Context, e *models.HazardEvent) error
	GetEvent(ctx context.Context, id string) (*models.HazardEvent, error)
	ListActiveEvents(ctx context.Context) ([]models.HazardEvent, error)
	DeactivateEvent(ctx context.Context, id string) error
}

type VesselRepository interface {
	UpsertVessel(ctx context.Context, v *models.Vessel) error
	GetVessel(ctx context.Context, id string) (*models.Vessel, error)
	ListVessels(ctx context.Context) ([]models.Vessel, error)
	// ListVesselsSeenSince returns vessels whose latest position was
	// observed at or after the cutoff.
	ListVesselsSeenSince(ctx context.Context, cutoff time.Time) ([]models.Vessel, error)
	RecordPosition(ctx context.Context, vesselID string, pos models.Position) error
}

type ContactRepository interface {
	AddContact(ctx context.Context, c *models.Contact) error
	GetContact(ctx context.Context, id string) (*models.Contact, error)
	BindContact(ctx context.Context, b *models.VesselContactBinding) error
	// ListVesselContacts returns every binding for the vessel joined
	// with its contact, in no particular order.
	ListVesselContacts(ctx context.Context, vesselID string) ([]BoundContact, error)
}

type AlertRepository interface {
	// CreateAlertIfAbsent atomically checks for a live alert with the
	// same (vessel, event) pair created inside the window and inserts
	// a new one only if none exists. On suppression it returns the
	// existing alert together with ErrDuplicateAlert.
	CreateAlertIfAbsent(ctx context.Context, a *models.Alert, window time.Duration) (*models.Alert, error)
	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	ListAlerts(ctx context.Context, f AlertFilter) ([]models.Alert, error)
	MarkAlertSent(ctx context.Context, id string, at time.Time) error
	MarkAlertAcknowledged(ctx context.Context, id string, at time.Time) error
	AppendAlertWarning(ctx context.Context, id string, warning string) error
	// ExpireAlerts flips every non-terminal alert past its TTL to
	// expired and reports how many rows changed.
	ExpireAlerts(ctx context.Context, now time.Time) (int64, error)
}

type DeliveryLogRepository interface {
	AddDeliveryLog(ctx context.Context, d *models.DeliveryLog) error
	UpdateDeliveryLog(ctx context.Context, d *models.DeliveryLog) error
	GetDeliveryLog(ctx context.Context, id string) (*models.DeliveryLog, error)
	ListDeliveriesByAlert(ctx context.Context, alertID string) ([]models.DeliveryLog, error)
	// ListRetryableDeliveries returns failed rows for the alert that
	// have not yet exhausted the attempt cap.
	ListRetryableDeliveries(ctx context.Context, alertID string, maxAttempts int) ([]models.DeliveryLog, error)
	// ListUnsentDeliveries returns rows still pending, used to recover
	// in-flight intents after a restart.
	ListUnsentDeliveries(ctx context.Context) ([]models.DeliveryLog, error)
}

type EscalationRepository interface {
	AddPolicy(ctx context.Context, p *models.EscalationPolicy) error
	GetPolicy(ctx context.Context, id string) (*models.EscalationPolicy, error)
	ListPolicies(ctx context.Context) ([]models.EscalationPolicy, error)
	CreateRun(ctx context.Context, r *models.EscalationRun) error
	GetRunByAlert(ctx context.Context, alertID string) (*models.EscalationRun, error)
	// DueRuns returns unhalted runs whose next_fire_at is at or before
	// now, oldest first.
	DueRuns(ctx context.Context, now time.Time) ([]models.EscalationRun, error)
	AdvanceRun(ctx context.Context, runID string, step int, nextFireAt time.Time) error
	HaltRun(ctx context.Context, runID string, at time.Time) error
	HaltRunByAlert(ctx context.Context, alertID string, at time.Time) error
}

// Store is the full persistence surface the engine shares. Components
// depend on the narrow interfaces above; main wires one Store through.
type Store interface {
	HazardEventRepository
	VesselRepository
	ContactRepository
	AlertRepository
	DeliveryLogRepository
	EscalationRepository
}
