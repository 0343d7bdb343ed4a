package models

import "time"

type AlertStatus string

const (
	AlertStatusPending      AlertStatus = "pending"
	AlertStatusSent         AlertStatus = "sent"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusExpired      AlertStatus = "expired"
)

// Terminal reports whether no further transitions apply.
func (s AlertStatus) Terminal() bool {
	return s == AlertStatusAcknowledged || s == AlertStatusExpired
}

// Alert is the central aggregate: one vessel warned about one hazard
// event. At most one non-expired Alert may exist per (vessel, event)
// pair within the dedup window.
type Alert struct {
	ID               string
	VesselID         string
	EventID          string
	EventKind        HazardKind
	Severity         Severity
	DistanceKm       float64
	Coordinates      Coordinates
	Message          string
	Recommendation   string
	Actions          []string
	Warnings         []string // operator-facing annotations, e.g. "no contacts resolved"
	Status           AlertStatus
	CreatedAt        time.Time
	ExpiresAt        time.Time
	SentAt           *time.Time
	AcknowledgedAt   *time.Time
	TsunamiEtaMin    *int
	WaveHeightMeters *float64
}

// EffectiveStatus applies lazy expiry: an alert past its TTL that never
// reached a terminal state reads as expired.
func (a *Alert) EffectiveStatus(now time.Time) AlertStatus {
	if !a.Status.Terminal() && now.After(a.ExpiresAt) {
		return AlertStatusExpired
	}
	return a.Status
}

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// DeliveryLog records one (alert, contact, channel) notification and
// its retries.
type DeliveryLog struct {
	ID                string
	AlertID           string
	ContactID         string
	Channel           Channel
	Destination       string
	Body              string
	Status            DeliveryStatus
	Attempts          int
	LastAttemptAt     *time.Time
	ProviderMessageID string
	ErrorMessage      string
	DeliveredAt       *time.Time
	CreatedAt         time.Time
}
