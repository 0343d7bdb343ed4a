package api

import (
	"time"

	"github.com/mr1hm/vessel-alert-engine/internal/models"
)

// Wire views for API responses. Internal models stay tag-free; the
// handlers translate at the boundary.

type alertView struct {
	ID               string     `json:"id"`
	VesselID         string     `json:"vessel_id"`
	EventID          string     `json:"event_id"`
	EventKind        string     `json:"event_kind"`
	Severity         string     `json:"severity"`
	DistanceKm       float64    `json:"distance_km"`
	Latitude         float64    `json:"latitude"`
	Longitude        float64    `json:"longitude"`
	Message          string     `json:"message"`
	Recommendation   string     `json:"recommendation,omitempty"`
	Actions          []string   `json:"actions,omitempty"`
	Warnings         []string   `json:"warnings,omitempty"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
	SentAt           *time.Time `json:"sent_at,omitempty"`
	AcknowledgedAt   *time.Time `json:"acknowledged_at,omitempty"`
	TsunamiEtaMin    *int       `json:"tsunami_eta_min,omitempty"`
	WaveHeightMeters *float64   `json:"wave_height_meters,omitempty"`
}

func toAlertView(a *models.Alert) alertView {
	return alertView{
		ID:               a.ID,
		VesselID:         a.VesselID,
		EventID:          a.EventID,
		EventKind:        string(a.EventKind),
		Severity:         string(a.Severity),
		DistanceKm:       a.DistanceKm,
		Latitude:         a.Coordinates.Latitude,
		Longitude:        a.Coordinates.Longitude,
		Message:          a.Message,
		Recommendation:   a.Recommendation,
		Actions:          a.Actions,
		Warnings:         a.Warnings,
		Status:           string(a.Status),
		CreatedAt:        a.CreatedAt,
		ExpiresAt:        a.ExpiresAt,
		SentAt:           a.SentAt,
		AcknowledgedAt:   a.AcknowledgedAt,
		TsunamiEtaMin:    a.TsunamiEtaMin,
		WaveHeightMeters: a.WaveHeightMeters,
	}
}

func toAlertViews(alerts []models.Alert) []alertView {
	out := make([]alertView, 0, len(alerts))
	for i := range alerts {
		out = append(out, toAlertView(&alerts[i]))
	}
	return out
}

type deliveryView struct {
	ID                string     `json:"id"`
	ContactID         string     `json:"contact_id"`
	Channel           string     `json:"channel"`
	Destination       string     `json:"destination"`
	Status            string     `json:"status"`
	Attempts          int        `json:"attempts"`
	LastAttemptAt     *time.Time `json:"last_attempt_at,omitempty"`
	ProviderMessageID string     `json:"provider_message_id,omitempty"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
}

func toDeliveryViews(logs []models.DeliveryLog) []deliveryView {
	out := make([]deliveryView, 0, len(logs))
	for _, d := range logs {
		out = append(out, deliveryView{
			ID:                d.ID,
			ContactID:         d.ContactID,
			Channel:           string(d.Channel),
			Destination:       d.Destination,
			Status:            string(d.Status),
			Attempts:          d.Attempts,
			LastAttemptAt:     d.LastAttemptAt,
			ProviderMessageID: d.ProviderMessageID,
			ErrorMessage:      d.ErrorMessage,
			DeliveredAt:       d.DeliveredAt,
		})
	}
	return out
}

type vesselView struct {
	ID         string     `json:"id"`
	MMSI       string     `json:"mmsi,omitempty"`
	Name       string     `json:"name,omitempty"`
	Latitude   *float64   `json:"latitude,omitempty"`
	Longitude  *float64   `json:"longitude,omitempty"`
	ObservedAt *time.Time `json:"observed_at,omitempty"`
}

func toVesselViews(vessels []models.Vessel) []vesselView {
	out := make([]vesselView, 0, len(vessels))
	for _, v := range vessels {
		view := vesselView{ID: v.ID, MMSI: v.MMSI, Name: v.Name}
		if p := v.LatestPosition; p != nil {
			view.Latitude = &p.Latitude
			view.Longitude = &p.Longitude
			view.ObservedAt = &p.ObservedAt
		}
		out = append(out, view)
	}
	return out
}

type policyStepView struct {
	StepNumber     int      `json:"step_number"`
	WaitMinutes    int      `json:"wait_minutes"`
	Channels       []string `json:"channels"`
	ContactRoles   []string `json:"contact_roles,omitempty"`
	TimeoutMinutes int      `json:"timeout_minutes,omitempty"`
}

type policyView struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	EventKinds     []string         `json:"event_kinds"`
	SeverityLevels []string         `json:"severity_levels"`
	Steps          []policyStepView `json:"steps"`
}

func toPolicyViews(policies []models.EscalationPolicy) []policyView {
	out := make([]policyView, 0, len(policies))
	for _, p := range policies {
		view := policyView{ID: p.ID, Name: p.Name}
		for _, k := range p.EventKinds {
			view.EventKinds = append(view.EventKinds, string(k))
		}
		for _, s := range p.SeverityLevels {
			view.SeverityLevels = append(view.SeverityLevels, string(s))
		}
		for _, st := range p.Steps {
			stepView := policyStepView{
				StepNumber:     st.StepNumber,
				WaitMinutes:    st.WaitMinutes,
				ContactRoles:   st.ContactRoles,
				TimeoutMinutes: st.TimeoutMinutes,
			}
			for _, ch := range st.Channels {
				stepView.Channels = append(stepView.Channels, string(ch))
			}
			view.Steps = append(view.Steps, stepView)
		}
		out = append(out, view)
	}
	return out
}
