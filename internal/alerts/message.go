package alerts

import (
	"fmt"

	"github.com/mr1hm/vessel-alert-engine/internal/models"
)

// composeMessage builds the operator-facing alert text when the caller
// did not supply one.
func composeMessage(vessel *models.Vessel, event *models.HazardEvent, severity models.Severity, distanceKm float64) string {
	switch event.Kind {
	case models.HazardTsunami:
		return fmt.Sprintf("%s tsunami alert: vessel %s is %.0f km from %s",
			severity, vessel.Name, distanceKm, event.LocationLabel)
	default:
		return fmt.Sprintf("%s earthquake alert: M%.1f near %s, vessel %s %.0f km from epicenter",
			severity, event.Magnitude, event.LocationLabel, vessel.Name, distanceKm)
	}
}

func recommendationFor(kind models.HazardKind, severity models.Severity) string {
	if kind == models.HazardTsunami {
		switch severity {
		case models.SeverityCritical, models.SeverityHigh:
			return "Proceed to deep water immediately; do not approach harbors or shallow coastal areas."
		default:
			return "Monitor tsunami advisories and stay clear of coastal shallows."
		}
	}
	switch severity {
	case models.SeverityCritical:
		return "Expect aftershocks and possible tsunami; verify crew safety and prepare for evasive routing."
	case models.SeverityHigh:
		return "Check for local tsunami advisories and confirm vessel systems are undamaged."
	default:
		return "No immediate action required; keep watch on follow-up bulletins."
	}
}

func actionsFor(severity models.Severity) []string {
	switch severity {
	case models.SeverityCritical:
		return []string{"confirm crew muster", "verify communications", "review evacuation route", "acknowledge alert"}
	case models.SeverityHigh:
		return []string{"verify communications", "review position", "acknowledge alert"}
	default:
		return []string{"acknowledge alert"}
	}
}
