package models

import "time"

// EscalationStep is one timed stage of a policy. WaitMinutes is the
// delay before the step fires, counted from the previous step (or from
// alert creation for step 0). TimeoutMinutes optionally extends the gap
// to the next step so operators have time to acknowledge.
type EscalationStep struct {
	StepNumber     int
	WaitMinutes    int
	Channels       []Channel
	ContactRoles   []string
	TimeoutMinutes int
}

// EscalationPolicy is read-only configuration selecting how alerts of a
// given kind and severity escalate over time.
type EscalationPolicy struct {
	ID             string
	Name           string
	EventKinds     []HazardKind
	SeverityLevels []Severity
	Steps          []EscalationStep
}

// Matches reports whether the policy applies to an alert of the given
// kind and severity.
func (p *EscalationPolicy) Matches(kind HazardKind, severity Severity) bool {
	kindOK := false
	for _, k := range p.EventKinds {
		if k == kind {
			kindOK = true
			break
		}
	}
	if !kindOK {
		return false
	}
	for _, s := range p.SeverityLevels {
		if s == severity {
			return true
		}
	}
	return false
}

// EscalationRun tracks one alert's progress through a policy. NextFireAt
// is persisted so a restart never loses a scheduled step.
type EscalationRun struct {
	ID          string
	AlertID     string
	PolicyID    string
	CurrentStep int
	NextFireAt  time.Time
	HaltedAt    *time.Time
	CreatedAt   time.Time
}

func (r *EscalationRun) Halted() bool {
	return r.HaltedAt != nil
}
