package models

// Severity is the danger tier assigned to a vessel relative to a hazard
// event. Tiers are strictly ordered: low < moderate < high < critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityModerate: 2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the ordinal of s, or 0 for an unknown severity.
func (s Severity) Rank() int {
	return severityRank[s]
}

// Valid reports whether s is one of the four known tiers.
func (s Severity) Valid() bool {
	return severityRank[s] != 0
}

// AtLeast reports whether s is equal to or more severe than other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// Severities lists all tiers in ascending order.
func Severities() []Severity {
	return []Severity{SeverityLow, SeverityModerate, SeverityHigh, SeverityCritical}
}

type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelVoice    Channel = "voice"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelSMS, ChannelEmail, ChannelWhatsApp, ChannelVoice:
		return true
	}
	return false
}
