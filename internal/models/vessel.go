package models

import "time"

type Position struct {
	Latitude   float64
	Longitude  float64
	ObservedAt time.Time
}

// Vessel is a tracked ship. Only position-update ingestion mutates it;
// the engine reads the latest position.
type Vessel struct {
	ID             string
	MMSI           string
	Name           string
	LatestPosition *Position
}

// Contact is a notifiable person.
type Contact struct {
	ID       string
	Name     string
	Phone    string
	Email    string
	WhatsApp string
	Active   bool
}

// Channels returns the channels this contact can be reached on, derived
// from which destinations are set. Voice shares the phone number.
func (c *Contact) Channels() []Channel {
	var out []Channel
	if c.Phone != "" {
		out = append(out, ChannelSMS, ChannelVoice)
	}
	if c.Email != "" {
		out = append(out, ChannelEmail)
	}
	if c.WhatsApp != "" {
		out = append(out, ChannelWhatsApp)
	}
	return out
}

// Destination returns the address for a given channel, or "" if the
// contact cannot be reached that way.
func (c *Contact) Destination(ch Channel) string {
	switch ch {
	case ChannelSMS, ChannelVoice:
		return c.Phone
	case ChannelEmail:
		return c.Email
	case ChannelWhatsApp:
		return c.WhatsApp
	}
	return ""
}

// VesselContactBinding associates a contact with a vessel. Priority is
// ascending, 1 = highest. NotifyOn holds the severities the contact
// wants to hear about.
type VesselContactBinding struct {
	VesselID  string
	ContactID string
	Role      string
	Priority  int
	NotifyOn  []Severity
}

func (b *VesselContactBinding) WantsSeverity(s Severity) bool {
	for _, want := range b.NotifyOn {
		if want == s {
			return true
		}
	}
	return false
}

// ResolvedContact is a contact selected for notification, carrying its
// binding metadata and the channels it can actually be reached on.
type ResolvedContact struct {
	Contact  Contact
	Role     string
	Priority int
	Channels []Channel
}
