package models

import "time"

type HazardKind string

const (
	HazardEarthquake HazardKind = "earthquake"
	HazardTsunami    HazardKind = "tsunami"
)

func (k HazardKind) Valid() bool {
	return k == HazardEarthquake || k == HazardTsunami
}

type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// HazardEvent is an earthquake or tsunami occurrence produced by the
// ingestion adapters. The engine only reads these; they become inactive
// through upstream cancellation or TTL.
type HazardEvent struct {
	ID               string
	Kind             HazardKind
	Latitude         float64
	Longitude        float64
	Magnitude        float64 // Richter scale, earthquakes only
	SeverityLevel    string  // tsunami advisory level from the feed
	WaveHeightMeters float64 // tsunami only
	OccurredAt       time.Time
	LocationLabel    string
	Active           bool
	CreatedAt        time.Time // when we ingested it
}

func (e *HazardEvent) Coordinates() Coordinates {
	return Coordinates{Latitude: e.Latitude, Longitude: e.Longitude}
}
