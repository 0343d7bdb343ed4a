package geo

import (
	"math"
	"sort"

	"github.com/mr1hm/vessel-alert-engine/internal/models"
)

const earthRadiusKm = 6371.0

// DistanceKm computes the great-circle distance between two points
// using the haversine formula on a spherical Earth.
func DistanceKm(a, b models.Coordinates) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// Bands maps each hazard kind to its severity tiers, each tier to the
// maximum distance (km) at which it applies. A smaller radius means a
// more severe tier. Defaults come from config; tests construct their own.
type Bands map[models.HazardKind]map[models.Severity]float64

// DefaultBands returns the stock radius tables.
func DefaultBands() Bands {
	return Bands{
		models.HazardEarthquake: {
			models.SeverityCritical: 100,
			models.SeverityHigh:     300,
			models.SeverityModerate: 500,
			models.SeverityLow:      1000,
		},
		models.HazardTsunami: {
			models.SeverityCritical: 50,
			models.SeverityHigh:     200,
			models.SeverityModerate: 500,
			models.SeverityLow:      1000,
		},
	}
}

// Classify maps (event kind, distance) to a severity tier. Tiers are
// checked in ascending radius order; the first band wide enough to
// contain the distance wins. A distance beyond the widest band returns
// ok=false: the vessel is unaffected.
func (b Bands) Classify(kind models.HazardKind, distanceKm float64) (models.Severity, bool) {
	bands, found := b[kind]
	if !found || distanceKm < 0 {
		return "", false
	}

	type tier struct {
		severity models.Severity
		radius   float64
	}
	tiers := make([]tier, 0, len(bands))
	for s, r := range bands {
		tiers = append(tiers, tier{s, r})
	}
	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].radius < tiers[j].radius
	})

	for _, t := range tiers {
		if distanceKm <= t.radius {
			return t.severity, true
		}
	}
	return "", false
}
