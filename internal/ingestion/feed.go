package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mr1hm/vessel-alert-engine/internal/models"
)

// The hazard feed speaks USGS-style GeoJSON. Earthquake features map
// straight to earthquake events; a set tsunami flag additionally emits
// a tsunami event anchored at the same epicenter.

type feedResponse struct {
	Features []feedFeature `json:"features"`
}

type feedFeature struct {
	ID         string         `json:"id"`
	Properties feedProperties `json:"properties"`
	Geometry   feedGeometry   `json:"geometry"`
}

type feedProperties struct {
	Mag     float64 `json:"mag"`
	Place   string  `json:"place"`
	Time    int64   `json:"time"` // unix millis
	Title   string  `json:"title"`
	Tsunami int     `json:"tsunami"` // 0 or 1
	Alert   string  `json:"alert"`   // advisory level, may be empty
}

type feedGeometry struct {
	Coordinates []float64 `json:"coordinates"` // [lon, lat, depth]
}

func (m *Manager) pollHazardFeed(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("error creating request: %w", err)
	}

	client := &http.Client{
		Timeout: 15 * time.Second,
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	var data feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return 0, fmt.Errorf("error decoding resp.Body: %w", err)
	}

	count := 0
	now := time.Now()
	for _, f := range data.Features {
		if len(f.Geometry.Coordinates) < 2 {
			continue
		}
		quake := &models.HazardEvent{
			ID:            "feed_" + f.ID,
			Kind:          models.HazardEarthquake,
			Longitude:     f.Geometry.Coordinates[0],
			Latitude:      f.Geometry.Coordinates[1],
			Magnitude:     f.Properties.Mag,
			OccurredAt:    time.UnixMilli(f.Properties.Time),
			LocationLabel: f.Properties.Place,
			Active:        true,
			CreatedAt:     now,
		}
		m.pool.Submit(job{event: quake})
		count++

		if f.Properties.Tsunami == 1 {
			wave := &models.HazardEvent{
				ID:            "feed_" + f.ID + "_tsunami",
				Kind:          models.HazardTsunami,
				Longitude:     quake.Longitude,
				Latitude:      quake.Latitude,
				SeverityLevel: f.Properties.Alert,
				OccurredAt:    quake.OccurredAt,
				LocationLabel: f.Properties.Place,
				Active:        true,
				CreatedAt:     now,
			}
			m.pool.Submit(job{event: wave})
			count++
		}
	}

	return count, nil
}
