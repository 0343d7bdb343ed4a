package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mr1hm/vessel-alert-engine/internal/models"
)

// The position source is a REST endpoint returning the fleet's latest
// fixes, one record per vessel.

type positionRecord struct {
	VesselID   string  `json:"vessel_id"`
	MMSI       string  `json:"mmsi"`
	Name       string  `json:"name"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	ObservedAt int64   `json:"observed_at"` // unix millis
}

func (m *Manager) pollPositions(ctx context.Context, url string) (int, error) {
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

	var records []positionRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return 0, fmt.Errorf("error decoding resp.Body: %w", err)
	}

	count := 0
	for _, r := range records {
		if r.VesselID == "" {
			continue
		}
		if r.Latitude < -90 || r.Latitude > 90 || r.Longitude < -180 || r.Longitude > 180 {
			continue
		}
		m.pool.Submit(job{
			vesselID: r.VesselID,
			mmsi:     r.MMSI,
			name:     r.Name,
			position: &models.Position{
				Latitude:   r.Latitude,
				Longitude:  r.Longitude,
				ObservedAt: time.UnixMilli(r.ObservedAt),
			},
		})
		count++
	}

	return count, nil
}
