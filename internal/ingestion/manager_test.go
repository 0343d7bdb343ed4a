package ingestion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/mr1hm/vessel-alert-engine/internal/config"
	"github.com/mr1hm/vessel-alert-engine/internal/models"
	"github.com/mr1hm/vessel-alert-engine/internal/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockIngestStore implements Store in memory.
type mockIngestStore struct {
	mu      sync.Mutex
	events  map[string]*models.HazardEvent
	vessels map[string]*models.Vessel
}

func newMockIngestStore() *mockIngestStore {
	return &mockIngestStore{
		events:  make(map[string]*models.HazardEvent),
		vessels: make(map[string]*models.Vessel),
	}
}

func (m *mockIngestStore) UpsertEvent(ctx context.Context, e *models.HazardEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.ID] = e
	return nil
}

func (m *mockIngestStore) GetEvent(ctx context.Context, id string) (*models.HazardEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return e, nil
}

func (m *mockIngestStore) ListActiveEvents(ctx context.Context) ([]models.HazardEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.HazardEvent
	for _, e := range m.events {
		if e.Active {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *mockIngestStore) DeactivateEvent(ctx context.Context, id string) error { return nil }

func (m *mockIngestStore) UpsertVessel(ctx context.Context, v *models.Vessel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vessels[v.ID] = v
	return nil
}

func (m *mockIngestStore) GetVessel(ctx context.Context, id string) (*models.Vessel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vessels[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return v, nil
}

func (m *mockIngestStore) ListVessels(ctx context.Context) ([]models.Vessel, error) { return nil, nil }
func (m *mockIngestStore) ListVesselsSeenSince(ctx context.Context, cutoff time.Time) ([]models.Vessel, error) {
	return nil, nil
}

func (m *mockIngestStore) RecordPosition(ctx context.Context, vesselID string, pos models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vessels[vesselID]
	if !ok {
		return repository.ErrNotFound
	}
	v.LatestPosition = &pos
	return nil
}

func (m *mockIngestStore) eventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func testConfig() *config.Config {
	return &config.Config{
		Worker: config.WorkerConfig{Count: 2, BufferSize: 16},
		Sources: config.SourcesConfig{
			HazardFeedPollInterval: time.Minute,
			PositionsPollInterval:  time.Minute,
		},
	}
}

const feedBody = `{
	"features": [
		{
			"id": "eq1",
			"properties": {"mag": 7.5, "place": "off Chiba", "time": 1767225600000, "title": "M7.5 off Chiba", "tsunami": 1, "alert": "red"},
			"geometry": {"coordinates": [139.8, 35.5, 30.0]}
		},
		{
			"id": "eq2",
			"properties": {"mag": 4.1, "place": "Aleutians", "time": 1767225700000, "title": "M4.1 Aleutians", "tsunami": 0},
			"geometry": {"coordinates": [-175.0, 52.0, 10.0]}
		}
	]
}`

func TestPollHazardFeed_NormalizesEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	store := newMockIngestStore()
	mgr := NewManager(testConfig(), store)

	ctx, cancel := context.WithCancel(context.Background())
	mgr.pool.Start(ctx)

	count, err := mgr.pollHazardFeed(ctx, srv.URL)
	if err != nil {
		t.Fatalf("pollHazardFeed failed: %v", err)
	}
	// Two quakes plus one tsunami companion.
	if count != 3 {
		t.Errorf("expected 3 normalized events, got %d", count)
	}

	waitFor(t, func() bool { return store.eventCount() == 3 })

	quake, err := store.GetEvent(ctx, "feed_eq1")
	if err != nil {
		t.Fatalf("missing quake event: %v", err)
	}
	if quake.Kind != models.HazardEarthquake || quake.Magnitude != 7.5 {
		t.Errorf("bad quake mapping: %+v", quake)
	}
	if quake.Latitude != 35.5 || quake.Longitude != 139.8 {
		t.Errorf("coordinates must map [lon, lat]: %+v", quake)
	}

	wave, err := store.GetEvent(ctx, "feed_eq1_tsunami")
	if err != nil {
		t.Fatalf("missing tsunami companion event: %v", err)
	}
	if wave.Kind != models.HazardTsunami || wave.SeverityLevel != "red" {
		t.Errorf("bad tsunami mapping: %+v", wave)
	}

	cancel()
	mgr.pool.Stop()
}

func TestPollHazardFeed_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	store := newMockIngestStore()
	mgr := NewManager(testConfig(), store)

	if _, err := mgr.pollHazardFeed(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for non-200 response")
	}
	if store.eventCount() != 0 {
		t.Error("failed poll must not store events")
	}
}

func TestPollPositions_RegistersUnknownVessel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"vessel_id": "v1", "mmsi": "367001234", "name": "MV Pacific Star", "latitude": 35.0, "longitude": 140.0, "observed_at": 1767225600000},
			{"vessel_id": "", "latitude": 1, "longitude": 1, "observed_at": 1},
			{"vessel_id": "bad", "latitude": 99.0, "longitude": 500.0, "observed_at": 1}
		]`))
	}))
	defer srv.Close()

	store := newMockIngestStore()
	mgr := NewManager(testConfig(), store)

	ctx, cancel := context.WithCancel(context.Background())
	mgr.pool.Start(ctx)

	count, err := mgr.pollPositions(ctx, srv.URL)
	if err != nil {
		t.Fatalf("pollPositions failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 accepted record, got %d", count)
	}

	waitFor(t, func() bool {
		v, err := store.GetVessel(ctx, "v1")
		return err == nil && v.LatestPosition != nil
	})

	v, _ := store.GetVessel(ctx, "v1")
	if v.Name != "MV Pacific Star" || v.LatestPosition.Latitude != 35.0 {
		t.Errorf("bad vessel mapping: %+v", v)
	}

	cancel()
	mgr.pool.Stop()
}

func TestManager_StartStop(t *testing.T) {
	cfg := testConfig()
	cfg.Sources.HazardFeedEnabled = false
	cfg.Sources.PositionsEnabled = false

	store := newMockIngestStore()
	mgr := NewManager(cfg, store)

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)

	cancel()
	mgr.Stop()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
