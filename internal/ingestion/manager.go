package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mr1hm/vessel-alert-engine/internal/config"
	"github.com/mr1hm/vessel-alert-engine/internal/models"
	"github.com/mr1hm/vessel-alert-engine/internal/repository"
	"github.com/mr1hm/vessel-alert-engine/internal/worker"
)

// Store is the write surface ingestion needs.
type Store interface {
	repository.HazardEventRepository
	repository.VesselRepository
}

// job carries one normalized record from a feed: either a hazard event
// or a vessel position update.
type job struct {
	event    *models.HazardEvent
	vesselID string
	mmsi     string
	name     string
	position *models.Position
}

// Manager runs the upstream pollers (seismic feed, vessel positions)
// and pushes normalized records into the store through a worker pool.
// The engine itself never parses wire formats; anything reaching the
// store is already a models value.
type Manager struct {
	cfg   *config.Config
	store Store
	pool  *worker.Pool[job]
	wg    sync.WaitGroup
}

func NewManager(cfg *config.Config, store Store) *Manager {
	m := &Manager{cfg: cfg, store: store}
	m.pool = worker.NewPool(cfg.Worker.Count, cfg.Worker.BufferSize, m.process)
	return m
}

func (m *Manager) Start(ctx context.Context) {
	m.pool.Start(ctx)

	if m.cfg.Sources.HazardFeedEnabled {
		m.wg.Add(1)
		go m.runPoller(ctx, "hazard-feed", m.cfg.Sources.HazardFeedURL, m.cfg.Sources.HazardFeedPollInterval, m.pollHazardFeed)
	}
	if m.cfg.Sources.PositionsEnabled {
		m.wg.Add(1)
		go m.runPoller(ctx, "positions", m.cfg.Sources.PositionsURL, m.cfg.Sources.PositionsPollInterval, m.pollPositions)
	}
}

func (m *Manager) runPoller(ctx context.Context, source, url string, interval time.Duration, poll func(context.Context, string) (int, error)) {
	defer m.wg.Done()
	slog.Info("starting poller", "source", source, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial poll
	m.pollOnce(ctx, source, url, poll)

	for {
		select {
		case <-ctx.Done():
			slog.Info("poller shutting down", "source", source)
			return
		case <-ticker.C:
			m.pollOnce(ctx, source, url, poll)
		}
	}
}

func (m *Manager) pollOnce(ctx context.Context, source, url string, poll func(context.Context, string) (int, error)) {
	count, err := poll(ctx, url)
	if err != nil {
		// A missing feed means this tick simply sees nothing; the
		// engine never misfires on ingestion gaps.
		slog.Error("poll failed", "source", source, "error", err)
		return
	}
	slog.Debug("poll complete", "source", source, "count", count)
}

func (m *Manager) process(ctx context.Context, j job) error {
	if j.event != nil {
		if err := m.store.UpsertEvent(ctx, j.event); err != nil {
			slog.Error("error upserting hazard event", "id", j.event.ID, "error", err)
			return err
		}
		return nil
	}

	if j.position != nil {
		err := m.store.RecordPosition(ctx, j.vesselID, *j.position)
		if errors.Is(err, repository.ErrNotFound) {
			// First sighting: register the vessel, then retry the fix.
			v := &models.Vessel{ID: j.vesselID, MMSI: j.mmsi, Name: j.name}
			if v.Name == "" {
				v.Name = j.mmsi
			}
			if err := m.store.UpsertVessel(ctx, v); err != nil {
				slog.Error("error registering vessel", "id", j.vesselID, "error", err)
				return err
			}
			err = m.store.RecordPosition(ctx, j.vesselID, *j.position)
		}
		if err != nil {
			slog.Error("error recording position", "vessel_id", j.vesselID, "error", err)
			return err
		}
	}
	return nil
}

func (m *Manager) Stop() {
	m.wg.Wait()
	m.pool.Stop()
	slog.Info("ingestion manager stopped")
}
