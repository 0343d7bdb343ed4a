package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mr1hm/vessel-alert-engine/internal/alerts"
	"github.com/mr1hm/vessel-alert-engine/internal/geo"
	"github.com/mr1hm/vessel-alert-engine/internal/models"
	"github.com/mr1hm/vessel-alert-engine/internal/repository"
	"github.com/mr1hm/vessel-alert-engine/internal/worker"
)

// AlertCreator is the slice of the lifecycle manager the monitor
// drives.
type AlertCreator interface {
	CreateAndRoute(ctx context.Context, req alerts.CreateRequest) (*alerts.CreateResult, error)
}

// FleetStore is the read surface the sweep needs.
type FleetStore interface {
	repository.HazardEventRepository
	repository.VesselRepository
}

type pairJob struct {
	vessel models.Vessel
	event  models.HazardEvent
}

// Monitor periodically evaluates every (vessel, active event) pair and
// hands in-range pairs to the lifecycle manager. Pair checks run on a
// bounded worker pool; each check touches only its own pair, and the
// duplicate suppressor makes overlapping sweeps harmless.
type Monitor struct {
	store          FleetStore
	creator        AlertCreator
	bands          geo.Bands
	sweepInterval  time.Duration
	positionMaxAge time.Duration
	pool           *worker.Pool[pairJob]
	ticks          uint64
	now            func() time.Time
	wg             sync.WaitGroup
}

func NewMonitor(store FleetStore, creator AlertCreator, bands geo.Bands, sweepInterval, positionMaxAge time.Duration, workers, bufferSize int) *Monitor {
	m := &Monitor{
		store:          store,
		creator:        creator,
		bands:          bands,
		sweepInterval:  sweepInterval,
		positionMaxAge: positionMaxAge,
		now:            time.Now,
	}
	m.pool = worker.NewPool(workers, bufferSize, m.check)
	return m
}

func (m *Monitor) Start(ctx context.Context) {
	m.pool.Start(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		slog.Info("proximity monitor starting", "interval", m.sweepInterval)

		ticker := time.NewTicker(m.sweepInterval)
		defer ticker.Stop()

		// Initial sweep
		m.sweep(ctx)

		for {
			select {
			case <-ctx.Done():
				slog.Info("proximity monitor shutting down")
				return
			case <-ticker.C:
				m.sweep(ctx)
			}
		}
	}()
}

func (m *Monitor) Stop() {
	m.wg.Wait()
	m.pool.Stop()
	slog.Info("proximity monitor stopped")
}

// sweep enqueues the full cross product of active events and recently
// seen vessels. Event counts are tens at worst and fleets are bounded,
// so the O(events x vessels) scan needs no spatial index.
func (m *Monitor) sweep(ctx context.Context) {
	m.ticks++

	events, err := m.store.ListActiveEvents(ctx)
	if err != nil {
		slog.Error("sweep: error listing active events", "error", err)
		return
	}
	if len(events) == 0 {
		return
	}

	cutoff := m.now().Add(-m.positionMaxAge)
	vessels, err := m.store.ListVesselsSeenSince(ctx, cutoff)
	if err != nil {
		slog.Error("sweep: error listing vessels", "error", err)
		return
	}

	pairs := 0
	for _, e := range events {
		for _, v := range vessels {
			m.pool.Submit(pairJob{vessel: v, event: e})
			pairs++
		}
	}
	slog.Debug("sweep complete", "tick", m.ticks, "events", len(events), "vessels", len(vessels), "pairs", pairs)
}

// check evaluates one (vessel, event) pair and routes an alert when the
// vessel sits inside a danger band.
func (m *Monitor) check(ctx context.Context, job pairJob) error {
	pos := job.vessel.LatestPosition
	if pos == nil {
		return nil
	}

	distance := geo.DistanceKm(
		models.Coordinates{Latitude: pos.Latitude, Longitude: pos.Longitude},
		job.event.Coordinates(),
	)
	severity, affected := m.bands.Classify(job.event.Kind, distance)
	if !affected {
		return nil
	}

	res, err := m.creator.CreateAndRoute(ctx, alerts.CreateRequest{
		VesselID:    job.vessel.ID,
		EventID:     job.event.ID,
		EventKind:   job.event.Kind,
		Severity:    severity,
		DistanceKm:  distance,
		Coordinates: models.Coordinates{Latitude: pos.Latitude, Longitude: pos.Longitude},
	})
	if err != nil {
		slog.Error("proximity check: createAndRoute failed",
			"vessel_id", job.vessel.ID, "event_id", job.event.ID, "error", err)
		return err
	}
	if !res.IsDuplicate {
		slog.Info("proximity alert raised", "vessel_id", job.vessel.ID,
			"event_id", job.event.ID, "severity", severity, "distance_km", distance)
	}
	return nil
}
