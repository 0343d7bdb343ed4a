package escalation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/vessel-alert-engine/internal/models"
	"github.com/mr1hm/vessel-alert-engine/internal/repository"
)

// memStore implements the scheduler's Store in memory.
type memStore struct {
	mu       sync.Mutex
	alerts   map[string]*models.Alert
	policies map[string]*models.EscalationPolicy
	runs     map[string]*models.EscalationRun
}

func newMemStore() *memStore {
	return &memStore{
		alerts:   make(map[string]*models.Alert),
		policies: make(map[string]*models.EscalationPolicy),
		runs:     make(map[string]*models.EscalationRun),
	}
}

func (m *memStore) CreateAlertIfAbsent(ctx context.Context, a *models.Alert, window time.Duration) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[a.ID] = a
	return a, nil
}

func (m *memStore) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) ListAlerts(ctx context.Context, f repository.AlertFilter) ([]models.Alert, error) {
	return nil, nil
}

func (m *memStore) MarkAlertSent(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.alerts[id]; ok {
		a.Status = models.AlertStatusSent
		a.SentAt = &at
	}
	return nil
}

func (m *memStore) MarkAlertAcknowledged(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.alerts[id]; ok {
		a.Status = models.AlertStatusAcknowledged
		a.AcknowledgedAt = &at
	}
	return nil
}

func (m *memStore) AppendAlertWarning(ctx context.Context, id, warning string) error { return nil }

func (m *memStore) ExpireAlerts(ctx context.Context, now time.Time) (int64, error) { return 0, nil }

func (m *memStore) AddPolicy(ctx context.Context, p *models.EscalationPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[p.ID] = p
	return nil
}

func (m *memStore) GetPolicy(ctx context.Context, id string) (*models.EscalationPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.policies[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (m *memStore) ListPolicies(ctx context.Context) ([]models.EscalationPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.EscalationPolicy
	for _, p := range m.policies {
		out = append(out, *p)
	}
	return out, nil
}

func (m *memStore) CreateRun(ctx context.Context, r *models.EscalationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.runs[r.ID] = &cp
	return nil
}

func (m *memStore) GetRunByAlert(ctx context.Context, alertID string) (*models.EscalationRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.AlertID == alertID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) DueRuns(ctx context.Context, now time.Time) ([]models.EscalationRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.EscalationRun
	for _, r := range m.runs {
		if r.HaltedAt == nil && !r.NextFireAt.After(now) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) AdvanceRun(ctx context.Context, runID string, step int, nextFireAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok || r.HaltedAt != nil {
		return repository.ErrNotFound
	}
	r.CurrentStep = step
	r.NextFireAt = nextFireAt
	return nil
}

func (m *memStore) HaltRun(ctx context.Context, runID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok || r.HaltedAt != nil {
		return repository.ErrNotFound
	}
	r.HaltedAt = &at
	return nil
}

func (m *memStore) HaltRunByAlert(ctx context.Context, alertID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.AlertID == alertID && r.HaltedAt == nil {
			r.HaltedAt = &at
		}
	}
	return nil
}

// recordingDispatcher captures every dispatch batch.
type recordingDispatcher struct {
	mu      sync.Mutex
	batches []dispatchCall
}

type dispatchCall struct {
	at       time.Time
	channels []models.Channel
	contacts []models.ResolvedContact
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, alert *models.Alert, resolved []models.ResolvedContact, channelFilter []models.Channel) ([]models.DeliveryLog, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.batches = append(d.batches, dispatchCall{channels: channelFilter, contacts: resolved})
	return nil, nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.batches)
}

// staticResolver returns a fixed contact set.
type staticResolver struct {
	resolved []models.ResolvedContact
}

func (r *staticResolver) Resolve(ctx context.Context, vesselID string, severity models.Severity) ([]models.ResolvedContact, error) {
	return r.resolved, nil
}

func threeStepPolicy() *models.EscalationPolicy {
	return &models.EscalationPolicy{
		ID:             "pol-1",
		Name:           "three-step",
		EventKinds:     []models.HazardKind{models.HazardEarthquake},
		SeverityLevels: []models.Severity{models.SeverityCritical},
		Steps: []models.EscalationStep{
			{StepNumber: 0, WaitMinutes: 0, Channels: []models.Channel{models.ChannelSMS}, ContactRoles: []string{"captain"}},
			{StepNumber: 1, WaitMinutes: 15, Channels: []models.Channel{models.ChannelSMS, models.ChannelVoice}, ContactRoles: []string{"captain"}},
			{StepNumber: 2, WaitMinutes: 60, Channels: []models.Channel{models.ChannelVoice}, ContactRoles: []string{"captain"}},
		},
	}
}

func captain() models.ResolvedContact {
	return models.ResolvedContact{
		Contact:  models.Contact{ID: "c1", Name: "Captain", Phone: "+15550001", Active: true},
		Role:     "captain",
		Priority: 1,
		Channels: []models.Channel{models.ChannelSMS, models.ChannelVoice},
	}
}

func setupScheduler(t *testing.T) (*Scheduler, *memStore, *recordingDispatcher, *models.Alert, time.Time) {
	t.Helper()

	store := newMemStore()
	dispatcher := &recordingDispatcher{}
	resolver := &staticResolver{resolved: []models.ResolvedContact{captain()}}
	s := NewScheduler(store, resolver, dispatcher, time.Second)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	alert := &models.Alert{
		ID:        "alert-1",
		VesselID:  "v1",
		EventID:   "e1",
		EventKind: models.HazardEarthquake,
		Severity:  models.SeverityCritical,
		Status:    models.AlertStatusSent,
		CreatedAt: base,
		ExpiresAt: base.Add(24 * time.Hour),
	}
	store.alerts[alert.ID] = alert

	policy := threeStepPolicy()
	require.NoError(t, store.AddPolicy(context.Background(), policy))

	_, err := s.InitRun(context.Background(), alert, policy)
	require.NoError(t, err)

	return s, store, dispatcher, alert, base
}

func TestScheduler_FiresAllStepsAtOffsets(t *testing.T) {
	s, store, dispatcher, _, base := setupScheduler(t)
	ctx := context.Background()

	// Step 0: wait 0, due immediately.
	s.runDue(ctx, base)
	assert.Equal(t, 1, dispatcher.count())

	// Not yet due for step 1.
	s.runDue(ctx, base.Add(14*time.Minute))
	assert.Equal(t, 1, dispatcher.count())

	// Step 1 at +15m.
	s.runDue(ctx, base.Add(15*time.Minute))
	assert.Equal(t, 2, dispatcher.count())

	// Step 2 at +15m+60m.
	s.runDue(ctx, base.Add(75*time.Minute))
	assert.Equal(t, 3, dispatcher.count())

	// Policy exhausted: the run halts and nothing more fires.
	run, err := store.GetRunByAlert(ctx, "alert-1")
	require.NoError(t, err)
	assert.True(t, run.Halted())

	s.runDue(ctx, base.Add(10*time.Hour))
	assert.Equal(t, 3, dispatcher.count())
}

func TestScheduler_StepChannelsReachDispatcher(t *testing.T) {
	s, _, dispatcher, _, base := setupScheduler(t)
	ctx := context.Background()

	s.runDue(ctx, base)
	s.runDue(ctx, base.Add(15*time.Minute))

	require.Equal(t, 2, dispatcher.count())
	assert.Equal(t, []models.Channel{models.ChannelSMS}, dispatcher.batches[0].channels)
	assert.Equal(t, []models.Channel{models.ChannelSMS, models.ChannelVoice}, dispatcher.batches[1].channels)
}

func TestScheduler_AcknowledgmentHaltsFutureSteps(t *testing.T) {
	s, store, dispatcher, alert, base := setupScheduler(t)
	ctx := context.Background()

	s.runDue(ctx, base)
	s.runDue(ctx, base.Add(15*time.Minute))
	require.Equal(t, 2, dispatcher.count())

	// Acknowledge after step 1 fired.
	ackAt := base.Add(20 * time.Minute)
	require.NoError(t, store.MarkAlertAcknowledged(ctx, alert.ID, ackAt))
	require.NoError(t, s.Halt(ctx, alert.ID))

	// Steps 2 would be due; nothing fires.
	s.runDue(ctx, base.Add(75*time.Minute))
	s.runDue(ctx, base.Add(5*time.Hour))
	assert.Equal(t, 2, dispatcher.count())
}

func TestScheduler_HaltOnAcknowledgedAlertWithoutExplicitHalt(t *testing.T) {
	// Even when only the alert row was acknowledged (no Halt call), the
	// per-fire status check stops the run.
	s, store, dispatcher, alert, base := setupScheduler(t)
	ctx := context.Background()

	s.runDue(ctx, base)
	require.Equal(t, 1, dispatcher.count())

	require.NoError(t, store.MarkAlertAcknowledged(ctx, alert.ID, base.Add(time.Minute)))

	s.runDue(ctx, base.Add(15*time.Minute))
	assert.Equal(t, 1, dispatcher.count())

	run, err := store.GetRunByAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.True(t, run.Halted())
}

func TestScheduler_ExpiredAlertHaltsRun(t *testing.T) {
	s, store, dispatcher, _, base := setupScheduler(t)
	ctx := context.Background()

	s.runDue(ctx, base)
	require.Equal(t, 1, dispatcher.count())

	// Past the alert TTL the run stops by lazy expiry.
	s.runDue(ctx, base.Add(25*time.Hour))
	assert.Equal(t, 1, dispatcher.count())

	run, err := store.GetRunByAlert(ctx, "alert-1")
	require.NoError(t, err)
	assert.True(t, run.Halted())
}

func TestScheduler_TimeoutExtendsGapToNextStep(t *testing.T) {
	store := newMemStore()
	dispatcher := &recordingDispatcher{}
	resolver := &staticResolver{resolved: []models.ResolvedContact{captain()}}
	s := NewScheduler(store, resolver, dispatcher, time.Second)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	alert := &models.Alert{
		ID: "alert-1", VesselID: "v1", EventID: "e1",
		EventKind: models.HazardEarthquake, Severity: models.SeverityCritical,
		Status: models.AlertStatusSent, CreatedAt: base, ExpiresAt: base.Add(24 * time.Hour),
	}
	store.alerts[alert.ID] = alert

	policy := &models.EscalationPolicy{
		ID: "pol-t", Name: "with-timeout",
		EventKinds:     []models.HazardKind{models.HazardEarthquake},
		SeverityLevels: []models.Severity{models.SeverityCritical},
		Steps: []models.EscalationStep{
			{StepNumber: 0, WaitMinutes: 0, Channels: []models.Channel{models.ChannelSMS}, ContactRoles: []string{"captain"}, TimeoutMinutes: 30},
			{StepNumber: 1, WaitMinutes: 10, Channels: []models.Channel{models.ChannelVoice}, ContactRoles: []string{"captain"}},
		},
	}
	require.NoError(t, store.AddPolicy(context.Background(), policy))
	_, err := s.InitRun(context.Background(), alert, policy)
	require.NoError(t, err)

	ctx := context.Background()
	s.runDue(ctx, base)
	require.Equal(t, 1, dispatcher.count())

	// Step 1 waits 10 minutes, but step 0's 30-minute acknowledgment
	// timeout is longer and wins.
	s.runDue(ctx, base.Add(10*time.Minute))
	assert.Equal(t, 1, dispatcher.count())

	s.runDue(ctx, base.Add(30*time.Minute))
	assert.Equal(t, 2, dispatcher.count())
}

func TestScheduler_NoContactsForStepRolesStillAdvances(t *testing.T) {
	store := newMemStore()
	dispatcher := &recordingDispatcher{}
	resolver := &staticResolver{resolved: nil}
	s := NewScheduler(store, resolver, dispatcher, time.Second)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	alert := &models.Alert{
		ID: "alert-1", VesselID: "v1", EventID: "e1",
		EventKind: models.HazardEarthquake, Severity: models.SeverityCritical,
		Status: models.AlertStatusSent, CreatedAt: base, ExpiresAt: base.Add(24 * time.Hour),
	}
	store.alerts[alert.ID] = alert

	policy := threeStepPolicy()
	require.NoError(t, store.AddPolicy(context.Background(), policy))
	_, err := s.InitRun(context.Background(), alert, policy)
	require.NoError(t, err)

	ctx := context.Background()
	s.runDue(ctx, base)
	assert.Equal(t, 0, dispatcher.count())

	run, err := store.GetRunByAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, run.CurrentStep, "run advances even when a step reaches nobody")
}

func TestSelectPolicy(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	critical := threeStepPolicy()
	tsunami := &models.EscalationPolicy{
		ID: "pol-2", Name: "tsunami-high",
		EventKinds:     []models.HazardKind{models.HazardTsunami},
		SeverityLevels: []models.Severity{models.SeverityHigh},
		Steps:          []models.EscalationStep{{StepNumber: 0, Channels: []models.Channel{models.ChannelSMS}}},
	}
	require.NoError(t, store.AddPolicy(ctx, critical))
	require.NoError(t, store.AddPolicy(ctx, tsunami))

	got, err := SelectPolicy(ctx, store, models.HazardEarthquake, models.SeverityCritical, "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, critical.ID, got.ID)

	// No match.
	got, err = SelectPolicy(ctx, store, models.HazardTsunami, models.SeverityLow, "")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Explicit override beats matching.
	got, err = SelectPolicy(ctx, store, models.HazardEarthquake, models.SeverityCritical, tsunami.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, tsunami.ID, got.ID)
}
