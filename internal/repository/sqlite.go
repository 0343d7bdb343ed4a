package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mr1hm/vessel-alert-engine/internal/models"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// SQLite allows a single writer; serializing connections keeps the
	// check-then-insert in CreateAlertIfAbsent atomic.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating database: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS hazard_events (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			magnitude REAL,
			severity_level TEXT,
			wave_height_m REAL,
			occurred_at DATETIME NOT NULL,
			location_label TEXT,
			active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS vessels (
			id TEXT PRIMARY KEY,
			mmsi TEXT,
			name TEXT NOT NULL,
			latitude REAL,
			longitude REAL,
			observed_at DATETIME
		);

		CREATE TABLE IF NOT EXISTS contacts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			phone TEXT,
			email TEXT,
			whatsapp TEXT,
			active INTEGER NOT NULL DEFAULT 1
		);

		CREATE TABLE IF NOT EXISTS vessel_contacts (
			vessel_id TEXT NOT NULL,
			contact_id TEXT NOT NULL,
			role TEXT NOT NULL,
			priority INTEGER NOT NULL,
			notify_on TEXT NOT NULL,
			PRIMARY KEY (vessel_id, contact_id),
			FOREIGN KEY (vessel_id) REFERENCES vessels(id),
			FOREIGN KEY (contact_id) REFERENCES contacts(id)
		);

		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			vessel_id TEXT NOT NULL,
			event_id TEXT NOT NULL,
			event_kind TEXT NOT NULL,
			severity TEXT NOT NULL,
			distance_km REAL NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			message TEXT,
			recommendation TEXT,
			actions TEXT,
			warnings TEXT,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL,
			sent_at DATETIME,
			acknowledged_at DATETIME,
			tsunami_eta_min INTEGER,
			wave_height_m REAL
		);

		CREATE TABLE IF NOT EXISTS delivery_logs (
			id TEXT PRIMARY KEY,
			alert_id TEXT NOT NULL,
			contact_id TEXT NOT NULL,
			channel TEXT NOT NULL,
			destination TEXT NOT NULL,
			body TEXT,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_attempt_at DATETIME,
			provider_message_id TEXT,
			error_message TEXT,
			delivered_at DATETIME,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (alert_id) REFERENCES alerts(id)
		);

		CREATE TABLE IF NOT EXISTS escalation_policies (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			event_kinds TEXT NOT NULL,
			severity_levels TEXT NOT NULL,
			steps TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS escalation_runs (
			id TEXT PRIMARY KEY,
			alert_id TEXT NOT NULL UNIQUE,
			policy_id TEXT NOT NULL,
			current_step INTEGER NOT NULL,
			next_fire_at DATETIME NOT NULL,
			halted_at DATETIME,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (alert_id) REFERENCES alerts(id),
			FOREIGN KEY (policy_id) REFERENCES escalation_policies(id)
		);

		CREATE INDEX IF NOT EXISTS idx_events_active ON hazard_events(active);
		CREATE INDEX IF NOT EXISTS idx_alerts_pair ON alerts(vessel_id, event_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
		CREATE INDEX IF NOT EXISTS idx_deliveries_alert ON delivery_logs(alert_id);
		CREATE INDEX IF NOT EXISTS idx_deliveries_status ON delivery_logs(status);
		CREATE INDEX IF NOT EXISTS idx_runs_fire ON escalation_runs(next_fire_at);
  	`

	_, err := s.db.Exec(schema)
	return err
}

// SeedDefaultPolicies inserts the stock escalation policies when the
// policies table is empty, so a fresh deployment escalates out of the
// box.
func (s *SQLiteStore) SeedDefaultPolicies(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM escalation_policies`).Scan(&count); err != nil {
		return fmt.Errorf("error counting policies: %w", err)
	}
	if count > 0 {
		return nil
	}

	defaults := []*models.EscalationPolicy{
		{
			ID:             uuid.NewString(),
			Name:           "critical-immediate",
			EventKinds:     []models.HazardKind{models.HazardEarthquake, models.HazardTsunami},
			SeverityLevels: []models.Severity{models.SeverityCritical},
			Steps: []models.EscalationStep{
				{StepNumber: 0, WaitMinutes: 0, Channels: []models.Channel{models.ChannelSMS, models.ChannelWhatsApp}, ContactRoles: []string{"captain"}, TimeoutMinutes: 10},
				{StepNumber: 1, WaitMinutes: 15, Channels: []models.Channel{models.ChannelSMS, models.ChannelVoice}, ContactRoles: []string{"captain", "owner"}, TimeoutMinutes: 15},
				{StepNumber: 2, WaitMinutes: 30, Channels: []models.Channel{models.ChannelSMS, models.ChannelVoice, models.ChannelEmail}, ContactRoles: []string{"captain", "owner", "shore-ops"}},
			},
		},
		{
			ID:             uuid.NewString(),
			Name:           "high-staged",
			EventKinds:     []models.HazardKind{models.HazardEarthquake, models.HazardTsunami},
			SeverityLevels: []models.Severity{models.SeverityHigh},
			Steps: []models.EscalationStep{
				{StepNumber: 0, WaitMinutes: 0, Channels: []models.Channel{models.ChannelSMS}, ContactRoles: []string{"captain"}, TimeoutMinutes: 30},
				{StepNumber: 1, WaitMinutes: 60, Channels: []models.Channel{models.ChannelSMS, models.ChannelEmail}, ContactRoles: []string{"captain", "owner"}},
			},
		},
	}

	for _, p := range defaults {
		if err := s.AddPolicy(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
