package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mr1hm/vessel-alert-engine/internal/models"
)

func (s *SQLiteStore) UpsertEvent(ctx context.Context, e *models.HazardEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hazard_events
			(id, kind, latitude, longitude, magnitude, severity_level, wave_height_m, occurred_at, location_label, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			magnitude = excluded.magnitude,
			severity_level = excluded.severity_level,
			wave_height_m = excluded.wave_height_m,
			active = excluded.active`,
		e.ID, string(e.Kind), e.Latitude, e.Longitude, e.Magnitude, e.SeverityLevel,
		e.WaveHeightMeters, e.OccurredAt, e.LocationLabel, e.Active, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("error upserting hazard event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*models.HazardEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, latitude, longitude, magnitude, severity_level, wave_height_m, occurred_at, location_label, active, created_at
		FROM hazard_events WHERE id = ?`, id)
	return scanEvent(row)
}

func (s *SQLiteStore) ListActiveEvents(ctx context.Context) ([]models.HazardEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, latitude, longitude, magnitude, severity_level, wave_height_m, occurred_at, location_label, active, created_at
		FROM hazard_events WHERE active = 1 ORDER BY occurred_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("error listing active events: %w", err)
	}
	defer rows.Close()

	var out []models.HazardEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeactivateEvent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE hazard_events SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("error deactivating event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.HazardEvent, error) {
	var (
		e    models.HazardEvent
		kind string
	)
	err := row.Scan(&e.ID, &kind, &e.Latitude, &e.Longitude, &e.Magnitude,
		&e.SeverityLevel, &e.WaveHeightMeters, &e.OccurredAt, &e.LocationLabel,
		&e.Active, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning hazard event: %w", err)
	}
	e.Kind = models.HazardKind(kind)
	return &e, nil
}

func (s *SQLiteStore) UpsertVessel(ctx context.Context, v *models.Vessel) error {
	var lat, lon any
	var observed sql.NullTime
	if v.LatestPosition != nil {
		lat, lon = v.LatestPosition.Latitude, v.LatestPosition.Longitude
		observed = sql.NullTime{Time: v.LatestPosition.ObservedAt, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vessels (id, mmsi, name, latitude, longitude, observed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			mmsi = excluded.mmsi,
			name = excluded.name`,
		v.ID, v.MMSI, v.Name, lat, lon, observed)
	if err != nil {
		return fmt.Errorf("error upserting vessel: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetVessel(ctx context.Context, id string) (*models.Vessel, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, mmsi, name, latitude, longitude, observed_at FROM vessels WHERE id = ?`, id)
	return scanVessel(row)
}

func (s *SQLiteStore) ListVessels(ctx context.Context) ([]models.Vessel, error) {
	return s.queryVessels(ctx, `
		SELECT id, mmsi, name, latitude, longitude, observed_at FROM vessels ORDER BY name`)
}

func (s *SQLiteStore) ListVesselsSeenSince(ctx context.Context, cutoff time.Time) ([]models.Vessel, error) {
	return s.queryVessels(ctx, `
		SELECT id, mmsi, name, latitude, longitude, observed_at
		FROM vessels WHERE observed_at IS NOT NULL AND observed_at >= ? ORDER BY name`, cutoff)
}

func (s *SQLiteStore) queryVessels(ctx context.Context, query string, args ...any) ([]models.Vessel, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing vessels: %w", err)
	}
	defer rows.Close()

	var out []models.Vessel
	for rows.Next() {
		v, err := scanVessel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func scanVessel(row rowScanner) (*models.Vessel, error) {
	var (
		v        models.Vessel
		lat, lon sql.NullFloat64
		observed sql.NullTime
	)
	err := row.Scan(&v.ID, &v.MMSI, &v.Name, &lat, &lon, &observed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning vessel: %w", err)
	}
	if observed.Valid {
		v.LatestPosition = &models.Position{
			Latitude:   lat.Float64,
			Longitude:  lon.Float64,
			ObservedAt: observed.Time,
		}
	}
	return &v, nil
}

func (s *SQLiteStore) RecordPosition(ctx context.Context, vesselID string, pos models.Position) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE vessels SET latitude = ?, longitude = ?, observed_at = ? WHERE id = ?`,
		pos.Latitude, pos.Longitude, pos.ObservedAt, vesselID)
	if err != nil {
		return fmt.Errorf("error recording position: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) AddContact(ctx context.Context, c *models.Contact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (id, name, phone, email, whatsapp, active)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Phone, c.Email, c.WhatsApp, c.Active)
	if err != nil {
		return fmt.Errorf("error adding contact: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetContact(ctx context.Context, id string) (*models.Contact, error) {
	var c models.Contact
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, email, whatsapp, active FROM contacts WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.WhatsApp, &c.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting contact: %w", err)
	}
	return &c, nil
}

func (s *SQLiteStore) BindContact(ctx context.Context, b *models.VesselContactBinding) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vessel_contacts (vessel_id, contact_id, role, priority, notify_on)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(vessel_id, contact_id) DO UPDATE SET
			role = excluded.role,
			priority = excluded.priority,
			notify_on = excluded.notify_on`,
		b.VesselID, b.ContactID, b.Role, b.Priority, joinSeverities(b.NotifyOn))
	if err != nil {
		return fmt.Errorf("error binding contact: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListVesselContacts(ctx context.Context, vesselID string) ([]BoundContact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.phone, c.email, c.whatsapp, c.active,
		       b.vessel_id, b.role, b.priority, b.notify_on
		FROM vessel_contacts b
		JOIN contacts c ON c.id = b.contact_id
		WHERE b.vessel_id = ?`, vesselID)
	if err != nil {
		return nil, fmt.Errorf("error listing vessel contacts: %w", err)
	}
	defer rows.Close()

	var out []BoundContact
	for rows.Next() {
		var (
			bc       BoundContact
			notifyOn string
		)
		if err := rows.Scan(&bc.Contact.ID, &bc.Contact.Name, &bc.Contact.Phone,
			&bc.Contact.Email, &bc.Contact.WhatsApp, &bc.Contact.Active,
			&bc.Binding.VesselID, &bc.Binding.Role, &bc.Binding.Priority, &notifyOn); err != nil {
			return nil, fmt.Errorf("error scanning vessel contact: %w", err)
		}
		bc.Binding.ContactID = bc.Contact.ID
		bc.Binding.NotifyOn = splitSeverities(notifyOn)
		out = append(out, bc)
	}
	return out, rows.Err()
}
