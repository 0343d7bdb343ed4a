package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mr1hm/vessel-alert-engine/internal/models"
)

const alertColumns = `id, vessel_id, event_id, event_kind, severity, distance_km,
	latitude, longitude, message, recommendation, actions, warnings, status,
	created_at, expires_at, sent_at, acknowledged_at, tsunami_eta_min, wave_height_m`

// CreateAlertIfAbsent runs the duplicate check and the insert inside one
// transaction. With a single serialized connection (see NewSQLiteStore)
// no second trigger for the same pair can interleave between the check
// and the insert, so concurrent createAndRoute calls yield one row.
func (s *SQLiteStore) CreateAlertIfAbsent(ctx context.Context, a *models.Alert, window time.Duration) (*models.Alert, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	cutoff := a.CreatedAt.Add(-window)
	row := tx.QueryRowContext(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE vessel_id = ? AND event_id = ?
		  AND status IN ('pending', 'sent', 'acknowledged')
		  AND created_at >= ?
		ORDER BY created_at DESC LIMIT 1`,
		a.VesselID, a.EventID, cutoff)

	existing, err := scanAlert(row)
	if err == nil {
		return existing, ErrDuplicateAlert
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.VesselID, a.EventID, string(a.EventKind), string(a.Severity), a.DistanceKm,
		a.Coordinates.Latitude, a.Coordinates.Longitude, a.Message, a.Recommendation,
		marshalStrings(a.Actions), marshalStrings(a.Warnings), string(a.Status),
		a.CreatedAt, a.ExpiresAt, nullTime(a.SentAt), nullTime(a.AcknowledgedAt),
		nullInt(a.TsunamiEtaMin), nullFloat(a.WaveHeightMeters))
	if err != nil {
		return nil, fmt.Errorf("error inserting alert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing alert: %w", err)
	}
	return a, nil
}

func (s *SQLiteStore) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	return scanAlert(row)
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, f AlertFilter) ([]models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE 1=1`
	var args []any

	if f.VesselID != nil {
		query += ` AND vessel_id = ?`
		args = append(args, *f.VesselID)
	}
	if f.EventID != nil {
		query += ` AND event_id = ?`
		args = append(args, *f.EventID)
	}
	if f.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*f.Status))
	}
	if f.Severity != nil {
		query += ` AND severity = ?`
		args = append(args, string(*f.Severity))
	}
	if f.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, *f.Since)
	}

	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, f.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing alerts: %w", err)
	}
	defer rows.Close()

	var out []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MarkAlertSent(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET status = 'sent', sent_at = ? WHERE id = ? AND status = 'pending'`, at, id)
	if err != nil {
		return fmt.Errorf("error marking alert sent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) MarkAlertAcknowledged(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET status = 'acknowledged', acknowledged_at = ?
		WHERE id = ? AND status IN ('pending', 'sent')`, at, id)
	if err != nil {
		return fmt.Errorf("error acknowledging alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) AppendAlertWarning(ctx context.Context, id string, warning string) error {
	a, err := s.GetAlert(ctx, id)
	if err != nil {
		return err
	}
	warnings := append(a.Warnings, warning)
	_, err = s.db.ExecContext(ctx, `UPDATE alerts SET warnings = ? WHERE id = ?`,
		marshalStrings(warnings), id)
	if err != nil {
		return fmt.Errorf("error appending alert warning: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ExpireAlerts(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET status = 'expired'
		WHERE status IN ('pending', 'sent') AND expires_at < ?`, now)
	if err != nil {
		return 0, fmt.Errorf("error expiring alerts: %w", err)
	}
	return res.RowsAffected()
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var (
		a              models.Alert
		kind, sev, st  string
		actions, warns string
		sentAt, ackAt  sql.NullTime
		etaMin         sql.NullInt64
		waveHeight     sql.NullFloat64
	)
	err := row.Scan(&a.ID, &a.VesselID, &a.EventID, &kind, &sev, &a.DistanceKm,
		&a.Coordinates.Latitude, &a.Coordinates.Longitude, &a.Message, &a.Recommendation,
		&actions, &warns, &st, &a.CreatedAt, &a.ExpiresAt, &sentAt, &ackAt,
		&etaMin, &waveHeight)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning alert: %w", err)
	}

	a.EventKind = models.HazardKind(kind)
	a.Severity = models.Severity(sev)
	a.Status = models.AlertStatus(st)
	a.Actions = unmarshalStrings(actions)
	a.Warnings = unmarshalStrings(warns)
	a.SentAt = timePtr(sentAt)
	a.AcknowledgedAt = timePtr(ackAt)
	if etaMin.Valid {
		v := int(etaMin.Int64)
		a.TsunamiEtaMin = &v
	}
	if waveHeight.Valid {
		v := waveHeight.Float64
		a.WaveHeightMeters = &v
	}
	return &a, nil
}

func (s *SQLiteStore) AddDeliveryLog(ctx context.Context, d *models.DeliveryLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_logs
			(id, alert_id, contact_id, channel, destination, body, status, attempts,
			 last_attempt_at, provider_message_id, error_message, delivered_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.AlertID, d.ContactID, string(d.Channel), d.Destination, d.Body,
		string(d.Status), d.Attempts, nullTime(d.LastAttemptAt), d.ProviderMessageID,
		d.ErrorMessage, nullTime(d.DeliveredAt), d.CreatedAt)
	if err != nil {
		return fmt.Errorf("error adding delivery log: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateDeliveryLog(ctx context.Context, d *models.DeliveryLog) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE delivery_logs SET status = ?, attempts = ?, last_attempt_at = ?,
			provider_message_id = ?, error_message = ?, delivered_at = ?
		WHERE id = ?`,
		string(d.Status), d.Attempts, nullTime(d.LastAttemptAt),
		d.ProviderMessageID, d.ErrorMessage, nullTime(d.DeliveredAt), d.ID)
	if err != nil {
		return fmt.Errorf("error updating delivery log: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const deliveryColumns = `id, alert_id, contact_id, channel, destination, body, status,
	attempts, last_attempt_at, provider_message_id, error_message, delivered_at, created_at`

func (s *SQLiteStore) GetDeliveryLog(ctx context.Context, id string) (*models.DeliveryLog, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+deliveryColumns+` FROM delivery_logs WHERE id = ?`, id)
	return scanDelivery(row)
}

func (s *SQLiteStore) ListDeliveriesByAlert(ctx context.Context, alertID string) ([]models.DeliveryLog, error) {
	return s.queryDeliveries(ctx, `
		SELECT `+deliveryColumns+` FROM delivery_logs WHERE alert_id = ? ORDER BY created_at`, alertID)
}

func (s *SQLiteStore) ListRetryableDeliveries(ctx context.Context, alertID string, maxAttempts int) ([]models.DeliveryLog, error) {
	return s.queryDeliveries(ctx, `
		SELECT `+deliveryColumns+` FROM delivery_logs
		WHERE alert_id = ? AND status = 'failed' AND attempts < ?
		ORDER BY created_at`, alertID, maxAttempts)
}

func (s *SQLiteStore) ListUnsentDeliveries(ctx context.Context) ([]models.DeliveryLog, error) {
	return s.queryDeliveries(ctx, `
		SELECT `+deliveryColumns+` FROM delivery_logs WHERE status = 'pending' ORDER BY created_at`)
}

func (s *SQLiteStore) queryDeliveries(ctx context.Context, query string, args ...any) ([]models.DeliveryLog, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing delivery logs: %w", err)
	}
	defer rows.Close()

	var out []models.DeliveryLog
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func scanDelivery(row rowScanner) (*models.DeliveryLog, error) {
	var (
		d           models.DeliveryLog
		channel, st string
		lastAttempt sql.NullTime
		deliveredAt sql.NullTime
	)
	err := row.Scan(&d.ID, &d.AlertID, &d.ContactID, &channel, &d.Destination, &d.Body,
		&st, &d.Attempts, &lastAttempt, &d.ProviderMessageID, &d.ErrorMessage,
		&deliveredAt, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning delivery log: %w", err)
	}
	d.Channel = models.Channel(channel)
	d.Status = models.DeliveryStatus(st)
	d.LastAttemptAt = timePtr(lastAttempt)
	d.DeliveredAt = timePtr(deliveredAt)
	return &d, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
