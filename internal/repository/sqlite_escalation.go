package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mr1hm/vessel-alert-engine/internal/models"
)

func (s *SQLiteStore) AddPolicy(ctx context.Context, p *models.EscalationPolicy) error {
	steps, err := marshalSteps(p.Steps)
	if err != nil {
		return fmt.Errorf("error encoding policy steps: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO escalation_policies (id, name, event_kinds, severity_levels, steps)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, joinKinds(p.EventKinds), joinSeverities(p.SeverityLevels), steps)
	if err != nil {
		return fmt.Errorf("error adding policy: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetPolicy(ctx context.Context, id string) (*models.EscalationPolicy, error) {
	var (
		p           models.EscalationPolicy
		kinds, sevs string
		steps       string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, event_kinds, severity_levels, steps FROM escalation_policies WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &kinds, &sevs, &steps)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting policy: %w", err)
	}
	p.EventKinds = splitKinds(kinds)
	p.SeverityLevels = splitSeverities(sevs)
	if p.Steps, err = unmarshalSteps(steps); err != nil {
		return nil, fmt.Errorf("error decoding policy steps: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) ListPolicies(ctx context.Context) ([]models.EscalationPolicy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, event_kinds, severity_levels, steps FROM escalation_policies ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("error listing policies: %w", err)
	}
	defer rows.Close()

	var out []models.EscalationPolicy
	for rows.Next() {
		var (
			p           models.EscalationPolicy
			kinds, sevs string
			steps       string
		)
		if err := rows.Scan(&p.ID, &p.Name, &kinds, &sevs, &steps); err != nil {
			return nil, fmt.Errorf("error scanning policy: %w", err)
		}
		p.EventKinds = splitKinds(kinds)
		p.SeverityLevels = splitSeverities(sevs)
		if p.Steps, err = unmarshalSteps(steps); err != nil {
			return nil, fmt.Errorf("error decoding policy steps: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, r *models.EscalationRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO escalation_runs (id, alert_id, policy_id, current_step, next_fire_at, halted_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.AlertID, r.PolicyID, r.CurrentStep, r.NextFireAt, nullTime(r.HaltedAt), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating escalation run: %w", err)
	}
	return nil
}

const runColumns = `id, alert_id, policy_id, current_step, next_fire_at, halted_at, created_at`

func (s *SQLiteStore) GetRunByAlert(ctx context.Context, alertID string) (*models.EscalationRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM escalation_runs WHERE alert_id = ?`, alertID)
	return scanRun(row)
}

func (s *SQLiteStore) DueRuns(ctx context.Context, now time.Time) ([]models.EscalationRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM escalation_runs
		WHERE halted_at IS NULL AND next_fire_at <= ?
		ORDER BY next_fire_at`, now)
	if err != nil {
		return nil, fmt.Errorf("error listing due runs: %w", err)
	}
	defer rows.Close()

	var out []models.EscalationRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AdvanceRun(ctx context.Context, runID string, step int, nextFireAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE escalation_runs SET current_step = ?, next_fire_at = ?
		WHERE id = ? AND halted_at IS NULL`, step, nextFireAt, runID)
	if err != nil {
		return fmt.Errorf("error advancing run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) HaltRun(ctx context.Context, runID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE escalation_runs SET halted_at = ? WHERE id = ? AND halted_at IS NULL`, at, runID)
	if err != nil {
		return fmt.Errorf("error halting run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) HaltRunByAlert(ctx context.Context, alertID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE escalation_runs SET halted_at = ? WHERE alert_id = ? AND halted_at IS NULL`, at, alertID)
	if err != nil {
		return fmt.Errorf("error halting run by alert: %w", err)
	}
	// No-op when the alert never had a run; acknowledgment of a
	// policy-less alert is still valid.
	return nil
}

func scanRun(row rowScanner) (*models.EscalationRun, error) {
	var (
		r      models.EscalationRun
		halted sql.NullTime
	)
	err := row.Scan(&r.ID, &r.AlertID, &r.PolicyID, &r.CurrentStep, &r.NextFireAt, &halted, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning escalation run: %w", err)
	}
	r.HaltedAt = timePtr(halted)
	return &r, nil
}
