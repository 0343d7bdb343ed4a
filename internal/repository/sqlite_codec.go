package repository

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/mr1hm/vessel-alert-engine/internal/models"
)

// Set-valued columns are stored as comma-joined strings; step lists as
// JSON. Everything here round-trips losslessly.

func joinSeverities(ss []models.Severity) string {
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}

func splitSeverities(s string) []models.Severity {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]models.Severity, len(parts))
	for i, p := range parts {
		out[i] = models.Severity(p)
	}
	return out
}

func joinKinds(ks []models.HazardKind) string {
	parts := make([]string, len(ks))
	for i, k := range ks {
		parts[i] = string(k)
	}
	return strings.Join(parts, ",")
}

func splitKinds(s string) []models.HazardKind {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]models.HazardKind, len(parts))
	for i, p := range parts {
		out[i] = models.HazardKind(p)
	}
	return out
}

func marshalStrings(ss []string) string {
	if len(ss) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(ss)
	return string(b)
}

func unmarshalStrings(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

func marshalSteps(steps []models.EscalationStep) (string, error) {
	b, err := json.Marshal(steps)
	return string(b), err
}

func unmarshalSteps(s string) ([]models.EscalationStep, error) {
	var out []models.EscalationStep
	err := json.Unmarshal([]byte(s), &out)
	return out, err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
