package escalation

import (
	"context"
	"fmt"

	"github.com/mr1hm/vessel-alert-engine/internal/models"
	"github.com/mr1hm/vessel-alert-engine/internal/repository"
)

// SelectPolicy picks the escalation policy for an alert. An explicit
// overrideID wins; otherwise the first policy (by name order) matching
// the event kind and severity is chosen. A nil result with nil error
// means no policy applies and the alert gets a single direct dispatch.
func SelectPolicy(ctx context.Context, repo repository.EscalationRepository, kind models.HazardKind, severity models.Severity, overrideID string) (*models.EscalationPolicy, error) {
	if overrideID != "" {
		p, err := repo.GetPolicy(ctx, overrideID)
		if err != nil {
			return nil, fmt.Errorf("error loading override policy %s: %w", overrideID, err)
		}
		return p, nil
	}

	policies, err := repo.ListPolicies(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing policies: %w", err)
	}
	for i := range policies {
		if policies[i].Matches(kind, severity) {
			return &policies[i], nil
		}
	}
	return nil, nil
}
