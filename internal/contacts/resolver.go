package contacts

import (
	"context"
	"fmt"
	"sort"

	"github.com/mr1hm/vessel-alert-engine/internal/models"
	"github.com/mr1hm/vessel-alert-engine/internal/repository"
)

// Resolver selects and orders the recipients for a vessel at a given
// severity. It never invents contacts: zero matches is a valid outcome
// the caller records as a warning.
type Resolver struct {
	repo repository.ContactRepository
}

func NewResolver(repo repository.ContactRepository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns the active contacts bound to the vessel whose
// notify-on set includes the severity, ordered by ascending priority
// and then role. Each result carries the channels the contact can
// actually be reached on.
func (r *Resolver) Resolve(ctx context.Context, vesselID string, severity models.Severity) ([]models.ResolvedContact, error) {
	bound, err := r.repo.ListVesselContacts(ctx, vesselID)
	if err != nil {
		return nil, fmt.Errorf("error resolving contacts for vessel %s: %w", vesselID, err)
	}

	var out []models.ResolvedContact
	for _, bc := range bound {
		if !bc.Contact.Active {
			continue
		}
		if !bc.Binding.WantsSeverity(severity) {
			continue
		}
		channels := bc.Contact.Channels()
		if len(channels) == 0 {
			continue
		}
		out = append(out, models.ResolvedContact{
			Contact:  bc.Contact,
			Role:     bc.Binding.Role,
			Priority: bc.Binding.Priority,
			Channels: channels,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Role < out[j].Role
	})

	return out, nil
}

// FilterByRoles keeps only contacts whose role appears in roles. An
// empty role list means no restriction (every resolved contact stays).
func FilterByRoles(resolved []models.ResolvedContact, roles []string) []models.ResolvedContact {
	if len(roles) == 0 {
		return resolved
	}
	want := make(map[string]bool, len(roles))
	for _, r := range roles {
		want[r] = true
	}
	var out []models.ResolvedContact
	for _, rc := range resolved {
		if want[rc.Role] {
			out = append(out, rc)
		}
	}
	return out
}
