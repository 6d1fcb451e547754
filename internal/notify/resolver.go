package notify

import (
	"context"

	"github.com/sentinelstack/sentinel/internal/config"
)

// ConfigResolver resolves recipients from static configuration: per-org
// administrators and subscribed staff for tenant signals, superusers for
// global signals.
type ConfigResolver struct {
	superusers    []string
	organizations map[string]config.OrgRecipients
}

// NewConfigResolver builds a resolver from the recipients config section.
func NewConfigResolver(cfg config.RecipientsConfig) *ConfigResolver {
	return &ConfigResolver{
		superusers:    cfg.Superusers,
		organizations: cfg.Organizations,
	}
}

// Resolve implements RecipientResolver.
func (r *ConfigResolver) Resolve(_ context.Context, organization string) ([]string, error) {
	if organization == "" {
		return dedupe(r.superusers), nil
	}
	org, ok := r.organizations[organization]
	if !ok {
		return nil, nil
	}
	return dedupe(append(append([]string(nil), org.Admins...), org.Staff...)), nil
}

func dedupe(users []string) []string {
	seen := make(map[string]struct{}, len(users))
	out := make([]string, 0, len(users))
	for _, u := range users {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
