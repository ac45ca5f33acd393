package billing

import (
	"strings"

	"github.com/ManuelReschke/saaskit/internal/pkg/entitlements"
)

func normalizePlan(plan string) string {
	return string(entitlements.Normalize(plan))
}

func planRank(plan string) int {
	return entitlements.Rank(plan)
}

func normalizeInterval(interval string) string {
	i := strings.ToLower(strings.TrimSpace(interval))
	switch i {
	case "month", "year":
		return i
	default:
		return "unknown"
	}
}

func isEntitlingStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active", "trialing", "past_due":
		return true
	default:
		return false
	}
}

// planKey is the internal plan a product grants: metadata "plan", else its lower-cased name.
func planKey(metadata map[string]string, name string) string {
	if p := strings.TrimSpace(metadata["plan"]); p != "" {
		return strings.ToLower(p)
	}
	return strings.ToLower(strings.TrimSpace(name))
}
