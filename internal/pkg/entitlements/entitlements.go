// Package entitlements maps an internal plan to what the user may do with it.
package entitlements

import "strings"

type Plan string

const (
	PlanFree  Plan = "free"
	PlanBasic Plan = "basic"
	PlanPro   Plan = "pro"
)

// Normalize maps unknown or empty plans to free.
func Normalize(plan string) Plan {
	switch p := Plan(strings.ToLower(strings.TrimSpace(plan))); p {
	case PlanBasic, PlanPro:
		return p
	default:
		return PlanFree
	}
}

// Rank orders plans so reconciliation can pick the best one.
func Rank(plan string) int {
	switch Normalize(plan) {
	case PlanPro:
		return 2
	case PlanBasic:
		return 1
	default:
		return 0
	}
}

// MaxDataSources caps how many sources a user may register.
func MaxDataSources(plan string) int {
	switch Normalize(plan) {
	case PlanPro:
		return 50
	case PlanBasic:
		return 10
	default:
		return 2
	}
}

// AllowsModel reports whether the plan may chat with the given model.
// gpt-4 is reserved for paid plans.
func AllowsModel(plan, model string) bool {
	if model == "gpt-4" {
		return Normalize(plan) != PlanFree
	}
	return true
}
