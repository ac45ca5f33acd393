package billing

import "testing"

func TestNormalizePlan(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "free", want: "free"},
		{in: "basic", want: "basic"},
		{in: "pro", want: "pro"},
		{in: "PRO", want: "pro"},
		{in: "invalid", want: "free"},
	}

	for _, tt := range tests {
		if got := normalizePlan(tt.in); got != tt.want {
			t.Fatalf("normalizePlan(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPlanRank(t *testing.T) {
	if planRank("free") >= planRank("basic") {
		t.Fatalf("expected basic to outrank free")
	}
	if planRank("basic") >= planRank("pro") {
		t.Fatalf("expected pro to outrank basic")
	}
}

func TestIsEntitlingStatus(t *testing.T) {
	for _, status := range []string{"active", "trialing", "past_due"} {
		if !isEntitlingStatus(status) {
			t.Fatalf("expected status %q to be entitling", status)
		}
	}
	for _, status := range []string{"canceled", "incomplete", "expired", "paused"} {
		if isEntitlingStatus(status) {
			t.Fatalf("expected status %q to be non-entitling", status)
		}
	}
}

func TestPlanKey(t *testing.T) {
	if got := planKey(map[string]string{"plan": "Pro"}, "Something"); got != "pro" {
		t.Fatalf("metadata plan should win, got %q", got)
	}
	if got := planKey(nil, " Basic "); got != "basic" {
		t.Fatalf("expected lower-cased name, got %q", got)
	}
}
