package entitlements

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want Plan
	}{
		{"free", PlanFree},
		{" Basic ", PlanBasic},
		{"PRO", PlanPro},
		{"premium", PlanFree},
		{"", PlanFree},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), tt.in)
	}
}

func TestRankAndLimits(t *testing.T) {
	assert.Less(t, Rank("free"), Rank("basic"))
	assert.Less(t, Rank("basic"), Rank("pro"))
	assert.Less(t, MaxDataSources("free"), MaxDataSources("basic"))
	assert.Less(t, MaxDataSources("basic"), MaxDataSources("pro"))
}

func TestAllowsModel(t *testing.T) {
	assert.False(t, AllowsModel("free", "gpt-4"))
	assert.True(t, AllowsModel("free", "gpt-3"))
	assert.True(t, AllowsModel("basic", "gpt-4"))
	assert.True(t, AllowsModel("unknown", "gemini"))
}
