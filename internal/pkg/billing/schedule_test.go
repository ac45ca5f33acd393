package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0     = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	prices = PlanPrices{FreePriceID: "price_free", TrialPriceID: "price_trial", HasFreePlan: true}
)

func at(d time.Duration) *time.Time {
	t := t0.Add(d)
	return &t
}

func TestValidAndCurrentPhase(t *testing.T) {
	s := &Schedule{Phases: []Phase{
		{PriceID: "old", Start: t0.Add(-60 * 24 * time.Hour), End: at(-30 * 24 * time.Hour)},
		{PriceID: "price_basic", Start: t0.Add(-30 * 24 * time.Hour), End: at(24 * time.Hour)},
		{PriceID: "price_free", Start: t0.Add(24 * time.Hour)},
	}}

	valid := s.ValidPhases(t0)
	require.Len(t, valid, 2)
	cur, err := s.CurrentPhase(t0)
	require.NoError(t, err)
	assert.Equal(t, "price_basic", cur.PriceID)
	assert.True(t, s.IsCurrentPhasePlan(t0, "price_basic"))

	// open-ended phase is still valid far in the future
	cur, err = s.CurrentPhase(t0.Add(365 * 24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "price_free", cur.PriceID)
}

func TestCurrentPhaseNone(t *testing.T) {
	s := &Schedule{Phases: []Phase{{PriceID: "a", Start: t0.Add(-2 * time.Hour), End: at(-time.Hour)}}}
	_, err := s.CurrentPhase(t0)
	assert.ErrorIs(t, err, ErrNoCurrentPhase)
	assert.False(t, s.HasPaidSubscription(t0, prices))
	assert.False(t, s.IsTrialing(t0))
}

func TestTrialingAndPaid(t *testing.T) {
	tests := []struct {
		name     string
		phase    Phase
		trialing bool
		paid     bool
	}{
		{"trial price", Phase{PriceID: "price_trial", Start: t0, End: at(7 * 24 * time.Hour), TrialEnd: at(7 * 24 * time.Hour)}, true, false},
		{"free price", Phase{PriceID: "price_free", Start: t0}, false, false},
		{"paid with trial", Phase{PriceID: "price_pro", Start: t0, End: at(30 * 24 * time.Hour), TrialEnd: at(24 * time.Hour)}, true, true},
		{"paid expired trial", Phase{PriceID: "price_pro", Start: t0.Add(-time.Hour), End: at(30 * 24 * time.Hour), TrialEnd: at(-time.Minute)}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Schedule{Phases: []Phase{tt.phase}}
			assert.Equal(t, tt.trialing, s.IsTrialing(t0))
			assert.Equal(t, tt.paid, s.HasPaidSubscription(t0, prices))
		})
	}
}

func TestCancelPhases(t *testing.T) {
	paid := &Schedule{Phases: []Phase{{PriceID: "price_pro", Start: t0.Add(-time.Hour), End: at(30 * 24 * time.Hour)}}}

	phases, behavior, err := CancelPhases(paid, t0, prices)
	require.NoError(t, err)
	require.Len(t, phases, 2)
	assert.Equal(t, EndBehaviorRelease, behavior)
	assert.Equal(t, "price_pro", phases[0].PriceID)
	assert.Equal(t, "price_free", phases[1].PriceID)
	assert.Equal(t, *phases[0].End, phases[1].Start)
	assert.Nil(t, phases[1].End)

	noFree := prices
	noFree.HasFreePlan = false
	phases, behavior, err = CancelPhases(paid, t0, noFree)
	require.NoError(t, err)
	assert.Len(t, phases, 1)
	assert.Equal(t, EndBehaviorCancel, behavior)
}

func TestCancelPhasesWhileTrialing(t *testing.T) {
	s := &Schedule{Phases: []Phase{{PriceID: "price_pro", Start: t0.Add(-time.Hour), End: at(30 * 24 * time.Hour), TrialEnd: at(3 * 24 * time.Hour)}}}

	phases, _, err := CancelPhases(s, t0, prices)
	require.NoError(t, err)
	assert.Equal(t, *at(3 * 24 * time.Hour), *phases[0].End)
	assert.Equal(t, *at(3 * 24 * time.Hour), phases[1].Start)
}

func TestCancelPhasesRequiresPaid(t *testing.T) {
	s := &Schedule{Phases: []Phase{{PriceID: "price_trial", Start: t0, TrialEnd: at(time.Hour)}}}
	_, _, err := CancelPhases(s, t0, prices)
	assert.ErrorIs(t, err, ErrNoPaidSubscription)
}

func TestUpgradePhases(t *testing.T) {
	s := &Schedule{Phases: []Phase{{PriceID: "price_basic", Start: t0.Add(-time.Hour), End: at(30 * 24 * time.Hour)}}}

	phases, err := UpgradePhases(s, t0, "price_pro")
	require.NoError(t, err)
	require.Len(t, phases, 2)
	assert.Equal(t, t0, *phases[0].End)
	assert.Equal(t, "price_pro", phases[1].PriceID)
	assert.Equal(t, t0, phases[1].Start)

	_, err = UpgradePhases(s, t0, "price_basic")
	assert.ErrorIs(t, err, ErrSamePlan)
}

func TestDowngradePhases(t *testing.T) {
	end := at(30 * 24 * time.Hour)
	s := &Schedule{Phases: []Phase{{PriceID: "price_pro", Start: t0.Add(-time.Hour), End: end}}}

	phases, err := DowngradePhases(s, t0, "price_basic")
	require.NoError(t, err)
	require.Len(t, phases, 2)
	assert.Equal(t, end, phases[0].End)
	assert.Equal(t, *end, phases[1].Start)
	assert.Equal(t, "price_basic", phases[1].PriceID)

	open := &Schedule{Phases: []Phase{{PriceID: "price_pro", Start: t0}}}
	_, err = DowngradePhases(open, t0, "price_basic")
	assert.ErrorIs(t, err, ErrOpenEndedPhase)
}
