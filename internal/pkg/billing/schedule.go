package billing

import (
	"errors"
	"time"
)

var (
	ErrNoCurrentPhase     = errors.New("schedule has no current phase")
	ErrNoPaidSubscription = errors.New("no paid subscription to change")
	ErrSamePlan           = errors.New("already on this plan")
	ErrOpenEndedPhase     = errors.New("current phase has no end date")
)

// Schedule end behaviors.
const (
	EndBehaviorRelease = "release"
	EndBehaviorCancel  = "cancel"
)

// Phase is one price over a time window. A nil End means open ended.
type Phase struct {
	PriceID  string
	Start    time.Time
	End      *time.Time
	TrialEnd *time.Time
}

// Schedule is the provider's subscription schedule for one customer.
type Schedule struct {
	ID             string
	CustomerID     string
	SubscriptionID string
	Status         string
	EndBehavior    string
	Phases         []Phase
}

// PlanPrices names the special prices the schedule logic needs to know about.
type PlanPrices struct {
	FreePriceID  string
	TrialPriceID string
	HasFreePlan  bool
}

// ValidPhases are the phases that have not ended yet.
func (s *Schedule) ValidPhases(now time.Time) []Phase {
	var out []Phase
	for _, p := range s.Phases {
		if p.End == nil || p.End.After(now) {
			out = append(out, p)
		}
	}
	return out
}

func (s *Schedule) CurrentPhase(now time.Time) (*Phase, error) {
	valid := s.ValidPhases(now)
	if len(valid) == 0 {
		return nil, ErrNoCurrentPhase
	}
	p := valid[0]
	return &p, nil
}

func (s *Schedule) IsCurrentPhasePlan(now time.Time, priceID string) bool {
	p, err := s.CurrentPhase(now)
	return err == nil && p.PriceID == priceID
}

func (s *Schedule) IsTrialing(now time.Time) bool {
	p, err := s.CurrentPhase(now)
	return err == nil && p.TrialEnd != nil && p.TrialEnd.After(now)
}

// HasPaidSubscription is false for trial and free phases.
func (s *Schedule) HasPaidSubscription(now time.Time, prices PlanPrices) bool {
	p, err := s.CurrentPhase(now)
	if err != nil {
		return false
	}
	return p.PriceID != prices.TrialPriceID && p.PriceID != prices.FreePriceID
}

// CancelPhases keeps the current phase (cut at the trial end while trialing)
// and follows it with the free price if there is one. The returned end
// behavior cancels the subscription when nothing follows.
func CancelPhases(s *Schedule, now time.Time, prices PlanPrices) ([]Phase, string, error) {
	if !s.HasPaidSubscription(now, prices) {
		return nil, "", ErrNoPaidSubscription
	}
	current, _ := s.CurrentPhase(now)
	keep := *current
	if s.IsTrialing(now) {
		end := *keep.TrialEnd
		keep.End = &end
	}
	if keep.End == nil {
		end := now
		keep.End = &end
	}
	phases := []Phase{keep}
	if !prices.HasFreePlan || prices.FreePriceID == "" {
		return phases, EndBehaviorCancel, nil
	}
	phases = append(phases, Phase{PriceID: prices.FreePriceID, Start: *keep.End})
	return phases, EndBehaviorRelease, nil
}

// UpgradePhases switches to priceID immediately.
func UpgradePhases(s *Schedule, now time.Time, priceID string) ([]Phase, error) {
	current, err := s.CurrentPhase(now)
	if err != nil {
		return nil, err
	}
	if current.PriceID == priceID {
		return nil, ErrSamePlan
	}
	keep := *current
	end := now
	keep.End = &end
	keep.TrialEnd = nil
	return []Phase{keep, {PriceID: priceID, Start: now}}, nil
}

// DowngradePhases lets the current phase run out and then continues with priceID.
func DowngradePhases(s *Schedule, now time.Time, priceID string) ([]Phase, error) {
	current, err := s.CurrentPhase(now)
	if err != nil {
		return nil, err
	}
	if current.PriceID == priceID {
		return nil, ErrSamePlan
	}
	if current.End == nil {
		return nil, ErrOpenEndedPhase
	}
	return []Phase{*current, {PriceID: priceID, Start: *current.End}}, nil
}
