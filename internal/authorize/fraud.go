package authorize

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cardcore/authd/internal/money"
)

// FraudConfig holds the scoring weights and thresholds. Weights are
// configuration, not code: the evidenced boundaries from production data are
// partial and must stay tunable without a deploy. All scoring arithmetic is
// decimal; no binary floating point enters the engine.
type FraudConfig struct {
	Threshold       decimal.Decimal
	WeightAmount    decimal.Decimal
	WeightCategory  decimal.Decimal
	WeightGeo       decimal.Decimal
	WeightTimeOfDay decimal.Decimal

	// AmountFloor..AmountCeil is the ramp over which the amount factor
	// climbs from 0 to 1.
	AmountFloor money.Amount
	AmountCeil  money.Amount

	// RiskyCategories are merchant category codes that contribute the
	// category-anomaly factor. Distinct from the policy blocklist, which is
	// a hard decline.
	RiskyCategories []string

	// Night window [NightStartHour, NightEndHour) in local hours.
	NightStartHour int
	NightEndHour   int
	Location       *time.Location
}

// Scorer combines the hard and soft signals into a single risk score.
type Scorer struct {
	cfg     FraudConfig
	riskyCC map[string]struct{}
}

// NewScorer creates a fraud scorer from the given configuration.
func NewScorer(cfg FraudConfig) *Scorer {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s := &Scorer{cfg: cfg, riskyCC: make(map[string]struct{}, len(cfg.RiskyCategories))}
	for _, cc := range cfg.RiskyCategories {
		s.riskyCC[cc] = struct{}{}
	}
	return s
}

// Factors holds the individual factor values of one evaluation, for audit
// and test visibility. Each factor is in [0, 1].
type Factors struct {
	Amount    decimal.Decimal
	Category  decimal.Decimal
	Geo       decimal.Decimal
	TimeOfDay decimal.Decimal
}

var one = decimal.NewFromInt(1)

// Score computes the weighted risk score for a transaction. geoFlag is the
// geographic-velocity signal raised by the velocity limiter. Pure: identical
// inputs always produce the identical score.
func (s *Scorer) Score(req *Request, geoFlag bool, now time.Time) (decimal.Decimal, Factors) {
	f := Factors{
		Amount:    s.amountFactor(req.Amount),
		Category:  s.categoryFactor(req.CategoryCode),
		Geo:       boolFactor(geoFlag),
		TimeOfDay: s.timeOfDayFactor(now),
	}

	score := f.Amount.Mul(s.cfg.WeightAmount).
		Add(f.Category.Mul(s.cfg.WeightCategory)).
		Add(f.Geo.Mul(s.cfg.WeightGeo)).
		Add(f.TimeOfDay.Mul(s.cfg.WeightTimeOfDay))

	// Clamp to [0, 1].
	if score.GreaterThan(one) {
		score = one
	}
	if score.Sign() < 0 {
		score = decimal.Zero
	}
	return score, f
}

// Check applies the threshold to the score. A tie declines: a missed
// legitimate transaction is treated as cheaper than an undetected fraud.
func (s *Scorer) Check(score decimal.Decimal) CheckResult {
	if score.Cmp(s.cfg.Threshold) >= 0 {
		return fail(ReasonFraudSuspected)
	}
	return pass()
}

// amountFactor ramps linearly from 0 at the floor to 1 at the ceiling.
func (s *Scorer) amountFactor(amount money.Amount) decimal.Decimal {
	floor := s.cfg.AmountFloor.Decimal()
	ceil := s.cfg.AmountCeil.Decimal()
	a := amount.Decimal()

	if a.Cmp(floor) <= 0 {
		return decimal.Zero
	}
	if a.Cmp(ceil) >= 0 {
		return one
	}
	return a.Sub(floor).DivRound(ceil.Sub(floor), 6)
}

func (s *Scorer) categoryFactor(categoryCode string) decimal.Decimal {
	if _, ok := s.riskyCC[categoryCode]; ok {
		return one
	}
	return decimal.Zero
}

// timeOfDayFactor flags transactions inside the configured night window.
func (s *Scorer) timeOfDayFactor(now time.Time) decimal.Decimal {
	hour := now.In(s.cfg.Location).Hour()
	start, end := s.cfg.NightStartHour, s.cfg.NightEndHour
	var inNight bool
	if start <= end {
		inNight = hour >= start && hour < end
	} else {
		inNight = hour >= start || hour < end
	}
	return boolFactor(inNight)
}

func boolFactor(b bool) decimal.Decimal {
	if b {
		return one
	}
	return decimal.Zero
}
