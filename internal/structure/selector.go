package structure

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/revred/odte/internal/marketdata"
	"github.com/revred/odte/internal/regime"
)

// ErrNoViableStrike indicates neither delta matching nor the expected-move
// fallback resolved to a real strike within tolerance. Strikes are never
// synthesized; callers treat this as a skip for the affected structure.
var ErrNoViableStrike = errors.New("structure: no viable strike within tolerance")

// DeltaTargets holds the per-kind absolute delta targets used to place
// short strikes and bodies.
type DeltaTargets struct {
	CondorShort float64 `yaml:"condor_short"` // e.g. 0.18
	BWBBody     float64 `yaml:"bwb_body"`     // e.g. 0.30
}

// SelectorConfig parameterizes strike selection.
type SelectorConfig struct {
	Targets         DeltaTargets `yaml:"delta_targets"`
	DeltaTolerance  float64      `yaml:"delta_tolerance"`  // max |recorded delta| - target gap
	StrikeTolerance float64      `yaml:"strike_tolerance"` // max $ gap on the expected-move fallback path
	CondorWingWidth float64      `yaml:"condor_wing_width"`
	BWBNearWidth    float64      `yaml:"bwb_near_width"`
	BWBFarWidth     float64      `yaml:"bwb_far_width"`
	FlyWingWidth    float64      `yaml:"fly_wing_width"`
}

// Validate checks selection parameters.
func (c SelectorConfig) Validate() error {
	if c.Targets.CondorShort <= 0 || c.Targets.CondorShort >= 0.5 {
		return fmt.Errorf("delta_targets.condor_short must be in (0, 0.5), got %.3f", c.Targets.CondorShort)
	}
	if c.Targets.BWBBody <= 0 || c.Targets.BWBBody >= 0.5 {
		return fmt.Errorf("delta_targets.bwb_body must be in (0, 0.5), got %.3f", c.Targets.BWBBody)
	}
	if c.DeltaTolerance <= 0 {
		return fmt.Errorf("delta_tolerance must be > 0, got %.3f", c.DeltaTolerance)
	}
	if c.StrikeTolerance <= 0 {
		return fmt.Errorf("strike_tolerance must be > 0, got %.2f", c.StrikeTolerance)
	}
	if c.CondorWingWidth <= 0 || c.FlyWingWidth <= 0 || c.BWBNearWidth <= 0 || c.BWBFarWidth <= 0 {
		return fmt.Errorf("wing widths must be > 0")
	}
	if c.BWBFarWidth <= c.BWBNearWidth {
		return fmt.Errorf("bwb_far_width (%.2f) must exceed bwb_near_width (%.2f) for a broken wing",
			c.BWBFarWidth, c.BWBNearWidth)
	}
	return nil
}

// Selector picks concrete strikes for the regime's structure shape.
type Selector struct {
	cfg SelectorConfig
}

// NewSelector creates a Selector, validating its configuration up front.
func NewSelector(cfg SelectorConfig) (*Selector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("selector config: %w", err)
	}
	return &Selector{cfg: cfg}, nil
}

// Select builds the structure shape mandated by the regime from strikes that
// exist in the snapshot: Low -> broken-wing butterfly, Mid -> iron condor,
// High -> iron fly. Wing widths are narrowed until the estimated maximum
// loss fits under riskCap (dollars per contract). Decision tier sizing is
// the caller's concern; Select never scales contract counts.
func (s *Selector) Select(r regime.Regime, snap *marketdata.Snapshot, riskCap float64) (*Structure, error) {
	var (
		st  *Structure
		err error
	)
	switch r {
	case regime.Low:
		st, err = s.selectBrokenWing(snap)
	case regime.Mid:
		st, err = s.selectIronCondor(snap)
	case regime.High:
		st, err = s.selectIronFly(snap)
	default:
		return nil, fmt.Errorf("select: unknown regime %q", r)
	}
	if err != nil {
		return nil, err
	}

	st, err = s.fitRiskCap(st, snap, riskCap)
	if err != nil {
		return nil, err
	}
	if err := st.Validate(snap); err != nil {
		return nil, fmt.Errorf("select %s: %w", st.Kind, err)
	}
	return st, nil
}

// strikeByDelta returns the liquid strike whose recorded |delta| is nearest
// target. Falls back to the expected-move approximation when no recorded
// Greeks land within tolerance.
func (s *Selector) strikeByDelta(snap *marketdata.Snapshot, kind marketdata.OptionKind, target float64) (float64, error) {
	bestStrike := 0.0
	bestDiff := math.MaxFloat64
	sawGreeks := false

	for key, q := range snap.Quotes {
		if key.Kind != kind || !q.Liquid() || !q.HasGreeks {
			continue
		}
		sawGreeks = true
		diff := math.Abs(math.Abs(q.Delta) - target)
		if diff < bestDiff {
			bestDiff = diff
			bestStrike = key.Strike
		}
	}

	if sawGreeks && bestDiff <= s.cfg.DeltaTolerance {
		return bestStrike, nil
	}
	return s.strikeByExpectedMove(snap, kind, target)
}

// strikeByExpectedMove approximates the delta-equivalent distance from the
// ATM expected move: distance = z * EM where z is the standard normal
// quantile for the target delta. The result must land on a real strike
// within StrikeTolerance or selection fails.
func (s *Selector) strikeByExpectedMove(snap *marketdata.Snapshot, kind marketdata.OptionKind, target float64) (float64, error) {
	em := snap.ExpectedMove()
	if em <= 0 {
		return 0, fmt.Errorf("expected-move fallback for %s delta %.2f: no IV reference: %w",
			kind, target, ErrNoViableStrike)
	}

	// z such that P(Z > z) = target; delta of an OTM option is roughly that
	// tail probability.
	z := math.Sqrt2 * math.Erfinv(1-2*target)
	distance := z * em
	want := snap.Underlying - distance
	if kind == marketdata.Call {
		want = snap.Underlying + distance
	}

	strike, ok := nearestStrike(snap.Strikes(kind), want)
	if !ok || math.Abs(strike-want) > s.cfg.StrikeTolerance {
		return 0, fmt.Errorf("expected-move fallback for %s delta %.2f: nearest strike %.2f is %.2f away from %.2f: %w",
			kind, target, strike, math.Abs(strike-want), want, ErrNoViableStrike)
	}
	return strike, nil
}

func (s *Selector) selectIronCondor(snap *marketdata.Snapshot) (*Structure, error) {
	shortPut, err := s.strikeByDelta(snap, marketdata.Put, s.cfg.Targets.CondorShort)
	if err != nil {
		return nil, fmt.Errorf("iron_condor short put: %w", err)
	}
	shortCall, err := s.strikeByDelta(snap, marketdata.Call, s.cfg.Targets.CondorShort)
	if err != nil {
		return nil, fmt.Errorf("iron_condor short call: %w", err)
	}
	if shortPut >= shortCall {
		return nil, fmt.Errorf("iron_condor shorts inverted (put %.2f >= call %.2f): %w",
			shortPut, shortCall, ErrNoViableStrike)
	}

	putWing, ok := strikeBelow(snap.Strikes(marketdata.Put), shortPut, s.cfg.CondorWingWidth)
	if !ok {
		return nil, fmt.Errorf("iron_condor put wing below %.2f: %w", shortPut, ErrNoViableStrike)
	}
	callWing, ok := strikeAbove(snap.Strikes(marketdata.Call), shortCall, s.cfg.CondorWingWidth)
	if !ok {
		return nil, fmt.Errorf("iron_condor call wing above %.2f: %w", shortCall, ErrNoViableStrike)
	}

	return &Structure{
		Kind: IronCondor,
		Legs: []Leg{
			{Strike: putWing, Kind: marketdata.Put, Side: Buy, Quantity: 1},
			{Strike: shortPut, Kind: marketdata.Put, Side: Sell, Quantity: 1},
			{Strike: shortCall, Kind: marketdata.Call, Side: Sell, Quantity: 1},
			{Strike: callWing, Kind: marketdata.Call, Side: Buy, Quantity: 1},
		},
	}, nil
}

func (s *Selector) selectIronFly(snap *marketdata.Snapshot) (*Structure, error) {
	// The fly is short the ATM straddle; both kinds must quote the strike.
	atm, ok := nearestStrike(bothKindsStrikes(snap), snap.Underlying)
	if !ok {
		return nil, fmt.Errorf("iron_fly ATM strike: %w", ErrNoViableStrike)
	}

	putWing, ok := strikeBelow(snap.Strikes(marketdata.Put), atm, s.cfg.FlyWingWidth)
	if !ok {
		return nil, fmt.Errorf("iron_fly put wing below %.2f: %w", atm, ErrNoViableStrike)
	}
	callWing, ok := strikeAbove(snap.Strikes(marketdata.Call), atm, s.cfg.FlyWingWidth)
	if !ok {
		return nil, fmt.Errorf("iron_fly call wing above %.2f: %w", atm, ErrNoViableStrike)
	}

	return &Structure{
		Kind: IronFly,
		Legs: []Leg{
			{Strike: putWing, Kind: marketdata.Put, Side: Buy, Quantity: 1},
			{Strike: atm, Kind: marketdata.Put, Side: Sell, Quantity: 1},
			{Strike: atm, Kind: marketdata.Call, Side: Sell, Quantity: 1},
			{Strike: callWing, Kind: marketdata.Call, Side: Buy, Quantity: 1},
		},
	}, nil
}

func (s *Selector) selectBrokenWing(snap *marketdata.Snapshot) (*Structure, error) {
	body, err := s.strikeByDelta(snap, marketdata.Put, s.cfg.Targets.BWBBody)
	if err != nil {
		return nil, fmt.Errorf("broken_wing_butterfly body: %w", err)
	}

	putStrikes := snap.Strikes(marketdata.Put)
	near, ok := strikeAbove(putStrikes, body, s.cfg.BWBNearWidth)
	if !ok {
		return nil, fmt.Errorf("broken_wing_butterfly near wing above %.2f: %w", body, ErrNoViableStrike)
	}
	far, ok := strikeBelow(putStrikes, body, s.cfg.BWBFarWidth)
	if !ok {
		return nil, fmt.Errorf("broken_wing_butterfly far wing below %.2f: %w", body, ErrNoViableStrike)
	}

	return &Structure{
		Kind: BrokenWingButterfly,
		Legs: []Leg{
			{Strike: far, Kind: marketdata.Put, Side: Buy, Quantity: 1},
			{Strike: body, Kind: marketdata.Put, Side: Sell, Quantity: 2},
			{Strike: near, Kind: marketdata.Put, Side: Buy, Quantity: 1},
		},
	}, nil
}

// fitRiskCap narrows wing widths, one strike at a time, until the structure's
// estimated max loss (at mid pricing) fits under riskCap dollars. Fails with
// ErrNoViableStrike when even the narrowest wings exceed the cap.
func (s *Selector) fitRiskCap(st *Structure, snap *marketdata.Snapshot, riskCap float64) (*Structure, error) {
	if riskCap <= 0 {
		return nil, fmt.Errorf("fit %s: non-positive risk cap %.2f: %w", st.Kind, riskCap, ErrNoViableStrike)
	}

	const sharesPerContract = 100.0
	current := st
	for {
		credit, ok := current.MidNetCredit(snap)
		if !ok {
			return nil, fmt.Errorf("fit %s: leg missing from snapshot: %w", current.Kind, ErrNoViableStrike)
		}
		if current.MaxLoss(credit)*sharesPerContract <= riskCap {
			return current, nil
		}
		narrowed, ok := s.narrowWings(current, snap)
		if !ok {
			return nil, fmt.Errorf("fit %s: max loss exceeds cap %.2f at narrowest wings: %w",
				current.Kind, riskCap, ErrNoViableStrike)
		}
		current = narrowed
	}
}

// narrowWings moves the outermost long wings one listed strike closer to the
// shorts. Returns false when no narrower shape exists.
func (s *Selector) narrowWings(st *Structure, snap *marketdata.Snapshot) (*Structure, bool) {
	legs := make([]Leg, len(st.Legs))
	copy(legs, st.Legs)
	moved := false

	switch st.Kind {
	case IronCondor, IronFly:
		if next, ok := nextStrikeToward(snap.Strikes(marketdata.Put), legs[0].Strike, legs[1].Strike); ok {
			legs[0].Strike = next
			moved = true
		}
		if next, ok := nextStrikeToward(snap.Strikes(marketdata.Call), legs[3].Strike, legs[2].Strike); ok {
			legs[3].Strike = next
			moved = true
		}
	case BrokenWingButterfly:
		// Pulling in the far wing shrinks the width differential, which is
		// where the broken wing's risk lives.
		if next, ok := nextStrikeToward(snap.Strikes(marketdata.Put), legs[0].Strike, legs[1].Strike); ok {
			legs[0].Strike = next
			moved = true
		}
	}

	if !moved {
		return nil, false
	}
	return &Structure{Kind: st.Kind, Legs: legs}, true
}

// nearestStrike returns the strike closest to want.
func nearestStrike(strikes []float64, want float64) (float64, bool) {
	best, bestDiff := 0.0, math.MaxFloat64
	for _, k := range strikes {
		if d := math.Abs(k - want); d < bestDiff {
			bestDiff = d
			best = k
		}
	}
	return best, bestDiff < math.MaxFloat64
}

// strikeBelow returns the listed strike nearest (from - width), strictly
// below from.
func strikeBelow(strikes []float64, from, width float64) (float64, bool) {
	below := strikes[:0:0]
	for _, k := range strikes {
		if k < from {
			below = append(below, k)
		}
	}
	return nearestStrike(below, from-width)
}

// strikeAbove returns the listed strike nearest (from + width), strictly
// above from.
func strikeAbove(strikes []float64, from, width float64) (float64, bool) {
	above := strikes[:0:0]
	for _, k := range strikes {
		if k > from {
			above = append(above, k)
		}
	}
	return nearestStrike(above, from+width)
}

// nextStrikeToward returns the listed strike adjacent to from in the
// direction of toward, without reaching toward itself.
func nextStrikeToward(strikes []float64, from, toward float64) (float64, bool) {
	sorted := append([]float64(nil), strikes...)
	sort.Float64s(sorted)

	if from < toward {
		for _, k := range sorted {
			if k > from && k < toward {
				return k, true
			}
		}
		return 0, false
	}
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i] < from && sorted[i] > toward {
			return sorted[i], true
		}
	}
	return 0, false
}

// bothKindsStrikes returns strikes quoted on both the put and call side.
func bothKindsStrikes(snap *marketdata.Snapshot) []float64 {
	calls := make(map[float64]bool)
	for _, k := range snap.Strikes(marketdata.Call) {
		calls[k] = true
	}
	out := make([]float64, 0)
	for _, k := range snap.Strikes(marketdata.Put) {
		if calls[k] {
			out = append(out, k)
		}
	}
	sort.Float64s(out)
	return out
}
