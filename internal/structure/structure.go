// Package structure defines the closed set of defined-risk option structures
// the engine trades and the selector that binds them to real strikes.
package structure

import (
	"fmt"
	"math"

	"github.com/revred/odte/internal/marketdata"
)

// Kind identifies a structure shape. The set is closed; behavior differs
// only in parameters (strike count, delta targets, widths).
type Kind string

const (
	// BrokenWingButterfly is the low-IV shape: short 2x body with
	// asymmetric long wings.
	BrokenWingButterfly Kind = "broken_wing_butterfly"
	// IronCondor is the mid-IV shape bracketing a one-period expected move.
	IronCondor Kind = "iron_condor"
	// IronFly is the high-IV shape: short ATM straddle with long wings.
	IronFly Kind = "iron_fly"
)

// Valid returns true if the Kind is one of the defined constants.
func (k Kind) Valid() bool {
	switch k {
	case BrokenWingButterfly, IronCondor, IronFly:
		return true
	default:
		return false
	}
}

// Kinds lists every defined structure kind.
func Kinds() []Kind {
	return []Kind{BrokenWingButterfly, IronCondor, IronFly}
}

// Side is the order side of a leg.
type Side string

const (
	// Buy opens a long leg
	Buy Side = "buy"
	// Sell opens a short leg
	Sell Side = "sell"
)

// Leg is one contract line of a structure. Quantity is the per-structure
// ratio (the butterfly body carries 2).
type Leg struct {
	Strike   float64              `json:"strike"`
	Kind     marketdata.OptionKind `json:"kind"`
	Side     Side                 `json:"side"`
	Quantity int                  `json:"quantity"`
}

// Structure is an ordered list of legs forming one defined-risk position.
// Legs are ordered by strike ascending within each option kind.
type Structure struct {
	Kind Kind  `json:"kind"`
	Legs []Leg `json:"legs"`
}

// sign returns +1 for long legs and -1 for short legs.
func (l Leg) sign() float64 {
	if l.Side == Buy {
		return 1
	}
	return -1
}

// intrinsic returns the per-share expiry value of the leg at the given
// underlying price.
func (l Leg) intrinsic(price float64) float64 {
	switch l.Kind {
	case marketdata.Call:
		return math.Max(0, price-l.Strike)
	case marketdata.Put:
		return math.Max(0, l.Strike-price)
	default:
		return 0
	}
}

// PayoffAt returns the per-share expiry value of the whole structure at the
// given underlying price, before entry credit or debit.
func (s *Structure) PayoffAt(price float64) float64 {
	total := 0.0
	for _, l := range s.Legs {
		total += l.sign() * float64(l.Quantity) * l.intrinsic(price)
	}
	return total
}

// breakpoints returns the candidate expiry prices where the piecewise-linear
// payoff can attain its extremes: zero, every strike, and a point far above
// the highest strike.
func (s *Structure) breakpoints() []float64 {
	pts := []float64{0}
	high := 0.0
	for _, l := range s.Legs {
		pts = append(pts, l.Strike)
		if l.Strike > high {
			high = l.Strike
		}
	}
	pts = append(pts, high*2+100)
	return pts
}

// MaxLoss returns the worst per-share expiry loss given the net credit
// received at entry (negative netCredit means a debit was paid). Defined-risk
// structures always return a finite non-negative value.
func (s *Structure) MaxLoss(netCredit float64) float64 {
	worst := math.Inf(1)
	for _, p := range s.breakpoints() {
		v := s.PayoffAt(p) + netCredit
		if v < worst {
			worst = v
		}
	}
	if worst >= 0 {
		return 0
	}
	return -worst
}

// MaxProfit returns the best per-share expiry value given the net credit
// received at entry.
func (s *Structure) MaxProfit(netCredit float64) float64 {
	best := math.Inf(-1)
	for _, p := range s.breakpoints() {
		v := s.PayoffAt(p) + netCredit
		if v > best {
			best = v
		}
	}
	if best <= 0 {
		return 0
	}
	return best
}

// MidNetCredit prices the structure at snapshot midpoints: short legs earn
// their mid, long legs pay theirs. The second return is false when any leg
// is missing from the snapshot.
func (s *Structure) MidNetCredit(snap *marketdata.Snapshot) (float64, bool) {
	net := 0.0
	for _, l := range s.Legs {
		q, ok := snap.Quote(l.Strike, l.Kind)
		if !ok {
			return 0, false
		}
		net += -l.sign() * float64(l.Quantity) * q.Mid()
	}
	return net, true
}

// Validate checks that the leg count, kinds, sides, and quantities match the
// declared structure kind, and that every strike exists in the snapshot.
func (s *Structure) Validate(snap *marketdata.Snapshot) error {
	for _, l := range s.Legs {
		if !snap.HasStrike(l.Strike, l.Kind) {
			return fmt.Errorf("%s: leg strike %.2f %s not present in snapshot", s.Kind, l.Strike, l.Kind)
		}
		if l.Quantity <= 0 {
			return fmt.Errorf("%s: leg at %.2f has non-positive quantity %d", s.Kind, l.Strike, l.Quantity)
		}
	}

	switch s.Kind {
	case IronCondor, IronFly:
		return s.validateFourLegShape()
	case BrokenWingButterfly:
		return s.validateButterflyShape()
	default:
		return fmt.Errorf("unknown structure kind %q", s.Kind)
	}
}

// validateFourLegShape checks the buy/sell/sell/buy wing pattern shared by
// condors and flies: long put wing, short put, short call, long call wing.
func (s *Structure) validateFourLegShape() error {
	if len(s.Legs) != 4 {
		return fmt.Errorf("%s: expected exactly 4 legs, got %d", s.Kind, len(s.Legs))
	}
	wantKinds := []marketdata.OptionKind{marketdata.Put, marketdata.Put, marketdata.Call, marketdata.Call}
	wantSides := []Side{Buy, Sell, Sell, Buy}
	for i, l := range s.Legs {
		if l.Kind != wantKinds[i] {
			return fmt.Errorf("%s: leg %d kind %s, want %s", s.Kind, i, l.Kind, wantKinds[i])
		}
		if l.Side != wantSides[i] {
			return fmt.Errorf("%s: leg %d side %s, want %s", s.Kind, i, l.Side, wantSides[i])
		}
		if l.Quantity != 1 {
			return fmt.Errorf("%s: leg %d quantity %d, want 1", s.Kind, i, l.Quantity)
		}
	}
	if s.Legs[0].Strike >= s.Legs[1].Strike {
		return fmt.Errorf("%s: put wing %.2f must be below short put %.2f", s.Kind, s.Legs[0].Strike, s.Legs[1].Strike)
	}
	if s.Legs[2].Strike >= s.Legs[3].Strike {
		return fmt.Errorf("%s: short call %.2f must be below call wing %.2f", s.Kind, s.Legs[2].Strike, s.Legs[3].Strike)
	}
	if s.Kind == IronFly && s.Legs[1].Strike != s.Legs[2].Strike {
		return fmt.Errorf("iron_fly: short strikes must match (put %.2f, call %.2f)", s.Legs[1].Strike, s.Legs[2].Strike)
	}
	if s.Kind == IronCondor && s.Legs[1].Strike >= s.Legs[2].Strike {
		return fmt.Errorf("iron_condor: short put %.2f must be below short call %.2f", s.Legs[1].Strike, s.Legs[2].Strike)
	}
	return nil
}

// validateButterflyShape checks the long-wing / 2x-short-body / long-wing
// put butterfly with asymmetric widths.
func (s *Structure) validateButterflyShape() error {
	if len(s.Legs) != 3 {
		return fmt.Errorf("%s: expected exactly 3 legs, got %d", s.Kind, len(s.Legs))
	}
	wantSides := []Side{Buy, Sell, Buy}
	for i, l := range s.Legs {
		if l.Kind != marketdata.Put {
			return fmt.Errorf("%s: leg %d must be a put, got %s", s.Kind, i, l.Kind)
		}
		if l.Side != wantSides[i] {
			return fmt.Errorf("%s: leg %d side %s, want %s", s.Kind, i, l.Side, wantSides[i])
		}
	}
	far, body, near := s.Legs[0], s.Legs[1], s.Legs[2]
	if !(far.Strike < body.Strike && body.Strike < near.Strike) {
		return fmt.Errorf("%s: strikes must ascend far wing < body < near wing (%.2f, %.2f, %.2f)",
			s.Kind, far.Strike, body.Strike, near.Strike)
	}
	if body.Quantity != 2*far.Quantity || far.Quantity != near.Quantity {
		return fmt.Errorf("%s: body must carry 2x the wing quantity (wings %d/%d, body %d)",
			s.Kind, far.Quantity, near.Quantity, body.Quantity)
	}
	return nil
}
