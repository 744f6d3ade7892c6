// Package marketdata defines the historical quote snapshot model and the
// provider contract used by every decision checkpoint.
package marketdata

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// OptionKind identifies the contract right of a quoted option.
type OptionKind string

const (
	// Put represents a put option contract
	Put OptionKind = "put"
	// Call represents a call option contract
	Call OptionKind = "call"
)

// Valid returns true if the OptionKind is one of the defined constants.
func (k OptionKind) Valid() bool {
	return k == Put || k == Call
}

// Key addresses a single quoted contract within a snapshot.
type Key struct {
	Strike float64
	Kind   OptionKind
}

// Quote holds the recorded market for one contract at the snapshot time.
// Greeks are zero when the historical source did not record them; callers
// must check HasGreeks before relying on Delta.
type Quote struct {
	Bid          float64
	Ask          float64
	Last         float64
	Volume       int64
	OpenInterest int64
	Delta        float64
	Gamma        float64
	Theta        float64
	Vega         float64
	HasGreeks    bool
}

// Mid returns the bid/ask midpoint.
func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// Spread returns the quoted bid/ask spread.
func (q Quote) Spread() float64 {
	return q.Ask - q.Bid
}

// Liquid reports whether the quote carries a usable two-sided market.
func (q Quote) Liquid() bool {
	return q.Bid > 0 && q.Ask >= q.Bid
}

// Snapshot is an immutable view of the option chain for one underlying at
// one historical timestamp. Nothing recorded after Timestamp is visible.
type Snapshot struct {
	Symbol     string
	Timestamp  time.Time
	Underlying float64
	RefIV      float64 // annualized implied-vol reference as a decimal, 0 when unavailable
	Expiry     time.Time
	Quotes     map[Key]Quote
}

// Quote returns the recorded quote for (strike, kind), if present.
func (s *Snapshot) Quote(strike float64, kind OptionKind) (Quote, bool) {
	q, ok := s.Quotes[Key{Strike: strike, Kind: kind}]
	return q, ok
}

// HasStrike reports whether the given strike exists for the given kind.
func (s *Snapshot) HasStrike(strike float64, kind OptionKind) bool {
	_, ok := s.Quotes[Key{Strike: strike, Kind: kind}]
	return ok
}

// Strikes returns the sorted distinct strikes available for the given kind.
func (s *Snapshot) Strikes(kind OptionKind) []float64 {
	out := make([]float64, 0, len(s.Quotes)/2)
	for k := range s.Quotes {
		if k.Kind == kind {
			out = append(out, k.Strike)
		}
	}
	sort.Float64s(out)
	return out
}

// TimeToExpiry returns the fraction of a year remaining until the chain's
// expiry, floored at zero.
func (s *Snapshot) TimeToExpiry() float64 {
	t := s.Expiry.Sub(s.Timestamp).Hours() / 24 / 365
	if t < 0 {
		return 0
	}
	return t
}

// ExpectedMove returns the one-period standard-deviation move implied by the
// snapshot's reference IV: price * IV * sqrt(T). Zero when IV is unavailable.
func (s *Snapshot) ExpectedMove() float64 {
	if s.RefIV <= 0 {
		return 0
	}
	return s.Underlying * s.RefIV * math.Sqrt(s.TimeToExpiry())
}

// Validate checks the snapshot's internal invariants: a set timestamp, a
// positive underlying, and bid <= ask on every liquid quote.
func (s *Snapshot) Validate() error {
	if s.Timestamp.IsZero() {
		return fmt.Errorf("snapshot for %s: timestamp is zero", s.Symbol)
	}
	if s.Underlying <= 0 {
		return fmt.Errorf("snapshot for %s: underlying price %.2f is not positive", s.Symbol, s.Underlying)
	}
	for k, q := range s.Quotes {
		if !k.Kind.Valid() {
			return fmt.Errorf("snapshot for %s: invalid option kind %q at strike %.2f", s.Symbol, k.Kind, k.Strike)
		}
		if q.Bid < 0 || q.Ask < 0 {
			return fmt.Errorf("snapshot for %s: negative quote at %.2f %s", s.Symbol, k.Strike, k.Kind)
		}
		if q.Bid > q.Ask {
			return fmt.Errorf("snapshot for %s: crossed market at %.2f %s (bid %.2f > ask %.2f)",
				s.Symbol, k.Strike, k.Kind, q.Bid, q.Ask)
		}
	}
	return nil
}
