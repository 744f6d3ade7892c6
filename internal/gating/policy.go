// Package gating scores candidate trades against the loaded policy and maps
// the composite score to a decision tier.
package gating

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	yaml "gopkg.in/yaml.v3"

	"github.com/revred/odte/internal/regime"
	"github.com/revred/odte/internal/structure"
)

// ErrPolicyMisconfigured indicates the gating policy document failed
// validation. This is fatal at load time; no decision may run against a
// malformed policy.
var ErrPolicyMisconfigured = errors.New("gating: policy misconfigured")

// Weights holds the per-input weights of the composite score. All weights
// are magnitudes; the scorer fixes each input's sign (PoE up, PoT down,
// utilization down).
type Weights struct {
	PoE         float64 `yaml:"poe"`
	PoT         float64 `yaml:"pot"`
	Edge        float64 `yaml:"edge"`
	Liquidity   float64 `yaml:"liquidity"`
	RegimeFit   float64 `yaml:"regime_fit"`
	PinRisk     float64 `yaml:"pin_risk"`
	Utilization float64 `yaml:"utilization"`
}

// Policy is the regime-dependent gating configuration. Loaded once at
// startup and immutable afterward.
type Policy struct {
	// Allow maps structure kind -> regime -> permitted. A denied pair is a
	// hard Skip regardless of score.
	Allow map[structure.Kind]map[regime.Regime]bool `yaml:"allow"`

	HalfThreshold float64 `yaml:"half_threshold"` // score gate for a reduced-size entry
	FullThreshold float64 `yaml:"full_threshold"` // score gate for a full-size entry

	Weights Weights `yaml:"weights"`

	// MinLiquidity is the liquidity-score floor below which trades are
	// skipped outright.
	MinLiquidity float64 `yaml:"min_liquidity"`
}

// LoadPolicy reads and validates the policy document. Environment variables
// in the file are expanded before parsing.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is an operator-provided policy file
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var p Policy
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parsing policy: %w", err)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate fails fast on threshold ordering, missing allow-table entries,
// and non-finite weights. Every error wraps ErrPolicyMisconfigured.
func (p *Policy) Validate() error {
	if p.HalfThreshold < 0 || p.FullThreshold > 100 || p.HalfThreshold >= p.FullThreshold {
		return fmt.Errorf("%w: thresholds must satisfy 0 <= half (%.1f) < full (%.1f) <= 100",
			ErrPolicyMisconfigured, p.HalfThreshold, p.FullThreshold)
	}
	if p.MinLiquidity < 0 || p.MinLiquidity > 1 {
		return fmt.Errorf("%w: min_liquidity %.2f must be in [0,1]", ErrPolicyMisconfigured, p.MinLiquidity)
	}

	for _, kind := range structure.Kinds() {
		regimes, ok := p.Allow[kind]
		if !ok {
			return fmt.Errorf("%w: allow table missing structure kind %q", ErrPolicyMisconfigured, kind)
		}
		for _, r := range []regime.Regime{regime.Low, regime.Mid, regime.High} {
			if _, ok := regimes[r]; !ok {
				return fmt.Errorf("%w: allow table missing entry (%s, %s)", ErrPolicyMisconfigured, kind, r)
			}
		}
	}

	for name, w := range map[string]float64{
		"poe": p.Weights.PoE, "pot": p.Weights.PoT, "edge": p.Weights.Edge,
		"liquidity": p.Weights.Liquidity, "regime_fit": p.Weights.RegimeFit,
		"pin_risk": p.Weights.PinRisk, "utilization": p.Weights.Utilization,
	} {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: weight %s must be finite and >= 0, got %v", ErrPolicyMisconfigured, name, w)
		}
	}

	return nil
}

// Allowed reports whether the (kind, regime) pair is permitted by the allow
// table. Validate guarantees the entry exists.
func (p *Policy) Allowed(kind structure.Kind, r regime.Regime) bool {
	return p.Allow[kind][r]
}
