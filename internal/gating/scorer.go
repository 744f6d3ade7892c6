package gating

import (
	"math"

	"github.com/revred/odte/internal/regime"
	"github.com/revred/odte/internal/structure"
)

// Decision is the gating output tier consumed by position sizing.
type Decision string

const (
	// Skip means no trade at this checkpoint.
	Skip Decision = "skip"
	// Half means a reduced-size entry; the scaling factor is configured by
	// the caller, not implied here.
	Half Decision = "half"
	// Full means a full-size entry.
	Full Decision = "full"
)

// Inputs are the seven bounded scalars the scorer combines. Utilization of
// the risk ladder is supplied by the caller (values above 1.0 signal a
// breached cap); the scorer derives nothing itself.
type Inputs struct {
	PoE         float64 `json:"poe"`         // probability of expiring in the profit range, [0,1]
	PoT         float64 `json:"pot"`         // probability of touch, [0,1]
	Edge        float64 `json:"edge"`        // signed edge estimate
	Liquidity   float64 `json:"liquidity"`   // [0,1]
	RegimeFit   float64 `json:"regime_fit"`  // [0,1]
	PinRisk     float64 `json:"pin_risk"`    // [0,1]
	Utilization float64 `json:"utilization"` // [0,1+]
}

// Term is one weighted component of the composite score, exposed for audit.
// It is a diagnostic read, never a control input.
type Term struct {
	Name         string  `json:"name"`
	Input        float64 `json:"input"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

// Result is the scorer output: the bounded composite, the decision tier,
// the per-term breakdown, and the override reason when one fired.
type Result struct {
	Composite float64  `json:"composite"`
	Decision  Decision `json:"decision"`
	Breakdown []Term   `json:"breakdown"`
	// Override names the rule that forced Skip ahead of thresholding;
	// empty when the decision came from the score.
	Override string `json:"override,omitempty"`
}

// sigmoid maps the weighted sum onto (0, 1).
func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// Score computes the composite gating score and decision tier for a
// candidate (kind, regime) pair. Overrides are evaluated before
// thresholding and always win:
//
//  1. the allow table denies the pair,
//  2. ladder utilization has reached 1.0 (cap breached),
//  3. liquidity is below the configured floor.
//
// The composite is still computed on the override path so the ledger can
// record how the trade would have scored.
func (p *Policy) Score(in Inputs, kind structure.Kind, r regime.Regime) Result {
	w := p.Weights
	breakdown := []Term{
		{Name: "poe", Input: in.PoE, Weight: w.PoE, Contribution: w.PoE * in.PoE},
		{Name: "pot", Input: in.PoT, Weight: w.PoT, Contribution: -w.PoT * in.PoT},
		{Name: "edge", Input: in.Edge, Weight: w.Edge, Contribution: w.Edge * in.Edge},
		{Name: "liquidity", Input: in.Liquidity, Weight: w.Liquidity, Contribution: w.Liquidity * in.Liquidity},
		{Name: "regime_fit", Input: in.RegimeFit, Weight: w.RegimeFit, Contribution: w.RegimeFit * in.RegimeFit},
		{Name: "pin_risk", Input: in.PinRisk, Weight: w.PinRisk, Contribution: w.PinRisk * in.PinRisk},
		{Name: "utilization", Input: in.Utilization, Weight: w.Utilization, Contribution: -w.Utilization * in.Utilization},
	}

	z := 0.0
	for _, t := range breakdown {
		z += t.Contribution
	}
	composite := 100 * sigmoid(z)

	res := Result{Composite: composite, Breakdown: breakdown}

	switch {
	case !p.Allowed(kind, r):
		res.Decision = Skip
		res.Override = "structure kind denied for regime"
	case in.Utilization >= 1.0:
		res.Decision = Skip
		res.Override = "risk ladder cap breached"
	case in.Liquidity < p.MinLiquidity:
		res.Decision = Skip
		res.Override = "liquidity below floor"
	case composite < p.HalfThreshold:
		res.Decision = Skip
	case composite < p.FullThreshold:
		res.Decision = Half
	default:
		res.Decision = Full
	}

	return res
}
