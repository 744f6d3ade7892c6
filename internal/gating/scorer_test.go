package gating

import (
	"testing"

	"github.com/revred/odte/internal/regime"
	"github.com/revred/odte/internal/structure"
)

func fullAllowTable() map[structure.Kind]map[regime.Regime]bool {
	allow := make(map[structure.Kind]map[regime.Regime]bool)
	for _, kind := range structure.Kinds() {
		allow[kind] = map[regime.Regime]bool{
			regime.Low:  true,
			regime.Mid:  true,
			regime.High: true,
		}
	}
	return allow
}

func testPolicy() *Policy {
	return &Policy{
		Allow:         fullAllowTable(),
		HalfThreshold: 40,
		FullThreshold: 65,
		MinLiquidity:  0.2,
		Weights: Weights{
			PoE:         3.0,
			PoT:         1.5,
			Edge:        1.0,
			Liquidity:   0.8,
			RegimeFit:   0.6,
			PinRisk:     0.4,
			Utilization: 2.0,
		},
	}
}

func baseInputs() Inputs {
	return Inputs{
		PoE:         0.70,
		PoT:         0.35,
		Edge:        0.10,
		Liquidity:   0.80,
		RegimeFit:   0.70,
		PinRisk:     0.60,
		Utilization: 0.30,
	}
}

func TestScore_DecisionTiers(t *testing.T) {
	p := testPolicy()

	tests := []struct {
		name   string
		mutate func(*Inputs)
		want   Decision
	}{
		{"strong inputs score full", func(in *Inputs) { in.PoE = 0.95; in.PoT = 0.10; in.Utilization = 0 }, Full},
		{"middling inputs score half", func(in *Inputs) {
			in.PoE = 0.35
			in.PoT = 0.60
			in.Edge = 0
			in.Liquidity = 0.40
			in.RegimeFit = 0.30
			in.PinRisk = 0.20
		}, Half},
		{"weak inputs score skip", func(in *Inputs) { in.PoE = 0.05; in.PoT = 0.95; in.Edge = -1.0; in.Utilization = 0.9 }, Skip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInputs()
			tt.mutate(&in)
			res := p.Score(in, structure.IronCondor, regime.Mid)
			if res.Decision != tt.want {
				t.Errorf("Score() decision = %s (composite %.1f), want %s", res.Decision, res.Composite, tt.want)
			}
			if res.Override != "" {
				t.Errorf("unexpected override %q", res.Override)
			}
			if res.Composite < 0 || res.Composite > 100 {
				t.Errorf("composite %.2f out of [0,100]", res.Composite)
			}
		})
	}
}

func TestScore_TiersStrictlyOrdered(t *testing.T) {
	p := testPolicy()

	// Sweep PoE to produce a monotone score; assert tier boundaries match
	// thresholds with no overlap.
	for poe := 0.0; poe <= 1.0; poe += 0.01 {
		in := baseInputs()
		in.PoE = poe
		res := p.Score(in, structure.IronCondor, regime.Mid)
		switch {
		case res.Composite < p.HalfThreshold:
			if res.Decision != Skip {
				t.Fatalf("score %.2f below half threshold gave %s", res.Composite, res.Decision)
			}
		case res.Composite < p.FullThreshold:
			if res.Decision != Half {
				t.Fatalf("score %.2f between thresholds gave %s", res.Composite, res.Decision)
			}
		default:
			if res.Decision != Full {
				t.Fatalf("score %.2f at/above full threshold gave %s", res.Composite, res.Decision)
			}
		}
	}
}

func TestScore_Monotonicity(t *testing.T) {
	p := testPolicy()

	tests := []struct {
		name string
		set  func(*Inputs, float64)
		// direction +1: raising the input must never lower the composite;
		// -1: raising it must never raise the composite.
		direction float64
		lo, hi    float64
	}{
		{"poe up never decreases", func(in *Inputs, v float64) { in.PoE = v }, +1, 0, 1},
		{"pot up never increases", func(in *Inputs, v float64) { in.PoT = v }, -1, 0, 1},
		{"utilization toward 1.0 never increases", func(in *Inputs, v float64) { in.Utilization = v }, -1, 0, 1},
		{"liquidity up never decreases", func(in *Inputs, v float64) { in.Liquidity = v }, +1, 0.3, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := true
			prev := 0.0
			for v := tt.lo; v <= tt.hi+1e-9; v += 0.05 {
				in := baseInputs()
				tt.set(&in, v)
				res := p.Score(in, structure.IronCondor, regime.Mid)
				score := res.Composite * tt.direction
				if !first && score < prev-1e-9 {
					t.Fatalf("composite not monotone at input %v", v)
				}
				prev = score
				first = false
			}
		})
	}
}

func TestScore_OverridePrecedence(t *testing.T) {
	// Inputs chosen to score deep into Full territory; overrides must still win.
	in := baseInputs()
	in.PoE = 0.99
	in.PoT = 0.01
	in.Utilization = 0

	t.Run("allow table deny beats any score", func(t *testing.T) {
		p := testPolicy()
		p.Allow[structure.IronFly][regime.Low] = false
		res := p.Score(in, structure.IronFly, regime.Low)
		if res.Decision != Skip {
			t.Errorf("denied pair gave %s, want skip", res.Decision)
		}
		if res.Override == "" {
			t.Error("expected override reason")
		}
		if res.Composite < p.FullThreshold {
			t.Errorf("composite %.1f should still be reported above full threshold", res.Composite)
		}
	})

	t.Run("breached ladder beats any score", func(t *testing.T) {
		p := testPolicy()
		breached := in
		breached.Utilization = 1.0
		res := p.Score(breached, structure.IronCondor, regime.Mid)
		if res.Decision != Skip || res.Override == "" {
			t.Errorf("breached utilization gave %s override %q, want skip with reason", res.Decision, res.Override)
		}
	})

	t.Run("liquidity floor beats any score", func(t *testing.T) {
		p := testPolicy()
		illiquid := in
		illiquid.Liquidity = 0.05
		res := p.Score(illiquid, structure.IronCondor, regime.Mid)
		if res.Decision != Skip || res.Override == "" {
			t.Errorf("illiquid inputs gave %s override %q, want skip with reason", res.Decision, res.Override)
		}
	})
}

func TestScore_BreakdownCoversAllInputs(t *testing.T) {
	p := testPolicy()
	res := p.Score(baseInputs(), structure.IronCondor, regime.Mid)

	want := map[string]bool{
		"poe": false, "pot": false, "edge": false, "liquidity": false,
		"regime_fit": false, "pin_risk": false, "utilization": false,
	}
	for _, term := range res.Breakdown {
		seen, ok := want[term.Name]
		if !ok {
			t.Errorf("unexpected breakdown term %q", term.Name)
			continue
		}
		if seen {
			t.Errorf("duplicate breakdown term %q", term.Name)
		}
		want[term.Name] = true
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("breakdown missing term %q", name)
		}
	}

	// PoT and utilization contribute negatively.
	for _, term := range res.Breakdown {
		switch term.Name {
		case "pot", "utilization":
			if term.Contribution > 0 {
				t.Errorf("%s contribution %.3f should not be positive", term.Name, term.Contribution)
			}
		case "poe", "liquidity", "regime_fit", "pin_risk":
			if term.Contribution < 0 {
				t.Errorf("%s contribution %.3f should not be negative", term.Name, term.Contribution)
			}
		}
	}
}
