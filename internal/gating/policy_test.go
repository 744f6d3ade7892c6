package gating

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/revred/odte/internal/regime"
	"github.com/revred/odte/internal/structure"
)

const validPolicyYAML = `
allow:
  broken_wing_butterfly: {low: true, mid: false, high: false}
  iron_condor: {low: false, mid: true, high: false}
  iron_fly: {low: false, mid: false, high: true}
half_threshold: 40
full_threshold: 65
min_liquidity: 0.2
weights:
  poe: 3.0
  pot: 1.5
  edge: 1.0
  liquidity: 0.8
  regime_fit: 0.6
  pin_risk: 0.4
  utilization: 2.0
`

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing policy fixture: %v", err)
	}
	return path
}

func TestLoadPolicy_Valid(t *testing.T) {
	p, err := LoadPolicy(writePolicy(t, validPolicyYAML))
	if err != nil {
		t.Fatalf("LoadPolicy failed: %v", err)
	}
	if !p.Allowed(structure.IronCondor, regime.Mid) {
		t.Error("iron_condor/mid should be allowed")
	}
	if p.Allowed(structure.IronCondor, regime.High) {
		t.Error("iron_condor/high should be denied")
	}
	if p.HalfThreshold != 40 || p.FullThreshold != 65 {
		t.Errorf("thresholds = %.0f/%.0f, want 40/65", p.HalfThreshold, p.FullThreshold)
	}
}

func TestLoadPolicy_FailsFast(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Policy)
		wantErr error
	}{
		{"inverted thresholds", func(p *Policy) { p.HalfThreshold = 70; p.FullThreshold = 40 }, ErrPolicyMisconfigured},
		{"equal thresholds", func(p *Policy) { p.HalfThreshold = 50; p.FullThreshold = 50 }, ErrPolicyMisconfigured},
		{"threshold above 100", func(p *Policy) { p.FullThreshold = 120 }, ErrPolicyMisconfigured},
		{"missing kind in allow table", func(p *Policy) { delete(p.Allow, structure.IronFly) }, ErrPolicyMisconfigured},
		{"missing regime in allow table", func(p *Policy) { delete(p.Allow[structure.IronCondor], regime.Low) }, ErrPolicyMisconfigured},
		{"negative weight", func(p *Policy) { p.Weights.PoE = -1 }, ErrPolicyMisconfigured},
		{"liquidity floor above 1", func(p *Policy) { p.MinLiquidity = 1.5 }, ErrPolicyMisconfigured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := LoadPolicy(writePolicy(t, validPolicyYAML))
			if err != nil {
				t.Fatalf("fixture policy invalid: %v", err)
			}
			tt.mutate(p)
			err = p.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadPolicy_UnknownFieldRejected(t *testing.T) {
	bad := validPolicyYAML + "\nsurprise_field: 1\n"
	if _, err := LoadPolicy(writePolicy(t, bad)); err == nil {
		t.Error("unknown field should fail strict decode")
	}
}

func TestLoadPolicy_MissingFile(t *testing.T) {
	if _, err := LoadPolicy(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}
