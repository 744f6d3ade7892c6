package structure

import (
	"errors"
	"testing"

	"github.com/revred/odte/internal/regime"
)

func testSelectorConfig() SelectorConfig {
	return SelectorConfig{
		Targets:         DeltaTargets{CondorShort: 0.18, BWBBody: 0.30},
		DeltaTolerance:  0.05,
		StrikeTolerance: 2.5,
		CondorWingWidth: 10,
		BWBNearWidth:    5,
		BWBFarWidth:     10,
		FlyWingWidth:    10,
	}
}

func newSelector(t *testing.T, cfg SelectorConfig) *Selector {
	t.Helper()
	sel, err := NewSelector(cfg)
	if err != nil {
		t.Fatalf("NewSelector failed: %v", err)
	}
	return sel
}

func legStrikes(st *Structure) []float64 {
	out := make([]float64, len(st.Legs))
	for i, l := range st.Legs {
		out[i] = l.Strike
	}
	return out
}

func assertStrikes(t *testing.T, st *Structure, want ...float64) {
	t.Helper()
	got := legStrikes(st)
	if len(got) != len(want) {
		t.Fatalf("got %d legs %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("leg strikes = %v, want %v", got, want)
		}
	}
}

func TestSelect_MidRegimeCondorByDelta(t *testing.T) {
	sel := newSelector(t, testSelectorConfig())
	snap := chainSnapshot(true)

	st, err := sel.Select(regime.Mid, snap, 2000)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if st.Kind != IronCondor {
		t.Fatalf("Kind = %s, want iron_condor", st.Kind)
	}
	// Recorded 0.18 deltas sit at 490p/510c; 10-wide wings land on 480/520.
	assertStrikes(t, st, 480, 490, 510, 520)
}

func TestSelect_LowRegimeBrokenWing(t *testing.T) {
	sel := newSelector(t, testSelectorConfig())
	snap := chainSnapshot(true)

	st, err := sel.Select(regime.Low, snap, 2000)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if st.Kind != BrokenWingButterfly {
		t.Fatalf("Kind = %s, want broken_wing_butterfly", st.Kind)
	}
	// Body at the 0.28-delta 495p; near wing 5 up, far wing 10 down.
	assertStrikes(t, st, 485, 495, 500)
	if st.Legs[1].Quantity != 2 {
		t.Errorf("body quantity = %d, want 2", st.Legs[1].Quantity)
	}
}

func TestSelect_HighRegimeIronFly(t *testing.T) {
	sel := newSelector(t, testSelectorConfig())
	snap := chainSnapshot(true)

	st, err := sel.Select(regime.High, snap, 2000)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if st.Kind != IronFly {
		t.Fatalf("Kind = %s, want iron_fly", st.Kind)
	}
	assertStrikes(t, st, 490, 500, 500, 510)
}

func TestSelect_NeverInventsStrikes(t *testing.T) {
	sel := newSelector(t, testSelectorConfig())
	snap := chainSnapshot(true)

	for _, r := range []regime.Regime{regime.Low, regime.Mid, regime.High} {
		st, err := sel.Select(r, snap, 2000)
		if err != nil {
			t.Fatalf("Select(%s) failed: %v", r, err)
		}
		for _, l := range st.Legs {
			if !snap.HasStrike(l.Strike, l.Kind) {
				t.Errorf("%s leg at %.2f %s does not exist in the chain", st.Kind, l.Strike, l.Kind)
			}
		}
	}
}

func TestSelect_ExpectedMoveFallbackWithoutGreeks(t *testing.T) {
	sel := newSelector(t, testSelectorConfig())
	snap := chainSnapshot(false)

	// With no recorded deltas the condor shorts come from the expected-move
	// approximation, which lands near the same 490/510 pair.
	st, err := sel.Select(regime.Mid, snap, 2000)
	if err != nil {
		t.Fatalf("Select without greeks failed: %v", err)
	}
	assertStrikes(t, st, 480, 490, 510, 520)
}

func TestSelect_NoViableStrike(t *testing.T) {
	sel := newSelector(t, testSelectorConfig())

	t.Run("no greeks and no IV reference", func(t *testing.T) {
		snap := chainSnapshot(false)
		snap.RefIV = 0
		_, err := sel.Select(regime.Mid, snap, 2000)
		if !errors.Is(err, ErrNoViableStrike) {
			t.Errorf("Select error = %v, want ErrNoViableStrike", err)
		}
	})

	t.Run("risk cap unreachable at narrowest wings", func(t *testing.T) {
		snap := chainSnapshot(true)
		_, err := sel.Select(regime.Mid, snap, 100)
		if !errors.Is(err, ErrNoViableStrike) {
			t.Errorf("Select error = %v, want ErrNoViableStrike", err)
		}
	})

	t.Run("non-positive risk cap", func(t *testing.T) {
		snap := chainSnapshot(true)
		_, err := sel.Select(regime.Mid, snap, 0)
		if !errors.Is(err, ErrNoViableStrike) {
			t.Errorf("Select error = %v, want ErrNoViableStrike", err)
		}
	})
}

func TestSelect_NarrowsWingsToFitCap(t *testing.T) {
	sel := newSelector(t, testSelectorConfig())
	snap := chainSnapshot(true)

	// 10-wide wings risk about $865 per contract; a $600 cap forces one
	// narrowing step to the 5-wide 485/515 wings (~$420).
	st, err := sel.Select(regime.Mid, snap, 600)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	assertStrikes(t, st, 485, 490, 510, 515)

	credit, ok := st.MidNetCredit(snap)
	if !ok {
		t.Fatal("MidNetCredit reported a missing leg")
	}
	if loss := st.MaxLoss(credit) * 100; loss > 600 {
		t.Errorf("narrowed structure still risks $%.0f above the $600 cap", loss)
	}
}

func TestSelect_UnknownRegime(t *testing.T) {
	sel := newSelector(t, testSelectorConfig())
	if _, err := sel.Select(regime.Regime("sideways"), chainSnapshot(true), 2000); err == nil {
		t.Error("unknown regime should error")
	}
}

func TestSelectorConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SelectorConfig)
		wantErr bool
	}{
		{"valid", func(c *SelectorConfig) {}, false},
		{"condor target at half", func(c *SelectorConfig) { c.Targets.CondorShort = 0.5 }, true},
		{"zero body target", func(c *SelectorConfig) { c.Targets.BWBBody = 0 }, true},
		{"zero delta tolerance", func(c *SelectorConfig) { c.DeltaTolerance = 0 }, true},
		{"zero strike tolerance", func(c *SelectorConfig) { c.StrikeTolerance = 0 }, true},
		{"zero wing width", func(c *SelectorConfig) { c.CondorWingWidth = 0 }, true},
		{"unbroken wing", func(c *SelectorConfig) { c.BWBFarWidth = c.BWBNearWidth }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testSelectorConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
