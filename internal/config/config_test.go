package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validYAML = `
environment:
  log_level: info
strategy:
  symbol: XSP
  entry_time: "10:05"
  management_time: "10:35"
  forced_exit_time: "15:30"
  contracts: 4
  half_size_factor: 0.5
  max_risk_per_trade: 500
  take_profit_pct: 0.70
  stop_loss_pct: 0.80
  roll_band_pct: 0.15
  roll_debit_cap_pct: 0.10
regime:
  low_max: 0.14
  high_min: 0.22
selector:
  delta_targets:
    condor_short: 0.18
    bwb_body: 0.30
  delta_tolerance: 0.05
  strike_tolerance: 2.5
  condor_wing_width: 10
  bwb_near_width: 5
  bwb_far_width: 10
  fly_wing_width: 10
fills:
  window_seconds: 60
  steps: [0.25, 0.5, 1.0]
  max_adverse_ticks: 3
  tick: 0.05
ladder:
  caps: [500, 300, 200, 100]
policy:
  path: policy.yaml
ledger:
  path: ledger.json
dashboard:
  enabled: true
  addr: ":8080"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config fixture: %v", err)
	}
	return path
}

func TestLoad_Valid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Strategy.Symbol != "XSP" || cfg.Strategy.Contracts != 4 {
		t.Errorf("strategy = %+v, want XSP x4", cfg.Strategy)
	}
	if got := cfg.Fills.Simulator().Window.Seconds(); got != 60 {
		t.Errorf("fill window = %vs, want 60", got)
	}
	if len(cfg.Ladder.Caps) != 4 || cfg.Ladder.Caps[0] != 500 {
		t.Errorf("ladder caps = %v", cfg.Ladder.Caps)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("ODTE_SYMBOL", "SPX")
	doc := strings.Replace(validYAML, "symbol: XSP", "symbol: ${ODTE_SYMBOL}", 1)
	cfg, err := Load(writeConfig(t, doc))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Strategy.Symbol != "SPX" {
		t.Errorf("symbol = %q, want expanded SPX", cfg.Strategy.Symbol)
	}
}

func TestLoad_Defaults(t *testing.T) {
	doc := validYAML
	doc = strings.Replace(doc, "  half_size_factor: 0.5\n", "", 1)
	doc = strings.Replace(doc, "  window_seconds: 60\n", "", 1)
	cfg, err := Load(writeConfig(t, doc))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Strategy.HalfSizeFactor != 0.5 {
		t.Errorf("HalfSizeFactor default = %v, want 0.5", cfg.Strategy.HalfSizeFactor)
	}
	if cfg.Fills.WindowSeconds != 60 {
		t.Errorf("WindowSeconds default = %v, want 60", cfg.Fills.WindowSeconds)
	}
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	if _, err := Load(writeConfig(t, validYAML+"\nsurprise: 1\n")); err == nil {
		t.Error("unknown top-level field should fail strict decode")
	}
}

func TestLoad_FailsFast(t *testing.T) {
	tests := []struct {
		name   string
		mangle func(string) string
	}{
		{"missing symbol", func(s string) string { return strings.Replace(s, "symbol: XSP", "symbol: \"\"", 1) }},
		{"bad clock", func(s string) string { return strings.Replace(s, `entry_time: "10:05"`, `entry_time: "25:99"`, 1) }},
		{"zero contracts", func(s string) string { return strings.Replace(s, "contracts: 4", "contracts: 0", 1) }},
		{"half factor at 1", func(s string) string { return strings.Replace(s, "half_size_factor: 0.5", "half_size_factor: 1.0", 1) }},
		{"take profit above 1", func(s string) string { return strings.Replace(s, "take_profit_pct: 0.70", "take_profit_pct: 1.70", 1) }},
		{"inverted regime bands", func(s string) string { return strings.Replace(s, "low_max: 0.14", "low_max: 0.30", 1) }},
		{"unbroken wing", func(s string) string { return strings.Replace(s, "bwb_far_width: 10", "bwb_far_width: 5", 1) }},
		{"non-escalating steps", func(s string) string { return strings.Replace(s, "steps: [0.25, 0.5, 1.0]", "steps: [0.5, 0.25]", 1) }},
		{"empty ladder", func(s string) string { return strings.Replace(s, "caps: [500, 300, 200, 100]", "caps: []", 1) }},
		{"missing policy path", func(s string) string { return strings.Replace(s, "path: policy.yaml", `path: ""`, 1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.mangle(validYAML))); err == nil {
				t.Error("Load should fail fast on the broken document")
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("15:30")
	if err != nil || h != 15 || m != 30 {
		t.Errorf("ParseClock = %d:%d, %v", h, m, err)
	}
	for _, bad := range []string{"", "noon", "24:00", "10:60", "-1:05"} {
		if _, _, err := ParseClock(bad); err == nil {
			t.Errorf("ParseClock(%q) should fail", bad)
		}
	}
}
