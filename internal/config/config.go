// Package config provides configuration management for the backtest engine.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/revred/odte/internal/fills"
	"github.com/revred/odte/internal/regime"
	"github.com/revred/odte/internal/structure"
)

const (
	// defaultHalfSizeFactor scales contract count on a Half decision when
	// strategy.half_size_factor is unset.
	defaultHalfSizeFactor = 0.5
	// defaultFillWindowSeconds is used when fills.window_seconds is unset.
	defaultFillWindowSeconds = 60
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig        `yaml:"environment"`
	Strategy    StrategyConfig           `yaml:"strategy"`
	Regime      regime.Bands             `yaml:"regime"`
	Selector    structure.SelectorConfig `yaml:"selector"`
	Fills       FillsConfig              `yaml:"fills"`
	Ladder      LadderConfig             `yaml:"ladder"`
	Policy      PolicyConfig             `yaml:"policy"`
	Ledger      LedgerConfig             `yaml:"ledger"`
	Dashboard   DashboardConfig          `yaml:"dashboard"`
}

// EnvironmentConfig defines run-wide settings.
type EnvironmentConfig struct {
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// StrategyConfig defines the weekly cycle parameters.
type StrategyConfig struct {
	Symbol string `yaml:"symbol"`

	// Checkpoint clock times, "HH:MM" UTC, on the cycle's Monday, Wednesday,
	// and Friday respectively.
	EntryTime      string `yaml:"entry_time"`
	ManagementTime string `yaml:"management_time"`
	ForcedExitTime string `yaml:"forced_exit_time"`

	Contracts       int     `yaml:"contracts"`          // full-size contract count
	HalfSizeFactor  float64 `yaml:"half_size_factor"`   // Half-decision scaling of Contracts
	MaxRiskPerTrade float64 `yaml:"max_risk_per_trade"` // dollars per contract handed to the selector

	TakeProfitPct   float64 `yaml:"take_profit_pct"`   // of max profit, e.g. 0.70
	StopLossPct     float64 `yaml:"stop_loss_pct"`     // of risk cap, e.g. 0.80
	RollBandPct     float64 `yaml:"roll_band_pct"`     // |P&L| band around the cap edge, e.g. 0.15
	RollDebitCapPct float64 `yaml:"roll_debit_cap_pct"` // of original risk cap, e.g. 0.10
}

// FillsConfig is the yaml shape of the fill protocol; durations are seconds.
type FillsConfig struct {
	WindowSeconds   int       `yaml:"window_seconds"`
	Steps           []float64 `yaml:"steps"`
	MaxAdverseTicks int       `yaml:"max_adverse_ticks"`
	Tick            float64   `yaml:"tick"`
}

// Simulator converts to the fill simulator's config.
func (f FillsConfig) Simulator() fills.Config {
	return fills.Config{
		Window:          time.Duration(f.WindowSeconds) * time.Second,
		Steps:           f.Steps,
		MaxAdverseTicks: f.MaxAdverseTicks,
		Tick:            f.Tick,
	}
}

// LadderConfig defines the loss-cap rungs.
type LadderConfig struct {
	Caps []float64 `yaml:"caps"`
}

// PolicyConfig points at the gating policy document.
type PolicyConfig struct {
	Path string `yaml:"path"`
}

// LedgerConfig defines ledger persistence.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// DashboardConfig defines the read-only stats server.
type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Strategy.HalfSizeFactor == 0 {
		c.Strategy.HalfSizeFactor = defaultHalfSizeFactor
	}
	if c.Fills.WindowSeconds == 0 {
		c.Fills.WindowSeconds = defaultFillWindowSeconds
	}
	if len(c.Fills.Steps) == 0 {
		c.Fills.Steps = []float64{0.25, 0.5, 1.0}
	}
	if c.Fills.Tick == 0 {
		c.Fills.Tick = 0.05
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = "ledger.json"
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	s := &c.Strategy
	if s.Symbol == "" {
		return fmt.Errorf("strategy.symbol is required")
	}
	for name, v := range map[string]string{
		"entry_time":       s.EntryTime,
		"management_time":  s.ManagementTime,
		"forced_exit_time": s.ForcedExitTime,
	} {
		if _, _, err := ParseClock(v); err != nil {
			return fmt.Errorf("strategy.%s: %w", name, err)
		}
	}
	if s.Contracts <= 0 {
		return fmt.Errorf("strategy.contracts must be positive, got %d", s.Contracts)
	}
	if s.HalfSizeFactor <= 0 || s.HalfSizeFactor >= 1 {
		return fmt.Errorf("strategy.half_size_factor must be in (0,1), got %.2f", s.HalfSizeFactor)
	}
	if s.MaxRiskPerTrade <= 0 {
		return fmt.Errorf("strategy.max_risk_per_trade must be positive, got %.2f", s.MaxRiskPerTrade)
	}
	for name, v := range map[string]float64{
		"take_profit_pct":    s.TakeProfitPct,
		"stop_loss_pct":      s.StopLossPct,
		"roll_band_pct":      s.RollBandPct,
		"roll_debit_cap_pct": s.RollDebitCapPct,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("strategy.%s must be in (0,1], got %.2f", name, v)
		}
	}

	if _, err := regime.NewClassifier(c.Regime); err != nil {
		return fmt.Errorf("regime: %w", err)
	}
	if err := c.Selector.Validate(); err != nil {
		return fmt.Errorf("selector: %w", err)
	}
	if err := c.Fills.Simulator().Validate(); err != nil {
		return fmt.Errorf("fills: %w", err)
	}
	if len(c.Ladder.Caps) == 0 {
		return fmt.Errorf("ladder.caps is required")
	}
	if c.Policy.Path == "" {
		return fmt.Errorf("policy.path is required")
	}
	if c.Dashboard.Enabled && c.Dashboard.Addr == "" {
		return fmt.Errorf("dashboard.addr is required when the dashboard is enabled")
	}
	return nil
}

// ParseClock parses an "HH:MM" checkpoint time.
func ParseClock(v string) (hour, minute int, err error) {
	var h, m int
	if _, err := fmt.Sscanf(v, "%d:%d", &h, &m); err != nil {
		return 0, 0, fmt.Errorf("clock time %q must be HH:MM", v)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("clock time %q out of range", v)
	}
	return h, m, nil
}
