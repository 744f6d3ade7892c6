// Package mock provides a deterministic chain-snapshot provider for tests
// and offline simulation. Quotes are generated from a Bachelier-style
// pricing model so deltas, mids, and the expected move stay mutually
// consistent across a chain.
package mock

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/revred/odte/internal/marketdata"
	"github.com/revred/odte/internal/util"
)

// Config shapes the generated market.
type Config struct {
	Symbol          string
	BasePrice       float64
	BaseIV          float64 // annualized, e.g. 0.18
	StrikeInterval  float64
	StrikesEachSide int
	Tick            float64
	DataStart       time.Time // requests before this fail with ErrDataUnavailable
}

// DefaultConfig returns an XSP-shaped market.
func DefaultConfig() Config {
	return Config{
		Symbol:          "XSP",
		BasePrice:       500,
		BaseIV:          0.18,
		StrikeInterval:  5,
		StrikesEachSide: 12,
		Tick:            0.05,
		DataStart:       time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC),
	}
}

// Provider generates deterministic snapshots: the same (symbol, timestamp)
// request always yields the same chain. Safe for concurrent use.
type Provider struct {
	cfg Config
}

// NewProvider creates a deterministic snapshot provider.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.Symbol == "" || cfg.BasePrice <= 0 || cfg.BaseIV <= 0 {
		return nil, fmt.Errorf("mock provider: symbol, base price, and base IV are required")
	}
	if cfg.StrikeInterval <= 0 || cfg.StrikesEachSide <= 0 || cfg.Tick <= 0 {
		return nil, fmt.Errorf("mock provider: strike grid and tick must be positive")
	}
	return &Provider{cfg: cfg}, nil
}

var _ marketdata.Provider = (*Provider)(nil)

// GetSnapshot builds the chain as of ts. Nothing in the result depends on
// any time after ts.
func (p *Provider) GetSnapshot(ctx context.Context, symbol string, ts time.Time) (*marketdata.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if symbol != p.cfg.Symbol {
		return nil, fmt.Errorf("no data for symbol %s: %w", symbol, marketdata.ErrDataUnavailable)
	}
	if ts.Before(p.cfg.DataStart) {
		return nil, fmt.Errorf("no data at or before %s: %w", ts.Format(time.RFC3339), marketdata.ErrDataUnavailable)
	}

	price := p.underlyingAt(ts)
	iv := p.ivAt(ts)
	expiry := nextFridayClose(ts)

	snap := &marketdata.Snapshot{
		Symbol:     symbol,
		Timestamp:  ts,
		Underlying: price,
		RefIV:      iv,
		Expiry:     expiry,
		Quotes:     make(map[marketdata.Key]marketdata.Quote),
	}

	sigma := price * iv * math.Sqrt(snap.TimeToExpiry())
	if sigma <= 0 {
		sigma = 0.01
	}

	atm := util.RoundToTick(price, p.cfg.StrikeInterval)
	for i := -p.cfg.StrikesEachSide; i <= p.cfg.StrikesEachSide; i++ {
		strike := atm + float64(i)*p.cfg.StrikeInterval

		d := (price - strike) / sigma
		callMid := sigma * (d*normCDF(d) + normPDF(d))
		putMid := callMid - (price - strike)

		callDelta := normCDF(d)
		putDelta := callDelta - 1

		snap.Quotes[marketdata.Key{Strike: strike, Kind: marketdata.Call}] =
			p.quote(callMid, callDelta, i)
		snap.Quotes[marketdata.Key{Strike: strike, Kind: marketdata.Put}] =
			p.quote(putMid, putDelta, i)
	}
	return snap, nil
}

// quote wraps a model mid into a two-sided market. Spreads widen away from
// the money the way recorded chains do.
func (p *Provider) quote(mid, delta float64, stepsOut int) marketdata.Quote {
	if mid < p.cfg.Tick {
		mid = p.cfg.Tick
	}
	half := p.cfg.Tick + 0.01*mid + 0.005*math.Abs(float64(stepsOut))
	bid := util.FloorToTick(mid-half, p.cfg.Tick)
	if bid < p.cfg.Tick {
		bid = p.cfg.Tick
	}
	ask := util.CeilToTick(mid+half, p.cfg.Tick)
	if ask < bid+p.cfg.Tick {
		ask = bid + p.cfg.Tick
	}
	return marketdata.Quote{
		Bid:          bid,
		Ask:          ask,
		Last:         util.RoundToTick(mid, p.cfg.Tick),
		Volume:       1000 - 50*int64(abs(stepsOut)),
		OpenInterest: 8000 - 300*int64(abs(stepsOut)),
		Delta:        delta,
		HasGreeks:    true,
	}
}

// underlyingAt drifts the price deterministically through the day: a slow
// multi-day wave plus an intraday wobble.
func (p *Provider) underlyingAt(ts time.Time) float64 {
	h := ts.Sub(p.cfg.DataStart).Hours()
	drift := 0.02 * math.Sin(h/72*2*math.Pi)
	wobble := 0.004 * math.Sin(h/6.5*2*math.Pi)
	return p.cfg.BasePrice * (1 + drift + wobble)
}

// ivAt cycles the reference IV across the regime bands over roughly three
// weeks so backtests visit Low, Mid, and High conditions.
func (p *Provider) ivAt(ts time.Time) float64 {
	h := ts.Sub(p.cfg.DataStart).Hours()
	return p.cfg.BaseIV * (1 + 0.45*math.Sin(h/(21*24)*2*math.Pi))
}

// nextFridayClose returns the first Friday 21:00 UTC at or after ts.
func nextFridayClose(ts time.Time) time.Time {
	t := time.Date(ts.Year(), ts.Month(), ts.Day(), 21, 0, 0, 0, time.UTC)
	for t.Weekday() != time.Friday || !t.After(ts) {
		t = t.Add(24 * time.Hour)
	}
	return t
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
