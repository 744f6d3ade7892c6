// Package regime classifies the current volatility environment into the
// discrete bands that drive structure selection.
package regime

import (
	"fmt"
	"math"

	"github.com/revred/odte/internal/marketdata"
)

// Regime is the discrete market-volatility classification.
type Regime string

const (
	// Low indicates implied volatility below the configured low band.
	Low Regime = "low"
	// Mid indicates implied volatility between the band edges.
	Mid Regime = "mid"
	// High indicates elevated implied volatility or a nearby event.
	High Regime = "high"
)

// Valid returns true if the Regime is one of the defined constants.
func (r Regime) Valid() bool {
	return r == Low || r == Mid || r == High
}

// Bands holds the IV band edges separating the regimes, as annualized
// decimals (e.g. 0.13 and 0.22).
type Bands struct {
	LowMax  float64 `yaml:"low_max"`
	HighMin float64 `yaml:"high_min"`
}

// Validate checks band ordering.
func (b Bands) Validate() error {
	if b.LowMax <= 0 || b.HighMin <= 0 {
		return fmt.Errorf("regime bands must be positive (low_max=%.4f high_min=%.4f)", b.LowMax, b.HighMin)
	}
	if b.LowMax >= b.HighMin {
		return fmt.Errorf("regime low_max (%.4f) must be below high_min (%.4f)", b.LowMax, b.HighMin)
	}
	return nil
}

// Classifier maps a reference IV and event proximity to a Regime.
type Classifier struct {
	bands Bands
}

// NewClassifier creates a Classifier with the given band edges.
func NewClassifier(bands Bands) (*Classifier, error) {
	if err := bands.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{bands: bands}, nil
}

// Classify maps the reference IV to a regime. Band edges use closed-open
// intervals: a value exactly on an edge belongs to the lower regime. An
// event inside the proximity window forces High regardless of IV. Missing
// IV is never synthesized; it fails with ErrDataUnavailable.
func (c *Classifier) Classify(refIV float64, eventNearby bool) (Regime, error) {
	if refIV <= 0 || math.IsNaN(refIV) || math.IsInf(refIV, 0) {
		return "", fmt.Errorf("classify: reference IV %.4f: %w", refIV, marketdata.ErrDataUnavailable)
	}
	if eventNearby {
		return High, nil
	}
	switch {
	case refIV <= c.bands.LowMax:
		return Low, nil
	case refIV <= c.bands.HighMin:
		return Mid, nil
	default:
		return High, nil
	}
}

// FitScore rates how comfortably refIV sits inside the regime's band on
// [0,1]: 1 at the band center, falling linearly to 0 at the edges. The High
// band is open-ended, so anything beyond one Mid-band half-width past the
// edge scores 1. Returns 0 for an unusable IV or regime mismatch.
func (c *Classifier) FitScore(refIV float64, r Regime) float64 {
	if refIV <= 0 || math.IsNaN(refIV) || math.IsInf(refIV, 0) {
		return 0
	}
	half := (c.bands.HighMin - c.bands.LowMax) / 2

	var center float64
	switch r {
	case Low:
		center = c.bands.LowMax / 2
		half = c.bands.LowMax / 2
	case Mid:
		center = (c.bands.LowMax + c.bands.HighMin) / 2
	case High:
		center = c.bands.HighMin + half
		if refIV >= center {
			return 1
		}
	default:
		return 0
	}

	fit := 1 - math.Abs(refIV-center)/half
	if fit < 0 {
		return 0
	}
	return fit
}

// IVRank computes the percentile rank of currentIV within the given history,
// clamped to [0, 100]. NaN and Inf readings in the history are ignored.
// Returns 0 when the history is empty or degenerate.
func IVRank(currentIV float64, historicalIVs []float64) float64 {
	if math.IsNaN(currentIV) || math.IsInf(currentIV, 0) {
		return 0
	}

	clean := make([]float64, 0, len(historicalIVs))
	for _, v := range historicalIVs {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return 0
	}

	minIV := clean[0]
	maxIV := clean[0]
	for _, iv := range clean {
		if iv < minIV {
			minIV = iv
		}
		if iv > maxIV {
			maxIV = iv
		}
	}

	if maxIV == minIV {
		return 0
	}
	r := ((currentIV - minIV) / (maxIV - minIV)) * 100
	if r < 0 {
		return 0
	}
	if r > 100 {
		return 100
	}
	return r
}
