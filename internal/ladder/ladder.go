// Package ladder enforces the reverse-Fibonacci loss caps that bound how
// much risk a trading period may take on. A breached period steps the cap
// down one rung; a profitable period resets it to the top; a losing but
// unbreached period holds.
package ladder

import (
	"errors"
	"fmt"
	"sync"
)

// ErrLadderBreach indicates the period cap cannot absorb the realized or
// proposed loss. New risk is refused until the period advances.
var ErrLadderBreach = errors.New("ladder: loss cap breached")

// DefaultCaps is the reverse-Fibonacci rung sequence in dollars.
func DefaultCaps() []float64 {
	return []float64{500, 300, 200, 100}
}

// Ladder tracks the active rung and the period's realized loss. Safe for
// concurrent use; period advancement expects a single writer.
type Ladder struct {
	mu       sync.RWMutex
	caps     []float64
	level    int
	dayLoss  float64 // realized loss this period, negative when profitable
	breached bool    // sticky until the period advances
}

// New creates a Ladder at the top rung. Caps must be positive and strictly
// descending.
func New(caps []float64) (*Ladder, error) {
	if len(caps) == 0 {
		return nil, fmt.Errorf("ladder: at least one cap is required")
	}
	prev := 0.0
	for i, c := range caps {
		if c <= 0 {
			return nil, fmt.Errorf("ladder: cap %d (%.2f) must be positive", i, c)
		}
		if i > 0 && c >= prev {
			return nil, fmt.Errorf("ladder: caps must strictly descend, cap %d (%.2f) >= %.2f", i, c, prev)
		}
		prev = c
	}
	return &Ladder{caps: append([]float64(nil), caps...)}, nil
}

// Cap returns the active rung's dollar loss cap.
func (l *Ladder) Cap() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.caps[l.level]
}

// Level returns the active rung index, 0 being the least conservative.
func (l *Ladder) Level() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

// RecordPnL applies a realized profit (positive) or loss (negative) to the
// current period. The breach flag latches the moment the cumulative loss
// reaches the cap and holds until the period advances, even if later gains
// claw the loss back.
func (l *Ladder) RecordPnL(delta float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dayLoss -= delta
	if l.dayLoss >= l.caps[l.level] {
		l.breached = true
	}
}

// Breached reports whether the period's realized loss has reached the cap.
func (l *Ladder) Breached() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.breached
}

// Utilization returns the fraction of the cap consumed by the period's
// realized loss, floored at zero. Values at or above 1.0 force a skip
// upstream.
func (l *Ladder) Utilization() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	u := l.dayLoss / l.caps[l.level]
	if u < 0 {
		return 0
	}
	return u
}

// Remaining returns the loss budget still available this period.
func (l *Ladder) Remaining() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rem := l.caps[l.level] - l.dayLoss
	if rem < 0 {
		return 0
	}
	return rem
}

// Validate checks that taking on candidateLoss of additional worst-case risk
// keeps the period within its cap. The trade is rejected, never silently
// resized. candidateLoss must already include contract multipliers.
func (l *Ladder) Validate(candidateLoss float64) error {
	if candidateLoss < 0 {
		return fmt.Errorf("ladder: candidate loss must be non-negative, got %.2f", candidateLoss)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	limit := l.caps[l.level]
	if l.breached {
		return fmt.Errorf("period already breached cap %.2f: %w", limit, ErrLadderBreach)
	}
	if l.dayLoss+candidateLoss > limit {
		return fmt.Errorf("candidate loss %.2f on top of %.2f realized exceeds cap %.2f: %w",
			candidateLoss, l.dayLoss, limit, ErrLadderBreach)
	}
	return nil
}

// AtFloor reports whether the ladder sits on its lowest rung. The floor cap
// never decays to zero; halting entirely is the caller's call, typically on
// Breached() && AtFloor().
func (l *Ladder) AtFloor() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level == len(l.caps)-1
}

// AdvancePeriod closes the current period and opens the next. A breached
// period steps the cap one rung down, pinned at the floor. A profitable or
// flat period resets to the top rung. A losing but unbreached period holds
// its rung. Returns the new cap.
func (l *Ladder) AdvancePeriod() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case l.breached:
		if l.level < len(l.caps)-1 {
			l.level++
		}
	case l.dayLoss <= 0:
		l.level = 0
	}
	l.dayLoss = 0
	l.breached = false
	return l.caps[l.level]
}
