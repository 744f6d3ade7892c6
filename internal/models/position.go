package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/revred/odte/internal/fills"
	"github.com/revred/odte/internal/marketdata"
	"github.com/revred/odte/internal/structure"
)

// SharesPerContract is the index-option contract multiplier.
const SharesPerContract = 100.0

// Role distinguishes the two books opened at entry.
type Role string

const (
	// RoleCore is the near-term structure managed at the mid-cycle checkpoint.
	RoleCore Role = "core"
	// RoleCarry is the longer-dated structure held to the forced exit.
	RoleCarry Role = "carry"
)

// PositionStatus is the open/closed flag of a position.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "open"
	StatusClosed PositionStatus = "closed"
)

// Position is one filled structure and its running results. The cycle
// engine owns a Position exclusively from open to close; nothing else
// mutates it.
type Position struct {
	ID          string              `json:"id"`
	Symbol      string              `json:"symbol"`
	Role        Role                `json:"role"`
	Structure   structure.Structure `json:"structure"`
	Quantity    int                 `json:"quantity"`
	EntryCredit float64             `json:"entry_credit"` // per-share net credit at fill
	EntryFill   *fills.Result       `json:"entry_fill,omitempty"`
	RiskCap     float64             `json:"risk_cap"` // dollars allotted at entry
	OpenedAt    time.Time           `json:"opened_at"`

	Status      PositionStatus `json:"status"`
	ClosedAt    time.Time      `json:"closed_at,omitzero"`
	ExitDebit   float64        `json:"exit_debit"` // per-share net debit paid to close
	ExitReason  string         `json:"exit_reason,omitempty"`
	RealizedPnL float64        `json:"realized_pnl"` // dollars, set on close
}

// NewPosition opens a position from a filled entry order.
func NewPosition(symbol string, role Role, st structure.Structure, qty int, fill *fills.Result, riskCap float64, openedAt time.Time) (*Position, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("position quantity must be positive, got %d", qty)
	}
	if fill == nil || !fill.Filled {
		return nil, fmt.Errorf("position requires a filled entry order")
	}
	return &Position{
		ID:          uuid.NewString(),
		Symbol:      symbol,
		Role:        role,
		Structure:   st,
		Quantity:    qty,
		EntryCredit: fill.NetPrice,
		EntryFill:   fill,
		RiskCap:     riskCap,
		OpenedAt:    openedAt,
		Status:      StatusOpen,
	}, nil
}

// MaxProfitDollars returns the structure's best-case expiry value in dollars
// across all contracts.
func (p *Position) MaxProfitDollars() float64 {
	return p.Structure.MaxProfit(p.EntryCredit) * SharesPerContract * float64(p.Quantity)
}

// MaxLossDollars returns the structure's worst-case expiry loss in dollars
// across all contracts.
func (p *Position) MaxLossDollars() float64 {
	return p.Structure.MaxLoss(p.EntryCredit) * SharesPerContract * float64(p.Quantity)
}

// UnrealizedPnL marks the open position to the snapshot's midpoints and
// returns the dollar P&L. The second return is false when a leg is missing
// from the snapshot.
func (p *Position) UnrealizedPnL(snap *marketdata.Snapshot) (float64, bool) {
	if p.Status != StatusOpen {
		return 0, false
	}
	current, ok := p.Structure.MidNetCredit(snap)
	if !ok {
		return 0, false
	}
	return (p.EntryCredit - current) * SharesPerContract * float64(p.Quantity), true
}

// ProfitFraction returns the unrealized P&L as a fraction of the maximum
// profit, for the take-profit rule.
func (p *Position) ProfitFraction(snap *marketdata.Snapshot) (float64, bool) {
	pnl, ok := p.UnrealizedPnL(snap)
	if !ok {
		return 0, false
	}
	maxProfit := p.MaxProfitDollars()
	if maxProfit <= 0 {
		return 0, false
	}
	return pnl / maxProfit, true
}

// Close settles the position at the given per-share exit debit.
func (p *Position) Close(at time.Time, exitDebit float64, reason string) error {
	if p.Status != StatusOpen {
		return fmt.Errorf("position %s already %s", p.ID, p.Status)
	}
	if reason == "" {
		return fmt.Errorf("position %s: close requires an exit reason", p.ID)
	}
	p.Status = StatusClosed
	p.ClosedAt = at
	p.ExitDebit = exitDebit
	p.ExitReason = reason
	p.RealizedPnL = (p.EntryCredit - exitDebit) * SharesPerContract * float64(p.Quantity)
	return nil
}

// Validate checks the per-status invariants.
func (p *Position) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("position has no id")
	}
	if p.Quantity <= 0 {
		return fmt.Errorf("position %s: non-positive quantity %d", p.ID, p.Quantity)
	}
	if p.Role != RoleCore && p.Role != RoleCarry {
		return fmt.Errorf("position %s: unknown role %q", p.ID, p.Role)
	}
	switch p.Status {
	case StatusOpen:
		if !p.ClosedAt.IsZero() || p.ExitReason != "" {
			return fmt.Errorf("position %s: open position carries exit fields", p.ID)
		}
	case StatusClosed:
		if p.ClosedAt.IsZero() || p.ExitReason == "" {
			return fmt.Errorf("position %s: closed position missing exit fields", p.ID)
		}
		if p.ClosedAt.Before(p.OpenedAt) {
			return fmt.Errorf("position %s: closed before it opened", p.ID)
		}
	default:
		return fmt.Errorf("position %s: unknown status %q", p.ID, p.Status)
	}
	return nil
}
