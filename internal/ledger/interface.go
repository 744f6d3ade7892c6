// Package ledger persists decision records, closed positions, and the
// running statistics external reporting consumes.
package ledger

import "github.com/revred/odte/internal/models"

// Interface defines the contract for decision and trade persistence.
//
// Implementations must be safe for concurrent use; the engine appends from
// cycle goroutines while the dashboard reads.
type Interface interface {
	// Decision trail
	AppendRecord(rec *models.DecisionRecord) error
	Records() []models.DecisionRecord

	// Closed trades and analytics
	AddClosedPosition(pos models.Position) error
	History() []models.Position
	Statistics() Statistics
	DailyPnL(date string) float64

	// Risk-ladder breach trail
	AddBreach(entry BreachEntry) error
	Breaches() []BreachEntry

	// Persistence
	Save() error
	Load() error
}

// NewLedger creates the default JSON-file backed implementation.
func NewLedger(path string) (Interface, error) {
	return NewJSONLedger(path)
}

// Ensure JSONLedger implements Interface
var _ Interface = (*JSONLedger)(nil)
