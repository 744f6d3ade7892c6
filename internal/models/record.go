package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/revred/odte/internal/fills"
	"github.com/revred/odte/internal/gating"
	"github.com/revred/odte/internal/regime"
	"github.com/revred/odte/internal/structure"
)

// Checkpoint names the cycle decision point a record belongs to.
type Checkpoint string

const (
	CheckpointEntry      Checkpoint = "entry"
	CheckpointManagement Checkpoint = "management"
	CheckpointForcedExit Checkpoint = "forced_exit"
)

// DecisionRecord is the ledger entry for one decision point: what the
// scorer saw, what it decided, and what the simulator filled. Records are
// append-only and must survive serialization without field loss.
type DecisionRecord struct {
	ID         string     `json:"id"`
	Timestamp  time.Time  `json:"timestamp"`
	Checkpoint Checkpoint `json:"checkpoint"`
	Symbol     string     `json:"symbol"`

	StructureKind structure.Kind  `json:"structure_kind,omitempty"`
	Regime        regime.Regime   `json:"regime,omitempty"`
	Composite     float64         `json:"composite"`
	Decision      gating.Decision `json:"decision,omitempty"`
	Inputs        gating.Inputs   `json:"inputs"`
	Breakdown     []gating.Term   `json:"breakdown,omitempty"`
	Override      string          `json:"override,omitempty"`

	Fills    []fills.Result `json:"fills,omitempty"`
	PnL      float64        `json:"pnl"`
	Evidence []string       `json:"evidence,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// NewDecisionRecord starts a record for one checkpoint.
func NewDecisionRecord(ts time.Time, cp Checkpoint, symbol string) *DecisionRecord {
	return &DecisionRecord{
		ID:         uuid.NewString(),
		Timestamp:  ts,
		Checkpoint: cp,
		Symbol:     symbol,
	}
}

// Note appends a free-form evidence annotation.
func (r *DecisionRecord) Note(format string, args ...any) {
	r.Evidence = append(r.Evidence, fmt.Sprintf(format, args...))
}

// AttachScore copies the gating outcome into the record.
func (r *DecisionRecord) AttachScore(res *gating.Result, in gating.Inputs, kind structure.Kind, rg regime.Regime) {
	r.StructureKind = kind
	r.Regime = rg
	r.Composite = res.Composite
	r.Decision = res.Decision
	r.Inputs = in
	r.Breakdown = res.Breakdown
	r.Override = res.Override
}

// AttachFill appends a fill outcome to the record.
func (r *DecisionRecord) AttachFill(res *fills.Result) {
	if res == nil {
		return
	}
	r.Fills = append(r.Fills, *res)
}

// Validate checks the minimum fields a ledger entry must carry.
func (r *DecisionRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("decision record has no id")
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("decision record %s: timestamp is zero", r.ID)
	}
	switch r.Checkpoint {
	case CheckpointEntry, CheckpointManagement, CheckpointForcedExit:
	default:
		return fmt.Errorf("decision record %s: unknown checkpoint %q", r.ID, r.Checkpoint)
	}
	return nil
}
