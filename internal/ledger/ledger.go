package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/revred/odte/internal/models"
)

// Statistics aggregates closed-trade results and execution quality.
type Statistics struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	TotalPnL      float64 `json:"total_pnl"`
	AverageWin    float64 `json:"average_win"`
	AverageLoss   float64 `json:"average_loss"`
	MaxDrawdown   float64 `json:"max_drawdown"` // worst peak-to-trough of cumulative P&L, <= 0
	CurrentStreak int     `json:"current_streak"`

	// Execution quality across recorded fills.
	FillCount       int     `json:"fill_count"`
	MidOrBetterFill int     `json:"mid_or_better_fills"`
	MidOrBetterRate float64 `json:"mid_or_better_rate"`

	// PeakPnL carries the running cumulative high-water mark so drawdown
	// tracking survives a reload.
	PeakPnL float64 `json:"peak_pnl"`
}

// BreachEntry logs one risk-ladder cap breach for the audit trail.
type BreachEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Cap       float64   `json:"cap"`
	Loss      float64   `json:"loss"`
	Note      string    `json:"note,omitempty"`
}

type ledgerData struct {
	Records     []models.DecisionRecord `json:"records"`
	History     []models.Position       `json:"history"`
	DailyPnL    map[string]float64      `json:"daily_pnl"`
	Breaches    []BreachEntry           `json:"breaches"`
	Statistics  Statistics              `json:"statistics"`
	LastUpdated time.Time               `json:"last_updated"`
}

// JSONLedger persists the ledger as one JSON document, rewritten atomically
// on every append.
type JSONLedger struct {
	mu   sync.RWMutex
	path string
	data ledgerData
}

// NewJSONLedger opens or creates a ledger file.
func NewJSONLedger(path string) (*JSONLedger, error) {
	l := &JSONLedger{
		path: path,
		data: ledgerData{DailyPnL: make(map[string]float64)},
	}
	if _, err := os.Stat(path); err == nil {
		if err := l.Load(); err != nil {
			return nil, fmt.Errorf("loading ledger: %w", err)
		}
	}
	return l, nil
}

// Load reads the ledger file into memory.
func (l *JSONLedger) Load() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := os.ReadFile(l.path)
	if err != nil {
		return err
	}
	var data ledgerData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("parsing ledger %s: %w", l.path, err)
	}
	if data.DailyPnL == nil {
		data.DailyPnL = make(map[string]float64)
	}
	l.data = data
	return nil
}

// Save writes the ledger via a temp file and atomic rename.
func (l *JSONLedger) Save() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.saveLocked()
}

func (l *JSONLedger) saveLocked() error {
	l.data.LastUpdated = time.Now().UTC()

	raw, err := json.MarshalIndent(l.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}

// AppendRecord validates and appends one decision record.
func (l *JSONLedger) AppendRecord(rec *models.DecisionRecord) error {
	if rec == nil {
		return fmt.Errorf("nil decision record")
	}
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("appending record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.data.Records = append(l.data.Records, *rec)
	for _, f := range rec.Fills {
		if !f.Filled {
			continue
		}
		l.data.Statistics.FillCount++
		if f.MidOrBetter {
			l.data.Statistics.MidOrBetterFill++
		}
	}
	if l.data.Statistics.FillCount > 0 {
		l.data.Statistics.MidOrBetterRate =
			float64(l.data.Statistics.MidOrBetterFill) / float64(l.data.Statistics.FillCount)
	}
	return l.saveLocked()
}

// Records returns a copy of the decision trail.
func (l *JSONLedger) Records() []models.DecisionRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.DecisionRecord(nil), l.data.Records...)
}

// AddClosedPosition appends a settled position and folds its realized P&L
// into the statistics and the daily map.
func (l *JSONLedger) AddClosedPosition(pos models.Position) error {
	if pos.Status != models.StatusClosed {
		return fmt.Errorf("position %s is not closed", pos.ID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.data.History = append(l.data.History, pos)
	l.data.DailyPnL[pos.ClosedAt.UTC().Format("2006-01-02")] += pos.RealizedPnL
	l.updateStatistics(pos.RealizedPnL)
	return l.saveLocked()
}

func (l *JSONLedger) updateStatistics(pnl float64) {
	s := &l.data.Statistics
	s.TotalTrades++
	s.TotalPnL += pnl

	if pnl > 0 {
		s.WinningTrades++
		if s.CurrentStreak >= 0 {
			s.CurrentStreak++
		} else {
			s.CurrentStreak = 1
		}
		s.AverageWin += (pnl - s.AverageWin) / float64(s.WinningTrades)
	} else {
		s.LosingTrades++
		if s.CurrentStreak <= 0 {
			s.CurrentStreak--
		} else {
			s.CurrentStreak = -1
		}
		s.AverageLoss += (pnl - s.AverageLoss) / float64(s.LosingTrades)
	}
	s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades)

	if s.TotalPnL > s.PeakPnL {
		s.PeakPnL = s.TotalPnL
	}
	if dd := s.TotalPnL - s.PeakPnL; dd < s.MaxDrawdown {
		s.MaxDrawdown = dd
	}
}

// History returns a copy of the closed-position trail.
func (l *JSONLedger) History() []models.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.Position(nil), l.data.History...)
}

// Statistics returns a snapshot of the running statistics.
func (l *JSONLedger) Statistics() Statistics {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.data.Statistics
}

// DailyPnL returns the realized P&L booked on a YYYY-MM-DD date.
func (l *JSONLedger) DailyPnL(date string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.data.DailyPnL[date]
}

// AddBreach appends a risk-ladder breach entry.
func (l *JSONLedger) AddBreach(entry BreachEntry) error {
	if entry.Timestamp.IsZero() {
		return fmt.Errorf("breach entry has no timestamp")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.data.Breaches = append(l.data.Breaches, entry)
	return l.saveLocked()
}

// Breaches returns a copy of the breach trail.
func (l *JSONLedger) Breaches() []BreachEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]BreachEntry(nil), l.data.Breaches...)
}
