// Package fills simulates multi-leg executions against historical bid/ask
// quotes using a marketable-limit protocol. Realism comes entirely from the
// recorded spreads; no synthetic slippage is injected.
package fills

import (
	"fmt"
	"math"
	"time"

	"github.com/revred/odte/internal/marketdata"
	"github.com/revred/odte/internal/structure"
	"github.com/revred/odte/internal/util"
)

// Action is the direction of a multi-leg order.
type Action string

const (
	// OpenCredit sells the structure to open; the limit is the minimum
	// acceptable net credit.
	OpenCredit Action = "open_credit"
	// CloseDebit buys the structure back; the limit is the maximum
	// acceptable net debit.
	CloseDebit Action = "close_debit"
)

// No-fill reasons reported on an unfilled Result.
const (
	ReasonTimeout      = "timeout"
	ReasonAdverseTicks = "adverse_ticks"
)

// Order is a multi-leg marketable-limit request. Created at a decision
// point and consumed immediately by Simulate; never persisted.
type Order struct {
	ID        string
	Structure structure.Structure
	Action    Action
	Quantity  int
	// LimitNet bounds the acceptable net price: a floor for credits, a
	// ceiling for debits. Zero means no bound beyond the quotes.
	LimitNet float64
	// TIF bounds the order's working time; the escalation schedule is
	// compressed to fit it. Zero, or anything beyond the configured window,
	// means the full window.
	TIF time.Duration
}

// LegFill is the simulated execution of one leg.
type LegFill struct {
	Leg   structure.Leg `json:"leg"`
	Price float64       `json:"price"`
}

// Result is the terminal outcome of one simulation. A multi-leg order is
// filled as a unit or not at all; Legs is empty on a no-fill.
type Result struct {
	OrderID      string        `json:"order_id"`
	Filled       bool          `json:"filled"`
	Legs         []LegFill     `json:"legs,omitempty"`
	NetPrice     float64       `json:"net_price"`
	Elapsed      time.Duration `json:"elapsed"`
	StepUsed     int           `json:"step_used"` // escalation step index, -1 on no-fill
	Escalated    bool          `json:"escalated"` // true when the fill needed a step beyond the first
	AdverseTicks int           `json:"adverse_ticks"`
	MidOrBetter  bool          `json:"mid_or_better"` // execution-quality flag vs. the decision-time mid
	Reason       string        `json:"reason,omitempty"`
}

// Config parameterizes the fill protocol.
type Config struct {
	Window time.Duration `yaml:"window"`
	// Steps are escalating aggressiveness fractions in [0,1]: 0 rests at
	// the midpoint, 1 pays the full half-spread to the far touch. One
	// sub-interval of the window is spent at each step.
	Steps           []float64 `yaml:"steps"`
	MaxAdverseTicks int       `yaml:"max_adverse_ticks"`
	Tick            float64   `yaml:"tick"`
}

// Validate checks protocol parameters.
func (c Config) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("fill window must be > 0, got %v", c.Window)
	}
	if len(c.Steps) == 0 {
		return fmt.Errorf("at least one aggressiveness step is required")
	}
	prev := -1.0
	for i, s := range c.Steps {
		if s < 0 || s > 1 {
			return fmt.Errorf("step %d (%.2f) must be in [0,1]", i, s)
		}
		if s <= prev {
			return fmt.Errorf("steps must escalate, step %d (%.2f) <= %.2f", i, s, prev)
		}
		prev = s
	}
	if c.MaxAdverseTicks < 0 {
		return fmt.Errorf("max_adverse_ticks must be >= 0, got %d", c.MaxAdverseTicks)
	}
	if c.Tick <= 0 {
		return fmt.Errorf("tick must be > 0, got %.4f", c.Tick)
	}
	return nil
}

// Simulator prices multi-leg orders against recorded quote sequences.
type Simulator struct {
	cfg Config
}

// NewSimulator creates a Simulator, validating its configuration up front.
func NewSimulator(cfg Config) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("fill simulator config: %w", err)
	}
	return &Simulator{cfg: cfg}, nil
}

// netQuotes returns the structure's joint mid and natural net price for the
// action. For credits the natural is what crossing every spread yields
// (lower than mid); for debits it is what crossing costs (higher than mid).
// The third return is false when any leg is missing or one-sided.
func netQuotes(st *structure.Structure, action Action, snap *marketdata.Snapshot) (mid, natural float64, ok bool) {
	for _, l := range st.Legs {
		q, found := snap.Quote(l.Strike, l.Kind)
		if !found || !q.Liquid() {
			return 0, 0, false
		}
		qty := float64(l.Quantity)
		half := q.Spread() / 2

		// Net is quoted from the structure owner's view: short legs add
		// premium, long legs subtract. Crossing the spread always costs
		// the half-spread on every leg regardless of direction.
		if l.Side == structure.Sell {
			mid += qty * q.Mid()
		} else {
			mid -= qty * q.Mid()
		}
		if action == OpenCredit {
			natural -= qty * half
		} else {
			natural += qty * half
		}
	}
	// The mid of the unwind debit equals the mid of the open credit, so the
	// per-leg half-spread sign chosen above is the only difference between
	// the two actions: credits concede down to mid - sum(half), debits up
	// to mid + sum(half).
	natural += mid
	return mid, natural, true
}

// Simulate walks the fill window against the supplied snapshot sequence.
// window[0] must be the decision-time snapshot; later entries are recorded
// quotes inside the fill window, in time order. All legs fill as a unit
// within the same window or the order is rejected whole.
func (s *Simulator) Simulate(order *Order, window []*marketdata.Snapshot) (*Result, error) {
	if len(window) == 0 {
		return nil, fmt.Errorf("simulate order %s: empty quote window", order.ID)
	}
	if order.Quantity <= 0 {
		return nil, fmt.Errorf("simulate order %s: non-positive quantity %d", order.ID, order.Quantity)
	}
	if order.Action != OpenCredit && order.Action != CloseDebit {
		return nil, fmt.Errorf("simulate order %s: unknown action %q", order.ID, order.Action)
	}

	res := &Result{OrderID: order.ID, StepUsed: -1}

	baseMid, baseNatural, ok := netQuotes(&order.Structure, order.Action, window[0])
	if !ok {
		return nil, fmt.Errorf("simulate order %s: leg missing or one-sided in decision snapshot", order.ID)
	}

	start := window[0].Timestamp
	horizon := s.cfg.Window
	if order.TIF > 0 && order.TIF < horizon {
		horizon = order.TIF
	}
	subInterval := horizon / time.Duration(len(s.cfg.Steps))

	for stepIdx, frac := range s.cfg.Steps {
		stepStart := time.Duration(stepIdx) * subInterval
		stepEnd := stepStart + subInterval

		for _, snap := range snapshotsForInterval(window, start, stepStart, stepEnd) {
			elapsed := snap.Timestamp.Sub(start)
			if elapsed < stepStart {
				elapsed = stepStart
			}

			_, natural, ok := netQuotes(&order.Structure, order.Action, snap)
			if !ok {
				continue
			}

			// Adverse-tick protection: abandon instead of chasing a
			// market moving against the order.
			adverse := adverseTicks(order.Action, baseNatural, natural, s.cfg.Tick)
			if adverse > res.AdverseTicks {
				res.AdverseTicks = adverse
			}
			if res.AdverseTicks > s.cfg.MaxAdverseTicks {
				res.Elapsed = elapsed
				res.Reason = ReasonAdverseTicks
				return res, nil
			}

			// The resting offer is priced off the decision-time quotes and
			// only escalates with the step; it does not chase the tape.
			offer := s.offerAt(order, baseMid, baseNatural, frac)
			if !marketable(order.Action, offer, natural) {
				continue
			}

			s.fill(order, res, window[0], baseMid, baseNatural, offer)
			res.Elapsed = elapsed
			res.StepUsed = stepIdx
			res.Escalated = stepIdx > 0
			res.MidOrBetter = betterOrEqual(order.Action, res.NetPrice, baseMid)
			return res, nil
		}
	}

	res.Elapsed = horizon
	res.Reason = ReasonTimeout
	return res, nil
}

// offerAt prices the resting limit for the step: between the mid and the
// natural by the step's fraction.
func (s *Simulator) offerAt(order *Order, mid, natural, frac float64) float64 {
	// Rounding runs toward marketability so the final step is guaranteed to
	// cross the natural; the order's own limit is applied after rounding.
	var offer float64
	if order.Action == OpenCredit {
		offer = util.FloorToTick(mid-frac*(mid-natural), s.cfg.Tick)
		if order.LimitNet > 0 && offer < order.LimitNet {
			offer = order.LimitNet
		}
		return offer
	}
	offer = util.CeilToTick(mid+frac*(natural-mid), s.cfg.Tick)
	if order.LimitNet > 0 && offer > order.LimitNet {
		offer = order.LimitNet
	}
	return offer
}

// marketable reports whether the resting offer crosses the current natural.
func marketable(action Action, offer, natural float64) bool {
	const eps = 1e-9
	if action == OpenCredit {
		return natural >= offer-eps
	}
	return natural <= offer+eps
}

// adverseTicks counts how many ticks the natural has moved against the
// order since the decision snapshot.
func adverseTicks(action Action, baseNatural, natural, tick float64) int {
	var move float64
	if action == OpenCredit {
		move = baseNatural - natural // credit shrinking is adverse
	} else {
		move = natural - baseNatural // debit growing is adverse
	}
	if move <= 0 {
		return 0
	}
	return util.TicksBetween(0, move, tick)
}

// fill records the joint execution, allocating the net concession to legs
// proportionally to each leg's half-spread.
func (s *Simulator) fill(order *Order, res *Result, snap *marketdata.Snapshot, mid, natural, offer float64) {
	res.Filled = true
	res.NetPrice = offer

	// Effective concession fraction actually paid, derived from the fill
	// net rather than the step, since the limit may have clamped the offer.
	fEff := 0.0
	if spread := math.Abs(natural - mid); spread > 1e-12 {
		fEff = math.Abs(offer-mid) / spread
		if fEff > 1 {
			fEff = 1
		}
	}

	res.Legs = make([]LegFill, 0, len(order.Structure.Legs))
	for _, l := range order.Structure.Legs {
		q, _ := snap.Quote(l.Strike, l.Kind)
		half := q.Spread() / 2

		price := q.Mid()
		closing := order.Action == CloseDebit
		selling := l.Side == structure.Sell
		if closing {
			selling = !selling // closing unwinds each leg on the opposite side
		}
		if selling {
			price -= fEff * half // concede toward the bid
		} else {
			price += fEff * half // concede toward the ask
		}
		res.Legs = append(res.Legs, LegFill{Leg: l, Price: util.RoundToTick(price, s.cfg.Tick)})
	}
}

// betterOrEqual reports whether the net fill is at or better than the
// decision-time mid (higher credit, or lower debit).
func betterOrEqual(action Action, net, baseMid float64) bool {
	if action == OpenCredit {
		return net >= baseMid-1e-9
	}
	return net <= baseMid+1e-9
}

// snapshotsForInterval returns the quotes visible during [from, to) of the
// window: the latest snapshot at or before the interval start plus every
// snapshot inside it, in time order.
func snapshotsForInterval(window []*marketdata.Snapshot, start time.Time, from, to time.Duration) []*marketdata.Snapshot {
	var carry *marketdata.Snapshot
	out := make([]*marketdata.Snapshot, 0, len(window))
	for _, snap := range window {
		offset := snap.Timestamp.Sub(start)
		switch {
		case offset <= from:
			carry = snap
		case offset < to:
			out = append(out, snap)
		}
	}
	if carry != nil {
		out = append([]*marketdata.Snapshot{carry}, out...)
	}
	return out
}
