// Package engine orchestrates the weekly cycle: the entry, management, and
// forced-exit checkpoints that tie the classifier, scorer, selector, fill
// simulator, and sizing ladder together.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/revred/odte/internal/config"
	"github.com/revred/odte/internal/fills"
	"github.com/revred/odte/internal/gating"
	"github.com/revred/odte/internal/ladder"
	"github.com/revred/odte/internal/ledger"
	"github.com/revred/odte/internal/marketdata"
	"github.com/revred/odte/internal/models"
	"github.com/revred/odte/internal/regime"
	"github.com/revred/odte/internal/structure"
)

// carryRiskFraction shrinks the Carry book relative to Core. The snapshot
// chain quotes a single expiry, so the longer-tenor Carry is expressed as a
// smaller risk budget at the same expiry rather than a later one.
const carryRiskFraction = 0.5

// ivHistoryLimit bounds the reference-IV history used for the rank evidence
// note; one year of weekly entries.
const ivHistoryLimit = 52

// Engine evaluates weekly cycles against a snapshot provider.
type Engine struct {
	cfg        *config.Config
	provider   marketdata.Provider
	classifier *regime.Classifier
	policy     *gating.Policy
	selector   *structure.Selector
	sim        *fills.Simulator
	ladder     *ladder.Ladder
	ledger     ledger.Interface
	logger     *log.Logger

	// ivHistory holds the reference IV of prior entry sessions, oldest
	// first, for the rank annotation on entry records.
	ivHistory []float64
}

// New wires an Engine from validated components.
func New(cfg *config.Config, provider marketdata.Provider, policy *gating.Policy,
	led ledger.Interface, logger *log.Logger) (*Engine, error) {
	if cfg == nil || provider == nil || policy == nil || led == nil {
		return nil, fmt.Errorf("engine: config, provider, policy, and ledger are required")
	}
	if logger == nil {
		logger = log.Default()
	}
	for _, clock := range []string{cfg.Strategy.EntryTime, cfg.Strategy.ManagementTime, cfg.Strategy.ForcedExitTime} {
		if _, _, err := config.ParseClock(clock); err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
	}
	classifier, err := regime.NewClassifier(cfg.Regime)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	selector, err := structure.NewSelector(cfg.Selector)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	sim, err := fills.NewSimulator(cfg.Fills.Simulator())
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	lad, err := ladder.New(cfg.Ladder.Caps)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return &Engine{
		cfg:        cfg,
		provider:   provider,
		classifier: classifier,
		policy:     policy,
		selector:   selector,
		sim:        sim,
		ladder:     lad,
		ledger:     led,
		logger:     logger,
	}, nil
}

// Ladder exposes the shared sizing ladder for inspection.
func (e *Engine) Ladder() *ladder.Ladder {
	return e.ladder
}

// CycleOptions parameterizes one cycle evaluation.
type CycleOptions struct {
	// Monday anchors the cycle; checkpoints land on Monday, Wednesday, and
	// Friday at the configured clock times.
	Monday time.Time
	// EventNearby forces the High regime when a known macro event sits
	// inside the cycle.
	EventNearby bool
}

// CycleResult reports one cycle's terminal outcome.
type CycleResult struct {
	Monday      time.Time
	State       models.CycleState
	Core        *models.Position
	Carry       *models.Position
	RealizedPnL float64
}

// checkpointAt places a configured "HH:MM" clock on an offset day of the
// cycle week. Clock strings are validated in New.
func (e *Engine) checkpointAt(monday time.Time, dayOffset int, clock string) time.Time {
	h, m, _ := config.ParseClock(clock)
	d := monday.AddDate(0, 0, dayOffset)
	return time.Date(d.Year(), d.Month(), d.Day(), h, m, 0, 0, time.UTC)
}

// RunCycle evaluates one full weekly cycle: entry on Monday, management on
// Wednesday, forced exit on Friday. The ladder period advances once at the
// end of the cycle.
func (e *Engine) RunCycle(ctx context.Context, opts CycleOptions) (*CycleResult, error) {
	sm := models.NewStateMachine()
	res := &CycleResult{Monday: opts.Monday}

	entryTS := e.checkpointAt(opts.Monday, 0, e.cfg.Strategy.EntryTime)
	mgmtTS := e.checkpointAt(opts.Monday, 2, e.cfg.Strategy.ManagementTime)
	exitTS := e.checkpointAt(opts.Monday, 4, e.cfg.Strategy.ForcedExitTime)

	if err := e.entryCheckpoint(ctx, sm, res, entryTS, opts.EventNearby); err != nil {
		return nil, fmt.Errorf("entry checkpoint %s: %w", entryTS.Format(time.RFC3339), err)
	}
	if err := e.managementCheckpoint(ctx, sm, res, mgmtTS); err != nil {
		return nil, fmt.Errorf("management checkpoint %s: %w", mgmtTS.Format(time.RFC3339), err)
	}
	if err := e.forcedExitCheckpoint(ctx, sm, res, exitTS); err != nil {
		return nil, fmt.Errorf("forced exit checkpoint %s: %w", exitTS.Format(time.RFC3339), err)
	}

	e.ladder.AdvancePeriod()
	res.State = sm.Current()
	return res, nil
}

// entryCheckpoint classifies, scores, selects, and fills the Core and Carry
// books. Every outcome, including skips, lands in the ledger.
func (e *Engine) entryCheckpoint(ctx context.Context, sm *models.StateMachine, res *CycleResult, ts time.Time, eventNearby bool) error {
	rec := models.NewDecisionRecord(ts, models.CheckpointEntry, e.cfg.Strategy.Symbol)

	snap, err := e.provider.GetSnapshot(ctx, e.cfg.Strategy.Symbol, ts)
	if err != nil {
		if errors.Is(err, marketdata.ErrDataUnavailable) {
			rec.Note("no snapshot: %v", err)
			rec.Decision = gating.Skip
			return e.ledger.AppendRecord(rec)
		}
		return err
	}

	r, err := e.classifier.Classify(snap.RefIV, eventNearby)
	if err != nil {
		rec.Note("regime unavailable: %v", err)
		rec.Decision = gating.Skip
		return e.ledger.AppendRecord(rec)
	}
	e.noteIVRank(rec, snap.RefIV)

	st, err := e.selector.Select(r, snap, e.cfg.Strategy.MaxRiskPerTrade)
	if err != nil {
		if errors.Is(err, structure.ErrNoViableStrike) {
			rec.Regime = r
			rec.Decision = gating.Skip
			rec.Note("no viable strike: %v", err)
			return e.ledger.AppendRecord(rec)
		}
		return err
	}

	in := e.deriveInputs(snap, st, r)
	score := e.policy.Score(in, st.Kind, r)
	rec.AttachScore(&score, in, st.Kind, r)
	if score.Decision == gating.Skip {
		if score.Override != "" {
			rec.Note("override: %s", score.Override)
		}
		return e.ledger.AppendRecord(rec)
	}

	qty := e.cfg.Strategy.Contracts
	if score.Decision == gating.Half {
		qty = int(math.Round(float64(qty) * e.cfg.Strategy.HalfSizeFactor))
		if qty < 1 {
			qty = 1
		}
		rec.Note("half size: %d contracts", qty)
	}

	candidateLoss := worstCaseLoss(st, snap, qty)
	if err := e.ladder.Validate(candidateLoss); err != nil {
		rec.Decision = gating.Skip
		rec.Note("ladder rejected %.0f of risk: %v", candidateLoss, err)
		return e.ledger.AppendRecord(rec)
	}

	core, err := e.openPosition(ctx, rec, snap, st, models.RoleCore, qty, ts)
	if err != nil {
		return err
	}
	if core == nil {
		// Fill timeout: stay flat, the cycle continues.
		return e.ledger.AppendRecord(rec)
	}
	res.Core = core
	if err := sm.Transition(models.StateEnteredCore, models.CondCoreFilled); err != nil {
		return err
	}

	carry := e.openCarry(ctx, rec, snap, r, qty, ts)
	if carry != nil {
		res.Carry = carry
		if err := sm.Transition(models.StateEnteredCoreCarry, models.CondCarryFilled); err != nil {
			return err
		}
	} else if err := sm.Transition(models.StateEnteredCore, models.CondCarrySkip); err != nil {
		return err
	}

	return e.ledger.AppendRecord(rec)
}

// openCarry selects, validates, and fills the smaller Carry book. Any
// failure skips the Carry without disturbing the Core.
func (e *Engine) openCarry(ctx context.Context, rec *models.DecisionRecord, snap *marketdata.Snapshot, r regime.Regime, qty int, ts time.Time) *models.Position {
	st, err := e.selector.Select(r, snap, e.cfg.Strategy.MaxRiskPerTrade*carryRiskFraction)
	if err != nil {
		rec.Note("carry skipped: %v", err)
		return nil
	}
	loss := worstCaseLoss(st, snap, qty)
	if err := e.ladder.Validate(loss); err != nil {
		rec.Note("carry skipped: ladder rejected %.0f of risk: %v", loss, err)
		return nil
	}
	pos, err := e.openPosition(ctx, rec, snap, st, models.RoleCarry, qty, ts)
	if err != nil || pos == nil {
		rec.Note("carry skipped: fill failed")
		return nil
	}
	return pos
}

// openPosition simulates an opening credit fill and books the position. A
// nil position with nil error means the order did not fill.
func (e *Engine) openPosition(ctx context.Context, rec *models.DecisionRecord, snap *marketdata.Snapshot, st *structure.Structure, role models.Role, qty int, ts time.Time) (*models.Position, error) {
	order := &fills.Order{
		ID:        uuid.NewString(),
		Structure: *st,
		Action:    fills.OpenCredit,
		Quantity:  qty,
		TIF:       e.cfg.Fills.Simulator().Window,
	}
	window, err := e.fillWindow(ctx, snap, ts)
	if err != nil {
		return nil, err
	}
	fill, err := e.sim.Simulate(order, window)
	if err != nil {
		return nil, err
	}
	rec.AttachFill(fill)
	if !fill.Filled {
		rec.Note("%s %s unfilled: %s", role, st.Kind, fill.Reason)
		return nil, nil
	}

	riskCap := st.MaxLoss(fill.NetPrice) * models.SharesPerContract * float64(qty)
	pos, err := models.NewPosition(e.cfg.Strategy.Symbol, role, *st, qty, fill, riskCap, ts)
	if err != nil {
		return nil, err
	}
	e.logger.Printf("opened %s %s x%d at %.2f credit", role, st.Kind, qty, fill.NetPrice)
	return pos, nil
}

// fillWindow samples the provider across the fill window so the simulator
// sees quotes as they evolve after the decision time.
func (e *Engine) fillWindow(ctx context.Context, decision *marketdata.Snapshot, ts time.Time) ([]*marketdata.Snapshot, error) {
	cfg := e.cfg.Fills.Simulator()
	window := []*marketdata.Snapshot{decision}
	steps := len(cfg.Steps)
	interval := cfg.Window / time.Duration(steps)
	for i := 1; i <= steps; i++ {
		snap, err := e.provider.GetSnapshot(ctx, decision.Symbol, ts.Add(time.Duration(i)*interval))
		if err != nil {
			if errors.Is(err, marketdata.ErrDataUnavailable) {
				continue
			}
			return nil, err
		}
		window = append(window, snap)
	}
	return window, nil
}

// managementCheckpoint applies take-profit, neutral-roll, and stop-loss in
// strict priority order. Exactly one branch fires.
func (e *Engine) managementCheckpoint(ctx context.Context, sm *models.StateMachine, res *CycleResult, ts time.Time) error {
	if res.Core == nil || res.Core.Status != models.StatusOpen {
		return nil
	}
	rec := models.NewDecisionRecord(ts, models.CheckpointManagement, e.cfg.Strategy.Symbol)

	snap, err := e.provider.GetSnapshot(ctx, e.cfg.Strategy.Symbol, ts)
	if err != nil {
		if errors.Is(err, marketdata.ErrDataUnavailable) {
			rec.Note("no snapshot, book left untouched: %v", err)
			return e.ledger.AppendRecord(rec)
		}
		return err
	}

	pnl, ok := res.Core.UnrealizedPnL(snap)
	if !ok {
		rec.Note("core legs missing from snapshot, book left untouched")
		return e.ledger.AppendRecord(rec)
	}
	frac, _ := res.Core.ProfitFraction(snap)
	riskCap := res.Core.RiskCap
	rec.PnL = pnl
	rec.Note("core pnl %.0f (%.0f%% of max profit), cap %.0f", pnl, frac*100, riskCap)

	switch {
	case frac >= e.cfg.Strategy.TakeProfitPct:
		if err := e.takeProfit(ctx, sm, res, rec, snap, ts); err != nil {
			return err
		}
	case math.Abs(pnl) >= riskCap*(1-e.cfg.Strategy.RollBandPct):
		if err := e.neutralRoll(ctx, sm, res, rec, snap, ts); err != nil {
			return err
		}
	case pnl <= -riskCap*e.cfg.Strategy.StopLossPct:
		if err := e.stopLoss(ctx, sm, res, rec, snap, ts); err != nil {
			return err
		}
	default:
		rec.Note("no management branch fired")
	}

	return e.ledger.AppendRecord(rec)
}

// takeProfit closes Core at the target and leaves Carry running.
func (e *Engine) takeProfit(ctx context.Context, sm *models.StateMachine, res *CycleResult, rec *models.DecisionRecord, snap *marketdata.Snapshot, ts time.Time) error {
	if err := e.closePosition(ctx, res, rec, res.Core, snap, ts, "take_profit"); err != nil {
		return err
	}
	rec.Note("take profit: core closed, carry left open")
	return sm.Transition(models.StateManaged, models.CondTakeProfit)
}

// neutralRoll replaces Core with a fresh structure expiring at the next
// cutoff, bounded by the roll net-debit cap. A selector failure or a cap
// violation closes the book flat instead of leaving it unmanaged.
func (e *Engine) neutralRoll(ctx context.Context, sm *models.StateMachine, res *CycleResult, rec *models.DecisionRecord, snap *marketdata.Snapshot, ts time.Time) error {
	closeDebit, closed := e.closeDebitAt(res.Core, snap)
	if !closed {
		rec.Note("roll abandoned: core unmarkable, closing flat")
		return e.flatClose(ctx, sm, res, rec, snap, ts)
	}

	r, err := e.classifier.Classify(snap.RefIV, false)
	if err != nil {
		rec.Note("roll abandoned: %v", err)
		return e.flatClose(ctx, sm, res, rec, snap, ts)
	}
	st, err := e.selector.Select(r, snap, e.cfg.Strategy.MaxRiskPerTrade)
	if err != nil {
		rec.Note("roll abandoned, no viable replacement: %v", err)
		return e.flatClose(ctx, sm, res, rec, snap, ts)
	}

	newCredit, ok := st.MidNetCredit(snap)
	debitCap := res.Core.RiskCap * e.cfg.Strategy.RollDebitCapPct
	netDebit := (closeDebit - newCredit) * models.SharesPerContract * float64(res.Core.Quantity)
	if !ok || netDebit > debitCap {
		rec.Note("roll abandoned: net debit %.0f exceeds cap %.0f", netDebit, debitCap)
		return e.flatClose(ctx, sm, res, rec, snap, ts)
	}

	if err := e.closePosition(ctx, res, rec, res.Core, snap, ts, "neutral_roll"); err != nil {
		return err
	}
	loss := worstCaseLoss(st, snap, res.Core.Quantity)
	if err := e.ladder.Validate(loss); err != nil {
		rec.Note("roll replacement refused: ladder rejected %.0f of risk: %v", loss, err)
		return sm.Transition(models.StateManaged, models.CondNeutralRoll)
	}
	replacement, err := e.openPosition(ctx, rec, snap, st, models.RoleCore, res.Core.Quantity, ts)
	if err != nil {
		return err
	}
	if replacement == nil {
		rec.Note("roll replacement unfilled, book stays closed")
	} else {
		res.Core = replacement
		rec.Note("rolled core into %s", st.Kind)
	}
	return sm.Transition(models.StateManaged, models.CondNeutralRoll)
}

// stopLoss flattens the whole book and re-enters a cheaper Carry.
func (e *Engine) stopLoss(ctx context.Context, sm *models.StateMachine, res *CycleResult, rec *models.DecisionRecord, snap *marketdata.Snapshot, ts time.Time) error {
	if err := e.closePosition(ctx, res, rec, res.Core, snap, ts, "stop_loss"); err != nil {
		return err
	}
	if res.Carry != nil && res.Carry.Status == models.StatusOpen {
		if err := e.closePosition(ctx, res, rec, res.Carry, snap, ts, "stop_loss"); err != nil {
			return err
		}
	}
	rec.Note("stop loss: book flattened")

	r, err := e.classifier.Classify(snap.RefIV, false)
	if err == nil {
		if replacement := e.openCarry(ctx, rec, snap, r, res.Core.Quantity, ts); replacement != nil {
			res.Carry = replacement
			rec.Note("replacement carry opened")
		}
	}
	return sm.Transition(models.StateManaged, models.CondStopLoss)
}

// flatClose closes every open position and records the managed transition.
func (e *Engine) flatClose(ctx context.Context, sm *models.StateMachine, res *CycleResult, rec *models.DecisionRecord, snap *marketdata.Snapshot, ts time.Time) error {
	for _, pos := range []*models.Position{res.Core, res.Carry} {
		if pos == nil || pos.Status != models.StatusOpen {
			continue
		}
		if err := e.closePosition(ctx, res, rec, pos, snap, ts, "flat_close"); err != nil {
			return err
		}
	}
	return sm.Transition(models.StateManaged, models.CondFlatClose)
}

// forcedExitCheckpoint closes everything still open, unconditionally. When
// the simulator cannot fill the close, the position settles at the far
// touch; nothing stays open past the cutoff.
func (e *Engine) forcedExitCheckpoint(ctx context.Context, sm *models.StateMachine, res *CycleResult, ts time.Time) error {
	rec := models.NewDecisionRecord(ts, models.CheckpointForcedExit, e.cfg.Strategy.Symbol)

	snap, err := e.provider.GetSnapshot(ctx, e.cfg.Strategy.Symbol, ts)
	if err != nil && !errors.Is(err, marketdata.ErrDataUnavailable) {
		return err
	}

	for _, pos := range []*models.Position{res.Core, res.Carry} {
		if pos == nil || pos.Status != models.StatusOpen {
			continue
		}
		if err := e.forceClose(ctx, res, rec, pos, snap, ts); err != nil {
			return err
		}
	}

	if sm.Current() == models.StateIdle {
		if err := sm.Transition(models.StateExited, models.CondCycleOver); err != nil {
			return err
		}
	} else if err := sm.ForceExit(); err != nil {
		return err
	}

	if e.ladder.Breached() {
		if err := e.ledger.AddBreach(ledger.BreachEntry{
			Timestamp: ts,
			Cap:       e.ladder.Cap(),
			Loss:      e.ladder.Utilization() * e.ladder.Cap(),
			Note:      "cap breached during cycle",
		}); err != nil {
			return err
		}
		rec.Note("ladder cap breached this period")
	}
	return e.ledger.AppendRecord(rec)
}

// forceClose tries a simulated close first and falls back to settling at
// the far touch, then at max loss, so the cutoff always flattens the book.
func (e *Engine) forceClose(ctx context.Context, res *CycleResult, rec *models.DecisionRecord, pos *models.Position, snap *marketdata.Snapshot, ts time.Time) error {
	if snap != nil {
		window, err := e.fillWindow(ctx, snap, ts)
		if err != nil {
			return err
		}
		order := &fills.Order{
			ID:        uuid.NewString(),
			Structure: pos.Structure,
			Action:    fills.CloseDebit,
			Quantity:  pos.Quantity,
		}
		fill, err := e.sim.Simulate(order, window)
		if err == nil && fill.Filled {
			rec.AttachFill(fill)
			return e.settle(res, rec, pos, ts, fill.NetPrice, "forced_exit")
		}
		if debit, ok := e.closeDebitAt(pos, snap); ok {
			rec.Note("%s swept at the touch", pos.Role)
			return e.settle(res, rec, pos, ts, debit, "forced_exit")
		}
	}
	// No usable quotes at the cutoff: settle at worst case.
	rec.Note("%s settled at max loss, no quotes at cutoff", pos.Role)
	worstDebit := pos.EntryCredit + pos.Structure.MaxLoss(pos.EntryCredit)
	return e.settle(res, rec, pos, ts, worstDebit, "forced_exit")
}

// closePosition simulates a closing debit fill; if the window times out the
// position is swept at the far touch so management never leaves a leg open.
func (e *Engine) closePosition(ctx context.Context, res *CycleResult, rec *models.DecisionRecord, pos *models.Position, snap *marketdata.Snapshot, ts time.Time, reason string) error {
	window, err := e.fillWindow(ctx, snap, ts)
	if err != nil {
		return err
	}
	order := &fills.Order{
		ID:        uuid.NewString(),
		Structure: pos.Structure,
		Action:    fills.CloseDebit,
		Quantity:  pos.Quantity,
	}
	fill, err := e.sim.Simulate(order, window)
	if err != nil {
		return err
	}
	if fill.Filled {
		rec.AttachFill(fill)
		return e.settle(res, rec, pos, ts, fill.NetPrice, reason)
	}
	debit, ok := e.closeDebitAt(pos, snap)
	if !ok {
		debit = pos.EntryCredit + pos.Structure.MaxLoss(pos.EntryCredit)
	}
	rec.Note("%s close unfilled (%s), swept at the touch", pos.Role, fill.Reason)
	return e.settle(res, rec, pos, ts, debit, reason)
}

// settle books the close into the position, the ladder, and the ledger.
func (e *Engine) settle(res *CycleResult, rec *models.DecisionRecord, pos *models.Position, ts time.Time, exitDebit float64, reason string) error {
	if err := pos.Close(ts, exitDebit, reason); err != nil {
		return err
	}
	res.RealizedPnL += pos.RealizedPnL
	e.ladder.RecordPnL(pos.RealizedPnL)
	rec.PnL += pos.RealizedPnL
	e.logger.Printf("closed %s %s for %.2f debit, pnl %.0f (%s)",
		pos.Role, pos.Structure.Kind, exitDebit, pos.RealizedPnL, reason)
	return e.ledger.AddClosedPosition(*pos)
}

// closeDebitAt marks the cost of buying the structure back at the far touch.
func (e *Engine) closeDebitAt(pos *models.Position, snap *marketdata.Snapshot) (float64, bool) {
	debit := 0.0
	for _, l := range pos.Structure.Legs {
		q, ok := snap.Quote(l.Strike, l.Kind)
		if !ok || !q.Liquid() {
			return 0, false
		}
		qty := float64(l.Quantity)
		if l.Side == structure.Sell {
			debit += qty * q.Ask // buy shorts back at the ask
		} else {
			debit -= qty * q.Bid // sell longs at the bid
		}
	}
	return debit, true
}

// worstCaseLoss prices a candidate's maximum loss in ladder dollars, at mid
// pricing, including the contract multiplier.
func worstCaseLoss(st *structure.Structure, snap *marketdata.Snapshot, qty int) float64 {
	credit, _ := st.MidNetCredit(snap)
	return st.MaxLoss(credit) * models.SharesPerContract * float64(qty)
}

// noteIVRank annotates the entry record with the reference IV's rank against
// prior sessions and rolls the history forward.
func (e *Engine) noteIVRank(rec *models.DecisionRecord, refIV float64) {
	if len(e.ivHistory) > 0 {
		rec.Note("iv rank %.0f across %d prior sessions",
			regime.IVRank(refIV, e.ivHistory), len(e.ivHistory))
	}
	e.ivHistory = append(e.ivHistory, refIV)
	if len(e.ivHistory) > ivHistoryLimit {
		e.ivHistory = e.ivHistory[len(e.ivHistory)-ivHistoryLimit:]
	}
}

// deriveInputs computes the seven gating inputs from the snapshot and the
// candidate structure.
func (e *Engine) deriveInputs(snap *marketdata.Snapshot, st *structure.Structure, r regime.Regime) gating.Inputs {
	em := snap.ExpectedMove()
	credit, _ := st.MidNetCredit(snap)
	maxLoss := st.MaxLoss(credit)
	lower, upper := profitBracket(st, credit)

	poe := gating.ProbOfExpiringInRange(snap.Underlying, lower, upper, em)
	pot := gating.ProbOfTouch(maxShortDelta(snap, st, em))

	edge := 0.0
	if credit+maxLoss > 0 {
		// Credit captured versus risk taken, against the risk-neutral
		// baseline implied by PoE.
		edge = credit/(credit+maxLoss) - (1 - poe)
	}

	return gating.Inputs{
		PoE:         poe,
		PoT:         pot,
		Edge:        edge,
		Liquidity:   liquidityScore(snap, st),
		RegimeFit:   e.classifier.FitScore(snap.RefIV, r),
		PinRisk:     pinRiskScore(snap, st, em),
		Utilization: e.ladder.Utilization(),
	}
}

// profitBracket returns the price range the structure profits in. The
// condor uses its short strikes, the butterfly its wings; the fly's shorts
// coincide, so its bracket is the breakevens around the body.
func profitBracket(st *structure.Structure, credit float64) (lower, upper float64) {
	switch st.Kind {
	case structure.BrokenWingButterfly:
		return st.Legs[0].Strike, st.Legs[2].Strike
	case structure.IronFly:
		body := st.Legs[1].Strike
		return body - credit, body + credit
	default:
		return st.Legs[1].Strike, st.Legs[2].Strike
	}
}

// maxShortDelta returns the largest recorded |delta| among short legs,
// estimated from the expected move when Greeks are absent.
func maxShortDelta(snap *marketdata.Snapshot, st *structure.Structure, em float64) float64 {
	maxDelta := 0.0
	for _, l := range st.Legs {
		if l.Side != structure.Sell {
			continue
		}
		q, ok := snap.Quote(l.Strike, l.Kind)
		if ok && q.HasGreeks {
			if d := math.Abs(q.Delta); d > maxDelta {
				maxDelta = d
			}
			continue
		}
		if em > 0 {
			z := math.Abs(snap.Underlying-l.Strike) / em
			if d := 0.5 * math.Erfc(z/math.Sqrt2); d > maxDelta {
				maxDelta = d
			}
		}
	}
	return maxDelta
}

// widestTradableSpread is the per-leg dollar spread that scores zero
// liquidity. Cheap wings always have large relative spreads, so the score
// works in absolute dollars.
const widestTradableSpread = 0.50

// liquidityScore maps the structure's average per-leg dollar spread onto
// [0,1]: a zero-spread market scores 1.
func liquidityScore(snap *marketdata.Snapshot, st *structure.Structure) float64 {
	total, n := 0.0, 0
	for _, l := range st.Legs {
		q, ok := snap.Quote(l.Strike, l.Kind)
		if !ok || !q.Liquid() {
			return 0
		}
		total += q.Spread()
		n++
	}
	score := 1 - (total/float64(n))/widestTradableSpread
	return clamp01(score)
}

// pinRiskScore scores distance of spot from the nearest short strike in
// expected-move units: at the strike 0, a full expected move away 1.
func pinRiskScore(snap *marketdata.Snapshot, st *structure.Structure, em float64) float64 {
	if em <= 0 {
		return 0
	}
	nearest := math.MaxFloat64
	for _, l := range st.Legs {
		if l.Side != structure.Sell {
			continue
		}
		if d := math.Abs(snap.Underlying - l.Strike); d < nearest {
			nearest = d
		}
	}
	if nearest == math.MaxFloat64 {
		return 0
	}
	return clamp01(nearest / em)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
