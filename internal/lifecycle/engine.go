// Package lifecycle orchestrates the decision core: one evaluation cycle
// takes an account snapshot, an optional position and a market snapshot,
// runs a fixed priority chain of rules, and returns exactly one decision.
package lifecycle

import (
	"fmt"
	"time"

	"proppilot/internal/exit"
	"proppilot/internal/recovery"
	"proppilot/internal/risk"
	"proppilot/internal/score"
	"proppilot/internal/sizing"
	"proppilot/internal/types"
)

// Config carries the lifecycle thresholds. Zero values take production
// defaults via Normalize.
type Config struct {
	EntryThreshold   float64       `json:"entry_threshold"`    // composite score needed to open
	DCAThreshold     float64       `json:"dca_threshold"`      // eligibility blend needed to average in
	ScaleInThreshold float64       `json:"scale_in_threshold"` // composite score needed to add to a winner
	MaxPositionLots  float64       `json:"max_position_lots"`  // hard per-symbol size cap
	MaxOpenPositions int           `json:"max_open_positions"` // account-wide entry cap, 0 means uncapped
	NewPositionGrace time.Duration `json:"new_position_grace"` // no DCA before this age
	StaleAge         time.Duration `json:"stale_age"`          // capital-efficiency exit age
	StaleConfidence  float64       `json:"stale_confidence"`   // external confidence below which stale exits fire
	BreakevenBandPct float64       `json:"breakeven_band_pct"` // |profit| under this counts as flat
	StopATRMult      float64       `json:"stop_atr_mult"`      // stop distance in ATR multiples
	TargetRR         float64       `json:"target_rr"`          // target distance as multiple of stop distance
}

// Normalize fills unset fields with defaults.
func (c Config) Normalize() Config {
	if c.EntryThreshold <= 0 {
		c.EntryThreshold = 55
	}
	if c.DCAThreshold <= 0 {
		c.DCAThreshold = 65
	}
	if c.ScaleInThreshold <= 0 {
		c.ScaleInThreshold = 70
	}
	if c.MaxPositionLots <= 0 {
		c.MaxPositionLots = 10
	}
	if c.NewPositionGrace <= 0 {
		c.NewPositionGrace = 15 * time.Minute
	}
	if c.StaleAge <= 0 {
		c.StaleAge = 8 * time.Hour
	}
	if c.StaleConfidence <= 0 {
		c.StaleConfidence = 40
	}
	if c.BreakevenBandPct <= 0 {
		c.BreakevenBandPct = 0.3
	}
	if c.StopATRMult <= 0 {
		c.StopATRMult = 1.5
	}
	if c.TargetRR <= 0 {
		c.TargetRR = 2.0
	}
	return c
}

// Input is the immutable triple (plus broker metadata and sizing context)
// one evaluation consumes.
type Input struct {
	Account  types.AccountSnapshot
	Position *types.PositionSnapshot // nil when flat
	Snapshot types.MarketSnapshot
	Broker   types.BrokerSpec
	Factors  sizing.FactorInputs
	Now      time.Time
}

// Engine runs the priority chain. All collaborators are pure; the engine
// holds no mutable state, so one instance serves any number of symbols.
type Engine struct {
	guard   *risk.Guard
	scorer  *score.Engine
	rec     *recovery.Estimator
	ev      *exit.Evaluator
	scanner *exit.Scanner
	sizer   *sizing.Sizer
	cfg     Config

	rules []rule
}

// rule is one link of the priority chain: nil means "not applicable, fall
// through".
type rule struct {
	name  string
	apply func(*evalContext) *types.Decision
}

// NewEngine wires the decision core.
func NewEngine(guard *risk.Guard, scorer *score.Engine, rec *recovery.Estimator,
	ev *exit.Evaluator, scanner *exit.Scanner, sizer *sizing.Sizer, cfg Config) *Engine {
	e := &Engine{
		guard:   guard,
		scorer:  scorer,
		rec:     rec,
		ev:      ev,
		scanner: scanner,
		sizer:   sizer,
		cfg:     cfg.Normalize(),
	}
	e.rules = []rule{
		{"hard_block", e.ruleHardBlock},
		{"soft_limit_protect", e.ruleSoftLimitProtect},
		{"ev_exit", e.ruleEVExit},
		{"timeframe_reversal", e.ruleTimeframeReversal},
		{"dca", e.ruleDCA},
		{"scale_out", e.ruleScaleOut},
		{"scale_in", e.ruleScaleIn},
		{"reversal_scan", e.ruleReversalScan},
		{"stale_exit", e.ruleStaleExit},
	}
	return e
}

// Evaluate produces exactly one decision. It never panics out: any internal
// failure degrades to a zero-confidence HOLD, because "no decision" is an
// uncontrolled position.
func (e *Engine) Evaluate(in Input) (out types.Decision) {
	symbol := in.Snapshot.Symbol
	if symbol == "" && in.Position != nil {
		symbol = in.Position.Symbol
	}
	defer func() {
		if r := recover(); r != nil {
			out = types.Hold(symbol, fmt.Sprintf("evaluation failed: %v", r), 0)
			out.Rule = "fail_safe"
		}
	}()

	if in.Now.IsZero() {
		in.Now = time.Now()
	}
	ctx := &evalContext{in: in, engine: e, symbol: symbol}
	ctx.assessment = e.guard.Evaluate(in.Account)
	ctx.in.Factors.NearSoftLimit = ctx.assessment.Conservative

	if in.Position == nil {
		return e.evaluateEntry(ctx)
	}

	for _, r := range e.rules {
		if d := r.apply(ctx); d != nil {
			d.Symbol = symbol
			d.Rule = r.name
			if d.Side == "" {
				d.Side = in.Position.Side
			}
			return *d
		}
	}
	d := types.Hold(symbol, "no rule fired", 50)
	d.Rule = "default_hold"
	d.Side = in.Position.Side
	return d
}

// evalContext carries per-cycle shared state between rules, including
// lazily computed collaborator results so a score is computed at most once
// per cycle.
type evalContext struct {
	in         Input
	engine     *Engine
	symbol     string
	assessment risk.Assessment

	scoreOnce   bool
	scoreResult score.Result

	recoveryOnce bool
	recoveryProb float64
}

// positionScore scores the snapshot in the position's favor, memoized.
func (c *evalContext) positionScore() score.Result {
	if !c.scoreOnce {
		c.scoreResult = c.engine.scorer.Score(c.in.Snapshot, c.in.Position.Side, c.in.Broker.AssetClass)
		c.scoreOnce = true
	}
	return c.scoreResult
}

// recovery returns the memoized recovery probability for the current loss.
func (c *evalContext) recovery() float64 {
	if !c.recoveryOnce {
		loss := -c.in.Position.ProfitPct()
		if loss < 0 {
			loss = 0
		}
		c.recoveryProb = c.engine.rec.Probability(c.in.Snapshot, loss, c.in.Position.Side)
		c.recoveryOnce = true
	}
	return c.recoveryProb
}
