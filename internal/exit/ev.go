// Package exit decides whether holding a position still has positive
// expected value, and scans for multi-signal reversal evidence against it.
package exit

import (
	"fmt"

	"proppilot/internal/recovery"
	"proppilot/internal/types"
)

// Verdict is the evaluator's recommendation for one position.
type Verdict struct {
	Action        types.Action `json:"action"` // hold | partial_close | close
	Reason        string       `json:"reason"`
	Confidence    float64      `json:"confidence"`
	CloseFraction float64      `json:"close_fraction,omitempty"`
}

func hold(reason string, confidence float64) Verdict {
	return Verdict{Action: types.ActionHold, Reason: reason, Confidence: confidence}
}

// Evaluator compares EV(hold) against EV(exit).
type Evaluator struct {
	rec *recovery.Estimator

	// noiseFloorPct ignores losses smaller than spread/slippage noise.
	noiseFloorPct float64
	// minProfitPct is the materiality bar below which winning exits wait.
	minProfitPct float64
	// partialReversalProb is the reversal probability beyond which a
	// partial de-risk is taken even when full exit is not yet justified.
	partialReversalProb float64
	// maxGivebackFrac forces a close once this much of peak profit is gone.
	maxGivebackFrac float64
}

// NewEvaluator wires the evaluator with its thresholds. Zero values take
// the production defaults (0.1% noise floor, 0.3% materiality, 0.40
// reversal trigger, 40% giveback cap).
func NewEvaluator(rec *recovery.Estimator, noiseFloorPct, minProfitPct, partialReversalProb, maxGivebackFrac float64) *Evaluator {
	if noiseFloorPct <= 0 {
		noiseFloorPct = 0.1
	}
	if minProfitPct <= 0 {
		minProfitPct = 0.3
	}
	if partialReversalProb <= 0 {
		partialReversalProb = 0.40
	}
	if maxGivebackFrac <= 0 {
		maxGivebackFrac = 0.40
	}
	return &Evaluator{
		rec:                 rec,
		noiseFloorPct:       noiseFloorPct,
		minProfitPct:        minProfitPct,
		partialReversalProb: partialReversalProb,
		maxGivebackFrac:     maxGivebackFrac,
	}
}

// Evaluate weighs holding against exiting. For losers the recovery
// probability prices the downside; for winners continuation and reversal
// probabilities price the upside left on the table.
func (e *Evaluator) Evaluate(pos types.PositionSnapshot, snap types.MarketSnapshot) Verdict {
	profit := pos.ProfitPct()

	if profit < 0 {
		return e.evaluateLoser(pos, snap, -profit)
	}
	return e.evaluateWinner(pos, snap, profit)
}

func (e *Evaluator) evaluateLoser(pos types.PositionSnapshot, snap types.MarketSnapshot, lossPct float64) Verdict {
	if lossPct < e.noiseFloorPct {
		return hold("loss inside noise floor", 40)
	}

	p := e.rec.Probability(snap, lossPct, pos.Side)
	// EV(hold) = p·0 + (1-p)·(-1.5·loss); EV(exit) = -loss.
	evHold := (1 - p) * -1.5 * lossPct
	evExit := -lossPct
	if evExit > evHold {
		return Verdict{
			Action: types.ActionClose,
			Reason: fmt.Sprintf("EV(exit) %.2f beats EV(hold) %.2f at recovery p=%.2f",
				evExit, evHold, p),
			Confidence: (1 - p) * 100,
		}
	}
	return hold(fmt.Sprintf("recovery p=%.2f keeps hold EV ahead", p), p*100)
}

func (e *Evaluator) evaluateWinner(pos types.PositionSnapshot, snap types.MarketSnapshot, profit float64) Verdict {
	// Giveback guard runs first: once 40% of the peak is gone the trade
	// thesis already failed, whatever continuation still looks like.
	if pos.PeakProfitPct > 0 && profit > 0 {
		giveback := (pos.PeakProfitPct - profit) / pos.PeakProfitPct
		if giveback >= e.maxGivebackFrac {
			return Verdict{
				Action: types.ActionClose,
				Reason: fmt.Sprintf("gave back %.0f%% of peak profit %.2f%%",
					giveback*100, pos.PeakProfitPct),
				Confidence: 85,
			}
		}
	}

	cont, rev, flat := e.outcomeProbabilities(snap, pos.Side)
	evHold := cont*profit*1.4 + rev*profit*0.4 + flat*profit
	evExit := profit

	if evExit > evHold && profit >= e.minProfitPct {
		return Verdict{
			Action: types.ActionClose,
			Reason: fmt.Sprintf("EV(exit) %.2f beats EV(hold) %.2f (cont=%.2f rev=%.2f)",
				evExit, evHold, cont, rev),
			Confidence: rev * 100,
		}
	}
	if rev > e.partialReversalProb && profit >= e.minProfitPct {
		frac := rev
		if frac > 0.75 {
			frac = 0.75
		}
		return Verdict{
			Action:        types.ActionPartialClose,
			Reason:        fmt.Sprintf("reversal p=%.2f, de-risking %.0f%%", rev, frac*100),
			Confidence:    rev * 100,
			CloseFraction: frac,
		}
	}
	return hold(fmt.Sprintf("hold EV %.2f ahead of exit %.2f", evHold, evExit), cont*100)
}

// outcomeProbabilities builds continuation/reversal/flat probabilities from
// the same adjustment machinery the recovery estimator uses, applied
// symmetrically to both sides.
func (e *Evaluator) outcomeProbabilities(snap types.MarketSnapshot, side types.Side) (cont, rev, flat float64) {
	cont = e.rec.Probability(snap, 0, side)
	rev = e.rec.Probability(snap, 0, side.Opposite())
	if total := cont + rev; total > 1 {
		cont /= total
		rev /= total
	}
	flat = 1 - cont - rev
	if flat < 0 {
		flat = 0
	}
	return cont, rev, flat
}
