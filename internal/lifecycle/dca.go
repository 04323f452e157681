package lifecycle

import (
	"fmt"

	"proppilot/internal/sizing"
	"proppilot/internal/types"
)

// DCA eligibility blend weights: recovery probability dominates, the
// external model and the composite score corroborate.
const (
	dcaRecoveryWeight = 0.45
	dcaSignalWeight   = 0.25
	dcaScoreWeight    = 0.30

	dcaMaxAddMultiple = 2.0 // a single add never exceeds twice current size
)

// Rule 5: average into a losing position when recovery evidence clears the
// bar, the attempt budget is not exhausted, and the guard is not already
// nervous.
func (e *Engine) ruleDCA(c *evalContext) *types.Decision {
	pos := c.in.Position
	if !pos.Losing() {
		return nil
	}
	if pos.HoldingDuration(c.in.Now) < e.cfg.NewPositionGrace {
		return nil
	}
	if c.assessment.Conservative {
		return nil
	}

	sc := c.positionScore()
	p := c.recovery()
	signalConf := 0.0
	if c.in.Snapshot.HasSignal && c.in.Snapshot.Signal.Direction == pos.Side {
		signalConf = c.in.Snapshot.Signal.Confidence
	}
	eligibility := dcaRecoveryWeight*p*100 + dcaSignalWeight*signalConf + dcaScoreWeight*sc.Total
	if eligibility < e.cfg.DCAThreshold {
		return nil
	}

	maxAttempts := MaxDCAAttempts(sc.Components.Trend/100, p)
	if pos.DCACount >= maxAttempts {
		return nil
	}

	lots, breakeven, target := e.dcaSize(pos, p, c.in.Broker)
	if lots <= 0 {
		return nil
	}
	if pos.Lots+lots > e.cfg.MaxPositionLots {
		lots = sizing.RoundToStep(e.cfg.MaxPositionLots-pos.Lots, c.in.Broker.LotStep)
		if lots < c.in.Broker.MinLot {
			return nil
		}
	}

	stop := e.stopPrice(pos.CurrentPrice, pos.Side, c.in.Snapshot.ATRPct)
	return &types.Decision{
		Action: types.ActionDCA,
		Reason: fmt.Sprintf("DCA %d/%d: eligibility %.0f (p=%.2f signal=%.0f score=%.0f), breakeven → %.5g",
			pos.DCACount+1, maxAttempts, eligibility, p, signalConf, sc.Total, breakeven),
		Confidence:  eligibility,
		Lots:        lots,
		StopPrice:   stop,
		TargetPrice: target,
	}
}

// MaxDCAAttempts derives the attempt budget from trend strength (0..1, the
// trend component rescaled) and recovery probability. Bounded 1..6: weak
// evidence earns one shot, a strong trend with high recovery odds earns the
// full six.
func MaxDCAAttempts(trendStrength, recoveryProb float64) int {
	n := 1 + int(trendStrength*2.5+recoveryProb*3)
	if n < 1 {
		n = 1
	}
	if n > 6 {
		n = 6
	}
	return n
}

// dcaSize chooses an add size that pulls breakeven to within a target
// distance of the current price. Higher recovery probability justifies a
// larger add chasing a smaller required move; low probability buys only a
// token improvement.
func (e *Engine) dcaSize(pos *types.PositionSnapshot, recoveryProb float64, spec types.BrokerSpec) (lots, breakeven, target float64) {
	entry, cur := pos.EntryPrice, pos.CurrentPrice
	gap := entry - cur
	if pos.Side == types.SideShort {
		gap = cur - entry
	}
	if gap <= 0 {
		return 0, 0, 0
	}

	// Fraction of the remaining gap breakeven should still sit away from
	// current price after the add: p=1 → 30%, p=0.33 → ~63%.
	k := 0.8 - 0.5*recoveryProb
	if k < 0.3 {
		k = 0.3
	}
	addRatio := 1/k - 1 // lots to add per existing lot
	if addRatio > dcaMaxAddMultiple {
		addRatio = dcaMaxAddMultiple
	}
	lots = sizing.RoundToStep(pos.Lots*addRatio, spec.LotStep)
	if lots < spec.MinLot {
		return 0, 0, 0
	}

	total := pos.Lots + lots
	breakeven = (pos.Lots*entry + lots*cur) / total
	if pos.Side == types.SideLong {
		target = breakeven + gap*k*0.5
	} else {
		target = breakeven - gap*k*0.5
	}
	return lots, breakeven, target
}

// stopPrice places a protective stop an ATR multiple away from price.
func (e *Engine) stopPrice(price float64, side types.Side, atrPct float64) float64 {
	if atrPct <= 0 {
		atrPct = 1.0
	}
	dist := price * atrPct / 100 * e.cfg.StopATRMult
	if side == types.SideShort {
		return price + dist
	}
	return price - dist
}
