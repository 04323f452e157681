package lifecycle

import (
	"fmt"

	"proppilot/internal/sizing"
	"proppilot/internal/types"
)

const (
	// scaleOutProfitMultiple: banked profit must exceed this multiple of
	// the position's risk budget before partial profit-taking starts.
	scaleOutProfitMultiple = 1.5

	scaleOutMinFraction = 0.15
	scaleOutMaxFraction = 0.50

	scaleInAddFraction = 0.50 // add half the current size per scale-in
)

// Rule 6: a winner that has grown large relative to the risk it was sized
// for banks a slice, larger when the move is stretched against volatility
// or the evidence is fading.
func (e *Engine) ruleScaleOut(c *evalContext) *types.Decision {
	pos := c.in.Position
	if !pos.Winning() {
		return nil
	}
	profitUSD := pos.ProfitUSD(c.in.Broker.PointValue)
	budget := pos.RiskBudgetUSD
	if budget <= 0 {
		// Without a recorded budget fall back to the sizer baseline.
		budget = c.in.Account.Equity * e.sizer.BaseRiskPct()
	}
	if profitUSD < budget*scaleOutProfitMultiple {
		return nil
	}

	atr := c.in.Snapshot.ATRPct
	if atr <= 0 {
		atr = 1.0
	}
	stretch := pos.ProfitPct() / atr // how many ATRs the move has run
	sc := c.positionScore()
	weakening := (50 - sc.Total) / 50
	if weakening < 0 {
		weakening = 0
	}

	frac := scaleOutMinFraction + 0.08*stretch + 0.25*weakening
	if frac > scaleOutMaxFraction {
		frac = scaleOutMaxFraction
	}
	lots := sizing.RoundToStep(pos.Lots*frac, c.in.Broker.LotStep)
	if lots < c.in.Broker.MinLot || lots >= pos.Lots {
		return nil
	}
	return &types.Decision{
		Action: types.ActionScaleOut,
		Reason: fmt.Sprintf("profit %.0f banked at %.1f× risk budget, %.1f ATR stretch, score %.0f",
			profitUSD, profitUSD/budget, stretch, sc.Total),
		Confidence:    70,
		CloseFraction: frac,
		Lots:          -lots,
	}
}

// Rule 7: a winner in a still-strong market earns an add, capped by the
// per-symbol size limit.
func (e *Engine) ruleScaleIn(c *evalContext) *types.Decision {
	pos := c.in.Position
	if !pos.Winning() {
		return nil
	}
	if !c.assessment.Allows(types.ActionScaleIn) {
		return nil
	}
	if pos.Lots >= e.cfg.MaxPositionLots {
		return nil
	}
	sc := c.positionScore()
	if sc.Total < e.cfg.ScaleInThreshold {
		return nil
	}

	add := pos.Lots * scaleInAddFraction
	if pos.Lots+add > e.cfg.MaxPositionLots {
		add = e.cfg.MaxPositionLots - pos.Lots
	}
	add = sizing.RoundToStep(add, c.in.Broker.LotStep)
	if add < c.in.Broker.MinLot {
		return nil
	}

	stop := e.stopPrice(pos.CurrentPrice, pos.Side, c.in.Snapshot.ATRPct)
	target := e.targetPrice(pos.CurrentPrice, stop, pos.Side)
	return &types.Decision{
		Action:      types.ActionScaleIn,
		Reason:      fmt.Sprintf("winner with composite score %.0f ≥ %.0f", sc.Total, e.cfg.ScaleInThreshold),
		Confidence:  sc.Total,
		Lots:        add,
		StopPrice:   stop,
		TargetPrice: target,
	}
}

// targetPrice projects the configured reward multiple of the stop distance.
func (e *Engine) targetPrice(price, stop float64, side types.Side) float64 {
	dist := price - stop
	if dist < 0 {
		dist = -dist
	}
	if side == types.SideShort {
		return price - dist*e.cfg.TargetRR
	}
	return price + dist*e.cfg.TargetRR
}
