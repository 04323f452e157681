package lifecycle

import (
	"fmt"

	"proppilot/internal/sizing"
	"proppilot/internal/types"
)

// evaluateEntry is the abbreviated chain for a symbol with no open
// position: risk guard → composite score against the entry threshold →
// sizer. Anything short of a fully sized, guard-approved entry is a HOLD.
func (e *Engine) evaluateEntry(c *evalContext) types.Decision {
	symbol := c.symbol
	if !c.assessment.Allows(types.ActionOpen) {
		d := types.Hold(symbol, fmt.Sprintf("entries suspended: %s", c.assessment.Reason), 80)
		d.Rule = "entry_guard"
		d.Severity = c.assessment.Severity
		return d
	}
	if e.cfg.MaxOpenPositions > 0 && c.in.Account.OpenPositions >= e.cfg.MaxOpenPositions {
		d := types.Hold(symbol, fmt.Sprintf("open position cap %d reached", e.cfg.MaxOpenPositions), 70)
		d.Rule = "entry_cap"
		return d
	}

	long := e.scorer.Score(c.in.Snapshot, types.SideLong, c.in.Broker.AssetClass)
	short := e.scorer.Score(c.in.Snapshot, types.SideShort, c.in.Broker.AssetClass)
	side, best := types.SideLong, long
	if short.Total > long.Total {
		side, best = types.SideShort, short
	}
	if best.Total < e.cfg.EntryThreshold {
		d := types.Hold(symbol, fmt.Sprintf("best score %.0f (%s) below entry threshold %.0f",
			best.Total, side, e.cfg.EntryThreshold), 100-best.Total)
		d.Rule = "entry_score"
		return d
	}

	price := c.in.Snapshot.Price
	if price <= 0 {
		d := types.Hold(symbol, "snapshot carries no price", 0)
		d.Rule = "entry_invalid"
		return d
	}
	stop := e.stopPrice(price, side, c.in.Snapshot.ATRPct)
	factors := c.in.Factors
	if c.in.Snapshot.HasSignal {
		factors.SignalConfidence = sizing.DirectionalConfidence(c.in.Snapshot.Signal, side)
	}
	sized := e.sizer.SizeWithFactors(c.in.Account, price, stop, c.in.Broker, factors)
	if !sized.Valid {
		d := types.Hold(symbol, fmt.Sprintf("sizing rejected entry: %s", sized.Reason), 0)
		d.Rule = "entry_sizing"
		return d
	}

	return types.Decision{
		Symbol:      symbol,
		Action:      types.ActionOpen,
		Side:        side,
		Reason:      fmt.Sprintf("score %.0f above entry threshold %.0f: %v", best.Total, e.cfg.EntryThreshold, best.Contributing),
		Confidence:  best.Total,
		Rule:        "entry_open",
		Lots:        sized.Lots,
		StopPrice:   stop,
		TargetPrice: e.targetPrice(price, stop, side),
	}
}
