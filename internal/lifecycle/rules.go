package lifecycle

import (
	"fmt"

	"proppilot/internal/types"
)

// Rule 1: hard account-protection breach closes everything, always.
func (e *Engine) ruleHardBlock(c *evalContext) *types.Decision {
	if !c.assessment.Blocked {
		return nil
	}
	return &types.Decision{
		Action:     types.ActionClose,
		Reason:     c.assessment.Reason,
		Confidence: 100,
		Severity:   types.SeverityCritical,
		Lots:       -c.in.Position.Lots,
	}
}

// Rule 2: inside a soft buffer a losing position is not worth defending.
func (e *Engine) ruleSoftLimitProtect(c *evalContext) *types.Decision {
	if !c.assessment.Conservative || !c.in.Position.Losing() {
		return nil
	}
	return &types.Decision{
		Action:     types.ActionClose,
		Reason:     fmt.Sprintf("protective close: %s while position losing", c.assessment.Reason),
		Confidence: 90,
		Severity:   types.SeverityWarning,
		Lots:       -c.in.Position.Lots,
	}
}

// Rule 3: the EV evaluator's verdict is honored as given.
func (e *Engine) ruleEVExit(c *evalContext) *types.Decision {
	v := e.ev.Evaluate(*c.in.Position, c.in.Snapshot)
	switch v.Action {
	case types.ActionClose:
		return &types.Decision{
			Action:     types.ActionClose,
			Reason:     v.Reason,
			Confidence: v.Confidence,
			Lots:       -c.in.Position.Lots,
		}
	case types.ActionPartialClose:
		return &types.Decision{
			Action:        types.ActionPartialClose,
			Reason:        v.Reason,
			Confidence:    v.Confidence,
			CloseFraction: v.CloseFraction,
			Lots:          -c.in.Position.Lots * v.CloseFraction,
		}
	default:
		return nil
	}
}

// Rule 4: a majority of timeframes flipped against the position,
// corroborated by opposing order flow, is an exit regardless of EV.
func (e *Engine) ruleTimeframeReversal(c *evalContext) *types.Decision {
	snap := c.in.Snapshot
	pos := c.in.Position
	if !snap.HasReadings || len(snap.Readings) == 0 || !snap.HasVolume {
		return nil
	}
	against := pos.Side.Opposite()
	flipped := snap.AlignedTimeframes(against)
	if flipped*2 <= len(snap.Readings) {
		return nil
	}

	imb := snap.Volume.Imbalance
	if pos.Side == types.SideShort {
		imb = -imb
	}
	flowAgainst := imb <= -0.3 ||
		(pos.Side == types.SideLong && snap.Volume.Distribution) ||
		(pos.Side == types.SideShort && snap.Volume.Accumulation)
	if !flowAgainst {
		return nil
	}
	return &types.Decision{
		Action: types.ActionClose,
		Reason: fmt.Sprintf("%d/%d timeframes flipped against with opposing flow",
			flipped, len(snap.Readings)),
		Confidence: 80,
		Lots:       -pos.Lots,
	}
}

// Rule 8: the comprehensive reversal scan against its profit-adjusted
// threshold.
func (e *Engine) ruleReversalScan(c *evalContext) *types.Decision {
	res := e.scanner.Scan(*c.in.Position, c.in.Snapshot)
	switch res.Action {
	case types.ActionClose:
		return &types.Decision{
			Action:     types.ActionClose,
			Reason:     res.Reason,
			Confidence: float64(res.Count) * 10,
			Lots:       -c.in.Position.Lots,
		}
	case types.ActionPartialClose:
		return &types.Decision{
			Action:        types.ActionPartialClose,
			Reason:        res.Reason,
			Confidence:    float64(res.Count) * 10,
			CloseFraction: 0.5,
			Lots:          -c.in.Position.Lots * 0.5,
		}
	default:
		return nil
	}
}

// Rule 9: a position going nowhere with no conviction behind it ties up
// margin that could work elsewhere.
func (e *Engine) ruleStaleExit(c *evalContext) *types.Decision {
	pos := c.in.Position
	profit := pos.ProfitPct()
	if profit > e.cfg.BreakevenBandPct || profit < -e.cfg.BreakevenBandPct {
		return nil
	}
	if pos.HoldingDuration(c.in.Now) < e.cfg.StaleAge {
		return nil
	}
	conf := 0.0
	if c.in.Snapshot.HasSignal {
		conf = c.in.Snapshot.Signal.Confidence
	}
	if conf >= e.cfg.StaleConfidence {
		return nil
	}
	return &types.Decision{
		Action: types.ActionClose,
		Reason: fmt.Sprintf("flat for %s with external confidence %.0f, freeing capital",
			pos.HoldingDuration(c.in.Now).Truncate(1e9), conf),
		Confidence: 60,
		Lots:       -pos.Lots,
	}
}
