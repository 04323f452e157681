// Package risk implements the hard capital-preservation guard a prop
// account trades under. It is a pure function of the account snapshot.
package risk

import (
	"fmt"

	"proppilot/internal/types"
)

// Assessment is the guard's verdict for one cycle. Blocked means a hard
// limit is breached: every open position must be closed and no
// risk-increasing action may pass. Conservative means a soft buffer is
// breached: risk-increasing actions are suppressed, risk-reducing actions
// still pass.
type Assessment struct {
	Blocked      bool           `json:"blocked"`
	Conservative bool           `json:"conservative"`
	Reason       string         `json:"reason"`
	Severity     types.Severity `json:"severity"`
}

// Guard evaluates account state against a fixed set of limits.
type Guard struct {
	limits types.RiskLimits
}

// NewGuard builds a guard. A zero or negative soft buffer falls back to the
// conventional 20%.
func NewGuard(limits types.RiskLimits) *Guard {
	if limits.SoftBufferPct <= 0 {
		limits.SoftBufferPct = 0.20
	}
	return &Guard{limits: limits}
}

// Limits exposes the configured limits (for sizing proximity multipliers).
func (g *Guard) Limits() types.RiskLimits { return g.limits }

// Evaluate checks the account against both hard limits and both soft
// buffers. Hard breaches win; among soft breaches the daily limit is
// reported first since it resets soonest.
func (g *Guard) Evaluate(account types.AccountSnapshot) Assessment {
	if g.limits.MaxDailyLoss > 0 && account.DailyLoss() >= g.limits.MaxDailyLoss {
		return Assessment{
			Blocked:      true,
			Conservative: true,
			Reason: fmt.Sprintf("daily loss %.2f breached limit %.2f",
				account.DailyLoss(), g.limits.MaxDailyLoss),
			Severity: types.SeverityCritical,
		}
	}
	if g.limits.MaxTotalDrawdown > 0 && account.TotalDrawdown() >= g.limits.MaxTotalDrawdown {
		return Assessment{
			Blocked:      true,
			Conservative: true,
			Reason: fmt.Sprintf("total drawdown %.2f breached limit %.2f",
				account.TotalDrawdown(), g.limits.MaxTotalDrawdown),
			Severity: types.SeverityCritical,
		}
	}

	if g.limits.MaxDailyLoss > 0 {
		buffer := g.limits.MaxDailyLoss * g.limits.SoftBufferPct
		if dist := account.DistanceToDailyLimit(g.limits); dist < buffer {
			return Assessment{
				Conservative: true,
				Reason: fmt.Sprintf("within daily-loss buffer: %.2f left of %.2f",
					dist, buffer),
				Severity: types.SeverityWarning,
			}
		}
	}
	if g.limits.MaxTotalDrawdown > 0 {
		buffer := g.limits.MaxTotalDrawdown * g.limits.SoftBufferPct
		if dist := account.DistanceToDrawdownLimit(g.limits); dist < buffer {
			return Assessment{
				Conservative: true,
				Reason: fmt.Sprintf("within drawdown buffer: %.2f left of %.2f",
					dist, buffer),
				Severity: types.SeverityWarning,
			}
		}
	}

	return Assessment{Reason: "limits clear", Severity: types.SeverityInfo}
}

// Allows reports whether the assessment permits the given action.
func (a Assessment) Allows(action types.Action) bool {
	if a.Blocked {
		return action.ReducesRisk() || action == types.ActionHold
	}
	if a.Conservative && action.IncreasesRisk() {
		return false
	}
	return true
}
