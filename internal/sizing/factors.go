package sizing

import (
	"fmt"

	"proppilot/internal/types"
)

// Factor is one applied risk multiplier and the condition that triggered
// it, retained verbatim in the sizing result so every order's size can be
// reconstructed from its log line.
type Factor struct {
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	Trigger string  `json:"trigger"`
}

// FactorInputs feeds the multiplier chain. Zero values are all safe
// no-ops.
type FactorInputs struct {
	SignalConfidence float64 // 0..100, external model confidence
	WinStreak        int     // consecutive wins (positive) at cycle start
	LossStreak       int     // consecutive losses (positive)
	NearSoftLimit    bool    // risk guard conservative flag
	OpenPositions    int     // concurrent open positions, this one excluded
	DailyPnL         float64 // realized daily P&L, signed
}

// DirectionalConfidence reads an external signal's confidence relative
// to the trade side being sized. An agreeing signal passes through, an
// opposing one inverts (90 against reads as 10 for), and a flat or
// absent signal contributes nothing.
func DirectionalConfidence(sig types.ExternalSignal, side types.Side) float64 {
	switch sig.Direction {
	case side:
		return sig.Confidence
	case side.Opposite():
		if inv := 100 - sig.Confidence; inv > 0 {
			return inv
		}
		return 1
	default:
		return 0
	}
}

// Per-factor bounds. Each multiplier stays inside [0.5, 1.5] on its own;
// the product is clamped to the sizer ceiling afterwards.
const (
	factorFloor = 0.5
	factorCeil  = 1.5
)

func boundFactor(v float64) float64 {
	if v < factorFloor {
		return factorFloor
	}
	if v > factorCeil {
		return factorCeil
	}
	return v
}

// adjustedRiskPct multiplies the baseline by every triggered factor and
// clamps the result to the hard ceiling.
func (s *Sizer) adjustedRiskPct(in FactorInputs) (float64, []Factor) {
	risk := s.baseRiskPct
	var applied []Factor

	use := func(name string, value float64, trigger string) {
		value = boundFactor(value)
		risk *= value
		applied = append(applied, Factor{Name: name, Value: value, Trigger: trigger})
	}

	if in.SignalConfidence > 0 {
		// 50% confidence is neutral; 100% scales risk up by half, 0 would
		// halve it.
		use("signal_confidence", 0.5+in.SignalConfidence/100,
			fmt.Sprintf("external confidence %.0f", in.SignalConfidence))
	}
	if in.LossStreak >= 2 {
		use("loss_streak", 1-0.15*float64(in.LossStreak),
			fmt.Sprintf("%d consecutive losses", in.LossStreak))
	} else if in.WinStreak >= 3 {
		use("win_streak", 1+0.10*float64(in.WinStreak-2),
			fmt.Sprintf("%d consecutive wins", in.WinStreak))
	}
	if in.NearSoftLimit {
		use("soft_limit", 0.5, "inside risk-guard soft buffer")
	}
	if in.OpenPositions > 0 {
		use("open_positions", 1-0.10*float64(in.OpenPositions),
			fmt.Sprintf("%d concurrent positions", in.OpenPositions))
	}
	if in.DailyPnL < 0 {
		use("daily_pnl", 0.8, "negative daily P&L")
	} else if in.DailyPnL > 0 {
		use("daily_pnl", 1.1, "positive daily P&L")
	}

	if risk > s.ceilingPct {
		applied = append(applied, Factor{
			Name:    "ceiling",
			Value:   s.ceilingPct / risk,
			Trigger: fmt.Sprintf("clamped to hard ceiling %.2f%%", s.ceilingPct*100),
		})
		risk = s.ceilingPct
	}
	return risk, applied
}
