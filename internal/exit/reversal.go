package exit

import (
	"fmt"

	"proppilot/internal/types"
)

// ScanResult is the outcome of the comprehensive reversal scan: how many of
// the ten independent checks fired, which ones, and what the profit-adjusted
// trigger threshold was.
type ScanResult struct {
	Count     int      `json:"count"`
	Threshold int      `json:"threshold"`
	Signals   []string `json:"signals"`
	Action    types.Action
	Reason    string
}

// Scan trigger thresholds by P&L zone. A profitable position exits on less
// evidence; near breakeven the bar is much higher to avoid churn.
const (
	scanThresholdProfitable = 4
	scanThresholdBreakeven  = 7
	scanThresholdLosing     = 5

	breakevenBandPct = 0.5 // |profit| under this counts as breakeven
)

// Scanner runs the ten reversal/exhaustion checks.
type Scanner struct{}

// NewScanner builds a scanner.
func NewScanner() *Scanner { return &Scanner{} }

// Scan counts reversal evidence against the position and compares it to the
// profit-adjusted threshold. Well past the threshold it demands a full
// close; at the threshold a half de-risk.
func (s *Scanner) Scan(pos types.PositionSnapshot, snap types.MarketSnapshot) ScanResult {
	res := ScanResult{Action: types.ActionHold}
	against := pos.Side.Opposite()

	fire := func(name string) {
		res.Count++
		res.Signals = append(res.Signals, name)
	}

	if snap.HasReadings && len(snap.Readings) > 0 {
		// 1. Trend reversal breadth: majority of timeframes flipped.
		if snap.AlignedTimeframes(against)*2 > len(snap.Readings) {
			fire("trend reversal breadth")
		}
		// 2. Oscillator extremity breadth: majority stretched against us.
		extreme := 0
		for _, r := range snap.Readings {
			osc := r.Oscillator
			if pos.Side == types.SideShort {
				osc = 100 - osc
			}
			if osc >= 75 {
				extreme++
			}
		}
		if extreme*2 > len(snap.Readings) {
			fire("oscillator extremity breadth")
		}
		// 3. Momentum crossover: fast momentum rolled over while slow still
		// stretched, the classic exhaustion cross.
		if fast, ok := snap.Reading(types.TimeframeM5); ok {
			if slow, ok2 := snap.Reading(types.TimeframeH4); ok2 {
				fosc, sosc := fast.Oscillator, slow.Oscillator
				if pos.Side == types.SideShort {
					fosc, sosc = 100-fosc, 100-sosc
				}
				if fosc < 45 && sosc > 60 {
					fire("momentum crossover")
				}
			}
		}
	}

	if snap.HasVolume {
		// 4. Volume divergence: advance continuing on fading participation.
		if pos.Winning() && snap.Volume.RelativeVolume > 0 && snap.Volume.RelativeVolume < 0.8 {
			fire("volume divergence")
		}
		// 5. Institutional flow against the position.
		if (pos.Side == types.SideLong && snap.Volume.Distribution) ||
			(pos.Side == types.SideShort && snap.Volume.Accumulation) {
			fire("institutional flow against")
		}
		// 6. Order-flow imbalance against.
		imb := snap.Volume.Imbalance
		if pos.Side == types.SideShort {
			imb = -imb
		}
		if imb <= -0.3 {
			fire("order flow imbalance against")
		}
	}

	if snap.HasStructure {
		// 7. Band extremity in the adverse direction.
		band := snap.Structure.BandPosition
		if pos.Side == types.SideShort {
			band = 1 - band
		}
		if band >= 0.85 {
			fire("band extremity")
		}
		// 9. Timeframe-confluence breakdown: the agreement that justified
		// the entry is gone.
		if snap.Structure.ConfluenceCount <= 1 {
			fire("confluence breakdown")
		}
	}

	// 8. Regime flip.
	if snap.TrendingWith(against) {
		fire("regime flip")
	}

	// 10. External signal reversal.
	if snap.HasSignal && snap.Signal.Direction == against && snap.Signal.Confidence >= 60 {
		fire("external signal reversal")
	}

	res.Threshold = scanThreshold(pos.ProfitPct())
	switch {
	case res.Count >= res.Threshold+2:
		res.Action = types.ActionClose
	case res.Count >= res.Threshold:
		res.Action = types.ActionPartialClose
	}
	if res.Action != types.ActionHold {
		res.Reason = fmt.Sprintf("%d/%d reversal signals (threshold %d): %v",
			res.Count, 10, res.Threshold, res.Signals)
	}
	return res
}

func scanThreshold(profitPct float64) int {
	switch {
	case profitPct >= breakevenBandPct:
		return scanThresholdProfitable
	case profitPct <= -breakevenBandPct:
		return scanThresholdLosing
	default:
		return scanThresholdBreakeven
	}
}
