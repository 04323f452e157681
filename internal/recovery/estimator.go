// Package recovery estimates the probability that an underwater position
// returns to profit, from the same snapshot the rest of the core consumes.
// Deterministic and stateless.
package recovery

import "proppilot/internal/types"

// Adjustment caps. The estimate starts at an uninformed 0.5 and each factor
// nudges it within its own bound before the final clamp to [0,1].
const (
	baseProbability = 0.50
	trendWeight     = 0.25
	signalWeight    = 0.20
	volumeWeight    = 0.10
	alignmentWeight = 0.20
	maxLossPenalty  = 0.30
	regimeBonus     = 0.05
)

// Estimator computes recovery probabilities.
type Estimator struct{}

// NewEstimator builds an estimator.
func NewEstimator() *Estimator { return &Estimator{} }

// Probability estimates the chance that a position on the given side,
// currently lossPct percent underwater (positive number), recovers to
// breakeven. Clamped to [0,1].
func (e *Estimator) Probability(snap types.MarketSnapshot, lossPct float64, side types.Side) float64 {
	if lossPct < 0 {
		lossPct = -lossPct
	}
	p := baseProbability

	// Trend strength in the position's favor, averaged over the ladder.
	if snap.HasReadings && len(snap.Readings) > 0 {
		var sum float64
		for _, r := range snap.Readings {
			sum += trendEdge(r.Trend, side)
		}
		avg := sum / float64(len(snap.Readings)) // -0.5..0.5
		p += trendWeight * clamp(avg*2, -1, 1)

		frac := float64(snap.AlignedTimeframes(side)) / float64(len(snap.Readings))
		p += alignmentWeight * (frac*2 - 1)
	}

	// External model agreement, scaled by its own confidence.
	if snap.HasSignal && snap.Signal.Direction != types.SideFlat {
		conf := clamp(snap.Signal.Confidence/100, 0, 1)
		if snap.Signal.Direction == side {
			p += signalWeight * conf
		} else {
			p -= signalWeight * conf
		}
	}

	// Volume support: flow absorbing in our direction helps, flow against
	// hurts.
	if snap.HasVolume {
		support := 0.0
		if side == types.SideLong && snap.Volume.Accumulation {
			support += 0.5
		}
		if side == types.SideShort && snap.Volume.Distribution {
			support += 0.5
		}
		imb := snap.Volume.Imbalance
		if side == types.SideShort {
			imb = -imb
		}
		support += clamp(imb, -1, 1) * 0.5
		p += volumeWeight * clamp(support, -1, 1)
	}

	// The deeper the hole, the less likely the climb out. 1% of equity-scale
	// loss costs 0.06; capped at the full penalty by 5%.
	penalty := lossPct * 0.06
	if penalty > maxLossPenalty {
		penalty = maxLossPenalty
	}
	p -= penalty

	switch {
	case snap.TrendingWith(side):
		p += regimeBonus
	case snap.Regime == types.RegimeRanging:
		p -= regimeBonus
	}

	return clamp(p, 0, 1)
}

func trendEdge(trend float64, side types.Side) float64 {
	if side == types.SideShort {
		return 0.5 - trend
	}
	return trend - 0.5
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
