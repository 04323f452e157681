package score

import "proppilot/internal/types"

// trendThresholds are the per-asset-class bars a timeframe's trend value
// must clear (measured as distance from the 0.5 neutral line, in the
// direction scored) for full or half credit. Forex ranges more, so it gets
// the loosest bar; commodities trend persistently and get the strictest.
type trendThresholds struct {
	full float64
	weak float64
}

func thresholdsFor(class types.AssetClass) trendThresholds {
	switch class {
	case types.AssetForex:
		return trendThresholds{full: 0.10, weak: 0.02}
	case types.AssetCommodity:
		return trendThresholds{full: 0.20, weak: 0.08}
	default: // indices, crypto and anything unclassified take the middle tier
		return trendThresholds{full: 0.15, weak: 0.05}
	}
}

// timeframeWeight makes the slow timeframes count more: D1 carries three
// times the weight of M5.
func timeframeWeight(tf types.Timeframe) float64 {
	switch tf {
	case types.TimeframeM5:
		return 1.0
	case types.TimeframeM15:
		return 1.5
	case types.TimeframeH1:
		return 2.0
	case types.TimeframeH4:
		return 2.5
	case types.TimeframeD1:
		return 3.0
	default:
		return 1.0
	}
}

// trendEdge converts a raw 0..1 trend value into a signed distance from
// neutral in the scored direction: positive means aligned.
func trendEdge(trend float64, side types.Side) float64 {
	if side == types.SideShort {
		return 0.5 - trend
	}
	return trend - 0.5
}

func (e *Engine) scoreTrend(res *Result, snap types.MarketSnapshot, side types.Side, class types.AssetClass) float64 {
	if !snap.HasReadings || len(snap.Readings) == 0 {
		return neutral
	}

	th := thresholdsFor(class)
	var earned, possible float64
	aligned := 0
	for _, r := range snap.Readings {
		w := timeframeWeight(r.Timeframe)
		possible += w
		edge := trendEdge(r.Trend, side)
		switch {
		case edge >= th.full:
			earned += w
			aligned++
			res.note("trend %s aligned (%.2f)", r.Timeframe, r.Trend)
		case edge >= th.weak:
			earned += w / 2
			aligned++
			res.note("trend %s weakly aligned (%.2f)", r.Timeframe, r.Trend)
		case edge > 0:
			aligned++
		}
	}
	if possible == 0 {
		return neutral
	}

	score := earned / possible * 100
	if aligned == len(snap.Readings) && len(snap.Readings) >= len(types.Timeframes) {
		// Full-ladder agreement is rare and worth paying up for.
		score += 15
		res.note("all %d timeframes aligned", aligned)
	}
	return clamp100(score)
}
