package score

import "proppilot/internal/types"

// oscillator zones, measured on the side-adjusted reading (long uses the
// raw value, short uses the mirror). Supportive means "in favor but not
// yet extreme".
const (
	oscExtremeHigh    = 75.0
	oscSupportiveHigh = 70.0
	oscSupportiveLow  = 40.0
	oscRecoveringLow  = 30.0
)

func (e *Engine) scoreMomentum(res *Result, snap types.MarketSnapshot, side types.Side) float64 {
	if !snap.HasReadings || len(snap.Readings) == 0 {
		return neutral
	}

	var earned, possible float64
	supportive := 0
	for _, r := range snap.Readings {
		w := timeframeWeight(r.Timeframe)
		possible += w
		osc := r.Oscillator
		if side == types.SideShort {
			osc = 100 - osc
		}
		switch {
		case osc >= oscSupportiveLow && osc <= oscSupportiveHigh:
			earned += w
			supportive++
		case osc >= oscRecoveringLow && osc < oscSupportiveLow:
			earned += w / 2
		case osc > oscSupportiveHigh && osc <= oscExtremeHigh:
			earned += w / 2
		}
	}
	if possible == 0 {
		return neutral
	}

	score := earned / possible * 100
	if supportive*2 > len(snap.Readings) {
		score += 15
		res.note("oscillators agree on %d/%d timeframes", supportive, len(snap.Readings))
	}
	return clamp100(score)
}

func (e *Engine) scoreVolume(res *Result, snap types.MarketSnapshot, side types.Side) float64 {
	if !snap.HasVolume {
		return neutral
	}

	v := snap.Volume
	score := 0.0

	// Graduated baseline: average volume earns partial credit, twice
	// average earns the full 40 points.
	if v.RelativeVolume >= 1.0 {
		base := 20 + 20*clamp01(v.RelativeVolume-1.0)
		score += base
		res.note("relative volume %.2fx", v.RelativeVolume)
	} else if v.RelativeVolume >= 0.8 {
		score += 10
	}

	if side == types.SideLong && v.Accumulation {
		score += 25
		res.note("institutional accumulation")
	}
	if side == types.SideShort && v.Distribution {
		score += 25
		res.note("institutional distribution")
	}

	imb := v.Imbalance
	if side == types.SideShort {
		imb = -imb
	}
	if imb > 0 {
		score += 20 * clamp01(imb)
		if imb >= 0.3 {
			res.note("order flow imbalance %.2f in favor", imb)
		}
	}

	if v.SpikeRatio >= 2.0 {
		score += 15
		res.note("volume spike %.1fx", v.SpikeRatio)
	}

	return clamp100(score)
}

func (e *Engine) scoreStructure(res *Result, snap types.MarketSnapshot, side types.Side) float64 {
	if !snap.HasStructure {
		return neutral
	}

	s := snap.Structure
	score := 0.0

	// Longs want price pressed against support, shorts against resistance.
	pos := s.RangePosition
	dist := s.SupportDistPct
	if side == types.SideShort {
		pos = 1 - pos
		dist = s.ResistanceDistPct
	}
	if pos <= 0.25 {
		score += 25
		res.note("price near favorable range extreme (%.2f)", s.RangePosition)
	} else if pos <= 0.40 {
		score += 12
	}
	if dist > 0 && dist <= 0.5 {
		score += 20
	} else if dist > 0 && dist <= 1.0 {
		score += 10
	}

	// Band extremes behave like range extremes.
	band := s.BandPosition
	if side == types.SideShort {
		band = 1 - band
	}
	if band <= 0.15 {
		score += 15
	}

	if s.ConfluenceCount >= 3 {
		score += 35
		res.note("confluence of %d signals", s.ConfluenceCount)
	} else if s.ConfluenceCount == 2 {
		score += 15
	}

	return clamp100(score)
}

func (e *Engine) scoreSignal(res *Result, snap types.MarketSnapshot, side types.Side) float64 {
	if !snap.HasSignal || snap.Signal.Direction == types.SideFlat {
		return neutral
	}

	conf := clamp100(snap.Signal.Confidence)
	if snap.Signal.Direction == side {
		res.note("external signal agrees at %.0f%% confidence", conf)
		return clamp100(neutral + conf/2)
	}
	return clamp100(neutral - conf/2)
}
