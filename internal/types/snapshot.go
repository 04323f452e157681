package types

import "time"

// Timeframe identifies one bar interval in the fixed fast→slow ladder the
// feature pipeline reports on.
type Timeframe string

const (
	TimeframeM5  Timeframe = "5m"
	TimeframeM15 Timeframe = "15m"
	TimeframeH1  Timeframe = "1h"
	TimeframeH4  Timeframe = "4h"
	TimeframeD1  Timeframe = "1d"
)

// Timeframes is the full ordered ladder, fastest first. Slower entries carry
// more weight everywhere trend breadth is scored.
var Timeframes = []Timeframe{TimeframeM5, TimeframeM15, TimeframeH1, TimeframeH4, TimeframeD1}

// Regime is the coarse market-behavior label attached to a snapshot.
type Regime string

const (
	RegimeTrendingUp   Regime = "trending-up"
	RegimeTrendingDown Regime = "trending-down"
	RegimeRanging      Regime = "ranging"
	RegimeVolatile     Regime = "volatile"
)

// TimeframeReading is the per-timeframe feature pair: a continuous trend
// value (0 bearish .. 1 bullish) and a momentum oscillator (0..100).
type TimeframeReading struct {
	Timeframe  Timeframe `json:"timeframe"`
	Trend      float64   `json:"trend"`
	Oscillator float64   `json:"oscillator"`
}

// VolumeBlock groups the order-flow features. RelativeVolume is current
// volume over its rolling average; Imbalance is signed (-1 sell-heavy ..
// +1 buy-heavy).
type VolumeBlock struct {
	RelativeVolume float64 `json:"relative_volume"`
	Accumulation   bool    `json:"accumulation"`
	Distribution   bool    `json:"distribution"`
	SpikeRatio     float64 `json:"spike_ratio"`
	Imbalance      float64 `json:"imbalance"`
}

// StructureBlock groups position-in-range features. RangePosition and
// BandPosition are 0 (at the low/lower band) .. 1 (at the high/upper band).
type StructureBlock struct {
	RangePosition     float64 `json:"range_position"`
	BandPosition      float64 `json:"band_position"`
	SupportDistPct    float64 `json:"support_dist_pct"`
	ResistanceDistPct float64 `json:"resistance_dist_pct"`
	ConfluenceCount   int     `json:"confluence_count"`
}

// ExternalSignal is the opaque directional signal contributed by the
// external model. Direction flat means "no opinion".
type ExternalSignal struct {
	Direction  Side    `json:"direction"`
	Confidence float64 `json:"confidence"` // 0..100
}

// MarketSnapshot is the typed feature vector for one symbol and one
// evaluation cycle. The unknown/neutral policy is decided once here, at the
// construction boundary: each Has* flag marks whether the corresponding
// block was actually supplied, and consumers score an absent block as
// neutral rather than guessing field by field.
type MarketSnapshot struct {
	Symbol    string             `json:"symbol"`
	Price     float64            `json:"price"`
	ATRPct    float64            `json:"atr_pct"`
	Readings  []TimeframeReading `json:"readings"`
	Volume    VolumeBlock        `json:"volume"`
	Structure StructureBlock     `json:"structure"`
	Signal    ExternalSignal     `json:"signal"`
	Regime    Regime             `json:"regime"`
	Taken     time.Time          `json:"taken"`

	HasReadings  bool `json:"has_readings"`
	HasVolume    bool `json:"has_volume"`
	HasStructure bool `json:"has_structure"`
	HasSignal    bool `json:"has_signal"`
}

// Reading returns the reading for one timeframe, if present.
func (m MarketSnapshot) Reading(tf Timeframe) (TimeframeReading, bool) {
	for _, r := range m.Readings {
		if r.Timeframe == tf {
			return r, true
		}
	}
	return TimeframeReading{}, false
}

// TrendAgrees reports whether one trend value sits on the given side of
// neutral (above 0.5 for long, below for short).
func TrendAgrees(trend float64, side Side) bool {
	if side == SideShort {
		return trend < 0.5
	}
	return trend > 0.5
}

// AlignedTimeframes counts readings whose trend agrees with side.
func (m MarketSnapshot) AlignedTimeframes(side Side) int {
	n := 0
	for _, r := range m.Readings {
		if TrendAgrees(r.Trend, side) {
			n++
		}
	}
	return n
}

// TrendingWith reports whether the regime label trends in the side's favor.
func (m MarketSnapshot) TrendingWith(side Side) bool {
	return (side == SideLong && m.Regime == RegimeTrendingUp) ||
		(side == SideShort && m.Regime == RegimeTrendingDown)
}

// Trending reports whether the regime is directional at all.
func (m MarketSnapshot) Trending() bool {
	return m.Regime == RegimeTrendingUp || m.Regime == RegimeTrendingDown
}
