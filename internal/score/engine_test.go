package score

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proppilot/internal/types"
)

func bullishSnapshot() types.MarketSnapshot {
	return types.MarketSnapshot{
		Symbol: "XAUUSD",
		Price:  2400,
		Readings: []types.TimeframeReading{
			{Timeframe: types.TimeframeM5, Trend: 0.78, Oscillator: 58},
			{Timeframe: types.TimeframeM15, Trend: 0.80, Oscillator: 61},
			{Timeframe: types.TimeframeH1, Trend: 0.82, Oscillator: 55},
			{Timeframe: types.TimeframeH4, Trend: 0.75, Oscillator: 52},
			{Timeframe: types.TimeframeD1, Trend: 0.85, Oscillator: 60},
		},
		Volume: types.VolumeBlock{
			RelativeVolume: 1.6, Accumulation: true, SpikeRatio: 2.2, Imbalance: 0.4,
		},
		Structure: types.StructureBlock{
			RangePosition: 0.18, SupportDistPct: 0.3, BandPosition: 0.1, ConfluenceCount: 3,
		},
		Signal:       types.ExternalSignal{Direction: types.SideLong, Confidence: 80},
		Regime:       types.RegimeTrendingUp,
		HasReadings:  true,
		HasVolume:    true,
		HasStructure: true,
		HasSignal:    true,
	}
}

func TestScoreStrongBullishLong(t *testing.T) {
	e := NewEngine(DefaultWeights())
	out := e.Score(bullishSnapshot(), types.SideLong, types.AssetCommodity)
	assert.Greater(t, out.Total, 75.0)
	assert.Greater(t, out.Components.Trend, 90.0)
	assert.NotEmpty(t, out.Contributing)
}

func TestScoreStrongBullishShortIsWeak(t *testing.T) {
	e := NewEngine(DefaultWeights())
	long := e.Score(bullishSnapshot(), types.SideLong, types.AssetCommodity)
	short := e.Score(bullishSnapshot(), types.SideShort, types.AssetCommodity)
	assert.Greater(t, long.Total, short.Total+30)
}

func TestScoreMissingBlocksNeutral(t *testing.T) {
	e := NewEngine(DefaultWeights())
	out := e.Score(types.MarketSnapshot{Symbol: "EURUSD"}, types.SideLong, types.AssetForex)
	assert.InDelta(t, 50, out.Components.Trend, 1e-9)
	assert.InDelta(t, 50, out.Components.Momentum, 1e-9)
	assert.InDelta(t, 50, out.Components.Volume, 1e-9)
	assert.InDelta(t, 50, out.Components.Structure, 1e-9)
	assert.InDelta(t, 50, out.Components.Signal, 1e-9)
	assert.InDelta(t, 50, out.Total, 1e-9)
}

func TestScoreFlatDirectionNeutral(t *testing.T) {
	e := NewEngine(DefaultWeights())
	out := e.Score(bullishSnapshot(), types.SideFlat, types.AssetCommodity)
	assert.InDelta(t, 50, out.Total, 1e-9)
}

func TestAssetClassThresholdTiers(t *testing.T) {
	// A modest trend edge should clear the forex bar but not the
	// commodity bar.
	snap := types.MarketSnapshot{
		Readings: []types.TimeframeReading{
			{Timeframe: types.TimeframeM5, Trend: 0.62, Oscillator: 55},
			{Timeframe: types.TimeframeM15, Trend: 0.62, Oscillator: 55},
			{Timeframe: types.TimeframeH1, Trend: 0.62, Oscillator: 55},
			{Timeframe: types.TimeframeH4, Trend: 0.62, Oscillator: 55},
			{Timeframe: types.TimeframeD1, Trend: 0.62, Oscillator: 55},
		},
		HasReadings: true,
	}
	e := NewEngine(DefaultWeights())
	fx := e.Score(snap, types.SideLong, types.AssetForex)
	cm := e.Score(snap, types.SideLong, types.AssetCommodity)
	assert.Greater(t, fx.Components.Trend, cm.Components.Trend)
}

func TestTrendHalfCredit(t *testing.T) {
	full := types.MarketSnapshot{
		Readings:    []types.TimeframeReading{{Timeframe: types.TimeframeH1, Trend: 0.75}},
		HasReadings: true,
	}
	weak := types.MarketSnapshot{
		Readings:    []types.TimeframeReading{{Timeframe: types.TimeframeH1, Trend: 0.57}},
		HasReadings: true,
	}
	e := NewEngine(DefaultWeights())
	fullRes := e.Score(full, types.SideLong, types.AssetIndex)
	weakRes := e.Score(weak, types.SideLong, types.AssetIndex)
	require.Greater(t, fullRes.Components.Trend, 0.0)
	assert.InDelta(t, fullRes.Components.Trend/2, weakRes.Components.Trend, 1.0)
}

func TestMomentumExtremeEarnsNothing(t *testing.T) {
	overbought := types.MarketSnapshot{
		Readings: []types.TimeframeReading{
			{Timeframe: types.TimeframeH1, Trend: 0.8, Oscillator: 88},
		},
		HasReadings: true,
	}
	e := NewEngine(DefaultWeights())
	out := e.Score(overbought, types.SideLong, types.AssetIndex)
	assert.InDelta(t, 0, out.Components.Momentum, 1e-9)

	// A mid-zone reading mirrors cleanly: half credit long, full credit short.
	mid := types.MarketSnapshot{
		Readings: []types.TimeframeReading{
			{Timeframe: types.TimeframeH1, Trend: 0.5, Oscillator: 35},
		},
		HasReadings: true,
	}
	long := e.Score(mid, types.SideLong, types.AssetIndex)
	short := e.Score(mid, types.SideShort, types.AssetIndex)
	assert.Greater(t, short.Components.Momentum, long.Components.Momentum)
}

func TestDeterminism(t *testing.T) {
	e := NewEngine(DefaultWeights())
	snap := bullishSnapshot()
	first := e.Score(snap, types.SideLong, types.AssetCommodity)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, e.Score(snap, types.SideLong, types.AssetCommodity))
	}
}

func TestWeightsNormalized(t *testing.T) {
	e := NewEngine(Weights{Trend: 3, Momentum: 2.5, Volume: 2, Structure: 1.5, Signal: 1})
	out := e.Score(bullishSnapshot(), types.SideLong, types.AssetCommodity)
	ref := NewEngine(DefaultWeights()).Score(bullishSnapshot(), types.SideLong, types.AssetCommodity)
	assert.InDelta(t, ref.Total, out.Total, 1e-9)
}
