package exit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proppilot/internal/recovery"
	"proppilot/internal/types"
)

func newEvaluator() *Evaluator {
	return NewEvaluator(recovery.NewEstimator(), 0, 0, 0, 0)
}

func longPos(entry, current, peakPct float64) types.PositionSnapshot {
	return types.PositionSnapshot{
		Symbol: "XAUUSD", Side: types.SideLong, Lots: 1,
		EntryPrice: entry, CurrentPrice: current, PeakProfitPct: peakPct,
	}
}

// snapshotBiased builds a snapshot whose every block favors the given side.
func snapshotBiased(side types.Side) types.MarketSnapshot {
	trend := 0.8
	imb := 0.6
	regime := types.RegimeTrendingUp
	if side == types.SideShort {
		trend = 0.2
		imb = -0.6
		regime = types.RegimeTrendingDown
	}
	return types.MarketSnapshot{
		Readings: []types.TimeframeReading{
			{Timeframe: types.TimeframeM5, Trend: trend, Oscillator: 55},
			{Timeframe: types.TimeframeM15, Trend: trend, Oscillator: 55},
			{Timeframe: types.TimeframeH1, Trend: trend, Oscillator: 55},
			{Timeframe: types.TimeframeH4, Trend: trend, Oscillator: 55},
			{Timeframe: types.TimeframeD1, Trend: trend, Oscillator: 55},
		},
		Volume: types.VolumeBlock{
			RelativeVolume: 1.2,
			Accumulation:   side == types.SideLong,
			Distribution:   side == types.SideShort,
			Imbalance:      imb,
		},
		Signal:      types.ExternalSignal{Direction: side, Confidence: 80},
		Regime:      regime,
		HasReadings: true,
		HasVolume:   true,
		HasSignal:   true,
	}
}

func TestLoserInsideNoiseFloorHolds(t *testing.T) {
	e := newEvaluator()
	// ~0.05% loss: below the 0.1% noise floor.
	v := e.Evaluate(longPos(2400, 2398.8, 0), snapshotBiased(types.SideShort))
	assert.Equal(t, types.ActionHold, v.Action)
	assert.Contains(t, v.Reason, "noise floor")
}

func TestLoserHostileMarketCloses(t *testing.T) {
	e := newEvaluator()
	// 2% underwater with every signal against: recovery p is tiny, exit EV wins.
	v := e.Evaluate(longPos(2400, 2352, 0), snapshotBiased(types.SideShort))
	require.Equal(t, types.ActionClose, v.Action)
	assert.Greater(t, v.Confidence, 60.0)
}

func TestLoserSupportiveMarketHolds(t *testing.T) {
	e := newEvaluator()
	// 1% underwater but everything favors recovery.
	v := e.Evaluate(longPos(2400, 2376, 0), snapshotBiased(types.SideLong))
	assert.Equal(t, types.ActionHold, v.Action)
}

func TestEVMonotonicInRecoveryProbability(t *testing.T) {
	// Sweeping the market from hostile to supportive must never flip a
	// hold back into a close. Close fires iff recovery p < 1/3.
	e := newEvaluator()
	pos := longPos(2400, 2364, 0) // 1.5% loss
	rec := recovery.NewEstimator()
	wasHold := false
	for _, conf := range []float64{100, 80, 60, 40, 20, 0} {
		snap := snapshotBiased(types.SideShort)
		snap.Signal = types.ExternalSignal{Direction: types.SideLong, Confidence: 100 - conf}
		pLow := rec.Probability(snap, 1.5, types.SideLong)
		v := e.Evaluate(pos, snap)
		holdNow := v.Action == types.ActionHold
		if wasHold {
			assert.True(t, holdNow, "hold flipped back to close as p rose to %.2f", pLow)
		}
		wasHold = holdNow
	}
}

func TestWinnerGivebackForcesClose(t *testing.T) {
	e := newEvaluator()
	pos := longPos(2400, 2428.3, 2.0) // ≈1.18% profit, giveback ≈41%
	v := e.Evaluate(pos, snapshotBiased(types.SideLong))
	require.Equal(t, types.ActionClose, v.Action)
	assert.Contains(t, v.Reason, "gave back")
}

func TestWinnerGivebackBoundaryForcesClose(t *testing.T) {
	e := newEvaluator()
	// Exactly 40% of the peak returned (profit 1.5%, peak 2.5%). The
	// supportive snapshot keeps continuation EV ahead of exit EV, which
	// must not matter once the giveback threshold is reached.
	pos := longPos(2000, 2030, 2.5)
	v := e.Evaluate(pos, snapshotBiased(types.SideLong))
	require.Equal(t, types.ActionClose, v.Action)
	assert.Contains(t, v.Reason, "gave back")
}

func TestWinnerStrongContinuationHolds(t *testing.T) {
	e := newEvaluator()
	pos := longPos(2400, 2424, 1.0) // 1% profit, at peak
	v := e.Evaluate(pos, snapshotBiased(types.SideLong))
	assert.Equal(t, types.ActionHold, v.Action)
}

func TestWinnerReversalPartialClose(t *testing.T) {
	e := NewEvaluator(recovery.NewEstimator(), 0, 0, 0.30, 0)
	// Decent profit, mixed-to-adverse evidence: reversal probability rises
	// above the partial trigger but exit EV may not dominate yet.
	pos := longPos(2400, 2424, 1.0)
	snap := snapshotBiased(types.SideShort)
	snap.Signal = types.ExternalSignal{Direction: types.SideFlat}
	v := e.Evaluate(pos, snap)
	require.NotEqual(t, types.ActionHold, v.Action)
	if v.Action == types.ActionPartialClose {
		assert.Greater(t, v.CloseFraction, 0.0)
		assert.LessOrEqual(t, v.CloseFraction, 0.75)
	}
}

func TestWinnerBelowMaterialityHolds(t *testing.T) {
	e := NewEvaluator(recovery.NewEstimator(), 0, 0.5, 0, 0)
	// 0.2% profit with adverse signals: too small to act on.
	pos := longPos(2400, 2404.8, 0.3)
	v := e.Evaluate(pos, snapshotBiased(types.SideShort))
	assert.Equal(t, types.ActionHold, v.Action)
}

func TestCloseFractionCappedAt75(t *testing.T) {
	e := NewEvaluator(recovery.NewEstimator(), 0, 0, 0.10, 0.99)
	pos := longPos(2400, 2424, 1.0)
	v := e.Evaluate(pos, snapshotBiased(types.SideShort))
	if v.Action == types.ActionPartialClose {
		assert.LessOrEqual(t, v.CloseFraction, 0.75)
	}
}

func TestVerdictDeterministic(t *testing.T) {
	e := newEvaluator()
	pos := longPos(2400, 2370, 0.5)
	snap := snapshotBiased(types.SideShort)
	first := e.Evaluate(pos, snap)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, e.Evaluate(pos, snap))
	}
}
