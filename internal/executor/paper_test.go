package executor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"proppilot/internal/store/runstate"
	"proppilot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var goldSpec = types.BrokerSpec{
	Symbol:     "XAUUSD",
	AssetClass: types.AssetCommodity,
	MinLot:     0.01,
	MaxLot:     50,
	LotStep:    0.01,
	PointValue: 100,
}

func openGold(t *testing.T, p *Paper, lots float64) {
	t.Helper()
	err := p.Apply(context.Background(), types.Decision{
		Symbol: "XAUUSD",
		Action: types.ActionOpen,
		Side:   types.SideLong,
		Lots:   lots,
	}, Fill{Price: 2400, Spec: goldSpec, RiskBudgetUSD: 2000})
	require.NoError(t, err)
}

func TestOpenCreatesPosition(t *testing.T) {
	p := NewPaper(100000, nil)
	openGold(t, p, 1)

	pos, ok := p.Position("xauusd")
	require.True(t, ok)
	assert.Equal(t, types.SideLong, pos.Side)
	assert.InDelta(t, 2400.0, pos.EntryPrice, 1e-9)
	assert.InDelta(t, 2000.0, pos.RiskBudgetUSD, 1e-9)

	acc := p.Account()
	assert.Equal(t, 1, acc.OpenPositions)
	assert.InDelta(t, 100000.0, acc.Equity, 1e-9)
}

func TestOpenRejectsSecondPosition(t *testing.T) {
	p := NewPaper(100000, nil)
	openGold(t, p, 1)
	err := p.Apply(context.Background(), types.Decision{
		Symbol: "XAUUSD", Action: types.ActionOpen, Side: types.SideLong, Lots: 1,
	}, Fill{Price: 2400, Spec: goldSpec})
	require.Error(t, err)
}

func TestMarkTracksPeakWatermark(t *testing.T) {
	p := NewPaper(100000, nil)
	openGold(t, p, 1)

	require.NoError(t, p.Mark(context.Background(), "XAUUSD", 2448, goldSpec))
	pos, _ := p.Position("XAUUSD")
	assert.InDelta(t, 2.0, pos.PeakProfitPct, 1e-9)
	assert.InDelta(t, 104800.0, p.Account().Equity, 1e-6)

	// Pullback marks equity down but never the watermark.
	require.NoError(t, p.Mark(context.Background(), "XAUUSD", 2424, goldSpec))
	pos, _ = p.Position("XAUUSD")
	assert.InDelta(t, 2.0, pos.PeakProfitPct, 1e-9)
	assert.InDelta(t, 102400.0, p.Account().Equity, 1e-6)
	assert.InDelta(t, 104800.0, p.Account().PeakBalance, 1e-6)
}

func TestDCAAveragesEntry(t *testing.T) {
	p := NewPaper(100000, nil)
	openGold(t, p, 1)

	err := p.Apply(context.Background(), types.Decision{
		Symbol: "XAUUSD", Action: types.ActionDCA, Side: types.SideLong, Lots: 2,
	}, Fill{Price: 2376, Spec: goldSpec})
	require.NoError(t, err)

	pos, _ := p.Position("XAUUSD")
	assert.InDelta(t, 3.0, pos.Lots, 1e-9)
	// (1*2400 + 2*2376) / 3 = 2384
	assert.InDelta(t, 2384.0, pos.EntryPrice, 1e-9)
	assert.Equal(t, 1, pos.DCACount)
}

func TestScaleInDoesNotCountDCA(t *testing.T) {
	p := NewPaper(100000, nil)
	openGold(t, p, 1)

	err := p.Apply(context.Background(), types.Decision{
		Symbol: "XAUUSD", Action: types.ActionScaleIn, Side: types.SideLong, Lots: 0.5,
	}, Fill{Price: 2412, Spec: goldSpec})
	require.NoError(t, err)

	pos, _ := p.Position("XAUUSD")
	assert.InDelta(t, 1.5, pos.Lots, 1e-9)
	assert.Equal(t, 0, pos.DCACount)
}

func TestScaleOutRealizesProfit(t *testing.T) {
	p := NewPaper(100000, nil)
	openGold(t, p, 2)

	err := p.Apply(context.Background(), types.Decision{
		Symbol: "XAUUSD", Action: types.ActionScaleOut, Side: types.SideLong, Lots: -0.6,
	}, Fill{Price: 2436, Spec: goldSpec})
	require.NoError(t, err)

	pos, ok := p.Position("XAUUSD")
	require.True(t, ok)
	assert.InDelta(t, 1.4, pos.Lots, 1e-9)

	acc := p.Account()
	// 36 points * $100 * 0.6 lots realized.
	assert.InDelta(t, 102160.0, acc.Balance, 1e-6)
	assert.InDelta(t, 2160.0, acc.RealizedDailyPn, 1e-6)
	// Remaining 1.4 lots still carry 36 points unrealized.
	assert.InDelta(t, 107200.0, acc.Equity, 1e-6)
}

func TestReduceRumpBelowMinLotFlattens(t *testing.T) {
	p := NewPaper(100000, nil)
	openGold(t, p, 0.02)

	err := p.Apply(context.Background(), types.Decision{
		Symbol: "XAUUSD", Action: types.ActionPartialClose, CloseFraction: 0.9,
	}, Fill{Price: 2410, Spec: goldSpec})
	require.NoError(t, err)

	_, ok := p.Position("XAUUSD")
	assert.False(t, ok)
}

func TestCloseShortRealizesLoss(t *testing.T) {
	p := NewPaper(100000, nil)
	err := p.Apply(context.Background(), types.Decision{
		Symbol: "XAUUSD", Action: types.ActionOpen, Side: types.SideShort, Lots: 1,
	}, Fill{Price: 2400, Spec: goldSpec})
	require.NoError(t, err)

	err = p.Apply(context.Background(), types.Decision{
		Symbol: "XAUUSD", Action: types.ActionClose,
	}, Fill{Price: 2412, Spec: goldSpec})
	require.NoError(t, err)

	acc := p.Account()
	assert.InDelta(t, 98800.0, acc.Balance, 1e-6)
	assert.InDelta(t, -1200.0, acc.RealizedDailyPn, 1e-6)
	assert.Equal(t, 0, acc.OpenPositions)
}

func TestRollDayResetsLedgerOnce(t *testing.T) {
	p := NewPaper(100000, nil)
	openGold(t, p, 1)
	require.NoError(t, p.Apply(context.Background(), types.Decision{
		Symbol: "XAUUSD", Action: types.ActionClose,
	}, Fill{Price: 2412, Spec: goldSpec}))

	acc := p.Account()
	require.InDelta(t, 1200.0, acc.RealizedDailyPn, 1e-6)

	day1 := time.Date(2026, 8, 28, 22, 0, 0, 0, time.UTC)
	require.NoError(t, p.RollDay(context.Background(), day1))
	acc = p.Account()
	assert.Zero(t, acc.RealizedDailyPn)
	assert.InDelta(t, acc.Equity, acc.DailyStart, 1e-6)

	// Same day again is a no-op even after new realized P&L.
	openGold(t, p, 1)
	require.NoError(t, p.Apply(context.Background(), types.Decision{
		Symbol: "XAUUSD", Action: types.ActionClose,
	}, Fill{Price: 2390, Spec: goldSpec}))
	require.NoError(t, p.RollDay(context.Background(), day1.Add(time.Hour)))
	assert.InDelta(t, -1000.0, p.Account().RealizedDailyPn, 1e-6)

	// Next day resets again.
	require.NoError(t, p.RollDay(context.Background(), day1.Add(26*time.Hour)))
	assert.Zero(t, p.Account().RealizedDailyPn)
}

func TestStreaksTrackFullCloses(t *testing.T) {
	p := NewPaper(100000, nil)

	// Two winners in a row.
	for _, exit := range []float64{2412, 2424} {
		openGold(t, p, 1)
		require.NoError(t, p.Apply(context.Background(), types.Decision{
			Symbol: "XAUUSD", Action: types.ActionClose,
		}, Fill{Price: exit, Spec: goldSpec}))
	}
	wins, losses := p.Streaks()
	assert.Equal(t, 2, wins)
	assert.Equal(t, 0, losses)

	// One loser resets the win streak.
	openGold(t, p, 1)
	require.NoError(t, p.Apply(context.Background(), types.Decision{
		Symbol: "XAUUSD", Action: types.ActionClose,
	}, Fill{Price: 2390, Spec: goldSpec}))
	wins, losses = p.Streaks()
	assert.Equal(t, 0, wins)
	assert.Equal(t, 1, losses)
}

func TestRestoreFromStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runstate.db")
	store, err := runstate.Open(path)
	require.NoError(t, err)

	p := NewPaper(100000, store)
	openGold(t, p, 1)
	require.NoError(t, p.Mark(context.Background(), "XAUUSD", 2420, goldSpec))
	require.NoError(t, store.Close())

	store2, err := runstate.Open(path)
	require.NoError(t, err)
	defer store2.Close()

	p2 := NewPaper(100000, store2)
	require.NoError(t, p2.Restore(context.Background()))

	pos, ok := p2.Position("XAUUSD")
	require.True(t, ok)
	assert.InDelta(t, 2420.0, pos.CurrentPrice, 1e-9)
	assert.InDelta(t, 102000.0, p2.Account().Equity, 1e-6)
}
