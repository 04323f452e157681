package decisionlog

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"proppilot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "decisions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(symbol string) Record {
	return Record{
		Symbol: symbol,
		Decision: types.Decision{
			Symbol:     symbol,
			Action:     types.ActionOpen,
			Side:       types.SideLong,
			Rule:       "entry_open",
			Reason:     "score 78 above entry threshold 55",
			Confidence: 78,
			Lots:       0.93,
			StopPrice:  2371.2,
		},
		Components: map[string]float64{
			"trend":     82.5,
			"momentum":  70,
			"volume":    65,
			"structure": 60,
			"signal":    92.5,
		},
		Multipliers: []Multiplier{
			{Name: "signal_confidence", Value: 1.35, Trigger: "confidence 85"},
			{Name: "ceiling", Value: 1.0},
		},
		Snapshot: json.RawMessage(`{"symbol":"XAUUSD","price":2400.5}`),
	}
}

func TestAppendAssignsTraceID(t *testing.T) {
	s := openStore(t)
	rec := sampleRecord("XAUUSD")
	require.NoError(t, s.Append(context.Background(), &rec))
	assert.NotEmpty(t, rec.TraceID)
	assert.False(t, rec.At.IsZero())
}

func TestRoundTripComponentsAndMultipliers(t *testing.T) {
	s := openStore(t)
	rec := sampleRecord("XAUUSD")
	require.NoError(t, s.Append(context.Background(), &rec))

	got, ok, err := s.ByTraceID(context.Background(), rec.TraceID)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, rec.Decision.Action, got.Decision.Action)
	assert.Equal(t, rec.Decision.Rule, got.Decision.Rule)
	assert.InDelta(t, 0.93, got.Decision.Lots, 1e-9)
	assert.InDelta(t, 82.5, got.Components["trend"], 1e-9)
	require.Len(t, got.Multipliers, 2)
	assert.Equal(t, "signal_confidence", got.Multipliers[0].Name)
	assert.InDelta(t, 1.35, got.Multipliers[0].Value, 1e-9)
	assert.JSONEq(t, string(rec.Snapshot), string(got.Snapshot))
}

func TestByTraceIDMissing(t *testing.T) {
	s := openStore(t)
	_, ok, err := s.ByTraceID(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBySymbolFilters(t *testing.T) {
	s := openStore(t)
	for _, sym := range []string{"XAUUSD", "EURUSD", "XAUUSD"} {
		rec := sampleRecord(sym)
		require.NoError(t, s.Append(context.Background(), &rec))
	}

	gold, err := s.BySymbol(context.Background(), "xauusd", 10)
	require.NoError(t, err)
	assert.Len(t, gold, 2)

	all, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := s.Recent(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
