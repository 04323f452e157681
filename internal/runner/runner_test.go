package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"proppilot/internal/executor"
	"proppilot/internal/exit"
	"proppilot/internal/lifecycle"
	"proppilot/internal/profile"
	"proppilot/internal/recovery"
	"proppilot/internal/risk"
	"proppilot/internal/score"
	"proppilot/internal/signal"
	"proppilot/internal/sizing"
	"proppilot/internal/store/decisionlog"
	"proppilot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const profilesYAML = `
instruments:
  xauusd:
    asset_class: commodity
    min_lot: 0.01
    max_lot: 50
    lot_step: 0.01
    point_value: 100
    risk_budget_usd: 2000
`

const bullishDoc = `{
  "symbol": "XAUUSD",
  "taken": "%TAKEN%",
  "price": 2400.5,
  "atr_pct": 0.8,
  "regime": "trending-up",
  "timeframes": {
    "5m":  {"trend": 0.78, "oscillator": 62},
    "15m": {"trend": 0.80, "oscillator": 58},
    "1h":  {"trend": 0.82, "oscillator": 55},
    "4h":  {"trend": 0.76, "oscillator": 60},
    "1d":  {"trend": 0.85, "oscillator": 57}
  },
  "volume": {"relative_volume": 1.6, "accumulation": true, "imbalance": 0.4},
  "structure": {"range_position": 0.2, "band_position": 0.2, "support_dist_pct": 0.4, "confluence_count": 3},
  "signal": {"direction": "long", "confidence": 85}
}`

type fixture struct {
	runner *Runner
	exec   *executor.Paper
	log    *decisionlog.Store
	snapdir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	profilePath := filepath.Join(dir, "profiles.yaml")
	require.NoError(t, os.WriteFile(profilePath, []byte(profilesYAML), 0o644))
	registry, err := profile.NewRegistry(profilePath)
	require.NoError(t, err)

	snapdir := filepath.Join(dir, "snapshots")
	require.NoError(t, os.MkdirAll(snapdir, 0o755))

	log, err := decisionlog.NewStore(filepath.Join(dir, "decisions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	limits := types.RiskLimits{MaxDailyLoss: 5000, MaxTotalDrawdown: 10000, SoftBufferPct: 0.20}
	scorer := score.NewEngine(score.DefaultWeights())
	rec := recovery.NewEstimator()
	ev := exit.NewEvaluator(rec, 0, 0, 0, 0)
	sizer := sizing.NewSizer(0.02, 0.03)
	engine := lifecycle.NewEngine(risk.NewGuard(limits), scorer, rec, ev, exit.NewScanner(), sizer, lifecycle.Config{})

	exec := executor.NewPaper(100000, nil)
	source := signal.NewFileSource(snapdir, 0)
	runner := New(Config{Symbols: []string{"XAUUSD"}, CycleTimeout: 5 * time.Second},
		engine, scorer, sizer, source, registry, exec, log, nil)

	return &fixture{runner: runner, exec: exec, log: log, snapdir: snapdir}
}

func (f *fixture) writeSnapshot(t *testing.T, doc string) {
	t.Helper()
	body := doc
	body = replaceTaken(body, time.Now().UTC().Format(time.RFC3339))
	require.NoError(t, os.WriteFile(filepath.Join(f.snapdir, "XAUUSD.json"), []byte(body), 0o644))
}

func replaceTaken(doc, ts string) string {
	out := ""
	for i := 0; i < len(doc); i++ {
		if i+7 <= len(doc) && doc[i:i+7] == "%TAKEN%" {
			out += ts
			i += 6
			continue
		}
		out += string(doc[i])
	}
	return out
}

func TestCycleOpensOnStrongSnapshot(t *testing.T) {
	f := newFixture(t)
	f.writeSnapshot(t, bullishDoc)

	f.runner.RunCycle(context.Background())

	pos, ok := f.exec.Position("XAUUSD")
	require.True(t, ok, "expected an opened position")
	assert.Equal(t, types.SideLong, pos.Side)
	assert.Greater(t, pos.Lots, 0.0)
	assert.InDelta(t, 2000.0, pos.RiskBudgetUSD, 1e-9)

	records, err := f.log.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, types.ActionOpen, records[0].Decision.Action)
	assert.Equal(t, "entry_open", records[0].Decision.Rule)
	assert.NotEmpty(t, records[0].TraceID)
	assert.NotEmpty(t, records[0].Components)
	assert.NotEmpty(t, records[0].Multipliers)
	assert.NotEmpty(t, records[0].Snapshot)
}

func TestCycleHoldsAndRecordsOnMissingSnapshot(t *testing.T) {
	f := newFixture(t)

	f.runner.RunCycle(context.Background())

	_, ok := f.exec.Position("XAUUSD")
	assert.False(t, ok)

	records, err := f.log.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, types.ActionHold, records[0].Decision.Action)
	assert.Equal(t, "no_data", records[0].Decision.Rule)
	assert.Zero(t, records[0].Decision.Confidence)
}

func TestCycleSecondRunHoldsOnOpenPosition(t *testing.T) {
	f := newFixture(t)
	f.writeSnapshot(t, bullishDoc)

	f.runner.RunCycle(context.Background())
	pos, ok := f.exec.Position("XAUUSD")
	require.True(t, ok)
	lots := pos.Lots

	// Same supportive snapshot, now with an open position: the winner
	// management rules may scale in but must never flip or close.
	f.runner.RunCycle(context.Background())
	pos, ok = f.exec.Position("XAUUSD")
	require.True(t, ok)
	assert.Equal(t, types.SideLong, pos.Side)
	assert.GreaterOrEqual(t, pos.Lots, lots)

	records, err := f.log.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestCycleUnknownSymbolSkipped(t *testing.T) {
	f := newFixture(t)
	f.runner.cfg.Symbols = []string{"GBPUSD"}

	f.runner.RunCycle(context.Background())

	records, err := f.log.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}
