package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
symbols: [xauusd]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":9983", cfg.App.HTTPAddr)
	assert.InDelta(t, 0.05, cfg.Risk.MaxDailyLossPct, 1e-12)
	assert.InDelta(t, 0.20, cfg.Risk.SoftBufferPct, 1e-12)
	assert.InDelta(t, 55.0, cfg.Engine.EntryThreshold, 1e-12)
	assert.InDelta(t, 0.02, cfg.Sizing.BaseRiskPct, 1e-12)
	assert.InDelta(t, 0.30, cfg.Score.TrendWeight, 1e-12)
	assert.InDelta(t, 0.10, cfg.Score.SignalWeight, 1e-12)
	assert.Equal(t, 300, cfg.Schedule.IntervalSeconds)
	assert.Equal(t, []string{"XAUUSD"}, cfg.Symbols)
}

func TestLoadIncludeMergeOuterWins(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
risk:
  max_daily_loss_pct: 0.03
  max_drawdown_pct: 0.08
engine:
  entry_threshold: 60
symbols: [eurusd]
`)
	main := writeFile(t, dir, "main.yaml", `
include:
  - base.yaml
engine:
  entry_threshold: 50
`)
	cfg, err := Load(main)
	require.NoError(t, err)

	// Included values survive where the includer is silent.
	assert.InDelta(t, 0.03, cfg.Risk.MaxDailyLossPct, 1e-12)
	assert.InDelta(t, 0.08, cfg.Risk.MaxDrawdownPct, 1e-12)
	// The including file overrides on conflict.
	assert.InDelta(t, 50.0, cfg.Engine.EntryThreshold, 1e-12)
	assert.Equal(t, []string{"EURUSD"}, cfg.Symbols)
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include: [b.yaml]\n")
	writeFile(t, dir, "b.yaml", "include: [a.yaml]\n")
	_, err := Load(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestLoadExplicitZeroNotDefaulted(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
risk:
  soft_buffer_pct: 0
symbols: [xauusd]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Zero(t, cfg.Risk.SoftBufferPct)
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"no symbols", "app:\n  env: dev\n", "symbols"},
		{"daily above drawdown", "risk:\n  max_daily_loss_pct: 0.2\n  max_drawdown_pct: 0.1\nsymbols: [xauusd]\n", "max_daily_loss_pct"},
		{"bad threshold", "engine:\n  entry_threshold: 140\nsymbols: [xauusd]\n", "entry_threshold"},
		{"ceiling below base", "sizing:\n  base_risk_pct: 0.03\n  ceiling_risk_pct: 0.01\nsymbols: [xauusd]\n", "ceiling_risk_pct"},
		{"negative score weight", "score:\n  trend_weight: -0.1\nsymbols: [xauusd]\n", "trend_weight"},
		{"duplicate symbol", "symbols: [xauusd, XAUUSD]\n", "duplicate"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeFile(t, dir, "config.yaml", tc.body)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
