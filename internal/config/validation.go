package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := c.Sizing.validate(); err != nil {
		return err
	}
	if err := c.Score.validate(); err != nil {
		return err
	}
	if err := c.Schedule.validate(); err != nil {
		return err
	}
	if err := c.validateSymbols(); err != nil {
		return err
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.InitialBalance <= 0 {
		return fmt.Errorf("risk.initial_balance must be > 0")
	}
	if r.MaxDailyLossPct <= 0 || r.MaxDailyLossPct >= 1 {
		return fmt.Errorf("risk.max_daily_loss_pct must be within (0,1)")
	}
	if r.MaxDrawdownPct <= 0 || r.MaxDrawdownPct >= 1 {
		return fmt.Errorf("risk.max_drawdown_pct must be within (0,1)")
	}
	if r.MaxDailyLossPct > r.MaxDrawdownPct {
		return fmt.Errorf("risk.max_daily_loss_pct cannot exceed risk.max_drawdown_pct")
	}
	if r.SoftBufferPct < 0 || r.SoftBufferPct >= 1 {
		return fmt.Errorf("risk.soft_buffer_pct must be within [0,1)")
	}
	if r.MaxOpenPositions <= 0 {
		return fmt.Errorf("risk.max_open_positions must be > 0")
	}
	return nil
}

func (e *EngineConfig) validate() error {
	thresholds := []struct {
		name  string
		value float64
	}{
		{"engine.entry_threshold", e.EntryThreshold},
		{"engine.dca_threshold", e.DCAThreshold},
		{"engine.scale_in_threshold", e.ScaleInThreshold},
		{"engine.stale_confidence", e.StaleConfidence},
	}
	for _, t := range thresholds {
		if t.value < 0 || t.value > 100 {
			return fmt.Errorf("%s must be within [0,100]", t.name)
		}
	}
	if e.MaxPositionLots <= 0 {
		return fmt.Errorf("engine.max_position_lots must be > 0")
	}
	if e.StopATRMult <= 0 {
		return fmt.Errorf("engine.stop_atr_mult must be > 0")
	}
	if e.TargetRiskReward <= 0 {
		return fmt.Errorf("engine.target_risk_reward must be > 0")
	}
	if e.CycleTimeoutSecond <= 0 {
		return fmt.Errorf("engine.cycle_timeout_seconds must be > 0")
	}
	return nil
}

func (s *SizingConfig) validate() error {
	if s.BaseRiskPct <= 0 || s.BaseRiskPct > 0.1 {
		return fmt.Errorf("sizing.base_risk_pct must be within (0,0.1]")
	}
	if s.CeilingRiskPct < s.BaseRiskPct {
		return fmt.Errorf("sizing.ceiling_risk_pct cannot be below sizing.base_risk_pct")
	}
	return nil
}

func (s *ScoreConfig) validate() error {
	weights := []struct {
		name  string
		value float64
	}{
		{"score.trend_weight", s.TrendWeight},
		{"score.momentum_weight", s.MomentumWeight},
		{"score.volume_weight", s.VolumeWeight},
		{"score.structure_weight", s.StructureWeight},
		{"score.signal_weight", s.SignalWeight},
	}
	sum := 0.0
	for _, w := range weights {
		if w.value < 0 {
			return fmt.Errorf("%s cannot be negative", w.name)
		}
		sum += w.value
	}
	if sum <= 0 {
		return fmt.Errorf("score weights must not all be zero")
	}
	return nil
}

func (s *ScheduleConfig) validate() error {
	if s.IntervalSeconds <= 0 {
		return fmt.Errorf("schedule.interval_seconds must be > 0")
	}
	if s.OffsetSeconds < 0 || s.OffsetSeconds >= s.IntervalSeconds {
		return fmt.Errorf("schedule.offset_seconds must be within [0, interval)")
	}
	return nil
}

func (c *Config) validateSymbols() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("symbols requires at least one entry")
	}
	seen := make(map[string]bool, len(c.Symbols))
	for i, sym := range c.Symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			return fmt.Errorf("symbols[%d] is empty", i)
		}
		if seen[sym] {
			return fmt.Errorf("symbols contains duplicate entry: %s", sym)
		}
		seen[sym] = true
		c.Symbols[i] = sym
	}
	return nil
}
