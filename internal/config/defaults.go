package config

import (
	"fmt"
	"strings"
)

const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":9983"
	defaultAppLogPath  = "data/logs/proppilot.log"

	defaultRiskInitialBalance = 100000
	defaultRiskDailyLossPct   = 0.05
	defaultRiskDrawdownPct    = 0.10
	defaultRiskSoftBufferPct  = 0.20
	defaultRiskMaxOpen        = 3

	defaultEntryThreshold   = 55
	defaultDCAThreshold     = 65
	defaultScaleInThreshold = 70
	defaultMaxPositionLots  = 10
	defaultGraceMinutes     = 15
	defaultStaleAgeHours    = 8
	defaultStaleConfidence  = 40
	defaultBreakevenBandPct = 0.3
	defaultStopATRMult      = 1.5
	defaultTargetRiskReward = 2.0
	defaultCycleTimeoutSecs = 20

	defaultBaseRiskPct    = 0.02
	defaultCeilingRiskPct = 0.03

	defaultTrendWeight     = 0.30
	defaultMomentumWeight  = 0.25
	defaultVolumeWeight    = 0.20
	defaultStructureWeight = 0.15
	defaultSignalWeight    = 0.10

	defaultDecisionLogPath = "data/db/decisions.db"
	defaultRunStatePath    = "data/db/runstate.db"

	defaultScheduleInterval = 300
	defaultScheduleOffset   = 10

	defaultSignalDir    = "data/snapshots"
	defaultSignalMaxAge = 900

	defaultProfilesPath = "configs/profiles.yaml"

	defaultMarketName = "binance"
	defaultMarketREST = "https://fapi.binance.com"
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.Sizing.applyDefaults(keys)
	c.Score.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Schedule.applyDefaults(keys)
	c.Signal.applyDefaults(keys)
	c.Profiles.applyDefaults(keys)
	c.Market.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("risk.initial_balance", &r.InitialBalance, defaultRiskInitialBalance),
		floatFieldDefault("risk.max_daily_loss_pct", &r.MaxDailyLossPct, defaultRiskDailyLossPct),
		floatFieldDefault("risk.max_drawdown_pct", &r.MaxDrawdownPct, defaultRiskDrawdownPct),
		floatFieldDefault("risk.soft_buffer_pct", &r.SoftBufferPct, defaultRiskSoftBufferPct),
		intFieldDefault("risk.max_open_positions", &r.MaxOpenPositions, defaultRiskMaxOpen),
	)
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("engine.entry_threshold", &e.EntryThreshold, defaultEntryThreshold),
		floatFieldDefault("engine.dca_threshold", &e.DCAThreshold, defaultDCAThreshold),
		floatFieldDefault("engine.scale_in_threshold", &e.ScaleInThreshold, defaultScaleInThreshold),
		floatFieldDefault("engine.max_position_lots", &e.MaxPositionLots, defaultMaxPositionLots),
		intFieldDefault("engine.new_position_grace_minutes", &e.GraceMinutes, defaultGraceMinutes),
		intFieldDefault("engine.stale_age_hours", &e.StaleAgeHours, defaultStaleAgeHours),
		floatFieldDefault("engine.stale_confidence", &e.StaleConfidence, defaultStaleConfidence),
		floatFieldDefault("engine.breakeven_band_pct", &e.BreakevenBandPct, defaultBreakevenBandPct),
		floatFieldDefault("engine.stop_atr_mult", &e.StopATRMult, defaultStopATRMult),
		floatFieldDefault("engine.target_risk_reward", &e.TargetRiskReward, defaultTargetRiskReward),
		intFieldDefault("engine.cycle_timeout_seconds", &e.CycleTimeoutSecond, defaultCycleTimeoutSecs),
	)
}

func (s *SizingConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("sizing.base_risk_pct", &s.BaseRiskPct, defaultBaseRiskPct),
		floatFieldDefault("sizing.ceiling_risk_pct", &s.CeilingRiskPct, defaultCeilingRiskPct),
	)
}

func (s *ScoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("score.trend_weight", &s.TrendWeight, defaultTrendWeight),
		floatFieldDefault("score.momentum_weight", &s.MomentumWeight, defaultMomentumWeight),
		floatFieldDefault("score.volume_weight", &s.VolumeWeight, defaultVolumeWeight),
		floatFieldDefault("score.structure_weight", &s.StructureWeight, defaultStructureWeight),
		floatFieldDefault("score.signal_weight", &s.SignalWeight, defaultSignalWeight),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.decision_log_path", &s.DecisionLogPath, defaultDecisionLogPath),
		stringFieldDefault("store.run_state_path", &s.RunStatePath, defaultRunStatePath),
	)
}

func (s *ScheduleConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("schedule.interval_seconds", &s.IntervalSeconds, defaultScheduleInterval),
		intFieldDefault("schedule.offset_seconds", &s.OffsetSeconds, defaultScheduleOffset),
	)
}

func (s *SignalConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("signal.dir", &s.Dir, defaultSignalDir),
		intFieldDefault("signal.max_age_seconds", &s.MaxAgeSeconds, defaultSignalMaxAge),
	)
}

func (p *ProfilesConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("profiles.path", &p.Path, defaultProfilesPath),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	if len(m.Sources) == 0 {
		m.Sources = []MarketSource{{
			Name:        defaultMarketName,
			Enabled:     true,
			RESTBaseURL: defaultMarketREST,
		}}
	}
	for i := range m.Sources {
		src := &m.Sources[i]
		src.Proxy.normalize()
		if strings.TrimSpace(src.Name) == "" {
			if i == 0 {
				src.Name = defaultMarketName
			} else {
				src.Name = fmt.Sprintf("market_%d", i)
			}
		}
		if src.RESTBaseURL == "" {
			src.RESTBaseURL = defaultMarketREST
		}
	}
	if strings.TrimSpace(m.ActiveSource) == "" {
		m.ActiveSource = firstEnabledMarket(m.Sources)
	}
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target == 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target == 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func firstEnabledMarket(sources []MarketSource) string {
	for _, src := range sources {
		name := strings.TrimSpace(src.Name)
		if src.Enabled && name != "" {
			return name
		}
	}
	if len(sources) > 0 {
		if name := strings.TrimSpace(sources[0].Name); name != "" {
			return name
		}
	}
	return defaultMarketName
}
