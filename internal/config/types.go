package config

import "strings"

// Config is the root configuration carrier for proppilot.
type Config struct {
	App      AppConfig      `toml:"app"`
	Risk     RiskConfig     `toml:"risk"`
	Engine   EngineConfig   `toml:"engine"`
	Sizing   SizingConfig   `toml:"sizing"`
	Score    ScoreConfig    `toml:"score"`
	Store    StoreConfig    `toml:"store"`
	Schedule ScheduleConfig `toml:"schedule"`
	Market   MarketConfig   `toml:"market"`
	Signal   SignalConfig   `toml:"signal"`
	Profiles ProfilesConfig `toml:"profiles"`
	Symbols  []string       `toml:"symbols"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// RiskConfig sets the account-level loss limits the guard enforces.
// Percentages are fractions of the initial balance, e.g. 0.05 for 5%.
type RiskConfig struct {
	InitialBalance   float64 `toml:"initial_balance"`
	MaxDailyLossPct  float64 `toml:"max_daily_loss_pct"`
	MaxDrawdownPct   float64 `toml:"max_drawdown_pct"`
	SoftBufferPct    float64 `toml:"soft_buffer_pct"`
	MaxOpenPositions int     `toml:"max_open_positions"`
}

// EngineConfig tunes the lifecycle rule chain.
type EngineConfig struct {
	EntryThreshold     float64 `toml:"entry_threshold"`
	DCAThreshold       float64 `toml:"dca_threshold"`
	ScaleInThreshold   float64 `toml:"scale_in_threshold"`
	MaxPositionLots    float64 `toml:"max_position_lots"`
	GraceMinutes       int     `toml:"new_position_grace_minutes"`
	StaleAgeHours      int     `toml:"stale_age_hours"`
	StaleConfidence    float64 `toml:"stale_confidence"`
	BreakevenBandPct   float64 `toml:"breakeven_band_pct"`
	StopATRMult        float64 `toml:"stop_atr_mult"`
	TargetRiskReward   float64 `toml:"target_risk_reward"`
	CycleTimeoutSecond int     `toml:"cycle_timeout_seconds"`
}

type SizingConfig struct {
	BaseRiskPct    float64 `toml:"base_risk_pct"`
	CeilingRiskPct float64 `toml:"ceiling_risk_pct"`
}

// ScoreConfig sets the composite score component weights. They are
// normalized at engine construction, so they only need to be positive.
type ScoreConfig struct {
	TrendWeight     float64 `toml:"trend_weight"`
	MomentumWeight  float64 `toml:"momentum_weight"`
	VolumeWeight    float64 `toml:"volume_weight"`
	StructureWeight float64 `toml:"structure_weight"`
	SignalWeight    float64 `toml:"signal_weight"`
}

type StoreConfig struct {
	DecisionLogPath string `toml:"decision_log_path"`
	RunStatePath    string `toml:"run_state_path"`
}

type ScheduleConfig struct {
	IntervalSeconds int  `toml:"interval_seconds"`
	OffsetSeconds   int  `toml:"offset_seconds"`
	RunImmediately  bool `toml:"run_immediately"`
}

// SignalConfig points at the feature-feed drop directory. The feed
// writes one JSON snapshot per symbol; stale files are treated as
// missing data.
type SignalConfig struct {
	Dir           string `toml:"dir"`
	MaxAgeSeconds int    `toml:"max_age_seconds"`
}

type ProfilesConfig struct {
	Path string `toml:"path"`
}

type MarketConfig struct {
	ActiveSource string         `toml:"active_source"`
	Sources      []MarketSource `toml:"sources"`
}

type MarketSource struct {
	Name        string      `toml:"name"`
	Enabled     bool        `toml:"enabled"`
	RESTBaseURL string      `toml:"rest_base_url"`
	Proxy       ProxyConfig `toml:"proxy"`
}

type ProxyConfig struct {
	Enabled bool   `toml:"enabled"`
	RESTURL string `toml:"rest_url"`
}

func (p *ProxyConfig) normalize() {
	if p == nil {
		return
	}
	p.RESTURL = strings.TrimSpace(p.RESTURL)
}

// ResolveActiveSource picks the configured mark-price source, falling
// back to the first declared source when the active name matches none.
func (m MarketConfig) ResolveActiveSource() MarketSource {
	if len(m.Sources) == 0 {
		return MarketSource{
			Name:        defaultMarketName,
			Enabled:     true,
			RESTBaseURL: defaultMarketREST,
		}
	}
	active := strings.ToLower(strings.TrimSpace(m.ActiveSource))
	var fallback MarketSource
	for _, src := range m.Sources {
		if fallback.Name == "" {
			fallback = src
		}
		if !src.Enabled {
			continue
		}
		if active == "" || strings.ToLower(src.Name) == active {
			return src
		}
	}
	return fallback
}

// keySet tracks which field paths the user set explicitly, so defaults
// never clobber an intentional zero.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes the defaulting rule for a single field.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
