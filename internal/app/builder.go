package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"proppilot/internal/config"
	"proppilot/internal/executor"
	"proppilot/internal/exit"
	"proppilot/internal/gateway/binance"
	"proppilot/internal/lifecycle"
	"proppilot/internal/logger"
	"proppilot/internal/profile"
	"proppilot/internal/recovery"
	"proppilot/internal/risk"
	"proppilot/internal/runner"
	"proppilot/internal/score"
	"proppilot/internal/signal"
	"proppilot/internal/sizing"
	"proppilot/internal/store/decisionlog"
	"proppilot/internal/store/runstate"
	httpapi "proppilot/internal/transport/http"
	"proppilot/internal/types"
)

// AppBuilder assembles the dependency graph from config. The function
// fields exist so tests and replay harnesses can substitute pieces
// without touching the wiring order.
type AppBuilder struct {
	cfg *config.Config

	profilesFn func(string) (*profile.Registry, error)
	sourceFn   func(config.SignalConfig) signal.Source
	quoterFn   func(config.MarketConfig) (runner.Quoter, error)
	serverFn   func(config.AppConfig, *decisionlog.Store, *executor.Paper) (*httpapi.Server, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		profilesFn: profile.NewRegistry,
		sourceFn:   buildSignalSource,
		quoterFn:   buildQuoter,
		serverFn:   buildStatusServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// WithSignalSource substitutes the snapshot source, for replays.
func WithSignalSource(src signal.Source) AppBuilderOption {
	return func(b *AppBuilder) {
		b.sourceFn = func(config.SignalConfig) signal.Source { return src }
	}
}

// WithQuoter substitutes the mark-price fallback, for replays.
func WithQuoter(q runner.Quoter) AppBuilderOption {
	return func(b *AppBuilder) {
		b.quoterFn = func(config.MarketConfig) (runner.Quoter, error) { return q, nil }
	}
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	profiles, err := b.profilesFn(cfg.Profiles.Path)
	if err != nil {
		return nil, fmt.Errorf("loading instrument profiles failed: %w", err)
	}
	logger.Infof("loaded %d instrument profiles from %s", len(profiles.Snapshot().Profiles), cfg.Profiles.Path)
	logger.Infof("monitoring %d symbols: %s", len(cfg.Symbols), strings.Join(cfg.Symbols, ", "))

	logs, err := decisionlog.NewStore(cfg.Store.DecisionLogPath)
	if err != nil {
		return nil, fmt.Errorf("opening decision log failed: %w", err)
	}
	states, err := runstate.Open(cfg.Store.RunStatePath)
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("opening run state store failed: %w", err)
	}

	exec := executor.NewPaper(cfg.Risk.InitialBalance, states)
	if err := exec.Restore(ctx); err != nil {
		_ = logs.Close()
		_ = states.Close()
		return nil, fmt.Errorf("restoring run state failed: %w", err)
	}
	acc := exec.Account()
	logger.Infof("account restored: balance=%.2f equity=%.2f open=%d",
		acc.Balance, acc.Equity, acc.OpenPositions)

	quoter, err := b.quoterFn(cfg.Market)
	if err != nil {
		_ = logs.Close()
		_ = states.Close()
		return nil, err
	}

	engine := buildLifecycleEngine(cfg)
	run := runner.New(
		runner.Config{
			Symbols:      cfg.Symbols,
			CycleTimeout: secondsToDuration(cfg.Engine.CycleTimeoutSecond),
		},
		engine,
		score.NewEngine(scoreWeights(cfg.Score)),
		sizing.NewSizer(cfg.Sizing.BaseRiskPct, cfg.Sizing.CeilingRiskPct),
		b.sourceFn(cfg.Signal),
		profiles,
		exec,
		logs,
		quoter,
	)

	server, err := b.serverFn(cfg.App, logs, exec)
	if err != nil {
		_ = logs.Close()
		_ = states.Close()
		return nil, err
	}

	return &App{
		cfg:      cfg,
		runner:   run,
		server:   server,
		logs:     logs,
		runstate: states,
		runImmed: cfg.Schedule.RunImmediately,
		interval: cfg.Schedule.IntervalSeconds,
		offset:   cfg.Schedule.OffsetSeconds,
	}, nil
}

func buildLifecycleEngine(cfg *config.Config) *lifecycle.Engine {
	limits := types.RiskLimits{
		MaxDailyLoss:     cfg.Risk.InitialBalance * cfg.Risk.MaxDailyLossPct,
		MaxTotalDrawdown: cfg.Risk.InitialBalance * cfg.Risk.MaxDrawdownPct,
		SoftBufferPct:    cfg.Risk.SoftBufferPct,
	}
	rec := recovery.NewEstimator()
	return lifecycle.NewEngine(
		risk.NewGuard(limits),
		score.NewEngine(scoreWeights(cfg.Score)),
		rec,
		exit.NewEvaluator(rec, 0, 0, 0, 0),
		exit.NewScanner(),
		sizing.NewSizer(cfg.Sizing.BaseRiskPct, cfg.Sizing.CeilingRiskPct),
		lifecycle.Config{
			EntryThreshold:   cfg.Engine.EntryThreshold,
			DCAThreshold:     cfg.Engine.DCAThreshold,
			ScaleInThreshold: cfg.Engine.ScaleInThreshold,
			MaxPositionLots:  cfg.Engine.MaxPositionLots,
			MaxOpenPositions: cfg.Risk.MaxOpenPositions,
			NewPositionGrace: time.Duration(cfg.Engine.GraceMinutes) * time.Minute,
			StaleAge:         time.Duration(cfg.Engine.StaleAgeHours) * time.Hour,
			StaleConfidence:  cfg.Engine.StaleConfidence,
			BreakevenBandPct: cfg.Engine.BreakevenBandPct,
			StopATRMult:      cfg.Engine.StopATRMult,
			TargetRR:         cfg.Engine.TargetRiskReward,
		},
	)
}

func scoreWeights(cfg config.ScoreConfig) score.Weights {
	return score.Weights{
		Trend:     cfg.TrendWeight,
		Momentum:  cfg.MomentumWeight,
		Volume:    cfg.VolumeWeight,
		Structure: cfg.StructureWeight,
		Signal:    cfg.SignalWeight,
	}
}

func buildSignalSource(cfg config.SignalConfig) signal.Source {
	return signal.NewFileSource(cfg.Dir, secondsToDuration(cfg.MaxAgeSeconds))
}

func buildQuoter(cfg config.MarketConfig) (runner.Quoter, error) {
	src := cfg.ResolveActiveSource()
	if !src.Enabled {
		logger.Warnf("mark-price source %q disabled, relying on snapshot prices only", src.Name)
		return nil, nil
	}
	q, err := binance.New(binance.Config{
		RESTBaseURL:  src.RESTBaseURL,
		ProxyEnabled: src.Proxy.Enabled,
		RESTProxyURL: src.Proxy.RESTURL,
	})
	if err != nil {
		return nil, fmt.Errorf("building mark-price quoter failed: %w", err)
	}
	return q, nil
}

func buildStatusServer(appCfg config.AppConfig, logs *decisionlog.Store, exec *executor.Paper) (*httpapi.Server, error) {
	return httpapi.NewServer(httpapi.ServerConfig{
		Addr: appCfg.HTTPAddr,
		Logs: logs,
		Exec: exec,
	})
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
