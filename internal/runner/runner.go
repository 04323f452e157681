package runner

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"proppilot/internal/executor"
	"proppilot/internal/lifecycle"
	"proppilot/internal/logger"
	"proppilot/internal/profile"
	"proppilot/internal/score"
	"proppilot/internal/signal"
	"proppilot/internal/sizing"
	"proppilot/internal/store/decisionlog"
	"proppilot/internal/types"

	"golang.org/x/sync/errgroup"
)

// Quoter supplies a fallback mark price when the snapshot lacks one.
type Quoter interface {
	MarkPrice(ctx context.Context, symbol string) (float64, error)
}

type Config struct {
	Symbols      []string
	CycleTimeout time.Duration
}

// Runner drives one evaluation cycle per scheduler tick: for every
// configured symbol it fetches the snapshot, marks the book, runs the
// lifecycle engine, applies the decision and records the audit trail.
// Symbols evaluate concurrently; each symbol is strictly serialized
// within itself because the whole cycle for it runs on one goroutine.
type Runner struct {
	cfg      Config
	engine   *lifecycle.Engine
	scorer   *score.Engine
	sizer    *sizing.Sizer
	source   signal.Source
	profiles *profile.Registry
	exec     *executor.Paper
	log      *decisionlog.Store
	quoter   Quoter // optional
	nowFn    func() time.Time
}

func New(cfg Config, engine *lifecycle.Engine, scorer *score.Engine, sizer *sizing.Sizer,
	source signal.Source, profiles *profile.Registry, exec *executor.Paper,
	log *decisionlog.Store, quoter Quoter) *Runner {
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 20 * time.Second
	}
	return &Runner{
		cfg:      cfg,
		engine:   engine,
		scorer:   scorer,
		sizer:    sizer,
		source:   source,
		profiles: profiles,
		exec:     exec,
		log:      log,
		quoter:   quoter,
		nowFn:    time.Now,
	}
}

// RunCycle evaluates all symbols once. Per-symbol failures degrade to a
// logged HOLD and never abort sibling evaluations.
func (r *Runner) RunCycle(ctx context.Context) {
	now := r.nowFn()
	if err := r.exec.RollDay(ctx, now); err != nil {
		logger.Errorf("daily rollover failed: %v", err)
	}
	group, ctx := errgroup.WithContext(ctx)
	for _, symbol := range r.cfg.Symbols {
		symbol := symbol
		group.Go(func() error {
			r.evaluateSymbol(ctx, symbol)
			return nil
		})
	}
	_ = group.Wait()
}

func (r *Runner) evaluateSymbol(parent context.Context, symbol string) {
	ctx, cancel := context.WithTimeout(parent, r.cfg.CycleTimeout)
	defer cancel()

	prof, ok := r.profiles.Profile(symbol)
	if !ok {
		logger.Warnf("%s: no instrument profile, skipping", symbol)
		return
	}
	if !prof.Active() {
		logger.Debugf("%s: instrument disabled", symbol)
		return
	}
	spec := prof.Broker()

	res, err := r.source.Snapshot(ctx, symbol)
	if err != nil {
		r.holdOnDegraded(ctx, symbol, err)
		return
	}
	snap := res.Snapshot

	price := snap.Price
	if price <= 0 && r.quoter != nil {
		if mark, qerr := r.quoter.MarkPrice(ctx, symbol); qerr != nil {
			logger.Warnf("%s: mark price fallback failed: %v", symbol, qerr)
		} else {
			price = mark
			snap.Price = mark
		}
	}
	if price > 0 {
		if err := r.exec.Mark(ctx, symbol, price, spec); err != nil {
			logger.Errorf("%s: marking position failed: %v", symbol, err)
		}
	}

	account := r.exec.Account()
	input := lifecycle.Input{
		Account:  account,
		Snapshot: snap,
		Broker:   spec,
		Factors:  r.factorInputs(account),
		Now:      r.nowFn(),
	}
	if pos, open := r.exec.Position(symbol); open {
		input.Position = &pos
	}

	decision := r.evaluateWithDeadline(ctx, symbol, input)
	rec := r.buildRecord(symbol, decision, input, res.Raw)
	if err := r.log.Append(ctx, &rec); err != nil {
		logger.Errorf("%s: recording decision failed: %v", symbol, err)
	}
	decision.TraceID = rec.TraceID

	logger.Infof("%s: %s (%s) %s", symbol, decision.Action, decision.Rule, decision.Reason)
	if decision.Action == types.ActionHold {
		return
	}
	if price <= 0 {
		logger.Errorf("%s: no mark price, %s not applied", symbol, decision.Action)
		return
	}
	fill := executor.Fill{
		Price:         price,
		Spec:          spec,
		RiskBudgetUSD: prof.RiskBudgetUSD,
		Now:           r.nowFn(),
	}
	if err := r.exec.Apply(ctx, decision, fill); err != nil {
		logger.Errorf("%s: applying %s failed: %v", symbol, decision.Action, err)
	}
}

// evaluateWithDeadline runs the engine under the cycle deadline. A
// stuck evaluation leaves the goroutine behind and the cycle moves on
// with a fail-safe HOLD.
func (r *Runner) evaluateWithDeadline(ctx context.Context, symbol string, input lifecycle.Input) types.Decision {
	done := make(chan types.Decision, 1)
	go func() {
		done <- r.engine.Evaluate(input)
	}()
	select {
	case decision := <-done:
		return decision
	case <-ctx.Done():
		logger.Errorf("%s: evaluation deadline exceeded", symbol)
		out := types.Hold(symbol, "evaluation deadline exceeded", 0)
		out.Rule = "cycle_timeout"
		out.Severity = types.SeverityWarning
		return out
	}
}

// holdOnDegraded records the fail-safe HOLD the engine contract demands
// when input data is missing or stale.
func (r *Runner) holdOnDegraded(ctx context.Context, symbol string, cause error) {
	reason := "snapshot unavailable: " + cause.Error()
	if errors.Is(cause, signal.ErrStale) {
		reason = "snapshot stale: " + cause.Error()
	}
	logger.Warnf("%s: %s", symbol, reason)
	out := types.Hold(symbol, reason, 0)
	out.Rule = "no_data"
	rec := decisionlog.Record{Symbol: symbol, Decision: out}
	if err := r.log.Append(ctx, &rec); err != nil {
		logger.Errorf("%s: recording degraded hold failed: %v", symbol, err)
	}
}

func (r *Runner) factorInputs(account types.AccountSnapshot) sizing.FactorInputs {
	wins, losses := r.exec.Streaks()
	// SignalConfidence is left unset here: only the entry rule knows the
	// chosen side, and confidence must be read against that direction.
	return sizing.FactorInputs{
		WinStreak:     wins,
		LossStreak:    losses,
		OpenPositions: account.OpenPositions,
		DailyPnL:      account.RealizedDailyPn,
	}
}

// buildRecord assembles the audit record: the component scores behind
// the decision and, for entries, the multiplier chain that sized it.
func (r *Runner) buildRecord(symbol string, decision types.Decision, input lifecycle.Input, raw string) decisionlog.Record {
	rec := decisionlog.Record{
		Symbol:   symbol,
		Decision: decision,
		Snapshot: json.RawMessage(raw),
	}
	side := decision.Side
	if side == "" && input.Position != nil {
		side = input.Position.Side
	}
	if side == types.SideLong || side == types.SideShort {
		sc := r.scorer.Score(input.Snapshot, side, input.Broker.AssetClass)
		rec.Components = map[string]float64{
			"trend":     sc.Components.Trend,
			"momentum":  sc.Components.Momentum,
			"volume":    sc.Components.Volume,
			"structure": sc.Components.Structure,
			"signal":    sc.Components.Signal,
		}
	}
	if decision.Action == types.ActionOpen && decision.StopPrice > 0 && input.Snapshot.Price > 0 {
		factors := input.Factors
		if input.Snapshot.HasSignal {
			factors.SignalConfidence = sizing.DirectionalConfidence(input.Snapshot.Signal, decision.Side)
		}
		sized := r.sizer.SizeWithFactors(input.Account, input.Snapshot.Price, decision.StopPrice, input.Broker, factors)
		for _, f := range sized.Multipliers {
			rec.Multipliers = append(rec.Multipliers, decisionlog.Multiplier{
				Name:    f.Name,
				Value:   f.Value,
				Trigger: f.Trigger,
			})
		}
	}
	return rec
}
