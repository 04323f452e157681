package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"proppilot/internal/logger"
	"proppilot/internal/store/runstate"
	"proppilot/internal/types"

	"github.com/shopspring/decimal"
)

// Fill describes how one decision should be applied: the mark price it
// fills at, the contract spec and the risk budget attached to a fresh
// position.
type Fill struct {
	Price         float64
	Spec          types.BrokerSpec
	RiskBudgetUSD float64
	Now           time.Time
}

// Paper is the simulated execution layer and the sole mutator of
// account and position records. The engine reads the snapshots Paper
// hands out and never writes them back.
type Paper struct {
	mu          sync.Mutex
	account     types.AccountSnapshot
	positions   map[string]types.PositionSnapshot
	pointValues map[string]float64
	store       *runstate.Store
	lastRoll    time.Time

	winStreak  int
	lossStreak int
}

// NewPaper creates a flat paper account. store may be nil for tests.
func NewPaper(initialBalance float64, store *runstate.Store) *Paper {
	acc := types.AccountSnapshot{
		Equity:      initialBalance,
		Balance:     initialBalance,
		DailyStart:  initialBalance,
		PeakBalance: initialBalance,
		UpdatedAt:   time.Now(),
	}
	return &Paper{
		account:     acc,
		positions:   make(map[string]types.PositionSnapshot),
		pointValues: make(map[string]float64),
		store:       store,
	}
}

// Restore reloads account and positions persisted by a previous run.
func (p *Paper) Restore(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if acc, ok, err := p.store.Account(ctx); err != nil {
		return err
	} else if ok {
		p.account = acc
	}
	positions, err := p.store.Positions(ctx)
	if err != nil {
		return err
	}
	if len(positions) > 0 {
		p.positions = positions
		p.account.OpenPositions = len(positions)
	}
	logger.Infof("paper executor restored %d positions, equity %.2f", len(positions), p.account.Equity)
	return nil
}

// Account returns the current account snapshot.
func (p *Paper) Account() types.AccountSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.account
}

// Position returns the open position for symbol, if any.
func (p *Paper) Position(symbol string) (types.PositionSnapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[normalizeSymbol(symbol)]
	return pos, ok
}

// Streaks reports the consecutive win and loss counts over fully
// closed positions.
func (p *Paper) Streaks() (wins, losses int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.winStreak, p.lossStreak
}

// Positions lists all open positions.
func (p *Paper) Positions() []types.PositionSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.PositionSnapshot, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, pos)
	}
	return out
}

// Mark re-marks one position at price, ratcheting the peak-profit
// watermark, and refreshes account equity.
func (p *Paper) Mark(ctx context.Context, symbol string, price float64, spec types.BrokerSpec) error {
	if price <= 0 {
		return fmt.Errorf("mark price must be positive")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	symbol = normalizeSymbol(symbol)
	pos, ok := p.positions[symbol]
	if !ok {
		return nil
	}
	pos.CurrentPrice = price
	if pct := pos.ProfitPct(); pct > pos.PeakProfitPct {
		pos.PeakProfitPct = pct
	}
	p.positions[symbol] = pos
	p.notePointValueLocked(symbol, spec)
	p.refreshEquityLocked()
	return p.persistLocked(ctx, symbol)
}

// RollDay resets the daily ledger when a new UTC day starts.
func (p *Paper) RollDay(ctx context.Context, now time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	day := now.UTC().Truncate(24 * time.Hour)
	if !p.lastRoll.IsZero() && !day.After(p.lastRoll) {
		return nil
	}
	p.lastRoll = day
	p.account.DailyStart = p.account.Equity
	p.account.RealizedDailyPn = 0
	p.account.UpdatedAt = now
	logger.Infof("daily ledger reset: start %.2f", p.account.DailyStart)
	if p.store == nil {
		return nil
	}
	return p.store.SaveAccount(ctx, p.account)
}

// Apply executes one decision against the paper book.
func (p *Paper) Apply(ctx context.Context, dec types.Decision, fill Fill) error {
	if dec.Action == types.ActionHold {
		return nil
	}
	if fill.Price <= 0 {
		return fmt.Errorf("fill price must be positive for %s", dec.Action)
	}
	if fill.Now.IsZero() {
		fill.Now = time.Now()
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	symbol := normalizeSymbol(dec.Symbol)
	switch dec.Action {
	case types.ActionOpen:
		return p.openLocked(ctx, symbol, dec, fill)
	case types.ActionDCA:
		return p.addLocked(ctx, symbol, dec.Lots, fill, true)
	case types.ActionScaleIn:
		return p.addLocked(ctx, symbol, dec.Lots, fill, false)
	case types.ActionScaleOut, types.ActionPartialClose:
		return p.reduceLocked(ctx, symbol, dec, fill)
	case types.ActionClose:
		return p.closeLocked(ctx, symbol, fill)
	default:
		return fmt.Errorf("unknown action: %s", dec.Action)
	}
}

func (p *Paper) openLocked(ctx context.Context, symbol string, dec types.Decision, fill Fill) error {
	if _, exists := p.positions[symbol]; exists {
		return fmt.Errorf("position already open on %s", symbol)
	}
	if dec.Lots <= 0 {
		return fmt.Errorf("open requires positive lots")
	}
	p.positions[symbol] = types.PositionSnapshot{
		Symbol:        symbol,
		Side:          dec.Side,
		Lots:          dec.Lots,
		EntryPrice:    fill.Price,
		CurrentPrice:  fill.Price,
		RiskBudgetUSD: fill.RiskBudgetUSD,
		OpenedAt:      fill.Now,
	}
	p.account.OpenPositions = len(p.positions)
	p.notePointValueLocked(symbol, fill.Spec)
	p.refreshEquityLocked()
	logger.Infof("opened %s %s %.2f lots @ %.5f", symbol, dec.Side, dec.Lots, fill.Price)
	return p.persistLocked(ctx, symbol)
}

func (p *Paper) addLocked(ctx context.Context, symbol string, lots float64, fill Fill, countDCA bool) error {
	pos, ok := p.positions[symbol]
	if !ok {
		return fmt.Errorf("no open position on %s", symbol)
	}
	if lots <= 0 {
		return fmt.Errorf("add requires positive lots")
	}
	pos.EntryPrice = averageEntry(pos.Lots, pos.EntryPrice, lots, fill.Price)
	pos.Lots += lots
	pos.CurrentPrice = fill.Price
	if countDCA {
		pos.DCACount++
	}
	p.positions[symbol] = pos
	p.notePointValueLocked(symbol, fill.Spec)
	p.refreshEquityLocked()
	logger.Infof("added %.2f lots to %s, breakeven now %.5f", lots, symbol, pos.EntryPrice)
	return p.persistLocked(ctx, symbol)
}

func (p *Paper) reduceLocked(ctx context.Context, symbol string, dec types.Decision, fill Fill) error {
	pos, ok := p.positions[symbol]
	if !ok {
		return fmt.Errorf("no open position on %s", symbol)
	}
	chunk := -dec.Lots
	if chunk <= 0 && dec.CloseFraction > 0 {
		chunk = pos.Lots * dec.CloseFraction
	}
	if chunk <= 0 {
		return fmt.Errorf("reduce requires lots or close fraction")
	}
	if chunk >= pos.Lots {
		return p.closeLockedPos(ctx, symbol, pos, fill)
	}
	remaining := pos.Lots - chunk
	// A rump below the broker minimum cannot be closed later on its
	// own, so flatten instead.
	if remaining < fill.Spec.MinLot {
		return p.closeLockedPos(ctx, symbol, pos, fill)
	}
	p.realizeLocked(pos, chunk, fill)
	pos.Lots = remaining
	pos.CurrentPrice = fill.Price
	p.positions[symbol] = pos
	p.notePointValueLocked(symbol, fill.Spec)
	p.refreshEquityLocked()
	return p.persistLocked(ctx, symbol)
}

func (p *Paper) closeLocked(ctx context.Context, symbol string, fill Fill) error {
	pos, ok := p.positions[symbol]
	if !ok {
		return fmt.Errorf("no open position on %s", symbol)
	}
	return p.closeLockedPos(ctx, symbol, pos, fill)
}

func (p *Paper) closeLockedPos(ctx context.Context, symbol string, pos types.PositionSnapshot, fill Fill) error {
	before := p.account.Balance
	p.realizeLocked(pos, pos.Lots, fill)
	switch realized := p.account.Balance - before; {
	case realized > 0:
		p.winStreak++
		p.lossStreak = 0
	case realized < 0:
		p.lossStreak++
		p.winStreak = 0
	}
	delete(p.positions, symbol)
	delete(p.pointValues, symbol)
	p.account.OpenPositions = len(p.positions)
	p.refreshEquityLocked()
	logger.Infof("closed %s %.2f lots @ %.5f", symbol, pos.Lots, fill.Price)
	if p.store != nil {
		if err := p.store.DeletePosition(ctx, symbol); err != nil {
			return err
		}
		return p.store.SaveAccount(ctx, p.account)
	}
	return nil
}

// realizeLocked books the P&L of a closed chunk into the balance.
func (p *Paper) realizeLocked(pos types.PositionSnapshot, lots float64, fill Fill) {
	move := fill.Price - pos.EntryPrice
	if pos.Side == types.SideShort {
		move = -move
	}
	realized := move * fill.Spec.PointValue * lots
	p.account.Balance += realized
	p.account.RealizedDailyPn += realized
	p.account.UpdatedAt = fill.Now
}

// refreshEquityLocked recomputes equity as balance plus open P&L and
// ratchets the peak watermark. Each symbol marks with its own point
// value.
func (p *Paper) refreshEquityLocked() {
	unrealized := 0.0
	for symbol, pos := range p.positions {
		unrealized += pos.ProfitUSD(p.pointValues[symbol])
	}
	p.account.Equity = p.account.Balance + unrealized
	if p.account.Equity > p.account.PeakBalance {
		p.account.PeakBalance = p.account.Equity
	}
}

func (p *Paper) notePointValueLocked(symbol string, spec types.BrokerSpec) {
	if spec.PointValue > 0 {
		p.pointValues[symbol] = spec.PointValue
	}
}

func (p *Paper) persistLocked(ctx context.Context, symbol string) error {
	if p.store == nil {
		return nil
	}
	if pos, ok := p.positions[symbol]; ok {
		if err := p.store.SavePosition(ctx, pos); err != nil {
			return err
		}
	}
	return p.store.SaveAccount(ctx, p.account)
}

// averageEntry computes the blended breakeven of the merged position
// with decimal arithmetic so repeated adds do not drift.
func averageEntry(lots1, price1, lots2, price2 float64) float64 {
	l1 := decimal.NewFromFloat(lots1)
	l2 := decimal.NewFromFloat(lots2)
	total := l1.Add(l2)
	if total.IsZero() {
		return price1
	}
	weighted := decimal.NewFromFloat(price1).Mul(l1).Add(decimal.NewFromFloat(price2).Mul(l2))
	avg, _ := weighted.Div(total).Float64()
	return avg
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
