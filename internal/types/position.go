package types

import "time"

// Side is the direction of a position or signal.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
	SideFlat  Side = "flat"
)

// Opposite flips long/short and leaves flat alone.
func (s Side) Opposite() Side {
	switch s {
	case SideLong:
		return SideShort
	case SideShort:
		return SideLong
	default:
		return SideFlat
	}
}

// PositionSnapshot describes one open position on one symbol. At most one
// position per symbol exists; the execution layer owns every mutation
// (fills, DCA counter, peak-profit watermark) and the decision engine only
// reads the record it is handed.
type PositionSnapshot struct {
	Symbol        string    `json:"symbol"`
	Side          Side      `json:"side"`
	Lots          float64   `json:"lots"`
	EntryPrice    float64   `json:"entry_price"`
	CurrentPrice  float64   `json:"current_price"`
	DCACount      int       `json:"dca_count"`
	PeakProfitPct float64   `json:"peak_profit_pct"`
	RiskBudgetUSD float64   `json:"risk_budget_usd,omitempty"`
	OpenedAt      time.Time `json:"opened_at"`
}

// ProfitPct returns the signed unrealized P&L as a percentage of entry.
// Positive means the position is winning.
func (p PositionSnapshot) ProfitPct() float64 {
	if p.EntryPrice <= 0 || p.CurrentPrice <= 0 {
		return 0
	}
	move := (p.CurrentPrice - p.EntryPrice) / p.EntryPrice * 100
	if p.Side == SideShort {
		return -move
	}
	return move
}

// ProfitUSD returns unrealized P&L in account currency for a given broker
// point value.
func (p PositionSnapshot) ProfitUSD(pointValue float64) float64 {
	if p.EntryPrice <= 0 || p.CurrentPrice <= 0 || pointValue <= 0 {
		return 0
	}
	move := p.CurrentPrice - p.EntryPrice
	if p.Side == SideShort {
		move = -move
	}
	return move * pointValue * p.Lots
}

// HoldingDuration is how long the position has been open relative to now.
func (p PositionSnapshot) HoldingDuration(now time.Time) time.Duration {
	if p.OpenedAt.IsZero() || now.Before(p.OpenedAt) {
		return 0
	}
	return now.Sub(p.OpenedAt)
}

// Losing reports whether the position marks below its entry.
func (p PositionSnapshot) Losing() bool { return p.ProfitPct() < 0 }

// Winning reports whether the position carries a positive unrealized P&L.
func (p PositionSnapshot) Winning() bool { return p.ProfitPct() > 0 }
