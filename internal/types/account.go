package types

import "time"

// RiskLimits carries the prop-firm capital-preservation limits the account
// trades under. SoftBufferPct is the fraction of each limit treated as the
// proximity buffer (0.20 means "conservative inside the last 20%").
type RiskLimits struct {
	MaxDailyLoss     float64 `json:"max_daily_loss"`
	MaxTotalDrawdown float64 `json:"max_total_drawdown"`
	SoftBufferPct    float64 `json:"soft_buffer_pct"`
}

// AccountSnapshot is the broker-reported account state at the start of an
// evaluation cycle. The decision engine never mutates it; fills are applied
// by the execution layer.
type AccountSnapshot struct {
	Equity          float64   `json:"equity"`
	Balance         float64   `json:"balance"`
	DailyStart      float64   `json:"daily_start"`
	PeakBalance     float64   `json:"peak_balance"`
	RealizedDailyPn float64   `json:"realized_daily_pnl"`
	OpenPositions   int       `json:"open_positions"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DailyLoss is how far equity sits below the daily starting balance.
func (a AccountSnapshot) DailyLoss() float64 {
	loss := a.DailyStart - a.Equity
	if loss < 0 {
		return 0
	}
	return loss
}

// TotalDrawdown is how far equity sits below the account's all-time peak.
func (a AccountSnapshot) TotalDrawdown() float64 {
	dd := a.PeakBalance - a.Equity
	if dd < 0 {
		return 0
	}
	return dd
}

// DistanceToDailyLimit returns the remaining room before the daily loss
// limit is breached. Never negative.
func (a AccountSnapshot) DistanceToDailyLimit(limits RiskLimits) float64 {
	dist := limits.MaxDailyLoss - a.DailyLoss()
	if dist < 0 {
		return 0
	}
	return dist
}

// DistanceToDrawdownLimit returns the remaining room before the total
// drawdown limit is breached. Never negative.
func (a AccountSnapshot) DistanceToDrawdownLimit(limits RiskLimits) float64 {
	dist := limits.MaxTotalDrawdown - a.TotalDrawdown()
	if dist < 0 {
		return 0
	}
	return dist
}
