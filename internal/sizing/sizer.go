// Package sizing converts a risk budget into a broker-legal lot size.
// All lot arithmetic goes through shopspring/decimal: lot steps like 0.01
// do not round-trip through float64 cleanly.
package sizing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"proppilot/internal/types"
)

// Result is one sizing outcome. Invalid results carry zero lots and a
// reason instead of an error: a sizing failure must never abort the
// evaluation cycle.
type Result struct {
	Lots           float64  `json:"lots"`
	RiskUSD        float64  `json:"risk_usd"`
	RiskPctActual  float64  `json:"risk_pct_actual"`
	Valid          bool     `json:"valid"`
	Reason         string   `json:"reason,omitempty"`
	Multipliers    []Factor `json:"multipliers,omitempty"`
	RiskPctApplied float64  `json:"risk_pct_applied"`
}

func invalid(reason string) Result {
	return Result{Reason: reason}
}

// Sizer sizes orders against broker constraints.
type Sizer struct {
	baseRiskPct float64
	ceilingPct  float64
}

// NewSizer builds a sizer with a baseline risk percentage (e.g. 0.02 for
// 2%) and a hard per-trade ceiling the multiplier chain can never exceed.
func NewSizer(baseRiskPct, ceilingPct float64) *Sizer {
	if baseRiskPct <= 0 {
		baseRiskPct = 0.02
	}
	if ceilingPct <= 0 {
		ceilingPct = 0.03
	}
	return &Sizer{baseRiskPct: baseRiskPct, ceilingPct: ceilingPct}
}

// BaseRiskPct exposes the configured baseline.
func (s *Sizer) BaseRiskPct() float64 { return s.baseRiskPct }

// Size converts riskPct of equity into lots for the given entry/stop pair,
// clamped to the broker's lot bounds and rounded down to the lot step.
func (s *Sizer) Size(account types.AccountSnapshot, entry, stop, riskPct float64, spec types.BrokerSpec) Result {
	if !spec.Valid() {
		return invalid("broker spec invalid")
	}
	if entry <= 0 || stop <= 0 {
		return invalid("entry/stop must be positive")
	}
	if entry == stop {
		return invalid("zero stop distance")
	}
	if riskPct <= 0 {
		return invalid("non-positive risk percent")
	}
	if account.Equity <= 0 {
		return invalid("non-positive equity")
	}

	riskUSD := account.Equity * riskPct
	stopDist := entry - stop
	if stopDist < 0 {
		stopDist = -stopDist
	}
	riskPerLot := stopDist * spec.PointValue
	if riskPerLot <= 0 {
		return invalid("non-positive risk per lot")
	}

	lots := RoundToStep(riskUSD/riskPerLot, spec.LotStep)
	if lots > spec.MaxLot {
		lots = RoundToStep(spec.MaxLot, spec.LotStep)
	}
	if lots < spec.MinLot {
		// Below the minimum tradable size the choice is between oversizing
		// and standing aside; prop limits make oversizing the wrong call
		// only when the min lot itself would blow the ceiling.
		minRisk := spec.MinLot * riskPerLot
		if minRisk > account.Equity*s.ceilingPct {
			return invalid(fmt.Sprintf("min lot %.2f risks %.2f, over ceiling", spec.MinLot, minRisk))
		}
		lots = spec.MinLot
	}

	actualRisk := lots * riskPerLot
	return Result{
		Lots:           lots,
		RiskUSD:        actualRisk,
		RiskPctActual:  actualRisk / account.Equity,
		RiskPctApplied: riskPct,
		Valid:          true,
	}
}

// SizeWithFactors runs the multiplier chain over the baseline risk percent,
// clamps the product to the ceiling, then sizes. The applied factors ride
// along in the result for audit logging.
func (s *Sizer) SizeWithFactors(account types.AccountSnapshot, entry, stop float64, spec types.BrokerSpec, inputs FactorInputs) Result {
	riskPct, factors := s.adjustedRiskPct(inputs)
	res := s.Size(account, entry, stop, riskPct, spec)
	res.Multipliers = factors
	return res
}

// RoundToStep rounds lots down to an integer multiple of step using decimal
// arithmetic. Always down, never nearest: the quantized size must stay
// within the risk budget that produced it.
func RoundToStep(lots, step float64) float64 {
	if step <= 0 || lots <= 0 {
		return 0
	}
	l := decimal.NewFromFloat(lots)
	st := decimal.NewFromFloat(step)
	steps := l.Div(st).Floor()
	out, _ := steps.Mul(st).Float64()
	return out
}
