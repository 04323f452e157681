// Package score aggregates many weak market signals into one composite
// 0..100 score per direction. The composite is the most-reused primitive in
// the decision core: entries, DCA eligibility, scale-ins and exit scoring
// all key off it.
package score

import (
	"fmt"

	"proppilot/internal/types"
)

// Weights are the fixed component weights of the composite. They must sum
// to 1; NewEngine normalizes if they do not.
type Weights struct {
	Trend     float64 `json:"trend"`
	Momentum  float64 `json:"momentum"`
	Volume    float64 `json:"volume"`
	Structure float64 `json:"structure"`
	Signal    float64 `json:"signal"`
}

// DefaultWeights is the production weighting: trend dominates, the external
// model contributes least.
func DefaultWeights() Weights {
	return Weights{Trend: 0.30, Momentum: 0.25, Volume: 0.20, Structure: 0.15, Signal: 0.10}
}

func (w Weights) sum() float64 {
	return w.Trend + w.Momentum + w.Volume + w.Structure + w.Signal
}

// Components holds the per-component 0..100 scores before weighting.
type Components struct {
	Trend     float64 `json:"trend"`
	Momentum  float64 `json:"momentum"`
	Volume    float64 `json:"volume"`
	Structure float64 `json:"structure"`
	Signal    float64 `json:"signal"`
}

// Result is one composite scoring of a snapshot for one direction.
type Result struct {
	Total        float64    `json:"total"` // 0..100
	Components   Components `json:"components"`
	Contributing []string   `json:"contributing_signals"`
}

// neutral is the score a component falls back to when its block of the
// snapshot was not supplied (InsufficientData policy).
const neutral = 50.0

// Engine scores snapshots. Stateless beyond its weights.
type Engine struct {
	weights Weights
}

// NewEngine builds a scoring engine; zero weights fall back to defaults.
func NewEngine(w Weights) *Engine {
	if w.sum() <= 0 {
		w = DefaultWeights()
	} else if s := w.sum(); s != 1 {
		w.Trend /= s
		w.Momentum /= s
		w.Volume /= s
		w.Structure /= s
		w.Signal /= s
	}
	return &Engine{weights: w}
}

// Score computes the composite for one direction. Flat is not a scoreable
// direction and yields a fully neutral result.
func (e *Engine) Score(snap types.MarketSnapshot, side types.Side, class types.AssetClass) Result {
	if side != types.SideLong && side != types.SideShort {
		return Result{
			Total:      neutral,
			Components: Components{neutral, neutral, neutral, neutral, neutral},
		}
	}

	res := Result{}
	res.Components.Trend = e.scoreTrend(&res, snap, side, class)
	res.Components.Momentum = e.scoreMomentum(&res, snap, side)
	res.Components.Volume = e.scoreVolume(&res, snap, side)
	res.Components.Structure = e.scoreStructure(&res, snap, side)
	res.Components.Signal = e.scoreSignal(&res, snap, side)

	res.Total = clamp100(res.Components.Trend*e.weights.Trend +
		res.Components.Momentum*e.weights.Momentum +
		res.Components.Volume*e.weights.Volume +
		res.Components.Structure*e.weights.Structure +
		res.Components.Signal*e.weights.Signal)
	return res
}

func (r *Result) note(format string, args ...any) {
	r.Contributing = append(r.Contributing, fmt.Sprintf(format, args...))
}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
