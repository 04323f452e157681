package types

// Action is the engine's decision verb. Exactly one is emitted per cycle.
type Action string

const (
	ActionHold         Action = "hold"
	ActionOpen         Action = "open"
	ActionDCA          Action = "dca"
	ActionScaleIn      Action = "scale_in"
	ActionScaleOut     Action = "scale_out"
	ActionPartialClose Action = "partial_close"
	ActionClose        Action = "close"
)

// IncreasesRisk reports whether the action grows exposure. The risk guard's
// conservative flag suppresses exactly these.
func (a Action) IncreasesRisk() bool {
	switch a {
	case ActionOpen, ActionDCA, ActionScaleIn:
		return true
	default:
		return false
	}
}

// ReducesRisk reports whether the action shrinks or removes exposure.
func (a Action) ReducesRisk() bool {
	switch a {
	case ActionScaleOut, ActionPartialClose, ActionClose:
		return true
	default:
		return false
	}
}

// Severity tags how urgent a decision's trigger was.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Decision is the engine's sole output: one action per evaluation cycle,
// with the sizing and pricing the broker layer needs to execute it and the
// reasoning the operator needs to audit it.
type Decision struct {
	Symbol     string   `json:"symbol"`
	Action     Action   `json:"action"`
	Side       Side     `json:"side,omitempty"`
	Reason     string   `json:"reason"`
	Confidence float64  `json:"confidence"` // 0..100
	Severity   Severity `json:"severity,omitempty"`
	Rule       string   `json:"rule,omitempty"` // which lifecycle rule fired

	// Sizing payload, populated for open/dca/scale_in (signed for reduces).
	Lots          float64 `json:"lots,omitempty"`
	StopPrice     float64 `json:"stop_price,omitempty"`
	TargetPrice   float64 `json:"target_price,omitempty"`
	CloseFraction float64 `json:"close_fraction,omitempty"` // partial_close / scale_out

	TraceID string `json:"trace_id,omitempty"`
}

// Hold builds the fail-safe decision every degraded path falls back to.
func Hold(symbol, reason string, confidence float64) Decision {
	return Decision{Symbol: symbol, Action: ActionHold, Reason: reason, Confidence: confidence}
}
