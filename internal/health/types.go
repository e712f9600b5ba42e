package health

import "time"

// #region vector

// Vector is the normalized health state: Connectivity, Performance,
// Integrity, each in [0,1]. It is always re-derived from raw metrics,
// never mutated in place.
type Vector struct {
	C float64 `json:"c"`
	P float64 `json:"p"`
	I float64 `json:"i"`
}

// Ideal is the target the controller steers toward.
var Ideal = Vector{C: 1, P: 1, I: 1}

// #endregion

// #region actions

// Action is the corrective action derived from one controller step.
type Action int

const (
	ActionIdle Action = iota
	ActionAdapt
	ActionRecover
	ActionRestart
)

func (a Action) String() string {
	switch a {
	case ActionRestart:
		return "RESTART"
	case ActionRecover:
		return "RECOVER"
	case ActionAdapt:
		return "ADAPT"
	default:
		return "IDLE"
	}
}

// #endregion

// #region metrics

// MetricKind categorizes a raw sample fed into the model.
type MetricKind int

const (
	MetricDisconnect MetricKind = iota
	MetricLatency
	MetricError
)

type disconnectEvent struct {
	at     time.Time
	reason int
}

const (
	// lookback window for disconnect events
	disconnectWindow = time.Hour
	// fixed capacity of the latency ring
	maxLatencySamples = 100
)

// #endregion
