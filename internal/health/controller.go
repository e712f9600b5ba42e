package health

// #region imports
import (
	"math"
	"sync"
)

// #endregion

// #region controller-struct

// Controller is a PID loop over the scalar distance between the current
// vector and the ideal. One Step per health tick; ticks must not overlap
// (the supervisor rearms a single-shot timer after each tick completes).
type Controller struct {
	mu sync.Mutex

	kp, ki, kd  float64
	lastError   float64
	integral    float64
	maxIntegral float64
}

// ControllerConfig carries the gains. Zero MaxIntegral defaults to 50.
type ControllerConfig struct {
	Kp, Ki, Kd  float64
	MaxIntegral float64
}

// NewController creates a controller with the given gains.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.MaxIntegral <= 0 {
		cfg.MaxIntegral = 50
	}
	return &Controller{kp: cfg.Kp, ki: cfg.Ki, kd: cfg.Kd, maxIntegral: cfg.MaxIntegral}
}

// #endregion

// #region step

// action thresholds, checked highest first
const (
	restartThreshold = 1.5
	recoverThreshold = 0.8
	adaptThreshold   = 0.3
	lowErrorReset    = 0.1
)

// Step runs one PID iteration against the given vector and maps the output
// to an Action. The integral is clamped before use (anti-windup) and reset
// when an IDLE decision coincides with a low error, so long healthy periods
// cannot accumulate integral creep.
func (c *Controller) Step(v Vector) Action {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := distance(Ideal, v)

	c.integral = clamp(c.integral+err, -c.maxIntegral, c.maxIntegral)
	output := c.kp*err + c.ki*c.integral + c.kd*(err-c.lastError)
	c.lastError = err

	switch {
	case output > restartThreshold:
		return ActionRestart
	case output > recoverThreshold:
		return ActionRecover
	case output > adaptThreshold:
		return ActionAdapt
	default:
		if c.lastError < lowErrorReset {
			c.integral = 0
		}
		return ActionIdle
	}
}

// Integral exposes the current integral term for tests and diagnostics.
func (c *Controller) Integral() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.integral
}

// #endregion

// #region helpers

func distance(a, b Vector) float64 {
	return math.Sqrt((a.C-b.C)*(a.C-b.C) + (a.P-b.P)*(a.P-b.P) + (a.I-b.I)*(a.I-b.I))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// #endregion
