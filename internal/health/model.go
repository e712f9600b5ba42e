package health

// #region imports
import (
	"math"
	"sync"
	"time"
)

// #endregion

// #region model-struct

// Model owns the raw health metrics and reduces them to a Vector on demand.
// Writers (supervisor, dispatch pipeline) call Record; readers call Compute.
type Model struct {
	mu sync.Mutex

	disconnects []disconnectEvent
	latencies   []float64 // ring, oldest evicted at maxLatencySamples
	errors      int64

	disconnectDecay float64
	errorDecay      float64
	latencyNormMs   float64

	now func() time.Time
}

// ModelConfig tunes the vector derivation. Zero values select defaults.
type ModelConfig struct {
	DisconnectDecay float64 // exponent per recent disconnect
	ErrorDecay      float64 // exponent per cumulative error
	LatencyNormMs   float64 // latency at which P reaches 0
}

// NewModel creates a health model with the given tuning.
func NewModel(cfg ModelConfig) *Model {
	if cfg.DisconnectDecay <= 0 {
		cfg.DisconnectDecay = 0.25
	}
	if cfg.ErrorDecay <= 0 {
		cfg.ErrorDecay = 0.1
	}
	if cfg.LatencyNormMs <= 0 {
		cfg.LatencyNormMs = 1000
	}
	return &Model{
		disconnectDecay: cfg.DisconnectDecay,
		errorDecay:      cfg.ErrorDecay,
		latencyNormMs:   cfg.LatencyNormMs,
		now:             time.Now,
	}
}

// #endregion

// #region record

// Record appends one metric sample. value is the disconnect reason code for
// MetricDisconnect, the round trip in milliseconds for MetricLatency, and
// ignored for MetricError.
func (m *Model) Record(kind MetricKind, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch kind {
	case MetricDisconnect:
		m.disconnects = append(m.disconnects, disconnectEvent{at: m.now(), reason: int(value)})
	case MetricLatency:
		m.latencies = append(m.latencies, value)
		if len(m.latencies) > maxLatencySamples {
			m.latencies = m.latencies[1:]
		}
	case MetricError:
		m.errors++
	}
}

// #endregion

// #region compute

// Compute derives the current Vector from raw metrics and wall-clock time.
// It always produces a vector; there is no error path. Disconnect events
// older than the lookback window are pruned as a side effect.
func (m *Model) Compute() Vector {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-disconnectWindow)
	kept := m.disconnects[:0]
	for _, d := range m.disconnects {
		if d.at.After(cutoff) {
			kept = append(kept, d)
		}
	}
	m.disconnects = kept

	var avgLatency float64
	if len(m.latencies) > 0 {
		var sum float64
		for _, l := range m.latencies {
			sum += l
		}
		avgLatency = sum / float64(len(m.latencies))
	}

	return Vector{
		C: math.Exp(-m.disconnectDecay * float64(len(m.disconnects))),
		P: math.Max(0, 1-avgLatency/m.latencyNormMs),
		I: math.Exp(-m.errorDecay * float64(m.errors)),
	}
}

// #endregion

// #region snapshot

// Snapshot reports raw metric counts for the operator console.
func (m *Model) Snapshot() (disconnects int, latencySamples int, errors int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.disconnects), len(m.latencies), m.errors
}

// #endregion
