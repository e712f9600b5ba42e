package ai

// #region imports
import (
	"strings"
	"sync"
	"time"
)

// #endregion

// #region vitality

// Vitality is the bot's simulated internal state: energy, mood, heart rate.
// It colors the AI persona and throttles replies at low energy, but never
// gates connection-control decisions.
type Vitality struct {
	mu        sync.Mutex
	energy    float64 // [0,100]
	heartRate float64 // bpm, drifts back to resting
	ticker    *time.Ticker
	done      chan struct{}
}

const (
	maxEnergy        = 100
	restingHeartRate = 70
	regenPerTick     = 1.5
	heartRateDecay   = 0.9
)

// NewVitality starts at full energy and resting heart rate.
func NewVitality() *Vitality {
	return &Vitality{energy: maxEnergy, heartRate: restingHeartRate, done: make(chan struct{})}
}

// StartMetabolism begins the background regeneration tick.
func (v *Vitality) StartMetabolism(interval time.Duration) {
	v.ticker = time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-v.ticker.C:
				v.regenerate()
			case <-v.done:
				return
			}
		}
	}()
}

// StopMetabolism halts regeneration.
func (v *Vitality) StopMetabolism() {
	if v.ticker != nil {
		v.ticker.Stop()
		close(v.done)
	}
}

func (v *Vitality) regenerate() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.energy = minF(maxEnergy, v.energy+regenPerTick)
	// heart rate drifts toward resting
	v.heartRate = restingHeartRate + (v.heartRate-restingHeartRate)*heartRateDecay
}

// Consume spends energy, floored at zero.
func (v *Vitality) Consume(amount float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.energy = maxF(0, v.energy-amount)
}

// Excite raises the heart rate by the emotional impact of an exchange,
// capped at 180.
func (v *Vitality) Excite(impact float64) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.heartRate = minF(180, v.heartRate+impact*30)
	return v.heartRate
}

// Energy returns the current energy level.
func (v *Vitality) Energy() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.energy
}

// Mood derives a label from energy and heart rate bands.
func (v *Vitality) Mood() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch {
	case v.energy < 10:
		return "Critical"
	case v.energy < 30:
		return "Tired"
	case v.heartRate > 110:
		return "Agitated"
	default:
		return "Stable"
	}
}

// #endregion

// #region impact

var emotionalWeights = map[string]float64{
	"angry": 2, "hate": 2, "furious": 2, "annoyed": 1.5,
	"happy": 1, "love": 1.5, "glad": 1, "joy": 1.5,
	"sad": 1.2, "disappointed": 1.2, "afraid": 1.8, "scared": 1.8,
}

// EmotionalImpact scores text by weighted emotional keywords, in [0,1].
func EmotionalImpact(text string) float64 {
	var score float64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		score += emotionalWeights[strings.Trim(word, ".,!?")]
	}
	return minF(score/5, 1)
}

// #endregion

// #region helpers

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// #endregion
