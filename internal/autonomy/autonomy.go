// Package autonomy plans unsolicited outreach from a per-contact affinity
// model. It observes conversations passively, decays affinity over time, and
// on each cycle sends one knowledge nugget to the contact whose utility score
// clears the threshold. It is advisory only: connection control never depends
// on it, and the supervisor suspends it whenever connectivity degrades.
package autonomy

// #region imports
import (
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/razzaqinspires/prometheus-wa-bot/internal/health"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/store"
)

// #endregion

// #region engine

const (
	decayFactor      = 0.005
	learningRate     = 0.1
	utilityThreshold = 3.0
	instabilityCeil  = 0.5
)

var knowledgeDB = []string{
	"Fakta menarik: Madu tidak akan pernah basi.",
	"Sebuah pemikiran: Apakah kebebasan sejati adalah kebebasan dari keinginan itu sendiri?",
	"Kutipan hari ini: 'Satu-satunya kebijaksanaan sejati adalah mengetahui bahwa Anda tidak tahu apa-apa.' - Socrates",
	"Saya baru saja memproses data tentang fraktal. Alam semesta tampaknya mengulangi polanya dalam skala yang tak terbatas.",
	"Pertanyaan untuk direnungkan: Jika Anda bisa menulis satu hukum baru yang harus dipatuhi semua orang, apakah itu?",
}

// Sender delivers an initiative message out of band of any inbound event.
type Sender func(ctx context.Context, jid, text string) error

// VectorSource reports the current connection-health vector.
type VectorSource func() health.Vector

// SelfSource reports the bot's own account JID. It is consulted on every
// planning pass because the JID is unknown until login completes.
type SelfSource func() string

// Engine is the social-cognition loop. Start and Stop are idempotent and
// safe to call from the supervisor's health tick.
type Engine struct {
	store  *store.Store
	send   Sender
	vector VectorSource
	self   SelfSource
	log    zerolog.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	now     func() time.Time
}

// New builds an engine over the persisted contact matrix. self excludes the
// bot's own account from initiative targeting.
func New(st *store.Store, send Sender, vector VectorSource, self SelfSource, log zerolog.Logger) *Engine {
	if self == nil {
		self = func() string { return "" }
	}
	return &Engine{
		store:  st,
		send:   send,
		vector: vector,
		self:   self,
		log:    log.With().Str("component", "autonomy").Logger(),
		now:    time.Now,
	}
}

// Start launches the periodic cycle. No-op when already running.
func (e *Engine) Start(interval time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.stop = make(chan struct{})
	e.log.Info().Msg("social cognition engine activated")

	go func(stop chan struct{}) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.Cycle(context.Background())
			case <-stop:
				return
			}
		}
	}(e.stop)
}

// Stop halts the cycle. No-op when already stopped.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.running = false
	close(e.stop)
	e.log.Info().Msg("social cognition engine deactivated")
}

// Running reports whether the cycle is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// #endregion

// #region cycle

// Cycle runs one decay + plan + execute pass. Exported so tests and the
// operator console can drive it without waiting for the ticker.
func (e *Engine) Cycle(ctx context.Context) {
	e.decay()
	jid, utility, ok := e.plan()
	if !ok {
		e.log.Trace().Msg("no initiative cleared the utility threshold")
		return
	}

	content := knowledgeDB[rand.Intn(len(knowledgeDB))]
	e.log.Warn().Str("target", jid).Float64("utility", utility).Msg("strategic initiative selected")
	if err := e.send(ctx, jid, content); err != nil {
		e.log.Error().Err(err).Str("target", jid).Msg("initiative delivery failed")
		e.applyOutcome(jid, -1.0, false)
		return
	}
	e.applyOutcome(jid, 0.5, true)
	e.markInitiative(jid)
}

func (e *Engine) decay() {
	e.store.EachRelationship(func(jid string, r store.Relationship) store.Relationship {
		r.Affinity = math.Max(0, r.Affinity*(1-decayFactor))
		return r
	})
}

// plan scores every known contact and returns the best target, if any
// clears the threshold. High system instability vetoes all initiatives.
func (e *Engine) plan() (jid string, utility float64, ok bool) {
	v := e.vector()
	instability := math.Sqrt(
		math.Pow(1-v.C, 2) + math.Pow(1-v.P, 2) + math.Pow(1-v.I, 2))
	if instability > instabilityCeil {
		e.log.Warn().Float64("instability", instability).Msg("initiative deferred, system too unstable")
		return "", 0, false
	}

	now := e.now()
	selfUser, _, _ := strings.Cut(e.self(), "@")
	best := -1.0
	e.store.EachRelationship(func(candidate string, r store.Relationship) store.Relationship {
		user, _, _ := strings.Cut(candidate, "@")
		if selfUser != "" && user == selfUser {
			return r
		}
		sinceDays := now.Sub(r.LastInteraction).Hours() / 24
		u := 1/(instability+0.1) + (1-r.Affinity)*2 + sinceDays
		if u > best {
			best = u
			jid = candidate
		}
		return r
	})

	if best > utilityThreshold {
		return jid, best, true
	}
	return "", 0, false
}

// #endregion

// #region feedback

// Observe records a passive interaction with jid, nudging affinity up.
func (e *Engine) Observe(jid string) {
	e.store.TouchRelationship(jid, e.now(), learningRate)
}

// RegisterFeedback strengthens affinity after a positive reply to an
// initiative.
func (e *Engine) RegisterFeedback(jid string) {
	e.log.Info().Str("jid", jid).Msg("positive feedback received, reinforcing affinity")
	e.applyOutcome(jid, 1.0, true)
}

func (e *Engine) applyOutcome(jid string, impact float64, success bool) {
	relevance := 0.0
	if success {
		relevance = 1
	}
	r, _ := e.store.Relationship(jid)
	r.Affinity = math.Max(0, math.Min(1, r.Affinity+learningRate*impact*relevance))
	r.LastInteraction = e.now()
	e.store.PutRelationship(jid, r)
	e.log.Debug().Str("jid", jid).Float64("affinity", r.Affinity).Msg("relationship model updated")
}

func (e *Engine) markInitiative(jid string) {
	r, _ := e.store.Relationship(jid)
	r.LastInitiative = e.now()
	e.store.PutRelationship(jid, r)
}

// #endregion
