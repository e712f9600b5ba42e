package ai

// #region imports
import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/razzaqinspires/prometheus-wa-bot/internal/store"
)

// #endregion

// #region manager

const (
	historyCap     = 10
	replyEnergy    = 2.5
	lowEnergyFloor = 5
)

// Manager drives conversational AI replies: it keeps a bounded per-chat
// history, consults the reply cache, and walks the provider chain.
type Manager struct {
	chain    *Chain
	vitality *Vitality
	store    *store.Store
	log      zerolog.Logger
	botName  string

	mu      sync.Mutex
	history map[string][]Turn
	day     string // history is cleared when the calendar day changes
	now     func() time.Time
}

// NewManager wires the chain, vitality simulation and persistent store.
func NewManager(chain *Chain, v *Vitality, st *store.Store, botName string, log zerolog.Logger) *Manager {
	return &Manager{
		chain:    chain,
		vitality: v,
		store:    st,
		log:      log.With().Str("component", "ai").Logger(),
		botName:  botName,
		history:  make(map[string][]Turn),
		now:      time.Now,
	}
}

// Vitality exposes the simulated internal state for status commands.
func (m *Manager) Vitality() *Vitality { return m.vitality }

// Respond produces an AI reply for text in chat. It returns ok=false when
// the manager declines to answer (low energy uses a fallback line, which is
// still returned with ok=true).
func (m *Manager) Respond(ctx context.Context, chat, text string) (string, bool) {
	if m.vitality.Energy() < lowEnergyFloor {
		return "Aku butuh istirahat sebentar... energiku hampir habis. 😴", true
	}

	norm := normalizePrompt(text)
	if reply, ok := m.store.CachedReply(norm); ok {
		m.log.Debug().Str("chat", chat).Msg("reply served from cache")
		return reply, true
	}

	turns := m.buildTurns(chat, text)
	reply, providerID, err := m.chain.Query(ctx, turns)
	if err != nil {
		m.log.Warn().Err(err).Str("chat", chat).Msg("all AI providers failed")
		return "", false
	}

	m.vitality.Consume(replyEnergy)
	m.vitality.Excite(EmotionalImpact(text))
	m.remember(chat, text, reply)
	m.store.CacheReply(norm, reply)
	m.store.CountAIResponse()
	m.log.Debug().Str("chat", chat).Str("provider", providerID).Msg("AI reply generated")
	return reply, true
}

// buildTurns assembles system prompt + bounded history + the new user turn.
func (m *Manager) buildTurns(chat, text string) []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rotateDayLocked()

	turns := make([]Turn, 0, historyCap+2)
	turns = append(turns, Turn{Role: "system", Content: m.systemPrompt()})
	turns = append(turns, m.history[chat]...)
	turns = append(turns, Turn{Role: "user", Content: text})
	return turns
}

func (m *Manager) systemPrompt() string {
	return fmt.Sprintf(
		"Kamu adalah %s, asisten WhatsApp dengan kepribadian hangat dan sedikit jenaka. "+
			"Status internalmu saat ini: energi %.0f/100, suasana hati %s. "+
			"Jawab ringkas dalam bahasa pengguna.",
		m.botName, m.vitality.Energy(), m.vitality.Mood())
}

func (m *Manager) remember(chat, userText, reply string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rotateDayLocked()

	h := append(m.history[chat],
		Turn{Role: "user", Content: userText},
		Turn{Role: "assistant", Content: reply})
	if len(h) > historyCap {
		h = h[len(h)-historyCap:]
	}
	m.history[chat] = h
}

// rotateDayLocked clears all histories on the first touch of a new day.
func (m *Manager) rotateDayLocked() {
	today := m.now().Format("2006-01-02")
	if m.day != today {
		m.day = today
		m.history = make(map[string][]Turn)
	}
}

func normalizePrompt(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// #endregion
