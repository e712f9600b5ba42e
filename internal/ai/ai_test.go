package ai

// #region imports
import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/razzaqinspires/prometheus-wa-bot/internal/store"
)

// #endregion

// #region fakes

type fakeProvider struct {
	id    string
	reply string
	err   error
	calls int
}

func (f *fakeProvider) ID() string { return f.id }

func (f *fakeProvider) Query(ctx context.Context, turns []Turn) (string, error) {
	f.calls++
	return f.reply, f.err
}

func newTestManager(t *testing.T, chain *Chain) *Manager {
	t.Helper()
	st, err := store.Open(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(st.Close)
	return NewManager(chain, NewVitality(), st, "Prometheus Prime", zerolog.Nop())
}

// #endregion

// #region chain-tests

func TestChainPrefersFirstHealthyProvider(t *testing.T) {
	first := &fakeProvider{id: "first", reply: "from first"}
	second := &fakeProvider{id: "second", reply: "from second"}
	chain := NewChain(first, second)

	text, id, err := chain.Query(context.Background(), []Turn{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "from first" || id != "first" {
		t.Fatalf("got %q from %q, want first provider", text, id)
	}
	if second.calls != 0 {
		t.Fatalf("second provider was queried %d times", second.calls)
	}
}

func TestChainFallsThroughOnFailure(t *testing.T) {
	first := &fakeProvider{id: "first", err: &ProviderError{Provider: "first", Kind: FailNetwork, Err: errors.New("dial tcp: refused")}}
	second := &fakeProvider{id: "second", reply: "rescued"}
	chain := NewChain(first, second)

	text, id, err := chain.Query(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "rescued" || id != "second" {
		t.Fatalf("got %q from %q, want second provider", text, id)
	}
}

func TestChainTreatsEmptyReplyAsFailure(t *testing.T) {
	first := &fakeProvider{id: "first", reply: ""}
	second := &fakeProvider{id: "second", reply: "non-empty"}
	chain := NewChain(first, second)

	text, _, err := chain.Query(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "non-empty" {
		t.Fatalf("got %q, want fallthrough to second", text)
	}
}

func TestChainReportsAllCauses(t *testing.T) {
	first := &fakeProvider{id: "first", err: &ProviderError{Provider: "first", Kind: FailAuth, Err: errors.New("401")}}
	second := &fakeProvider{id: "second", err: &ProviderError{Provider: "second", Kind: FailQuota, Err: errors.New("429")}}
	chain := NewChain(first, second)

	_, _, err := chain.Query(context.Background(), nil)
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("want ErrAllProvidersFailed, got %v", err)
	}
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("causes not preserved in %v", err)
	}
}

// #endregion

// #region vitality-tests

func TestVitalityConsumeAndRegenerate(t *testing.T) {
	v := NewVitality()
	v.Consume(40)
	if got := v.Energy(); got != 60 {
		t.Fatalf("energy = %v, want 60", got)
	}
	v.Consume(1000)
	if got := v.Energy(); got != 0 {
		t.Fatalf("energy floored = %v, want 0", got)
	}
	v.regenerate()
	if got := v.Energy(); got != regenPerTick {
		t.Fatalf("energy after tick = %v, want %v", got, regenPerTick)
	}
}

func TestVitalityMoodBands(t *testing.T) {
	v := NewVitality()
	if got := v.Mood(); got != "Stable" {
		t.Fatalf("fresh mood = %q, want Stable", got)
	}
	v.Excite(2)
	if got := v.Mood(); got != "Agitated" {
		t.Fatalf("excited mood = %q, want Agitated", got)
	}
	v = NewVitality()
	v.Consume(75)
	if got := v.Mood(); got != "Tired" {
		t.Fatalf("mood at 25 energy = %q, want Tired", got)
	}
	v.Consume(20)
	if got := v.Mood(); got != "Critical" {
		t.Fatalf("mood at 5 energy = %q, want Critical", got)
	}
}

func TestEmotionalImpactScoresKeywords(t *testing.T) {
	if got := EmotionalImpact("please check the logs"); got != 0 {
		t.Fatalf("neutral text scored %v", got)
	}
	calm := EmotionalImpact("I am happy today")
	hot := EmotionalImpact("I am so angry, I hate this!")
	if hot <= calm {
		t.Fatalf("angry text (%v) should outscore happy text (%v)", hot, calm)
	}
	if hot > 1 {
		t.Fatalf("impact %v exceeds cap", hot)
	}
}

// #endregion

// #region manager-tests

func TestManagerUsesReplyCache(t *testing.T) {
	backend := &fakeProvider{id: "backend", reply: "fresh answer"}
	m := newTestManager(t, NewChain(backend))

	reply, ok := m.Respond(context.Background(), "chat@s", "What Is The Plan?")
	if !ok || reply != "fresh answer" {
		t.Fatalf("first reply = %q ok=%v", reply, ok)
	}
	// same prompt modulo case/whitespace must not reach the provider again
	reply, ok = m.Respond(context.Background(), "chat@s", "  what is   the plan?")
	if !ok || reply != "fresh answer" {
		t.Fatalf("cached reply = %q ok=%v", reply, ok)
	}
	if backend.calls != 1 {
		t.Fatalf("provider queried %d times, want 1", backend.calls)
	}
}

func TestManagerLowEnergyFallback(t *testing.T) {
	backend := &fakeProvider{id: "backend", reply: "should not be used"}
	m := newTestManager(t, NewChain(backend))
	m.vitality.Consume(maxEnergy)

	reply, ok := m.Respond(context.Background(), "chat@s", "hello?")
	if !ok || reply == "" {
		t.Fatalf("expected fallback line, got %q ok=%v", reply, ok)
	}
	if backend.calls != 0 {
		t.Fatalf("provider queried at zero energy")
	}
}

func TestManagerDeclinesWhenChainFails(t *testing.T) {
	backend := &fakeProvider{id: "backend", err: &ProviderError{Provider: "backend", Kind: FailNetwork, Err: errors.New("down")}}
	m := newTestManager(t, NewChain(backend))

	if reply, ok := m.Respond(context.Background(), "chat@s", "hi"); ok {
		t.Fatalf("expected decline, got %q", reply)
	}
}

func TestManagerHistoryBoundedAndDayScoped(t *testing.T) {
	backend := &fakeProvider{id: "backend", reply: "ok"}
	m := newTestManager(t, NewChain(backend))

	for i := 0; i < 20; i++ {
		// unique prompts so the cache never short-circuits
		m.Respond(context.Background(), "chat@s", "topic "+time.Now().Add(time.Duration(i)).String())
	}
	m.mu.Lock()
	n := len(m.history["chat@s"])
	m.mu.Unlock()
	if n > historyCap {
		t.Fatalf("history grew to %d turns, cap is %d", n, historyCap)
	}

	// next calendar day clears every chat's history
	m.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	m.Respond(context.Background(), "other@s", "new day")
	m.mu.Lock()
	n = len(m.history["chat@s"])
	m.mu.Unlock()
	if n != 0 {
		t.Fatalf("stale history survived day rotation: %d turns", n)
	}
}

// #endregion
