package supervisor

// #region imports
import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/razzaqinspires/prometheus-wa-bot/internal/audit"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/config"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/health"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/message"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/store"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/transport"
)

// #endregion

// #region fake-transport

type fakeTransport struct {
	mu         sync.Mutex
	connects   int
	ends       int
	connectErr error
	onConn     transport.ConnectionFunc
	onMsg      transport.MessageFunc
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	return nil
}

func (f *fakeTransport) SendText(ctx context.Context, chat, text string) (string, error) {
	return "ID", nil
}
func (f *fakeTransport) Reply(ctx context.Context, msg *message.Message, text string) (string, error) {
	return "ID", nil
}
func (f *fakeTransport) Delete(ctx context.Context, chat, sender, id string) error { return nil }
func (f *fakeTransport) Presence(ctx context.Context, available bool) error        { return nil }
func (f *fakeTransport) GroupAdmins(ctx context.Context, chat string) ([]string, error) {
	return nil, nil
}
func (f *fakeTransport) SelfJID() string                           { return "628111@s.whatsapp.net" }
func (f *fakeTransport) OnConnection(fn transport.ConnectionFunc)  { f.onConn = fn }
func (f *fakeTransport) OnMessage(fn transport.MessageFunc)        { f.onMsg = fn }
func (f *fakeTransport) End() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ends++
}

func (f *fakeTransport) emit(ev transport.ConnectionEvent) { f.onConn(ev) }

func (f *fakeTransport) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

type fakeAutonomy struct {
	mu      sync.Mutex
	running bool
	starts  int
	stops   int
}

func (a *fakeAutonomy) Start(time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = true
	a.starts++
}

func (a *fakeAutonomy) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = false
	a.stops++
}

func (a *fakeAutonomy) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// #endregion

// #region fixtures

type harness struct {
	sup       *Supervisor
	transport *fakeTransport
	autonomy  *fakeAutonomy
	model     *health.Model
	audit     *audit.Log

	mu        sync.Mutex
	exitCodes []int
	reloads   int
	logLevels []string
}

func (h *harness) exited() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.exitCodes...)
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(st.Close)
	aud, err := audit.Open(filepath.Join(dir, "audit.db"))
	if err != nil {
		t.Fatalf("open audit: %v", err)
	}
	t.Cleanup(func() { aud.Close() })

	cfg := config.Default()
	cfg.ReconnectBaseDelay = time.Millisecond
	cfg.HealthTickInterval = time.Hour // ticks driven manually in tests
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{
		transport: &fakeTransport{},
		autonomy:  &fakeAutonomy{},
		model:     health.NewModel(health.ModelConfig{}),
		audit:     aud,
	}
	h.sup = New(Options{
		Config:     cfg,
		Transport:  h.transport,
		Model:      h.model,
		Controller: health.NewController(health.ControllerConfig{Kp: cfg.PID.Kp, Ki: cfg.PID.Ki, Kd: cfg.PID.Kd, MaxIntegral: cfg.MaxIntegral}),
		Beliefs:    health.NewBeliefUpdater(health.DefaultNetworkLikelihood(), health.DefaultPlatformLikelihood()),
		Autonomy:   h.autonomy,
		Store:      st,
		Audit:      aud,
		SetLogLevel: func(level string) {
			h.mu.Lock()
			h.logLevels = append(h.logLevels, level)
			h.mu.Unlock()
		},
		ReloadCommands: func() {
			h.mu.Lock()
			h.reloads++
			h.mu.Unlock()
		},
		Exit: func(code int) {
			h.mu.Lock()
			h.exitCodes = append(h.exitCodes, code)
			h.mu.Unlock()
		},
		Log: zerolog.Nop(),
	})
	return h
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// #endregion

// #region lifecycle-tests

func TestConnectedTransitionsToRunning(t *testing.T) {
	h := newHarness(t, nil)
	h.sup.Start(context.Background())

	h.transport.emit(transport.ConnectionEvent{Connected: true})
	if got := h.sup.OperationalState(); got != StateRunning {
		t.Fatalf("state = %s, want RUNNING", got)
	}
	if !h.autonomy.Running() {
		t.Fatalf("autonomy not resumed on connect")
	}
	if h.sup.reconnectAttempts.Load() != 0 {
		t.Fatalf("attempts not reset")
	}
}

func TestRecoverableCloseSchedulesReconnect(t *testing.T) {
	h := newHarness(t, nil)
	h.sup.Start(context.Background())
	h.transport.emit(transport.ConnectionEvent{Connected: true})

	h.transport.emit(transport.ConnectionEvent{Reason: transport.ReasonConnectionLost})
	if got := h.sup.OperationalState(); got != StateReconnecting && got != StateConnecting {
		t.Fatalf("state = %s after recoverable close", got)
	}
	if h.autonomy.Running() {
		t.Fatalf("autonomy kept running across a disconnect")
	}

	waitFor(t, func() bool { return h.transport.connectCount() >= 2 }, "reconnect attempt")
	disconnects, _, _ := h.model.Snapshot()
	if disconnects != 1 {
		t.Fatalf("disconnect not recorded in health model")
	}
}

func TestLoggedOutEntersFatalStandby(t *testing.T) {
	h := newHarness(t, nil)
	h.sup.Start(context.Background())
	h.transport.emit(transport.ConnectionEvent{Connected: true})

	h.transport.emit(transport.ConnectionEvent{Reason: transport.ReasonLoggedOut})
	if got := h.sup.OperationalState(); got != StateFatalSessionError {
		t.Fatalf("state = %s, want FATAL_SESSION_ERROR", got)
	}

	before := h.transport.connectCount()
	time.Sleep(30 * time.Millisecond)
	if h.transport.connectCount() != before {
		t.Fatalf("reconnect attempted after logged-out")
	}
	if len(h.exited()) != 0 {
		t.Fatalf("process exited; logged-out must stand by for the operator")
	}
}

func TestStreamReplacedIsFatalShutdown(t *testing.T) {
	h := newHarness(t, nil)
	h.sup.Start(context.Background())
	h.transport.emit(transport.ConnectionEvent{Connected: true})

	h.transport.emit(transport.ConnectionEvent{Reason: transport.ReasonConnectionReplaced})
	waitFor(t, func() bool { return len(h.exited()) == 1 }, "fatal exit")
	if h.exited()[0] != 1 {
		t.Fatalf("exit code = %d, want 1", h.exited()[0])
	}
}

func TestLateCloseAfterShutdownKeepsStoppedState(t *testing.T) {
	h := newHarness(t, nil)
	h.sup.Start(context.Background())
	h.transport.emit(transport.ConnectionEvent{Connected: true})

	h.sup.Shutdown(false)
	if got := h.sup.OperationalState(); got != StateStopped {
		t.Fatalf("state after shutdown = %v, want %v", got, StateStopped)
	}

	// the socket teardown can still deliver a straggling close event
	h.transport.emit(transport.ConnectionEvent{Reason: transport.ReasonConnectionReplaced})
	if got := h.sup.OperationalState(); got != StateStopped {
		t.Fatalf("state after late close = %v, want %v", got, StateStopped)
	}
}

func TestReconnectBudgetExhaustionIsFatal(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.MaxReconnectAttempts = 2
	})
	h.transport.connectErr = errors.New("network down")
	h.sup.Start(context.Background())

	waitFor(t, func() bool { return len(h.exited()) == 1 }, "give-up shutdown")
	if h.exited()[0] != 1 {
		t.Fatalf("exit code = %d, want 1", h.exited()[0])
	}
}

// #endregion

// #region soft-restart-tests

func TestSoftRestartReloadsCommandsAndClearsFlag(t *testing.T) {
	h := newHarness(t, nil)
	h.sup.Start(context.Background())
	h.transport.emit(transport.ConnectionEvent{Connected: true})

	h.sup.SoftRestart()

	h.mu.Lock()
	reloads := h.reloads
	h.mu.Unlock()
	if reloads != 1 {
		t.Fatalf("commands reloaded %d times, want 1", reloads)
	}
	if h.sup.softRestarting.Load() {
		t.Fatalf("soft-restart flag not cleared")
	}
	if h.transport.connectCount() < 2 {
		t.Fatalf("soft restart did not reconnect")
	}
}

func TestSoftRestartFlagClearedEvenWhenConnectFails(t *testing.T) {
	h := newHarness(t, nil)
	h.sup.Start(context.Background())
	h.transport.emit(transport.ConnectionEvent{Connected: true})

	h.transport.mu.Lock()
	h.transport.connectErr = errors.New("still down")
	h.transport.mu.Unlock()

	h.sup.SoftRestart()
	if h.sup.softRestarting.Load() {
		t.Fatalf("flag survived a failed restart")
	}
}

func TestCloseDuringSoftRestartIsIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.sup.Start(context.Background())
	h.transport.emit(transport.ConnectionEvent{Connected: true})

	h.sup.softRestarting.Store(true)
	before := h.transport.connectCount()
	h.transport.emit(transport.ConnectionEvent{Reason: transport.ReasonConnectionLost})
	h.sup.softRestarting.Store(false)

	time.Sleep(30 * time.Millisecond)
	if h.transport.connectCount() != before {
		t.Fatalf("expected close during soft restart to be swallowed")
	}
	if disconnects, _, _ := h.model.Snapshot(); disconnects != 0 {
		t.Fatalf("soft-restart close polluted the health model")
	}
}

// #endregion

// #region shutdown-tests

func TestGracefulShutdownPersistsAndExitsZero(t *testing.T) {
	h := newHarness(t, nil)
	h.sup.grace = 10 * time.Millisecond
	h.sup.Start(context.Background())
	h.transport.emit(transport.ConnectionEvent{Connected: true})

	h.sup.Shutdown(false)
	waitFor(t, func() bool { return len(h.exited()) == 1 }, "graceful exit")
	if h.exited()[0] != 0 {
		t.Fatalf("exit code = %d, want 0", h.exited()[0])
	}
	if h.transport.ends == 0 {
		t.Fatalf("transport not closed")
	}

	entries, err := h.audit.Recent(5)
	if err != nil {
		t.Fatalf("read audit: %v", err)
	}
	found := false
	for _, e := range entries {
		if e.Event == "shutdown" {
			found = true
		}
	}
	if !found {
		t.Fatalf("shutdown not audited")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	h.sup.grace = 5 * time.Millisecond
	h.sup.Start(context.Background())

	h.sup.Shutdown(false)
	h.sup.Shutdown(false)
	time.Sleep(30 * time.Millisecond)
	if n := len(h.exited()); n != 1 {
		t.Fatalf("exit called %d times, want 1", n)
	}
}

// #endregion

// #region tick-tests

func TestTickRecoverSuspendsAutonomy(t *testing.T) {
	h := newHarness(t, nil)
	h.sup.Start(context.Background())
	h.transport.emit(transport.ConnectionEvent{Connected: true})

	// degrade the vector enough for a high controller output
	for i := 0; i < 8; i++ {
		h.model.Record(health.MetricDisconnect, transport.ReasonConnectionLost)
	}
	h.model.Record(health.MetricLatency, 950)

	h.sup.tick()
	if h.autonomy.Running() {
		t.Fatalf("autonomy kept running despite corrective action")
	}
}

func TestTickAdaptEscalatesLogLevel(t *testing.T) {
	h := newHarness(t, nil)
	h.sup.Start(context.Background())
	h.transport.emit(transport.ConnectionEvent{Connected: true})

	// moderate degradation lands in the ADAPT band on the first step
	for i := 0; i < 8; i++ {
		h.model.Record(health.MetricError, 1)
	}
	h.model.Record(health.MetricLatency, 100)

	h.sup.tick()
	h.mu.Lock()
	levels := append([]string(nil), h.logLevels...)
	h.mu.Unlock()
	if len(levels) == 0 || levels[0] != "debug" {
		t.Fatalf("ADAPT did not escalate log level, got %v", levels)
	}
}

func TestStatusMentionsStateAndVector(t *testing.T) {
	h := newHarness(t, nil)
	h.sup.Start(context.Background())
	h.transport.emit(transport.ConnectionEvent{Connected: true})

	s := h.sup.Status()
	for _, want := range []string{"RUNNING", "vector", "beliefs"} {
		if !strings.Contains(s, want) {
			t.Fatalf("status %q missing %q", s, want)
		}
	}
}

// #endregion
