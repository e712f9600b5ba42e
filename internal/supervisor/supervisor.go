// Package supervisor owns the connection lifecycle: it drives the transport,
// reacts to closes with backoff reconnects, runs the homeostasis health tick,
// and serializes soft restarts and shutdowns so they can never interleave.
package supervisor

// #region imports
import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/razzaqinspires/prometheus-wa-bot/internal/audit"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/config"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/health"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/store"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/transport"
)

// #endregion

// #region state

// State is the supervisor's operational state.
type State int32

const (
	StateStopped State = iota
	StateConnecting
	StateRunning
	StateReconnecting
	StateFatalSessionError
	StateSoftRestarting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateRunning:
		return "RUNNING"
	case StateReconnecting:
		return "RECONNECTING"
	case StateFatalSessionError:
		return "FATAL_SESSION_ERROR"
	case StateSoftRestarting:
		return "SOFT_RESTARTING"
	default:
		return "STOPPED"
	}
}

// #endregion

// #region opqueue

// opQueue serializes critical operations in arrival order. A single worker
// drains the queue, so two soft restarts, or a restart and a shutdown, can
// never run concurrently.
type opQueue struct {
	tasks chan func()
}

func newOpQueue() *opQueue {
	q := &opQueue{tasks: make(chan func(), 16)}
	go func() {
		for task := range q.tasks {
			task()
		}
	}()
	return q
}

// Run enqueues task and blocks until it has executed. Never call Run from
// inside a queued task.
func (q *opQueue) Run(task func()) {
	done := make(chan struct{})
	q.tasks <- func() {
		defer close(done)
		task()
	}
	<-done
}

// RunAsync enqueues task without waiting.
func (q *opQueue) RunAsync(task func()) {
	q.tasks <- task
}

// #endregion

// #region supervisor

// Autonomy is the slice of the initiative engine the supervisor controls.
type Autonomy interface {
	Start(interval time.Duration)
	Stop()
	Running() bool
}

// Supervisor coordinates transport, health model and the corrective loop.
type Supervisor struct {
	cfg       config.Config
	transport transport.Transport
	model     *health.Model
	ctrl      *health.Controller
	beliefs   *health.BeliefUpdater
	autonomy  Autonomy
	state     *store.Store
	audit     *audit.Log
	log       zerolog.Logger

	// setLogLevel applies the ADAPT action's diagnostics escalation.
	setLogLevel func(level string)
	// reloadCommands repopulates the command registry during soft restart.
	reloadCommands func()
	// exit terminates the process; injectable for tests.
	exit func(code int)
	// grace is the I/O settle window before a non-fatal exit.
	grace time.Duration

	opState           atomic.Int32
	softRestarting    atomic.Bool
	shuttingDown      atomic.Bool
	reconnectAttempts atomic.Int32

	mu             sync.Mutex
	healthTimer    *time.Timer
	reconnectTimer *time.Timer
	crit           *opQueue
}

// Options bundles the supervisor collaborators.
type Options struct {
	Config         config.Config
	Transport      transport.Transport
	Model          *health.Model
	Controller     *health.Controller
	Beliefs        *health.BeliefUpdater
	Autonomy       Autonomy
	Store          *store.Store
	Audit          *audit.Log
	SetLogLevel    func(level string)
	ReloadCommands func()
	Exit           func(code int)
	Log            zerolog.Logger
}

// New wires a supervisor; Start must be called to begin connecting.
func New(opts Options) *Supervisor {
	s := &Supervisor{
		cfg:            opts.Config,
		transport:      opts.Transport,
		model:          opts.Model,
		ctrl:           opts.Controller,
		beliefs:        opts.Beliefs,
		autonomy:       opts.Autonomy,
		state:          opts.Store,
		audit:          opts.Audit,
		setLogLevel:    opts.SetLogLevel,
		reloadCommands: opts.ReloadCommands,
		exit:           opts.Exit,
		grace:          time.Second,
		log:            opts.Log.With().Str("component", "supervisor").Logger(),
		crit:           newOpQueue(),
	}
	if s.exit == nil {
		s.exit = func(int) {}
	}
	if s.setLogLevel == nil {
		s.setLogLevel = func(string) {}
	}
	if s.reloadCommands == nil {
		s.reloadCommands = func() {}
	}
	return s
}

// OperationalState returns the current state.
func (s *Supervisor) OperationalState() State {
	return State(s.opState.Load())
}

func (s *Supervisor) setState(st State) {
	s.opState.Store(int32(st))
}

// #endregion

// #region start

// Start registers the transport handlers, begins the first connect and arms
// the health tick. The inbound message handler must already be registered
// by the application.
func (s *Supervisor) Start(ctx context.Context) error {
	s.transport.OnConnection(s.handleConnection)
	s.setState(StateConnecting)
	s.appendAudit("connect_attempt", nil)

	if err := s.transport.Connect(ctx); err != nil {
		s.log.Error().Err(err).Msg("initial connect failed")
		s.scheduleReconnect()
	}
	s.armHealthTick()
	return nil
}

func (s *Supervisor) handleConnection(ev transport.ConnectionEvent) {
	if ev.Connected {
		s.setState(StateRunning)
		s.reconnectAttempts.Store(0)
		s.appendAudit("connected", nil)
		s.log.Info().Msg("connection established, state RUNNING")
		if s.autonomy != nil {
			s.autonomy.Start(2 * s.cfg.HealthTickInterval)
		}
		return
	}
	s.handleClose(ev.Reason)
}

// #endregion

// #region close

func (s *Supervisor) handleClose(reason int) {
	// an expected close during soft restart is part of the procedure
	if s.softRestarting.Load() {
		s.log.Info().Msg("old connection closed, continuing soft restart")
		return
	}

	s.model.Record(health.MetricDisconnect, float64(reason))
	beliefs := s.beliefs.Update(reason)
	s.log.Info().
		Float64("network_issue", beliefs.NetworkIssue).
		Float64("platform_issue", beliefs.PlatformIssue).
		Msg("posterior beliefs updated")
	if s.autonomy != nil {
		s.autonomy.Stop()
	}

	if reason == transport.ReasonLoggedOut {
		s.setState(StateFatalSessionError)
		s.stopHealthTick()
		s.appendAudit("logged_out", map[string]any{"fatal": true})
		s.log.Error().Msg("session invalidated: logged out. delete the session directory and restart. standing by for operator input")
		return
	}

	if transport.Recoverable(reason) {
		s.setState(StateReconnecting)
		s.log.Warn().Str("reason", transport.ReasonLabel(reason)).Msg("connection lost, scheduling reconnect")
		s.scheduleReconnect()
		return
	}
	s.log.Error().Str("reason", transport.ReasonLabel(reason)).Msg("connection closed for a non-recoverable reason")
	s.Shutdown(true)
}

func (s *Supervisor) scheduleReconnect() {
	if s.shuttingDown.Load() || s.softRestarting.Load() || s.OperationalState() == StateFatalSessionError {
		s.log.Warn().Msg("reconnect cancelled, current state forbids it")
		return
	}

	s.crit.RunAsync(func() {
		attempt := s.reconnectAttempts.Add(1)
		if int(attempt) > s.cfg.MaxReconnectAttempts {
			s.log.Error().Int32("attempts", attempt).Msg("reconnect budget exhausted, giving up")
			s.shutdownLocked(true)
			return
		}
		delay := time.Duration(float64(s.cfg.ReconnectBaseDelay) * math.Pow(2, float64(attempt)))
		s.log.Warn().Int32("attempt", attempt).Dur("delay", delay).Msg("reconnect scheduled")

		s.mu.Lock()
		s.reconnectTimer = time.AfterFunc(delay, s.reconnect)
		s.mu.Unlock()
	})
}

func (s *Supervisor) reconnect() {
	if s.shuttingDown.Load() || s.OperationalState() == StateFatalSessionError {
		return
	}
	s.setState(StateConnecting)
	s.appendAudit("connect_attempt", map[string]any{"attempt": s.reconnectAttempts.Load()})
	if err := s.transport.Connect(context.Background()); err != nil {
		s.log.Error().Err(err).Msg("reconnect failed")
		s.scheduleReconnect()
	}
}

// #endregion

// #region soft-restart

// SoftRestart tears the socket down and brings it back up with a freshly
// loaded command set, without touching persisted state. Serialized through
// the critical-operation queue.
func (s *Supervisor) SoftRestart() {
	s.crit.Run(func() {
		if s.softRestarting.Load() || s.shuttingDown.Load() {
			return
		}
		s.log.Warn().Msg("starting soft restart")
		s.softRestarting.Store(true)
		s.setState(StateSoftRestarting)
		s.appendAudit("soft_restart", nil)
		defer s.softRestarting.Store(false)

		s.transport.End()
		s.reloadCommands()
		s.setState(StateConnecting)
		if err := s.transport.Connect(context.Background()); err != nil {
			s.log.Error().Err(err).Msg("soft restart reconnect failed")
			return
		}
		s.log.Info().Msg("soft restart completed")
	})
}

// #endregion

// #region shutdown

// Shutdown stops timers, persists state and closes the transport. A fatal
// shutdown exits immediately; a normal one grants a short I/O grace window.
func (s *Supervisor) Shutdown(isFatal bool) {
	s.crit.Run(func() { s.shutdownLocked(isFatal) })
}

// shutdownLocked is the queue-internal body, for callers already inside a
// critical operation.
func (s *Supervisor) shutdownLocked(isFatal bool) {
	if !s.shuttingDown.CompareAndSwap(false, true) {
		return
	}
	ev := s.log.Warn()
	if isFatal {
		ev = s.log.Error()
	}
	ev.Bool("fatal", isFatal).Msg("starting shutdown")
	s.appendAudit("shutdown", map[string]any{"fatal": isFatal})

	s.stopHealthTick()
	s.mu.Lock()
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
	}
	s.mu.Unlock()
	if s.autonomy != nil {
		s.autonomy.Stop()
	}

	s.state.SaveAll()
	s.transport.End()
	s.setState(StateStopped)

	if isFatal {
		s.exit(1)
		return
	}
	time.AfterFunc(s.grace, func() { s.exit(0) })
}

// #endregion

// #region health-tick

// armHealthTick schedules a single-shot timer; the tick rearms it after it
// completes, so a slow tick can never overlap the next one.
func (s *Supervisor) armHealthTick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shuttingDown.Load() {
		return
	}
	s.healthTimer = time.AfterFunc(s.cfg.HealthTickInterval, s.tick)
}

func (s *Supervisor) stopHealthTick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.healthTimer != nil {
		s.healthTimer.Stop()
		s.healthTimer = nil
	}
}

func (s *Supervisor) tick() {
	if s.shuttingDown.Load() || s.OperationalState() == StateFatalSessionError {
		return
	}
	defer s.armHealthTick()

	v := s.model.Compute()
	action := s.ctrl.Step(v)
	s.log.Debug().
		Float64("C", v.C).Float64("P", v.P).Float64("I", v.I).
		Stringer("action", action).
		Msg("homeostasis tick")

	switch action {
	case health.ActionAdapt:
		s.setLogLevel("debug")
		s.appendAudit("corrective_action", map[string]any{"action": "ADAPT"})
	case health.ActionRecover:
		if s.autonomy != nil && s.autonomy.Running() {
			s.autonomy.Stop()
		}
		s.appendAudit("corrective_action", map[string]any{"action": "RECOVER"})
	case health.ActionRestart:
		s.appendAudit("corrective_action", map[string]any{"action": "RESTART"})
		s.SoftRestart()
	}
}

// #endregion

// #region status

// Status renders a one-line health summary for console and diagnostics.
func (s *Supervisor) Status() string {
	v := s.model.Compute()
	b := s.beliefs.Current()
	disconnects, latencies, errs := s.model.Snapshot()
	return fmt.Sprintf(
		"state=%s vector(C=%.3f P=%.3f I=%.3f) beliefs(net=%.2f platform=%.2f) window(disconnects=%d latency_samples=%d errors=%d) attempts=%d",
		s.OperationalState(), v.C, v.P, v.I,
		b.NetworkIssue, b.PlatformIssue,
		disconnects, latencies, errs,
		s.reconnectAttempts.Load())
}

func (s *Supervisor) appendAudit(event string, detail any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Append(event, detail); err != nil {
		s.log.Warn().Err(err).Str("event", event).Msg("audit append failed")
	}
}

// #endregion
