package main

// #region imports
import (
	"context"
	"time"

	"github.com/razzaqinspires/prometheus-wa-bot/internal/config"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/health"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/message"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/session"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/store"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/supervisor"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/transport"
)

// #endregion

// #region app

// app binds the transport, stores and supervisor into the runtime surface
// command handlers and the dispatch pipeline operate against.
type app struct {
	tr       transport.Transport
	sessions *session.Registry
	state    *store.Store
	cfg      config.Config
	model    *health.Model
	sup      *supervisor.Supervisor
}

// Reply quotes the triggering message. The round trip feeds the latency
// component of the health vector.
func (a *app) Reply(ctx context.Context, msg *message.Message, text string) (string, error) {
	start := time.Now()
	id, err := a.tr.Reply(ctx, msg, text)
	if err == nil {
		a.model.Record(health.MetricLatency, float64(time.Since(start).Milliseconds()))
	}
	return id, err
}

func (a *app) Send(ctx context.Context, chat, text string) error {
	_, err := a.tr.SendText(ctx, chat, text)
	return err
}

func (a *app) Sessions() *session.Registry { return a.sessions }
func (a *app) State() *store.Store         { return a.state }
func (a *app) Config() config.Config       { return a.cfg }

func (a *app) IsGroupAdmin(ctx context.Context, chat, user string) (bool, error) {
	admins, err := a.tr.GroupAdmins(ctx, chat)
	if err != nil {
		return false, err
	}
	bare := transport.BareJID(user)
	for _, admin := range admins {
		if transport.BareJID(admin) == bare {
			return true, nil
		}
	}
	return false, nil
}

// RequestRestart and RequestShutdown run asynchronously so a command handler
// never blocks the event goroutine on the supervisor's operation queue.
func (a *app) RequestRestart() { go a.sup.SoftRestart() }

func (a *app) RequestShutdown(fatal bool) { go a.sup.Shutdown(fatal) }

func (a *app) Status() string { return a.sup.Status() }

// #endregion
