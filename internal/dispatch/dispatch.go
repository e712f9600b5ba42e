// Package dispatch routes every inbound message through an ordered pipeline
// of stages. Each stage may claim the event, ending the walk; the ordering
// is a contract (a banned sender must never reach session continuation, a
// command prefix must never fall through to the AI).
package dispatch

// #region imports
import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/razzaqinspires/prometheus-wa-bot/internal/command"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/health"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/message"
)

// #endregion

// #region pipeline

// AI is the conversational fallback consulted by the last stage.
type AI interface {
	Respond(ctx context.Context, chat, text string) (reply string, ok bool)
}

// Pipeline walks a message through the eight stages. All collaborators are
// injected; the transport-facing ones are plain funcs so tests can fake
// them without a socket.
type Pipeline struct {
	rt        command.Runtime
	registry  *command.Registry
	cooldowns *command.Cooldowns
	health    *health.Model
	ai        AI
	log       zerolog.Logger

	// observe feeds passive perception (the autonomy affinity model).
	observe func(jid string)
	// deleteMsg revokes a message, for antilink enforcement.
	deleteMsg func(ctx context.Context, chat, sender, id string) error
	// archive re-sends a view-once payload as a normal message.
	archive func(ctx context.Context, m *message.Message) error
	// selfJID returns the bot's own account, for AI trigger detection.
	selfJID func() string
}

// Options bundles the pipeline collaborators.
type Options struct {
	Runtime   command.Runtime
	Registry  *command.Registry
	Cooldowns *command.Cooldowns
	Health    *health.Model
	AI        AI
	Observe   func(jid string)
	DeleteMsg func(ctx context.Context, chat, sender, id string) error
	Archive   func(ctx context.Context, m *message.Message) error
	SelfJID   func() string
	Log       zerolog.Logger
}

// New assembles a pipeline. Nil optional collaborators (Observe, Archive,
// AI) disable their stages.
func New(opts Options) *Pipeline {
	return &Pipeline{
		rt:        opts.Runtime,
		registry:  opts.Registry,
		cooldowns: opts.Cooldowns,
		health:    opts.Health,
		ai:        opts.AI,
		observe:   opts.Observe,
		deleteMsg: opts.DeleteMsg,
		archive:   opts.Archive,
		selfJID:   opts.SelfJID,
		log:       opts.Log.With().Str("component", "dispatch").Logger(),
	}
}

// Handle runs one message through the stages. It never panics out: stage
// failures are logged, counted against the health model, and swallowed.
func (p *Pipeline) Handle(ctx context.Context, msg *message.Message) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Str("chat", msg.Chat).Msg("unexpected failure in message pipeline")
			p.health.Record(health.MetricError, 1)
		}
	}()

	if p.preChecks(msg) {
		return
	}
	p.passivePerception(msg)
	if p.viewOnce(ctx, msg) {
		return
	}
	if p.ownerExec(ctx, msg) {
		return
	}
	if p.sessionReply(ctx, msg) {
		return
	}
	if p.groupModeration(ctx, msg) {
		return
	}
	if p.commandDispatch(ctx, msg) {
		return
	}
	p.aiFallback(ctx, msg)
}

// #endregion

// #region stage-prechecks

// preChecks drops messages from banned senders and muted chats outright.
func (p *Pipeline) preChecks(msg *message.Message) bool {
	if msg.IsBanned {
		return true
	}
	return p.rt.State().IsMuted(msg.Chat)
}

// #endregion

// #region stage-perception

// passivePerception feeds the affinity model. It never claims the event and
// its failures are invisible to the sender.
func (p *Pipeline) passivePerception(msg *message.Message) {
	if p.observe == nil || msg.FromMe {
		return
	}
	p.observe(msg.Sender)
}

// #endregion

// #region stage-viewonce

// viewOnce re-publishes view-once media into the chat when archival is
// enabled there. Download failures are logged and still claim the event.
func (p *Pipeline) viewOnce(ctx context.Context, msg *message.Message) bool {
	if !msg.IsViewOnce || p.archive == nil {
		return false
	}
	if !p.rt.State().ViewOnceEnabled(msg.Chat) {
		return false
	}
	if err := p.archive(ctx, msg); err != nil {
		p.log.Error().Err(err).Str("chat", msg.Chat).Msg("view-once archival failed")
	}
	return true
}

// #endregion

// #region stage-ownerexec

// ownerExec is the owner-only raw shell escape hatch: "$ <cmd>" runs the
// command and replies with its combined output.
func (p *Pipeline) ownerExec(ctx context.Context, msg *message.Message) bool {
	if !msg.IsOwner || !strings.HasPrefix(msg.Text, "$") {
		return false
	}
	shellCmd := strings.TrimSpace(msg.Text[1:])
	if shellCmd == "" {
		return true
	}

	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	out, err := exec.CommandContext(runCtx, "sh", "-c", shellCmd).CombinedOutput()
	if err != nil {
		p.reply(ctx, msg, fmt.Sprintf("[EXEC-ERROR]\n%v\n%s", err, out))
		return true
	}
	p.reply(ctx, msg, fmt.Sprintf("[EXEC-STDOUT]\n%s", out))
	return true
}

// #endregion

// #region stage-session

// sessionReply continues a multi-turn session, but only when the reply
// quotes the session's pending message. Anything else falls through so a
// stray quoted message still works as a command or AI prompt.
func (p *Pipeline) sessionReply(ctx context.Context, msg *message.Message) bool {
	if !msg.IsQuoted {
		return false
	}
	s, ok := p.rt.Sessions().Claim(msg.Sender, msg.QuotedID)
	if !ok {
		return false
	}

	d := p.registry.Resolve(s.Command)
	if d == nil || d.OnReply == nil {
		p.rt.Sessions().Delete(msg.Sender)
		return false
	}
	if err := d.OnReply(command.Context{Ctx: ctx, Msg: msg, Args: msg.Args, Session: s, Runtime: p.rt}); err != nil {
		p.log.Error().Err(err).Str("command", s.Command).Msg("session continuation failed")
		p.health.Record(health.MetricError, 1)
		// the claim stopped the expiry timer; a session left behind here
		// would never expire and would lock the user out of new sessions
		p.rt.Sessions().Delete(msg.Sender)
	}
	return true
}

// #endregion

// #region stage-moderation

// groupModeration enforces antilink: any URL from a non-admin, non-owner
// group member is revoked and called out. Lookup failures fail open.
func (p *Pipeline) groupModeration(ctx context.Context, msg *message.Message) bool {
	if !msg.IsGroup || len(msg.URLs) == 0 {
		return false
	}
	if !p.rt.State().AntilinkEnabled(msg.Chat) {
		return false
	}
	if msg.IsOwner {
		return false
	}
	admin, err := p.rt.IsGroupAdmin(ctx, msg.Chat, msg.Sender)
	if err != nil {
		p.log.Error().Err(err).Str("chat", msg.Chat).Msg("antilink admin lookup failed")
		return false
	}
	if admin {
		return false
	}

	if p.deleteMsg != nil {
		if err := p.deleteMsg(ctx, msg.Chat, msg.Sender, msg.ID); err != nil {
			p.log.Error().Err(err).Str("chat", msg.Chat).Msg("antilink revoke failed")
		}
	}
	p.send(ctx, msg.Chat, fmt.Sprintf("🚨 @%s dilarang mengirim tautan!", msg.BareSender()))
	return true
}

// #endregion

// #region stage-command

// commandDispatch resolves and executes a command. Once a prefix parses the
// event is always claimed, even on misses, guards and errors.
func (p *Pipeline) commandDispatch(ctx context.Context, msg *message.Message) bool {
	if !msg.IsCmd {
		return false
	}

	d := p.registry.Resolve(msg.Command)
	if d == nil {
		if best, ok := p.registry.Suggest(msg.Command, p.rt.Config().SuggestThreshold); ok {
			p.reply(ctx, msg, fmt.Sprintf("Perintah tidak ditemukan. Maksud Anda: `%s%s`?", msg.Prefix, best))
		}
		return true
	}

	if s, ok := p.rt.Sessions().Get(msg.Sender); ok && !d.AllowDuringSession {
		remaining := s.Remaining(time.Now())
		p.reply(ctx, msg, fmt.Sprintf(
			"[SISTEM] Anda sedang dalam sesi aktif (`%s`). Harap selesaikan atau batalkan sesi tersebut terlebih dahulu.\n\n_Sesi ini akan berakhir dalam *%d detik*._",
			s.Command, int(remaining.Seconds()+0.999)))
		return true
	}

	auth, err := command.Authorize(ctx, d, msg, p.rt)
	if err != nil {
		p.log.Error().Err(err).Str("command", d.Name).Msg("permission check failed")
		return true
	}
	if !auth.Authorized {
		if auth.Message != "" {
			p.reply(ctx, msg, auth.Message)
		}
		return true
	}

	cooldown := d.Cooldown
	if cooldown <= 0 {
		cooldown = p.rt.Config().DefaultCooldown
	}
	if !p.cooldowns.Try(d.Name, msg.Sender, cooldown) {
		return true
	}

	if err := p.execute(ctx, d, msg); err != nil {
		p.health.Record(health.MetricError, 1)
		p.log.Error().Err(err).Str("command", d.Name).Msg("command execution failed")
		p.reply(ctx, msg, "Terjadi anomali internal saat menjalankan perintah ini.")
		return true
	}
	p.rt.State().CountCommandHit(d.Name)
	return true
}

// execute isolates a handler panic into an error.
func (p *Pipeline) execute(ctx context.Context, d *command.Descriptor, msg *message.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return d.Execute(command.Context{Ctx: ctx, Msg: msg, Args: msg.Args, Runtime: p.rt})
}

// #endregion

// #region stage-ai

// aiFallback hands conversational messages to the AI manager. It triggers
// in private chats, on replies to the bot, and on mentions; it stays silent
// for AI-banned chats and for non-owners while the bot is in self mode.
func (p *Pipeline) aiFallback(ctx context.Context, msg *message.Message) {
	if p.ai == nil || msg.Text == "" || msg.FromMe {
		return
	}

	self := ""
	if p.selfJID != nil {
		self = p.selfJID()
	}
	selfUser, _, _ := strings.Cut(self, "@")
	selfUser, _, _ = strings.Cut(selfUser, ":")

	replyToBot := msg.IsQuoted && selfUser != "" && strings.HasPrefix(msg.QuotedSender, selfUser)
	mentionsBot := selfUser != "" && strings.Contains(msg.Text, "@"+selfUser)
	if msg.IsGroup && !replyToBot && !mentionsBot {
		return
	}

	if p.rt.State().BotMode() == "self" && !msg.IsOwner {
		return
	}
	if p.rt.State().AIChatBanned(msg.Chat) {
		return
	}

	reply, ok := p.ai.Respond(ctx, msg.Chat, msg.Text)
	if !ok {
		p.health.Record(health.MetricError, 1)
		return
	}
	p.reply(ctx, msg, reply)
}

// #endregion

// #region send-helpers

func (p *Pipeline) reply(ctx context.Context, msg *message.Message, text string) {
	if _, err := p.rt.Reply(ctx, msg, text); err != nil {
		p.log.Error().Err(err).Str("chat", msg.Chat).Msg("reply delivery failed")
	}
}

func (p *Pipeline) send(ctx context.Context, chat, text string) {
	if err := p.rt.Send(ctx, chat, text); err != nil {
		p.log.Error().Err(err).Str("chat", chat).Msg("send failed")
	}
}

// #endregion
