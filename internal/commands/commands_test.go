package commands

// #region imports
import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/razzaqinspires/prometheus-wa-bot/internal/command"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/config"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/message"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/session"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/store"
)

// #endregion

// #region fake-runtime

type fakeRuntime struct {
	sessions  *session.Registry
	state     *store.Store
	cfg       config.Config
	replies   []string
	sends     []string
	restarts  int
	shutdowns int
	nextID    int
}

func (f *fakeRuntime) Reply(ctx context.Context, msg *message.Message, text string) (string, error) {
	f.replies = append(f.replies, text)
	f.nextID++
	return fmt.Sprintf("SENT-%d", f.nextID), nil
}

func (f *fakeRuntime) Send(ctx context.Context, chat, text string) error {
	f.sends = append(f.sends, text)
	return nil
}

func (f *fakeRuntime) Sessions() *session.Registry { return f.sessions }
func (f *fakeRuntime) State() *store.Store         { return f.state }
func (f *fakeRuntime) Config() config.Config       { return f.cfg }

func (f *fakeRuntime) IsGroupAdmin(ctx context.Context, chat, user string) (bool, error) {
	return false, nil
}

func (f *fakeRuntime) RequestRestart()            { f.restarts++ }
func (f *fakeRuntime) RequestShutdown(fatal bool) { f.shutdowns++ }
func (f *fakeRuntime) Status() string             { return "state=RUNNING" }

func (f *fakeRuntime) lastReply() string {
	if len(f.replies) == 0 {
		return ""
	}
	return f.replies[len(f.replies)-1]
}

func newRuntime(t *testing.T) *fakeRuntime {
	t.Helper()
	st, err := store.Open(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(st.Close)
	cfg := config.Default()
	cfg.OwnerNumbers = []string{"628111"}
	return &fakeRuntime{
		sessions: session.NewRegistry(time.Minute, nil),
		state:    st,
		cfg:      cfg,
	}
}

func find(t *testing.T, descriptors []*command.Descriptor, name string) *command.Descriptor {
	t.Helper()
	for _, d := range descriptors {
		if d.Name == name {
			return d
		}
	}
	t.Fatalf("command %q not found", name)
	return nil
}

func textMsg(sender, text string) *message.Message {
	return &message.Message{
		Chat:      sender,
		Sender:    sender,
		ID:        "IN-1",
		Text:      text,
		Args:      strings.Fields(text),
		Timestamp: time.Now(),
	}
}

func run(t *testing.T, d *command.Descriptor, rt *fakeRuntime, msg *message.Message, args ...string) {
	t.Helper()
	if err := d.Execute(command.Context{Ctx: context.Background(), Msg: msg, Args: args, Runtime: rt}); err != nil {
		t.Fatalf("%s execute: %v", d.Name, err)
	}
}

func reply(t *testing.T, d *command.Descriptor, rt *fakeRuntime, msg *message.Message, s *session.Session) {
	t.Helper()
	if err := d.OnReply(command.Context{Ctx: context.Background(), Msg: msg, Args: msg.Args, Session: s, Runtime: rt}); err != nil {
		t.Fatalf("%s onReply: %v", d.Name, err)
	}
}

// #endregion

// #region register-tests

func TestRegisterFullFlow(t *testing.T) {
	rt := newRuntime(t)
	d := find(t, All(Deps{}), "register")
	user := "628222@s.whatsapp.net"

	run(t, d, rt, textMsg(user, "!register"))
	s, ok := rt.sessions.Get(user)
	if !ok || s.Step != stepAskName {
		t.Fatalf("no ask_name session after execute")
	}

	reply(t, d, rt, textMsg(user, "Arifi Razzaq"), s)
	if s.Step != stepAskAge {
		t.Fatalf("step = %q after name reply", s.Step)
	}

	reply(t, d, rt, textMsg(user, "21"), s)
	rec, ok := rt.state.Registered(user)
	if !ok || rec.Name != "Arifi Razzaq" || rec.Age != 21 {
		t.Fatalf("registration not persisted: %+v", rec)
	}
	if _, ok := rt.sessions.Get(user); ok {
		t.Fatalf("session not cleaned up after completion")
	}
	if !strings.Contains(rt.lastReply(), "Registrasi Berhasil") {
		t.Fatalf("no success notice, got %q", rt.lastReply())
	}
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	rt := newRuntime(t)
	d := find(t, All(Deps{}), "register")
	user := "628222@s.whatsapp.net"

	run(t, d, rt, textMsg(user, "!register"))
	s, _ := rt.sessions.Get(user)

	reply(t, d, rt, textMsg(user, strings.Repeat("x", 60)), s)
	if s.Step != stepAskName {
		t.Fatalf("oversized name advanced the session")
	}

	reply(t, d, rt, textMsg(user, "Arifi"), s)
	reply(t, d, rt, textMsg(user, "lima belas"), s)
	if s.Step != stepAskAge {
		t.Fatalf("non-numeric age advanced the session")
	}
	reply(t, d, rt, textMsg(user, "9"), s)
	if _, ok := rt.state.Registered(user); ok {
		t.Fatalf("underage registration persisted")
	}
}

func TestRegisterSupersedesMenuSessionOnly(t *testing.T) {
	rt := newRuntime(t)
	d := find(t, All(Deps{}), "register")
	user := "628222@s.whatsapp.net"

	rt.sessions.Create(user, "menu", "pick_category", "MENU-MSG", false)
	run(t, d, rt, textMsg(user, "!register"))
	s, ok := rt.sessions.Get(user)
	if !ok || s.Command != "register" {
		t.Fatalf("menu session not superseded, got %+v", s)
	}

	// a non-menu session must block, leaving it intact
	rt2 := newRuntime(t)
	rt2.sessions.Create(user, "register", stepAskName, "OLD", false)
	run(t, d, rt2, textMsg(user, "!register"))
	s2, _ := rt2.sessions.Get(user)
	if s2.ReplyTo != "OLD" {
		t.Fatalf("active non-menu session was replaced")
	}
	if !strings.Contains(rt2.lastReply(), "sesi aktif lain") {
		t.Fatalf("no busy notice, got %q", rt2.lastReply())
	}
}

// #endregion

// #region menu-tests

func TestMenuSessionListsCategory(t *testing.T) {
	registry := command.NewRegistry()
	deps := Deps{Registry: registry}
	registry.Load(All(deps))

	rt := newRuntime(t)
	d := find(t, All(deps), "menu")
	user := "628222@s.whatsapp.net"

	run(t, d, rt, textMsg(user, "!menu"))
	s, ok := rt.sessions.Get(user)
	if !ok || s.Command != "menu" {
		t.Fatalf("menu did not open a session")
	}
	if !strings.Contains(rt.lastReply(), "Moderation") {
		t.Fatalf("menu missing categories: %q", rt.lastReply())
	}

	reply(t, d, rt, textMsg(user, "1"), s)
	if _, ok := rt.sessions.Get(user); ok {
		t.Fatalf("menu session not closed after pick")
	}
	if !strings.Contains(rt.lastReply(), "•") {
		t.Fatalf("category listing missing: %q", rt.lastReply())
	}
}

// #endregion

// #region owner-tests

func TestBanResolvesTargetAndProtectsOwner(t *testing.T) {
	rt := newRuntime(t)
	d := find(t, All(Deps{}), "ban")
	owner := "628111@s.whatsapp.net"

	msg := textMsg(owner, "!ban")
	msg.IsOwner = true
	run(t, d, rt, msg)
	if !strings.Contains(rt.lastReply(), "menandai") {
		t.Fatalf("missing target not rejected: %q", rt.lastReply())
	}

	msg.MentionedJIDs = []string{"628222@s.whatsapp.net"}
	run(t, d, rt, msg)
	if !rt.state.IsBanned("628222@s.whatsapp.net") {
		t.Fatalf("target not banned")
	}

	msg.MentionedJIDs = []string{"628111@s.whatsapp.net"}
	run(t, d, rt, msg)
	if rt.state.IsBanned("628111@s.whatsapp.net") {
		t.Fatalf("owner was banned")
	}
	if !strings.Contains(rt.lastReply(), "KEAMANAN") {
		t.Fatalf("no owner protection notice")
	}
}

func TestUnbanLiftsBan(t *testing.T) {
	rt := newRuntime(t)
	d := find(t, All(Deps{}), "unban")
	rt.state.SetBanned("628222@s.whatsapp.net", true)

	msg := textMsg("628111@s.whatsapp.net", "!unban")
	msg.IsQuoted = true
	msg.QuotedSender = "628222@s.whatsapp.net"
	run(t, d, rt, msg)
	if rt.state.IsBanned("628222@s.whatsapp.net") {
		t.Fatalf("ban not lifted")
	}
}

func TestModeTogglesAndValidates(t *testing.T) {
	rt := newRuntime(t)
	d := find(t, All(Deps{}), "mode")
	msg := textMsg("628111@s.whatsapp.net", "!mode self")

	run(t, d, rt, msg, "self")
	if rt.state.BotMode() != "self" {
		t.Fatalf("mode not changed")
	}
	run(t, d, rt, msg, "invalid")
	if rt.state.BotMode() != "self" {
		t.Fatalf("invalid mode accepted")
	}
}

func TestRestartAndShutdownDelegate(t *testing.T) {
	rt := newRuntime(t)
	msg := textMsg("628111@s.whatsapp.net", "!restart")

	run(t, find(t, All(Deps{}), "restart"), rt, msg)
	if rt.restarts != 1 {
		t.Fatalf("restart not requested")
	}
	run(t, find(t, All(Deps{}), "shutdown"), rt, msg)
	if rt.shutdowns != 1 {
		t.Fatalf("shutdown not requested")
	}
}

// #endregion

// #region moderation-tests

func TestModerationToggles(t *testing.T) {
	rt := newRuntime(t)
	group := "12036@g.us"
	msg := textMsg(group, "!antilink on")
	msg.IsGroup = true

	run(t, find(t, All(Deps{}), "antilink"), rt, msg, "on")
	if !rt.state.AntilinkEnabled(group) {
		t.Fatalf("antilink not enabled")
	}
	run(t, find(t, All(Deps{}), "antilink"), rt, msg, "off")
	if rt.state.AntilinkEnabled(group) {
		t.Fatalf("antilink not disabled")
	}

	run(t, find(t, All(Deps{}), "mute"), rt, msg, "on")
	if !rt.state.IsMuted(group) {
		t.Fatalf("chat not muted")
	}

	run(t, find(t, All(Deps{}), "aichat"), rt, msg, "--ban")
	if !rt.state.AIChatBanned(group) {
		t.Fatalf("aichat not banned")
	}
	run(t, find(t, All(Deps{}), "aichat"), rt, msg, "--unban")
	if rt.state.AIChatBanned(group) {
		t.Fatalf("aichat ban not lifted")
	}

	run(t, find(t, All(Deps{}), "rvom"), rt, msg, "on")
	if !rt.state.ViewOnceEnabled(group) {
		t.Fatalf("view-once archival not enabled")
	}
}

func TestToggleRejectsGarbageArgument(t *testing.T) {
	rt := newRuntime(t)
	msg := textMsg("12036@g.us", "!mute maybe")
	msg.IsGroup = true

	run(t, find(t, All(Deps{}), "mute"), rt, msg, "maybe")
	if rt.state.IsMuted("12036@g.us") {
		t.Fatalf("garbage argument muted the chat")
	}
	if !strings.Contains(rt.lastReply(), "Gunakan") {
		t.Fatalf("no usage hint: %q", rt.lastReply())
	}
}

// #endregion
