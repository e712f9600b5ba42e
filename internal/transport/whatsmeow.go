package transport

// #region imports
import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"

	"github.com/razzaqinspires/prometheus-wa-bot/internal/message"
)

// #endregion

// #region adapter

// Whatsmeow is the production Transport over a whatsmeow client with a
// sqlite-backed device store.
type Whatsmeow struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	log       zerolog.Logger

	login     string // "qr" | "pair"
	pairPhone string

	onConn ConnectionFunc
	onMsg  MessageFunc
}

// NewWhatsmeow opens (or creates) the device store under sessionDir.
// login selects the first-run flow; pairPhone is required for "pair".
func NewWhatsmeow(ctx context.Context, sessionDir, login, pairPhone string, log zerolog.Logger) (*Whatsmeow, error) {
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	dsn := "file:" + filepath.Join(sessionDir, "device.db") + "?_foreign_keys=on"
	container, err := sqlstore.New(ctx, "sqlite3", dsn, NewWALogger(log, "database"))
	if err != nil {
		return nil, fmt.Errorf("open device store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}
	if device == nil {
		device = container.NewDevice()
	}

	t := &Whatsmeow{
		container: container,
		log:       log.With().Str("component", "transport").Logger(),
		login:     login,
		pairPhone: pairPhone,
	}
	t.client = whatsmeow.NewClient(device, NewWALogger(log, "client"))
	t.client.AddEventHandler(t.handleEvent)
	return t, nil
}

// OnConnection implements Transport.
func (t *Whatsmeow) OnConnection(fn ConnectionFunc) { t.onConn = fn }

// OnMessage implements Transport.
func (t *Whatsmeow) OnMessage(fn MessageFunc) { t.onMsg = fn }

// SelfJID implements Transport.
func (t *Whatsmeow) SelfJID() string {
	if id := t.client.Store.ID; id != nil {
		return id.String()
	}
	return ""
}

// #endregion

// #region connect

// Connect implements Transport. On first run it drives the QR or pairing
// flow before the socket comes up.
func (t *Whatsmeow) Connect(ctx context.Context) error {
	if t.client.Store.ID != nil {
		return t.client.Connect()
	}

	switch t.login {
	case "pair":
		if err := t.client.Connect(); err != nil {
			return fmt.Errorf("connect for pairing: %w", err)
		}
		code, err := t.client.PairPhone(ctx, t.pairPhone, true, whatsmeow.PairClientChrome, "Chrome (Linux)")
		if err != nil {
			return fmt.Errorf("request pairing code: %w", err)
		}
		t.log.Info().Str("code", code).Msg("enter this pairing code on your phone")
		return nil
	default:
		qrChan, err := t.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("open qr channel: %w", err)
		}
		if err := t.client.Connect(); err != nil {
			return fmt.Errorf("connect for qr login: %w", err)
		}
		go func() {
			for evt := range qrChan {
				switch evt.Event {
				case "code":
					qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
					t.log.Info().Msg("scan the QR code above with WhatsApp")
				case "success":
					t.log.Info().Msg("login successful")
				default:
					t.log.Warn().Str("event", evt.Event).Msg("qr channel event")
				}
			}
		}()
		return nil
	}
}

// End implements Transport.
func (t *Whatsmeow) End() {
	t.client.Disconnect()
}

// #endregion

// #region events

func (t *Whatsmeow) handleEvent(evt any) {
	switch e := evt.(type) {
	case *events.Connected:
		t.emitConn(ConnectionEvent{Connected: true})
	case *events.Disconnected:
		t.emitConn(ConnectionEvent{Reason: ReasonConnectionLost})
	case *events.KeepAliveTimeout:
		t.emitConn(ConnectionEvent{Reason: ReasonTimedOut})
	case *events.StreamReplaced:
		t.emitConn(ConnectionEvent{Reason: ReasonConnectionReplaced})
	case *events.LoggedOut:
		t.emitConn(ConnectionEvent{Reason: ReasonLoggedOut})
	case *events.Message:
		if t.onMsg != nil {
			t.onMsg(extractRaw(e))
		}
	}
}

func (t *Whatsmeow) emitConn(ev ConnectionEvent) {
	if t.onConn != nil {
		t.onConn(ev)
	}
}

// identityJID picks the stable phone-number identity for a participant:
// the alternate address when the primary is a LID, with the device part
// stripped so every companion device maps to the same user key.
func identityJID(primary, alt types.JID) string {
	if primary.Server == types.HiddenUserServer && !alt.IsEmpty() {
		primary = alt
	}
	return primary.ToNonAD().String()
}

// canonicalJID strips the device part of a serialized JID, keeping the
// input intact when it does not parse.
func canonicalJID(jid string) string {
	parsed, err := types.ParseJID(jid)
	if err != nil {
		return jid
	}
	return parsed.ToNonAD().String()
}

// extractRaw flattens a whatsmeow message event into the transport-agnostic
// shape the pipeline consumes.
func extractRaw(e *events.Message) message.Raw {
	raw := message.Raw{
		Chat:      e.Info.Chat.String(),
		Sender:    identityJID(e.Info.Sender, e.Info.SenderAlt),
		ID:        e.Info.ID,
		PushName:  e.Info.PushName,
		FromMe:    e.Info.IsFromMe,
		IsGroup:   e.Info.IsGroup,
		Timestamp: e.Info.Timestamp,
	}

	msg := e.Message
	if vo := msg.GetViewOnceMessageV2(); vo.GetMessage() != nil {
		raw.IsViewOnce = true
		msg = vo.GetMessage()
	} else if vo := msg.GetViewOnceMessage(); vo.GetMessage() != nil {
		raw.IsViewOnce = true
		msg = vo.GetMessage()
	}

	switch {
	case msg.GetConversation() != "":
		raw.Text = msg.GetConversation()
	case msg.GetExtendedTextMessage() != nil:
		ext := msg.GetExtendedTextMessage()
		raw.Text = ext.GetText()
		if ci := ext.GetContextInfo(); ci != nil {
			raw.QuotedID = ci.GetStanzaID()
			raw.QuotedSender = canonicalJID(ci.GetParticipant())
			raw.QuotedText = quotedText(ci.GetQuotedMessage())
			for _, m := range ci.GetMentionedJID() {
				raw.MentionedJIDs = append(raw.MentionedJIDs, canonicalJID(m))
			}
		}
	case msg.GetImageMessage() != nil:
		raw.Text = msg.GetImageMessage().GetCaption()
		raw.MediaType = "image"
	case msg.GetVideoMessage() != nil:
		raw.Text = msg.GetVideoMessage().GetCaption()
		raw.MediaType = "video"
	case msg.GetAudioMessage() != nil:
		raw.MediaType = "audio"
	}
	return raw
}

func quotedText(m *waE2E.Message) string {
	if m == nil {
		return ""
	}
	if m.GetConversation() != "" {
		return m.GetConversation()
	}
	return m.GetExtendedTextMessage().GetText()
}

// #endregion

// #region send

// SendText implements Transport.
func (t *Whatsmeow) SendText(ctx context.Context, chat, text string) (string, error) {
	jid, err := types.ParseJID(chat)
	if err != nil {
		return "", fmt.Errorf("parse chat jid: %w", err)
	}
	resp, err := t.client.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	if err != nil {
		return "", fmt.Errorf("send text: %w", err)
	}
	return resp.ID, nil
}

// Reply implements Transport: the outgoing message quotes msg so the
// recipient's client renders it as a threaded reply.
func (t *Whatsmeow) Reply(ctx context.Context, msg *message.Message, text string) (string, error) {
	jid, err := types.ParseJID(msg.Chat)
	if err != nil {
		return "", fmt.Errorf("parse chat jid: %w", err)
	}
	payload := &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String(text),
			ContextInfo: &waE2E.ContextInfo{
				StanzaID:      proto.String(msg.ID),
				Participant:   proto.String(msg.Sender),
				QuotedMessage: &waE2E.Message{Conversation: proto.String(msg.Text)},
			},
		},
	}
	resp, err := t.client.SendMessage(ctx, jid, payload)
	if err != nil {
		return "", fmt.Errorf("send reply: %w", err)
	}
	return resp.ID, nil
}

// Delete implements Transport.
func (t *Whatsmeow) Delete(ctx context.Context, chat, sender, id string) error {
	chatJID, err := types.ParseJID(chat)
	if err != nil {
		return fmt.Errorf("parse chat jid: %w", err)
	}
	senderJID, err := types.ParseJID(sender)
	if err != nil {
		return fmt.Errorf("parse sender jid: %w", err)
	}
	if _, err := t.client.SendMessage(ctx, chatJID, t.client.BuildRevoke(chatJID, senderJID, id)); err != nil {
		return fmt.Errorf("revoke message: %w", err)
	}
	return nil
}

// Presence implements Transport.
func (t *Whatsmeow) Presence(ctx context.Context, available bool) error {
	p := types.PresenceAvailable
	if !available {
		p = types.PresenceUnavailable
	}
	return t.client.SendPresence(ctx, p)
}

// GroupAdmins implements Transport.
func (t *Whatsmeow) GroupAdmins(ctx context.Context, chat string) ([]string, error) {
	jid, err := types.ParseJID(chat)
	if err != nil {
		return nil, fmt.Errorf("parse group jid: %w", err)
	}
	info, err := t.client.GetGroupInfo(ctx, jid)
	if err != nil {
		return nil, fmt.Errorf("group info: %w", err)
	}
	var admins []string
	for _, p := range info.Participants {
		if p.IsAdmin || p.IsSuperAdmin {
			admins = append(admins, p.JID.String())
		}
	}
	return admins, nil
}

// #endregion

// #region helpers

// BareJID strips the device and server parts: "628xx:5@s.whatsapp.net"
// becomes "628xx".
func BareJID(jid string) string {
	user, _, _ := strings.Cut(jid, "@")
	user, _, _ = strings.Cut(user, ":")
	return user
}

// #endregion
