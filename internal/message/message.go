package message

// #region imports
import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// #endregion

// #region raw

// Raw is the transport-agnostic shape of one inbound message event, as
// handed over by the transport adapter before any enrichment.
type Raw struct {
	Chat      string
	Sender    string
	ID        string
	PushName  string
	FromMe    bool
	IsGroup   bool
	Text      string
	Timestamp time.Time

	QuotedID     string
	QuotedSender string
	QuotedText   string

	MentionedJIDs []string
	IsViewOnce    bool
	MediaType     string
}

// Flags carries the sender's standing, resolved by the caller against the
// persisted stores.
type Flags struct {
	Owner      bool
	Premium    bool
	Registered bool
	Banned     bool
}

// #endregion

// #region message

// Message is the enriched, serialized form every pipeline stage consumes.
type Message struct {
	Raw Raw

	Chat     string
	Sender   string
	ID       string
	PushName string
	IsGroup  bool
	FromMe   bool

	IsOwner      bool
	IsPremium    bool
	IsRegistered bool
	IsBanned     bool

	Text    string
	IsCmd   bool
	Prefix  string
	Command string
	Args    []string

	MentionedJIDs []string
	URLs          []string

	IsQuoted     bool
	QuotedID     string
	QuotedSender string
	QuotedText   string

	IsViewOnce bool
	MediaType  string
	Timestamp  time.Time
}

// #endregion

// #region errors

// ErrOversized marks a message whose text exceeds the configured ceiling.
// Such events are rejected before they enter the pipeline.
var ErrOversized = errors.New("message text exceeds size ceiling")

// ErrInvalid marks an event that cannot map to a processable message.
var ErrInvalid = errors.New("invalid message event")

// #endregion

// #region serialize

var urlPattern = regexp.MustCompile(`https?://[^\s/$.?#].[^\s]*`)

// Serialize converts a raw event into an enriched Message. prefixes is the
// set of runes that introduce a command; maxTextLen is the hard ceiling on
// text content.
func Serialize(raw Raw, flags Flags, prefixes string, maxTextLen int) (*Message, error) {
	if raw.Chat == "" || raw.Sender == "" {
		return nil, ErrInvalid
	}
	if maxTextLen > 0 && len(raw.Text) > maxTextLen {
		return nil, ErrOversized
	}

	m := &Message{
		Raw:           raw,
		Chat:          raw.Chat,
		Sender:        raw.Sender,
		ID:            raw.ID,
		PushName:      raw.PushName,
		IsGroup:       raw.IsGroup,
		FromMe:        raw.FromMe,
		IsOwner:       flags.Owner,
		IsPremium:     flags.Premium,
		IsRegistered:  flags.Registered,
		IsBanned:      flags.Banned,
		Text:          raw.Text,
		MentionedJIDs: raw.MentionedJIDs,
		URLs:          urlPattern.FindAllString(raw.Text, -1),
		IsQuoted:      raw.QuotedID != "",
		QuotedID:      raw.QuotedID,
		QuotedSender:  raw.QuotedSender,
		QuotedText:    raw.QuotedText,
		IsViewOnce:    raw.IsViewOnce,
		MediaType:     raw.MediaType,
		Timestamp:     raw.Timestamp,
	}
	if m.PushName == "" {
		m.PushName = "Unknown"
	}

	parseCommand(m, prefixes)
	return m, nil
}

func parseCommand(m *Message, prefixes string) {
	text := m.Text
	if text == "" || prefixes == "" || !strings.ContainsRune(prefixes, rune(text[0])) {
		return
	}
	m.IsCmd = true
	m.Prefix = text[:1]

	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		m.IsCmd = false
		m.Prefix = ""
		return
	}
	m.Command = strings.ToLower(fields[0])
	m.Args = fields[1:]
}

// BareSender strips the server suffix from the sender JID: the identity
// class checks and the owner list operate on bare numbers.
func (m *Message) BareSender() string {
	if i := strings.IndexByte(m.Sender, '@'); i >= 0 {
		return m.Sender[:i]
	}
	return m.Sender
}

// #endregion
