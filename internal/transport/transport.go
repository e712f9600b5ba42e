// Package transport isolates the WhatsApp socket behind a narrow interface.
// The supervisor and pipeline only ever see this interface plus numeric
// disconnect reason codes, so everything above it can be tested without a
// socket.
package transport

// #region imports
import (
	"context"

	"github.com/razzaqinspires/prometheus-wa-bot/internal/message"
)

// #endregion

// #region reason-codes

// Disconnect reason codes, mirroring the WhatsApp Web stream error space.
const (
	ReasonTimedOut           = 408
	ReasonConnectionLost     = 428
	ReasonConnectionReplaced = 440
	ReasonLoggedOut          = 401
)

// Recoverable reports whether a reconnect attempt makes sense for the code.
// Logged-out means the session credentials are gone; replaced means another
// client owns the stream now. Neither can be fixed by reconnecting.
func Recoverable(code int) bool {
	return code != ReasonLoggedOut && code != ReasonConnectionReplaced
}

// ReasonLabel names a code for logs and audit entries.
func ReasonLabel(code int) string {
	switch code {
	case ReasonTimedOut:
		return "timed_out"
	case ReasonConnectionLost:
		return "connection_lost"
	case ReasonConnectionReplaced:
		return "connection_replaced"
	case ReasonLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// #endregion

// #region interface

// ConnectionEvent is one transition of the underlying socket. Reason is a
// disconnect reason code and meaningful only when Connected is false.
type ConnectionEvent struct {
	Connected bool
	Reason    int
}

// ConnectionFunc receives connection transitions.
type ConnectionFunc func(ev ConnectionEvent)

// MessageFunc receives inbound message events.
type MessageFunc func(raw message.Raw)

// Transport is the socket abstraction the supervisor drives.
type Transport interface {
	// Connect establishes the session, performing login (QR or pairing
	// code) when no stored credentials exist. It returns once the socket
	// is up; the connected event follows asynchronously.
	Connect(ctx context.Context) error
	// SendText sends plain text and returns the sent message ID.
	SendText(ctx context.Context, chat, text string) (string, error)
	// Reply sends text quoting msg and returns the sent message ID.
	Reply(ctx context.Context, msg *message.Message, text string) (string, error)
	// Delete revokes a message for everyone.
	Delete(ctx context.Context, chat, sender, id string) error
	// Presence publishes availability.
	Presence(ctx context.Context, available bool) error
	// GroupAdmins lists the admin JIDs of a group.
	GroupAdmins(ctx context.Context, chat string) ([]string, error)
	// SelfJID returns the logged-in account JID, empty before login.
	SelfJID() string
	// OnConnection registers the connection transition handler. Must be
	// called before Connect.
	OnConnection(fn ConnectionFunc)
	// OnMessage registers the inbound message handler. Must be called
	// before Connect.
	OnMessage(fn MessageFunc)
	// End tears the socket down without logging out.
	End()
}

// #endregion
