package command

// #region imports
import (
	"context"

	"github.com/razzaqinspires/prometheus-wa-bot/internal/config"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/message"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/session"
	"github.com/razzaqinspires/prometheus-wa-bot/internal/store"
)

// #endregion

// #region runtime

// Runtime is the capability surface handlers execute against. The
// application wires a concrete implementation in; tests use a fake.
type Runtime interface {
	// Reply sends text quoting the triggering message and returns the sent
	// message ID (the reply target for session continuations).
	Reply(ctx context.Context, msg *message.Message, text string) (string, error)
	// Send sends plain text to a chat.
	Send(ctx context.Context, chat, text string) error
	// Sessions exposes the session registry.
	Sessions() *session.Registry
	// State exposes the persisted key-value stores.
	State() *store.Store
	// Config returns the active configuration.
	Config() config.Config
	// IsGroupAdmin reports whether user is an admin of the group chat.
	IsGroupAdmin(ctx context.Context, chat, user string) (bool, error)
	// RequestRestart asks the supervisor for a soft restart.
	RequestRestart()
	// RequestShutdown asks the supervisor to stop the process.
	RequestShutdown(fatal bool)
	// Status renders a one-shot health summary for diagnostics commands.
	Status() string
}

// #endregion

// #region authorize

// AuthResult is the outcome of a permission check.
type AuthResult struct {
	Authorized bool
	// Message to send on refusal; empty means stay silent (AI-mediated or
	// no prompt configured).
	Message string
}

// Authorize evaluates a command's permission against the sender. adminCheck
// is consulted lazily, only when a rule needs group-admin status.
func Authorize(ctx context.Context, d *Descriptor, msg *message.Message, rt Runtime) (AuthResult, error) {
	if d.Permission == nil {
		return AuthResult{Authorized: true}, nil
	}

	var isAdmin *bool
	for _, rule := range d.Permission.Restriction {
		met := true
		for _, cond := range rule {
			switch cond {
			case "owner":
				met = msg.IsOwner
			case "premium":
				met = msg.IsPremium
			case "group":
				met = msg.IsGroup
			case "admin":
				if !msg.IsGroup {
					met = false
					break
				}
				if isAdmin == nil {
					admin, err := rt.IsGroupAdmin(ctx, msg.Chat, msg.Sender)
					if err != nil {
						return AuthResult{}, err
					}
					isAdmin = &admin
				}
				met = *isAdmin
			default:
				met = false
			}
			if !met {
				break
			}
		}
		if met {
			return AuthResult{Authorized: true}, nil
		}
	}

	if d.Permission.AI {
		return AuthResult{Authorized: false}, nil
	}
	prompt := d.Permission.Prompt
	if prompt == "" {
		prompt = "Access denied."
	}
	return AuthResult{Authorized: false, Message: prompt}, nil
}

// #endregion
