package ai

// #region imports
import (
	"context"
	"errors"
	"fmt"
)

// #endregion

// #region turns

// Turn is one message of a conversation passed to a provider.
type Turn struct {
	Role    string `json:"role"` // "system" | "user" | "assistant"
	Content string `json:"content"`
}

// #endregion

// #region provider

// Provider is one pluggable AI backend. Query returns the model's text or a
// classified error.
type Provider interface {
	ID() string
	Query(ctx context.Context, turns []Turn) (string, error)
}

// #endregion

// #region errors

// FailKind classifies a provider failure so the chain can decide whether
// retrying the same provider with another key can help.
type FailKind int

const (
	// FailAuth: the key is invalid or revoked. Key-scoped.
	FailAuth FailKind = iota
	// FailQuota: the key is exhausted or rate-limited. Key-scoped.
	FailQuota
	// FailNetwork: transport-level failure. Provider-scoped; another key
	// changes nothing.
	FailNetwork
	// FailOther: anything else (bad request, server error, empty reply).
	FailOther
)

func (k FailKind) String() string {
	switch k {
	case FailAuth:
		return "auth"
	case FailQuota:
		return "quota"
	case FailNetwork:
		return "network"
	default:
		return "other"
	}
}

// ProviderError wraps a failure with its classification.
type ProviderError struct {
	Provider string
	Kind     FailKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s (%s): %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ErrAllProvidersFailed is returned when the whole chain is exhausted.
var ErrAllProvidersFailed = errors.New("all AI providers failed")

// #endregion

// #region chain

// Chain consults providers in priority order until one succeeds. Key-level
// fallback lives inside each provider; the chain only decides whether to
// move on, which it always does on failure, recording the classified cause.
type Chain struct {
	providers []Provider
}

// NewChain builds a chain from providers in priority order.
func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

// Providers lists the chain members in priority order, for diagnostics.
func (c *Chain) Providers() []Provider {
	return c.providers
}

// Query tries each provider in order. On total failure it returns
// ErrAllProvidersFailed joined with every classified cause.
func (c *Chain) Query(ctx context.Context, turns []Turn) (text, providerID string, err error) {
	var causes []error
	for _, p := range c.providers {
		out, qerr := p.Query(ctx, turns)
		if qerr == nil && out != "" {
			return out, p.ID(), nil
		}
		if qerr == nil {
			qerr = &ProviderError{Provider: p.ID(), Kind: FailOther, Err: errors.New("empty reply")}
		}
		causes = append(causes, qerr)
		if ctx.Err() != nil {
			break
		}
	}
	return "", "", errors.Join(append([]error{ErrAllProvidersFailed}, causes...)...)
}

// #endregion
