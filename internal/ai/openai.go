package ai

// #region imports
import (
	"context"
	"errors"
	"net"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// #endregion

// #region openai-provider

// OpenAIProvider speaks the OpenAI chat-completions API. A custom base URL
// covers any compatible backend (Groq among them). It holds a key list and
// rotates to the next key on key-scoped failures (auth, quota); a network
// failure aborts the provider, since another key cannot help.
type OpenAIProvider struct {
	id      string
	model   string
	clients []*openai.Client
}

// NewOpenAIProvider builds one client per key. baseURL may be empty for the
// default endpoint.
func NewOpenAIProvider(id, model, baseURL string, keys []string) *OpenAIProvider {
	p := &OpenAIProvider{id: id, model: model}
	for _, key := range keys {
		cfg := openai.DefaultConfig(key)
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
		p.clients = append(p.clients, openai.NewClientWithConfig(cfg))
	}
	return p
}

// ID implements Provider.
func (p *OpenAIProvider) ID() string { return p.id }

// Query implements Provider.
func (p *OpenAIProvider) Query(ctx context.Context, turns []Turn) (string, error) {
	if len(p.clients) == 0 {
		return "", &ProviderError{Provider: p.id, Kind: FailAuth, Err: errors.New("no API keys configured")}
	}

	msgs := make([]openai.ChatCompletionMessage, len(turns))
	for i, t := range turns {
		msgs[i] = openai.ChatCompletionMessage{Role: t.Role, Content: t.Content}
	}

	var last error
	for _, client := range p.clients {
		resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    p.model,
			Messages: msgs,
		})
		if err == nil {
			if len(resp.Choices) == 0 {
				last = &ProviderError{Provider: p.id, Kind: FailOther, Err: errors.New("no choices returned")}
				continue
			}
			return resp.Choices[0].Message.Content, nil
		}

		perr := classify(p.id, err)
		last = perr
		if perr.Kind == FailNetwork {
			// provider unreachable, stop burning keys
			return "", perr
		}
		// auth/quota: rotate to the next key
	}
	return "", last
}

// classify maps an API error onto the failure taxonomy.
func classify(provider string, err error) *ProviderError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &ProviderError{Provider: provider, Kind: FailAuth, Err: err}
		case http.StatusTooManyRequests, http.StatusPaymentRequired:
			return &ProviderError{Provider: provider, Kind: FailQuota, Err: err}
		default:
			return &ProviderError{Provider: provider, Kind: FailOther, Err: err}
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Provider: provider, Kind: FailNetwork, Err: err}
	}
	return &ProviderError{Provider: provider, Kind: FailNetwork, Err: err}
}

// #endregion
