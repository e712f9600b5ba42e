package ai

// #region imports
import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// #endregion

// #region ollama-provider

// OllamaProvider talks to a local Ollama server over its /api/chat
// endpoint. No keys involved: every failure is provider-scoped.
type OllamaProvider struct {
	id      string
	model   string
	baseURL string
	client  *http.Client
}

// NewOllamaProvider creates a provider against baseURL (default local
// Ollama when empty).
func NewOllamaProvider(id, model, baseURL string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{id: id, model: model, baseURL: strings.TrimRight(baseURL, "/"), client: &http.Client{}}
}

// ID implements Provider.
func (p *OllamaProvider) ID() string { return p.id }

type ollamaRequest struct {
	Model    string `json:"model"`
	Messages []Turn `json:"messages"`
	Stream   bool   `json:"stream"`
}

type ollamaResponse struct {
	Message Turn `json:"message"`
}

// Query implements Provider.
func (p *OllamaProvider) Query(ctx context.Context, turns []Turn) (string, error) {
	body, err := json.Marshal(ollamaRequest{Model: p.model, Messages: turns})
	if err != nil {
		return "", &ProviderError{Provider: p.id, Kind: FailOther, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", &ProviderError{Provider: p.id, Kind: FailOther, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", &ProviderError{Provider: p.id, Kind: FailNetwork, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", &ProviderError{Provider: p.id, Kind: FailOther,
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(raw), 200))}
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &ProviderError{Provider: p.id, Kind: FailOther, Err: fmt.Errorf("parse response: %w", err)}
	}

	reply := strings.TrimSpace(parsed.Message.Content)
	if reply == "" {
		return "", &ProviderError{Provider: p.id, Kind: FailOther, Err: fmt.Errorf("empty reply")}
	}
	return reply, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// #endregion
