package ai

import (
	"context"
	"time"

	"caretaker/internal/config"
	"caretaker/internal/services"
)

const (
	anthropicEndpoint = "https://api.anthropic.com/v1/messages"
	anthropicVersion  = "2023-06-01"
)

type anthropicProvider struct {
	apiKey   string
	model    string
	endpoint string
	guard    *services.Guard
}

func newAnthropicProvider(cfg *config.Config) *anthropicProvider {
	return &anthropicProvider{
		apiKey:   cfg.AI.AnthropicAPIKey,
		model:    cfg.AI.Model,
		endpoint: anthropicEndpoint,
		guard: services.NewGuard("anthropic", 2,
			time.Duration(cfg.AI.TimeoutSeconds)*time.Second),
	}
}

func (p *anthropicProvider) name() string     { return "anthropic" }
func (p *anthropicProvider) cloud() bool      { return true }
func (p *anthropicProvider) configured() bool { return p.apiKey != "" }

func (p *anthropicProvider) complete(ctx context.Context, req Request) (*Completion, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	body := map[string]any{
		"model":      p.model,
		"max_tokens": maxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
	}
	if req.System != "" {
		body["system"] = req.System
	}

	var resp struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int64 `json:"input_tokens"`
			OutputTokens int64 `json:"output_tokens"`
		} `json:"usage"`
	}
	headers := map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": anthropicVersion,
	}
	if err := p.guard.PostJSON(ctx, p.endpoint, headers, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Content) == 0 {
		return nil, services.Wrap(services.ErrTransient, "anthropic", "complete", "empty completion", nil)
	}
	return &Completion{
		Text:         resp.Content[0].Text,
		Provider:     "anthropic",
		Model:        p.model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		CostUSD:      costFor(p.model, resp.Usage.InputTokens, resp.Usage.OutputTokens),
	}, nil
}
