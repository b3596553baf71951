package ai

import (
	"context"
	"strings"
	"time"

	"caretaker/internal/config"
	"caretaker/internal/services"
)

const openAIEndpoint = "https://api.openai.com/v1/chat/completions"

// openAIProvider speaks the chat completion dialect. It backs both the cloud
// OpenAI path and, with a local base URL and no key, the embedded path.
type openAIProvider struct {
	label    string
	apiKey   string
	model    string
	endpoint string
	isCloud  bool
	guard    *services.Guard
}

func newOpenAIProvider(cfg *config.Config) *openAIProvider {
	model := "gpt-4o-mini"
	if strings.HasPrefix(cfg.AI.Model, "gpt-") {
		model = cfg.AI.Model
	}
	return &openAIProvider{
		label:    "openai",
		apiKey:   cfg.AI.OpenAIAPIKey,
		model:    model,
		endpoint: openAIEndpoint,
		isCloud:  true,
		guard: services.NewGuard("openai", 2,
			time.Duration(cfg.AI.TimeoutSeconds)*time.Second),
	}
}

func newEmbeddedProvider(cfg *config.Config) *openAIProvider {
	endpoint := strings.TrimRight(cfg.AI.EmbeddedURL, "/")
	if endpoint != "" {
		endpoint += "/v1/chat/completions"
	}
	return &openAIProvider{
		label:    "embedded",
		model:    "local",
		endpoint: endpoint,
		guard: services.NewGuard("embedded", 2,
			time.Duration(cfg.AI.TimeoutSeconds)*time.Second),
	}
}

func (p *openAIProvider) name() string { return p.label }
func (p *openAIProvider) cloud() bool  { return p.isCloud }

func (p *openAIProvider) configured() bool {
	if p.isCloud {
		return p.apiKey != ""
	}
	return p.endpoint != ""
}

func (p *openAIProvider) complete(ctx context.Context, req Request) (*Completion, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	messages := make([]map[string]string, 0, 2)
	if req.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.Prompt})

	body := map[string]any{
		"model":      p.model,
		"max_tokens": maxTokens,
		"messages":   messages,
	}

	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int64 `json:"prompt_tokens"`
			CompletionTokens int64 `json:"completion_tokens"`
		} `json:"usage"`
	}
	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}
	if err := p.guard.PostJSON(ctx, p.endpoint, headers, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, services.Wrap(services.ErrTransient, p.label, "complete", "empty completion", nil)
	}
	cost := 0.0
	if p.isCloud {
		cost = costFor(p.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	return &Completion{
		Text:         resp.Choices[0].Message.Content,
		Provider:     p.label,
		Model:        p.model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		CostUSD:      cost,
	}, nil
}
