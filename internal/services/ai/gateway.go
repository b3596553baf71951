// Package ai routes inference calls to cloud or embedded model backends with
// monthly budget enforcement. Provider order is fixed: anthropic, then
// openai, then the embedded OpenAI-compatible endpoint. Once the monthly
// budget is exhausted cloud calls are refused and the gateway transparently
// falls back to the embedded path; when nothing is usable callers get
// ErrNoProvider and are expected to degrade to heuristic-only behavior.
package ai

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"caretaker/internal/config"
	"caretaker/internal/library"
	"caretaker/internal/logging"
	"caretaker/internal/services"
)

// Request is one completion call.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Completion is the result of a successful call.
type Completion struct {
	Text         string
	Provider     string
	Model        string
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
}

// Ledger records spend and answers the monthly total. The library store
// satisfies it.
type Ledger interface {
	RecordAIUsage(ctx context.Context, usage *library.AIUsage) error
	MonthlyAISpend(ctx context.Context, now time.Time) (float64, error)
}

type provider interface {
	name() string
	cloud() bool
	configured() bool
	complete(ctx context.Context, req Request) (*Completion, error)
}

// Gateway fans completion requests across the configured providers.
type Gateway struct {
	providers []provider
	ledger    Ledger
	budget    float64
	logger    *slog.Logger

	// budgetMu serializes the check-spend-then-call sequence so the monthly
	// ceiling is a single global counter, not per-phase accounting.
	budgetMu sync.Mutex

	now func() time.Time
}

// Option customizes gateway construction.
type Option func(*Gateway)

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// WithProviders replaces the provider chain (used in tests).
func WithProviders(providers ...provider) Option {
	return func(g *Gateway) {
		g.providers = providers
	}
}

// NewGateway builds a gateway from application config.
func NewGateway(cfg *config.Config, ledger Ledger, logger *slog.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		ledger: ledger,
		budget: cfg.AI.MonthlyBudgetUSD,
		logger: logging.NewComponentLogger(logger, "ai"),
		now:    time.Now,
	}
	if cfg.AI.Enabled {
		g.providers = []provider{
			newAnthropicProvider(cfg),
			newOpenAIProvider(cfg),
			newEmbeddedProvider(cfg),
		}
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Enabled reports whether any provider is configured.
func (g *Gateway) Enabled() bool {
	for _, p := range g.providers {
		if p.configured() {
			return true
		}
	}
	return false
}

// Complete runs the request against the first usable provider. Cloud
// providers are skipped once the monthly budget is exhausted; the error is
// ErrNoProvider when no provider can serve the call.
func (g *Gateway) Complete(ctx context.Context, req Request) (*Completion, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, services.Wrap(services.ErrValidation, "ai", "complete", "empty prompt", nil)
	}

	g.budgetMu.Lock()
	defer g.budgetMu.Unlock()

	var lastErr error
	for _, p := range g.providers {
		if !p.configured() {
			continue
		}
		if p.cloud() {
			if err := g.checkBudget(ctx); err != nil {
				lastErr = err
				g.logger.Warn("cloud provider refused",
					logging.String("provider", p.name()), logging.Error(err))
				continue
			}
		}
		completion, err := p.complete(ctx, req)
		if err != nil {
			lastErr = err
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			g.logger.Warn("provider failed",
				logging.String("provider", p.name()), logging.Error(err))
			continue
		}
		g.record(ctx, completion)
		return completion, nil
	}

	if lastErr != nil {
		return nil, services.Wrap(services.ErrNoProvider, "ai", "complete", "all providers exhausted", lastErr)
	}
	return nil, services.Wrap(services.ErrNoProvider, "ai", "complete", "no provider configured", nil)
}

func (g *Gateway) checkBudget(ctx context.Context) error {
	if g.budget <= 0 || g.ledger == nil {
		return nil
	}
	spent, err := g.ledger.MonthlyAISpend(ctx, g.now().UTC())
	if err != nil {
		return err
	}
	if spent >= g.budget {
		return services.Wrap(services.ErrBudget, "ai", "budget check", "monthly budget exhausted", nil)
	}
	return nil
}

func (g *Gateway) record(ctx context.Context, completion *Completion) {
	if g.ledger == nil {
		return
	}
	usage := &library.AIUsage{
		Provider:     completion.Provider,
		Model:        completion.Model,
		InputTokens:  completion.InputTokens,
		OutputTokens: completion.OutputTokens,
		CostUSD:      completion.CostUSD,
	}
	if err := g.ledger.RecordAIUsage(ctx, usage); err != nil {
		g.logger.Warn("record usage failed", logging.Error(err))
	}
}
