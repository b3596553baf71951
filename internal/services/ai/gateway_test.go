package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"caretaker/internal/library"
	"caretaker/internal/logging"
	"caretaker/internal/services"
	"caretaker/internal/testsupport"
)

type fakeProvider struct {
	id         string
	isCloud    bool
	enabled    bool
	completion *Completion
	err        error
	calls      int
}

func (f *fakeProvider) name() string     { return f.id }
func (f *fakeProvider) cloud() bool      { return f.isCloud }
func (f *fakeProvider) configured() bool { return f.enabled }

func (f *fakeProvider) complete(ctx context.Context, req Request) (*Completion, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.completion, nil
}

func newTestGateway(t *testing.T, ledger Ledger, providers ...provider) *Gateway {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.AI.Enabled = true
	return NewGateway(cfg, ledger, logging.NewNop(), WithProviders(providers...))
}

func TestCompleteUsesFirstConfiguredProvider(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	anthropic := &fakeProvider{id: "anthropic", isCloud: true, enabled: true,
		completion: &Completion{Text: "ok", Provider: "anthropic", Model: "claude-haiku-3-5", CostUSD: 0.01}}
	openai := &fakeProvider{id: "openai", isCloud: true, enabled: true,
		completion: &Completion{Text: "fallback", Provider: "openai"}}

	gateway := newTestGateway(t, store, anthropic, openai)
	completion, err := gateway.Complete(context.Background(), Request{Prompt: "score this"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if completion.Provider != "anthropic" {
		t.Fatalf("expected anthropic first, got %s", completion.Provider)
	}
	if openai.calls != 0 {
		t.Fatal("expected openai untouched")
	}

	entries, err := store.ListAIUsage(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListAIUsage: %v", err)
	}
	if len(entries) != 1 || entries[0].Provider != "anthropic" {
		t.Fatalf("expected ledger entry, got %+v", entries)
	}
}

func TestCompleteFallsBackOnProviderFailure(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))

	anthropic := &fakeProvider{id: "anthropic", isCloud: true, enabled: true,
		err: services.Wrap(services.ErrUnavailable, "anthropic", "complete", "down", nil)}
	embedded := &fakeProvider{id: "embedded", enabled: true,
		completion: &Completion{Text: "local", Provider: "embedded"}}

	gateway := newTestGateway(t, store, anthropic, embedded)
	completion, err := gateway.Complete(context.Background(), Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if completion.Provider != "embedded" {
		t.Fatalf("expected embedded fallback, got %s", completion.Provider)
	}
}

func TestBudgetExhaustedSkipsCloud(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	if err := store.RecordAIUsage(context.Background(),
		&library.AIUsage{Provider: "anthropic", Model: "claude-haiku-3-5", CostUSD: 10}); err != nil {
		t.Fatalf("RecordAIUsage: %v", err)
	}

	cfg := testsupport.NewConfig(t)
	cfg.AI.Enabled = true
	cfg.AI.MonthlyBudgetUSD = 5

	anthropic := &fakeProvider{id: "anthropic", isCloud: true, enabled: true,
		completion: &Completion{Text: "cloud", Provider: "anthropic"}}
	embedded := &fakeProvider{id: "embedded", enabled: true,
		completion: &Completion{Text: "local", Provider: "embedded"}}

	gateway := NewGateway(cfg, store, logging.NewNop(),
		WithProviders(anthropic, embedded),
		WithClock(func() time.Time { return time.Now() }))

	completion, err := gateway.Complete(context.Background(), Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if completion.Provider != "embedded" {
		t.Fatalf("expected embedded when budget exhausted, got %s", completion.Provider)
	}
	if anthropic.calls != 0 {
		t.Fatal("expected cloud provider refused")
	}
}

func TestNoProviderAvailable(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	gateway := newTestGateway(t, store, &fakeProvider{id: "anthropic", isCloud: true, enabled: false})

	_, err := gateway.Complete(context.Background(), Request{Prompt: "p"})
	if !errors.Is(err, services.ErrNoProvider) {
		t.Fatalf("expected ErrNoProvider, got %v", err)
	}
}

func TestCostTable(t *testing.T) {
	cost := costFor("claude-haiku-3-5", 1_000_000, 1_000_000)
	if cost != 4.80 {
		t.Fatalf("expected 4.80 per million+million, got %f", cost)
	}
	if costFor("unknown-model", 1000, 1000) != 0 {
		t.Fatal("expected unknown models to cost nothing")
	}
}
