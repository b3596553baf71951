package daemon

import (
	"context"
	"testing"

	"caretaker/internal/config"
	"caretaker/internal/logging"
	"caretaker/internal/progress"
	"caretaker/internal/scan"
	"caretaker/internal/testsupport"
)

func newDaemon(t *testing.T, cfg *config.Config) *Daemon {
	t.Helper()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	hub := progress.NewHub()
	logger := logging.NewNop()
	orchestrator := scan.NewOrchestrator(store, hub, logger, []scan.Phase{noopPhase(1, "Library Sync")})

	d, err := New(cfg, store, orchestrator, hub, nil, nil, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestStartEnforcesSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newDaemon(t, cfg)
	second := newDaemon(t, cfg)

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer first.Stop()

	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("expected second instance to be rejected")
	}
}

func TestStopReleasesLockForNextInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newDaemon(t, cfg)
	ctx := context.Background()

	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	first.Stop()
	if first.Running() {
		t.Fatal("expected daemon stopped")
	}

	second := newDaemon(t, cfg)
	if err := second.Start(ctx); err != nil {
		t.Fatalf("restart after release: %v", err)
	}
	second.Stop()
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.Cron = "not a schedule"
	d := newDaemon(t, cfg)

	if err := d.Start(context.Background()); err == nil {
		d.Stop()
		t.Fatal("expected invalid cron expression to fail startup")
	}
	if d.Running() {
		t.Fatal("daemon must not report running after failed start")
	}
}
