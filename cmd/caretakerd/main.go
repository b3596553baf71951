package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"caretaker/internal/config"
	"caretaker/internal/daemon"
	"caretaker/internal/library"
	"caretaker/internal/logging"
	"caretaker/internal/progress"
	"caretaker/internal/scan"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := library.Open(cfg)
	if err != nil {
		logger.Error("open library store", logging.Error(err))
		os.Exit(1)
	}

	hub := progress.NewHub()
	deps := buildDependencies(cfg, store, logger)
	orchestrator := scan.NewOrchestrator(store, hub, logger, buildPhases(deps))

	d, err := daemon.New(cfg, store, orchestrator, hub, deps.probes, deps.requests, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		os.Exit(1)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("caretakerd shutting down")
}
