// Package daemon ties the long-running pieces together: the single-instance
// lock, the HTTP control surface, and the optional cron schedule that starts
// scans unattended.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"

	"caretaker/internal/config"
	"caretaker/internal/library"
	"caretaker/internal/logging"
	"caretaker/internal/progress"
	"caretaker/internal/scan"
	"caretaker/internal/services"
)

// ServiceProbe exposes one integration's connectivity check to the control
// surface. Unconfigured services report Configured false and are never probed.
type ServiceProbe struct {
	Name       string
	Configured bool
	Probe      func(ctx context.Context) services.ConnectionStatus
}

// RequestSubmitter forwards an acquisition to the request manager.
type RequestSubmitter interface {
	SubmitRequest(ctx context.Context, kind string, tmdbID int64) error
}

// Daemon owns the orchestrator lifecycle and enforces single-instance
// execution via a lock file next to the logs.
type Daemon struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *library.Store
	orchestrator *scan.Orchestrator
	hub          *progress.Hub
	probes       []ServiceProbe
	requests     RequestSubmitter

	lockPath string
	lock     *flock.Flock
	server   *apiServer
	cron     *cron.Cron

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies. requests may be nil
// when no request manager is configured.
func New(cfg *config.Config, store *library.Store, orchestrator *scan.Orchestrator, hub *progress.Hub, probes []ServiceProbe, requests RequestSubmitter, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || orchestrator == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, orchestrator, and logger")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "caretakerd.lock")
	d := &Daemon{
		cfg:          cfg,
		logger:       logging.NewComponentLogger(logger, "daemon"),
		store:        store,
		orchestrator: orchestrator,
		hub:          hub,
		probes:       probes,
		requests:     requests,
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
	}
	d.server = newAPIServer(cfg.Paths.APIBind, cfg.Paths.APIToken, d, logger)
	return d, nil
}

// Start acquires the instance lock, binds the API server, and arms the scan
// schedule when one is configured.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another caretaker daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.server.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start api server: %w", err)
	}

	if d.cfg.Scheduler.Enabled && d.cfg.Scheduler.Cron != "" {
		if err := d.armSchedule(); err != nil {
			d.server.stop()
			_ = d.lock.Unlock()
			d.cancel()
			d.ctx = nil
			d.cancel = nil
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("bind", d.server.Addr()),
		logging.String("lock", d.lockPath))
	return nil
}

func (d *Daemon) armSchedule() error {
	c := cron.New()
	_, err := c.AddFunc(d.cfg.Scheduler.Cron, func() {
		runID, err := d.orchestrator.Start(d.ctx, nil)
		if errors.Is(err, scan.ErrScanAlreadyRunning) {
			d.logger.Info("scheduled scan skipped, previous run still active")
			return
		}
		if err != nil {
			d.logger.Error("scheduled scan failed to start", logging.Error(err))
			return
		}
		d.logger.Info("scheduled scan started", logging.Int64(logging.FieldScanID, runID))
	})
	if err != nil {
		return fmt.Errorf("invalid scan schedule %q: %w", d.cfg.Scheduler.Cron, err)
	}
	c.Start()
	d.cron = c
	return nil
}

// Stop shuts down the schedule, the API server, and any in-flight scan, then
// releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cron != nil {
		<-d.cron.Stop().Done()
		d.cron = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.stop()
	d.orchestrator.Shutdown()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and releases the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether Start has completed successfully.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Addr returns the bound control-surface address, useful when the configured
// bind uses port zero.
func (d *Daemon) Addr() string {
	return d.server.Addr()
}
