// Package scan drives the ordered analysis pipeline: it owns scan run
// lifecycle, executes phases sequentially, and translates phase outcomes
// into persisted run state and live progress events.
//
// Failure containment is strict: an item failure never fails its phase, a
// phase failure never fails the run, and the run only fails wholesale when
// the store itself cannot persist state.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"caretaker/internal/library"
	"caretaker/internal/logging"
	"caretaker/internal/progress"
	"caretaker/internal/services"
)

// ErrScanAlreadyRunning rejects a start request while a run is active.
var ErrScanAlreadyRunning = errors.New("scan already running")

// ErrNoActiveScan rejects a stop request when nothing is running.
var ErrNoActiveScan = errors.New("no active scan")

// Orchestrator coordinates scan runs.
type Orchestrator struct {
	store  *library.Store
	hub    *progress.Hub
	logger *slog.Logger
	phases []Phase

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator builds an orchestrator over the registered phases, sorted
// by phase number.
func NewOrchestrator(store *library.Store, hub *progress.Hub, logger *slog.Logger, phases []Phase) *Orchestrator {
	ordered := make([]Phase, len(phases))
	copy(ordered, phases)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Num < ordered[j].Num })
	return &Orchestrator{
		store:  store,
		hub:    hub,
		logger: logging.NewComponentLogger(logger, "scan"),
		phases: ordered,
	}
}

// Phases returns the registered pipeline in order.
func (o *Orchestrator) Phases() []Phase {
	out := make([]Phase, len(o.phases))
	copy(out, o.phases)
	return out
}

// Start begins a run over the selected phase numbers (all when empty) and
// returns the new run id. The store's running-row constraint is the sole
// arbiter of the one-active-run rule.
func (o *Orchestrator) Start(ctx context.Context, phaseNums []int) (int64, error) {
	selected := o.selectPhases(phaseNums)
	if len(selected) == 0 {
		return 0, fmt.Errorf("no phases selected")
	}

	rows := make([]library.ScanPhase, 0, len(selected))
	for _, phase := range selected {
		rows = append(rows, library.ScanPhase{Num: phase.Num, Name: phase.Name})
	}

	scan, err := o.store.CreateScan(ctx, rows)
	if err != nil {
		if errors.Is(err, library.ErrScanActive) {
			return 0, ErrScanAlreadyRunning
		}
		return 0, fmt.Errorf("create scan: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		o.run(runCtx, scan.ID, selected)
	}()

	return scan.ID, nil
}

// Stop requests cooperative cancellation of a run. The run transitions to
// cancelled only after the executing phase reaches its next item boundary.
func (o *Orchestrator) Stop(ctx context.Context, runID int64) error {
	active, err := o.store.ActiveScan(ctx)
	if err != nil {
		return fmt.Errorf("load active scan: %w", err)
	}
	if active == nil || (runID != 0 && active.ID != runID) {
		return ErrNoActiveScan
	}
	if err := o.store.RequestStop(ctx, active.ID); err != nil {
		return fmt.Errorf("request stop: %w", err)
	}
	o.logger.Info("stop requested", logging.Int64(logging.FieldScanID, active.ID))
	return nil
}

// Status is a point-in-time snapshot of one run.
type Status struct {
	Scan   library.Scan
	Phases []library.ScanPhase
}

// Status returns a snapshot of the given run, or of the active run when
// runID is zero.
func (o *Orchestrator) Status(ctx context.Context, runID int64) (*Status, error) {
	var (
		scan *library.Scan
		err  error
	)
	if runID == 0 {
		scan, err = o.store.ActiveScan(ctx)
		if err != nil {
			return nil, err
		}
		if scan == nil {
			scans, err := o.store.ListScans(ctx, 1)
			if err != nil {
				return nil, err
			}
			if len(scans) == 0 {
				return nil, ErrNoActiveScan
			}
			scan = &scans[0]
		}
	} else {
		scan, err = o.store.GetScan(ctx, runID)
		if err != nil {
			return nil, err
		}
	}
	phases, err := o.store.ListPhases(ctx, scan.ID)
	if err != nil {
		return nil, err
	}
	return &Status{Scan: *scan, Phases: phases}, nil
}

// Wait blocks until the in-flight run goroutine finishes. Used in tests and
// during daemon shutdown.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Shutdown cancels any in-flight run context and waits for it to settle.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.mu.Unlock()
	o.wg.Wait()
}

func (o *Orchestrator) selectPhases(phaseNums []int) []Phase {
	if len(phaseNums) == 0 {
		return o.phases
	}
	wanted := make(map[int]struct{}, len(phaseNums))
	for _, num := range phaseNums {
		wanted[num] = struct{}{}
	}
	var selected []Phase
	for _, phase := range o.phases {
		if _, ok := wanted[phase.Num]; ok {
			selected = append(selected, phase)
		}
	}
	return selected
}

func (o *Orchestrator) run(ctx context.Context, scanID int64, phases []Phase) {
	ctx = services.WithScanID(ctx, scanID)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, o.logger)
	logger.Info("scan started", logging.Int("phases", len(phases)))

	cancelled := false
	var storeFailure error

	for _, phase := range phases {
		if storeFailure != nil {
			break
		}
		if cancelled {
			if err := o.store.FinishPhase(ctx, scanID, phase.Num, library.PhaseSkipped, ""); err != nil {
				storeFailure = err
			}
			continue
		}

		stopped, err := o.store.StopRequested(ctx, scanID)
		if err != nil {
			storeFailure = err
			break
		}
		if stopped || ctx.Err() != nil {
			cancelled = true
			if err := o.store.FinishPhase(ctx, scanID, phase.Num, library.PhaseSkipped, ""); err != nil {
				storeFailure = err
			}
			continue
		}

		if err := o.executePhase(ctx, scanID, phase, logger); err != nil {
			storeFailure = err
		}
	}

	o.finish(ctx, scanID, cancelled, storeFailure, logger)
}

func (o *Orchestrator) executePhase(ctx context.Context, scanID int64, phase Phase, logger *slog.Logger) error {
	phaseCtx := services.WithPhase(ctx, phase.Name)
	if err := o.store.SetCurrentPhase(ctx, scanID, phase.Num); err != nil {
		return err
	}
	if err := o.store.StartPhase(ctx, scanID, phase.Num); err != nil {
		return err
	}

	tracker := &Tracker{
		scanID:   scanID,
		phaseNum: phase.Num,
		name:     phase.Name,
		store:    o.store,
		hub:      o.hub,
	}
	tracker.Report(phaseCtx, 0, "")

	logger.Info("phase started",
		logging.Int("phase", phase.Num),
		logging.String("phase_name", phase.Name))

	execErr := phase.Handler.Execute(phaseCtx, tracker)

	// A phase failure is recorded and the run proceeds: later phases operate
	// on independent data and partial results remain valuable.
	if execErr != nil && !errors.Is(execErr, context.Canceled) {
		logger.Warn("phase failed",
			logging.Int("phase", phase.Num),
			logging.String("phase_name", phase.Name),
			logging.Error(execErr))
		return o.store.FinishPhase(ctx, scanID, phase.Num, library.PhaseFailed, execErr.Error())
	}
	if errors.Is(execErr, context.Canceled) {
		return o.store.FinishPhase(ctx, scanID, phase.Num, library.PhaseSkipped, "")
	}

	logger.Info("phase finished",
		logging.Int("phase", phase.Num),
		logging.String("phase_name", phase.Name))
	return o.store.FinishPhase(ctx, scanID, phase.Num, library.PhaseSucceeded, "")
}

func (o *Orchestrator) finish(ctx context.Context, scanID int64, cancelled bool, storeFailure error, logger *slog.Logger) {
	status := library.ScanCompleted
	eventType := progress.TypeScanComplete
	summary := ""

	stopped, err := o.store.StopRequested(ctx, scanID)
	if err == nil && stopped {
		cancelled = true
	}
	if cancelled {
		status = library.ScanCancelled
		eventType = progress.TypeScanStopped
	}
	if storeFailure != nil {
		status = library.ScanFailed
		summary = storeFailure.Error()
		logger.Error("scan failed", logging.Error(storeFailure))
	}

	if err := o.store.FinishScan(ctx, scanID, status, summary); err != nil {
		logger.Error("finalize scan failed", logging.Error(err))
	}
	_ = o.store.RecordActivity(ctx, "scan", fmt.Sprintf("scan %d %s", scanID, status))

	if o.hub != nil {
		o.hub.Publish(progress.ChannelScan, progress.Event{
			Type:   eventType,
			ScanID: scanID,
			Status: string(status),
		})
	}
	logger.Info("scan finished", logging.String("status", string(status)))
}
