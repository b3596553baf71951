package quality

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"caretaker/internal/library"
	"caretaker/internal/logging"
	"caretaker/internal/scan"
)

func statFile(path string) error {
	_, err := os.Stat(path)
	return err
}

// CheckIntegrity verifies that every present file exists on disk and passes a
// structural probe. Files probed successfully within the recheck window are
// skipped. Probes run on a bounded worker pool; a single bad file records an
// issue and never aborts the phase.
func (a *Analyzer) CheckIntegrity(ctx context.Context, scanID int64, kind library.MediaKind, progress Progress) error {
	items, err := a.presentItems(ctx, kind)
	if err != nil {
		return err
	}

	type target struct {
		item *library.Item
		file library.MediaFile
	}
	var targets []target
	for _, item := range items {
		for _, file := range item.Files {
			if file.Present {
				targets = append(targets, target{item: item, file: file})
			}
		}
	}

	recheckBefore := a.now().Add(-time.Duration(a.scan.IntegrityRecheckDays) * 24 * time.Hour)
	probeTimeout := time.Duration(a.scan.IntegrityTimeoutSeconds) * time.Second
	if probeTimeout <= 0 {
		probeTimeout = time.Minute
	}

	var (
		done     atomic.Int64
		mu       sync.Mutex
		storeErr error
	)
	fail := func(err error) {
		mu.Lock()
		if storeErr == nil {
			storeErr = err
		}
		mu.Unlock()
	}

	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	err = scan.ForEachItem(poolCtx, a.scan.IntegrityWorkers, targets, func(taskCtx context.Context, t target) {
		if progress != nil && progress.StopRequested(taskCtx) {
			cancel()
			return
		}
		if err := a.checkFile(taskCtx, scanID, t.item, t.file, recheckBefore, probeTimeout); err != nil {
			fail(err)
			cancel()
			return
		}
		completed := done.Add(1)
		if progress != nil && len(targets) > 0 {
			progress.Report(taskCtx, float64(completed)/float64(len(targets))*100, t.item.Title)
		}
	})

	if storeErr != nil {
		return storeErr
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if progress != nil && progress.StopRequested(ctx) {
		return context.Canceled
	}

	return a.clearStale(ctx, scanID, kind,
		library.IssueMissingFile, library.IssueCorruptFile, library.IssueScanError)
}

func (a *Analyzer) checkFile(ctx context.Context, scanID int64, item *library.Item, file library.MediaFile, recheckBefore time.Time, probeTimeout time.Duration) error {
	if err := a.statFile(file.Path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return a.record(ctx, &library.Issue{
				ItemID:      item.ID,
				FileID:      file.ID,
				Type:        library.IssueMissingFile,
				Severity:    library.SeverityCritical,
				Description: fmt.Sprintf("%q is tracked but missing on disk", file.Path),
				ScanID:      scanID,
			})
		}
		return a.record(ctx, &library.Issue{
			ItemID:      item.ID,
			FileID:      file.ID,
			Type:        library.IssueScanError,
			Severity:    library.SeverityWarning,
			Description: fmt.Sprintf("cannot stat %q: %v", file.Path, err),
			ScanID:      scanID,
		})
	}

	if file.ProbeOK && file.ProbedAt != nil && file.ProbedAt.After(recheckBefore) {
		return nil
	}
	if a.prober == nil || !a.prober.Available() {
		return nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	result, err := a.prober.Probe(probeCtx, file.Path)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.Warn("probe failed",
			logging.String("path", file.Path),
			logging.Error(err))
		return a.record(ctx, &library.Issue{
			ItemID:      item.ID,
			FileID:      file.ID,
			Type:        library.IssueScanError,
			Severity:    library.SeverityWarning,
			Description: fmt.Sprintf("probe of %q failed: %v", file.Path, err),
			ScanID:      scanID,
		})
	}

	if err := a.store.RecordProbe(ctx, file.ID, result.OK); err != nil {
		return fmt.Errorf("record probe: %w", err)
	}
	if !result.OK {
		return a.record(ctx, &library.Issue{
			ItemID:      item.ID,
			FileID:      file.ID,
			Type:        library.IssueCorruptFile,
			Severity:    library.SeverityCritical,
			Description: fmt.Sprintf("%q failed structural probe: %s", file.Path, result.Detail),
			ScanID:      scanID,
		})
	}
	return nil
}
