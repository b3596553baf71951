package scan

import (
	"context"

	"caretaker/internal/library"
	"caretaker/internal/progress"
)

// Tracker lets a phase report item-level progress. Reports flow to the store
// for status polling and to the hub for live subscribers; both paths tolerate
// loss, so phases call Report freely inside item loops.
type Tracker struct {
	scanID   int64
	phaseNum int
	name     string
	store    *library.Store
	hub      *progress.Hub
}

// ScanID returns the owning run identifier.
func (t *Tracker) ScanID() int64 { return t.scanID }

// Report publishes item-level progress. Errors writing status are swallowed;
// progress is advisory and must never fail a phase.
func (t *Tracker) Report(ctx context.Context, percent float64, currentItem string) {
	if t == nil {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if t.store != nil {
		_ = t.store.UpdatePhaseProgress(ctx, t.scanID, t.phaseNum, percent, currentItem)
	}
	if t.hub != nil {
		t.hub.Publish(progress.ChannelScan, progress.Event{
			Type:            progress.TypeScanProgress,
			ScanID:          t.scanID,
			Phase:           t.phaseNum,
			PhaseName:       t.name,
			ProgressPercent: percent,
			CurrentItem:     currentItem,
		})
	}
}

// StopRequested reports whether cooperative cancellation was requested.
// Phases check this at item boundaries, never mid-call.
func (t *Tracker) StopRequested(ctx context.Context) bool {
	if t == nil || t.store == nil {
		return false
	}
	stopped, err := t.store.StopRequested(ctx, t.scanID)
	if err != nil {
		return false
	}
	return stopped
}
