// Package api defines the wire types of the daemon's control surface and an
// HTTP client for them, shared by the server and the CLI.
package api

import (
	"time"

	"caretaker/internal/library"
)

// StartScanRequest selects the phases to run; empty means all.
type StartScanRequest struct {
	Phases []int `json:"phases,omitempty"`
}

// StartScanResponse carries the new run id.
type StartScanResponse struct {
	RunID int64 `json:"run_id"`
}

// StopScanRequest targets a run; zero means the active run.
type StopScanRequest struct {
	RunID int64 `json:"run_id,omitempty"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PhaseSnapshot is one phase's persisted status.
type PhaseSnapshot struct {
	Num             int     `json:"num"`
	Name            string  `json:"name"`
	Status          string  `json:"status"`
	ProgressPercent float64 `json:"progress_percent"`
	CurrentItem     string  `json:"current_item,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// ScanSnapshot is one run with its phases.
type ScanSnapshot struct {
	ID            int64           `json:"id"`
	Status        string          `json:"status"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
	CurrentPhase  int             `json:"current_phase"`
	PhaseTotal    int             `json:"phase_total"`
	StopRequested bool            `json:"stop_requested"`
	ErrorSummary  string          `json:"error_summary,omitempty"`
	Phases        []PhaseSnapshot `json:"phases,omitempty"`
}

// Issue is one recorded defect.
type Issue struct {
	ID          int64     `json:"id"`
	ItemID      int64     `json:"item_id,omitempty"`
	FileID      int64     `json:"file_id,omitempty"`
	Type        string    `json:"type"`
	Severity    string    `json:"severity"`
	Description string    `json:"description"`
	State       string    `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
}

// DuplicateGroup is one duplicate cluster.
type DuplicateGroup struct {
	ID               int64   `json:"id"`
	Title            string  `json:"title"`
	MemberFileIDs    []int64 `json:"member_file_ids"`
	KeepFileID       int64   `json:"keep_file_id"`
	ReclaimableBytes int64   `json:"reclaimable_bytes"`
}

// DuplicatesResponse lists groups with the total reclaimable size.
type DuplicatesResponse struct {
	Groups           []DuplicateGroup `json:"groups"`
	ReclaimableBytes int64            `json:"reclaimable_bytes"`
}

// Recommendation is one suggested acquisition.
type Recommendation struct {
	ID     int64  `json:"id"`
	Kind   string `json:"kind"`
	Title  string `json:"title"`
	Year   int    `json:"year,omitempty"`
	TMDBID int64  `json:"tmdb_id,omitempty"`
	Reason string `json:"reason,omitempty"`
	State  string `json:"state"`
}

// ServiceStatus reports one integration's connectivity.
type ServiceStatus struct {
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
}

// Activity is one audit log entry.
type Activity struct {
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// FromScan converts a stored run and its phases.
func FromScan(scan library.Scan, phases []library.ScanPhase) ScanSnapshot {
	snapshot := ScanSnapshot{
		ID:            scan.ID,
		Status:        string(scan.Status),
		StartedAt:     scan.StartedAt,
		FinishedAt:    scan.FinishedAt,
		CurrentPhase:  scan.CurrentPhase,
		PhaseTotal:    scan.PhaseTotal,
		StopRequested: scan.StopRequested,
		ErrorSummary:  scan.ErrorSummary,
	}
	for _, phase := range phases {
		snapshot.Phases = append(snapshot.Phases, PhaseSnapshot{
			Num:             phase.Num,
			Name:            phase.Name,
			Status:          string(phase.Status),
			ProgressPercent: phase.ProgressPercent,
			CurrentItem:     phase.CurrentItem,
			Error:           phase.Error,
		})
	}
	return snapshot
}

// FromIssue converts a stored issue.
func FromIssue(issue library.Issue) Issue {
	return Issue{
		ID:          issue.ID,
		ItemID:      issue.ItemID,
		FileID:      issue.FileID,
		Type:        string(issue.Type),
		Severity:    string(issue.Severity),
		Description: issue.Description,
		State:       string(issue.State),
		CreatedAt:   issue.CreatedAt,
	}
}

// FromDuplicateGroup converts a stored group.
func FromDuplicateGroup(group library.DuplicateGroup) DuplicateGroup {
	return DuplicateGroup{
		ID:               group.ID,
		Title:            group.Title,
		MemberFileIDs:    group.MemberFileIDs,
		KeepFileID:       group.KeepFileID,
		ReclaimableBytes: group.ReclaimableBytes,
	}
}

// FromRecommendation converts a stored recommendation.
func FromRecommendation(rec library.Recommendation) Recommendation {
	return Recommendation{
		ID:     rec.ID,
		Kind:   string(rec.Kind),
		Title:  rec.Title,
		Year:   rec.Year,
		TMDBID: rec.TMDBID,
		Reason: rec.Reason,
		State:  string(rec.State),
	}
}

// FromActivity converts a stored activity entry.
func FromActivity(entry library.Activity) Activity {
	return Activity{
		Kind:      entry.Kind,
		Message:   entry.Message,
		CreatedAt: entry.CreatedAt,
	}
}
