package library

import "time"

// MediaKind classifies a library item.
type MediaKind string

const (
	KindMovie MediaKind = "movie"
	KindShow  MediaKind = "show"
)

// IssueType enumerates the defect categories the analysis phases emit.
type IssueType string

const (
	IssueCorruptFile             IssueType = "corrupt_file"
	IssueMissingFile             IssueType = "missing_file"
	IssueMisnamedFolder          IssueType = "misnamed_folder"
	IssueMissingSubtitleLanguage IssueType = "missing_subtitle_language"
	IssueNoPreferredAudio        IssueType = "no_preferred_audio"
	IssueMissingHDR              IssueType = "missing_hdr"
	IssueOversized               IssueType = "oversized"
	IssueUndersized              IssueType = "undersized"
	IssueLegacyCodec             IssueType = "legacy_codec"
	IssueServiceMismatch         IssueType = "service_mismatch"
	IssueIncompleteCollection    IssueType = "incomplete_collection"
	IssueScanError               IssueType = "scan_error"
)

// IssueSeverity ranks how urgent a defect is.
type IssueSeverity string

const (
	SeverityInfo     IssueSeverity = "info"
	SeverityWarning  IssueSeverity = "warning"
	SeverityError    IssueSeverity = "error"
	SeverityCritical IssueSeverity = "critical"
)

// IssueState tracks whether a defect is still outstanding.
type IssueState string

const (
	IssueOpen     IssueState = "open"
	IssueResolved IssueState = "resolved"
)

// ScanStatus is the lifecycle of a scan run.
type ScanStatus string

const (
	ScanRunning   ScanStatus = "running"
	ScanCompleted ScanStatus = "completed"
	ScanFailed    ScanStatus = "failed"
	ScanCancelled ScanStatus = "cancelled"
)

// PhaseStatus is the lifecycle of one phase within a run.
type PhaseStatus string

const (
	PhasePending   PhaseStatus = "pending"
	PhaseRunning   PhaseStatus = "running"
	PhaseSucceeded PhaseStatus = "succeeded"
	PhaseFailed    PhaseStatus = "failed"
	PhaseSkipped   PhaseStatus = "skipped"
)

// RecommendationState is the acquisition suggestion lifecycle. Transitions
// happen only through explicit store calls driven by external action.
type RecommendationState string

const (
	RecPending   RecommendationState = "pending"
	RecRequested RecommendationState = "requested"
	RecIgnored   RecommendationState = "ignored"
	RecAdded     RecommendationState = "added"
)

// Item is one logical title tracked by the library.
type Item struct {
	ID               int64
	RatingKey        string
	Title            string
	Year             int
	Kind             MediaKind
	TMDBID           int64
	TVDBID           int64
	IMDBID           string
	IMDBRating       float64
	RTRating         int
	Genres           []string
	Present          bool
	Protected        bool
	ProtectionReason string
	Watched          bool
	LastWatchedAt    *time.Time
	AddedAt          time.Time
	UpdatedAt        time.Time

	Files []MediaFile
}

// MediaFile is one physical file backing an item.
type MediaFile struct {
	ID                int64
	ItemID            int64
	Path              string
	SizeBytes         int64
	Container         string
	VideoCodec        string
	Resolution        string
	DurationSeconds   float64
	Bitrate           int64
	HDR               bool
	AudioLanguages    []string
	SubtitleLanguages []string
	Present           bool
	ProbedAt          *time.Time
	ProbeOK           bool
	UpdatedAt         time.Time
}

// Collection mirrors a media-server collection and its member items.
type Collection struct {
	ID        int64
	RatingKey string
	Title     string
	ItemCount int
	ItemIDs   []int64
	UpdatedAt time.Time
}

// Issue is a detected defect tied to an item or one of its files.
type Issue struct {
	ID          int64
	ItemID      int64
	FileID      int64
	Type        IssueType
	Severity    IssueSeverity
	Description string
	AutoFixable bool
	State       IssueState
	ScanID      int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ResolvedAt  *time.Time
}

// DuplicateGroup clusters files judged to represent the same logical title.
type DuplicateGroup struct {
	ID               int64
	ItemID           int64
	Title            string
	MemberFileIDs    []int64
	KeepFileID       int64
	ReclaimableBytes int64
	ScanID           int64
	CreatedAt        time.Time
}

// BadItemScore is the removal-worthiness score for one item, overwritten on
// each scan. Protected items never get a row.
type BadItemScore struct {
	ItemID         int64
	Score          float64
	HeuristicScore float64
	AIAdjustment   float64
	Signals        map[string]string
	UpdatedAt      time.Time
}

// Recommendation is a suggested acquisition.
type Recommendation struct {
	ID        int64
	Kind      MediaKind
	Title     string
	Year      int
	TMDBID    int64
	Reason    string
	State     RecommendationState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Scan is one execution of the analysis pipeline.
type Scan struct {
	ID            int64
	Status        ScanStatus
	StartedAt     time.Time
	FinishedAt    *time.Time
	CurrentPhase  int
	PhaseTotal    int
	StopRequested bool
	ErrorSummary  string
}

// ScanPhase is the persisted status of one phase within a run.
type ScanPhase struct {
	ID              int64
	ScanID          int64
	Num             int
	Name            string
	Status          PhaseStatus
	ProgressPercent float64
	CurrentItem     string
	Error           string
	StartedAt       *time.Time
	FinishedAt      *time.Time
}

// AIUsage is one ledger entry for a completed AI call.
type AIUsage struct {
	ID           int64
	Provider     string
	Model        string
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
	CreatedAt    time.Time
}

// Activity is one human-readable audit entry.
type Activity struct {
	ID        int64
	Kind      string
	Message   string
	CreatedAt time.Time
}

// SyncDelta summarizes a library sync reconciliation pass.
type SyncDelta struct {
	Added   int
	Updated int
	Removed int
}

// IsZero reports whether the sync changed nothing.
func (d SyncDelta) IsZero() bool {
	return d.Added == 0 && d.Updated == 0 && d.Removed == 0
}
