package services

import "context"

// ExternalItem is the uniform record shape the cross-reference matcher reads
// from every management-service integration. Fields a given service cannot
// supply are left at their zero value.
type ExternalItem struct {
	ID     string
	Title  string
	Year   int
	Kind   string
	TMDBID int64
	TVDBID int64
	IMDBID string

	IMDBRating float64
	RTRating   int

	Status       string
	SeasonCount  int
	EpisodeCount int
	Monitored    bool

	Requested   bool
	Downloading bool

	SubtitleLanguages []string
	Watched           bool
	LastWatchedUnix   int64
}

// ConnectionStatus reports the result of a connectivity probe.
type ConnectionStatus struct {
	Success bool
	Message string
}

// Integration is the fixed polymorphic surface every management service
// exposes to the pipeline. Services are selected via a capability table in
// the cross-reference matcher, never via runtime type inspection.
type Integration interface {
	Name() string
	TestConnection(ctx context.Context) ConnectionStatus
	ListItems(ctx context.Context) ([]ExternalItem, error)
	Lookup(ctx context.Context, externalID string) (*ExternalItem, error)
}
