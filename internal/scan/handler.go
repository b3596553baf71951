package scan

import "context"

// Handler executes one analysis phase over the whole library. Execute must be
// safe to re-run from scratch against current data; there is no mid-phase
// checkpoint resume.
type Handler interface {
	// Name returns the human-readable phase name used in progress events.
	Name() string
	// Execute runs the phase, reporting item-level progress via the tracker.
	Execute(ctx context.Context, tracker *Tracker) error
	// HealthCheck verifies the phase's dependencies are reachable.
	HealthCheck(ctx context.Context) error
}

// Phase binds a handler to its fixed position in the pipeline.
type Phase struct {
	Num         int
	Name        string
	Description string
	Handler     Handler
}

// HandlerFunc adapts a function to the Handler interface for phases without
// external dependencies.
type HandlerFunc struct {
	PhaseName string
	Run       func(ctx context.Context, tracker *Tracker) error
	Health    func(ctx context.Context) error
}

func (h HandlerFunc) Name() string { return h.PhaseName }

func (h HandlerFunc) Execute(ctx context.Context, tracker *Tracker) error {
	return h.Run(ctx, tracker)
}

func (h HandlerFunc) HealthCheck(ctx context.Context) error {
	if h.Health == nil {
		return nil
	}
	return h.Health(ctx)
}
