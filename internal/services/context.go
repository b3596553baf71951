package services

import "context"

type contextKey string

const (
	scanIDKey    contextKey = "scan_id"
	phaseKey     contextKey = "phase"
	requestIDKey contextKey = "request_id"
)

// WithScanID annotates context with the scan run identifier.
func WithScanID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, scanIDKey, id)
}

// ScanIDFromContext extracts the scan run identifier if present.
func ScanIDFromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(scanIDKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}

// WithPhase annotates context with the scan phase name.
func WithPhase(ctx context.Context, phase string) context.Context {
	if phase == "" {
		return ctx
	}
	return context.WithValue(ctx, phaseKey, phase)
}

// PhaseFromContext returns the phase name if present.
func PhaseFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(phaseKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
