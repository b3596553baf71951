// Package ffprobe wraps the ffprobe binary for structural media inspection.
// The integrity phase uses it to detect truncated or corrupt containers
// without full playback.
package ffprobe

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
)

var commandContext = exec.CommandContext

// Prober runs ffprobe against media files.
type Prober struct {
	binary string
}

// New builds a Prober using the given binary name or path.
func New(binary string) *Prober {
	if strings.TrimSpace(binary) == "" {
		binary = "ffprobe"
	}
	return &Prober{binary: binary}
}

// Available reports whether the ffprobe binary can be found.
func (p *Prober) Available() bool {
	_, err := exec.LookPath(p.binary)
	return err == nil
}

// Result is the outcome of a structural probe.
type Result struct {
	OK              bool
	DurationSeconds float64
	Detail          string
}

// Probe checks container structure by asking for the format duration. A file
// that cannot report a positive duration is considered structurally broken.
func (p *Prober) Probe(ctx context.Context, path string) (Result, error) {
	cmd := commandContext(ctx, p.binary,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return Result{OK: false, Detail: detail}, nil
	}

	raw := strings.TrimSpace(stdout.String())
	duration, err := strconv.ParseFloat(raw, 64)
	if err != nil || duration <= 0 {
		return Result{OK: false, Detail: "no readable duration"}, nil
	}
	return Result{OK: true, DurationSeconds: duration}, nil
}
