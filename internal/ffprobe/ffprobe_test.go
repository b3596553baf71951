package ffprobe

import (
	"context"
	"os/exec"
	"testing"
)

func stubCommand(t *testing.T, script string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "sh", "-c", script)
	}
	t.Cleanup(func() { commandContext = original })
}

func TestProbeReadsDuration(t *testing.T) {
	stubCommand(t, "echo 7260.375000")

	result, err := New("ffprobe").Probe(context.Background(), "/m/file.mkv")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !result.OK || result.DurationSeconds != 7260.375 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestProbeFlagsBrokenContainer(t *testing.T) {
	stubCommand(t, "echo 'moov atom not found' >&2; exit 1")

	result, err := New("ffprobe").Probe(context.Background(), "/m/broken.mkv")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if result.OK {
		t.Fatal("expected failed probe")
	}
	if result.Detail == "" {
		t.Fatal("expected stderr detail captured")
	}
}

func TestProbeFlagsMissingDuration(t *testing.T) {
	stubCommand(t, "echo N/A")

	result, err := New("ffprobe").Probe(context.Background(), "/m/odd.mkv")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if result.OK {
		t.Fatal("expected unreadable duration to fail the probe")
	}
}
