package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"caretaker/internal/config"
)

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	base := t.TempDir()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Plex.URL = "http://plex.local:32400"
	cfg.Plex.Token = "token"
	return cfg
}

func TestDefaultValidatesWithPlexCredentials(t *testing.T) {
	cfg := baseConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestValidateRequiresPlex(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Plex.URL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when plex.url missing")
	}
	cfg = baseConfig(t)
	cfg.Plex.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when plex.token missing")
	}
}

func TestValidateEnabledServiceNeedsCredentials(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Radarr.Enabled = true
	cfg.Radarr.URL = "http://radarr.local"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when radarr.api_key missing")
	}
	if err := cfg.Validate(); err != nil && !strings.Contains(err.Error(), "radarr") {
		t.Fatalf("expected radarr in error, got %v", err)
	}
}

func TestValidateSizeThresholdOrdering(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Scan.SizeThresholds["1080"] = config.SizeBounds{MinGBPerHour: 10, MaxGBPerHour: 2}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when min exceeds max")
	}
}

func TestValidateAIAdjustmentCapBounds(t *testing.T) {
	cfg := baseConfig(t)
	cfg.AI.Enabled = true
	cfg.AI.AdjustmentCap = 11
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for adjustment cap above 10")
	}
}

func TestLoadParsesFileAndExpandsPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "caretaker.toml")
	body := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[plex]
url = "http://plex.local:32400/"
token = " secret "
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved == "" {
		t.Fatalf("expected config to resolve, got exists=%v path=%q", exists, resolved)
	}
	if cfg.Plex.URL != "http://plex.local:32400" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Plex.URL)
	}
	if cfg.Plex.Token != "secret" {
		t.Fatalf("expected token trimmed, got %q", cfg.Plex.Token)
	}
	if cfg.Scan.IntegrityWorkers == 0 {
		t.Fatal("expected defaults to survive partial config files")
	}
}

func TestMapPathRewritesPrefix(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Plex.PathMappings = map[string]string{"/mnt/user/": "/media/"}
	got := cfg.MapPath("/mnt/user/movies/Heat (1995)/Heat.mkv")
	want := "/media/movies/Heat (1995)/Heat.mkv"
	if got != want {
		t.Fatalf("MapPath = %q, want %q", got, want)
	}
	if cfg.MapPath("/other/file.mkv") != "/other/file.mkv" {
		t.Fatal("expected unmapped paths unchanged")
	}
}
