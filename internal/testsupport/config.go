package testsupport

import (
	"path/filepath"
	"testing"

	"caretaker/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Plex.URL = "http://plex.test:32400"
	cfgVal.Plex.Token = "test-token"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithPlex points the test config at a specific media-server endpoint.
func WithPlex(url, token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Plex.URL = url
		b.cfg.Plex.Token = token
	}
}

// WithService enables one management-service section by name.
func WithService(name, url, apiKey string) ConfigOption {
	return func(b *configBuilder) {
		svc := config.Service{Enabled: true, URL: url, APIKey: apiKey}
		switch name {
		case "radarr":
			b.cfg.Radarr = svc
		case "sonarr":
			b.cfg.Sonarr = svc
		case "overseerr":
			b.cfg.Overseerr = svc
		case "bazarr":
			b.cfg.Bazarr = svc
		case "tautulli":
			b.cfg.Tautulli = svc
		default:
			b.t.Fatalf("unknown service %q", name)
		}
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
