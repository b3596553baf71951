package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Plex contains configuration for the media server inventory source.
type Plex struct {
	URL   string `toml:"url"`
	Token string `toml:"token"`
	// PathMappings rewrites server-side file paths to locally mounted ones,
	// e.g. "/mnt/user/" -> "/media/".
	PathMappings map[string]string `toml:"path_mappings"`
}

// Service contains connection settings shared by the management-service
// integrations (radarr, sonarr, overseerr, bazarr, tautulli).
type Service struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
	APIKey  string `toml:"api_key"`
}

// AI contains configuration for the inference gateway.
type AI struct {
	Enabled         bool    `toml:"enabled"`
	AnthropicAPIKey string  `toml:"anthropic_api_key"`
	OpenAIAPIKey    string  `toml:"openai_api_key"`
	EmbeddedURL     string  `toml:"embedded_url"`
	Model           string  `toml:"model"`
	MonthlyBudgetUSD float64 `toml:"monthly_budget_usd"`
	// AdjustmentCap bounds how far an AI opinion may move a heuristic
	// bad-item score in either direction (0-10 scale).
	AdjustmentCap  float64 `toml:"adjustment_cap"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// SizeBounds describes acceptable GB-per-hour bounds for a resolution tier.
type SizeBounds struct {
	MinGBPerHour float64 `toml:"min_gb_per_hour"`
	MaxGBPerHour float64 `toml:"max_gb_per_hour"`
}

// Scan contains analysis thresholds and per-phase tuning.
type Scan struct {
	SizeThresholds             map[string]SizeBounds `toml:"size_thresholds"`
	PreferredAudioLanguages    []string              `toml:"preferred_audio_languages"`
	RequiredSubtitleLanguages  []string              `toml:"required_subtitle_languages"`
	LegacyCodecs               []string              `toml:"legacy_codecs"`
	IntegrityRecheckDays       int                   `toml:"integrity_recheck_days"`
	IntegrityWorkers           int                   `toml:"integrity_workers"`
	IntegrityTimeoutSeconds    int                   `toml:"integrity_timeout_seconds"`
	ItemRetryAttempts          int                   `toml:"item_retry_attempts"`
	MaxRecommendationsPerKind  int                   `toml:"max_recommendations_per_kind"`
	DuplicateSizeCeilingFactor float64               `toml:"duplicate_size_ceiling_factor"`
}

// Scheduler contains configuration for automatic scan scheduling.
type Scheduler struct {
	Enabled bool   `toml:"enabled"`
	Cron    string `toml:"cron"`
}

// Workflow contains daemon timing and concurrency configuration.
type Workflow struct {
	ServiceWorkers     int     `toml:"service_workers"`
	ServiceRateLimit   float64 `toml:"service_rate_limit"`
	ErrorRetryInterval int     `toml:"error_retry_interval"`
	RequestTimeout     int     `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Caretaker.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Plex: media server inventory source
//   - Radarr/Sonarr: movie and show manager integrations
//   - Overseerr: request manager integration (protection flags)
//   - Bazarr: subtitle manager integration
//   - Tautulli: watch history integration
//   - AI: inference gateway providers, budget, and score adjustment cap
//   - Scan: analysis thresholds (size tiers, languages, codecs, retries)
//   - Scheduler: automatic scan cron schedule
//   - Workflow: daemon concurrency and timing
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Plex      Plex      `toml:"plex"`
	Radarr    Service   `toml:"radarr"`
	Sonarr    Service   `toml:"sonarr"`
	Overseerr Service   `toml:"overseerr"`
	Bazarr    Service   `toml:"bazarr"`
	Tautulli  Service   `toml:"tautulli"`
	AI        AI        `toml:"ai"`
	Scan      Scan      `toml:"scan"`
	Scheduler Scheduler `toml:"scheduler"`
	Workflow  Workflow  `toml:"workflow"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/caretaker/config.toml")
}

// SampleConfig returns the embedded sample configuration document.
func SampleConfig() string {
	return sampleConfig
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("caretaker.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}

	if c.AI.AnthropicAPIKey == "" {
		c.AI.AnthropicAPIKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	}
	if c.AI.OpenAIAPIKey == "" {
		c.AI.OpenAIAPIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}

	for _, svc := range []*Service{&c.Radarr, &c.Sonarr, &c.Overseerr, &c.Bazarr, &c.Tautulli} {
		svc.URL = strings.TrimRight(strings.TrimSpace(svc.URL), "/")
		svc.APIKey = strings.TrimSpace(svc.APIKey)
	}
	c.Plex.URL = strings.TrimRight(strings.TrimSpace(c.Plex.URL), "/")
	c.Plex.Token = strings.TrimSpace(c.Plex.Token)

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the library database file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "library.db")
}

// FFprobeBinary returns the ffprobe executable name used for integrity probes.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// MapPath rewrites a server-side file path using the configured path mappings.
func (c *Config) MapPath(remote string) string {
	for from, to := range c.Plex.PathMappings {
		if from != "" && strings.HasPrefix(remote, from) {
			return to + strings.TrimPrefix(remote, from)
		}
	}
	return remote
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
