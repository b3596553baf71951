package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePlex(); err != nil {
		return err
	}
	if err := c.validateServices(); err != nil {
		return err
	}
	if err := c.validateAI(); err != nil {
		return err
	}
	if err := c.validateScan(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePlex() error {
	if c.Plex.URL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/caretaker/config.toml"
		}
		return fmt.Errorf("plex.url is required; edit %s (create with 'caretaker config init')", defaultPath)
	}
	if c.Plex.Token == "" {
		return errors.New("plex.token is required")
	}
	return nil
}

func (c *Config) validateServices() error {
	named := map[string]Service{
		"radarr":    c.Radarr,
		"sonarr":    c.Sonarr,
		"overseerr": c.Overseerr,
		"bazarr":    c.Bazarr,
		"tautulli":  c.Tautulli,
	}
	for name, svc := range named {
		if !svc.Enabled {
			continue
		}
		if strings.TrimSpace(svc.URL) == "" {
			return fmt.Errorf("%s.url must be set when %s.enabled is true", name, name)
		}
		if strings.TrimSpace(svc.APIKey) == "" {
			return fmt.Errorf("%s.api_key must be set when %s.enabled is true", name, name)
		}
	}
	return nil
}

func (c *Config) validateAI() error {
	if !c.AI.Enabled {
		return nil
	}
	if c.AI.MonthlyBudgetUSD < 0 {
		return errors.New("ai.monthly_budget_usd must not be negative")
	}
	if c.AI.AdjustmentCap < 0 || c.AI.AdjustmentCap > 10 {
		return errors.New("ai.adjustment_cap must be between 0 and 10")
	}
	if c.AI.TimeoutSeconds <= 0 {
		return errors.New("ai.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateScan() error {
	for tier, bounds := range c.Scan.SizeThresholds {
		if bounds.MinGBPerHour < 0 || bounds.MaxGBPerHour <= 0 {
			return fmt.Errorf("scan.size_thresholds[%q] bounds must be positive", tier)
		}
		if bounds.MinGBPerHour >= bounds.MaxGBPerHour {
			return fmt.Errorf("scan.size_thresholds[%q] min must be below max", tier)
		}
	}
	if c.Scan.IntegrityWorkers <= 0 {
		return errors.New("scan.integrity_workers must be positive")
	}
	if c.Scan.ItemRetryAttempts <= 0 {
		return errors.New("scan.item_retry_attempts must be positive")
	}
	if c.Scan.MaxRecommendationsPerKind < 0 {
		return errors.New("scan.max_recommendations_per_kind must not be negative")
	}
	if c.Scan.DuplicateSizeCeilingFactor < 1 {
		return errors.New("scan.duplicate_size_ceiling_factor must be at least 1")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.ServiceWorkers <= 0 {
		return errors.New("workflow.service_workers must be positive")
	}
	if c.Workflow.ServiceRateLimit <= 0 {
		return errors.New("workflow.service_rate_limit must be positive")
	}
	if c.Workflow.RequestTimeout <= 0 {
		return errors.New("workflow.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
