// Package config loads, normalizes, and validates Caretaker configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// ANTHROPIC_API_KEY. The Config type centralizes every knob the daemon and
// CLI need: media server credentials, management-service integrations,
// AI gateway budget and caps, and analysis thresholds.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
