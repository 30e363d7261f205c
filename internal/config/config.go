// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for parley.
//
// Configuration lives in a single TOML file with sensible defaults,
// environment variable overrides, and validation.
//
// Sources (in order of precedence):
//   - PARLEY_* environment overrides
//   - <user config dir>/parley/config.toml
//   - Built-in defaults
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/jeranaias/parley/internal/util"
)

// =============================================================================
// CONFIG STRUCTURE
// =============================================================================

// Config represents the complete parley configuration.
type Config struct {
	// APIKey authenticates requests to the chat completions endpoint.
	APIKey string `toml:"api_key"`
	// BaseURL is the base URL of the OpenAI-compatible endpoint.
	BaseURL string `toml:"base_url"`
	// Model is the model identifier sent with every request.
	Model string `toml:"model"`
	// Temperature is the sampling temperature (0.0-2.0). Zero selects the default.
	Temperature float64 `toml:"temperature"`
	// TopP is the nucleus sampling parameter (0.0-1.0]. Zero selects the default.
	TopP float64 `toml:"top_p"`
	// DBPath is the path of the chat history database.
	// Empty selects <user config dir>/parley/chats.db.
	DBPath string `toml:"db_path"`
	// MaxAttachmentMB caps the size of a single attachment in megabytes.
	MaxAttachmentMB int `toml:"max_attachment_mb"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
// The default endpoint is Google's OpenAI-compatible Gemini surface.
func Default() *Config {
	return &Config{
		APIKey:          "",
		BaseURL:         "https://generativelanguage.googleapis.com/v1beta/openai/",
		Model:           "gemini-2.5-pro-exp-03-25",
		Temperature:     0.1,
		TopP:            1.0,
		DBPath:          DefaultDBPath(),
		MaxAttachmentMB: 20,
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the parley configuration directory path.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not determine config directory: %w", err)
	}
	return filepath.Join(base, "parley"), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DefaultDBPath returns the default chat database path.
// Falls back to the working directory when no config directory is available.
func DefaultDBPath() string {
	dir, err := ConfigDir()
	if err != nil {
		return "chats.db"
	}
	return filepath.Join(dir, "chats.db")
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files should be 0600 (owner read/write only) to protect API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err // File doesn't exist or not accessible
	}

	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}

	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file, falling back to defaults
// when no file exists. Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	path, err := ConfigPath()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			if err := decodeFile(cfg, path); err != nil {
				loadErr = fmt.Errorf("failed to load config: %w", err)
			} else {
				cfg.ApplyEnvOverrides()
				if err := cfg.Validate(); err != nil {
					return nil, fmt.Errorf("invalid config: %w", err)
				}
				return cfg, nil
			}
		}
	}

	// Apply environment overrides to defaults
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Return defaults (with any load error for informational purposes)
	return cfg, loadErr
}

// LoadFromPath loads configuration from a specific file path with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}
	if err := decodeFile(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// decodeFile decodes a TOML config file into cfg and fills missing values.
// SECURITY: Checks and fixes file permissions on load.
func decodeFile(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		// Log warning but don't fail - permissions might not be fixable on all systems
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return fillDefaults(cfg)
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) error {
	defaults := Default()

	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaults.Temperature
	}
	if cfg.TopP == 0 {
		cfg.TopP = defaults.TopP
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaults.DBPath
	}
	if cfg.MaxAttachmentMB == 0 {
		cfg.MaxAttachmentMB = defaults.MaxAttachmentMB
	}

	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default config file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(cfg, path)
}

// SaveTo saves the configuration to a TOML file.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# parley configuration file")
	fmt.Fprintln(&buf, "# Generated by parley - edit with care")
	fmt.Fprintln(&buf, "#")
	fmt.Fprintln(&buf, "# Documentation: https://github.com/jeranaias/parley")
	fmt.Fprintln(&buf, "")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   "base_url",
				Message: fmt.Sprintf("invalid URL: %v", err),
			})
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, ValidationError{
				Field:   "base_url",
				Message: fmt.Sprintf("unsupported scheme '%s', must be http or https", u.Scheme),
			})
		}
	}

	if c.Model == "" {
		errs = append(errs, ValidationError{
			Field:   "model",
			Message: "must not be empty",
		})
	}

	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "temperature",
			Message: fmt.Sprintf("must be between 0.0 and 2.0, got %g", c.Temperature),
		})
	}

	if c.TopP < 0 || c.TopP > 1 {
		errs = append(errs, ValidationError{
			Field:   "top_p",
			Message: fmt.Sprintf("must be between 0.0 and 1.0, got %g", c.TopP),
		})
	}

	if c.MaxAttachmentMB < 1 || c.MaxAttachmentMB > 512 {
		errs = append(errs, ValidationError{
			Field:   "max_attachment_mb",
			Message: fmt.Sprintf("must be 1-512, got %d", c.MaxAttachmentMB),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - PARLEY_API_KEY: overrides api_key
//   - PARLEY_BASE_URL: overrides base_url
//   - PARLEY_MODEL: overrides model
//   - GOOGLE_API_KEY: fallback for api_key when nothing else set it
func (c *Config) ApplyEnvOverrides() {
	// PARLEY_API_KEY
	if key := os.Getenv("PARLEY_API_KEY"); key != "" {
		c.APIKey = key
	}

	// PARLEY_BASE_URL
	if base := os.Getenv("PARLEY_BASE_URL"); base != "" {
		c.BaseURL = base
	}

	// PARLEY_MODEL
	if model := os.Getenv("PARLEY_MODEL"); model != "" {
		c.Model = model
	}

	// GOOGLE_API_KEY applies only when the key is still unset; the default
	// endpoint is Gemini's OpenAI-compatible surface.
	if c.APIKey == "" {
		if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
			c.APIKey = key
		}
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// String returns a string representation of the config for debugging.
// SECURITY: Redacts the API key to prevent accidental exposure in logs,
// error messages, or debug output.
func (c *Config) String() string {
	safe := *c
	if safe.APIKey != "" {
		safe.APIKey = "[REDACTED]"
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(safe); err != nil {
		return fmt.Sprintf("config (unencodable: %v)", err)
	}
	return buf.String()
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	// Use sync.Once to ensure initialization happens exactly once
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			// Log but don't fail - use defaults
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		if cfg == nil {
			cfg = Default()
		}
		globalConfigMu.Lock()
		globalConfig = cfg
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
// This should only be used in tests to reset state between test runs.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
