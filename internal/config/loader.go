// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs (period keys are UTC).
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Derive environment-suffixed table names for any left unset.
//  5. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
)

// ConfigError is a diagnostic error type returned by LoadConfig.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// LoadConfig loads, derives, and validates the service configuration.
// Missing required values are fatal: callers should exit on error.
func LoadConfig() (*Config, error) {
	time.Local = time.UTC

	// Best-effort: absent .env is normal outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{Type: ErrParsing, Message: "failed to process environment", Err: err}
	}

	applyTableDefaults(&cfg)

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, &ConfigError{Type: ErrValidation, Message: "configuration validation failed", Err: err}
	}

	return &cfg, nil
}

// applyTableDefaults fills in environment-suffixed table names for any the
// operator did not set explicitly.
func applyTableDefaults(cfg *Config) {
	env := cfg.Environment
	if env == "" {
		env = "dev"
	}
	if cfg.AWS.TiersTable == "" {
		cfg.AWS.TiersTable = "seatscan-tiers-" + env
	}
	if cfg.AWS.UsersTable == "" {
		cfg.AWS.UsersTable = "seatscan-users-" + env
	}
	if cfg.AWS.UsageTable == "" {
		cfg.AWS.UsageTable = "seatscan-usage-" + env
	}
	if cfg.AWS.GuestAccessTable == "" {
		cfg.AWS.GuestAccessTable = "seatscan-guest-access-" + env
	}
	if cfg.AWS.BookmarksTable == "" {
		cfg.AWS.BookmarksTable = "seatscan-bookmarks-" + env
	}
}
