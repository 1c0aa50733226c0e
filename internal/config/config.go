// Package config defines the global configuration structure for the seatscan
// service. Configuration is loaded once at process initialization (Lambda cold
// start) and is immutable thereafter. It follows 12-Factor App principles by
// strictly separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup (fail fast).
package config

import "time"

// Config is the top-level configuration struct for the seatscan service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"seatscan-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server  ServerConfig
	AWS     AWSConfig
	Auth    AuthConfig
	Amadeus AmadeusConfig
	Sabre   SabreConfig
	Search  SearchConfig
}

// ServerConfig holds HTTP server configuration for local (non-Lambda) runs.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
// Table names carry the environment suffix already applied (e.g.
// seatscan-tiers-dev); the loader derives them from Environment when unset.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	TiersTable       string `envconfig:"TIERS_TABLE"`
	UsersTable       string `envconfig:"USERS_TABLE"`
	UsageTable       string `envconfig:"USAGE_TABLE"`
	GuestAccessTable string `envconfig:"GUEST_ACCESS_TABLE"`
	BookmarksTable   string `envconfig:"BOOKMARKS_TABLE"`

	AlertQueueURL string `envconfig:"SQS_ALERT_QUEUE"`

	// LocalStack support (empty in prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// AuthConfig holds token signing configuration. The signing secret must be at
// least 32 bytes; shorter values fail validation at boot.
type AuthConfig struct {
	JWTSecret     string        `envconfig:"JWT_SECRET" validate:"required,min=32"`
	TokenLifetime time.Duration `envconfig:"TOKEN_LIFETIME" default:"24h"`
}

// AmadeusConfig holds the REST/OAuth provider credentials.
type AmadeusConfig struct {
	APIKey    string        `envconfig:"AMADEUS_API_KEY" validate:"required"`
	APISecret string        `envconfig:"AMADEUS_API_SECRET" validate:"required"`
	Endpoint  string        `envconfig:"AMADEUS_ENDPOINT" validate:"required,url"`
	Timeout   time.Duration `envconfig:"AMADEUS_TIMEOUT" default:"30s"`
}

// SabreConfig holds the SOAP/session provider credentials.
type SabreConfig struct {
	Username string        `envconfig:"SABRE_USERNAME" validate:"required"`
	Password string        `envconfig:"SABRE_PASSWORD" validate:"required"`
	PCC      string        `envconfig:"SABRE_PCC" validate:"required"`
	Endpoint string        `envconfig:"SABRE_ENDPOINT" validate:"required,url"`
	Timeout  time.Duration `envconfig:"SABRE_TIMEOUT" default:"45s"`
}

// SearchConfig holds aggregation tuning.
type SearchConfig struct {
	MaxResultsCeiling int           `envconfig:"SEARCH_MAX_RESULTS_CEILING" default:"50"`
	BookmarkTTL       time.Duration `envconfig:"BOOKMARK_TTL" default:"720h"` // 30 days
}
