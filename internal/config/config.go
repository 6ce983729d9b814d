// Package config provides centralized configuration management for the importer.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	FHIR     FHIRConfig
	Input    InputConfig
	Import   ImportConfig
	Database DatabaseConfig
	Sandbox  SandboxConfig
	Logging  LoggingConfig
}

// FHIRConfig holds settings for the target FHIR server.
type FHIRConfig struct {
	// BaseURL is the FHIR base; resources are posted to BaseURL/<type>
	BaseURL string `env:"FHIR_BASE_URL" default:"http://localhost:8080/fhir"`

	// Timeout bounds each submission request (default: 0, no timeout)
	Timeout time.Duration `env:"FHIR_TIMEOUT" default:"0s"`

	// CPFSystem is the identifier system URI stamped on every Patient
	CPFSystem string `env:"FHIR_CPF_SYSTEM" default:"http://www.saude.gov.br/fhir/r4/NamingSystem/cpf"`

	// APIKey is sent as X-API-Key on every submission when set
	APIKey string `env:"FHIR_API_KEY"`
}

// InputConfig describes the roster file and its columns.
type InputConfig struct {
	// Path is the roster file to import (default: patients.csv)
	Path string `env:"INPUT_PATH" default:"patients.csv"`

	// Delimiter is the single-character field separator (default: ,)
	Delimiter string `env:"CSV_DELIMITER" default:","`

	// Encoding forces a charset and skips detection when set
	Encoding string `env:"INPUT_ENCODING"`

	// MinConfidence is the detector confidence (0-100) under which a warning is logged
	MinConfidence int `env:"ENCODING_MIN_CONFIDENCE" default:"50"`

	Columns ColumnConfig
}

// ColumnConfig holds the header label of each roster field.
// Labels are matched exactly, including case and accents.
type ColumnConfig struct {
	Name        string `env:"COLUMN_NAME" default:"Nome"`
	CPF         string `env:"COLUMN_CPF" default:"CPF"`
	Gender      string `env:"COLUMN_GENDER" default:"Gênero"`
	BirthDate   string `env:"COLUMN_BIRTH_DATE" default:"Data de Nascimento"`
	Phone       string `env:"COLUMN_PHONE" default:"Telefone"`
	Country     string `env:"COLUMN_COUNTRY" default:"País de Nascimento"`
	Observation string `env:"COLUMN_OBSERVATION" default:"Observação"`
}

// ImportConfig holds pipeline behavior settings.
type ImportConfig struct {
	// RowErrorPolicy decides what a bad birth date or malformed row does: abort or skip (default: abort)
	RowErrorPolicy string `env:"ROW_ERROR_POLICY" default:"abort"`

	// DryRun transforms and logs rows without submitting anything (default: false)
	DryRun bool `env:"DRY_RUN" default:"false"`
}

// DatabaseConfig holds the optional run-history database settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string; history is disabled when empty
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 0)
	MinConns int `env:"DB_MIN_CONNS" default:"0"`
}

// SandboxConfig holds settings for the local mock FHIR server.
type SandboxConfig struct {
	// Host is the interface to bind to (default: 127.0.0.1)
	Host string `env:"SANDBOX_HOST" default:"127.0.0.1"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SANDBOX_PORT" default:"8080"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 10s)
	ShutdownTimeout time.Duration `env:"SANDBOX_SHUTDOWN_TIMEOUT" default:"10s"`

	// APIKeys, when set, are the accepted X-API-Key values (comma-separated)
	APIKeys []string `env:"SANDBOX_API_KEYS"`

	// RateLimit is the number of requests per minute allowed per client IP (default: 0, unlimited)
	RateLimit int `env:"SANDBOX_RATE_LIMIT" default:"0"`

	// TrustedProxies are CIDRs whose X-Real-IP / X-Forwarded-For headers are believed
	TrustedProxies []string `env:"SANDBOX_TRUSTED_PROXIES" default:"127.0.0.1/32,::1/128"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// HistoryEnabled reports whether run history should be written to Postgres.
func (c *DatabaseConfig) HistoryEnabled() bool {
	return c.URL != ""
}

// RequireAPIKey reports whether the sandbox checks X-API-Key.
func (c *SandboxConfig) RequireAPIKey() bool {
	return len(c.APIKeys) > 0
}

// Addr returns the sandbox listen address in host:port format.
func (c *SandboxConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// DelimiterRune returns the configured delimiter as a rune.
// Call only after Validate has accepted the config.
func (c *InputConfig) DelimiterRune() rune {
	for _, r := range c.Delimiter {
		return r
	}
	return ','
}
