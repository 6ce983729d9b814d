package config

import (
	"fmt"
	"net/url"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
// Command-line overrides are applied by the caller, which should call
// Validate again afterwards.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		// Recurse into nested structs
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		// Get tags
		envName := field.Tag.Get("env")
		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		if envName == "" {
			continue
		}

		// Try primary env var, then alternate
		value := os.Getenv(envName)
		if value == "" && envAlt != "" {
			value = os.Getenv(envAlt)
		}

		// Apply default if not set
		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		// Set the field value
		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		// Handle time.Duration specially
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			// Split comma-separated values, trim whitespace
			parts := strings.Split(value, ",")
			result := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					result = append(result, p)
				}
			}
			field.Set(reflect.ValueOf(result))
		} else {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// FHIR validation
	if c.FHIR.BaseURL == "" {
		errs = append(errs, "FHIR_BASE_URL is required")
	} else if u, err := url.Parse(c.FHIR.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("FHIR_BASE_URL (%q) must be an absolute http(s) URL", c.FHIR.BaseURL))
	}
	if c.FHIR.Timeout < 0 {
		errs = append(errs, "FHIR_TIMEOUT must be non-negative")
	}
	if c.FHIR.CPFSystem == "" {
		errs = append(errs, "FHIR_CPF_SYSTEM is required")
	}

	// Input validation
	if c.Input.Path == "" {
		errs = append(errs, "INPUT_PATH is required")
	}
	if utf8.RuneCountInString(c.Input.Delimiter) != 1 {
		errs = append(errs, fmt.Sprintf("CSV_DELIMITER (%q) must be a single character", c.Input.Delimiter))
	} else if r := c.Input.DelimiterRune(); r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		errs = append(errs, fmt.Sprintf("CSV_DELIMITER (%q) is not a valid separator", c.Input.Delimiter))
	}
	if c.Input.MinConfidence < 0 || c.Input.MinConfidence > 100 {
		errs = append(errs, fmt.Sprintf("ENCODING_MIN_CONFIDENCE (%d) must be 0-100", c.Input.MinConfidence))
	}
	cols := c.Input.Columns
	labels := map[string]string{
		"COLUMN_NAME":        cols.Name,
		"COLUMN_CPF":         cols.CPF,
		"COLUMN_GENDER":      cols.Gender,
		"COLUMN_BIRTH_DATE":  cols.BirthDate,
		"COLUMN_PHONE":       cols.Phone,
		"COLUMN_COUNTRY":     cols.Country,
		"COLUMN_OBSERVATION": cols.Observation,
	}
	seen := make(map[string]string, len(labels))
	for _, env := range sortedKeys(labels) {
		label := strings.TrimSpace(labels[env])
		if label == "" {
			errs = append(errs, fmt.Sprintf("%s must not be empty", env))
			continue
		}
		if other, dup := seen[label]; dup {
			errs = append(errs, fmt.Sprintf("%s and %s both use label %q", other, env, label))
			continue
		}
		seen[label] = env
	}

	// Import validation
	validPolicies := map[string]bool{"abort": true, "skip": true}
	if !validPolicies[strings.ToLower(strings.TrimSpace(c.Import.RowErrorPolicy))] {
		errs = append(errs, fmt.Sprintf("ROW_ERROR_POLICY (%q) must be one of: abort, skip", c.Import.RowErrorPolicy))
	}

	// Database validation (only when history is enabled)
	if c.Database.HistoryEnabled() {
		if c.Database.MaxConns < c.Database.MinConns {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
				c.Database.MaxConns, c.Database.MinConns))
		}
		if c.Database.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
		if c.Database.MinConns < 0 {
			errs = append(errs, "DB_MIN_CONNS must be non-negative")
		}
	}

	// Sandbox validation
	if c.Sandbox.Port <= 0 || c.Sandbox.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SANDBOX_PORT (%d) must be 1-65535", c.Sandbox.Port))
	}
	if c.Sandbox.ShutdownTimeout <= 0 {
		errs = append(errs, "SANDBOX_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Sandbox.RateLimit < 0 {
		errs = append(errs, "SANDBOX_RATE_LIMIT must be non-negative")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// The database URL and API keys are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	apiKey := "none"
	if c.FHIR.APIKey != "" {
		apiKey = "[MASKED]"
	}
	b.WriteString(fmt.Sprintf("FHIR: {BaseURL: %q, Timeout: %s, APIKey: %s}, ", c.FHIR.BaseURL, c.FHIR.Timeout, apiKey))
	b.WriteString(fmt.Sprintf("Input: {Path: %q, Delimiter: %q, Encoding: %q}, ",
		c.Input.Path, c.Input.Delimiter, c.Input.Encoding))
	b.WriteString(fmt.Sprintf("Import: {RowErrorPolicy: %q, DryRun: %v}, ",
		c.Import.RowErrorPolicy, c.Import.DryRun))
	if c.Database.HistoryEnabled() {
		b.WriteString(fmt.Sprintf("Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
			c.Database.MaxConns, c.Database.MinConns))
	} else {
		b.WriteString("Database: {disabled}, ")
	}
	b.WriteString(fmt.Sprintf("Sandbox: {Addr: %q, APIKeys: %d}, ", c.Sandbox.Addr(), len(c.Sandbox.APIKeys)))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
