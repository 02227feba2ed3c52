// Package config handles environment variable and routing file configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cragr/email2snow-agent/internal/models"
)

// Config holds all application configuration loaded from environment variables
// plus the optional routing file.
type Config struct {
	// ServiceNow connection settings
	ServiceNowInstanceURL string
	ServiceNowUsername    string
	ServiceNowPassword    string

	// Caller handling
	CreateUnknownUsers bool

	// Incident search window
	SearchDaysBack int

	// HTTP server settings
	HTTPPort string

	// Tracker sweep interval
	TrackerInterval time.Duration

	// Logging
	LogLevel string

	// Category routing and fallback identities, loaded from the routing file.
	Routing RoutingConfig
}

// RoutingConfig maps classifier categories to ServiceNow groups, users and
// category values, and carries the fallback identities used when resolution
// fails. All maps may be empty.
type RoutingConfig struct {
	CategoryToGroup map[string]string `yaml:"category_to_group"`
	CategoryToUser  map[string]string `yaml:"category_to_user"`
	CategoryMapping map[string]string `yaml:"category_mapping"`
	Fallbacks       Fallbacks         `yaml:"fallbacks"`
}

// Fallbacks are the default identities applied when a lookup yields nothing.
type Fallbacks struct {
	DefaultCaller          models.Identity `yaml:"default_caller"`
	DefaultAssignmentGroup models.Identity `yaml:"default_assignment_group"`
}

// Load reads configuration from environment variables and, when
// ROUTING_CONFIG_PATH is set, the YAML routing file it points to.
// Returns an error if required fields are missing.
func Load() (*Config, error) {
	cfg := &Config{
		ServiceNowInstanceURL: normalizeInstanceURL(os.Getenv("SERVICENOW_INSTANCE_URL")),
		ServiceNowUsername:    os.Getenv("SERVICENOW_USERNAME"),
		ServiceNowPassword:    os.Getenv("SERVICENOW_PASSWORD"),
		CreateUnknownUsers:    getEnvBool("CREATE_UNKNOWN_USERS", false),
		SearchDaysBack:        getEnvInt("SEARCH_DAYS_BACK", 30),
		HTTPPort:              getEnvOrDefault("HTTP_PORT", "8080"),
		TrackerInterval:       getEnvDuration("TRACKER_INTERVAL", 10*time.Minute),
		LogLevel:              getEnvOrDefault("LOG_LEVEL", "info"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if path := os.Getenv("ROUTING_CONFIG_PATH"); path != "" {
		routing, err := LoadRouting(path)
		if err != nil {
			return nil, err
		}
		cfg.Routing = *routing
	}

	return cfg, nil
}

// LoadRouting parses a YAML routing file.
func LoadRouting(path string) (*RoutingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routing config: %w", err)
	}

	var routing RoutingConfig
	if err := yaml.Unmarshal(data, &routing); err != nil {
		return nil, fmt.Errorf("failed to parse routing config: %w", err)
	}

	return &routing, nil
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.ServiceNowInstanceURL == "" {
		return errors.New("SERVICENOW_INSTANCE_URL is required")
	}
	if c.ServiceNowUsername == "" {
		return errors.New("SERVICENOW_USERNAME is required")
	}
	if c.ServiceNowPassword == "" {
		return errors.New("SERVICENOW_PASSWORD is required")
	}
	return nil
}

// normalizeInstanceURL forces an https scheme and strips any trailing slash
// so endpoint paths can be appended directly.
func normalizeInstanceURL(raw string) string {
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "https://") && !strings.HasPrefix(raw, "http://") {
		raw = "https://" + raw
	}
	return strings.TrimRight(raw, "/")
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool parses a boolean environment variable, falling back on the
// default when unset or unparseable.
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// getEnvInt parses an integer environment variable, falling back on the
// default when unset or unparseable.
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// getEnvDuration parses a duration environment variable (e.g. "10m"),
// falling back on the default when unset or unparseable.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
