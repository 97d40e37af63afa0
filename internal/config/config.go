package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cexll/jiralabel/internal/jira"
	"github.com/cexll/jiralabel/internal/labeling"
)

// Config holds all configuration for the labeling service
type Config struct {
	// Server settings
	Port            int
	SecretKey       string
	SessionLifetime time.Duration
	CookieSecure    bool

	// Jira settings
	JiraInstance         string
	ResearchProjectField string
	ChargeableField      string
	ChargeableID         string
	DefaultFilterID      string
	JiraTimeout          time.Duration
	JiraRateLimit        float64

	// Labeling settings
	KeywordsFile        string
	WorklogLookbackDays int
	MaxHierarchyIssues  int

	// Storage
	AuditDBPath string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := fromEnv()

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadClient loads the settings needed to talk to Jira directly. Unlike
// Load it does not require SECRET_KEY.
func LoadClient() (*Config, error) {
	cfg := fromEnv()
	if err := cfg.validateClient(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() *Config {
	return &Config{
		Port:                 getEnvInt("PORT", 8081),
		SecretKey:            normalizeSecret(os.Getenv("SECRET_KEY")),
		SessionLifetime:      time.Duration(getEnvInt("SESSION_LIFETIME_SECONDS", 3600)) * time.Second,
		CookieSecure:         getEnv("COOKIE_SECURE", "false") == "true",
		JiraInstance:         getEnv("JIRA_INSTANCE", "infosim.atlassian.net"),
		ResearchProjectField: getEnv("JIRA_FIELD_RESEARCH_PROJECT", "customfield_10097"),
		ChargeableField:      getEnv("JIRA_FIELD_CHARGEABLE", "customfield_10384"),
		ChargeableID:         getEnv("CHARGEABLE_ID", "10396"),
		DefaultFilterID:      getEnv("DEFAULT_FILTER_ID", "10456"),
		JiraTimeout:          time.Duration(getEnvInt("JIRA_TIMEOUT_SECONDS", 30)) * time.Second,
		JiraRateLimit:        getEnvFloat("JIRA_RATE_LIMIT", 10),
		KeywordsFile:         getEnv("KEYWORDS_FILE", ""),
		WorklogLookbackDays:  getEnvInt("WORKLOG_LOOKBACK_DAYS", 14),
		MaxHierarchyIssues:   getEnvInt("MAX_HIERARCHY_ISSUES", 25),
		AuditDBPath:          getEnv("AUDIT_DB_PATH", "data/updates.db"),
	}
}

// normalizeSecret strips surrounding quotes that .env files often carry.
func normalizeSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) >= 2 {
		if (trimmed[0] == '"' && trimmed[len(trimmed)-1] == '"') ||
			(trimmed[0] == '\'' && trimmed[len(trimmed)-1] == '\'') {
			trimmed = trimmed[1 : len(trimmed)-1]
		}
	}
	return trimmed
}

// validate checks that all required configuration is present
func (c *Config) validate() error {
	if c.SecretKey == "" {
		return fmt.Errorf("SECRET_KEY is required")
	}
	return c.validateClient()
}

func (c *Config) validateClient() error {
	if _, err := jira.BaseURL(c.JiraInstance); err != nil {
		return fmt.Errorf("JIRA_INSTANCE: %w", err)
	}
	if c.ChargeableID == "" {
		return fmt.Errorf("CHARGEABLE_ID must not be empty")
	}

	c.applyDefaults()
	return c.validateLimits()
}

func (c *Config) applyDefaults() {
	if c.Port <= 0 {
		c.Port = 8081
	}
	if c.SessionLifetime <= 0 {
		c.SessionLifetime = time.Hour
	}
	if c.JiraTimeout <= 0 {
		c.JiraTimeout = 30 * time.Second
	}
	if c.WorklogLookbackDays <= 0 {
		c.WorklogLookbackDays = 14
	}
	if c.MaxHierarchyIssues <= 0 {
		c.MaxHierarchyIssues = 25
	}
}

func (c *Config) validateLimits() error {
	if c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if c.JiraRateLimit < 0 {
		return fmt.Errorf("JIRA_RATE_LIMIT must be >= 0")
	}
	if c.MaxHierarchyIssues > 200 {
		return fmt.Errorf("MAX_HIERARCHY_ISSUES must be <= 200")
	}
	return nil
}

// JiraOptions returns the HTTP settings for per-user Jira clients.
func (c *Config) JiraOptions() jira.Options {
	return jira.Options{
		Timeout:   c.JiraTimeout,
		RateLimit: c.JiraRateLimit,
	}
}

// ServiceOptions returns the labeling settings for a user's session.
func (c *Config) ServiceOptions(actor string) labeling.Options {
	return labeling.Options{
		ResearchProjectField: c.ResearchProjectField,
		ChargeableField:      c.ChargeableField,
		DefaultFilterID:      c.DefaultFilterID,
		WorklogLookbackDays:  c.WorklogLookbackDays,
		MaxHierarchyIssues:   c.MaxHierarchyIssues,
		Actor:                actor,
	}
}

// getEnv gets environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets environment variable as int with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
