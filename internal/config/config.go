// Package config provides YAML-based configuration loading for Quick Vocab.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Model providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverBolt     = "bolt"
	DriverAppwrite = "appwrite"
	DriverMemory   = "memory"
)

// Store write targets.
const (
	ModePrimary = "primary"
	ModeHistory = "history"
	ModeDual    = "dual"
)

// Duplicate document policies.
const (
	OnDuplicateUpsert = "upsert"
	OnDuplicateError  = "error"
)

// Failure modes for a failed model call.
const (
	FailureSilent = "silent"
	FailureNotice = "notice"
)

// Defaults applied by applyDefaults.
const (
	DefaultOpenAIBaseURL  = "https://generativelanguage.googleapis.com/v1beta/openai"
	DefaultOpenAIModel    = "gemini-1.5-flash"
	DefaultAnthropicModel = "claude-3-5-haiku-latest"
	DefaultListLimit      = 100
	DefaultThinkingText   = "Thinking..."
	DefaultErrorMessage   = "Sorry, something went wrong. Please try again."
)

// Config is the top-level Quick Vocab configuration, loaded from quickvocab.yaml.
type Config struct {
	Model  ModelConfig  `yaml:"model"`
	Store  StoreConfig  `yaml:"store"`
	Chat   ChatConfig   `yaml:"chat"`
	Server ServerConfig `yaml:"server"`
	Digest DigestConfig `yaml:"digest"`
}

// ModelConfig selects and configures the language model provider.
type ModelConfig struct {
	Provider       string `yaml:"provider"`
	Name           string `yaml:"name"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	MaxTokens      int    `yaml:"max_tokens"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// StoreConfig describes where conversation history is persisted. The
// endpoint, project and API key settings address a hosted document service;
// the database and collection identifiers scope documents in every driver.
type StoreConfig struct {
	Driver            string      `yaml:"driver"`
	Endpoint          string      `yaml:"endpoint"`
	ProjectID         string      `yaml:"project_id"`
	APIKey            string      `yaml:"api_key"`
	DatabaseID        string      `yaml:"database_id"`
	CollectionID      string      `yaml:"collection_id"`
	HistoryDatabase   string      `yaml:"history_database"`
	HistoryCollection string      `yaml:"history_collection"`
	Mode              string      `yaml:"mode"`
	OnDuplicate       string      `yaml:"on_duplicate"`
	ListLimit         int         `yaml:"list_limit"`
	Path              string      `yaml:"path"`
	MySQL             MySQLConfig `yaml:"mysql"`
}

// MySQLConfig holds connection settings for a MySQL-compatible server.
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Database string `yaml:"database"`
}

// ChatConfig tunes the conversation controller.
type ChatConfig struct {
	FailureMode              string `yaml:"failure_mode"`
	ErrorMessage             string `yaml:"error_message"`
	RollbackOnPersistFailure bool   `yaml:"rollback_on_persist_failure"`
	RevealIntervalMS         int    `yaml:"reveal_interval_ms"`
	ThinkingText             string `yaml:"thinking_text"`
}

// ServerConfig configures the web widget server.
type ServerConfig struct {
	Port            int `yaml:"port"`
	MaxClients      int `yaml:"max_clients"`
	IdleTimeoutMins int `yaml:"idle_timeout_minutes"`
}

// DigestConfig configures the scheduled vocabulary digest.
type DigestConfig struct {
	Schedule          string `yaml:"schedule"`
	LookbackHours     int    `yaml:"lookback_hours"`
	SlackWebhookURL   string `yaml:"slack_webhook_url"`
	DiscordWebhookURL string `yaml:"discord_webhook_url"`
}

// LookupFunc reports the value of an environment variable.
type LookupFunc func(key string) (string, bool)

// Load reads a YAML config file from path, applies environment overrides and
// returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return ParseEnv(data, os.LookupEnv)
}

// Default returns the default configuration with environment overrides
// applied, for runs without a config file.
func Default() (*Config, error) {
	return ParseEnv(nil, os.LookupEnv)
}

// Parse unmarshals YAML bytes into a validated Config without consulting the
// environment.
func Parse(data []byte) (*Config, error) {
	return ParseEnv(data, nil)
}

// ParseEnv unmarshals YAML bytes, applies overrides from lookup (when non-nil)
// and returns a validated Config.
func ParseEnv(data []byte, lookup LookupFunc) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if lookup != nil {
		if err := cfg.applyEnv(lookup); err != nil {
			return nil, err
		}
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides settings from environment variables.
func (c *Config) applyEnv(lookup LookupFunc) error {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}

	set(&c.Store.Endpoint, "QUICKVOCAB_ENDPOINT")
	set(&c.Store.ProjectID, "QUICKVOCAB_PROJECT_ID")
	set(&c.Store.APIKey, "QUICKVOCAB_API_KEY")
	set(&c.Store.DatabaseID, "QUICKVOCAB_DATABASE_ID")
	set(&c.Store.CollectionID, "QUICKVOCAB_COLLECTION_ID")
	set(&c.Store.HistoryDatabase, "QUICKVOCAB_HISTORY_DATABASE")
	set(&c.Store.HistoryCollection, "QUICKVOCAB_HISTORY_COLLECTION")
	set(&c.Store.Driver, "QUICKVOCAB_STORE_DRIVER")
	set(&c.Store.Path, "QUICKVOCAB_STORE_PATH")
	set(&c.Model.Provider, "QUICKVOCAB_MODEL_PROVIDER")
	set(&c.Digest.SlackWebhookURL, "QUICKVOCAB_SLACK_WEBHOOK_URL")
	set(&c.Digest.DiscordWebhookURL, "QUICKVOCAB_DISCORD_WEBHOOK_URL")

	if c.Model.APIKey == "" {
		if c.Model.Provider == ProviderAnthropic {
			set(&c.Model.APIKey, "QUICKVOCAB_MODEL_API_KEY", "ANTHROPIC_API_KEY")
		} else {
			set(&c.Model.APIKey, "QUICKVOCAB_MODEL_API_KEY", "GEMINI_API_KEY")
		}
	} else {
		set(&c.Model.APIKey, "QUICKVOCAB_MODEL_API_KEY")
	}

	if v, ok := lookup("QUICKVOCAB_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: QUICKVOCAB_PORT: invalid port %q", v)
		}
		c.Server.Port = port
	}
	return nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Model.Provider == "" {
		c.Model.Provider = ProviderOpenAI
	}
	if c.Model.Name == "" {
		if c.Model.Provider == ProviderAnthropic {
			c.Model.Name = DefaultAnthropicModel
		} else {
			c.Model.Name = DefaultOpenAIModel
		}
	}
	if c.Model.BaseURL == "" && c.Model.Provider == ProviderOpenAI {
		c.Model.BaseURL = DefaultOpenAIBaseURL
	}
	if c.Model.MaxTokens == 0 {
		c.Model.MaxTokens = 1024
	}
	if c.Model.TimeoutSeconds == 0 {
		c.Model.TimeoutSeconds = 60
	}

	if c.Store.Driver == "" {
		c.Store.Driver = DriverSQLite
	}
	if c.Store.Path == "" {
		switch c.Store.Driver {
		case DriverSQLite:
			c.Store.Path = "quickvocab.db"
		case DriverBolt:
			c.Store.Path = "quickvocab.bolt"
		}
	}
	if c.Store.DatabaseID == "" {
		c.Store.DatabaseID = "quickvocab"
	}
	if c.Store.CollectionID == "" {
		c.Store.CollectionID = "conversations"
	}
	if c.Store.HistoryDatabase == "" {
		c.Store.HistoryDatabase = c.Store.DatabaseID
	}
	if c.Store.HistoryCollection == "" {
		c.Store.HistoryCollection = "history"
	}
	if c.Store.Mode == "" {
		c.Store.Mode = ModePrimary
	}
	if c.Store.OnDuplicate == "" {
		c.Store.OnDuplicate = OnDuplicateUpsert
	}
	if c.Store.ListLimit == 0 {
		c.Store.ListLimit = DefaultListLimit
	}
	if c.Store.MySQL.Host == "" {
		c.Store.MySQL.Host = "127.0.0.1"
	}
	if c.Store.MySQL.Port == 0 {
		c.Store.MySQL.Port = 3306
	}
	if c.Store.MySQL.User == "" {
		c.Store.MySQL.User = "root"
	}
	if c.Store.MySQL.Database == "" {
		c.Store.MySQL.Database = "quickvocab"
	}

	if c.Chat.FailureMode == "" {
		c.Chat.FailureMode = FailureSilent
	}
	if c.Chat.ErrorMessage == "" {
		c.Chat.ErrorMessage = DefaultErrorMessage
	}
	if c.Chat.RevealIntervalMS == 0 {
		c.Chat.RevealIntervalMS = 30
	}
	if c.Chat.ThinkingText == "" {
		c.Chat.ThinkingText = DefaultThinkingText
	}

	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.MaxClients == 0 {
		c.Server.MaxClients = 1000
	}
	if c.Server.IdleTimeoutMins == 0 {
		c.Server.IdleTimeoutMins = 30
	}

	if c.Digest.Schedule == "" {
		c.Digest.Schedule = "0 18 * * *"
	}
	if c.Digest.LookbackHours == 0 {
		c.Digest.LookbackHours = 24
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	oneOf := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Sprintf("%s must be one of %s (got %q)", field, strings.Join(allowed, ", "), value))
	}

	oneOf("model.provider", c.Model.Provider, ProviderOpenAI, ProviderAnthropic)
	oneOf("store.driver", c.Store.Driver, DriverSQLite, DriverMySQL, DriverBolt, DriverAppwrite, DriverMemory)
	oneOf("store.mode", c.Store.Mode, ModePrimary, ModeHistory, ModeDual)
	oneOf("store.on_duplicate", c.Store.OnDuplicate, OnDuplicateUpsert, OnDuplicateError)
	oneOf("chat.failure_mode", c.Chat.FailureMode, FailureSilent, FailureNotice)

	if c.Model.MaxTokens < 0 {
		errs = append(errs, "model.max_tokens must be positive")
	}
	if c.Model.TimeoutSeconds < 0 {
		errs = append(errs, "model.timeout_seconds must be positive")
	}
	if c.Store.ListLimit < 0 {
		errs = append(errs, "store.list_limit must be positive")
	}
	if c.Store.Driver == DriverAppwrite {
		if c.Store.Endpoint == "" {
			errs = append(errs, "store.endpoint is required for the appwrite driver")
		}
		if c.Store.ProjectID == "" {
			errs = append(errs, "store.project_id is required for the appwrite driver")
		}
	}
	if c.Chat.RevealIntervalMS < 0 {
		errs = append(errs, "chat.reveal_interval_ms must be positive")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.MaxClients < 0 {
		errs = append(errs, "server.max_clients must be positive")
	}
	if c.Server.IdleTimeoutMins < 0 {
		errs = append(errs, "server.idle_timeout_minutes must be positive")
	}
	if c.Digest.LookbackHours < 0 {
		errs = append(errs, "digest.lookback_hours must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
