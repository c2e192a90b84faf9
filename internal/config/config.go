// Package config handles Aide configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration structure for Aide.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Database settings
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Classifier settings
	Classifier ClassifierConfig `yaml:"classifier" mapstructure:"classifier"`

	// LLM provider settings
	LLM LLMConfig `yaml:"llm" mapstructure:"llm"`

	// Engine settings for multi-step tasks
	Engine EngineConfig `yaml:"engine" mapstructure:"engine"`

	// Vault is the human review surface
	Vault VaultConfig `yaml:"vault" mapstructure:"vault"`

	// Cache settings for read-only query results
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// Server settings for the HTTP API
	Server ServerConfig `yaml:"server" mapstructure:"server"`
}

// GlobalConfig contains global Aide settings.
type GlobalConfig struct {
	// DataDir is where Aide stores its data (default: ~/.local/share/aide).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// DefaultUser is the user id assumed by the CLI.
	DefaultUser string `yaml:"default_user" mapstructure:"default_user"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" mapstructure:"path"`

	// MaxConnections is the maximum number of database connections.
	MaxConnections int `yaml:"max_connections" mapstructure:"max_connections"`

	// BusyTimeout is how long to wait for a locked database (milliseconds).
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// ClassifierConfig contains intent classification settings.
type ClassifierConfig struct {
	// ConfidenceThreshold gates actionable intents (default 0.7).
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`

	// RemoteTimeoutSeconds bounds the remote classification call.
	RemoteTimeoutSeconds int `yaml:"remote_timeout_seconds" mapstructure:"remote_timeout_seconds"`

	// HistoryTurns is how many prior turns travel with the utterance.
	HistoryTurns int `yaml:"history_turns" mapstructure:"history_turns"`
}

// LLMConfig contains LLM provider settings.
type LLMConfig struct {
	// BaseURL is the provider endpoint.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Model is the model identifier.
	Model string `yaml:"model" mapstructure:"model"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env" mapstructure:"api_key_env"`

	// MaxTokens caps completion length.
	MaxTokens int `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// EngineConfig contains multi-step engine settings.
type EngineConfig struct {
	// MaxIterations bounds a task's loop (default 10).
	MaxIterations int `yaml:"max_iterations" mapstructure:"max_iterations"`

	// IterationDelaySeconds is the pause between iterations (default 2).
	IterationDelaySeconds int `yaml:"iteration_delay_seconds" mapstructure:"iteration_delay_seconds"`

	// TimeoutMinutes is the wall-clock budget per task (default 5).
	TimeoutMinutes int `yaml:"timeout_minutes" mapstructure:"timeout_minutes"`

	// MaxConsecutiveErrors aborts the task once reached (default 3).
	MaxConsecutiveErrors int `yaml:"max_consecutive_errors" mapstructure:"max_consecutive_errors"`

	// CompletionToken is the sentinel the step executor emits when done.
	CompletionToken string `yaml:"completion_token" mapstructure:"completion_token"`
}

// VaultConfig contains review surface settings.
type VaultConfig struct {
	// Path is the vault root directory.
	Path string `yaml:"path" mapstructure:"path"`
}

// CacheConfig contains read-through cache settings.
type CacheConfig struct {
	// Dir is the cache directory.
	Dir string `yaml:"dir" mapstructure:"dir"`

	// TTLHours is the freshness window (default 24).
	TTLHours int `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// ServerConfig contains HTTP API settings.
type ServerConfig struct {
	// Host to listen on.
	Host string `yaml:"host" mapstructure:"host"`

	// Port to listen on.
	Port int `yaml:"port" mapstructure:"port"`

	// JWTSecret enables bearer auth when non-empty.
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Global: GlobalConfig{
			DataDir:     dataDir,
			DefaultUser: "default",
		},
		Database: DatabaseConfig{
			Path:           filepath.Join(dataDir, "aide.db"),
			MaxConnections: 4,
			BusyTimeoutMs:  5000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Classifier: ClassifierConfig{
			ConfidenceThreshold:  0.7,
			RemoteTimeoutSeconds: 5,
			HistoryTurns:         5,
		},
		LLM: LLMConfig{
			BaseURL:   "https://api.anthropic.com/v1/messages",
			Model:     "claude-3-5-sonnet-20240620",
			APIKeyEnv: "ANTHROPIC_API_KEY",
			MaxTokens: 1024,
		},
		Engine: EngineConfig{
			MaxIterations:         10,
			IterationDelaySeconds: 2,
			TimeoutMinutes:        5,
			MaxConsecutiveErrors:  3,
			CompletionToken:       "TASK_COMPLETE",
		},
		Vault: VaultConfig{
			Path: filepath.Join(dataDir, "vault"),
		},
		Cache: CacheConfig{
			Dir:      filepath.Join(dataDir, "cache"),
			TTLHours: 24,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8321,
		},
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Classifier.ConfidenceThreshold < 0 || c.Classifier.ConfidenceThreshold > 1 {
		return fmt.Errorf("classifier.confidence_threshold must be in [0,1]")
	}
	if c.Engine.MaxIterations <= 0 {
		return fmt.Errorf("engine.max_iterations must be positive")
	}
	if c.Engine.MaxConsecutiveErrors <= 0 {
		return fmt.Errorf("engine.max_consecutive_errors must be positive")
	}
	if c.Engine.CompletionToken == "" {
		return fmt.Errorf("engine.completion_token is required")
	}
	if c.Vault.Path == "" {
		return fmt.Errorf("vault.path is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid port")
	}
	return nil
}

// BusyTimeout returns the SQLite busy timeout as a duration.
func (c *DatabaseConfig) BusyTimeout() time.Duration {
	return time.Duration(c.BusyTimeoutMs) * time.Millisecond
}

// RemoteTimeout returns the classifier timeout as a duration.
func (c *ClassifierConfig) RemoteTimeout() time.Duration {
	return time.Duration(c.RemoteTimeoutSeconds) * time.Second
}

// IterationDelay returns the inter-iteration delay as a duration.
func (c *EngineConfig) IterationDelay() time.Duration {
	return time.Duration(c.IterationDelaySeconds) * time.Second
}

// Timeout returns the wall-clock budget as a duration.
func (c *EngineConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMinutes) * time.Minute
}

// TTL returns the cache freshness window as a duration.
func (c *CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".aide"
	}
	return filepath.Join(home, ".local", "share", "aide")
}
