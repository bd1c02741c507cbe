package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for promptevo
type Config struct {
	LLM       LLMConfig       `json:"llm" yaml:"llm"`
	Evolution EvolutionConfig `json:"evolution" yaml:"evolution"`
	Retry     RetryConfig     `json:"retry" yaml:"retry"`
	Dataset   DatasetConfig   `json:"dataset" yaml:"dataset"`
	Output    OutputConfig    `json:"output" yaml:"output"`
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	Server    ServerConfig    `json:"server" yaml:"server"`
	Tracing   TracingConfig   `json:"tracing" yaml:"tracing"`
	Log       LogConfig       `json:"log" yaml:"log"`
}

// LLMConfig holds chat completion API configuration (OpenAI or Azure OpenAI)
type LLMConfig struct {
	Provider   string `json:"provider" yaml:"provider"` // "openai" or "azure"
	URL        string `json:"url" yaml:"url"`
	APIKey     string `json:"api_key" yaml:"api_key"`
	APIVersion string `json:"api_version" yaml:"api_version"` // Azure only
	// Model is the model name, or the deployment name for Azure.
	Model          string  `json:"model" yaml:"model"`
	MaxTokens      int     `json:"max_tokens" yaml:"max_tokens"`
	Temperature    float64 `json:"temperature" yaml:"temperature"`
	TimeoutSeconds int     `json:"timeout_seconds" yaml:"timeout_seconds"`

	BreakerFailures       int `json:"breaker_failures" yaml:"breaker_failures"`
	BreakerTimeoutSeconds int `json:"breaker_timeout_seconds" yaml:"breaker_timeout_seconds"`

	// RequestsPerSecond caps the chat call rate across all workers; 0 is unlimited.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
}

// EvolutionConfig holds the evolution loop settings
type EvolutionConfig struct {
	MaxIterations       int     `json:"max_iterations" yaml:"max_iterations"`
	AccuracyThreshold   float64 `json:"accuracy_threshold" yaml:"accuracy_threshold"`
	Epsilon             float64 `json:"epsilon" yaml:"epsilon"`
	Seed                uint64  `json:"seed" yaml:"seed"`
	Strategy            string  `json:"strategy" yaml:"strategy"` // "standard" or "hybrid"
	Concurrency         int     `json:"concurrency" yaml:"concurrency"`
	MaxErrorSamples     int     `json:"max_error_samples" yaml:"max_error_samples"`
	RevisionTemperature float64 `json:"revision_temperature" yaml:"revision_temperature"`
	TaskDescription     string  `json:"task_description" yaml:"task_description"`
	InitialPrompt       string  `json:"initial_prompt" yaml:"initial_prompt"`
	PlaceholderSentence string  `json:"placeholder_sentence" yaml:"placeholder_sentence"`
	// Labels fixes the vocabulary order. Empty means derive from the dataset.
	Labels []string `json:"labels" yaml:"labels"`
}

// RetryConfig holds the backoff settings for remote calls
type RetryConfig struct {
	MaxRetries        int     `json:"max_retries" yaml:"max_retries"`
	InitialIntervalMs int     `json:"initial_interval_ms" yaml:"initial_interval_ms"`
	MaxIntervalMs     int     `json:"max_interval_ms" yaml:"max_interval_ms"`
	Multiplier        float64 `json:"multiplier" yaml:"multiplier"`
}

// DatasetConfig describes the input file and how labels are derived
type DatasetConfig struct {
	Path            string            `json:"path" yaml:"path"`
	ValidationPath  string            `json:"validation_path" yaml:"validation_path"`
	Name            string            `json:"name" yaml:"name"`
	TextColumn      string            `json:"text_column" yaml:"text_column"`
	LabelColumn     string            `json:"label_column" yaml:"label_column"`
	FlagColumn      string            `json:"flag_column" yaml:"flag_column"`
	AgreeValue      string            `json:"agree_value" yaml:"agree_value"`
	DisagreeValue   string            `json:"disagree_value" yaml:"disagree_value"`
	FlipPair        []string          `json:"flip_pair" yaml:"flip_pair"`
	LabelMap        map[string]string `json:"label_map" yaml:"label_map"`
	ValidationSplit float64           `json:"validation_split" yaml:"validation_split"`
	Seed            uint64            `json:"seed" yaml:"seed"`
}

// OutputConfig holds where run artifacts are written
type OutputConfig struct {
	// TracePath ending in .msgpack selects the binary encoding.
	TracePath      string `json:"trace_path" yaml:"trace_path"`
	BestPromptPath string `json:"best_prompt_path" yaml:"best_prompt_path"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	PostgresURL string `json:"postgres_url" yaml:"postgres_url"`
	AutoMigrate bool   `json:"auto_migrate" yaml:"auto_migrate"`
}

// ServerConfig holds the progress/metrics HTTP server configuration
type ServerConfig struct {
	Enabled     bool     `json:"enabled" yaml:"enabled"`
	Host        string   `json:"host" yaml:"host"`
	Port        int      `json:"port" yaml:"port"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins"` // Allowed CORS origins
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Output  string `json:"output" yaml:"output"` // "stdout" or a file path
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text or json
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:              "openai",
			URL:                   "https://api.openai.com/v1",
			APIKey:                "",
			APIVersion:            "2024-06-01",
			Model:                 "gpt-4o-mini",
			MaxTokens:             100,
			Temperature:           0,
			TimeoutSeconds:        120,
			BreakerFailures:       5,
			BreakerTimeoutSeconds: 30,
			RequestsPerSecond:     0,
		},
		Evolution: EvolutionConfig{
			MaxIterations:       5,
			AccuracyThreshold:   0.85,
			Epsilon:             0.1,
			Seed:                1,
			Strategy:            "standard",
			Concurrency:         10,
			MaxErrorSamples:     20,
			RevisionTemperature: 0.7,
		},
		Retry: RetryConfig{
			MaxRetries:        25,
			InitialIntervalMs: 1000,
			MaxIntervalMs:     60000,
			Multiplier:        2,
		},
		Dataset: DatasetConfig{
			TextColumn:      "text",
			LabelColumn:     "label",
			AgreeValue:      "Agree",
			DisagreeValue:   "Disagree",
			ValidationSplit: 0.2,
			Seed:            42,
		},
		Output: OutputConfig{
			TracePath:      "PromptTracing.json",
			BestPromptPath: "best_prompt.txt",
		},
		Database: DatabaseConfig{
			PostgresURL: "",
			AutoMigrate: true,
		},
		Server: ServerConfig{
			Enabled:     false,
			Host:        "127.0.0.1",
			Port:        9090,
			CORSOrigins: []string{"http://localhost:3000"}, // Default development origin
		},
		Tracing: TracingConfig{
			Enabled: false,
			Output:  "stdout",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// envString loads a string environment variable into the target pointer if set
func envString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

// envInt loads an integer environment variable into the target pointer if set and valid
func envInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*target = i
		}
	}
}

func envUint64(key string, target *uint64) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseUint(v, 10, 64); err == nil {
			*target = i
		}
	}
}

// envFloat loads a float64 environment variable into the target pointer if set and valid
func envFloat(key string, target *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}

func envBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

// envStringSlice loads a comma-separated environment variable into a string slice
func envStringSlice(key string, target *[]string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			*target = result
		}
	}
}

// envStringMap loads "a=b,c=d" into a map, replacing any configured map
func envStringMap(key string, target *map[string]string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	result := make(map[string]string)
	for _, part := range strings.Split(v, ",") {
		k, val, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		if k = strings.TrimSpace(k); k != "" {
			result[k] = strings.TrimSpace(val)
		}
	}
	if len(result) > 0 {
		*target = result
	}
}

// Load loads configuration from the default config file and the environment
func Load() (*Config, error) {
	return LoadFile(getConfigPath())
}

// LoadFile loads configuration from path, if it exists, then applies
// environment overrides and validates the result. Files ending in .yaml or
// .yml are parsed as YAML, anything else as JSON.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := unmarshalConfig(path, data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func unmarshalConfig(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

func (c *Config) applyEnv() {
	// LLM
	envString("PROMPTEVO_LLM_PROVIDER", &c.LLM.Provider)
	envString("PROMPTEVO_LLM_URL", &c.LLM.URL)
	envString("PROMPTEVO_LLM_API_KEY", &c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		envString("OPENAI_API_KEY", &c.LLM.APIKey)
	}
	envString("PROMPTEVO_LLM_API_VERSION", &c.LLM.APIVersion)
	envString("PROMPTEVO_LLM_MODEL", &c.LLM.Model)
	envInt("PROMPTEVO_LLM_MAX_TOKENS", &c.LLM.MaxTokens)
	envFloat("PROMPTEVO_LLM_TEMPERATURE", &c.LLM.Temperature)
	envInt("PROMPTEVO_LLM_TIMEOUT_SECONDS", &c.LLM.TimeoutSeconds)
	envInt("PROMPTEVO_LLM_BREAKER_FAILURES", &c.LLM.BreakerFailures)
	envInt("PROMPTEVO_LLM_BREAKER_TIMEOUT_SECONDS", &c.LLM.BreakerTimeoutSeconds)
	envFloat("PROMPTEVO_LLM_REQUESTS_PER_SECOND", &c.LLM.RequestsPerSecond)

	// Evolution
	envInt("PROMPTEVO_MAX_ITERATIONS", &c.Evolution.MaxIterations)
	envFloat("PROMPTEVO_ACCURACY_THRESHOLD", &c.Evolution.AccuracyThreshold)
	envFloat("PROMPTEVO_EPSILON", &c.Evolution.Epsilon)
	envUint64("PROMPTEVO_SEED", &c.Evolution.Seed)
	envString("PROMPTEVO_STRATEGY", &c.Evolution.Strategy)
	envInt("PROMPTEVO_CONCURRENCY", &c.Evolution.Concurrency)
	envInt("PROMPTEVO_MAX_ERROR_SAMPLES", &c.Evolution.MaxErrorSamples)
	envFloat("PROMPTEVO_REVISION_TEMPERATURE", &c.Evolution.RevisionTemperature)
	envString("PROMPTEVO_TASK_DESCRIPTION", &c.Evolution.TaskDescription)
	envString("PROMPTEVO_INITIAL_PROMPT", &c.Evolution.InitialPrompt)
	envString("PROMPTEVO_PLACEHOLDER_SENTENCE", &c.Evolution.PlaceholderSentence)
	envStringSlice("PROMPTEVO_LABELS", &c.Evolution.Labels)

	// Retry
	envInt("PROMPTEVO_RETRY_MAX_RETRIES", &c.Retry.MaxRetries)
	envInt("PROMPTEVO_RETRY_INITIAL_INTERVAL_MS", &c.Retry.InitialIntervalMs)
	envInt("PROMPTEVO_RETRY_MAX_INTERVAL_MS", &c.Retry.MaxIntervalMs)
	envFloat("PROMPTEVO_RETRY_MULTIPLIER", &c.Retry.Multiplier)

	// Dataset
	envString("PROMPTEVO_DATASET_PATH", &c.Dataset.Path)
	envString("PROMPTEVO_DATASET_VALIDATION_PATH", &c.Dataset.ValidationPath)
	envString("PROMPTEVO_DATASET_NAME", &c.Dataset.Name)
	envString("PROMPTEVO_DATASET_TEXT_COLUMN", &c.Dataset.TextColumn)
	envString("PROMPTEVO_DATASET_LABEL_COLUMN", &c.Dataset.LabelColumn)
	envString("PROMPTEVO_DATASET_FLAG_COLUMN", &c.Dataset.FlagColumn)
	envString("PROMPTEVO_DATASET_AGREE_VALUE", &c.Dataset.AgreeValue)
	envString("PROMPTEVO_DATASET_DISAGREE_VALUE", &c.Dataset.DisagreeValue)
	envStringSlice("PROMPTEVO_DATASET_FLIP_PAIR", &c.Dataset.FlipPair)
	envStringMap("PROMPTEVO_DATASET_LABEL_MAP", &c.Dataset.LabelMap)
	envFloat("PROMPTEVO_DATASET_VALIDATION_SPLIT", &c.Dataset.ValidationSplit)
	envUint64("PROMPTEVO_DATASET_SEED", &c.Dataset.Seed)

	// Output
	envString("PROMPTEVO_TRACE_PATH", &c.Output.TracePath)
	envString("PROMPTEVO_BEST_PROMPT_PATH", &c.Output.BestPromptPath)

	// Database
	envString("PROMPTEVO_POSTGRES_URL", &c.Database.PostgresURL)
	envBool("PROMPTEVO_DB_AUTO_MIGRATE", &c.Database.AutoMigrate)

	// Server
	envBool("PROMPTEVO_SERVER_ENABLED", &c.Server.Enabled)
	envString("PROMPTEVO_SERVER_HOST", &c.Server.Host)
	envInt("PROMPTEVO_SERVER_PORT", &c.Server.Port)
	envStringSlice("PROMPTEVO_CORS_ORIGINS", &c.Server.CORSOrigins)

	// Tracing and logging
	envBool("PROMPTEVO_TRACING_ENABLED", &c.Tracing.Enabled)
	envString("PROMPTEVO_TRACING_OUTPUT", &c.Tracing.Output)
	envString("PROMPTEVO_LOG_LEVEL", &c.Log.Level)
	envString("PROMPTEVO_LOG_FORMAT", &c.Log.Format)
}

// IsDatabaseConfigured returns true if runs should be persisted to PostgreSQL
func (c *Config) IsDatabaseConfigured() bool {
	return c.Database.PostgresURL != ""
}

// LLMTimeout returns the per-attempt timeout for one chat call
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// BreakerTimeout returns how long the circuit stays open
func (c *Config) BreakerTimeout() time.Duration {
	return time.Duration(c.LLM.BreakerTimeoutSeconds) * time.Second
}

// RetryIntervals returns the initial and maximum backoff delays
func (c *Config) RetryIntervals() (initial, maxInterval time.Duration) {
	return time.Duration(c.Retry.InitialIntervalMs) * time.Millisecond,
		time.Duration(c.Retry.MaxIntervalMs) * time.Millisecond
}

// ServerAddr returns the listen address of the HTTP server
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Masked returns a copy safe to print, with secrets replaced.
func (c *Config) Masked() *Config {
	out := *c
	out.LLM.APIKey = maskSecret(c.LLM.APIKey)
	if c.Database.PostgresURL != "" {
		if u, err := url.Parse(c.Database.PostgresURL); err == nil && u.User != nil {
			if _, hasPassword := u.User.Password(); hasPassword {
				u.User = url.UserPassword(u.User.Username(), "****")
			}
			out.Database.PostgresURL = u.String()
		}
	}
	return &out
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// isValidURL validates that a URL has proper format
func isValidURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// Validate checks that the configuration has valid values
func (c *Config) Validate() error {
	var errs []string

	// LLM validation
	switch c.LLM.Provider {
	case "openai", "azure":
	default:
		errs = append(errs, "LLM provider must be 'openai' or 'azure'")
	}
	if c.LLM.URL == "" {
		errs = append(errs, "LLM URL is required")
	} else if !isValidURL(c.LLM.URL) {
		errs = append(errs, "LLM URL must be a valid URL")
	}
	if c.LLM.Provider == "azure" && c.LLM.APIVersion == "" {
		errs = append(errs, "LLM api_version is required for azure")
	}
	if c.LLM.Model == "" {
		errs = append(errs, "LLM model is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "LLM temperature must be between 0 and 2")
	}
	if c.LLM.MaxTokens < 1 {
		errs = append(errs, "LLM max_tokens must be positive")
	}
	if c.LLM.TimeoutSeconds < 1 {
		errs = append(errs, "LLM timeout_seconds must be positive")
	}
	if c.LLM.BreakerFailures < 1 {
		errs = append(errs, "LLM breaker_failures must be at least 1")
	}
	if c.LLM.RequestsPerSecond < 0 {
		errs = append(errs, "LLM requests_per_second must not be negative")
	}

	// Evolution validation
	if c.Evolution.MaxIterations < 0 {
		errs = append(errs, "evolution max_iterations must not be negative")
	}
	if c.Evolution.AccuracyThreshold < 0 || c.Evolution.AccuracyThreshold > 1 {
		errs = append(errs, "evolution accuracy_threshold must be between 0 and 1")
	}
	if c.Evolution.Epsilon < 0 || c.Evolution.Epsilon > 1 {
		errs = append(errs, "evolution epsilon must be between 0 and 1")
	}
	switch c.Evolution.Strategy {
	case "standard", "hybrid":
	default:
		errs = append(errs, "evolution strategy must be 'standard' or 'hybrid'")
	}
	if c.Evolution.Concurrency < 1 {
		errs = append(errs, "evolution concurrency must be at least 1")
	}
	if c.Evolution.MaxErrorSamples < 0 {
		errs = append(errs, "evolution max_error_samples must not be negative")
	}
	if c.Evolution.RevisionTemperature < 0 || c.Evolution.RevisionTemperature > 2 {
		errs = append(errs, "evolution revision_temperature must be between 0 and 2")
	}

	// Retry validation
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, "retry max_retries must not be negative")
	}
	if c.Retry.InitialIntervalMs < 1 {
		errs = append(errs, "retry initial_interval_ms must be positive")
	}
	if c.Retry.MaxIntervalMs < c.Retry.InitialIntervalMs {
		errs = append(errs, "retry max_interval_ms must not be below initial_interval_ms")
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, "retry multiplier must be at least 1")
	}

	// Dataset validation
	if c.Dataset.TextColumn == "" || c.Dataset.LabelColumn == "" {
		errs = append(errs, "dataset text_column and label_column are required")
	}
	if c.Dataset.ValidationSplit < 0 || c.Dataset.ValidationSplit >= 1 {
		errs = append(errs, "dataset validation_split must be in [0, 1)")
	}
	if len(c.Dataset.FlipPair) != 0 && len(c.Dataset.FlipPair) != 2 {
		errs = append(errs, "dataset flip_pair must name exactly two labels")
	}
	if c.Dataset.FlagColumn != "" && c.Dataset.AgreeValue == c.Dataset.DisagreeValue {
		errs = append(errs, "dataset agree_value and disagree_value must differ")
	}

	// Database validation
	if c.Database.PostgresURL != "" && !isValidURL(c.Database.PostgresURL) {
		errs = append(errs, "PostgreSQL URL must be a valid URL")
	}

	// Server validation
	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		errs = append(errs, "server port must be between 1 and 65535")
	}

	// Log validation
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "log level must be debug, info, warn or error")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, "log format must be 'text' or 'json'")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// getConfigPath returns the path to the config file
func getConfigPath() string {
	if path := os.Getenv("PROMPTEVO_CONFIG"); path != "" {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}

	// Check ~/.config/promptevo/config.{json,yaml} first
	configDir := filepath.Join(homeDir, ".config", "promptevo")
	configPath := filepath.Join(configDir, "config.json")
	if _, err := os.Stat(configPath); err == nil {
		return configPath
	}
	yamlPath := filepath.Join(configDir, "config.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath
	}

	// Check ~/.promptevo/config.json
	altPath := filepath.Join(homeDir, ".promptevo", "config.json")
	if _, err := os.Stat(altPath); err == nil {
		return altPath
	}

	return configPath
}
