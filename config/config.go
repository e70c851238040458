package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"appraisekit/adapters/redis"
	"appraisekit/adapters/sqlx"
	"appraisekit/core"
	"appraisekit/engine"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Storage adapter names.
const (
	AdapterFile   = "file"
	AdapterJSON   = "json"
	AdapterMemory = "memory"
	AdapterRedis  = "redis"
	AdapterSQL    = "sql"
)

// Config holds the complete application configuration
type Config struct {
	// Environment and profile settings
	Environment Environment `json:"environment" env:"APPRAISE_ENV"`
	Profile     string      `json:"profile" env:"APPRAISE_PROFILE"`

	// Product names the state file, "<home>/.<product>".
	Product string `json:"product" env:"APPRAISE_PRODUCT"`

	// Debug is the engine verbosity: 0 silent, 1 diagnostics, 2 diagnostics
	// with the gate forced open.
	Debug int `json:"debug" env:"APPRAISE_DEBUG"`

	Store      StoreConfig      `json:"store"`
	Prompt     PromptConfig     `json:"prompt"`
	Conditions ConditionsConfig `json:"conditions"`
	Storage    StorageConfig    `json:"storage"`
	Logging    LoggingConfig    `json:"logging"`
	Server     ServerConfig     `json:"server"`
	Security   SecurityConfig   `json:"security"`
	Webhook    WebhookConfig    `json:"webhook"`
}

// StoreConfig locates the app's store listing.
type StoreConfig struct {
	ID      string `json:"id" env:"APPRAISE_STORE_ID"`
	BaseURI string `json:"base_uri" env:"APPRAISE_STORE_BASE_URI"`
	HomeURI string `json:"home_uri" env:"APPRAISE_STORE_HOME_URI"`
}

// Listing converts to core.Listing.
func (s StoreConfig) Listing() core.Listing {
	return core.Listing{BaseURI: s.BaseURI, HomeURI: s.HomeURI}
}

// PromptConfig holds the reminder dialog text.
type PromptConfig struct {
	Message     string `json:"message" env:"APPRAISE_PROMPT_MESSAGE"`
	RateLabel   string `json:"rate_label" env:"APPRAISE_PROMPT_RATE_LABEL"`
	LaterLabel  string `json:"later_label" env:"APPRAISE_PROMPT_LATER_LABEL"`
	CancelLabel string `json:"cancel_label" env:"APPRAISE_PROMPT_CANCEL_LABEL"`
}

func (p PromptConfig) Text() engine.PromptText {
	return engine.PromptText(p)
}

// ConditionsConfig holds the gate thresholds. With Enabled false the engine
// starts without conditions (advanced mode) and the gate stays closed until
// the host sets them.
type ConditionsConfig struct {
	Enabled        bool    `json:"enabled" env:"APPRAISE_CONDITIONS_ENABLED"`
	DaysInUse      float64 `json:"days_in_use" env:"APPRAISE_DAYS_IN_USE"`
	LaunchCount    int64   `json:"launch_count" env:"APPRAISE_LAUNCH_COUNT"`
	SigEventCount  int64   `json:"sig_event_count" env:"APPRAISE_SIG_EVENT_COUNT"`
	DaysToPostpone float64 `json:"days_to_postpone" env:"APPRAISE_DAYS_TO_POSTPONE"`
}

// Core returns the engine conditions, nil when disabled.
func (c ConditionsConfig) Core() *core.Conditions {
	if !c.Enabled {
		return nil
	}
	return &core.Conditions{
		DaysInUse:      c.DaysInUse,
		LaunchCount:    c.LaunchCount,
		SigEventCount:  c.SigEventCount,
		DaysToPostpone: c.DaysToPostpone,
	}
}

// StorageConfig holds storage adapter configuration
type StorageConfig struct {
	Adapter string `json:"adapter" env:"APPRAISE_STORAGE_ADAPTER"`
	// Installation keys the state in shared stores (json, redis, sql).
	Installation string       `json:"installation" env:"APPRAISE_INSTALLATION"`
	Redis        redis.Config `json:"redis,omitempty"`
	SQL          sqlx.Config  `json:"sql,omitempty"`
	File         FileConfig   `json:"file,omitempty"`
}

// FileConfig holds file storage configuration. For the "file" adapter an
// empty path means "<home>/.<product>".
type FileConfig struct {
	Path string `json:"path" env:"APPRAISE_STORAGE_FILE_PATH"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string            `json:"level" env:"APPRAISE_LOG_LEVEL"`
	Format     string            `json:"format" env:"APPRAISE_LOG_FORMAT"`
	Output     string            `json:"output" env:"APPRAISE_LOG_OUTPUT"`
	Attributes map[string]string `json:"attributes,omitempty" env:"APPRAISE_LOG_ATTRIBUTES"`
}

// ServerConfig holds the diagnostics HTTP server configuration
type ServerConfig struct {
	Address           string        `json:"address" env:"APPRAISE_SERVER_ADDR"`
	PathPrefix        string        `json:"path_prefix" env:"APPRAISE_SERVER_PATH_PREFIX"`
	CORSOrigin        string        `json:"cors_origin" env:"APPRAISE_SERVER_CORS_ORIGIN"`
	ReadTimeout       time.Duration `json:"read_timeout" env:"APPRAISE_SERVER_READ_TIMEOUT"`
	WriteTimeout      time.Duration `json:"write_timeout" env:"APPRAISE_SERVER_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `json:"idle_timeout" env:"APPRAISE_SERVER_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" env:"APPRAISE_SERVER_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" env:"APPRAISE_SERVER_SHUTDOWN_TIMEOUT"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRateLimit bool            `json:"enable_rate_limit" env:"APPRAISE_SECURITY_RATE_LIMIT_ENABLED"`
	RateLimit       RateLimitConfig `json:"rate_limit,omitempty"`
	APIKeys         []string        `json:"api_keys,omitempty" env:"APPRAISE_SECURITY_API_KEYS"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `json:"requests_per_minute" env:"APPRAISE_SECURITY_RATE_LIMIT_RPM"`
	BurstSize         int           `json:"burst_size" env:"APPRAISE_SECURITY_RATE_LIMIT_BURST"`
	CleanupInterval   time.Duration `json:"cleanup_interval" env:"APPRAISE_SECURITY_RATE_LIMIT_CLEANUP"`
}

// WebhookConfig lists endpoints that receive engine events.
type WebhookConfig struct {
	Endpoints []string      `json:"endpoints,omitempty" env:"APPRAISE_WEBHOOK_ENDPOINTS"`
	Types     []string      `json:"types,omitempty" env:"APPRAISE_WEBHOOK_TYPES"`
	Timeout   time.Duration `json:"timeout" env:"APPRAISE_WEBHOOK_TIMEOUT"`
}

// Load loads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Load from environment variables
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validateConfigPath validates that the config file path is safe
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("config file path cannot be empty")
	}

	cleanPath := filepath.Clean(path)

	if !strings.HasSuffix(strings.ToLower(cleanPath), ".json") {
		return errors.New("config file must have .json extension")
	}

	if _, err := os.Stat(cleanPath); err != nil {
		return fmt.Errorf("config file not accessible: %w", err)
	}

	return nil
}

// LoadFromFile loads configuration from a JSON file. Environment variables
// override file values.
func LoadFromFile(path string) (*Config, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}

	file, err := os.Open(path) // #nosec G304 - Path validated above
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns the compiled-in configuration.
func DefaultConfig() *Config {
	prompt := engine.DefaultPromptText()
	listing := core.DefaultListing()
	return &Config{
		Environment: EnvDevelopment,
		Profile:     "default",
		Product:     "appraiseme",
		Debug:       int(engine.DebugDiagnostics),
		Store: StoreConfig{
			ID:      "0",
			BaseURI: listing.BaseURI,
			HomeURI: listing.HomeURI,
		},
		Prompt: PromptConfig(prompt),
		Conditions: ConditionsConfig{
			Enabled:        true,
			DaysInUse:      0,
			LaunchCount:    3,
			SigEventCount:  core.SigEventsDisabled,
			DaysToPostpone: 1,
		},
		Storage: StorageConfig{
			Adapter:      AdapterFile,
			Installation: "default",
			Redis:        redis.DefaultConfig(),
			SQL:          sqlx.DefaultConfig(sqlx.DriverPostgres),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Server: ServerConfig{
			Address:           "127.0.0.1:8080",
			PathPrefix:        "/api",
			CORSOrigin:        "*",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Security: SecurityConfig{
			EnableRateLimit: false,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				BurstSize:         10,
				CleanupInterval:   5 * time.Minute,
			},
			APIKeys: []string{},
		},
		Webhook: WebhookConfig{
			Timeout: 2 * time.Second,
		},
	}
}

// Validate validates the configuration and returns detailed error messages
func (c *Config) Validate() error {
	var errs []string

	if c.Environment == "" {
		errs = append(errs, "environment cannot be empty")
	}
	if strings.TrimSpace(c.Product) == "" || strings.ContainsAny(c.Product, `/\`) {
		errs = append(errs, "product must be a non-empty file name")
	}
	if c.Debug < int(engine.DebugOff) || c.Debug > int(engine.DebugForceGate) {
		errs = append(errs, "debug must be 0, 1 or 2")
	}
	if c.Debug >= int(engine.DebugForceGate) && c.Environment == EnvProduction {
		errs = append(errs, "debug level 2 forces the reminder and is not allowed in production")
	}

	if err := c.Store.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("store config: %v", err))
	}
	if err := c.Prompt.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("prompt config: %v", err))
	}
	if c.Conditions.Enabled {
		if err := c.Conditions.Core().Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("conditions: %v", err))
		}
	}
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("storage config: %v", err))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("logging config: %v", err))
	}
	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}
	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// String returns a JSON representation of the config (with secrets redacted)
func (c *Config) String() string {
	cfg := *c

	if cfg.Storage.SQL.DSN != "" {
		cfg.Storage.SQL.DSN = "[REDACTED]"
	}
	if cfg.Storage.Redis.Password != "" {
		cfg.Storage.Redis.Password = "[REDACTED]"
	}
	if len(cfg.Security.APIKeys) > 0 {
		cfg.Security.APIKeys = []string{"[REDACTED]"}
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")
	return string(data)
}
