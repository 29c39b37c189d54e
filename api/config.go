package handler

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port        string   `mapstructure:"port"`
	Host        string   `mapstructure:"host"`
	GinMode     string   `mapstructure:"gin_mode"`
	CORSOrigins []string `mapstructure:"cors_origins"`

	// MongoDB
	MongoURI      string `mapstructure:"mongodb_uri"`
	MongoDatabase string `mapstructure:"mongodb_database"`

	// Vapi API configuration
	VapiAPIKey        string `mapstructure:"vapi_api_key"`
	VapiBaseURL       string `mapstructure:"vapi_base_url"`
	VapiWebhookSecret string `mapstructure:"vapi_webhook_secret"`

	// Stripe configuration
	StripeSecretKey     string `mapstructure:"stripe_secret_key"`
	StripeWebhookSecret string `mapstructure:"stripe_webhook_secret"`

	// Sessions
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTTTL    time.Duration `mapstructure:"jwt_ttl"`

	// Call sync
	SyncEnabled     bool          `mapstructure:"sync_enabled"`
	SyncInterval    time.Duration `mapstructure:"sync_interval"`
	SyncConcurrency int           `mapstructure:"sync_concurrency"`
	SyncCallLimit   int           `mapstructure:"sync_call_limit"`

	// Dashboard aggregations are cached this long; 0 disables the cache
	AnalyticsCacheTTL time.Duration `mapstructure:"analytics_cache_ttl"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`
}

// DefaultConfig returns the configuration used when nothing is set
func DefaultConfig() *Config {
	return &Config{
		Port:              "8080",
		Host:              "0.0.0.0",
		CORSOrigins:       []string{"*"},
		MongoURI:          "mongodb://localhost:27017",
		MongoDatabase:     "mindforu",
		VapiBaseURL:       "https://api.vapi.ai",
		JWTTTL:            24 * time.Hour,
		SyncEnabled:       true,
		SyncInterval:      time.Hour,
		SyncConcurrency:   4,
		SyncCallLimit:     100,
		AnalyticsCacheTTL: time.Minute,
		LogLevel:          "info",
	}
}

// LoadConfig loads configuration with the following priority (highest to lowest):
// 1. Environment variables, including a .env file in the working directory
// 2. The config file at path (YAML), or mindforu.yaml in the working directory
// 3. Default values
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("mindforu")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is acceptable - defaults + env vars
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("port", d.Port)
	v.SetDefault("host", d.Host)
	v.SetDefault("gin_mode", d.GinMode)
	v.SetDefault("cors_origins", d.CORSOrigins)

	v.SetDefault("mongodb_uri", d.MongoURI)
	v.SetDefault("mongodb_database", d.MongoDatabase)

	v.SetDefault("vapi_api_key", d.VapiAPIKey)
	v.SetDefault("vapi_base_url", d.VapiBaseURL)
	v.SetDefault("vapi_webhook_secret", d.VapiWebhookSecret)

	v.SetDefault("stripe_secret_key", d.StripeSecretKey)
	v.SetDefault("stripe_webhook_secret", d.StripeWebhookSecret)

	v.SetDefault("jwt_secret", d.JWTSecret)
	v.SetDefault("jwt_ttl", d.JWTTTL)

	v.SetDefault("sync_enabled", d.SyncEnabled)
	v.SetDefault("sync_interval", d.SyncInterval)
	v.SetDefault("sync_concurrency", d.SyncConcurrency)
	v.SetDefault("sync_call_limit", d.SyncCallLimit)

	v.SetDefault("analytics_cache_ttl", d.AnalyticsCacheTTL)

	v.SetDefault("log_level", d.LogLevel)
}

// Validate returns every problem with the configuration joined together
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.MongoURI == "" {
		errs = append(errs, errors.New("MONGODB_URI is required"))
	}
	if c.MongoDatabase == "" {
		errs = append(errs, errors.New("MONGODB_DATABASE is required"))
	}
	if c.JWTTTL <= 0 {
		errs = append(errs, fmt.Errorf("JWT_TTL must be positive, got %s", c.JWTTTL))
	}
	if c.IsProduction() && c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required in production"))
	}
	if c.IsProduction() && c.VapiWebhookSecret == "" {
		errs = append(errs, errors.New("VAPI_WEBHOOK_SECRET is required in production"))
	}
	if c.SyncInterval < time.Minute {
		errs = append(errs, fmt.Errorf("SYNC_INTERVAL must be at least 1m, got %s", c.SyncInterval))
	}
	if c.SyncConcurrency < 1 {
		errs = append(errs, fmt.Errorf("SYNC_CONCURRENCY must be at least 1, got %d", c.SyncConcurrency))
	}
	if c.SyncCallLimit < 1 || c.SyncCallLimit > 1000 {
		errs = append(errs, fmt.Errorf("SYNC_CALL_LIMIT must be between 1 and 1000, got %d", c.SyncCallLimit))
	}
	if c.AnalyticsCacheTTL < 0 {
		errs = append(errs, fmt.Errorf("ANALYTICS_CACHE_TTL must not be negative, got %s", c.AnalyticsCacheTTL))
	}
	switch strings.ToLower(c.GinMode) {
	case "", "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("GIN_MODE must be debug, release or test, got %q", c.GinMode))
	}
	return errors.Join(errs...)
}

// Addr is the listen address
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// IsProduction returns true if running in release mode
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.GinMode, "release")
}

// HasVapiConfig returns true if the Vapi API key is configured
func (c *Config) HasVapiConfig() bool {
	return c.VapiAPIKey != ""
}

// HasStripeConfig returns true if Stripe webhooks can be verified
func (c *Config) HasStripeConfig() bool {
	return c.StripeWebhookSecret != ""
}
