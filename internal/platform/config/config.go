// Package config assembles runtime configuration from defaults, an optional
// .env file, environment variables, and explicit overrides, in that order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultSnapshotDir         = "data/snapshots"
	defaultSnapshotDebounce    = time.Second
	defaultGatewayBaseURL      = "https://api.pagamentos.visa2any.com"
	defaultPollInterval        = 5 * time.Second
	defaultPollCeiling         = 15 * time.Minute
	defaultSessionTTL          = 2 * time.Hour
	defaultSessionSweep        = 10 * time.Minute
	defaultRateLimitPerMinute  = 120
	defaultRateLimitWindowSize = time.Minute
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Catalog   CatalogConfig
	Snapshots SnapshotConfig
	Gateway   GatewayConfig
	Stripe    StripeConfig
	Checkout  CheckoutConfig
	RateLimit RateLimitConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// CatalogConfig points at the product catalog. An empty path uses the
// embedded catalog.
type CatalogConfig struct {
	Path string
}

// SnapshotConfig controls checkout snapshot persistence.
type SnapshotConfig struct {
	Dir      string
	Debounce time.Duration
}

// GatewayConfig holds credentials for the PIX and boleto payment collaborator.
type GatewayConfig struct {
	BaseURL   string
	Token     string
	PublicKey string
}

// StripeConfig holds the card payment credentials.
type StripeConfig struct {
	APIKey string
}

// CheckoutConfig tunes the checkout flow itself.
type CheckoutConfig struct {
	PollInterval time.Duration
	PollCeiling  time.Duration
	SessionTTL   time.Duration
	SessionSweep time.Duration
	SuccessURL   string
	FailureURL   string
	PendingURL   string
}

// RateLimitConfig controls request throttling on the public endpoints.
type RateLimitConfig struct {
	PerWindow int
	Window    time.Duration
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values
// in the map take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration by combining defaults, .env
// overrides, and environment variables.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "CHECKOUT_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "CHECKOUT_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "CHECKOUT_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "CHECKOUT_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Catalog: CatalogConfig{
			Path: stringWithDefault(lookup, "CHECKOUT_CATALOG_PATH", ""),
		},
		Snapshots: SnapshotConfig{
			Dir:      stringWithDefault(lookup, "CHECKOUT_SNAPSHOT_DIR", defaultSnapshotDir),
			Debounce: durationWithDefault(lookup, "CHECKOUT_SNAPSHOT_DEBOUNCE", defaultSnapshotDebounce),
		},
		Gateway: GatewayConfig{
			BaseURL:   stringWithDefault(lookup, "CHECKOUT_GATEWAY_BASE_URL", defaultGatewayBaseURL),
			Token:     stringWithDefault(lookup, "CHECKOUT_GATEWAY_TOKEN", ""),
			PublicKey: stringWithDefault(lookup, "CHECKOUT_GATEWAY_PUBLIC_KEY", ""),
		},
		Stripe: StripeConfig{
			APIKey: stringWithDefault(lookup, "CHECKOUT_STRIPE_API_KEY", ""),
		},
		Checkout: CheckoutConfig{
			PollInterval: durationWithDefault(lookup, "CHECKOUT_POLL_INTERVAL", defaultPollInterval),
			PollCeiling:  durationWithDefault(lookup, "CHECKOUT_POLL_CEILING", defaultPollCeiling),
			SessionTTL:   durationWithDefault(lookup, "CHECKOUT_SESSION_TTL", defaultSessionTTL),
			SessionSweep: durationWithDefault(lookup, "CHECKOUT_SESSION_SWEEP", defaultSessionSweep),
			SuccessURL:   stringWithDefault(lookup, "CHECKOUT_BACKURL_SUCCESS", ""),
			FailureURL:   stringWithDefault(lookup, "CHECKOUT_BACKURL_FAILURE", ""),
			PendingURL:   stringWithDefault(lookup, "CHECKOUT_BACKURL_PENDING", ""),
		},
		RateLimit: RateLimitConfig{
			PerWindow: intWithDefault(lookup, "CHECKOUT_RATELIMIT_PER_WINDOW", defaultRateLimitPerMinute),
			Window:    durationWithDefault(lookup, "CHECKOUT_RATELIMIT_WINDOW", defaultRateLimitWindowSize),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if strings.TrimSpace(cfg.Gateway.BaseURL) == "" {
		missing = append(missing, "Gateway.BaseURL")
	}
	if cfg.Checkout.PollInterval <= 0 {
		missing = append(missing, "Checkout.PollInterval")
	}
	if cfg.Checkout.PollCeiling <= 0 {
		missing = append(missing, "Checkout.PollCeiling")
	}
	if cfg.Checkout.SessionTTL <= 0 {
		missing = append(missing, "Checkout.SessionTTL")
	}
	if cfg.Snapshots.Debounce <= 0 {
		missing = append(missing, "Snapshots.Debounce")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	values, err := godotenv.Read(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
