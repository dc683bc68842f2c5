package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Attribute store backends.
const (
	StoreShopify  = "shopify"
	StorePostgres = "postgres"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	ShopifyShopDomain string
	ShopifyAdminToken string
	ShopifyAPIKey     string
	ShopifyAPISecret  string
	ShopifyAPIVersion string
	SessionClockSkew  time.Duration

	AttributeStore     string
	MetafieldNamespace string
	CurrencyCode       string

	WholesaleCustomerTags   []string
	WholesaleDiscountLabel  string
	WholesaleDiscountTitle  string
	WholesaleFunctionHandle string
	WholesaleMaxBatch       int

	StoreRequestTimeout time.Duration
	RetryMaxAttempts    int
	RetryBaseBackoff    time.Duration
	RetryMaxWait        time.Duration
	CircuitMinRequests  int
	CircuitFailureRatio float64
	CircuitOpenFor      time.Duration

	IdempotencyTTL   time.Duration
	WebhookReplayTTL time.Duration
	RateLimitBackend string
	RateLimitMax     int
	RateLimitWindow  time.Duration
	LockTTL          time.Duration
	LockRetryBackoff time.Duration
	LockMaxWait      time.Duration
	ProductsCacheTTL time.Duration
	ProductsPageSize int

	AuditEnabled      bool
	AuditSamplingRate float64
	MigrationsAuto    bool
	WorkerConcurrency int
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		ShopifyShopDomain: strings.ToLower(strings.TrimSpace(k.String("SHOPIFY_SHOP_DOMAIN"))),
		ShopifyAdminToken: strings.TrimSpace(k.String("SHOPIFY_ADMIN_TOKEN")),
		ShopifyAPIKey:     strings.TrimSpace(k.String("SHOPIFY_API_KEY")),
		ShopifyAPISecret:  strings.TrimSpace(k.String("SHOPIFY_API_SECRET")),
		ShopifyAPIVersion: valueOrDefault(k.String("SHOPIFY_API_VERSION"), "2025-10"),
		SessionClockSkew:  parseDuration(k.String("SESSION_CLOCK_SKEW"), "5s"),

		AttributeStore:     strings.ToLower(valueOrDefault(k.String("ATTRIBUTE_STORE"), StoreShopify)),
		MetafieldNamespace: valueOrDefault(k.String("METAFIELD_NAMESPACE"), "wholesale"),
		CurrencyCode:       strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "USD")),

		WholesaleCustomerTags:   splitAndTrim(valueOrDefault(k.String("WHOLESALE_CUSTOMER_TAGS"), "wholesale")),
		WholesaleDiscountLabel:  valueOrDefault(k.String("WHOLESALE_DISCOUNT_LABEL"), "Wholesale"),
		WholesaleDiscountTitle:  valueOrDefault(k.String("WHOLESALE_DISCOUNT_TITLE"), "Wholesale Pricing"),
		WholesaleFunctionHandle: valueOrDefault(k.String("WHOLESALE_FUNCTION_HANDLE"), "wholesale-discount"),
		WholesaleMaxBatch:       parseInt(k.String("WHOLESALE_MAX_BATCH"), 250),

		StoreRequestTimeout: parseDuration(k.String("STORE_REQUEST_TIMEOUT"), "10s"),
		RetryMaxAttempts:    parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryBaseBackoff:    parseDuration(k.String("RETRY_BASE_BACKOFF"), "200ms"),
		RetryMaxWait:        parseDuration(k.String("RETRY_MAX_WAIT"), "5s"),
		CircuitMinRequests:  parseInt(k.String("CIRCUIT_MIN_REQUESTS"), 10),
		CircuitFailureRatio: parseFloat(k.String("CIRCUIT_FAILURE_RATIO"), 0.5),
		CircuitOpenFor:      parseDuration(k.String("CIRCUIT_OPEN_FOR"), "30s"),

		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		WebhookReplayTTL: parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),
		RateLimitBackend: strings.ToLower(valueOrDefault(k.String("RATE_LIMIT_BACKEND"), "sliding")),
		RateLimitMax:     parseInt(k.String("RATE_LIMIT_MAX"), 30),
		RateLimitWindow:  parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		LockTTL:          parseDuration(k.String("LOCK_TTL"), "2m"),
		LockRetryBackoff: parseDuration(k.String("LOCK_RETRY_BACKOFF"), "250ms"),
		LockMaxWait:      parseDuration(k.String("LOCK_MAX_WAIT"), "30s"),
		ProductsCacheTTL: parseDuration(k.String("PRODUCTS_CACHE_TTL"), "60s"),
		ProductsPageSize: parseInt(k.String("PRODUCTS_PAGE_SIZE"), 50),

		AuditEnabled:      parseBool(valueOrDefault(k.String("AUDIT_ENABLED"), "true")),
		AuditSamplingRate: parseFloat(k.String("AUDIT_SAMPLING_RATE"), 1.0),
		MigrationsAuto:    parseBool(k.String("MIGRATIONS_AUTO")),
		WorkerConcurrency: parseInt(k.String("WORKER_CONCURRENCY"), 5),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.RedisURL == "" {
		return errors.New("REDIS_URL is required")
	}
	if c.ShopifyAPISecret == "" {
		return errors.New("SHOPIFY_API_SECRET is required")
	}
	switch c.AttributeStore {
	case StoreShopify:
		if c.ShopifyShopDomain == "" {
			return errors.New("SHOPIFY_SHOP_DOMAIN is required when ATTRIBUTE_STORE=shopify")
		}
		if c.ShopifyAdminToken == "" {
			return errors.New("SHOPIFY_ADMIN_TOKEN is required when ATTRIBUTE_STORE=shopify")
		}
	case StorePostgres:
	default:
		return fmt.Errorf("ATTRIBUTE_STORE must be %q or %q, got %q", StoreShopify, StorePostgres, c.AttributeStore)
	}
	if c.WholesaleMaxBatch <= 0 {
		return errors.New("WHOLESALE_MAX_BATCH must be positive")
	}
	return nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// AdminConfigured reports whether Admin API credentials are present.
func (c *Config) AdminConfigured() bool {
	return c.ShopifyShopDomain != "" && c.ShopifyAdminToken != ""
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
