package config

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/utafrali/checkout-saga/pkg/database"
	pkgconfig "github.com/utafrali/checkout-saga/pkg/config"
)

// Config holds all configuration for the checkout service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"checkout-service"`

	// HTTP server
	HTTPPort        int           `env:"CHECKOUT_HTTP_PORT" envDefault:"8004"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Per-username limit on checkout submissions. 0 disables it.
	CheckoutRateLimitRPS   float64 `env:"CHECKOUT_RATE_LIMIT_RPS" envDefault:"1"`
	CheckoutRateLimitBurst int     `env:"CHECKOUT_RATE_LIMIT_BURST" envDefault:"3"`

	// PostgreSQL (checkout attempt log)
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"ecommerce"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"ecommerce_secret"`
	PostgresDB   string `env:"CHECKOUT_DB_NAME" envDefault:"checkout_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns        int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBMaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`

	// Attempt-log queries slower than this are logged. 0 disables it.
	DBSlowQueryThreshold time.Duration `env:"DB_SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Redis (per-user checkout lock)
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka (checkout outcome events)
	EventsEnabled bool     `env:"CHECKOUT_EVENTS_ENABLED" envDefault:"true"`
	KafkaBrokers  []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Downstream services
	BasketServiceURL    string `env:"BASKET_SERVICE_URL" envDefault:"http://localhost:8002"`
	OrderServiceURL     string `env:"ORDER_SERVICE_URL" envDefault:"http://localhost:8003"`
	InventoryServiceURL string `env:"INVENTORY_SERVICE_URL" envDefault:"http://localhost:8007"`

	// Outbound HTTP client
	HTTPClientTimeout time.Duration `env:"HTTP_CLIENT_TIMEOUT" envDefault:"10s"`

	// Circuit breaker settings for downstream service calls
	CBMaxRequests  uint32        `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     time.Duration `env:"CB_INTERVAL" envDefault:"60s"`
	CBTimeout      time.Duration `env:"CB_TIMEOUT" envDefault:"30s"`
	CBFailureRatio float64       `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32        `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Per-step saga timeouts. Each remote call gets its own
	// context.WithTimeout so one slow service cannot hold a checkout forever.
	SagaBasketTimeout       time.Duration `env:"SAGA_BASKET_TIMEOUT" envDefault:"5s"`
	SagaOrderTimeout        time.Duration `env:"SAGA_ORDER_TIMEOUT" envDefault:"5s"`
	SagaInventoryTimeout    time.Duration `env:"SAGA_INVENTORY_TIMEOUT" envDefault:"5s"`
	SagaCompensationTimeout time.Duration `env:"SAGA_COMPENSATION_TIMEOUT" envDefault:"30s"`

	// Saga policies
	CompensateOnCleanupFailure bool          `env:"SAGA_COMPENSATE_ON_CLEANUP_FAILURE" envDefault:"false"`
	SerializePerUser           bool          `env:"SAGA_SERIALIZE_PER_USER" envDefault:"false"`
	LockTTL                    time.Duration `env:"SAGA_LOCK_TTL" envDefault:"2m"`

	// Pprof debug endpoints (IP allowlist in CIDR notation).
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load checkout config: %w", err)
	}
	cfg.PprofAllowedCIDRs = compact(cfg.PprofAllowedCIDRs)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.PostgresUser == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if c.EventsEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when CHECKOUT_EVENTS_ENABLED is set")
	}
	if c.SerializePerUser && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required when SAGA_SERIALIZE_PER_USER is set")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	if c.CBFailureRatio <= 0 || c.CBFailureRatio > 1.0 {
		return fmt.Errorf("CB_FAILURE_RATIO must be in (0.0, 1.0], got %f", c.CBFailureRatio)
	}
	if c.CheckoutRateLimitRPS > 0 && c.CheckoutRateLimitBurst < 1 {
		return fmt.Errorf("CHECKOUT_RATE_LIMIT_BURST must be at least 1 when limiting is enabled, got %d", c.CheckoutRateLimitBurst)
	}

	for name, d := range map[string]time.Duration{
		"SAGA_BASKET_TIMEOUT":       c.SagaBasketTimeout,
		"SAGA_ORDER_TIMEOUT":        c.SagaOrderTimeout,
		"SAGA_INVENTORY_TIMEOUT":    c.SagaInventoryTimeout,
		"SAGA_COMPENSATION_TIMEOUT": c.SagaCompensationTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, d)
		}
	}
	// The lock must outlive a checkout that uses every step timeout.
	if c.SerializePerUser && c.LockTTL <= c.SagaCompensationTimeout {
		return fmt.Errorf("SAGA_LOCK_TTL (%s) must exceed SAGA_COMPENSATION_TIMEOUT (%s)", c.LockTTL, c.SagaCompensationTimeout)
	}

	for _, cidr := range c.PprofAllowedCIDRs {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			return fmt.Errorf("invalid PPROF_ALLOWED_CIDRS entry %q: %w", cidr, err)
		}
	}

	for name, rawURL := range map[string]string{
		"BASKET_SERVICE_URL":    c.BasketServiceURL,
		"ORDER_SERVICE_URL":     c.OrderServiceURL,
		"INVENTORY_SERVICE_URL": c.InventoryServiceURL,
	} {
		if rawURL == "" {
			return fmt.Errorf("%s is required", name)
		}
		if _, err := url.ParseRequestURI(rawURL); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, rawURL, err)
		}
	}
	return nil
}

// compact trims list entries and drops empty ones.
func compact(list []string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Postgres returns the connection settings for the attempt log database.
func (c *Config) Postgres() database.PostgresConfig {
	return database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: c.DBMaxConnLifetime,
		MaxConnIdleTime: c.DBMaxConnIdleTime,
	}
}

// Redis returns the connection settings for the lock store.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}
