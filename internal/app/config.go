package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (PRICING_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (PRICING_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing; empty disables auth on rule mutations" flag:"api-key-pepper"`
	Rates        RatesConfig
	Cache        CacheConfig
	Analytics    AnalyticsConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// RatesConfig points the engine at the tax and shipping rate service.
// With an empty URL all rates resolve as missing and contribute zero.
type RatesConfig struct {
	URL         string        `default:"" usage:"Rate service base URL" flag:"rates-url"`
	Environment string        `default:"production" usage:"Rate service environment" flag:"rates-env"`
	Timeout     time.Duration `default:"2s" usage:"Rate lookup timeout" flag:"rates-timeout"`
}

// CacheConfig selects the price cache backend. With an empty RedisAddr an
// in-process cache is used.
type CacheConfig struct {
	RedisAddr     string        `default:"" usage:"Redis address (host:port); empty uses in-memory cache" flag:"redis-addr"`
	RedisPassword string        `default:"" usage:"Redis password" flag:"redis-password"`
	RedisDB       int           `default:"0" usage:"Redis database number" flag:"redis-db"`
	SweepEvery    time.Duration `default:"1m" usage:"In-memory cache eviction interval" flag:"cache-sweep"`
}

// AnalyticsConfig controls pricing event delivery. With no brokers events
// are dropped.
type AnalyticsConfig struct {
	KafkaBrokers []string `usage:"Kafka broker addresses; empty disables analytics" flag:"kafka-brokers"`
	KafkaTopic   string   `default:"pricing-events" usage:"Kafka topic for pricing events" flag:"kafka-topic"`
	QueueSize    int      `default:"1024" usage:"In-process analytics queue capacity" flag:"analytics-queue"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "PRICING",
		Files:     []string{"config.yaml", "/etc/pricing/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set PRICING_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL and PORT to the application's PRICING_-
// prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.Cache.RedisAddr == "" {
		if v := os.Getenv("REDIS_URL"); v != "" {
			c.Cache.RedisAddr = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
