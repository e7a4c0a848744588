package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:3000"

// Config holds the complete application configuration, loadable from
// environment variables (CHILS_ prefix), flags, or YAML config files.
type Config struct {
	Addr           string        `default:"0.0.0.0:3000" usage:"API server listen address"`
	Env            string        `default:"development" usage:"Deployment environment; production hides internal error details"`
	DatabaseURL    string        `usage:"PostgreSQL connection URL (CHILS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RequestTimeout time.Duration `default:"30s" usage:"Per-request handler deadline" flag:"request-timeout"`
	Redis          RedisConfig
	Session        SessionConfig
	Auth           AuthConfig
	Payment        PaymentConfig
	Kafka          KafkaConfig
	RateLimit      RateLimitConfig
	AuthRateLimit  AuthRateLimitConfig
	Graceful       GracefulConfig
}

// RedisConfig locates the session store.
type RedisConfig struct {
	URL string `default:"redis://localhost:6379/0" usage:"Redis URL (CHILS_REDIS_URL or REDIS_URL)" flag:"redis-url"`
}

// SessionConfig controls the session cookie.
type SessionConfig struct {
	CookieName string        `default:"chils_session" usage:"Session cookie name"`
	TTL        time.Duration `default:"24h" usage:"Session lifetime"`
}

// AuthConfig controls password hashing.
type AuthConfig struct {
	BcryptCost int `default:"12" usage:"bcrypt work factor"`
}

// PaymentConfig controls the GCash flow.
type PaymentConfig struct {
	Recipient       string `default:"Chils Korean Store" usage:"Merchant name encoded in payment QR codes"`
	WebhookSecret   string `usage:"HMAC secret shared with the payment provider (CHILS_PAYMENT_WEBHOOK_SECRET)" flag:"webhook-secret"`
	CustomerConfirm bool   `default:"true" usage:"Allow customers to confirm their own payments (demo mode)" flag:"customer-confirm"`
}

// KafkaConfig controls domain event publishing. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka bootstrap brokers"`
	Topic   string   `default:"chils.orders" usage:"Topic for order and payment events"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"15m" usage:"Rate limit window duration"`
}

// AuthRateLimitConfig is the stricter limiter in front of login and
// registration.
type AuthRateLimitConfig struct {
	Max    int           `default:"5"   usage:"Max authentication attempts per window"`
	Window time.Duration `default:"15m" usage:"Authentication rate limit window"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// Production reports whether the service runs in production.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(os.Args[1:])
}

func loadConfig(args []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CHILS",
		Args:      args,
		Files:     []string{"config.yaml", "/etc/chils/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's CHILS_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if v := os.Getenv("REDIS_URL"); v != "" && os.Getenv("CHILS_REDIS_URL") == "" {
		c.Redis.URL = v
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set CHILS_DATABASE_URL or DATABASE_URL")
	case c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31:
		return errors.Errorf("bcrypt cost %d out of range [4, 31]", c.Auth.BcryptCost)
	case c.Session.TTL <= 0:
		return errors.New("session TTL must be positive")
	case c.Kafka.Topic == "" && len(c.Kafka.Brokers) > 0:
		return errors.New("kafka topic is required when brokers are set")
	}
	return nil
}
