package utils

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Events    EventsConfig
	Gateway   GatewayConfig
	Booking   BookingConfig
	Tracing   TracingConfig
	RateLimit RateLimitConfig
}

type AppConfig struct {
	Name    string
	Port    string
	Debug   bool
	LogPath string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// EventsConfig points at the broker receiving settlement events.
// An empty URL disables publishing.
type EventsConfig struct {
	URL      string
	Exchange string
}

type GatewayConfig struct {
	BaseURL          string
	APIKey           string
	HMACSecret       string
	IntegrationID    int64
	IframeID         int64
	Currency         string
	Timeout          time.Duration
	TokenTTL         time.Duration
	PaymentKeyExpiry time.Duration
}

type BookingConfig struct {
	PlatformFeeBps int64
	IdempotencyTTL time.Duration
	RefundLockTTL  time.Duration
	MethodCacheTTL time.Duration
}

type TracingConfig struct {
	Endpoint    string
	Environment string
}

// RateLimitConfig limits per client IP. The webhook pair applies to the
// gateway callback route only.
type RateLimitConfig struct {
	RPS          float64
	Burst        int
	WebhookRPS   float64
	WebhookBurst int
}

func LoadConfig() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")

	// Set defaults
	viper.SetDefault("APP_NAME", "stay-booking")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("DEBUG", false)
	viper.SetDefault("LOG_PATH", "logs/")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_MAX_CONNS", 10)
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("EVENTS_EXCHANGE", "stay.events")
	viper.SetDefault("GATEWAY_BASE_URL", "https://accept.paymob.com")
	viper.SetDefault("GATEWAY_CURRENCY", "EGP")
	viper.SetDefault("GATEWAY_TIMEOUT_SECONDS", 15)
	viper.SetDefault("GATEWAY_TOKEN_TTL_MINUTES", 55)
	viper.SetDefault("GATEWAY_PAYMENT_KEY_EXPIRY_SECONDS", 3600)
	viper.SetDefault("BOOKING_PLATFORM_FEE_BPS", 1200)
	viper.SetDefault("BOOKING_IDEMPOTENCY_TTL_HOURS", 24)
	viper.SetDefault("BOOKING_REFUND_LOCK_SECONDS", 30)
	viper.SetDefault("BOOKING_METHOD_CACHE_SECONDS", 300)
	viper.SetDefault("ENV", "dev")
	viper.SetDefault("RATE_LIMIT_RPS", 5)
	viper.SetDefault("RATE_LIMIT_BURST", 10)
	viper.SetDefault("WEBHOOK_RATE_LIMIT_RPS", 200)
	viper.SetDefault("WEBHOOK_RATE_LIMIT_BURST", 500)

	// .env is optional when everything comes from the environment
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	viper.AutomaticEnv()

	config := &Config{
		App: AppConfig{
			Name:    viper.GetString("APP_NAME"),
			Port:    viper.GetString("PORT"),
			Debug:   viper.GetBool("DEBUG"),
			LogPath: viper.GetString("LOG_PATH"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			Name:     viper.GetString("DB_NAME"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASS"),
			MaxConns: viper.GetInt32("DB_MAX_CONNS"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("REDIS_ADDR"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		Events: EventsConfig{
			URL:      viper.GetString("RABBIT_URL"),
			Exchange: viper.GetString("EVENTS_EXCHANGE"),
		},
		Gateway: GatewayConfig{
			BaseURL:          viper.GetString("GATEWAY_BASE_URL"),
			APIKey:           viper.GetString("GATEWAY_API_KEY"),
			HMACSecret:       viper.GetString("GATEWAY_HMAC_SECRET"),
			IntegrationID:    viper.GetInt64("GATEWAY_INTEGRATION_ID"),
			IframeID:         viper.GetInt64("GATEWAY_IFRAME_ID"),
			Currency:         viper.GetString("GATEWAY_CURRENCY"),
			Timeout:          time.Duration(viper.GetInt("GATEWAY_TIMEOUT_SECONDS")) * time.Second,
			TokenTTL:         time.Duration(viper.GetInt("GATEWAY_TOKEN_TTL_MINUTES")) * time.Minute,
			PaymentKeyExpiry: time.Duration(viper.GetInt("GATEWAY_PAYMENT_KEY_EXPIRY_SECONDS")) * time.Second,
		},
		Booking: BookingConfig{
			PlatformFeeBps: viper.GetInt64("BOOKING_PLATFORM_FEE_BPS"),
			IdempotencyTTL: time.Duration(viper.GetInt("BOOKING_IDEMPOTENCY_TTL_HOURS")) * time.Hour,
			RefundLockTTL:  time.Duration(viper.GetInt("BOOKING_REFUND_LOCK_SECONDS")) * time.Second,
			MethodCacheTTL: time.Duration(viper.GetInt("BOOKING_METHOD_CACHE_SECONDS")) * time.Second,
		},
		Tracing: TracingConfig{
			Endpoint:    viper.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Environment: viper.GetString("ENV"),
		},
		RateLimit: RateLimitConfig{
			RPS:          viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:        viper.GetInt("RATE_LIMIT_BURST"),
			WebhookRPS:   viper.GetFloat64("WEBHOOK_RATE_LIMIT_RPS"),
			WebhookBurst: viper.GetInt("WEBHOOK_RATE_LIMIT_BURST"),
		},
	}

	if err := config.Gateway.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (g GatewayConfig) validate() error {
	switch {
	case g.APIKey == "":
		return fmt.Errorf("missing required config GATEWAY_API_KEY")
	case g.HMACSecret == "":
		return fmt.Errorf("missing required config GATEWAY_HMAC_SECRET")
	case g.IntegrationID == 0:
		return fmt.Errorf("missing required config GATEWAY_INTEGRATION_ID")
	}
	return nil
}
