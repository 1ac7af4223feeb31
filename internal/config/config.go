package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	// RedisURL enables the distributed per-doctor booking lock. When empty
	// the server falls back to an in-process lock (single instance only).
	RedisURL string `mapstructure:"REDIS_URL"`

	JWTSecret      string `mapstructure:"JWT_SECRET"`
	JWTExpiryHours int    `mapstructure:"JWT_EXPIRY_HOURS"`

	PaymentBaseURL        string `mapstructure:"PAYMENT_BASE_URL"`
	PaymentKeyID          string `mapstructure:"PAYMENT_KEY_ID"`
	PaymentKeySecret      string `mapstructure:"PAYMENT_KEY_SECRET"`
	PaymentTimeoutSeconds int    `mapstructure:"PAYMENT_TIMEOUT_SECONDS"`
	Currency              string `mapstructure:"CURRENCY"`

	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("JWT_EXPIRY_HOURS", 24)
	v.SetDefault("PAYMENT_BASE_URL", "https://api.razorpay.com")
	v.SetDefault("PAYMENT_TIMEOUT_SECONDS", 15)
	v.SetDefault("CURRENCY", "INR")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"REDIS_URL", "JWT_SECRET", "JWT_EXPIRY_HOURS",
		"PAYMENT_BASE_URL", "PAYMENT_KEY_ID", "PAYMENT_KEY_SECRET",
		"PAYMENT_TIMEOUT_SECONDS", "CURRENCY",
		"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) PaymentTimeout() time.Duration {
	return time.Duration(c.PaymentTimeoutSeconds) * time.Second
}

// Validate checks that the configuration is safe to run. Outside development
// mode the server refuses to start without a JWT secret and payment gateway
// credentials.
func (c *Config) Validate() error {
	if c.IsDev() {
		return nil
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
	}
	if c.PaymentKeyID == "" || c.PaymentKeySecret == "" {
		return fmt.Errorf("PAYMENT_KEY_ID and PAYMENT_KEY_SECRET are required when ENV=%q", c.Env)
	}
	if c.PaymentTimeoutSeconds <= 0 {
		return fmt.Errorf("PAYMENT_TIMEOUT_SECONDS must be positive, got %d", c.PaymentTimeoutSeconds)
	}
	return nil
}
