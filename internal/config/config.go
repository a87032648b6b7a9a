package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port             string   `mapstructure:"PORT"`
	Env              string   `mapstructure:"ENV"`
	DatabaseURL      string   `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL         string   `mapstructure:"REDIS_URL"`
	AuthSigningKey   string   `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins      []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS     float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int      `mapstructure:"RATE_LIMIT_BURST"`
	SlotLockTTLSecs  int      `mapstructure:"SLOT_LOCK_TTL_SECONDS"`
	LockSweepSecs    int      `mapstructure:"LOCK_SWEEP_SECONDS"`
	StripeAPIKey     string   `mapstructure:"STRIPE_API_KEY"`
	StripeCurrency   string   `mapstructure:"STRIPE_CURRENCY"`
	ConsultFeeCents  int64    `mapstructure:"CONSULT_FEE_CENTS"`
	MailFromAddress  string   `mapstructure:"MAIL_FROM_ADDRESS"`
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
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("SLOT_LOCK_TTL_SECONDS", 300)
	v.SetDefault("LOCK_SWEEP_SECONDS", 60)
	v.SetDefault("STRIPE_CURRENCY", "usd")
	v.SetDefault("CONSULT_FEE_CENTS", 5000)
	v.SetDefault("MAIL_FROM_ADDRESS", "bookings@carebook.local")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("AUTH_SIGNING_KEY")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("SLOT_LOCK_TTL_SECONDS")
	v.BindEnv("LOCK_SWEEP_SECONDS")
	v.BindEnv("STRIPE_API_KEY")
	v.BindEnv("STRIPE_CURRENCY")
	v.BindEnv("CONSULT_FEE_CENTS")
	v.BindEnv("MAIL_FROM_ADDRESS")

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

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// LockTTL returns the slot lock time-to-live as a duration.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.SlotLockTTLSecs) * time.Second
}

// LockSweepInterval returns how often the expired-lock sweep runs.
func (c *Config) LockSweepInterval() time.Duration {
	return time.Duration(c.LockSweepSecs) * time.Second
}

// Validate checks that the configuration is safe to run. Outside development
// mode AUTH_SIGNING_KEY must be set so that real JWT authentication is
// enforced, and the lock sweep interval must not exceed a third of the lock
// TTL or expired locks could outlive their slot by a full sweep period.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf(
			"AUTH_SIGNING_KEY must be set when ENV is %q. "+
				"Refusing to start without authentication configuration", c.Env)
	}
	if c.SlotLockTTLSecs <= 0 {
		return fmt.Errorf("SLOT_LOCK_TTL_SECONDS must be positive, got %d", c.SlotLockTTLSecs)
	}
	if c.LockSweepSecs <= 0 {
		return fmt.Errorf("LOCK_SWEEP_SECONDS must be positive, got %d", c.LockSweepSecs)
	}
	if c.LockSweepSecs*3 > c.SlotLockTTLSecs {
		return fmt.Errorf("LOCK_SWEEP_SECONDS (%d) must be at most a third of SLOT_LOCK_TTL_SECONDS (%d)",
			c.LockSweepSecs, c.SlotLockTTLSecs)
	}
	if c.IsProduction() && c.StripeAPIKey == "" {
		return fmt.Errorf("STRIPE_API_KEY is required in production")
	}
	return nil
}
