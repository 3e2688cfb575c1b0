package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	JWTSecret         string        `mapstructure:"JWT_SECRET"`
	JWTExpiration     time.Duration `mapstructure:"JWT_EXPIRATION"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	LowStockThreshold int           `mapstructure:"LOW_STOCK_THRESHOLD"`
	ReminderEnabled   bool          `mapstructure:"REMINDER_ENABLED"`
	ReminderInterval  time.Duration `mapstructure:"REMINDER_INTERVAL"`
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
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("LOW_STOCK_THRESHOLD", 5)
	v.SetDefault("REMINDER_ENABLED", false)
	v.SetDefault("REMINDER_INTERVAL", "1m")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("JWT_EXPIRATION")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("LOW_STOCK_THRESHOLD")
	v.BindEnv("REMINDER_ENABLED")
	v.BindEnv("REMINDER_INTERVAL")

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

// Validate checks that the configuration is safe to run. Outside development
// a real JWT secret must be configured; tokens signed with a short or empty
// secret are forgeable.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if !c.IsDev() && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes outside development (ENV=%q)", c.Env)
	}
	if c.JWTExpiration <= 0 {
		return fmt.Errorf("JWT_EXPIRATION must be positive, got %s", c.JWTExpiration)
	}
	if c.LowStockThreshold < 0 {
		return fmt.Errorf("LOW_STOCK_THRESHOLD must not be negative, got %d", c.LowStockThreshold)
	}
	if c.ReminderEnabled && c.ReminderInterval <= 0 {
		return fmt.Errorf("REMINDER_INTERVAL must be positive when REMINDER_ENABLED is true")
	}
	return nil
}
