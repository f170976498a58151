package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                  string   `mapstructure:"PORT"`
	Env                   string   `mapstructure:"ENV"`
	DatabaseURL           string   `mapstructure:"DATABASE_URL"`
	DBMaxConns            int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns            int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins           []string `mapstructure:"CORS_ORIGINS"`
	AuthJWTSecret         string   `mapstructure:"AUTH_JWT_SECRET"`
	RateLimitRPS          float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst        int      `mapstructure:"RATE_LIMIT_BURST"`
	EscalationIntervalMin int      `mapstructure:"ESCALATION_INTERVAL_MIN"`
	EscalationAfterHours  int      `mapstructure:"ESCALATION_AFTER_HOURS"`
	DeviceSyncIntervalMin int      `mapstructure:"DEVICE_SYNC_INTERVAL_MIN"`
	VendorAPIURL          string   `mapstructure:"VENDOR_API_URL"`
	VendorAPIKey          string   `mapstructure:"VENDOR_API_KEY"`
	NotifyWebhookURL      string   `mapstructure:"NOTIFY_WEBHOOK_URL"`
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
	v.SetDefault("ESCALATION_INTERVAL_MIN", 30)
	v.SetDefault("ESCALATION_AFTER_HOURS", 4)
	v.SetDefault("DEVICE_SYNC_INTERVAL_MIN", 15)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("AUTH_JWT_SECRET")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("ESCALATION_INTERVAL_MIN")
	v.BindEnv("ESCALATION_AFTER_HOURS")
	v.BindEnv("DEVICE_SYNC_INTERVAL_MIN")
	v.BindEnv("VENDOR_API_URL")
	v.BindEnv("VENDOR_API_KEY")
	v.BindEnv("NOTIFY_WEBHOOK_URL")

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

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active — all requests get staff access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: Set ENV=production and configure AUTH_JWT_SECRET for production.")
		log.Println("WARNING: ============================================================")
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

// EscalationInterval is how often the escalation cycle runs.
func (c *Config) EscalationInterval() time.Duration {
	return time.Duration(c.EscalationIntervalMin) * time.Minute
}

// EscalationAfter is how long an alert may sit unacknowledged at a level
// before the next cycle escalates it.
func (c *Config) EscalationAfter() time.Duration {
	return time.Duration(c.EscalationAfterHours) * time.Hour
}

// DeviceSyncInterval is how often registered device connections are pulled.
func (c *Config) DeviceSyncInterval() time.Duration {
	return time.Duration(c.DeviceSyncIntervalMin) * time.Minute
}

// DeviceSyncEnabled reports whether a vendor endpoint is configured; without
// one the sync job is not started.
func (c *Config) DeviceSyncEnabled() bool {
	return c.VendorAPIURL != ""
}

// Validate checks that the configuration is safe to run. Outside development
// AUTH_JWT_SECRET must be set so that real bearer-token authentication is
// enforced, and the scheduler knobs must be positive.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthJWTSecret == "" {
		return fmt.Errorf(
			"AUTH_JWT_SECRET must be set when ENV is not \"development\" (current ENV=%q). "+
				"Refusing to start without authentication configuration", c.Env)
	}
	if c.EscalationIntervalMin <= 0 {
		return fmt.Errorf("ESCALATION_INTERVAL_MIN must be positive, got %d", c.EscalationIntervalMin)
	}
	if c.EscalationAfterHours <= 0 {
		return fmt.Errorf("ESCALATION_AFTER_HOURS must be positive, got %d", c.EscalationAfterHours)
	}
	if c.DeviceSyncIntervalMin <= 0 {
		return fmt.Errorf("DEVICE_SYNC_INTERVAL_MIN must be positive, got %d", c.DeviceSyncIntervalMin)
	}
	if c.DeviceSyncEnabled() && c.VendorAPIKey == "" {
		return fmt.Errorf("VENDOR_API_KEY is required when VENDOR_API_URL is set")
	}
	return nil
}
