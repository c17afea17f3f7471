package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	BaseURL     string   `mapstructure:"BASE_URL"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string   `mapstructure:"REDIS_URL"`
	AuthSecret  string   `mapstructure:"AUTH_SECRET"`
	AuthIssuer  string   `mapstructure:"AUTH_ISSUER"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	ShareDefaultTTL    time.Duration `mapstructure:"SHARE_DEFAULT_TTL"`
	SyncMaxRetries     int           `mapstructure:"SYNC_MAX_RETRIES"`
	SyncRequestTimeout time.Duration `mapstructure:"SYNC_REQUEST_TIMEOUT"`
	SyncDrainInterval  time.Duration `mapstructure:"SYNC_DRAIN_INTERVAL"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("BASE_URL", "http://localhost:8000")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("SHARE_DEFAULT_TTL", "168h")
	v.SetDefault("SYNC_MAX_RETRIES", 3)
	v.SetDefault("SYNC_REQUEST_TIMEOUT", "10s")
	v.SetDefault("SYNC_DRAIN_INTERVAL", "30s")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("BASE_URL")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("AUTH_SECRET")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("SHARE_DEFAULT_TTL")
	v.BindEnv("SYNC_MAX_RETRIES")
	v.BindEnv("SYNC_REQUEST_TIMEOUT")
	v.BindEnv("SYNC_DRAIN_INTERVAL")

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
		log.Println("WARNING: DevAuthMiddleware is active — all requests get admin access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: Set ENV=production and configure AUTH_SECRET for production.")
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

// Validate checks that the configuration is safe to run. Outside development
// AUTH_SECRET must be set so real JWT authentication is enforced, and the
// share/sync knobs must be sane.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSecret == "" {
		return fmt.Errorf(
			"AUTH_SECRET must be set when ENV=%q. "+
				"Refusing to start without authentication configuration", c.Env)
	}
	if c.ShareDefaultTTL <= 0 {
		return fmt.Errorf("SHARE_DEFAULT_TTL must be positive, got %s", c.ShareDefaultTTL)
	}
	if c.SyncMaxRetries <= 0 {
		return fmt.Errorf("SYNC_MAX_RETRIES must be positive, got %d", c.SyncMaxRetries)
	}
	if c.SyncRequestTimeout <= 0 {
		return fmt.Errorf("SYNC_REQUEST_TIMEOUT must be positive, got %s", c.SyncRequestTimeout)
	}
	if c.BaseURL == "" {
		return fmt.Errorf("BASE_URL is required")
	}
	return nil
}
