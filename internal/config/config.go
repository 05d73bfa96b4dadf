package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string   `mapstructure:"PORT"`
	Env           string   `mapstructure:"ENV"`
	DatabaseURL   string   `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32    `mapstructure:"DB_MIN_CONNS"`
	AuthJWTSecret string   `mapstructure:"AUTH_JWT_SECRET"`
	AuthIssuer    string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience  string   `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins   []string `mapstructure:"CORS_ORIGINS"`
	Locale        string   `mapstructure:"LOCALE"`
	Timezone      string   `mapstructure:"TIMEZONE"`
	MigrationsDir string   `mapstructure:"MIGRATIONS_DIR"`
	BodyLimit     string   `mapstructure:"BODY_LIMIT"`
	SMTPAddr      string   `mapstructure:"SMTP_ADDR"`
	SMTPUsername  string   `mapstructure:"SMTP_USERNAME"`
	SMTPPassword  string   `mapstructure:"SMTP_PASSWORD"`
	MailFrom      string   `mapstructure:"MAIL_FROM"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("LOCALE", "de")
	v.SetDefault("TIMEZONE", "Europe/Berlin")
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("BODY_LIMIT", "2M")
	v.SetDefault("MAIL_FROM", "praxis@localhost")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"AUTH_JWT_SECRET", "AUTH_ISSUER", "AUTH_AUDIENCE", "CORS_ORIGINS",
		"LOCALE", "TIMEZONE", "MIGRATIONS_DIR", "BODY_LIMIT",
		"SMTP_ADDR", "SMTP_USERNAME", "SMTP_PASSWORD", "MAIL_FROM",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: running in development mode, every request is treated as admin")
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

// Location loads the clinic time zone used for schedules and rendered dates.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run. Outside development
// AUTH_JWT_SECRET must be set so bearer tokens are verified.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthJWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required when ENV=%q", c.Env)
	}
	if c.AuthJWTSecret != "" && len(c.AuthJWTSecret) < 32 {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least 32 characters, got %d", len(c.AuthJWTSecret))
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.SMTPUsername != "" && c.SMTPAddr == "" {
		return fmt.Errorf("SMTP_USERNAME is set but SMTP_ADDR is empty")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
