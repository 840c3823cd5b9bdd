package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendMemory   = "memory"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	StoreBackend   string        `mapstructure:"STORE_BACKEND"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir  string        `mapstructure:"MIGRATIONS_DIR"`
	MongoURL       string        `mapstructure:"MONGO_URL"`
	MongoDatabase  string        `mapstructure:"MONGO_DATABASE"`
	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	ClinicTimezone string        `mapstructure:"CLINIC_TIMEZONE"`
	ClinicName     string        `mapstructure:"CLINIC_NAME"`
	ClinicDoctor   string        `mapstructure:"CLINIC_DOCTOR"`
	SearchBatch    int           `mapstructure:"SEARCH_BATCH_SIZE"`
}

var keys = []string{
	"PORT", "ENV", "STORE_BACKEND", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"MIGRATIONS_DIR", "MONGO_URL", "MONGO_DATABASE", "AUTH_SIGNING_KEY", "AUTH_ISSUER",
	"AUTH_AUDIENCE", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"REQUEST_TIMEOUT", "BODY_LIMIT", "CLINIC_TIMEZONE", "CLINIC_NAME", "CLINIC_DOCTOR",
	"SEARCH_BATCH_SIZE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_BACKEND", BackendPostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MONGO_DATABASE", "clinic")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("CLINIC_TIMEZONE", "Local")
	v.SetDefault("CLINIC_NAME", "Obonti Piles Clinic")
	v.SetDefault("CLINIC_DOCTOR", "Dr. Abhijit Kumar")
	v.SetDefault("SEARCH_BATCH_SIZE", 20)

	// Unmarshal only sees env vars that are bound explicitly.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
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
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		log.Println("WARNING: ENV=development and AUTH_SIGNING_KEY is empty; all requests get admin access.")
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

// Location resolves CLINIC_TIMEZONE. Month boundaries for reports are computed
// in this zone.
func (c *Config) Location() (*time.Location, error) {
	if c.ClinicTimezone == "" || c.ClinicTimezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("CLINIC_TIMEZONE %q: %w", c.ClinicTimezone, err)
	}
	return loc, nil
}

// Validate checks backend-specific settings and refuses to run outside
// development without a token signing key.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is %q", BackendPostgres)
		}
	case BackendMongo:
		if c.MongoURL == "" {
			return fmt.Errorf("MONGO_URL is required when STORE_BACKEND is %q", BackendMongo)
		}
		if c.MongoDatabase == "" {
			return fmt.Errorf("MONGO_DATABASE must not be empty")
		}
	case BackendMemory:
		if c.IsProduction() {
			return fmt.Errorf("STORE_BACKEND %q is not allowed in production", BackendMemory)
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be %q, %q, or %q, got %q",
			BackendPostgres, BackendMongo, BackendMemory, c.StoreBackend)
	}

	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required when ENV=%q", c.Env)
	}
	if c.SearchBatch <= 0 {
		return fmt.Errorf("SEARCH_BATCH_SIZE must be positive, got %d", c.SearchBatch)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
