package internal

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Payments      PaymentsConfig      `mapstructure:"payments"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	Source          string        `mapstructure:"source"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

type PaymentsConfig struct {
	DefaultProvider string                    `mapstructure:"default_provider"`
	ChargeTimeout   time.Duration             `mapstructure:"charge_timeout"`
	Webhook         WebhookConfig             `mapstructure:"webhook"`
	Providers       map[string]ProviderConfig `mapstructure:"providers"`
}

type ProviderConfig struct {
	APIKey        string `mapstructure:"api_key"`
	SigningSecret string `mapstructure:"signing_secret"`
	BaseURL       string `mapstructure:"base_url"`
	Sandbox       bool   `mapstructure:"sandbox"`
}

type WebhookConfig struct {
	TolerancePast   time.Duration `mapstructure:"tolerance_past"`
	ToleranceFuture time.Duration `mapstructure:"tolerance_future"`
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

// LoadConfigFromEnv builds the config from environment variables for
// containerized deployments, where no config file is mounted.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("SERVER_PORT", 8080),
			BaseURL:           getEnv("SERVER_BASE_URL", ""),
			ReadHeaderTimeout: getEnvAsDuration("SERVER_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DATABASE_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DATABASE_URL", ""),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
		Payments: PaymentsConfig{
			DefaultProvider: getEnv("PAYMENTS_DEFAULT_PROVIDER", "payverse"),
			ChargeTimeout:   getEnvAsDuration("PAYMENTS_CHARGE_TIMEOUT", 30*time.Second),
			Webhook: WebhookConfig{
				TolerancePast:   getEnvAsDuration("WEBHOOK_TOLERANCE_PAST", 5*time.Minute),
				ToleranceFuture: getEnvAsDuration("WEBHOOK_TOLERANCE_FUTURE", time.Minute),
			},
			Providers: map[string]ProviderConfig{
				"payverse": {
					APIKey:        getEnv("PAYVERSE_API_KEY", ""),
					SigningSecret: getEnv("PAYVERSE_SIGNING_SECRET", ""),
					BaseURL:       getEnv("PAYVERSE_BASE_URL", "https://api.payverse.io"),
					Sandbox:       getEnvAsBool("PAYVERSE_SANDBOX", false),
				},
				"trustgate": {
					APIKey:        getEnv("TRUSTGATE_API_KEY", ""),
					SigningSecret: getEnv("TRUSTGATE_SIGNING_SECRET", ""),
					BaseURL:       getEnv("TRUSTGATE_BASE_URL", "https://gateway.trustgate.net"),
					Sandbox:       getEnvAsBool("TRUSTGATE_SANDBOX", false),
				},
			},
		},
	}
	return cfg
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Payments.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("payments config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	if c.Source == "" {
		return errors.New("source is required")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *PaymentsConfig) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("at least one provider must be configured")
	}
	for name, pc := range c.Providers {
		if pc.SigningSecret == "" {
			return fmt.Errorf("provider %s: signing_secret is required", name)
		}
		if pc.APIKey == "" {
			return fmt.Errorf("provider %s: api_key is required", name)
		}
	}
	if c.DefaultProvider != "" {
		if _, ok := c.Providers[strings.ToLower(c.DefaultProvider)]; !ok {
			return fmt.Errorf("default_provider %s is not configured", c.DefaultProvider)
		}
	}
	if c.ChargeTimeout <= 0 {
		return errors.New("charge_timeout must be positive")
	}
	return nil
}
