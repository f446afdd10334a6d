package config

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/rezonia/stock-intake/internal/logger"
	"github.com/rezonia/stock-intake/internal/model"
)

// Config holds runtime settings. Every field maps to an env var of the same name.
type Config struct {
	// Logging
	LogLevel      string `mapstructure:"LOG_LEVEL" validate:"oneof=trace debug info warn error"`
	LogFormat     string `mapstructure:"LOG_FORMAT" validate:"oneof=console json"`
	LogTimeFormat string `mapstructure:"LOG_TIME_FORMAT"`
	LogOutput     string `mapstructure:"LOG_OUTPUT"`

	// Matching
	MatchThreshold  float64 `mapstructure:"MATCH_THRESHOLD" validate:"gt=0,lte=1"`
	ReviewThreshold float64 `mapstructure:"REVIEW_THRESHOLD" validate:"gt=0,lte=1"`
	Workers         int     `mapstructure:"WORKERS" validate:"min=1,max=64"`
	CatalogFile     string  `mapstructure:"CATALOG_FILE"`

	// Ledger backends; both optional, in-memory when empty
	DatabaseURL string        `mapstructure:"DATABASE_URL"`
	RedisURL    string        `mapstructure:"REDIS_URL" validate:"omitempty,url"`
	LockTTL     time.Duration `mapstructure:"LOCK_TTL" validate:"gte=100ms"`
	ClockSkew   time.Duration `mapstructure:"CLOCK_SKEW" validate:"gte=0"`
}

// SetDefaults registers the default for every key on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("LOG_TIME_FORMAT", time.RFC3339)
	v.SetDefault("LOG_OUTPUT", "stderr")
	v.SetDefault("MATCH_THRESHOLD", 0.75)
	v.SetDefault("REVIEW_THRESHOLD", 0.9)
	v.SetDefault("WORKERS", 4)
	v.SetDefault("CATALOG_FILE", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("LOCK_TTL", 10*time.Second)
	v.SetDefault("CLOCK_SKEW", 5*time.Minute)
}

// Load reads configuration from the environment and an optional .env file
// through the global viper instance, which is where the CLI binds its flags.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads configuration through v
func LoadFrom(v *viper.Viper) (*Config, error) {
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	SetDefaults(v)

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags and reports each failing key
func (c *Config) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("mapstructure")
	})
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config validation failed: %w", err)
	}

	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, model.NewValidationError(fe.Field(), fe.Value(), fe.ActualTag(), "invalid setting"))
	}
	return fmt.Errorf("config validation failed: %w", errors.Join(errs...))
}

// LoggerConfig returns the logger settings from the main config
func (c *Config) LoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}
