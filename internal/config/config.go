package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds runtime settings read from the environment and an optional
// .env file in the working directory.
type Config struct {
	// Server
	Port          int    `mapstructure:"PORT"`
	Env           string `mapstructure:"APP_ENV"` // development | production
	LogLevel      string `mapstructure:"LOG_LEVEL"`
	AllowedOrigin string `mapstructure:"ALLOWED_ORIGIN"`
	SeedDemoData  bool   `mapstructure:"SEED_DEMO_DATA"`

	// Redis dashboard cache; disabled when RedisAddr is empty
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	DashboardCacheTTLSeconds int `mapstructure:"DASHBOARD_CACHE_TTL_SECONDS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	// every key needs a default so AutomaticEnv picks it up during Unmarshal
	v.SetDefault("PORT", 8080)
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:5173")
	v.SetDefault("SEED_DEMO_DATA", true)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("DASHBOARD_CACHE_TTL_SECONDS", 30)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read .env: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.AllowedOrigin = strings.TrimSpace(cfg.AllowedOrigin)
	cfg.RedisAddr = strings.TrimSpace(cfg.RedisAddr)
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c Config) IsDevelopment() bool {
	return c.Env == "" || c.Env == "development"
}

func (c Config) DashboardCacheTTL() time.Duration {
	return time.Duration(c.DashboardCacheTTLSeconds) * time.Second
}
