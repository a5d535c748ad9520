package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"chocolatier/backend/internal/cache"
	"chocolatier/backend/internal/config"
	"chocolatier/backend/internal/httpapi"
	"chocolatier/backend/internal/insight"
	"chocolatier/backend/internal/service"
	"chocolatier/backend/internal/store/memory"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := validateConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	configureLogging(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo := memory.New()
	if cfg.SeedDemoData {
		repo = memory.NewSeeded()
		log.Info().Msg("repository: in-memory, demo catalog loaded")
	} else {
		log.Info().Msg("repository: in-memory, empty")
	}

	closers := make([]func() error, 0, 1)
	cacheStore := cache.DashboardCache(cache.NoopDashboardCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisDashboardCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, using noop cache")
			_ = redisCache.Close()
		} else {
			cacheStore = redisCache
			closers = append(closers, redisCache.Close)
			log.Info().Str("addr", cfg.RedisAddr).Msg("cache: redis")
		}
	} else {
		log.Info().Msg("cache: noop")
	}

	engine := insight.NewEngine(cacheStore, cfg.DashboardCacheTTL())
	svc := service.New(repo, engine)
	if _, err := svc.GenerateAlerts(ctx); err != nil {
		log.Warn().Err(err).Msg("initial alert generation failed")
	}
	api := httpapi.New(svc, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Address()).Str("env", cfg.Env).Msg("chocolatier backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("close error")
		}
	}

	log.Info().Msg("server stopped")
}

// configureLogging uses the console writer in development and plain JSON
// everywhere else.
func configureLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func validateConfig(cfg *config.Config) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", cfg.Port)
	}
	switch cfg.Env {
	case "", "development", "production", "test":
	default:
		return fmt.Errorf("APP_ENV must be development, production or test, got %q", cfg.Env)
	}
	if cfg.LogLevel != "" {
		if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
			return fmt.Errorf("LOG_LEVEL %q: %w", cfg.LogLevel, err)
		}
	}
	if cfg.DashboardCacheTTLSeconds < 1 {
		return fmt.Errorf("DASHBOARD_CACHE_TTL_SECONDS must be positive, got %d", cfg.DashboardCacheTTLSeconds)
	}
	if cfg.RedisDB < 0 {
		return fmt.Errorf("REDIS_DB must not be negative, got %d", cfg.RedisDB)
	}
	if !cfg.IsDevelopment() && (cfg.AllowedOrigin == "" || strings.TrimSpace(cfg.AllowedOrigin) == "*") {
		return fmt.Errorf("ALLOWED_ORIGIN must name a concrete origin outside development")
	}
	return nil
}
