package config

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/danghamo/tourguide/pkg/logger"
)

// Initialize loads configuration, builds the logger from its log section and
// installs it as the global logger
func Initialize() (*Config, *logger.Logger, error) {
	cfg, err := Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := NewLogger(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.SetGlobalLogger(appLogger)

	appLogger.Info("Configuration loaded",
		zap.String("environment", cfg.Server.Environment),
		zap.String("address", cfg.Server.GetServerAddr()),
		zap.Bool("auth_enabled", cfg.Auth.Enabled),
		zap.Bool("redis_enabled", cfg.Redis.Enabled),
		zap.String("events_backend", cfg.Events.Backend),
		zap.String("audio_engine", cfg.Audio.Engine),
		zap.Float64("max_distance", cfg.Guide.MaxDistance),
		zap.Bool("use_min_distance", cfg.Guide.UseMinDistance),
		zap.Duration("location_interval", cfg.Guide.LocationInterval),
	)

	return cfg, appLogger, nil
}

// NewLogger builds the application logger from the log section
func NewLogger(cfg *Config) (*logger.Logger, error) {
	env := cfg.Log.Environment
	if env == "" {
		env = cfg.Server.Environment
	}
	return logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Log.Level),
		Environment: env,
		Encoding:    cfg.Log.Encoding,
	})
}
