package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Auth    AuthConfig    `mapstructure:"auth"`
	CORS    CORSConfig    `mapstructure:"cors"`
	Log     LogConfig     `mapstructure:"log"`
	Guide   GuideConfig   `mapstructure:"guide"`
	Storage StorageConfig `mapstructure:"storage"`
	Audio   AudioConfig   `mapstructure:"audio"`
	Events  EventsConfig  `mapstructure:"events"`
	Cache   CacheConfig   `mapstructure:"cache"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	Host            string        `mapstructure:"host" validate:"required"`
	Environment     string        `mapstructure:"environment"`
	HealthCheckPath string        `mapstructure:"health_check_path"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       float64       `mapstructure:"rate_limit" validate:"gte=0"`
	RateBurst       int           `mapstructure:"rate_burst" validate:"gte=0"`
	SSEHeartbeat    time.Duration `mapstructure:"sse_heartbeat"`
}

// RedisConfig holds Redis-related configuration
type RedisConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	URLOverride string `mapstructure:"url"`
	Host        string `mapstructure:"host" validate:"required_if=Enabled true"`
	Port        int    `mapstructure:"port" validate:"min=1,max=65535"`
	Password    string `mapstructure:"password"`
	DB          int    `mapstructure:"db" validate:"gte=0"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret" validate:"min=8"`
	Issuer    string `mapstructure:"issuer"`
	// DeviceUserID is the session owner used when auth is disabled
	DeviceUserID string `mapstructure:"device_user_id" validate:"required"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level       string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Environment string `mapstructure:"environment"`
	Encoding    string `mapstructure:"encoding" validate:"oneof=json console"`
}

// GuideConfig holds proximity and session settings
type GuideConfig struct {
	MinDistance       float64       `mapstructure:"min_distance" validate:"gte=0"`
	MaxDistance       float64       `mapstructure:"max_distance" validate:"gt=0"`
	UseMinDistance    bool          `mapstructure:"use_min_distance"`
	LocationInterval  time.Duration `mapstructure:"location_interval" validate:"gte=100ms"`
	AudioGuideDefault bool          `mapstructure:"audio_guide_default"`
	EventBuffer       int           `mapstructure:"event_buffer" validate:"min=1"`
}

// StorageConfig describes where route media lives
type StorageConfig struct {
	BaseURL    string `mapstructure:"base_url" validate:"required,url"`
	ImagesPath string `mapstructure:"images_path" validate:"required"`
	AudioPath  string `mapstructure:"audio_path" validate:"required"`
	CloudFirst bool   `mapstructure:"cloud_first"`
	AssetsDir  string `mapstructure:"assets_dir"`
}

// AudioConfig selects the playback engine
type AudioConfig struct {
	Engine     string `mapstructure:"engine" validate:"oneof=mpg123 null"`
	PlayerPath string `mapstructure:"player_path"`
}

// EventsConfig selects the event bus backend
type EventsConfig struct {
	Backend       string `mapstructure:"backend" validate:"oneof=gochannel redis"`
	ConsumerGroup string `mapstructure:"consumer_group"`
}

// CacheConfig holds the offline route cache location
type CacheConfig struct {
	BoltPath string `mapstructure:"bolt_path"`
}

// Load loads configuration from .env, environment variables and config files
func Load() (*Config, error) {
	// .env is optional; real environment variables take precedence
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/tourguide")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration built from defaults only
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.health_check_path", "/health")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("server.sse_heartbeat", "30s")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Auth defaults
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret", "dev-jwt-secret-change-in-production")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.device_user_id", "onboard")

	// CORS defaults
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000", "http://localhost:8080"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Content-Type", "Authorization"})

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.environment", "development")
	v.SetDefault("log.encoding", "console")

	// Guide defaults
	v.SetDefault("guide.min_distance", 50.0)
	v.SetDefault("guide.max_distance", 100.0)
	v.SetDefault("guide.use_min_distance", false)
	v.SetDefault("guide.location_interval", "2s")
	v.SetDefault("guide.audio_guide_default", true)
	v.SetDefault("guide.event_buffer", 64)

	// Storage defaults
	v.SetDefault("storage.base_url", "https://storage.yandexcloud.net/trust-the-route-media")
	v.SetDefault("storage.images_path", "images/routes")
	v.SetDefault("storage.audio_path", "audio/routes")
	v.SetDefault("storage.cloud_first", true)
	v.SetDefault("storage.assets_dir", "./assets")

	// Audio defaults
	v.SetDefault("audio.engine", "mpg123")
	v.SetDefault("audio.player_path", "mpg123")

	// Events defaults
	v.SetDefault("events.backend", "gochannel")
	v.SetDefault("events.consumer_group", "tourguide")

	// Cache defaults
	v.SetDefault("cache.bolt_path", "./data/routes.db")
}

var validate = validator.New()

// validateConfig validates the loaded configuration
func validateConfig(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	if cfg.Guide.MinDistance > cfg.Guide.MaxDistance {
		return fmt.Errorf("guide min distance %.1f exceeds max distance %.1f", cfg.Guide.MinDistance, cfg.Guide.MaxDistance)
	}

	if cfg.Events.Backend == "redis" && !cfg.Redis.Enabled {
		return fmt.Errorf("redis event backend requires redis.enabled")
	}

	if cfg.Auth.Enabled && strings.Contains(cfg.Auth.JWTSecret, "change-in-production") && cfg.Server.IsProduction() {
		return fmt.Errorf("JWT secret must be changed in production")
	}

	return nil
}

// URL returns the Redis connection URL
func (r *RedisConfig) URL() string {
	if r.URLOverride != "" {
		return r.URLOverride
	}
	redisURL := fmt.Sprintf("redis://%s:%d", r.Host, r.Port)
	if r.Password != "" {
		redisURL = fmt.Sprintf("redis://:%s@%s:%d", r.Password, r.Host, r.Port)
	}
	if r.DB != 0 {
		redisURL = fmt.Sprintf("%s/%d", redisURL, r.DB)
	}
	return redisURL
}

// GetServerAddr returns the server address in host:port format
func (s *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// IsProduction returns true if the environment is production
func (s *ServerConfig) IsProduction() bool {
	return strings.ToLower(s.Environment) == "production"
}

