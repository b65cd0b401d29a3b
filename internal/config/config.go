package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port               string          `mapstructure:"port"`
	PublicBaseURL      string          `mapstructure:"public_base_url"`
	JWTSecret          string          `mapstructure:"jwt_secret"`
	WebhookSecret      string          `mapstructure:"webhook_secret"`
	WebhookURL         string          `mapstructure:"webhook_url"`
	MaxUploadSize      int64           `mapstructure:"max_upload_size"`
	SessionTTL         time.Duration   `mapstructure:"session_ttl"`
	SessionIdleTimeout time.Duration   `mapstructure:"session_idle_timeout"`
	RateLimit          RateLimitConfig `mapstructure:"rate_limit"`
	Redis              RedisConfig     `mapstructure:"redis"`
	Storage            StorageConfig   `mapstructure:"storage"`
	Database           DatabaseConfig  `mapstructure:"database"`
	Inference          InferenceConfig `mapstructure:"inference"`
	Poll               PollConfig      `mapstructure:"poll"`
}

type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Duration time.Duration `mapstructure:"duration"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// StorageConfig selects the object storage backend: "local" or "s3".
type StorageConfig struct {
	Driver string   `mapstructure:"driver"`
	Bucket string   `mapstructure:"bucket"`
	Dir    string   `mapstructure:"dir"`
	S3     S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	PublicURL       string `mapstructure:"public_url"`
}

// DatabaseConfig selects the records store: "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// InferenceConfig selects the Gemini backend: "gemini" (API key) or "vertex".
type InferenceConfig struct {
	Backend        string `mapstructure:"backend"`
	APIKey         string `mapstructure:"api_key"`
	Project        string `mapstructure:"project"`
	Location       string `mapstructure:"location"`
	VisionModel    string `mapstructure:"vision_model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
}

type PollConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("public_base_url", "http://localhost:8080")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("webhook_secret", "")
	v.SetDefault("webhook_url", "http://localhost:8080/functions/v1/process-image")
	v.SetDefault("max_upload_size", 10<<20)
	v.SetDefault("session_ttl", 24*time.Hour)
	v.SetDefault("session_idle_timeout", 30*time.Minute)
	v.SetDefault("rate_limit.requests", 20)
	v.SetDefault("rate_limit.duration", time.Second)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.bucket", "images")
	v.SetDefault("storage.dir", "./data/objects")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.public_url", "")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/gallery.db")
	v.SetDefault("inference.backend", "gemini")
	v.SetDefault("inference.api_key", "")
	v.SetDefault("inference.project", "")
	v.SetDefault("inference.location", "europe-west1")
	v.SetDefault("inference.vision_model", "gemini-2.5-flash")
	v.SetDefault("inference.embedding_model", "text-embedding-004")
	v.SetDefault("poll.interval", time.Second)
	v.SetDefault("poll.max_attempts", 30)
}

// Load reads the JSON config file at path, then applies environment
// overrides (AIGALLERY_PORT, AIGALLERY_REDIS_ADDR, ...). A missing file is
// not an error; a .env file in the working directory is loaded first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("AIGALLERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("config: jwt_secret is required")
	}
	switch c.Storage.Driver {
	case "local", "s3":
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	if c.Poll.MaxAttempts <= 0 || c.Poll.Interval <= 0 {
		return errors.New("config: poll interval and max_attempts must be positive")
	}
	return nil
}
