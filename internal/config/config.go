package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when no path is supplied.
const DefaultConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML with environment
// overrides applied on top.
type FileConfig struct {
	Port     string `yaml:"port"`
	Env      string `yaml:"env"`
	LogLevel string `yaml:"logLevel"`

	// store
	StoreDriver string `yaml:"storeDriver"`
	PostgresDSN string `yaml:"postgresDSN"`

	// redis (sessions, refresh tokens, rate limits, dispatch)
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	// object storage
	StorageDriver  string `yaml:"storageDriver"`
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	// job dispatch
	DispatchDriver string `yaml:"dispatchDriver"`
	DispatchStream string `yaml:"dispatchStream"`
	AMQPURL        string `yaml:"amqpURL"`
	AMQPQueue      string `yaml:"amqpQueue"`

	// sessions
	SessionTTL string `yaml:"sessionTTL"`
	RefreshTTL string `yaml:"refreshTTL"`

	// worker callbacks
	WorkerTokenSecret   string   `yaml:"workerTokenSecret"`
	WorkerTokenAudience string   `yaml:"workerTokenAudience"`
	WorkerTokenIssuers  []string `yaml:"workerTokenIssuers"`

	// rate limits
	SignupRateLimitPerMinute int `yaml:"signupRateLimitPerMinute"`
	LoginRateLimitPerMinute  int `yaml:"loginRateLimitPerMinute"`

	// uploads
	MaxUploadBytes int64 `yaml:"maxUploadBytes"`

	TrustedProxyCIDRs []string `yaml:"trustedProxyCidrs"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = DefaultConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.Env = strings.TrimSpace(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("STORE_DRIVER"); v != "" {
		cfg.StoreDriver = strings.TrimSpace(v)
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		cfg.StorageDriver = strings.TrimSpace(v)
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.MinioUseSSL = b
		}
	}
	if v := os.Getenv("DISPATCH_DRIVER"); v != "" {
		cfg.DispatchDriver = strings.TrimSpace(v)
	}
	if v := os.Getenv("DISPATCH_STREAM"); v != "" {
		cfg.DispatchStream = strings.TrimSpace(v)
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("AMQP_QUEUE"); v != "" {
		cfg.AMQPQueue = strings.TrimSpace(v)
	}
	if v := os.Getenv("WORKER_TOKEN_SECRET"); v != "" {
		cfg.WorkerTokenSecret = v
	}
	if v := os.Getenv("WORKER_TOKEN_AUDIENCE"); v != "" {
		cfg.WorkerTokenAudience = strings.TrimSpace(v)
	}
	if v := os.Getenv("WORKER_TOKEN_ISSUERS"); v != "" {
		cfg.WorkerTokenIssuers = splitCSV(v)
	}
	if v := os.Getenv("SIGNUP_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SignupRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LoginRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = "memory"
	}
	if cfg.StorageDriver == "" {
		cfg.StorageDriver = "memory"
	}
	if cfg.DispatchDriver == "" {
		cfg.DispatchDriver = "noop"
	}
	if cfg.DispatchStream == "" {
		cfg.DispatchStream = "generation.jobs"
	}
	if cfg.AMQPQueue == "" {
		cfg.AMQPQueue = "generation.jobs"
	}
	if cfg.SessionTTL == "" {
		cfg.SessionTTL = "1h"
	}
	if cfg.RefreshTTL == "" {
		cfg.RefreshTTL = "720h"
	}
	if cfg.WorkerTokenAudience == "" {
		cfg.WorkerTokenAudience = "storyboard-api"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	switch cfg.Env {
	case "development", "production":
	default:
		return fmt.Errorf("config: env must be development or production, got %q", cfg.Env)
	}
	switch cfg.StoreDriver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return errors.New("config: postgresDSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("config: unknown storeDriver %q", cfg.StoreDriver)
	}
	switch cfg.StorageDriver {
	case "memory":
	case "minio":
		if strings.TrimSpace(cfg.MinioEndpoint) == "" || strings.TrimSpace(cfg.MinioBucket) == "" {
			return errors.New("config: minioEndpoint and minioBucket are required for the minio storage driver")
		}
	default:
		return fmt.Errorf("config: unknown storageDriver %q", cfg.StorageDriver)
	}
	switch cfg.DispatchDriver {
	case "noop":
	case "redis":
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for the redis dispatcher")
		}
	case "amqp":
		if strings.TrimSpace(cfg.AMQPURL) == "" {
			return errors.New("config: amqpURL is required for the amqp dispatcher")
		}
	default:
		return fmt.Errorf("config: unknown dispatchDriver %q", cfg.DispatchDriver)
	}
	if cfg.SignupRateLimitPerMinute < 0 || cfg.LoginRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if (cfg.SignupRateLimitPerMinute > 0 || cfg.LoginRateLimitPerMinute > 0) && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for distributed rate limiting")
	}
	if cfg.WorkerTokenSecret != "" && len(cfg.WorkerTokenSecret) < 32 {
		return errors.New("config: workerTokenSecret must be at least 32 bytes")
	}
	if _, err := ParseSessionTTL(cfg.SessionTTL); err != nil {
		return err
	}
	if _, err := ParseRefreshTTL(cfg.RefreshTTL); err != nil {
		return err
	}
	return nil
}

// ParseSessionTTL parses the session TTL duration string.
func ParseSessionTTL(raw string) (time.Duration, error) {
	if raw == "" {
		return time.Hour, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil || dur <= 0 {
		return 0, fmt.Errorf("invalid sessionTTL %q", raw)
	}
	return dur, nil
}

// ParseRefreshTTL parses the refresh token TTL duration string.
func ParseRefreshTTL(raw string) (time.Duration, error) {
	if raw == "" {
		return 30 * 24 * time.Hour, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil || dur <= 0 {
		return 0, fmt.Errorf("invalid refreshTTL %q", raw)
	}
	return dur, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
