// Package config loads application configuration from environment variables
// with an optional YAML overlay file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// database: sqlite path or postgres:// URL
	DatabaseURL string `yaml:"database_url"`

	// nats (optional; empty disables event publishing)
	NatsURL string `yaml:"nats_url"`

	// telegram
	TGApiID   int    `yaml:"tg_api_id"`
	TGApiHash string `yaml:"tg_api_hash"`
	// session string of the listener account
	TGSessionStr string `yaml:"tg_session_string"`

	// dispatcher
	MaxWorkers       int           `yaml:"max_workers"`
	QueueCapacity    int           `yaml:"queue_capacity"`
	MaxAttempts      int           `yaml:"max_attempts"`
	RetryBase        time.Duration `yaml:"retry_base"`
	RetryCap         time.Duration `yaml:"retry_cap"`
	DrainTimeout     time.Duration `yaml:"drain_timeout"`
	EnqueueTimeout   time.Duration `yaml:"enqueue_timeout"`
	MaxConcurrentDownloads int     `yaml:"max_concurrent_downloads"`

	// image guard
	SimilarityThreshold int `yaml:"similarity_threshold"`

	// filters
	GlobalBlockedWords []string `yaml:"global_blocked_words"`

	// admin surface
	AdminUsers []int64 `yaml:"admin_users"`
	AdminToken string  `yaml:"admin_token"`
	HTTPPort   int     `yaml:"http_port"`

	// backups
	BackupDir      string        `yaml:"backup_dir"`
	BackupInterval time.Duration `yaml:"backup_interval"`

	// logging
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file is honored if present; CONFIG_FILE points to an optional YAML
// overlay applied after env variables are read, filling only keys whose env
// variable is unset (env wins).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:            getEnv("DATABASE_URL", "./data/zorox.db"),
		NatsURL:                getEnv("NATS_URL", ""),
		TGApiHash:              getEnv("TG_API_HASH", ""),
		TGSessionStr:           getEnv("TG_SESSION_STRING", ""),
		TGApiID:                getEnvInt("TG_API_ID", 0),
		MaxWorkers:             getEnvInt("MAX_WORKERS", 50),
		QueueCapacity:          getEnvInt("QUEUE_CAPACITY", 50000),
		MaxAttempts:            getEnvInt("MAX_ATTEMPTS", 3),
		RetryBase:              getEnvDuration("RETRY_BASE_SECONDS", 300*time.Millisecond),
		RetryCap:               getEnvDuration("RETRY_CAP_SECONDS", 60*time.Second),
		DrainTimeout:           getEnvDuration("DRAIN_TIMEOUT_SECONDS", 15*time.Second),
		EnqueueTimeout:         getEnvDuration("ENQUEUE_TIMEOUT_SECONDS", 50*time.Millisecond),
		MaxConcurrentDownloads: getEnvInt("MAX_CONCURRENT_DOWNLOADS", 25),
		SimilarityThreshold:    getEnvInt("SIMILARITY_THRESHOLD", 5),
		GlobalBlockedWords:     getEnvList("GLOBAL_BLOCKED_WORDS"),
		AdminUsers:             getEnvInt64List("ADMIN_USERS"),
		AdminToken:             getEnv("ADMIN_TOKEN", ""),
		HTTPPort:               getEnvInt("HTTP_PORT", 3100),
		BackupDir:              getEnv("BACKUP_DIR", "./backups"),
		BackupInterval:         getEnvDuration("BACKUP_INTERVAL_SECONDS", time.Hour),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogFile:                getEnv("LOG_FILE", ""),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, fmt.Errorf("apply config file: %w", err)
		}
	}

	return cfg, nil
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if c.TGApiID == 0 || c.TGApiHash == "" {
		return fmt.Errorf("TG_API_ID and TG_API_HASH are required")
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("QUEUE_CAPACITY must be positive")
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("MAX_WORKERS must be positive")
	}
	return nil
}

// IsPostgres reports whether the configured database is postgres.
func (c *Config) IsPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") ||
		strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

// applyFile overlays values from a YAML file. Env variables keep precedence;
// the file carries deployment defaults, env carries secrets.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	// only database_url, nats_url, tg_api_id, tg_api_hash,
	// global_blocked_words, admin_users and http_port are taken from the
	// file, and only when set there; other keys are parsed and ignored
	if overlay.DatabaseURL != "" && os.Getenv("DATABASE_URL") == "" {
		c.DatabaseURL = overlay.DatabaseURL
	}
	if overlay.NatsURL != "" && os.Getenv("NATS_URL") == "" {
		c.NatsURL = overlay.NatsURL
	}
	if overlay.TGApiID != 0 && os.Getenv("TG_API_ID") == "" {
		c.TGApiID = overlay.TGApiID
	}
	if overlay.TGApiHash != "" && os.Getenv("TG_API_HASH") == "" {
		c.TGApiHash = overlay.TGApiHash
	}
	if len(overlay.GlobalBlockedWords) > 0 && os.Getenv("GLOBAL_BLOCKED_WORDS") == "" {
		c.GlobalBlockedWords = overlay.GlobalBlockedWords
	}
	if len(overlay.AdminUsers) > 0 && os.Getenv("ADMIN_USERS") == "" {
		c.AdminUsers = overlay.AdminUsers
	}
	if overlay.HTTPPort != 0 && os.Getenv("HTTP_PORT") == "" {
		c.HTTPPort = overlay.HTTPPort
	}
	return nil
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvDuration parses a float number of seconds into a duration.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil && f >= 0 {
			return time.Duration(f * float64(time.Second))
		}
	}
	return defaultVal
}

// getEnvList parses a comma-separated list, trimming blanks.
func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvInt64List(key string) []int64 {
	var out []int64
	for _, part := range getEnvList(key) {
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}
