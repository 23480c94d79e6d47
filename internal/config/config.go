// internal/config/config.go
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	custom_errors "forge-sync/internal/errors"
	"forge-sync/internal/model"
)

// Queue backends.
const (
	QueueRedis  = "redis"
	QueueMemory = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel       string `mapstructure:"LOG_LEVEL"`
	DBURL          string `mapstructure:"DB_URL"`
	MigrationsPath string `mapstructure:"MIGRATIONS_PATH"`
	HTTPAddr       string `mapstructure:"HTTP_ADDR"`

	QueueBackend      string `mapstructure:"QUEUE_BACKEND"`
	RedisURL          string `mapstructure:"REDIS_URL"`
	WorkerConcurrency int    `mapstructure:"WORKER_CONCURRENCY"`
	JobMaxAttempts    int    `mapstructure:"JOB_MAX_ATTEMPTS"`

	HTTPTimeout     time.Duration `mapstructure:"HTTP_TIMEOUT"`
	ParserURL       string        `mapstructure:"PARSER_URL"`
	GHArchiveURL    string        `mapstructure:"GHARCHIVE_URL"`
	GithubToken     string        `mapstructure:"GITHUB_TOKEN"`
	GitlabToken     string        `mapstructure:"GITLAB_TOKEN"`
	GiteaToken      string        `mapstructure:"GITEA_TOKEN"`
	BitbucketToken  string        `mapstructure:"BITBUCKET_TOKEN"`
	SourcehutToken  string        `mapstructure:"SOURCEHUT_TOKEN"`

	RecentInterval time.Duration `mapstructure:"RECENT_INTERVAL"`
	RecentWindow   time.Duration `mapstructure:"RECENT_WINDOW"`
	CrawlInterval  time.Duration `mapstructure:"CRAWL_INTERVAL"`
	CrawlLockTTL   time.Duration `mapstructure:"CRAWL_LOCK_TTL"`
	CrawlTimeout   time.Duration `mapstructure:"CRAWL_TIMEOUT"`

	MaxQueueDepthSync    int64 `mapstructure:"MAX_QUEUE_DEPTH_SYNC"`
	MaxQueueDepthDetails int64 `mapstructure:"MAX_QUEUE_DEPTH_DETAILS"`
	MaxQueueDepthParse   int64 `mapstructure:"MAX_QUEUE_DEPTH_PARSE"`
}

var defaults = map[string]any{
	"LOG_LEVEL":               "info",
	"DB_URL":                  "",
	"MIGRATIONS_PATH":         "file://migrations",
	"HTTP_ADDR":               ":8080",
	"QUEUE_BACKEND":           QueueRedis,
	"REDIS_URL":               "redis://localhost:6379/0",
	"WORKER_CONCURRENCY":      5,
	"JOB_MAX_ATTEMPTS":        10,
	"HTTP_TIMEOUT":            "20s",
	"PARSER_URL":              "",
	"GHARCHIVE_URL":           "https://data.gharchive.org",
	"GITHUB_TOKEN":            "",
	"GITLAB_TOKEN":            "",
	"GITEA_TOKEN":             "",
	"BITBUCKET_TOKEN":         "",
	"SOURCEHUT_TOKEN":         "",
	"RECENT_INTERVAL":         "10m",
	"RECENT_WINDOW":           "1h",
	"CRAWL_INTERVAL":          "1h",
	"CRAWL_LOCK_TTL":          "2h",
	"CRAWL_TIMEOUT":           "1h",
	"MAX_QUEUE_DEPTH_SYNC":    10000,
	"MAX_QUEUE_DEPTH_DETAILS": 2000,
	"MAX_QUEUE_DEPTH_PARSE":   5000,
}

// LoadConfig reads configuration from file and/or environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()
	// Every key needs a default for AutomaticEnv values to reach Unmarshal.
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// Load from .env file if it exists
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if file not found

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	invalid := func(key, reason string) error {
		return &custom_errors.ErrInvalidConfig{Key: key, Reason: reason}
	}

	if c.DBURL == "" {
		return invalid("DB_URL", "is a required configuration field")
	}
	switch c.QueueBackend {
	case QueueRedis:
		if c.RedisURL == "" {
			return invalid("REDIS_URL", "is required when QUEUE_BACKEND is redis")
		}
	case QueueMemory:
	default:
		return invalid("QUEUE_BACKEND", "must be redis or memory")
	}
	if c.WorkerConcurrency < 1 {
		return invalid("WORKER_CONCURRENCY", "must be at least 1")
	}
	if c.JobMaxAttempts < 1 {
		return invalid("JOB_MAX_ATTEMPTS", "must be at least 1")
	}
	if c.HTTPTimeout < 10*time.Second || c.HTTPTimeout > 30*time.Second {
		return invalid("HTTP_TIMEOUT", "must be between 10s and 30s")
	}
	for key, d := range map[string]time.Duration{
		"RECENT_INTERVAL": c.RecentInterval,
		"RECENT_WINDOW":   c.RecentWindow,
		"CRAWL_INTERVAL":  c.CrawlInterval,
		"CRAWL_TIMEOUT":   c.CrawlTimeout,
	} {
		if d <= 0 {
			return invalid(key, "must be positive")
		}
	}
	if c.CrawlLockTTL < c.CrawlTimeout {
		return invalid("CRAWL_LOCK_TTL", "must not be shorter than CRAWL_TIMEOUT")
	}
	return nil
}

// Token returns the API token configured for a host kind.
func (c *Config) Token(kind string) string {
	switch kind {
	case model.KindGitHub:
		return c.GithubToken
	case model.KindGitLab:
		return c.GitlabToken
	case model.KindGitea, model.KindForgejo:
		return c.GiteaToken
	case model.KindBitbucket:
		return c.BitbucketToken
	case model.KindSourceHut:
		return c.SourcehutToken
	}
	return ""
}
