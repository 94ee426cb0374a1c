// Package config holds the typed configuration of the mailprobe service
// and CLI. Values come from defaults, an optional YAML file and
// MAILPROBE_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Instance   InstanceConfig   `mapstructure:"instance"`
	SMTP       SMTPConfig       `mapstructure:"smtp"`
	OAuth      OAuthConfig      `mapstructure:"oauth"`
	DNS        DNSConfig        `mapstructure:"dns"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Reputation ReputationConfig `mapstructure:"reputation"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Batch      BatchConfig      `mapstructure:"batch"`
	Store      StoreConfig      `mapstructure:"store"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// InstanceConfig identifies this process in logs and health output.
type InstanceConfig struct {
	ID string `mapstructure:"id"`
}

// SMTPConfig is the probe identity, port and per-step budget.
type SMTPConfig struct {
	Helo           string        `mapstructure:"helo"`
	MailFrom       string        `mapstructure:"mail_from"`
	Port           string        `mapstructure:"port"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	EHLOTimeout    time.Duration `mapstructure:"ehlo_timeout"`
	AuthTimeout    time.Duration `mapstructure:"auth_timeout"`
	MailTimeout    time.Duration `mapstructure:"mail_timeout"`
	RCPTTimeout    time.Duration `mapstructure:"rcpt_timeout"`
	QuitTimeout    time.Duration `mapstructure:"quit_timeout"`
	SOCKS5         SOCKS5Config  `mapstructure:"socks5"`
}

// SOCKS5Config routes probes through a proxy when Addr is set.
type SOCKS5Config struct {
	Addr     string `mapstructure:"addr"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// OAuthConfig enables authenticated probing of strict domains with a
// static access token.
type OAuthConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Mechanism   string `mapstructure:"mechanism"`
	User        string `mapstructure:"user"`
	AccessToken string `mapstructure:"access_token"`
}

// DNSConfig tunes MX resolution.
type DNSConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	CacheSize int           `mapstructure:"cache_size"`
}

// ClassifierConfig extends the built-in lists. Entries are added to the
// defaults, never replace them.
type ClassifierConfig struct {
	Disposable     []string `mapstructure:"disposable"`
	Roles          []string `mapstructure:"roles"`
	Strict         []string `mapstructure:"strict"`
	DisposableFile string   `mapstructure:"disposable_file"`
}

// ReputationConfig controls WHOIS enrichment.
type ReputationConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// RateLimitConfig paces probes per MX host. PerHost 0 disables it.
type RateLimitConfig struct {
	PerHost float64 `mapstructure:"per_host"`
	Burst   int     `mapstructure:"burst"`
}

// BatchConfig tunes the job engine.
type BatchConfig struct {
	Size          int           `mapstructure:"size"`
	Concurrency   int           `mapstructure:"concurrency"`
	Pause         time.Duration `mapstructure:"pause"`
	MaxEmails     int           `mapstructure:"max_emails"`
	ProgressEvery int           `mapstructure:"progress_every"`
}

// StoreConfig selects where batch jobs live.
type StoreConfig struct {
	Driver string      `mapstructure:"driver"` // memory or redis
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig is used when Driver is "redis".
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Store drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Validate reports every setting that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.Batch.Size <= 0 {
		errs = append(errs, fmt.Errorf("batch.size must be positive, got %d", c.Batch.Size))
	}
	if c.Batch.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("batch.concurrency must be positive, got %d", c.Batch.Concurrency))
	}
	if c.SMTP.Helo == "" {
		errs = append(errs, errors.New("smtp.helo is required"))
	}
	if c.SMTP.MailFrom == "" {
		errs = append(errs, errors.New("smtp.mail_from is required"))
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store.redis.addr is required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not one of memory, redis", c.Store.Driver))
	}
	if c.OAuth.Enabled && c.OAuth.User == "" {
		errs = append(errs, errors.New("oauth.user is required when oauth is enabled"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
