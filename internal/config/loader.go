package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// MAILPROBE_SMTP_HELO for smtp.helo.
const EnvPrefix = "MAILPROBE"

// Setup registers defaults and environment binding on v and reads the
// config file. An explicit path must exist; without one, mailprobe.yaml
// is looked up in the working directory and ./config and may be absent.
func Setup(v *viper.Viper, path string) error {
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// INSTANCE_ID is honoured without the prefix as well.
	if err := v.BindEnv("instance.id", EnvPrefix+"_INSTANCE_ID", "INSTANCE_ID"); err != nil {
		return fmt.Errorf("bind instance.id: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigName("mailprobe")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// Decode unmarshals the settings held by v into a Config and validates it.
func Decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Instance.ID == "" {
		cfg.Instance.ID = defaultInstanceID()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load builds a Config from a fresh viper instance.
func Load(path string) (*Config, error) {
	v := viper.New()
	if err := Setup(v, path); err != nil {
		return nil, err
	}
	return Decode(v)
}

func defaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "mailprobe"
	}
	return host
}

// setDefaults sets default configuration values. Every key is listed so
// that environment overrides are visible to AllSettings.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_body_bytes", 50<<20)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("instance.id", "")

	// SMTP defaults
	v.SetDefault("smtp.helo", "validator.local")
	v.SetDefault("smtp.mail_from", "validator@example.com")
	v.SetDefault("smtp.port", "25")
	v.SetDefault("smtp.connect_timeout", "3s")
	v.SetDefault("smtp.ehlo_timeout", "2s")
	v.SetDefault("smtp.auth_timeout", "3s")
	v.SetDefault("smtp.mail_timeout", "2s")
	v.SetDefault("smtp.rcpt_timeout", "3s")
	v.SetDefault("smtp.quit_timeout", "1s")
	v.SetDefault("smtp.socks5.addr", "")
	v.SetDefault("smtp.socks5.user", "")
	v.SetDefault("smtp.socks5.password", "")

	// OAuth defaults
	v.SetDefault("oauth.enabled", false)
	v.SetDefault("oauth.mechanism", "XOAUTH2")
	v.SetDefault("oauth.user", "")
	v.SetDefault("oauth.access_token", "")

	// DNS defaults
	v.SetDefault("dns.timeout", "5s")
	v.SetDefault("dns.cache_ttl", "5m")
	v.SetDefault("dns.cache_size", 10000)

	// Classifier extensions
	v.SetDefault("classifier.disposable", []string{})
	v.SetDefault("classifier.roles", []string{})
	v.SetDefault("classifier.strict", []string{})
	v.SetDefault("classifier.disposable_file", "")

	// Reputation defaults
	v.SetDefault("reputation.enabled", false)
	v.SetDefault("reputation.timeout", "10s")
	v.SetDefault("reputation.cache_ttl", "24h")

	// Rate limit defaults
	v.SetDefault("ratelimit.per_host", 0)
	v.SetDefault("ratelimit.burst", 1)

	// Batch defaults
	v.SetDefault("batch.size", 10)
	v.SetDefault("batch.concurrency", 1)
	v.SetDefault("batch.pause", "30ms")
	v.SetDefault("batch.max_emails", 100000)
	v.SetDefault("batch.progress_every", 1000)

	// Store defaults
	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "mailprobe")
	v.SetDefault("store.redis.ttl", "0s")
}
