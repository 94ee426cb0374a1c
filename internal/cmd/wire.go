package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/optimode/mailprobe"
	"github.com/optimode/mailprobe/batch"
	"github.com/optimode/mailprobe/check"
	"github.com/optimode/mailprobe/internal/config"
	"github.com/optimode/mailprobe/internal/lists"
	"github.com/optimode/mailprobe/internal/redisstore"
	"github.com/optimode/mailprobe/probe"
)

// buildValidator assembles the pipeline described by cfg.
func buildValidator(cfg *config.Config, logger *zap.Logger) (*mailprobe.Validator, error) {
	l, err := classifierLists(cfg.Classifier)
	if err != nil {
		return nil, err
	}

	smtp := mailprobe.SMTPOptions{
		HeloName: cfg.SMTP.Helo,
		MailFrom: cfg.SMTP.MailFrom,
		Port:     cfg.SMTP.Port,
		Timeouts: probe.Timeouts{
			Connect: cfg.SMTP.ConnectTimeout,
			EHLO:    cfg.SMTP.EHLOTimeout,
			Auth:    cfg.SMTP.AuthTimeout,
			Mail:    cfg.SMTP.MailTimeout,
			RCPT:    cfg.SMTP.RCPTTimeout,
			Quit:    cfg.SMTP.QuitTimeout,
		},
	}
	if s := cfg.SMTP.SOCKS5; s.Addr != "" {
		dial, err := probe.SOCKS5Dialer(s.Addr, s.User, s.Password, cfg.SMTP.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		smtp.Dial = dial
	}

	v := mailprobe.New().
		WithClassifier(l).
		WithDNS(mailprobe.DNSOptions{
			Timeout:   cfg.DNS.Timeout,
			CacheTTL:  cfg.DNS.CacheTTL,
			CacheSize: cfg.DNS.CacheSize,
		}).
		WithSMTP(smtp).
		WithHostLimit(cfg.RateLimit.PerHost, cfg.RateLimit.Burst).
		WithLogger(logger)

	if cfg.OAuth.Enabled {
		v.WithOAuth(mailprobe.OAuthOptions{
			User:      cfg.OAuth.User,
			Tokens:    staticTokens(cfg.OAuth.AccessToken),
			Mechanism: probe.Mechanism(cfg.OAuth.Mechanism),
		})
	}
	if cfg.Reputation.Enabled {
		v.WithReputation(mailprobe.ReputationOptions{
			Timeout:  cfg.Reputation.Timeout,
			CacheTTL: cfg.Reputation.CacheTTL,
		})
	}

	if err := v.Err(); err != nil {
		return nil, err
	}
	return v, nil
}

// classifierLists adds the configured entries to the built-in lists.
func classifierLists(c config.ClassifierConfig) (check.Lists, error) {
	l := check.DefaultLists()
	l.Disposable = append(l.Disposable, c.Disposable...)
	l.Roles = append(l.Roles, c.Roles...)
	l.Strict = append(l.Strict, c.Strict...)
	if c.DisposableFile != "" {
		extra, err := lists.LoadFile(c.DisposableFile)
		if err != nil {
			return check.Lists{}, err
		}
		l.Disposable = append(l.Disposable, extra...)
	}
	return l, nil
}

// staticTokens returns nil for an empty token, which makes authenticated
// probes fall back to the estimate.
func staticTokens(accessToken string) oauth2.TokenSource {
	if accessToken == "" {
		return nil
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
}

// buildStore opens the configured job store. The returned func releases it.
func buildStore(ctx context.Context, cfg *config.Config) (batch.Store, func() error, error) {
	if cfg.Store.Driver != config.DriverRedis {
		return batch.NewMemoryStore(), func() error { return nil }, nil
	}

	r := cfg.Store.Redis
	s := redisstore.New(redisstore.Config{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
		Prefix:   r.Prefix,
		TTL:      r.TTL,
	})
	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, nil, fmt.Errorf("open job store: %w", err)
	}
	return s, s.Close, nil
}

func batchConfig(cfg *config.Config) batch.Config {
	return batch.Config{
		BatchSize:     cfg.Batch.Size,
		Concurrency:   cfg.Batch.Concurrency,
		Pause:         cfg.Batch.Pause,
		MaxEmails:     cfg.Batch.MaxEmails,
		ProgressEvery: cfg.Batch.ProgressEvery,
	}
}
