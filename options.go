package mailprobe

import (
	"crypto/tls"
	"time"

	"golang.org/x/oauth2"

	"github.com/optimode/mailprobe/check"
	"github.com/optimode/mailprobe/probe"
)

// DNSOptions configures MX resolution.
type DNSOptions struct {
	// Timeout is the maximum time for one MX lookup. Default: 5s
	Timeout time.Duration
	// CacheTTL is how long positive and empty answers are kept. Default: 5m
	CacheTTL time.Duration
	// CacheSize bounds the number of cached domains. Default: 10000
	CacheSize int
	// Lookup replaces the system resolver, e.g. in tests.
	Lookup check.MXLookupFunc
}

func defaultDNSOptions() DNSOptions {
	return DNSOptions{
		Timeout:   5 * time.Second,
		CacheTTL:  5 * time.Minute,
		CacheSize: 10000,
	}
}

// SMTPOptions configures the SMTP probe.
type SMTPOptions struct {
	// HeloName is the name sent with EHLO. Required, e.g. "probe.myapp.com"
	HeloName string
	// MailFrom is the envelope sender. Required, e.g. "verify@myapp.com"
	MailFrom string
	// Port is the SMTP port. Default: 25
	Port string
	// Timeouts overrides individual step budgets; zero fields keep the default.
	Timeouts probe.Timeouts
	// Dial replaces the TCP dialer, e.g. with probe.SOCKS5Dialer.
	Dial probe.DialFunc
	// TLSConfig is used by the OAuth client for STARTTLS.
	TLSConfig *tls.Config
}

// OAuthOptions configures authenticated probing of strict domains.
type OAuthOptions struct {
	// User is the mailbox the tokens were issued for. Required.
	User string
	// Tokens supplies access tokens. A nil source makes every
	// authenticated probe SKIPPED.
	Tokens oauth2.TokenSource
	// Mechanism is XOAUTH2 or OAUTHBEARER. Default: XOAUTH2
	Mechanism probe.Mechanism
}

// ReputationOptions configures WHOIS enrichment.
type ReputationOptions struct {
	// Timeout is the maximum time for one WHOIS query. Default: 10s
	Timeout time.Duration
	// CacheTTL is how long a lookup is kept. Default: 24h
	CacheTTL time.Duration
	// CacheSize bounds the number of cached domains. Default: 10000
	CacheSize int
	// Query replaces the WHOIS client, e.g. in tests.
	Query check.WhoisQueryFunc
}

// ValidateOptions are per-call switches.
type ValidateOptions struct {
	// SkipSMTP stops before the probe and reports risky / 50.
	SkipSMTP bool
	// ForceSMTP probes domains that are normally skipped.
	ForceSMTP bool
}

// ConcurrencyOptions configures concurrent processing for ValidateMany.
type ConcurrencyOptions struct {
	// Workers is the number of concurrent goroutines. Default: 5
	Workers int
	// Validate is applied to every email.
	Validate ValidateOptions
}
