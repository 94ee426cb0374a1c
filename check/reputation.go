package check

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"

	"github.com/optimode/mailprobe/internal/ttlcache"
	"github.com/optimode/mailprobe/types"
)

// ReputationConfig configures WHOIS-based domain enrichment.
type ReputationConfig struct {
	// Timeout bounds a single WHOIS query. Default: 10s
	Timeout time.Duration
	// CacheTTL is how long a domain's registration data is reused. Default: 24h
	CacheTTL time.Duration
	// MaxEntries bounds the cache size. Default: 10000
	MaxEntries int
}

// WhoisQueryFunc returns the raw WHOIS text for a domain.
type WhoisQueryFunc func(ctx context.Context, domain string) (string, error)

// ReputationChecker looks up registration data for a domain.
// The data is informational: it never changes a verdict.
type ReputationChecker struct {
	query WhoisQueryFunc
	cache *ttlcache.Cache[*types.DomainInfo]
	now   func() time.Time
}

// NewReputationChecker creates a caching checker that queries WHOIS servers.
func NewReputationChecker(cfg ReputationConfig) *ReputationChecker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := whois.NewClient().SetTimeout(cfg.Timeout)
	return NewReputationCheckerWithQuery(cfg, func(_ context.Context, domain string) (string, error) {
		return client.Whois(domain)
	})
}

// NewReputationCheckerWithQuery is a test-oriented constructor that overrides the WHOIS query.
func NewReputationCheckerWithQuery(cfg ReputationConfig, fn WhoisQueryFunc) *ReputationChecker {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	return &ReputationChecker{
		query: fn,
		cache: ttlcache.New[*types.DomainInfo](cfg.CacheTTL, cfg.MaxEntries),
		now:   time.Now,
	}
}

// Lookup returns registration data for domain. Failures are reported in
// DomainInfo.Error rather than returned.
func (c *ReputationChecker) Lookup(ctx context.Context, domain string) *types.DomainInfo {
	domain = strings.ToLower(domain)
	info, err := c.cache.Get(ctx, domain, func(ctx context.Context) (*types.DomainInfo, error) {
		return c.fetch(ctx, domain), nil
	})
	if err != nil || info == nil {
		return &types.DomainInfo{Error: "lookup unavailable"}
	}
	cp := *info
	return &cp
}

func (c *ReputationChecker) fetch(ctx context.Context, domain string) *types.DomainInfo {
	raw, err := c.query(ctx, domain)
	if err != nil {
		return &types.DomainInfo{Error: err.Error()}
	}

	parsed, err := whoisparser.Parse(raw)
	if err != nil {
		if errors.Is(err, whoisparser.ErrNotFoundDomain) {
			return &types.DomainInfo{Error: "domain not registered"}
		}
		return &types.DomainInfo{Error: err.Error()}
	}

	info := &types.DomainInfo{}
	if parsed.Registrar != nil {
		info.Registrar = parsed.Registrar.Name
	}
	if parsed.Domain != nil {
		if created, ok := createdAt(parsed.Domain); ok {
			info.CreatedAt = &created
			info.AgeDays = int(c.now().Sub(created).Hours() / 24)
		}
	}
	return info
}

// createdAt prefers the parser's own date and falls back to the raw
// field for formats it does not know.
func createdAt(d *whoisparser.Domain) (time.Time, bool) {
	if d.CreatedDateInTime != nil && !d.CreatedDateInTime.IsZero() {
		return d.CreatedDateInTime.UTC(), true
	}
	return parseWhoisDate(d.CreatedDate)
}

// whoisDateLayouts covers the formats registries commonly use.
var whoisDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-Jan-2006",
	"2006.01.02",
	"2006/01/02",
}

func parseWhoisDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range whoisDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
