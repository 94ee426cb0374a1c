package check

import (
	"context"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/optimode/mailprobe/internal/ttlcache"
)

// DNSConfig is the MX resolver configuration.
type DNSConfig struct {
	// Timeout bounds a single MX query.
	Timeout time.Duration
	// CacheTTL is how long answers, including empty ones, are reused.
	CacheTTL time.Duration
	// MaxEntries bounds the cache size. 0 means unbounded.
	MaxEntries int
}

// MXLookupFunc performs the raw DNS MX query.
type MXLookupFunc func(ctx context.Context, domain string) ([]*net.MX, error)

// MXResolver resolves the mail exchangers of a domain through a shared
// TTL cache. It never fails: a DNS error or a domain without MX records
// resolves to an empty list, which is itself the answer.
type MXResolver struct {
	cfg    DNSConfig
	lookup MXLookupFunc // injectable for testability
	cache  *ttlcache.Cache[[]string]
}

// NewMXResolver creates a caching resolver backed by the system resolver.
func NewMXResolver(cfg DNSConfig) *MXResolver {
	return NewMXResolverWithLookup(cfg, net.DefaultResolver.LookupMX)
}

// NewMXResolverWithLookup is a test-oriented constructor that overrides the MX lookup function.
func NewMXResolverWithLookup(cfg DNSConfig, fn MXLookupFunc) *MXResolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &MXResolver{
		cfg:    cfg,
		lookup: fn,
		cache:  ttlcache.New[[]string](cfg.CacheTTL, cfg.MaxEntries),
	}
}

// Resolve returns the MX hostnames of domain, lowest preference first,
// without trailing dots.
func (r *MXResolver) Resolve(ctx context.Context, domain string) []string {
	domain = strings.ToLower(domain)
	hosts, err := r.cache.Get(ctx, domain, func(ctx context.Context) ([]string, error) {
		return r.query(ctx, domain), nil
	})
	if err != nil {
		return []string{}
	}
	// Callers get their own slice; the cached one is shared.
	return append([]string{}, hosts...)
}

// CacheLen returns the number of cached domains (for diagnostics).
func (r *MXResolver) CacheLen() int {
	return r.cache.Len()
}

// query runs the lookup detached from the caller's cancellation: its
// answer is cached for every other caller too.
func (r *MXResolver) query(ctx context.Context, domain string) []string {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.Timeout)
	defer cancel()

	records, err := r.lookup(ctx, domain)
	if err != nil || len(records) == 0 {
		return []string{}
	}

	sorted := make([]*net.MX, 0, len(records))
	for _, mx := range records {
		if mx != nil && mx.Host != "" {
			sorted = append(sorted, mx)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Pref < sorted[j].Pref
	})

	hosts := make([]string, 0, len(sorted))
	for _, mx := range sorted {
		hosts = append(hosts, strings.TrimSuffix(mx.Host, "."))
	}
	return hosts
}
