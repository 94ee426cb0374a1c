// Package hostlimit paces outbound probes per mail server so a bulk job
// does not hammer a single MX host.
package hostlimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxHosts bounds the limiter map. When exceeded, limiters idle for
// longer than idleAfter are dropped.
const (
	maxHosts  = 10000
	idleAfter = 10 * time.Minute
)

// Limiter holds one token bucket per host. A nil *Limiter never waits.
type Limiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastUsed time.Time
}

// New returns a limiter allowing perSecond probes per host with the given
// burst. perSecond <= 0 disables limiting and returns nil.
func New(perSecond float64, burst int) *Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Wait blocks until a probe to host is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	if l == nil {
		return nil
	}
	return l.get(host).Wait(ctx)
}

// Len reports the number of tracked hosts.
func (l *Limiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) get(host string) *rate.Limiter {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[host]; ok {
		b.lastUsed = now
		return b.lim
	}
	if len(l.buckets) >= maxHosts {
		l.sweepLocked(now)
	}
	b := &bucket{lim: rate.NewLimiter(l.limit, l.burst), lastUsed: now}
	l.buckets[host] = b
	return b.lim
}

func (l *Limiter) sweepLocked(now time.Time) {
	for host, b := range l.buckets {
		if now.Sub(b.lastUsed) > idleAfter {
			delete(l.buckets, host)
		}
	}
}
