package check_test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/optimode/mailprobe/check"
)

// mockMXLookup returns fixed records and counts calls.
type mockMXLookup struct {
	records []*net.MX
	err     error
	calls   atomic.Int64
}

func (m *mockMXLookup) LookupMX(_ context.Context, _ string) ([]*net.MX, error) {
	m.calls.Add(1)
	return m.records, m.err
}

func TestMXResolver_SortsAndTrims(t *testing.T) {
	m := &mockMXLookup{records: []*net.MX{
		{Host: "mx2.example.com.", Pref: 20},
		{Host: "mx1.example.com.", Pref: 10},
		{Host: "mx3.example.com.", Pref: 30},
	}}
	r := check.NewMXResolverWithLookup(check.DNSConfig{Timeout: 2 * time.Second}, m.LookupMX)

	hosts := r.Resolve(context.Background(), "example.com")
	assert.Equal(t, []string{"mx1.example.com", "mx2.example.com", "mx3.example.com"}, hosts)
}

func TestMXResolver_NeverFails(t *testing.T) {
	tests := []struct {
		name    string
		records []*net.MX
		err     error
	}{
		{"no records", []*net.MX{}, nil},
		{"nxdomain", nil, &net.DNSError{Err: "no such host", IsNotFound: true}},
		{"timeout", nil, &net.DNSError{Err: "i/o timeout", IsTimeout: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockMXLookup{records: tt.records, err: tt.err}
			r := check.NewMXResolverWithLookup(check.DNSConfig{}, m.LookupMX)

			hosts := r.Resolve(context.Background(), "nowhere.example")
			assert.NotNil(t, hosts)
			assert.Empty(t, hosts)
		})
	}
}

func TestMXResolver_CachesWithinTTL(t *testing.T) {
	m := &mockMXLookup{records: []*net.MX{{Host: "mx.example.com.", Pref: 10}}}
	r := check.NewMXResolverWithLookup(check.DNSConfig{CacheTTL: time.Minute}, m.LookupMX)
	ctx := context.Background()

	first := r.Resolve(ctx, "example.com")
	second := r.Resolve(ctx, "EXAMPLE.com")
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), m.calls.Load())
	assert.Equal(t, 1, r.CacheLen())
}

func TestMXResolver_CachesEmptyResults(t *testing.T) {
	m := &mockMXLookup{err: &net.DNSError{Err: "no such host", IsNotFound: true}}
	r := check.NewMXResolverWithLookup(check.DNSConfig{}, m.LookupMX)
	ctx := context.Background()

	_ = r.Resolve(ctx, "bad.example")
	_ = r.Resolve(ctx, "bad.example")
	assert.Equal(t, int64(1), m.calls.Load())
}

func TestMXResolver_RefreshesAfterTTL(t *testing.T) {
	m := &mockMXLookup{records: []*net.MX{{Host: "mx.test.", Pref: 10}}}
	r := check.NewMXResolverWithLookup(check.DNSConfig{CacheTTL: 50 * time.Millisecond}, m.LookupMX)
	ctx := context.Background()

	_ = r.Resolve(ctx, "example.com")
	assert.Equal(t, int64(1), m.calls.Load())

	time.Sleep(100 * time.Millisecond) // wait for expiry

	_ = r.Resolve(ctx, "example.com")
	assert.Equal(t, int64(2), m.calls.Load()) // refreshed
}

func TestMXResolver_ReturnsCopy(t *testing.T) {
	m := &mockMXLookup{records: []*net.MX{{Host: "mx1.", Pref: 10}}}
	r := check.NewMXResolverWithLookup(check.DNSConfig{}, m.LookupMX)
	ctx := context.Background()

	hosts1 := r.Resolve(ctx, "example.com")
	hosts1[0] = "modified"
	hosts2 := r.Resolve(ctx, "example.com")
	assert.Equal(t, "mx1", hosts2[0])
}
