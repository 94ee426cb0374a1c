package parse_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/optimode/mailprobe/internal/parse"
)

func TestSplit_ASCII(t *testing.T) {
	a := parse.Split("User@Example.COM")
	assert.Equal(t, "User@Example.COM", a.Raw)
	assert.Equal(t, "User", a.Local)
	assert.Equal(t, "example.com", a.Domain)
	assert.Equal(t, "example.com", a.DomainUnicode)
}

func TestSplit_LastAt(t *testing.T) {
	a := parse.Split(`"a@b"@example.com`)
	assert.Equal(t, `"a@b"`, a.Local)
	assert.Equal(t, "example.com", a.Domain)
}

func TestSplit_NoAt(t *testing.T) {
	a := parse.Split("invalid-email")
	assert.Equal(t, "invalid-email", a.Local)
	assert.Empty(t, a.Domain)
	assert.Empty(t, a.DomainUnicode)
}

func TestSplit_IDN_UnicodeDomain(t *testing.T) {
	// Unicode domain is converted to Punycode in Domain,
	// and kept as Unicode in DomainUnicode
	a := parse.Split("user@münchen.de")
	assert.Equal(t, "user", a.Local)
	assert.Equal(t, "xn--mnchen-3ya.de", a.Domain)
	assert.Equal(t, "münchen.de", a.DomainUnicode)
}

func TestSplit_IDN_PunycodeDomain(t *testing.T) {
	a := parse.Split("user@xn--mnchen-3ya.de")
	assert.Equal(t, "xn--mnchen-3ya.de", a.Domain)
	assert.Equal(t, "münchen.de", a.DomainUnicode)
}

func TestSplit_IDN_JapaneseDomain(t *testing.T) {
	a := parse.Split("用户@例え.jp")
	assert.Equal(t, "用户", a.Local)
	assert.Equal(t, "xn--r8jz45g.jp", a.Domain)
	assert.Equal(t, "例え.jp", a.DomainUnicode)
}
