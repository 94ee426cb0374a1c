package check

import (
	"strings"

	"github.com/optimode/mailprobe/internal/lists"
)

// Lists is the data behind a Classifier. Entries are matched
// case-insensitively.
type Lists struct {
	// Disposable domains, matched exactly.
	Disposable []string
	// Roles are local parts such as "admin" or "noreply", matched exactly.
	Roles []string
	// Strict domains reject or rate-limit unauthenticated SMTP probing.
	// Subdomains of an entry match as well.
	Strict []string
}

// DefaultLists returns the built-in lists.
func DefaultLists() Lists {
	return Lists{
		Disposable: lists.Disposable(),
		Roles:      lists.Roles(),
		Strict:     lists.Strict(),
	}
}

// Classifier answers membership questions about an address's parts.
// It holds no data of its own: everything comes from the Lists it was
// built with. Safe for concurrent use.
type Classifier struct {
	disposable map[string]struct{}
	roles      map[string]struct{}
	strict     map[string]struct{}
}

// NewClassifier builds a Classifier from l.
func NewClassifier(l Lists) *Classifier {
	return &Classifier{
		disposable: toSet(l.Disposable),
		roles:      toSet(l.Roles),
		strict:     toSet(l.Strict),
	}
}

// IsDisposable reports whether domain is a known disposable provider.
func (c *Classifier) IsDisposable(domain string) bool {
	_, ok := c.disposable[strings.ToLower(domain)]
	return ok
}

// IsRoleAccount reports whether local names a role rather than a person.
func (c *Classifier) IsRoleAccount(local string) bool {
	_, ok := c.roles[strings.ToLower(local)]
	return ok
}

// RequiresSkip reports whether domain, or one of its parent domains,
// is known to block unauthenticated probing.
func (c *Classifier) RequiresSkip(domain string) bool {
	d := strings.TrimSuffix(strings.ToLower(domain), ".")
	for d != "" {
		if _, ok := c.strict[d]; ok {
			return true
		}
		i := strings.IndexByte(d, '.')
		if i < 0 {
			break
		}
		d = d[i+1:]
	}
	return false
}

func toSet(entries []string) map[string]struct{} {
	set := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			set[e] = struct{}{}
		}
	}
	return set
}
