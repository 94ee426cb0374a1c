package parse

import (
	"strings"

	"golang.org/x/net/idna"
)

// Address is an email address split into the parts the pipeline needs.
// The check/ packages receive this as parameter.
type Address struct {
	Raw           string // the original input, untouched
	Local         string // the part before the last @
	Domain        string // the part after the last @, lower-case ASCII/Punycode (for DNS/SMTP)
	DomainUnicode string // the part after the last @, Unicode form (for display/typo detection)
}

// Split splits raw at its last @. It does not validate the address:
// callers run the syntax check first. If raw has no @, Local holds the
// whole input and both domain fields are empty.
func Split(raw string) Address {
	atIdx := strings.LastIndex(raw, "@")
	if atIdx < 0 {
		return Address{Raw: raw, Local: raw}
	}

	domain := strings.ToLower(raw[atIdx+1:])
	ascii, unicode := convertDomain(domain)
	return Address{
		Raw:           raw,
		Local:         raw[:atIdx],
		Domain:        ascii,
		DomainUnicode: unicode,
	}
}

// convertDomain returns the ASCII/Punycode and Unicode forms of domain.
// A domain that fails IDNA2008 conversion is returned unchanged in both
// forms; the MX lookup then fails and the address is judged on that.
func convertDomain(domain string) (ascii, unicode string) {
	hasNonASCII := false
	for _, r := range domain {
		if r > 127 {
			hasNonASCII = true
			break
		}
	}

	if hasNonASCII {
		a, err := idna.Lookup.ToASCII(domain)
		if err != nil {
			return domain, domain
		}
		return a, domain
	}

	// Pure ASCII domain: existing Punycode gets a Unicode display form
	u, err := idna.Display.ToUnicode(domain)
	if err != nil {
		u = domain
	}
	return domain, u
}
