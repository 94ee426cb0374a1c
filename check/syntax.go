package check

import (
	"regexp"

	"github.com/optimode/mailprobe/internal/parse"
)

// syntaxPattern accepts local@domain.tld shapes: a non-empty local part
// without whitespace or @, and a domain without whitespace or @ that
// contains at least one dot.
var syntaxPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Syntax reports whether email has a deliverable-looking shape.
// The input is not trimmed.
func Syntax(email string) bool {
	if email == "" {
		return false
	}
	return syntaxPattern.MatchString(email)
}

// SplitAddress splits a syntax-checked address into its local part and
// its lower-case ASCII domain.
func SplitAddress(email string) parse.Address {
	return parse.Split(email)
}
