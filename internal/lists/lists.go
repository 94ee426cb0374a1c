// Package lists holds the default classifier data: disposable domains,
// role account names and strict anti-probe domains.
package lists

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
)

//go:embed disposable.txt
var rawDisposable string

//go:embed roles.txt
var rawRoles string

//go:embed strict.txt
var rawStrict string

// Disposable returns the default disposable domain list.
func Disposable() []string { return mustParse(rawDisposable) }

// Roles returns the default role account list.
func Roles() []string { return mustParse(rawRoles) }

// Strict returns the default strict anti-probe domain list.
func Strict() []string { return mustParse(rawStrict) }

// Parse reads one entry per line. Blank lines and lines starting
// with # are skipped. Entries are lower-cased.
func Parse(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, strings.ToLower(line))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read list: %w", err)
	}
	return out, nil
}

// LoadFile parses the list file at path.
func LoadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open list %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

func mustParse(raw string) []string {
	out, err := Parse(strings.NewReader(raw))
	if err != nil {
		panic(err) // embedded data, cannot fail
	}
	return out
}
