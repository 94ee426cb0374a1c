package check

// TypoSuggester proposes a well-known provider domain when the given
// domain looks like a misspelling of it. A suggestion never fails an
// address.
type TypoSuggester struct {
	threshold      int
	knownProviders []string
}

// defaultKnownProviders is the list of known major email providers.
var defaultKnownProviders = []string{
	"gmail.com", "googlemail.com",
	"yahoo.com", "yahoo.co.uk", "yahoo.fr", "yahoo.de",
	"outlook.com", "hotmail.com", "hotmail.co.uk", "live.com",
	"icloud.com", "me.com", "mac.com",
	"protonmail.com", "proton.me",
	"aol.com",
	"zoho.com",
	"yandex.com", "yandex.ru",
	"mail.com",
	"gmx.com", "gmx.net", "gmx.de",
	"fastmail.com",
}

// NewTypoSuggester creates a suggester. threshold <= 0 means 2.
func NewTypoSuggester(threshold int) *TypoSuggester {
	if threshold <= 0 {
		threshold = 2
	}
	return &TypoSuggester{
		threshold:      threshold,
		knownProviders: defaultKnownProviders,
	}
}

// Suggest returns the closest known provider within the threshold,
// or "" when domain is itself a known provider or nothing is close.
func (s *TypoSuggester) Suggest(domain string) string {
	best := ""
	bestDist := s.threshold + 1

	for _, provider := range s.knownProviders {
		if domain == provider {
			return ""
		}
		if d := editDistance(domain, provider); d < bestDist {
			bestDist = d
			best = provider
		}
	}
	return best
}

// editDistance is the Levenshtein distance over runes, computed with a
// single row of the DP table.
func editDistance(a, b string) int {
	ar, br := []rune(a), []rune(b)
	if len(ar) < len(br) {
		ar, br = br, ar
	}

	row := make([]int, len(br)+1)
	for j := range row {
		row[j] = j
	}

	for i := 1; i <= len(ar); i++ {
		diag := row[0] // row[i-1][j-1]
		row[0] = i
		for j := 1; j <= len(br); j++ {
			above := row[j]
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			row[j] = min(above+1, row[j-1]+1, diag+cost)
			diag = above
		}
	}
	return row[len(br)]
}
