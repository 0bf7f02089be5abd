package score

import (
	"net/url"
	"strings"
)

// AuthorityClassifier decides whether an evidence URL is on an official domain.
// Records linking elsewhere carry zero weight.
type AuthorityClassifier struct {
	domains []string
}

// NewAuthorityClassifier creates a classifier for the given domain suffixes
func NewAuthorityClassifier(domains []string) *AuthorityClassifier {
	c := &AuthorityClassifier{}
	for _, d := range domains {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), ".")
		if d != "" {
			c.domains = append(c.domains, d)
		}
	}
	return c
}

// IsOfficial reports whether rawURL is on an official domain.
// Records without a URL are accepted; the provider itself is official.
func (a *AuthorityClassifier) IsOfficial(rawURL string) bool {
	if rawURL == "" || len(a.domains) == 0 {
		return true
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false
	}

	for _, d := range a.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
