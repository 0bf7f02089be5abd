package fetch

import (
	"net/url"
	"strings"
)

// Policy is the outbound request policy: HTTPS only, allow-listed hosts, no traversal
type Policy struct {
	allowed []string
}

// NewPolicy creates a policy allowing the given hosts and their subdomains
func NewPolicy(hosts ...string) *Policy {
	p := &Policy{allowed: make([]string, 0, len(hosts))}
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			p.allowed = append(p.allowed, h)
		}
	}
	return p
}

// Hosts returns the allow-listed hosts
func (p *Policy) Hosts() []string {
	return append([]string(nil), p.allowed...)
}

// Check validates a URL against the policy without touching the network
func (p *Policy) Check(rawURL string) error {
	if strings.Contains(rawURL, "..") {
		return PolicyViolation(rawURL, "path traversal sequence")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return PolicyViolation(rawURL, "unparseable URL")
	}
	if parsed.Scheme != "https" {
		return PolicyViolation(rawURL, "scheme must be https")
	}
	if parsed.User != nil {
		return PolicyViolation(rawURL, "userinfo not allowed")
	}
	if strings.Contains(parsed.Path, "..") {
		return PolicyViolation(rawURL, "path traversal sequence")
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return PolicyViolation(rawURL, "missing host")
	}
	if !p.Allows(host) {
		return PolicyViolation(rawURL, "host "+host+" not in allow-list")
	}

	return nil
}

// Allows reports whether host is allow-listed (exact match or subdomain)
func (p *Policy) Allows(host string) bool {
	host = strings.ToLower(host)
	for _, a := range p.allowed {
		if host == a || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}
