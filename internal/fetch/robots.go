package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// robotsChecker caches robots.txt per host. It fetches through the
// owning Fetcher's client so the same policy applies.
type robotsChecker struct {
	cache     map[string]*robotstxt.RobotsData
	mu        sync.RWMutex
	client    *http.Client
	userAgent string
}

func newRobotsChecker(client *http.Client, userAgent string) *robotsChecker {
	return &robotsChecker{
		cache:     make(map[string]*robotstxt.RobotsData),
		client:    client,
		userAgent: userAgent,
	}
}

// canFetch returns whether the URL may be fetched and the crawl delay to honour.
// If robots.txt cannot be retrieved the request is allowed.
func (r *robotsChecker) canFetch(ctx context.Context, parsed *url.URL) (bool, time.Duration) {
	data, err := r.robotsData(ctx, parsed)
	if err != nil {
		return true, 0
	}

	agent := productToken(r.userAgent)
	allowed := data.TestAgent(parsed.EscapedPath(), agent)

	var delay time.Duration
	if group := data.FindGroup(agent); group != nil {
		delay = group.CrawlDelay
	}
	return allowed, delay
}

func (r *robotsChecker) robotsData(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, error) {
	host := parsed.Host

	r.mu.RLock()
	data, ok := r.cache[host]
	r.mu.RUnlock()
	if ok {
		return data, nil
	}

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", parsed.Scheme, host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err = robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	r.mu.Lock()
	r.cache[host] = data
	r.mu.Unlock()

	return data, nil
}

// productToken extracts the product name from a User-Agent for robots matching
func productToken(ua string) string {
	parts := strings.Fields(ua)
	if len(parts) == 0 {
		return ua
	}
	return strings.Split(parts[0], "/")[0]
}
