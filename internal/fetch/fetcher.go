package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ppiankov/schemetrust/internal/model"
)

// Fetcher is the hardened outbound HTTP client shared by all source clients.
// It never follows redirects and rejects policy violations before any I/O.
type Fetcher struct {
	httpClient *http.Client
	policy     *Policy
	limiter    *Limiter
	robots     *robotsChecker
	userAgent  string
	maxBytes   int64
	timeout    time.Duration
	logger     *slog.Logger
}

// Response is a successful fetch
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// NewFetcher creates a Fetcher from the HTTP configuration
func NewFetcher(cfg model.HTTPConfig, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 5_000_000
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = proxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy)

	f := &Fetcher{
		httpClient: newClient(transport, timeout),
		policy:     NewPolicy(cfg.AllowedHosts...),
		limiter:    NewLimiter(cfg.RequestsPerSecond, cfg.Burst),
		userAgent:  cfg.UserAgent,
		maxBytes:   maxBytes,
		timeout:    timeout,
		logger:     logger,
	}
	if cfg.RespectRobots {
		f.robots = newRobotsChecker(f.httpClient, f.userAgent)
	}
	return f
}

func newClient(rt http.RoundTripper, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: rt,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// WithTransport returns a copy of the fetcher using rt for network I/O
func (f *Fetcher) WithTransport(rt http.RoundTripper) *Fetcher {
	clone := *f
	clone.httpClient = newClient(rt, f.timeout)
	if f.robots != nil {
		clone.robots = newRobotsChecker(clone.httpClient, f.userAgent)
	}
	return &clone
}

// WithAllowList returns a copy of the fetcher restricted to hosts.
// The copy shares the client and limiter.
func (f *Fetcher) WithAllowList(hosts ...string) *Fetcher {
	clone := *f
	clone.policy = NewPolicy(hosts...)
	return &clone
}

// Policy returns the active outbound policy
func (f *Fetcher) Policy() *Policy {
	return f.policy
}

// Fetch retrieves rawURL. Non-2xx responses are returned as *Error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	if err := f.policy.Check(rawURL); err != nil {
		f.logger.Warn("blocked outbound request",
			"event", "security.policy_violation",
			"url", rawURL,
			"error", err,
		)
		return nil, err
	}

	parsed, _ := url.Parse(rawURL)

	if f.robots != nil {
		allowed, delay := f.robots.canFetch(ctx, parsed)
		if !allowed {
			return nil, PolicyViolation(rawURL, "disallowed by robots.txt")
		}
		if err := f.limiter.WaitWithDelay(ctx, parsed.Hostname(), delay); err != nil {
			return nil, Transient(rawURL, 0, fmt.Errorf("rate limit: %w", err))
		}
	} else if err := f.limiter.Wait(ctx, parsed.Hostname()); err != nil {
		return nil, Transient(rawURL, 0, fmt.Errorf("rate limit: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, PolicyViolation(rawURL, "invalid request")
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json, text/html;q=0.9, */*;q=0.5")
	req.Header.Set("Accept-Language", "en-IN,en;q=0.9")

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, Transient(rawURL, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	f.logger.Debug("fetched",
		"url", rawURL,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if err := classifyStatus(rawURL, resp); err != nil {
		// Drain a little so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, Transient(rawURL, resp.StatusCode, fmt.Errorf("read body: %w", err))
	}

	return &Response{
		URL:         rawURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// FetchJSON fetches rawURL and decodes the JSON body into v
func (f *Fetcher) FetchJSON(ctx context.Context, rawURL string, v any) error {
	resp, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return err
	}
	return DecodeJSON(resp, v)
}

// DecodeJSON decodes a fetched body. A malformed body is a transient provider fault.
func DecodeJSON(resp *Response, v any) error {
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return Transient(resp.URL, resp.StatusCode, fmt.Errorf("decode json: %w", err))
	}
	return nil
}

func classifyStatus(rawURL string, resp *http.Response) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return NotFound(rawURL, resp.Status)
	case code >= 300 && code < 400:
		return Transient(rawURL, code, errors.New("redirect not followed"))
	default:
		return Transient(rawURL, code, fmt.Errorf("unexpected status: %s", resp.Status))
	}
}
