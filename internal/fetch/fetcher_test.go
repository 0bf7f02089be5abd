package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/schemetrust/internal/model"
)

// countingTransport counts round trips before delegating
type countingTransport struct {
	next  http.RoundTripper
	calls atomic.Int32
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.calls.Add(1)
	return c.next.RoundTrip(req)
}

func testConfig() model.HTTPConfig {
	return model.HTTPConfig{
		Timeout:      2 * time.Second,
		UserAgent:    "SchemeTrustTest/1.0",
		MaxBodyBytes: 1 << 20,
		AllowedHosts: []string{"127.0.0.1"},
	}
}

func newTestFetcher(t *testing.T, srv *httptest.Server, cfg model.HTTPConfig) (*Fetcher, *countingTransport) {
	t.Helper()
	ct := &countingTransport{next: srv.Client().Transport}
	return NewFetcher(cfg, nil).WithTransport(ct), ct
}

func TestPolicy_Check(t *testing.T) {
	p := NewPolicy("sansad.in", "rajyasabha.nic.in")

	tests := []struct {
		name    string
		url     string
		allowed bool
	}{
		{"allowed host", "https://sansad.in/api/bills?search=x", true},
		{"allowed subdomain", "https://www.sansad.in/bills/12", true},
		{"other allowed host", "https://rajyasabha.nic.in/bills", true},
		{"plain http", "http://sansad.in/bills", false},
		{"host not listed", "https://evil.com/x", false},
		{"lookalike suffix", "https://evilsansad.in/x", false},
		{"dot dot segment", "https://sansad.in/../etc/passwd", false},
		{"encoded traversal", "https://sansad.in/%2e%2e/secret", false},
		{"userinfo", "https://user:pw@sansad.in/", false},
		{"missing host", "https:///path", false},
		{"scheme relative", "//sansad.in/x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Check(tt.url)
			if tt.allowed && err != nil {
				t.Errorf("expected %s to pass, got %v", tt.url, err)
			}
			if !tt.allowed {
				if err == nil {
					t.Fatalf("expected %s to be rejected", tt.url)
				}
				if !errors.Is(err, ErrPolicyViolation) {
					t.Errorf("expected policy violation, got %v", err)
				}
			}
		})
	}
}

func TestFetch_PolicyViolationMakesNoNetworkCall(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should never be reached")
	}))
	defer srv.Close()

	f, ct := newTestFetcher(t, srv, testConfig())

	for _, raw := range []string{"http://evil.com/../x", "https://evil.com/x", srv.URL + "/../x"} {
		_, err := f.Fetch(context.Background(), raw)
		if !errors.Is(err, ErrPolicyViolation) {
			t.Errorf("%s: expected policy violation, got %v", raw, err)
		}
		if KindOf(err) != KindPolicyViolation {
			t.Errorf("%s: expected kind policy_violation, got %s", raw, KindOf(err))
		}
		if IsRetryable(err) {
			t.Errorf("%s: policy violations must not be retryable", raw)
		}
	}

	if calls := ct.calls.Load(); calls != 0 {
		t.Errorf("expected zero network calls, got %d", calls)
	}
}

func TestFetch_DoesNotFollowRedirects(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "https://169.254.169.254/latest/meta-data", http.StatusFound)
			return
		}
		t.Errorf("redirect target should not be requested: %s", r.URL.Path)
	}))
	defer srv.Close()

	f, ct := newTestFetcher(t, srv, testConfig())

	_, err := f.Fetch(context.Background(), srv.URL+"/start")
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient error for unfollowed redirect, got %v", err)
	}
	if ct.calls.Load() != 1 || hits.Load() != 1 {
		t.Errorf("expected exactly one request, got transport=%d server=%d", ct.calls.Load(), hits.Load())
	}
}

func TestFetch_StatusMapping(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "application/json")
			_, _ = fmt.Fprint(w, `{"data":[{"title":"PM-KISAN"}]}`)
		case "/gone":
			w.WriteHeader(http.StatusGone)
		case "/busy":
			w.WriteHeader(http.StatusTooManyRequests)
		case "/broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t, srv, testConfig())
	ctx := context.Background()

	tests := []struct {
		path string
		kind Kind
	}{
		{"/missing", KindNotFound},
		{"/gone", KindNotFound},
		{"/busy", KindTransient},
		{"/broken", KindTransient},
	}
	for _, tt := range tests {
		_, err := f.Fetch(ctx, srv.URL+tt.path)
		if got := KindOf(err); got != tt.kind {
			t.Errorf("%s: expected %s, got %s (%v)", tt.path, tt.kind, got, err)
		}
	}

	var payload struct {
		Data []struct {
			Title string `json:"title"`
		} `json:"data"`
	}
	if err := f.FetchJSON(ctx, srv.URL+"/ok", &payload); err != nil {
		t.Fatalf("FetchJSON failed: %v", err)
	}
	if len(payload.Data) != 1 || payload.Data[0].Title != "PM-KISAN" {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestFetch_Timeout(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Timeout = 50 * time.Millisecond
	f, _ := newTestFetcher(t, srv, cfg)

	start := time.Now()
	_, err := f.Fetch(context.Background(), srv.URL+"/slow")
	if !IsRetryable(err) {
		t.Fatalf("expected retryable timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("timeout not enforced, took %v", elapsed)
	}
}

func TestFetch_BodyLimit(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 4096))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.MaxBodyBytes = 100
	f, _ := newTestFetcher(t, srv, cfg)

	resp, err := f.Fetch(context.Background(), srv.URL+"/big")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(resp.Body) != 100 {
		t.Errorf("expected body capped at 100 bytes, got %d", len(resp.Body))
	}
}

func TestFetch_RespectsRobots(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
			return
		}
		_, _ = fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.RespectRobots = true
	f, _ := newTestFetcher(t, srv, cfg)

	if _, err := f.Fetch(context.Background(), srv.URL+"/private/acts"); !errors.Is(err, ErrPolicyViolation) {
		t.Errorf("expected robots disallow to be a policy violation, got %v", err)
	}
	if _, err := f.Fetch(context.Background(), srv.URL+"/public"); err != nil {
		t.Errorf("expected public path to be fetched, got %v", err)
	}
}

func TestWithAllowList_Narrows(t *testing.T) {
	f := NewFetcher(model.HTTPConfig{AllowedHosts: []string{"sansad.in", "evil.com"}}, nil)
	narrowed := f.WithAllowList("sansad.in")

	if narrowed.Policy().Allows("evil.com") {
		t.Error("narrowed fetcher should not allow evil.com")
	}
	if !f.Policy().Allows("evil.com") {
		t.Error("original fetcher policy should be unchanged")
	}
}
