package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/schemetrust/internal/cache"
	"github.com/ppiankov/schemetrust/internal/fetch"
	"github.com/ppiankov/schemetrust/internal/model"
)

var pmKisan = model.Scheme{
	ID:       "pm-kisan",
	Name:     "Pradhan Mantri Kisan Samman Nidhi",
	Ministry: "Ministry of Agriculture and Farmers Welfare",
	Aliases:  []string{"PM-KISAN"},
}

type countingTransport struct {
	next  http.RoundTripper
	calls atomic.Int32
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.calls.Add(1)
	return c.next.RoundTrip(req)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBase(t *testing.T, srv *httptest.Server, id model.SourceID, sc model.SourceConfig) (base, *countingTransport) {
	t.Helper()
	ct := &countingTransport{next: srv.Client().Transport}
	f := fetch.NewFetcher(model.HTTPConfig{
		Timeout:      2 * time.Second,
		UserAgent:    "SchemeTrustTest/1.0",
		AllowedHosts: []string{"127.0.0.1"},
	}, quietLogger()).WithTransport(ct)

	sc.BaseURL = srv.URL
	if sc.Weight == 0 {
		sc.Weight = 0.5
	}
	return newBaseClient(id, sc, f, cache.NewMemoryCache(time.Minute, time.Minute), time.Minute, quietLogger()), ct
}

const gazetteHTML = `<html><body><table id="gvResults">
<tr class="gridhead"><th>Subject</th><th>No.</th></tr>
<tr class="gridrow">
  <td>Pradhan Mantri Kisan Samman Nidhi (PM-KISAN) scheme guidelines</td>
  <td>S.O. 1010(E)</td><td>Part II</td><td>Section 3</td><td>24-02-2019</td>
  <td>Ministry of Agriculture and Farmers Welfare</td>
  <td><a href="/WriteReadData/2019/197123.pdf">Download</a></td>
</tr>
<tr class="gridrow alt">
  <td>Rescinding notification on Pradhan Mantri Kisan Samman Nidhi pilot</td>
  <td>S.O. 2020(E)</td><td>Part II</td><td>Section 3</td><td>01-07-2021</td>
  <td>Ministry of Agriculture and Farmers Welfare</td>
  <td><a href="Details.aspx?id=9">View</a></td>
</tr>
<tr class="gridrow">
  <td>Customs tariff amendment</td><td>G.S.R. 5(E)</td><td>Part II</td><td>Section 3</td><td>01-01-2020</td><td>Finance</td><td></td>
</tr>
</table></body></html>`

func TestGazetteClient_ParsesRows(t *testing.T) {
	var gotQuery string
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/SearchResult.aspx" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.Query().Get("keyword")
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, gazetteHTML)
	}))
	defer srv.Close()

	b, _ := testBase(t, srv, model.SourceGazette, model.SourceConfig{Weight: 1.0})
	c := NewGazetteClient(b)

	records, err := c.Fetch(context.Background(), pmKisan)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if gotQuery != pmKisan.Name {
		t.Errorf("expected keyword %q, got %q", pmKisan.Name, gotQuery)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 matching rows, got %d", len(records))
	}

	first := records[0]
	if first.Source != model.SourceGazette || first.DocumentID != "S.O. 1010(E)" {
		t.Errorf("unexpected record: %+v", first)
	}
	if first.Indication != model.IndicationActive {
		t.Errorf("expected active, got %s", first.Indication)
	}
	if first.URL != srv.URL+"/WriteReadData/2019/197123.pdf" {
		t.Errorf("expected absolute PDF link, got %s", first.URL)
	}
	if first.DocumentDate == nil || first.DocumentDate.Format("2006-01-02") != "2019-02-24" {
		t.Errorf("expected 2019-02-24, got %v", first.DocumentDate)
	}
	if first.ContentHash == "" || first.ContentHash != model.HashContent(first) {
		t.Error("expected content hash to be set")
	}

	if records[1].Indication != model.IndicationRevoked {
		t.Errorf("expected rescinding notification to indicate revoked, got %s", records[1].Indication)
	}
}

func TestGazetteClient_NoMatchesIsNotFound(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `<table><tr class="gridrow"><td>Unrelated</td><td>1</td><td>I</td><td>1</td><td>01-01-2020</td></tr></table>`)
	}))
	defer srv.Close()

	b, _ := testBase(t, srv, model.SourceGazette, model.SourceConfig{})
	_, err := NewGazetteClient(b).Fetch(context.Background(), pmKisan)
	if !errors.Is(err, fetch.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestBase_ResponseCache(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, gazetteHTML)
	}))
	defer srv.Close()

	b, ct := testBase(t, srv, model.SourceGazette, model.SourceConfig{})
	c := NewGazetteClient(b)

	for i := 0; i < 3; i++ {
		if _, err := c.Fetch(context.Background(), pmKisan); err != nil {
			t.Fatalf("Fetch %d failed: %v", i, err)
		}
	}
	if calls := ct.calls.Load(); calls != 1 {
		t.Errorf("expected one network call with caching, got %d", calls)
	}
}

func TestIndiaCodeClient_Formats(t *testing.T) {
	bodies := map[string]string{
		"list": `[{"act_id":"1362","title":"Pradhan Mantri Kisan Samman Nidhi Act","act_number":"12","year":2019,"date_of_assent":"2019-03-01","status":"In Force"}]`,
		"data": `{"data":[{"act_id":"77","short_title":"Pradhan Mantri Kisan Samman Nidhi (Repeal) Act","year":"2024","status":"Repealed"},{"act_id":"78","title":"Kisan Samman Nidhi Amendment","status":"Amended"}]}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("query") == "" {
					t.Error("expected query parameter")
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = fmt.Fprint(w, body)
			}))
			defer srv.Close()

			b, _ := testBase(t, srv, model.SourceIndiaCode, model.SourceConfig{Weight: 0.9})
			records, err := NewIndiaCodeClient(b).Fetch(context.Background(), pmKisan)
			if err != nil {
				t.Fatalf("Fetch failed: %v", err)
			}

			switch name {
			case "list":
				if len(records) != 1 || records[0].Indication != model.IndicationActive {
					t.Fatalf("unexpected records: %+v", records)
				}
				if !strings.Contains(records[0].Excerpt, "Year 2019") {
					t.Errorf("expected numeric year in excerpt, got %q", records[0].Excerpt)
				}
				if records[0].URL != srv.URL+"/handle/123456789/1362" {
					t.Errorf("unexpected act URL %s", records[0].URL)
				}
			case "data":
				if len(records) != 2 {
					t.Fatalf("expected 2 records, got %d", len(records))
				}
				if records[0].Indication != model.IndicationRevoked || records[1].Indication != model.IndicationAmended {
					t.Errorf("unexpected indications: %s, %s", records[0].Indication, records[1].Indication)
				}
			}
		})
	}
}

func TestNormalizeActStatus(t *testing.T) {
	tests := map[string]model.Indication{
		"In Force":       model.IndicationActive,
		"":               model.IndicationActive,
		"Repealed":       model.IndicationRevoked,
		"omitted":        model.IndicationRevoked,
		"Expired":        model.IndicationRevoked,
		"Amended in 2020": model.IndicationAmended,
	}
	for status, want := range tests {
		if got := normalizeActStatus(status); got != want {
			t.Errorf("normalizeActStatus(%q) = %s, want %s", status, got, want)
		}
	}
}

func TestSansadClient_BillsAndActs(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/bills":
			_, _ = fmt.Fprint(w, `{"data":[
				{"title":"Pradhan Mantri Kisan Samman Nidhi Bill","bill_number":"45","house":"Lok Sabha","date_passed":"2019-02-12","status":"Passed","url":"/bills/45"},
				{"title":"Kisan Samman Nidhi (Withdrawal) Bill","bill_number":"46","status":"Withdrawn","url":"https://evil.com/bills/46"}]}`)
		case "/api/acts":
			http.NotFound(w, r)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	b, _ := testBase(t, srv, model.SourceSansad, model.SourceConfig{Weight: 0.85})
	records, err := NewSansadClient(b).Fetch(context.Background(), pmKisan)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].DocumentID != "bill:45" || records[0].Indication != model.IndicationActive {
		t.Errorf("unexpected first record: %+v", records[0])
	}
	if records[0].URL != srv.URL+"/bills/45" {
		t.Errorf("expected resolved bill URL, got %q", records[0].URL)
	}
	if records[1].URL != "" {
		t.Errorf("expected off-list link to be dropped, got %q", records[1].URL)
	}
	if records[1].Indication != model.IndicationRevoked {
		t.Errorf("expected withdrawn bill to indicate revoked, got %s", records[1].Indication)
	}
}

func TestSansadClient_FetchDocumentRejectsTraversal(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"title":"Bill","status":"Passed"}`)
	}))
	defer srv.Close()

	b, ct := testBase(t, srv, model.SourceSansad, model.SourceConfig{})
	c := NewSansadClient(b)

	_, err := c.FetchDocument(context.Background(), "http://evil.com/../x")
	if !errors.Is(err, fetch.ErrPolicyViolation) {
		t.Fatalf("expected policy violation, got %v", err)
	}
	if ct.calls.Load() != 0 {
		t.Errorf("expected zero network calls, got %d", ct.calls.Load())
	}

	detail, err := c.FetchDocument(context.Background(), srv.URL+"/bills/45")
	if err != nil {
		t.Fatalf("FetchDocument failed: %v", err)
	}
	if detail.Title != "Bill" {
		t.Errorf("unexpected detail: %+v", detail)
	}
}

func TestSansadClient_ScopedAllowList(t *testing.T) {
	f := fetch.NewFetcher(model.HTTPConfig{AllowedHosts: []string{"sansad.in", "egazette.gov.in"}}, quietLogger())
	c := NewSansadClient(newBaseClient(model.SourceSansad, model.SourceConfig{BaseURL: "https://sansad.in"}, f, nil, time.Minute, quietLogger()))

	if c.fetcher.Policy().Allows("egazette.gov.in") {
		t.Error("parliamentary client must not reach other providers")
	}
	for _, h := range SansadHosts {
		if !c.fetcher.Policy().Allows(h) {
			t.Errorf("expected %s to be allowed", h)
		}
	}
}

func TestMySchemeClient_ThresholdFiltering(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"hits":[
			{"slug":"pm-kisan","schemeName":"Pradhan Mantri Kisan Samman Nidhi","nodalMinistryName":"Agriculture","briefDescription":"Income support"},
			{"slug":"kisan-credit","schemeName":"Kisan Credit Card","briefDescription":"Credit"},
			{"slug":"old-kisan","schemeName":"Kisan Samman Nidhi","schemeStatus":"Discontinued"}]}`)
	}))
	defer srv.Close()

	b, _ := testBase(t, srv, model.SourceMyScheme, model.SourceConfig{MatchThreshold: 0.6})
	records, err := NewMySchemeClient(b).Fetch(context.Background(), pmKisan)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 hits above threshold, got %d: %+v", len(records), records)
	}
	if records[0].URL != srv.URL+"/schemes/pm-kisan" {
		t.Errorf("unexpected URL %s", records[0].URL)
	}
	if records[1].Indication != model.IndicationRevoked {
		t.Errorf("expected discontinued hit to indicate revoked, got %s", records[1].Indication)
	}
}

func TestDataGovClient_SendsAPIKey(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api-key") != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = fmt.Fprint(w, `{"records":[{"index_name":"9ef8","title":"PM Kisan Samman Nidhi beneficiaries by state","org":["Ministry of Agriculture"]}]}`)
	}))
	defer srv.Close()

	b, _ := testBase(t, srv, model.SourceDataGovIn, model.SourceConfig{APIKey: "secret"})
	records, err := NewDataGovClient(b).Fetch(context.Background(), pmKisan)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(records) != 1 || records[0].DocumentID != "9ef8" {
		t.Errorf("unexpected records: %+v", records)
	}

	b2, _ := testBase(t, srv, model.SourceDataGovIn, model.SourceConfig{APIKey: "wrong"})
	if _, err := NewDataGovClient(b2).Fetch(context.Background(), pmKisan); !fetch.IsRetryable(err) {
		t.Errorf("expected transient error for rejected key, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	cfg := model.DefaultConfig()
	f := fetch.NewFetcher(cfg.HTTP, quietLogger())

	r := NewDefaultRegistry(cfg, f, cache.Noop{}, quietLogger())
	if r.Len() != 4 {
		t.Fatalf("expected data.gov.in to be skipped without API key, got %v", r.IDs())
	}
	if _, ok := r.Get(model.SourceDataGovIn); ok {
		t.Error("data.gov.in should not be registered")
	}

	cfg.Sources.DataGovIn.APIKey = "k"
	cfg.Sources.MyScheme.Enabled = false
	r = NewDefaultRegistry(cfg, f, cache.Noop{}, quietLogger())
	if r.Len() != 4 {
		t.Fatalf("expected 4 clients, got %v", r.IDs())
	}
	if w := r.Weights()[model.SourceGazette]; w != 1.0 {
		t.Errorf("expected gazette weight 1.0, got %v", w)
	}

	gazette, _ := r.Get(model.SourceGazette)
	r.Register(gazette)
	if r.Len() != 4 {
		t.Error("re-registering a source should replace, not append")
	}
}

func TestOverlap(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"Pradhan Mantri Kisan Samman Nidhi", "PM Kisan Samman Nidhi", 1, 1},
		{"Pradhan Mantri Awas Yojana", "Pradhan Mantri Kisan Samman Nidhi", 0, 0},
		{"Kisan Credit Card", "Kisan Samman Nidhi", 0.2, 0.2},
		{"", "anything", 0, 0},
	}
	for _, tt := range tests {
		got := overlap(tt.a, tt.b)
		if got < tt.min-1e-9 || got > tt.max+1e-9 {
			t.Errorf("overlap(%q, %q) = %.3f, want [%.2f, %.2f]", tt.a, tt.b, got, tt.min, tt.max)
		}
	}

	if s := matchScore(pmKisan, "PM-KISAN"); s != 1 {
		t.Errorf("expected alias to match exactly, got %.2f", s)
	}
}
