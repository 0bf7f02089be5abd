package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ppiankov/schemetrust/internal/fetch"
	"github.com/ppiankov/schemetrust/internal/model"
)

// SansadHosts are the only hosts the parliamentary client may contact
var SansadHosts = []string{"sansad.in", "www.sansad.in", "rajyasabha.nic.in", "loksabha.nic.in"}

// SansadClient searches parliamentary bills and Acts
type SansadClient struct {
	base
}

// NewSansadClient creates a parliamentary client scoped to the Sansad hosts
// (plus the configured base host, so a mirror can be used)
func NewSansadClient(b base) *SansadClient {
	hosts := append([]string(nil), SansadHosts...)
	if u, err := url.Parse(b.baseURL); err == nil && u.Hostname() != "" {
		hosts = append(hosts, u.Hostname())
	}
	b.fetcher = b.fetcher.WithAllowList(hosts...)
	return &SansadClient{base: b}
}

type sansadRecord struct {
	Title          string          `json:"title"`
	BillNumber     string          `json:"bill_number"`
	ActNumber      string          `json:"act_number"`
	House          string          `json:"house"`
	Year           json.RawMessage `json:"year"`
	DateIntroduced string          `json:"date_introduced"`
	DatePassed     string          `json:"date_passed"`
	DateAssent     string          `json:"date_assent"`
	Status         string          `json:"status"`
	Ministry       string          `json:"ministry"`
	URL            string          `json:"url"`
}

type sansadResponse struct {
	Data []sansadRecord `json:"data"`
}

// BillDetail is the detail page of a bill
type BillDetail struct {
	Title       string `json:"title"`
	BillNumber  string `json:"bill_number"`
	House       string `json:"house"`
	Status      string `json:"status"`
	Ministry    string `json:"ministry"`
	TextSummary string `json:"text_summary"`
}

// Fetch searches bills and Acts. One endpoint failing does not hide the other's records.
func (c *SansadClient) Fetch(ctx context.Context, scheme model.Scheme) ([]model.RawEvidence, error) {
	query := url.Values{"search": {scheme.Name}}
	if scheme.Ministry != "" {
		query.Set("ministry", scheme.Ministry)
	}

	var out []model.RawEvidence
	var errs []error
	for _, kind := range []string{"bills", "acts"} {
		var resp sansadResponse
		if err := c.getJSON(ctx, c.endpoint("/api/"+kind, query), &resp); err != nil {
			if !errors.Is(err, fetch.ErrNotFound) {
				errs = append(errs, err)
			}
			continue
		}
		for _, rec := range resp.Data {
			if rec.Title == "" || matchScore(scheme, rec.Title) < c.threshold(0.3) {
				continue
			}
			out = append(out, c.toEvidence(kind, rec))
		}
	}

	if len(out) > 0 {
		return out, nil
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, c.notFound("bills or acts", scheme)
}

func (c *SansadClient) toEvidence(kind string, rec sansadRecord) model.RawEvidence {
	docID := ""
	switch {
	case rec.BillNumber != "":
		docID = "bill:" + rec.BillNumber
	case rec.ActNumber != "":
		docID = "act:" + rec.ActNumber + ":" + rawString(rec.Year)
	}

	date := parseDate(rec.DateAssent)
	if date == nil {
		date = parseDate(rec.DatePassed)
	}
	if date == nil {
		date = parseDate(rec.DateIntroduced)
	}

	// Links pointing off the allow-list are dropped rather than stored
	link := c.resolve(rec.URL)
	if link != "" && c.fetcher.Policy().Check(link) != nil {
		link = ""
	}

	excerpt := strings.Join(nonEmpty(
		strings.TrimSuffix(kind, "s"),
		rec.House,
		prefixed("Status ", rec.Status),
		rec.Ministry,
	), "; ")

	return model.NewRawEvidence(c.id, docID, rec.Title, excerpt, link, date, normalizeParliamentStatus(rec.Status))
}

// FetchDocument retrieves a bill detail page. The URL must be on the Sansad allow-list.
func (c *SansadClient) FetchDocument(ctx context.Context, rawURL string) (*BillDetail, error) {
	var detail BillDetail
	if err := c.fetcher.FetchJSON(ctx, rawURL, &detail); err != nil {
		return nil, fmt.Errorf("%s: fetch document: %w", c.id, err)
	}
	return &detail, nil
}

// normalizeParliamentStatus maps bill and Act status strings onto indications
func normalizeParliamentStatus(status string) model.Indication {
	s := strings.ToLower(strings.TrimSpace(status))
	switch {
	case containsAny(s, "withdrawn", "lapsed", "negatived", "repealed"):
		return model.IndicationRevoked
	case strings.Contains(s, "amend"):
		return model.IndicationAmended
	default:
		return model.IndicationActive
	}
}
