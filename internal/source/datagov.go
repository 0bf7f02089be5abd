package source

import (
	"context"
	"net/url"
	"strings"

	"github.com/ppiankov/schemetrust/internal/model"
)

// DataGovClient searches the open-data portal for scheme datasets
type DataGovClient struct {
	base
}

// NewDataGovClient creates an open-data client
func NewDataGovClient(b base) *DataGovClient {
	return &DataGovClient{base: b}
}

type dataGovRecord struct {
	IndexName   string   `json:"index_name"`
	Title       string   `json:"title"`
	Description string   `json:"desc"`
	Org         []string `json:"org"`
	Sector      []string `json:"sector"`
	UpdatedDate string   `json:"updated_date"`
}

type dataGovResponse struct {
	Records []dataGovRecord `json:"records"`
}

// Fetch searches resources by scheme name
func (c *DataGovClient) Fetch(ctx context.Context, scheme model.Scheme) ([]model.RawEvidence, error) {
	query := url.Values{
		"api-key": {c.apiKey},
		"format":  {"json"},
		"q":       {scheme.Name},
		"limit":   {"20"},
	}

	var resp dataGovResponse
	if err := c.getJSON(ctx, c.endpoint("/resource/search", query), &resp); err != nil {
		return nil, err
	}

	var out []model.RawEvidence
	for _, rec := range resp.Records {
		if rec.Title == "" || matchScore(scheme, rec.Title) < c.threshold(0.4) {
			continue
		}

		link := ""
		if rec.IndexName != "" {
			link = c.resolve("/resource/" + url.PathEscape(rec.IndexName))
		}
		excerpt := strings.Join(nonEmpty(rec.Description, strings.Join(rec.Org, ", "), strings.Join(rec.Sector, ", ")), " | ")

		out = append(out, model.NewRawEvidence(c.id, rec.IndexName, rec.Title, excerpt, link, parseDate(rec.UpdatedDate), model.IndicationActive))
	}

	if len(out) == 0 {
		return nil, c.notFound("datasets", scheme)
	}
	return out, nil
}
