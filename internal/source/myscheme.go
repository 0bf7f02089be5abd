package source

import (
	"context"
	"net/url"
	"strings"

	"github.com/ppiankov/schemetrust/internal/model"
)

// MySchemeClient searches the national scheme directory
type MySchemeClient struct {
	base
}

// NewMySchemeClient creates a directory client
func NewMySchemeClient(b base) *MySchemeClient {
	return &MySchemeClient{base: b}
}

type mySchemeHit struct {
	Slug        string   `json:"slug"`
	SchemeName  string   `json:"schemeName"`
	ShortTitle  string   `json:"schemeShortTitle"`
	Ministry    string   `json:"nodalMinistryName"`
	Description string   `json:"briefDescription"`
	Categories  []string `json:"schemeCategory"`
	Status      string   `json:"schemeStatus"`
	LastUpdated string   `json:"lastUpdated"`
}

type mySchemeResponse struct {
	Hits []mySchemeHit `json:"hits"`
}

// Fetch searches the directory and keeps hits whose name overlaps the scheme's
func (c *MySchemeClient) Fetch(ctx context.Context, scheme model.Scheme) ([]model.RawEvidence, error) {
	var resp mySchemeResponse
	if err := c.getJSON(ctx, c.endpoint("/api/search", url.Values{"q": {scheme.Name}}), &resp); err != nil {
		return nil, err
	}

	var out []model.RawEvidence
	for _, hit := range resp.Hits {
		score := matchScore(scheme, hit.SchemeName)
		if hit.ShortTitle != "" {
			if s := matchScore(scheme, hit.ShortTitle); s > score {
				score = s
			}
		}
		if hit.SchemeName == "" || score < c.threshold(0.6) {
			continue
		}

		indication := model.IndicationActive
		if containsAny(hit.Status, "inactive", "closed", "discontinued") {
			indication = model.IndicationRevoked
		}

		link := ""
		if hit.Slug != "" {
			link = c.resolve("/schemes/" + url.PathEscape(hit.Slug))
		}

		excerpt := strings.Join(nonEmpty(hit.Description, hit.Ministry, strings.Join(hit.Categories, ", ")), " | ")
		out = append(out, model.NewRawEvidence(c.id, hit.Slug, hit.SchemeName, excerpt, link, parseDate(hit.LastUpdated), indication))
	}

	if len(out) == 0 {
		return nil, c.notFound("directory entries", scheme)
	}
	return out, nil
}
