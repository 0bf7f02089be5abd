package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ppiankov/schemetrust/internal/model"
	"golang.org/x/net/html"
)

// gazetteRevocationWords mark notifications that withdraw a scheme
var gazetteRevocationWords = []string{"rescind", "repeal", "supersession", "supersede", "cancel", "withdraw"}

// GazetteClient searches the Gazette of India for scheme notifications
type GazetteClient struct {
	base
}

// NewGazetteClient creates a gazette client
func NewGazetteClient(b base) *GazetteClient {
	return &GazetteClient{base: b}
}

// Fetch searches notifications by scheme name and ministry
func (c *GazetteClient) Fetch(ctx context.Context, scheme model.Scheme) ([]model.RawEvidence, error) {
	query := url.Values{"keyword": {scheme.Name}}
	if scheme.Ministry != "" {
		query.Set("ministry", scheme.Ministry)
	}

	resp, err := c.get(ctx, c.endpoint("/SearchResult.aspx", query))
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("%s: parse html: %w", c.id, err)
	}

	var out []model.RawEvidence
	for _, row := range findAll(doc, func(n *html.Node) bool { return n.Type == html.ElementNode && n.Data == "tr" && hasClass(n, "gridrow") }) {
		ev, ok := c.parseRow(row)
		if !ok || matchScore(scheme, ev.Title) < c.threshold(0.3) {
			continue
		}
		out = append(out, ev)
	}

	if len(out) == 0 {
		return nil, c.notFound("gazette notifications", scheme)
	}
	return out, nil
}

// parseRow reads a result row: title, notification number, part, section, date, ministry, PDF link
func (c *GazetteClient) parseRow(row *html.Node) (model.RawEvidence, bool) {
	cells := directChildren(row, "td")
	if len(cells) < 5 {
		return model.RawEvidence{}, false
	}

	text := func(i int) string {
		if i < len(cells) {
			return nodeText(cells[i])
		}
		return ""
	}

	title := text(0)
	if title == "" {
		return model.RawEvidence{}, false
	}
	number := text(1)

	link := ""
	for _, a := range findAll(row, isElement("a")) {
		href := attr(a, "href")
		if strings.HasSuffix(strings.ToLower(href), ".pdf") || link == "" {
			link = c.resolve(href)
		}
	}

	excerpt := strings.Join(nonEmpty(
		prefixed("Notification ", number),
		prefixed("Part ", strings.TrimPrefix(text(2), "Part ")),
		prefixed("Section ", strings.TrimPrefix(text(3), "Section ")),
		text(5),
	), "; ")

	indication := model.IndicationActive
	if containsAny(title, gazetteRevocationWords...) {
		indication = model.IndicationRevoked
	}

	return model.NewRawEvidence(c.id, number, title, excerpt, link, parseDate(text(4)), indication), true
}

func prefixed(prefix, value string) string {
	if value == "" {
		return ""
	}
	return prefix + value
}

func nonEmpty(values ...string) []string {
	out := values[:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
