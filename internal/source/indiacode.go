package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/ppiankov/schemetrust/internal/fetch"
	"github.com/ppiankov/schemetrust/internal/model"
)

// IndiaCodeClient searches the India Code repository of central Acts
type IndiaCodeClient struct {
	base
}

// NewIndiaCodeClient creates an India Code client
func NewIndiaCodeClient(b base) *IndiaCodeClient {
	return &IndiaCodeClient{base: b}
}

type indiaCodeAct struct {
	ActID        string          `json:"act_id"`
	Title        string          `json:"title"`
	ShortTitle   string          `json:"short_title"`
	ActNumber    string          `json:"act_number"`
	Year         json.RawMessage `json:"year"`
	DateOfAssent string          `json:"date_of_assent"`
	Status       string          `json:"status"`
	Ministry     string          `json:"ministry"`
	URL          string          `json:"url"`
}

// Fetch searches Acts by scheme name
func (c *IndiaCodeClient) Fetch(ctx context.Context, scheme model.Scheme) ([]model.RawEvidence, error) {
	rawURL := c.endpoint("/handle/123456789/1362/search", url.Values{"query": {scheme.Name}})

	var payload json.RawMessage
	if err := c.getJSON(ctx, rawURL, &payload); err != nil {
		return nil, err
	}
	acts, err := decodeActs(payload)
	if err != nil {
		return nil, fetch.Transient(rawURL, 200, err)
	}

	var out []model.RawEvidence
	for _, act := range acts {
		title := act.Title
		if title == "" {
			title = act.ShortTitle
		}
		if title == "" || matchScore(scheme, title) < c.threshold(0.3) {
			continue
		}

		docID := act.ActID
		if docID == "" && act.ActNumber != "" {
			docID = "act:" + act.ActNumber + ":" + rawString(act.Year)
		}
		link := c.resolve(act.URL)
		if link == "" && act.ActID != "" {
			link = c.resolve("/handle/123456789/" + url.PathEscape(act.ActID))
		}

		excerpt := strings.Join(nonEmpty(
			prefixed("Act No. ", act.ActNumber),
			prefixed("Year ", rawString(act.Year)),
			prefixed("Status ", act.Status),
			act.Ministry,
		), "; ")

		out = append(out, model.NewRawEvidence(c.id, docID, title, excerpt, link,
			parseDate(act.DateOfAssent), normalizeActStatus(act.Status)))
	}

	if len(out) == 0 {
		return nil, c.notFound("acts", scheme)
	}
	return out, nil
}

// decodeActs accepts either a bare list or an object with a data list
func decodeActs(payload json.RawMessage) ([]indiaCodeAct, error) {
	trimmed := strings.TrimSpace(string(payload))
	if strings.HasPrefix(trimmed, "[") {
		var acts []indiaCodeAct
		if err := json.Unmarshal(payload, &acts); err != nil {
			return nil, fmt.Errorf("decode acts: %w", err)
		}
		return acts, nil
	}

	var wrapped struct {
		Data    []indiaCodeAct `json:"data"`
		Results []indiaCodeAct `json:"results"`
	}
	if err := json.Unmarshal(payload, &wrapped); err != nil {
		return nil, fmt.Errorf("decode acts: %w", err)
	}
	if len(wrapped.Data) > 0 {
		return wrapped.Data, nil
	}
	return wrapped.Results, nil
}

// normalizeActStatus maps India Code status strings onto indications
func normalizeActStatus(status string) model.Indication {
	s := strings.ToLower(strings.TrimSpace(status))
	switch {
	case containsAny(s, "repeal", "omitted", "expired"):
		return model.IndicationRevoked
	case strings.Contains(s, "amend"):
		return model.IndicationAmended
	default:
		return model.IndicationActive
	}
}

// rawString renders a JSON scalar that may be a string or a number
func rawString(m json.RawMessage) string {
	s := strings.TrimSpace(string(m))
	if s == "null" {
		return ""
	}
	return strings.Trim(s, `"`)
}
