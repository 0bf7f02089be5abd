package source

import (
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
	"2-Jan-2006",
	"02-Jan-2006",
	"2 Jan 2006",
	"2 January 2006",
	"January 2, 2006",
	"2006",
}

// parseDate parses the date formats used by Indian government portals.
// It returns nil when nothing matches.
func parseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
