package normalize

import (
	"strings"
	"time"
)

// dateFormats are tried in order. First successful parse wins.
var dateFormats = []string{
	"02.01.2006",
	"02/01/2006",
	"2006-01-02",
	"02.01.06",
	"02/01/06",
	"06-01-02",
}

// ParseDate normalizes a date string to ISO yyyy-mm-dd.
//
// Formats are tried in a fixed order; the first successful parse is
// re-rendered as ISO. Anything unparseable is returned unchanged, so the
// caller can store the raw value instead of losing it.
func ParseDate(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}

	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format("2006-01-02")
		}
	}

	return s
}
