package fusion

import (
	"fmt"
	"strings"
	"time"
)

// dateLayouts are the publish date formats found in the article store
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDate parses a publish date in any of the known layouts
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// InYearRange reports whether t falls in [startYear, endYear] by calendar year
// as written, without converting time zones.
func InYearRange(t time.Time, startYear, endYear int) bool {
	y := t.Year()
	return startYear <= y && y <= endYear
}
