package silver

import (
	"strconv"
	"strings"
	"time"

	"medallion/internal/bronze"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	time.RFC3339,
	"2006/01/02",
}

// ParseDate reads a calendar date. Anything unparseable is absent.
func ParseDate(raw string) *time.Time {
	if bronze.IsNull(raw) {
		return nil
	}
	s := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOf(t)
		}
	}
	return nil
}

// ParseIntDate reads a YYYYMMDD integer date. Zero, any other width and
// impossible calendar days are absent.
func ParseIntDate(raw string) *time.Time {
	n, ok := bronze.ParseInt(raw)
	if !ok || n == 0 {
		return nil
	}
	s := strconv.FormatInt(n, 10)
	if len(s) != 8 {
		return nil
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return nil
	}
	return dateOf(t)
}

func dateOf(t time.Time) *time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}
