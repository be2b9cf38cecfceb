package formatting

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

type dateLayout struct {
	pattern *regexp.Regexp
	layout  string
}

var dateLayouts = []dateLayout{
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}`), "2006-01-02"},
	{regexp.MustCompile(`\d{2}/\d{2}/\d{4}`), "01/02/2006"},
	{regexp.MustCompile(`\d{2}-\d{2}-\d{4}`), "01-02-2006"},
	{regexp.MustCompile(`\d{2}\.\d{2}\.\d{4}`), "02.01.2006"},
	{regexp.MustCompile(`(?i)\d{1,2}\s+(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)\s+\d{4}`), "2 Jan 2006"},
}

// ParseDate finds the first recognizable invoice date in s. Supported forms are
// 2024-12-18, 12/18/2024, 12-18-2024, 18.12.2024, and 18 Dec 2024.
func ParseDate(s string) (time.Time, error) {
	for _, dl := range dateLayouts {
		match := dl.pattern.FindString(s)
		if match == "" {
			continue
		}
		match = strings.Join(strings.Fields(match), " ")
		if dl.layout == "2 Jan 2006" {
			parts := strings.Fields(match)
			parts[1] = strings.ToUpper(parts[1][:1]) + strings.ToLower(parts[1][1:])
			match = strings.Join(parts, " ")
		}
		if t, err := time.Parse(dl.layout, match); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("no recognizable date in %q", s)
}

// NormalizeDate returns s rewritten as YYYY-MM-DD.
func NormalizeDate(s string) (string, error) {
	t, err := ParseDate(s)
	if err != nil {
		return "", err
	}
	return t.Format("2006-01-02"), nil
}
