package formatting

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseAmount reads a monetary amount written with arbitrary currency markers and
// either "," or "." as the thousands or decimal separator. When both separators
// appear, the one that occurs last is the decimal point. A lone "," followed by
// one or two digits is a decimal comma. The result is rounded to two places.
func ParseAmount(s string) (float64, error) {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	cleaned := strings.Trim(b.String(), ".,")
	if cleaned == "" || cleaned == "-" {
		return 0, fmt.Errorf("no amount in %q", s)
	}

	comma := strings.LastIndex(cleaned, ",")
	dot := strings.LastIndex(cleaned, ".")

	switch {
	case comma >= 0 && dot >= 0 && comma > dot:
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	case comma >= 0 && dot >= 0:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	case comma >= 0:
		parts := strings.Split(cleaned, ",")
		if len(parts) == 2 && len(parts[1]) <= 2 {
			cleaned = parts[0] + "." + parts[1]
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return math.Round(v*100) / 100, nil
}
