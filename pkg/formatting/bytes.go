// Package formatting parses and formats loosely structured values: byte sizes,
// monetary amounts, invoice dates, and JSON embedded in model output.
package formatting

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var byteUnits = []string{"B", "KB", "MB", "GB", "TB"}

var bytesPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([A-Za-z]*)$`)

// FormatBytes renders a byte count with base-1024 units.
func FormatBytes(n int64, precision int) string {
	if n <= 0 {
		return "0 B"
	}

	i := min(int(math.Log(float64(n))/math.Log(1024)), len(byteUnits)-1)
	size := float64(n) / math.Pow(1024, float64(i))
	return strconv.FormatFloat(size, 'f', max(precision, 0), 64) + " " + byteUnits[i]
}

// ParseBytes parses sizes such as "25MB" or "512 kb". A bare number is bytes.
func ParseBytes(s string) (int64, error) {
	m := bytesPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("invalid byte size: %q", s)
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size number: %w", err)
	}

	unit := strings.ToUpper(m[2])
	if unit == "" {
		return int64(value), nil
	}

	idx := slices.Index(byteUnits, unit)
	if idx == -1 {
		return 0, fmt.Errorf("unknown byte size unit: %q", unit)
	}
	return int64(value * math.Pow(1024, float64(idx))), nil
}
