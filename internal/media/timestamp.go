package media

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatTimestamp renders seconds as m:ss, or h:mm:ss past the hour.
// Fractions are truncated: 18.9 renders as "0:18".
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int64(math.Floor(seconds))
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// ParseTimestamp is the inverse of FormatTimestamp. It accepts m:ss and
// h:mm:ss; minutes and seconds after the first field must be below 60.
func ParseTimestamp(s string) (int64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}

	var total int64
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		if i > 0 && (n >= 60 || len(p) != 2) {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		total = total*60 + n
	}
	return total, nil
}
