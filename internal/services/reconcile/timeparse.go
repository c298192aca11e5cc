package reconcile

import (
	"strconv"
	"strings"
	"time"
)

// DefaultLocation — зона апстримов для значений без смещения.
var DefaultLocation = time.FixedZone("UTC+8", 8*60*60)

var localLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006-01-02",
}

// parseTimestamp понимает RFC 3339, локальные форматы и epoch в миллисекундах.
// Пустая или нераспознанная строка даёт ok=false.
func parseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), true
		}
	}

	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		// Секунды тоже встречаются: 10 знаков.
		if len(s) <= 10 {
			return time.Unix(ms, 0).UTC(), true
		}
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}
