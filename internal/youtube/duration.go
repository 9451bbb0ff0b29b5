package youtube

import (
	"regexp"
	"strconv"
	"time"
)

var isoDurationRe = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// ParseISODuration converts an ISO-8601 duration as emitted by the Data
// API (PT1H2M3S) into total seconds. Malformed input yields 0.
func ParseISODuration(s string) int {
	m := isoDurationRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	hours := atoiZero(m[1])
	minutes := atoiZero(m[2])
	seconds := atoiZero(m[3])
	return hours*3600 + minutes*60 + seconds
}

func atoiZero(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// parseRFC3339 parses an API publish timestamp, nil when absent or bad.
func parseRFC3339(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

// parseUploadDate parses yt-dlp's YYYYMMDD upload date.
func parseUploadDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return nil
	}
	return &t
}
