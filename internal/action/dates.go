package action

import (
	"fmt"
	"regexp"
	"time"
)

var (
	compactDate   = regexp.MustCompile(`^\d{8}`)
	separatedDate = regexp.MustCompile(`^\d{4}([-:/.])\d{2}([-:/.])\d{2}`)
)

// dateLayout returns the Go layout of the date at the start of value and the
// length of that date prefix.
func dateLayout(value string) (string, int, bool) {
	if m := separatedDate.FindStringSubmatch(value); m != nil && m[1] == m[2] {
		sep := m[1]
		return "2006" + sep + "01" + sep + "02", len(m[0]), true
	}
	if compactDate.MatchString(value) {
		return "20060102", 8, true
	}
	return "", 0, false
}

// shiftDate adds days to a value that is exactly a date, keeping its layout.
func shiftDate(value string, days int) (string, error) {
	layout, n, ok := dateLayout(value)
	if !ok || n != len(value) {
		return "", fmt.Errorf("value is not a date")
	}
	t, err := time.Parse(layout, value)
	if err != nil {
		return "", fmt.Errorf("value is not a date: %w", err)
	}
	return t.AddDate(0, 0, days).Format(layout), nil
}

// shiftDateTime adds days to the date part of a timestamp. Everything after
// the date (time of day, fractional seconds, offset) is kept verbatim.
func shiftDateTime(value string, days int) (string, error) {
	layout, n, ok := dateLayout(value)
	if !ok {
		return "", fmt.Errorf("value is not a datetime")
	}
	t, err := time.Parse(layout, value[:n])
	if err != nil {
		return "", fmt.Errorf("value is not a datetime: %w", err)
	}
	return t.AddDate(0, 0, days).Format(layout) + value[n:], nil
}
