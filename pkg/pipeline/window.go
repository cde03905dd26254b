package pipeline

import (
	"fmt"
	"strings"
	"time"
)

const dateOnly = "2006-01-02"

// ParseWindow parses optional since/until values given as RFC 3339 or
// YYYY-MM-DD. A date-only until covers that whole day. Empty values stay
// zero.
func ParseWindow(since, until string) (time.Time, time.Time, error) {
	s, _, err := parseDate(since)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: since: %v", ErrInvalidWindow, err)
	}
	u, dateOnlyUntil, err := parseDate(until)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: until: %v", ErrInvalidWindow, err)
	}
	if dateOnlyUntil {
		u = u.Add(24*time.Hour - time.Second)
	}
	if !s.IsZero() && !u.IsZero() && s.After(u) {
		return time.Time{}, time.Time{}, ErrInvalidWindow
	}
	return s, u, nil
}

func parseDate(v string) (time.Time, bool, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, false, nil
	}
	t, err := time.Parse(dateOnly, v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid date %q: want RFC 3339 or YYYY-MM-DD", v)
	}
	return t, true, nil
}
