package gitlog

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DisplayLayout is the layout of Commit.Date
	DisplayLayout = "01/02/2006 15:04"

	// defaultLayout is git's "--date=default" output once runs of spaces are collapsed
	defaultLayout = "Mon Jan 2 15:04:05 2006 -0700"
)

// FormatDate renders a git date in DisplayLayout, keeping the commit's own
// UTC offset. ISO-8601 strict dates and git's default date format are accepted.
func FormatDate(s string) (string, error) {
	display, _, err := parseDate(s)
	return display, err
}

// parseDate returns the display form of a git date and its instant in UTC.
func parseDate(s string) (string, time.Time, error) {
	t, err := parseGitDate(s)
	if err != nil {
		return "", time.Time{}, err
	}
	return t.Format(DisplayLayout), t.UTC(), nil
}

// ParseDisplayDate parses a Commit.Date value. The result is in UTC since the
// display layout carries no offset.
func ParseDisplayDate(s string) (time.Time, error) {
	t, err := time.Parse(DisplayLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrDateParse, s)
	}
	return t, nil
}

func parseGitDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(defaultLayout, strings.Join(strings.Fields(s), " ")); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrDateParse, s)
}
