// Package dates normalises the day-first date formats found on UK property
// documents into ISO-8601 calendar dates.
package dates

import (
	"regexp"
	"strings"
	"time"
)

// ISOLayout is the only date format stored on jobs and structured results.
const ISOLayout = "2006-01-02"

// layouts are tried in order; day-first wins over month-first for numeric dates.
var layouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"02.01.2006",
	"2.1.2006",
	"02/01/06",
	"2/1/06",
	"02-01-06",
	"2-1-06",
	"02.01.06",
	"2.1.06",
	"2 January 2006",
	"2 Jan 2006",
	"January 2 2006",
	"Jan 2 2006",
	"January 2006",
	"Jan 2006",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

var (
	reOrdinal = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)
	reSpaces  = regexp.MustCompile(`\s+`)
	reOf      = regexp.MustCompile(`(?i)\b(\d{1,2})\s+of\s+`)
	reAbbrDot = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|jun|jul|aug|sept?|oct|nov|dec)\.`)
)

// Normalize parses raw and returns it as YYYY-MM-DD. ok is false when raw is
// not a recognisable date; it never panics on arbitrary input.
func Normalize(raw string) (string, bool) {
	t, ok := Parse(raw)
	if !ok {
		return "", false
	}
	return t.Format(ISOLayout), true
}

// Parse is Normalize returning the date as a UTC midnight time.Time.
func Parse(raw string) (time.Time, bool) {
	s := clean(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

func clean(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, `"'.,;:`)
	s = reOrdinal.ReplaceAllString(s, "$1")
	s = reOf.ReplaceAllString(s, "$1 ")
	s = reAbbrDot.ReplaceAllString(s, "$1 ")
	s = strings.ReplaceAll(s, ",", " ")
	s = reSpaces.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	// "Sept" is common on certificates but is not a Go month abbreviation.
	if i := strings.Index(strings.ToLower(s), "sept "); i >= 0 {
		s = s[:i+3] + s[i+4:]
	}
	return s
}
