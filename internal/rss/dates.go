package rss

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnrecognizedDate is returned when a date matches none of the accepted layouts.
var ErrUnrecognizedDate = errors.New("unrecognized date format")

// Accepted publication date layouts, tried in order.
const (
	layoutRFC822NoZone = "Mon, 2 Jan 2006 15:04:05"
	layoutRFC822Zone   = "Mon, 2 Jan 2006 15:04:05 -0700"
	layoutISO          = "2006-01-02 15:04:05"

	// Some feeds stamp every date with a literal "-0400". It is matched as
	// a suffix and read as UTC-4.
	literalZoneSuffix = " -0400"
)

var literalZone = time.FixedZone("-0400", -4*60*60)

// DateParser turns feed date strings into instants. Dates without a zone
// are read in Location.
type DateParser struct {
	Location *time.Location
}

// ParseDate parses s in the local time zone.
func ParseDate(s string) (time.Time, error) {
	return DateParser{Location: time.Local}.Parse(s)
}

// Parse tries each accepted layout in order; the first match wins.
func (p DateParser) Parse(s string) (time.Time, error) {
	loc := p.Location
	if loc == nil {
		loc = time.Local
	}
	s = strings.TrimSpace(s)

	if t, err := time.ParseInLocation(layoutRFC822NoZone, s, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(layoutRFC822Zone, s); err == nil {
		return t, nil
	}
	if rest, ok := strings.CutSuffix(s, literalZoneSuffix); ok {
		if t, err := time.ParseInLocation(layoutRFC822NoZone, rest, literalZone); err == nil {
			return t, nil
		}
	}
	if t, err := time.ParseInLocation(layoutISO, s, loc); err == nil {
		return t, nil
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrUnrecognizedDate, s)
}
