package models

import (
	"fmt"
	"strings"
	"time"
)

// Layouts accepted for trade dates, tried in order. Layouts without a zone
// are interpreted in the caller's location.
var dateLayouts = []struct {
	layout string
	zoned  bool
}{
	{time.RFC3339Nano, true},
	{time.RFC3339, true},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02T15:04", false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02", false},
}

// ParseDate parses a trade date string. Zoned values keep their instant;
// date-only and zone-less values are read as wall time in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if loc == nil {
		loc = time.Local
	}

	for _, l := range dateLayouts {
		var (
			t   time.Time
			err error
		)
		if l.zoned {
			t, err = time.Parse(l.layout, s)
		} else {
			t, err = time.ParseInLocation(l.layout, s, loc)
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// Open parses the open date.
func (d TradeDetails) Open(loc *time.Location) (time.Time, error) {
	return ParseDate(d.OpenDate, loc)
}

// Close parses the close date.
func (d TradeDetails) Close(loc *time.Location) (time.Time, error) {
	return ParseDate(d.CloseDate, loc)
}
