package utils

import (
	"strings"
	"time"

	"coffeefarm/globals"
)

// ParseDate reads a YYYY-MM-DD string as local midnight in loc.
// Blank or malformed input yields nil.
func ParseDate(s string, loc *time.Location) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(globals.DateLayout, s, loc)
	if err != nil {
		return nil
	}
	return &t
}

// FormatDate renders t as YYYY-MM-DD in loc; nil renders as "".
func FormatDate(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(globals.DateLayout)
}

// DisplayDate renders t as dd/mm/yyyy, or fallback when t is nil.
func DisplayDate(t *time.Time, loc *time.Location, fallback string) string {
	if t == nil {
		return fallback
	}
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(globals.DisplayDateLayout)
}
