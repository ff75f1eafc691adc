// Package timeutil normalizes the timestamp shapes that come back from the
// document stores: native time values, ISO-8601 strings and vendor wrappers
// such as the Mongo DateTime.
package timeutil

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrEmpty       = errors.New("timestamp is empty")
	ErrUnsupported = errors.New("unsupported timestamp")
)

// toTimer is implemented by wrappers with an explicit conversion method.
type toTimer interface {
	ToTime() time.Time
}

// timer is implemented by primitive.DateTime and similar wrappers.
type timer interface {
	Time() time.Time
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalize converts v to a UTC time.Time
func Normalize(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, ErrEmpty
	case time.Time:
		if t.IsZero() {
			return time.Time{}, ErrEmpty
		}
		return t.UTC(), nil
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, ErrEmpty
		}
		return t.UTC(), nil
	case string:
		return ParseISO(t)
	case toTimer:
		return t.ToTime().UTC(), nil
	case timer:
		return t.Time().UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %T", ErrUnsupported, v)
}

// ParseISO parses an ISO-8601 timestamp or calendar date
func ParseISO(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrEmpty
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnsupported, s)
}

// StartOfDay truncates t to midnight UTC
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
