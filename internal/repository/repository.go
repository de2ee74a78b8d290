package repository

import (
	"errors"
	"time"

	"cloud.google.com/go/civil"
	"github.com/neerajk1208/ivfb/internal/timeutil"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

// dateParam converts a civil date to a DATE query parameter
func dateParam(d civil.Date) time.Time {
	return d.In(time.UTC)
}

// dateFromDB converts a scanned DATE column to a civil date
func dateFromDB(t time.Time) civil.Date {
	return civil.DateOf(t.UTC())
}

// clockParam renders an optional wall-clock time as "HH:MM"
func clockParam(t *civil.Time) *string {
	if t == nil {
		return nil
	}
	s := timeutil.FormatClock(*t)
	return &s
}

// clockFromDB parses an optional "HH:MM" column
func clockFromDB(s *string) (*civil.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := timeutil.ParseClock(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
