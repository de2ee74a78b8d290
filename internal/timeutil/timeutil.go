// Package timeutil converts between civil dates, local wall-clock times and
// absolute instants for a user's timezone.
//
// All day arithmetic is done on civil.Date values and composed into instants
// through time.Date in the target location, so DST transitions never shift a
// local wall-clock time.
package timeutil

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// TimeOfDay is a named delivery slot.
type TimeOfDay string

const (
	Morning   TimeOfDay = "morning"
	Afternoon TimeOfDay = "afternoon"
	Evening   TimeOfDay = "evening"
	Bedtime   TimeOfDay = "bedtime"
)

// Valid reports whether t is one of the known slots.
func (t TimeOfDay) Valid() bool {
	switch t {
	case Morning, Afternoon, Evening, Bedtime:
		return true
	}
	return false
}

// ReminderTimes maps named slots to local wall-clock times.
type ReminderTimes struct {
	Morning   civil.Time
	Afternoon civil.Time
	Evening   civil.Time
	Bedtime   civil.Time
}

// DefaultReminderTimes returns the stock slot table.
func DefaultReminderTimes() ReminderTimes {
	return ReminderTimes{
		Morning:   civil.Time{Hour: 9},
		Afternoon: civil.Time{Hour: 13},
		Evening:   civil.Time{Hour: 20, Minute: 30},
		Bedtime:   civil.Time{Hour: 22},
	}
}

// Lookup returns the wall-clock time for a slot, falling back to morning.
func (r ReminderTimes) Lookup(t TimeOfDay) civil.Time {
	switch t {
	case Afternoon:
		return r.Afternoon
	case Evening:
		return r.Evening
	case Bedtime:
		return r.Bedtime
	default:
		return r.Morning
	}
}

// QuietHours is a local wall-clock interval [Start, End). Start after End
// means the interval spans midnight.
type QuietHours struct {
	Start civil.Time
	End   civil.Time
}

// String renders the interval as "HH:MM-HH:MM".
func (q QuietHours) String() string {
	return FormatClock(q.Start) + "-" + FormatClock(q.End)
}

// ParseClock parses a 24h "HH:MM" wall-clock time.
func ParseClock(s string) (civil.Time, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return civil.Time{}, fmt.Errorf("invalid clock time %q: expected HH:MM", s)
	}
	return civil.Time{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// FormatClock renders a wall-clock time as "HH:MM".
func FormatClock(t civil.Time) string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseQuietHours builds a QuietHours from two "HH:MM" strings. Both empty
// yields nil; exactly one empty is an error.
func ParseQuietHours(start, end string) (*QuietHours, error) {
	if start == "" && end == "" {
		return nil, nil
	}
	if start == "" || end == "" {
		return nil, fmt.Errorf("quiet hours need both start and end")
	}
	s, err := ParseClock(start)
	if err != nil {
		return nil, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return nil, err
	}
	return &QuietHours{Start: s, End: e}, nil
}

// LoadLocation resolves an IANA timezone name, using fallback when name is
// empty.
func LoadLocation(name, fallback string) (*time.Location, error) {
	if name == "" {
		name = fallback
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return loc, nil
}

// Today returns the civil date of now in loc.
func Today(now time.Time, loc *time.Location) civil.Date {
	return civil.DateOf(now.In(loc))
}

// StartOfDay returns the instant local midnight begins on date in loc.
func StartOfDay(date civil.Date, loc *time.Location) time.Time {
	return date.In(loc)
}

// At composes a civil date and wall-clock time into an instant in loc.
func At(date civil.Date, clock civil.Time, loc *time.Location) time.Time {
	return civil.DateTime{Date: date, Time: clock}.In(loc).UTC()
}

// ResolveDueInstant picks the wall-clock time for a task and anchors it on
// date in loc. An exact time wins over a named slot; with neither, the
// morning slot is used.
func ResolveDueInstant(date civil.Date, named *TimeOfDay, exact *civil.Time, times ReminderTimes, loc *time.Location) time.Time {
	clock := times.Morning
	switch {
	case exact != nil:
		clock = *exact
	case named != nil:
		clock = times.Lookup(*named)
	}
	return At(date, clock, loc)
}

// CycleDayIndex is the signed number of days from start to target.
func CycleDayIndex(start, target civil.Date) int {
	return target.DaysSince(start)
}

func minuteOfDay(t civil.Time) int {
	return t.Hour*60 + t.Minute
}

// IsWithinQuietHours reports whether t falls inside qh, evaluated on the
// local wall clock of loc.
func IsWithinQuietHours(t time.Time, qh *QuietHours, loc *time.Location) bool {
	if qh == nil {
		return false
	}
	local := t.In(loc)
	m := local.Hour()*60 + local.Minute()
	start, end := minuteOfDay(qh.Start), minuteOfDay(qh.End)

	if start == end {
		return false
	}
	if start < end {
		return m >= start && m < end
	}
	// wraps midnight
	return m >= start || m < end
}

// PushOutOfQuietHours moves t to the quiet-hours end time on the same local
// day when t falls inside qh; otherwise t is returned unchanged.
func PushOutOfQuietHours(t time.Time, qh *QuietHours, loc *time.Location) time.Time {
	if !IsWithinQuietHours(t, qh, loc) {
		return t
	}
	return At(civil.DateOf(t.In(loc)), qh.End, loc)
}
