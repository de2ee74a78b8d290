package timeutil

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func clockOf(minute int) civil.Time {
	return civil.Time{Hour: minute / 60, Minute: minute % 60}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    civil.Time
		wantErr bool
	}{
		{in: "08:00", want: civil.Time{Hour: 8}},
		{in: "20:30", want: civil.Time{Hour: 20, Minute: 30}},
		{in: "23:59", want: civil.Time{Hour: 23, Minute: 59}},
		{in: "24:00", wantErr: true},
		{in: "8am", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseQuietHours(t *testing.T) {
	qh, err := ParseQuietHours("", "")
	require.NoError(t, err)
	assert.Nil(t, qh)

	_, err = ParseQuietHours("21:00", "")
	assert.Error(t, err)

	qh, err = ParseQuietHours("21:00", "08:00")
	require.NoError(t, err)
	assert.Equal(t, "21:00-08:00", qh.String())
}

func TestResolveDueInstant(t *testing.T) {
	la := mustLoad(t, "America/Los_Angeles")
	times := DefaultReminderTimes()
	date := civil.Date{Year: 2025, Month: time.June, Day: 10}

	evening := Evening
	exact := civil.Time{Hour: 6, Minute: 45}

	t.Run("exact time wins", func(t *testing.T) {
		got := ResolveDueInstant(date, &evening, &exact, times, la)
		local := got.In(la)
		assert.Equal(t, 6, local.Hour())
		assert.Equal(t, 45, local.Minute())
	})

	t.Run("named slot", func(t *testing.T) {
		got := ResolveDueInstant(date, &evening, nil, times, la)
		local := got.In(la)
		assert.Equal(t, 20, local.Hour())
		assert.Equal(t, 30, local.Minute())
		// PDT is UTC-7
		assert.Equal(t, time.Date(2025, time.June, 11, 3, 30, 0, 0, time.UTC), got)
	})

	t.Run("defaults to morning", func(t *testing.T) {
		got := ResolveDueInstant(date, nil, nil, times, la)
		assert.Equal(t, 9, got.In(la).Hour())
	})

	t.Run("result is UTC", func(t *testing.T) {
		got := ResolveDueInstant(date, nil, nil, times, la)
		assert.Equal(t, time.UTC, got.Location())
	})
}

func TestResolveDueInstant_AcrossDST(t *testing.T) {
	la := mustLoad(t, "America/Los_Angeles")
	times := DefaultReminderTimes()

	// 2025-03-09 is the spring-forward day in Los Angeles.
	before := ResolveDueInstant(civil.Date{Year: 2025, Month: time.March, Day: 8}, nil, nil, times, la)
	after := ResolveDueInstant(civil.Date{Year: 2025, Month: time.March, Day: 9}, nil, nil, times, la)

	assert.Equal(t, 23*time.Hour, after.Sub(before))
	assert.Equal(t, 9, before.In(la).Hour())
	assert.Equal(t, 9, after.In(la).Hour())

	// 2025-11-02 falls back.
	before = ResolveDueInstant(civil.Date{Year: 2025, Month: time.November, Day: 1}, nil, nil, times, la)
	after = ResolveDueInstant(civil.Date{Year: 2025, Month: time.November, Day: 2}, nil, nil, times, la)
	assert.Equal(t, 25*time.Hour, after.Sub(before))
}

func TestCycleDayIndex(t *testing.T) {
	start := civil.Date{Year: 2025, Month: time.March, Day: 1}

	assert.Equal(t, 0, CycleDayIndex(start, start))
	assert.Equal(t, 9, CycleDayIndex(start, civil.Date{Year: 2025, Month: time.March, Day: 10}))
	assert.Equal(t, -1, CycleDayIndex(start, civil.Date{Year: 2025, Month: time.February, Day: 28}))
}

func TestIsWithinQuietHours(t *testing.T) {
	la := mustLoad(t, "America/Los_Angeles")
	qh := &QuietHours{Start: civil.Time{Hour: 21}, End: civil.Time{Hour: 8}}
	date := civil.Date{Year: 2025, Month: time.June, Day: 10}

	tests := []struct {
		name  string
		clock civil.Time
		want  bool
	}{
		{"at start", civil.Time{Hour: 21}, true},
		{"late evening", civil.Time{Hour: 23, Minute: 59}, true},
		{"just after midnight", civil.Time{Hour: 0, Minute: 1}, true},
		{"just before end", civil.Time{Hour: 7, Minute: 59}, true},
		{"at end", civil.Time{Hour: 8}, false},
		{"afternoon", civil.Time{Hour: 15}, false},
		{"just before start", civil.Time{Hour: 20, Minute: 59}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsWithinQuietHours(At(date, tt.clock, la), qh, la))
		})
	}

	t.Run("nil quiet hours", func(t *testing.T) {
		assert.False(t, IsWithinQuietHours(At(date, civil.Time{Hour: 23}, la), nil, la))
	})

	t.Run("empty interval", func(t *testing.T) {
		same := &QuietHours{Start: civil.Time{Hour: 9}, End: civil.Time{Hour: 9}}
		assert.False(t, IsWithinQuietHours(At(date, civil.Time{Hour: 9}, la), same, la))
	})

	t.Run("same-day interval", func(t *testing.T) {
		lunch := &QuietHours{Start: civil.Time{Hour: 12}, End: civil.Time{Hour: 13}}
		assert.True(t, IsWithinQuietHours(At(date, civil.Time{Hour: 12, Minute: 30}, la), lunch, la))
		assert.False(t, IsWithinQuietHours(At(date, civil.Time{Hour: 13}, la), lunch, la))
	})
}

func TestPushOutOfQuietHours(t *testing.T) {
	la := mustLoad(t, "America/Los_Angeles")
	qh := &QuietHours{Start: civil.Time{Hour: 21}, End: civil.Time{Hour: 8}}
	date := civil.Date{Year: 2025, Month: time.June, Day: 10}

	t.Run("bedtime moves to same-day end", func(t *testing.T) {
		got := PushOutOfQuietHours(At(date, civil.Time{Hour: 22}, la), qh, la)
		assert.Equal(t, At(date, civil.Time{Hour: 8}, la), got)
	})

	t.Run("early morning moves to end", func(t *testing.T) {
		got := PushOutOfQuietHours(At(date, civil.Time{Hour: 6}, la), qh, la)
		assert.Equal(t, At(date, civil.Time{Hour: 8}, la), got)
	})

	t.Run("outside is unchanged", func(t *testing.T) {
		in := At(date, civil.Time{Hour: 20, Minute: 30}, la)
		assert.Equal(t, in, PushOutOfQuietHours(in, qh, la))
	})
}

// Feature: quiet hours, Property 1: midnight-spanning containment
func TestProperty_MidnightSpanningQuietHours(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	// No DST transition on this date, so every wall-clock minute exists once.
	date := civil.Date{Year: 2025, Month: time.June, Day: 10}

	properties.Property("inside iff local minute in [start,24:00) or [0:00,end)", prop.ForAll(
		func(startMin, endMin, m int) bool {
			qh := &QuietHours{Start: clockOf(startMin), End: clockOf(endMin)}
			got := IsWithinQuietHours(At(date, clockOf(m), la), qh, la)
			want := m >= startMin || m < endMin
			return got == want
		},
		gen.IntRange(12*60, 24*60-1),
		gen.IntRange(0, 12*60-1),
		gen.IntRange(0, 24*60-1),
	))

	properties.TestingRun(t)
}

// Feature: quiet hours, Property 2: push-out is the identity outside quiet hours
func TestProperty_PushOutIdentityOutside(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	date := civil.Date{Year: 2025, Month: time.June, Day: 10}

	properties.Property("instants outside quiet hours are untouched", prop.ForAll(
		func(startMin, endMin, m int) bool {
			qh := &QuietHours{Start: clockOf(startMin), End: clockOf(endMin)}
			in := At(date, clockOf(m), la)
			if IsWithinQuietHours(in, qh, la) {
				out := PushOutOfQuietHours(in, qh, la)
				local := out.In(la)
				return local.Hour() == qh.End.Hour && local.Minute() == qh.End.Minute &&
					civil.DateOf(local) == date
			}
			return PushOutOfQuietHours(in, qh, la).Equal(in)
		},
		gen.IntRange(0, 24*60-1),
		gen.IntRange(0, 24*60-1),
		gen.IntRange(0, 24*60-1),
	))

	properties.TestingRun(t)
}

// Feature: time resolution, Property 3: local wall clock survives DST
func TestProperty_WallClockStableAcrossYear(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	start := civil.Date{Year: 2025, Month: time.January, Day: 1}
	times := DefaultReminderTimes()

	properties.Property("evening reminders always land on 20:30 local", prop.ForAll(
		func(offset int) bool {
			date := start.AddDays(offset)
			slot := Evening
			local := ResolveDueInstant(date, &slot, nil, times, la).In(la)
			return civil.DateOf(local) == date && local.Hour() == 20 && local.Minute() == 30 &&
				CycleDayIndex(start, date) == offset
		},
		gen.IntRange(0, 730),
	))

	properties.TestingRun(t)
}
