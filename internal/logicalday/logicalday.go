// Package logicalday maps instants to "logical days": calendar days whose
// boundary sits at a cutoff hour instead of midnight, so that activity at
// 2 AM still belongs to the previous day.
package logicalday

import (
	"fmt"
	"strconv"
	"time"
)

// Day is a logical day number. Day 1 is 0001-01-01 of the proleptic
// Gregorian calendar, so 1970-01-01 is 719163.
type Day int32

// unixEpochDay is the Day number of 1970-01-01.
const unixEpochDay = 719163

const secondsPerDay = 24 * 60 * 60

const (
	// DefaultOffset is the UTC offset used when none is configured (UTC+8).
	DefaultOffset = 8 * time.Hour
	// DefaultCutoff is the default day boundary (03:00 local time).
	DefaultCutoff = 3 * time.Hour
)

// String returns the decimal day number. This is also the name of the
// recycle-bin directory for the day.
func (d Day) String() string {
	return strconv.FormatInt(int64(d), 10)
}

// Date returns the calendar date that d stands for.
func (d Day) Date() (year int, month time.Month, day int) {
	return time.Unix(int64(d-unixEpochDay)*secondsPerDay, 0).UTC().Date()
}

// ParseDay parses a signed decimal day number.
func ParseDay(s string) (Day, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid logical day %q: %w", s, err)
	}
	return Day(n), nil
}

// Calendar converts between instants and logical days for one fixed UTC
// offset and cutoff.
type Calendar struct {
	loc    *time.Location
	cutoff time.Duration
}

// Default returns the UTC+8, 03:00 cutoff calendar.
func Default() Calendar {
	return newCalendar(DefaultOffset, DefaultCutoff)
}

// NewCalendar builds a Calendar from a UTC offset in minutes (east positive)
// and a cutoff hour in [0, 23].
func NewCalendar(offsetMinutes, cutoffHour int) (Calendar, error) {
	if offsetMinutes < -12*60 || offsetMinutes > 14*60 {
		return Calendar{}, fmt.Errorf("utc offset out of range: %d minutes", offsetMinutes)
	}
	if cutoffHour < 0 || cutoffHour > 23 {
		return Calendar{}, fmt.Errorf("cutoff hour out of range: %d", cutoffHour)
	}
	return newCalendar(time.Duration(offsetMinutes)*time.Minute, time.Duration(cutoffHour)*time.Hour), nil
}

func newCalendar(offset, cutoff time.Duration) Calendar {
	return Calendar{
		loc:    time.FixedZone(zoneName(offset), int(offset/time.Second)),
		cutoff: cutoff,
	}
}

func zoneName(offset time.Duration) string {
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	return fmt.Sprintf("UTC%c%02d:%02d", sign, h, m)
}

// Location returns the fixed zone the calendar works in.
func (c Calendar) Location() *time.Location { return c.loc }

// Cutoff returns the day boundary as an offset from local midnight.
func (c Calendar) Cutoff() time.Duration { return c.cutoff }

// FromTime returns the logical day containing t. It is monotonic:
// t1 <= t2 implies FromTime(t1) <= FromTime(t2).
func (c Calendar) FromTime(t time.Time) Day {
	shifted := t.In(c.loc).Add(-c.cutoff)
	return dayOfDate(shifted.Date())
}

// FromUnix returns the logical day containing the given Unix second.
func (c Calendar) FromUnix(sec int64) Day {
	return c.FromTime(time.Unix(sec, 0))
}

// FromLocal returns the logical day of a wall-clock time expressed in the
// calendar's own offset.
func (c Calendar) FromLocal(year int, month time.Month, day, hour, min, sec int) Day {
	return c.FromTime(time.Date(year, month, day, hour, min, sec, 0, c.loc))
}

// Range returns the half-open interval [start, end) of instants that belong
// to d.
func (c Calendar) Range(d Day) (start, end time.Time) {
	y, m, dd := d.Date()
	start = time.Date(y, m, dd, 0, 0, 0, 0, c.loc).Add(c.cutoff)
	end = start.AddDate(0, 0, 1)
	return start, end
}

// DaysSince returns the number of logical days between old and now.
// It is negative when old is after now.
func (c Calendar) DaysSince(old, now time.Time) int {
	return int(c.FromTime(now) - c.FromTime(old))
}

func dayOfDate(year int, month time.Month, day int) Day {
	midnight := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Day(midnight.Unix()/secondsPerDay + unixEpochDay)
}
