package logicalday

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDay_KnownDates(t *testing.T) {
	tests := []struct {
		name string
		date time.Time
		want Day
	}{
		{"first day", time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC), 1},
		{"unix epoch", time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), 719163},
		{"2022-01-01", time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), 738156},
		{"2024-01-01", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 738886},
		{"before epoch", time.Date(1969, 12, 31, 0, 0, 0, 0, time.UTC), 719162},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dayOfDate(tt.date.Date())
			assert.Equal(t, tt.want, got)

			y, m, d := got.Date()
			assert.Equal(t, tt.date.Year(), y)
			assert.Equal(t, tt.date.Month(), m)
			assert.Equal(t, tt.date.Day(), d)
		})
	}
}

func TestCalendar_FromLocal_Cutoff(t *testing.T) {
	cal := Default()

	noon := cal.FromLocal(2024, 1, 1, 12, 0, 0)
	assert.Equal(t, Day(738886), noon)

	// 02:59 still belongs to the previous logical day
	assert.Equal(t, noon-1, cal.FromLocal(2024, 1, 1, 2, 59, 59))
	assert.Equal(t, noon, cal.FromLocal(2024, 1, 1, 3, 0, 0))
	assert.Equal(t, noon, cal.FromLocal(2024, 1, 2, 2, 59, 59))
	assert.Equal(t, noon+1, cal.FromLocal(2024, 1, 2, 3, 0, 0))
}

func TestCalendar_FromTime_Offset(t *testing.T) {
	cal := Default()

	// 2024-01-01 18:59 UTC is 2024-01-02 02:59 in UTC+8 -> still Jan 1
	assert.Equal(t, Day(738886), cal.FromTime(time.Date(2024, 1, 1, 18, 59, 0, 0, time.UTC)))
	// 19:00 UTC is 03:00 UTC+8 on Jan 2
	assert.Equal(t, Day(738887), cal.FromTime(time.Date(2024, 1, 1, 19, 0, 0, 0, time.UTC)))

	utc, err := NewCalendar(0, 0)
	require.NoError(t, err)
	assert.Equal(t, Day(738886), utc.FromTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, Day(738885), utc.FromTime(time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC)))
}

func TestCalendar_FromUnix(t *testing.T) {
	cal := Default()
	ts := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, cal.FromTime(ts), cal.FromUnix(ts.Unix()))
}

func TestCalendar_Monotonic(t *testing.T) {
	cal := Default()
	start := time.Date(2023, 12, 30, 0, 0, 0, 0, time.UTC)

	prev := cal.FromTime(start)
	for i := 1; i < 24*6; i++ {
		cur := cal.FromTime(start.Add(time.Duration(i) * 17 * time.Minute))
		require.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestCalendar_Range(t *testing.T) {
	cal := Default()
	day := Day(738886)

	start, end := cal.Range(day)
	assert.Equal(t, time.Date(2023, 12, 31, 19, 0, 0, 0, time.UTC), start.UTC())
	assert.Equal(t, 24*time.Hour, end.Sub(start))

	assert.Equal(t, day, cal.FromTime(start))
	assert.Equal(t, day, cal.FromTime(end.Add(-time.Second)))
	assert.Equal(t, day+1, cal.FromTime(end))
}

func TestCalendar_DaysSince(t *testing.T) {
	cal := Default()
	old := time.Date(2024, 1, 1, 12, 0, 0, 0, cal.Location())
	now := time.Date(2024, 1, 8, 12, 0, 0, 0, cal.Location())

	assert.Equal(t, 7, cal.DaysSince(old, now))
	assert.Equal(t, -7, cal.DaysSince(now, old))
	assert.Equal(t, 0, cal.DaysSince(now, now))
}

func TestNewCalendar_Validation(t *testing.T) {
	_, err := NewCalendar(15*60, 3)
	assert.Error(t, err)

	_, err = NewCalendar(0, 24)
	assert.Error(t, err)

	_, err = NewCalendar(0, -1)
	assert.Error(t, err)

	cal, err := NewCalendar(-5*60-30, 4)
	require.NoError(t, err)
	assert.Equal(t, "UTC-05:30", cal.Location().String())
	assert.Equal(t, 4*time.Hour, cal.Cutoff())
}

func TestParseDay(t *testing.T) {
	d, err := ParseDay("738156")
	require.NoError(t, err)
	assert.Equal(t, Day(738156), d)
	assert.Equal(t, "738156", d.String())

	d, err = ParseDay("-3")
	require.NoError(t, err)
	assert.Equal(t, Day(-3), d)

	for _, bad := range []string{"", "abc", "12a", "1.5", "99999999999"} {
		_, err := ParseDay(bad)
		assert.Error(t, err, "ParseDay(%q)", bad)
	}
}
