package automation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMatchesScheduleWindowFiresOnExactMinute(t *testing.T) {
	trig := Trigger{TimeLocal: "09:00", DaysOfWeek: []int{1, 2, 3, 4, 5}, TimeZone: "UTC"}
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC) // Monday

	assert.True(t, matchesScheduleWindow(trig, nil, now))
}

func TestMatchesScheduleWindowSkipsWrongMinute(t *testing.T) {
	trig := Trigger{TimeLocal: "09:00", DaysOfWeek: []int{1, 2, 3, 4, 5}, TimeZone: "UTC"}
	now := time.Date(2026, 1, 5, 9, 1, 0, 0, time.UTC)

	assert.False(t, matchesScheduleWindow(trig, nil, now))
}

func TestMatchesScheduleWindowSkipsDisallowedDay(t *testing.T) {
	trig := Trigger{TimeLocal: "09:00", DaysOfWeek: []int{1, 2, 3, 4, 5}, TimeZone: "UTC"}
	saturday := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

	assert.False(t, matchesScheduleWindow(trig, nil, saturday))
}

func TestMatchesScheduleWindowSkipsAlreadyFiredThisMinute(t *testing.T) {
	trig := Trigger{TimeLocal: "09:00", DaysOfWeek: []int{1}, TimeZone: "UTC"}
	now := time.Date(2026, 1, 5, 9, 0, 30, 0, time.UTC)
	lastFired := time.Date(2026, 1, 5, 9, 0, 5, 0, time.UTC)

	assert.False(t, matchesScheduleWindow(trig, &lastFired, now))
}

func TestMatchesScheduleWindowFiresAgainOnNextDay(t *testing.T) {
	trig := Trigger{TimeLocal: "09:00", DaysOfWeek: []int{1, 2}, TimeZone: "UTC"}
	now := time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC) // Tuesday
	lastFired := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	assert.True(t, matchesScheduleWindow(trig, &lastFired, now))
}

func TestMatchesScheduleWindowInvalidTimeZoneNeverMatches(t *testing.T) {
	trig := Trigger{TimeLocal: "09:00", TimeZone: "Not/AZone"}
	assert.False(t, matchesScheduleWindow(trig, nil, time.Now()))
}

func TestParseHHMM(t *testing.T) {
	hour, minute, ok := parseHHMM("14:37")
	assert.True(t, ok)
	assert.Equal(t, 14, hour)
	assert.Equal(t, 37, minute)

	_, _, ok = parseHHMM("not-a-time")
	assert.False(t, ok)
}

func TestSameDay(t *testing.T) {
	a := time.Date(2026, 1, 5, 1, 0, 0, 0, time.UTC)
	b := time.Date(2026, 1, 5, 23, 0, 0, 0, time.UTC)
	c := time.Date(2026, 1, 6, 1, 0, 0, 0, time.UTC)

	assert.True(t, sameDay(a, b))
	assert.False(t, sameDay(a, c))
}
