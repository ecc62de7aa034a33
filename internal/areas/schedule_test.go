package areas_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusion-sh/fusion/internal/areas"
	"github.com/fusion-sh/fusion/internal/core"
)

func strPtr(s string) *string { return &s }

func TestEffectiveScheduleIDPrefersOverride(t *testing.T) {
	area := core.Area{OverrideArmingScheduleID: strPtr("override-1")}
	location := &core.Location{ActiveArmingScheduleID: strPtr("location-default")}

	got := areas.EffectiveScheduleID(area, location)
	require.NotNil(t, got)
	assert.Equal(t, "override-1", *got)
}

func TestEffectiveScheduleIDFallsBackToLocation(t *testing.T) {
	area := core.Area{}
	location := &core.Location{ActiveArmingScheduleID: strPtr("location-default")}

	got := areas.EffectiveScheduleID(area, location)
	require.NotNil(t, got)
	assert.Equal(t, "location-default", *got)
}

func TestEffectiveScheduleIDNilWithNoLocation(t *testing.T) {
	got := areas.EffectiveScheduleID(core.Area{}, nil)
	assert.Nil(t, got)
}

func TestNextInstantsComputesNextWeekdayOccurrence(t *testing.T) {
	// Monday 2026-01-05 10:00 UTC, schedule arms at 18:00 weekdays only.
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	schedule := core.ArmingSchedule{
		ArmTimeLocal:    "18:00",
		DisarmTimeLocal: "07:00",
		DaysOfWeek:      []int{1, 2, 3, 4, 5},
	}

	armAt, disarmAt, err := areas.NextInstants(schedule, "UTC", now)
	require.NoError(t, err)
	require.NotNil(t, armAt)
	require.NotNil(t, disarmAt)

	assert.Equal(t, time.Date(2026, 1, 5, 18, 0, 0, 0, time.UTC), *armAt)
	assert.Equal(t, time.Date(2026, 1, 6, 7, 0, 0, 0, time.UTC), *disarmAt)
}

func TestNextInstantsSkipsToNextAllowedDay(t *testing.T) {
	// Friday 2026-01-09 20:00 UTC, past today's 18:00 arm time, weekdays only.
	now := time.Date(2026, 1, 9, 20, 0, 0, 0, time.UTC)
	schedule := core.ArmingSchedule{
		ArmTimeLocal:    "18:00",
		DisarmTimeLocal: "07:00",
		DaysOfWeek:      []int{1, 2, 3, 4, 5},
	}

	armAt, _, err := areas.NextInstants(schedule, "UTC", now)
	require.NoError(t, err)
	require.NotNil(t, armAt)
	// Next weekday after Friday is Monday 2026-01-12.
	assert.Equal(t, time.Date(2026, 1, 12, 18, 0, 0, 0, time.UTC), *armAt)
}

func TestNextInstantsRejectsInvalidTimeZone(t *testing.T) {
	_, _, err := areas.NextInstants(core.ArmingSchedule{ArmTimeLocal: "09:00", DisarmTimeLocal: "17:00"}, "Not/AZone", time.Now())
	assert.Error(t, err)
}

func TestNextInstantsRejectsMalformedTimeString(t *testing.T) {
	_, _, err := areas.NextInstants(core.ArmingSchedule{ArmTimeLocal: "nope", DisarmTimeLocal: "17:00"}, "UTC", time.Now())
	assert.Error(t, err)
}
