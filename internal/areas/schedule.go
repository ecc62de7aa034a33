// internal/areas/schedule.go
package areas

import (
	"context"
	"fmt"
	"time"

	"github.com/fusion-sh/fusion/internal/core"
	"github.com/fusion-sh/fusion/internal/gateway"
)

// EffectiveScheduleID resolves the schedule an area currently uses:
// its override, or its location's default; an area with neither has no
// schedule (§4.6).
func EffectiveScheduleID(area core.Area, location *core.Location) *string {
	if area.OverrideArmingScheduleID != nil {
		return area.OverrideArmingScheduleID
	}
	if location != nil {
		return location.ActiveArmingScheduleID
	}
	return nil
}

// NextInstants computes the next arm and disarm instants, in UTC, for a
// schedule's local times evaluated against the given time zone and
// daysOfWeek, relative to now. Either may be nil if no day in the schedule
// has yet to occur (which in practice never happens for a weekly
// recurrence, but NextInstants stays total rather than assuming).
func NextInstants(schedule core.ArmingSchedule, zone string, now time.Time) (armAt, disarmAt *time.Time, err error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, nil, fmt.Errorf("areas: load time zone %q: %w", zone, err)
	}
	armAt, err = nextOccurrence(schedule.ArmTimeLocal, schedule.DaysOfWeek, loc, now)
	if err != nil {
		return nil, nil, err
	}
	disarmAt, err = nextOccurrence(schedule.DisarmTimeLocal, schedule.DaysOfWeek, loc, now)
	if err != nil {
		return nil, nil, err
	}
	return armAt, disarmAt, nil
}

func nextOccurrence(hhmm string, daysOfWeek []int, loc *time.Location, now time.Time) (*time.Time, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &hour, &minute); err != nil {
		return nil, fmt.Errorf("areas: invalid time %q: %w", hhmm, err)
	}
	daySet := map[int]bool{}
	for _, d := range daysOfWeek {
		daySet[d] = true
	}
	if len(daySet) == 0 {
		for d := 0; d < 7; d++ {
			daySet[d] = true
		}
	}

	localNow := now.In(loc)
	for offset := 0; offset < 8; offset++ {
		candidate := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), hour, minute, 0, 0, loc).AddDate(0, 0, offset)
		if !daySet[int(candidate.Weekday())] {
			continue
		}
		if candidate.After(localNow) {
			utc := candidate.UTC()
			return &utc, nil
		}
	}
	return nil, nil
}

// EffectiveSchedule loads the schedule and resolving location for an area,
// returning (nil, nil, nil) when the area has no effective schedule.
func EffectiveSchedule(ctx context.Context, gw *gateway.Gateway, area core.Area) (*core.ArmingSchedule, *core.Location, error) {
	var location *core.Location
	if area.LocationID != nil {
		loc, err := gw.Locations().GetByID(ctx, *area.LocationID)
		if err != nil {
			return nil, nil, fmt.Errorf("areas: resolve location %s: %w", *area.LocationID, err)
		}
		location = &loc
	}

	scheduleID := EffectiveScheduleID(area, location)
	if scheduleID == nil {
		return nil, location, nil
	}
	schedule, err := gw.Schedules().GetByID(ctx, *scheduleID)
	if err != nil {
		return nil, location, fmt.Errorf("areas: resolve schedule %s: %w", *scheduleID, err)
	}
	return &schedule, location, nil
}
