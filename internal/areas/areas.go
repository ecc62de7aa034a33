// internal/areas/areas.go
package areas

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fusion-sh/fusion/internal/core"
	"github.com/fusion-sh/fusion/internal/gateway"
)

// Reasons recorded on LastArmedStateChangeReason (§4.6).
const (
	ReasonUserAction       = "user_action"
	ReasonAutomationArm    = "automation_arm"
	ReasonAutomationDisarm = "automation_disarm"
	ReasonSchedule         = "schedule"
	ReasonTrigger          = "trigger"
)

// ErrInvalidArmMode is returned when Arm is called with anything other than
// ARMED_AWAY or ARMED_STAY.
var ErrInvalidArmMode = errors.New("areas: arm mode must be ARMED_AWAY or ARMED_STAY")

// Arm transitions an area into ARMED_AWAY or ARMED_STAY, clearing any
// existing skip/next-schedule markers since this caller isn't supplying
// schedule-derived replacements for them (§4.6).
func Arm(ctx context.Context, gw *gateway.Gateway, areaID string, mode core.ArmedState, reason string) error {
	if mode != core.ArmedStateArmedAway && mode != core.ArmedStateArmedStay {
		return ErrInvalidArmMode
	}
	if err := gw.Areas().SetArmedState(ctx, areaID, mode, reason, nil, nil, nil); err != nil {
		return fmt.Errorf("areas: arm %s: %w", areaID, err)
	}
	return nil
}

// Disarm transitions an area to DISARMED, including out of TRIGGERED —
// TRIGGERED only ever leaves via an explicit disarm (§4.6).
func Disarm(ctx context.Context, gw *gateway.Gateway, areaID string, reason string) error {
	if err := gw.Areas().SetArmedState(ctx, areaID, core.ArmedStateDisarmed, reason, nil, nil, nil); err != nil {
		return fmt.Errorf("areas: disarm %s: %w", areaID, err)
	}
	return nil
}

// Trigger moves an armed area into TRIGGERED on a matching incoming event.
// It is a no-op when the area is already DISARMED or already TRIGGERED.
func Trigger(ctx context.Context, gw *gateway.Gateway, areaID string) error {
	area, err := gw.Areas().GetByID(ctx, areaID)
	if err != nil {
		return fmt.Errorf("areas: trigger %s: %w", areaID, err)
	}
	if area.ArmedState == core.ArmedStateDisarmed || area.ArmedState == core.ArmedStateTriggered {
		return nil
	}
	if err := gw.Areas().SetArmedState(ctx, areaID, core.ArmedStateTriggered, ReasonTrigger, nil, nil, nil); err != nil {
		return fmt.Errorf("areas: trigger %s: %w", areaID, err)
	}
	return nil
}

// ScheduleTick persists newly computed next-arm/next-disarm instants for a
// UI display refresh, without changing armed state (§4.6 step 5).
func ScheduleTick(ctx context.Context, gw *gateway.Gateway, areaID string, nextArm, nextDisarm *time.Time) error {
	return gw.Areas().UpdateScheduleTimes(ctx, areaID, nextArm, nextDisarm)
}
