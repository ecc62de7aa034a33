// internal/drivers/mapping.go
package drivers

import "github.com/fusion-sh/fusion/internal/core"

// canonicalType pairs the category+type a raw vendor event string maps to.
type canonicalType struct {
	Category core.EventCategory
	Type     core.EventType
}

// hubRawTypeTable maps the cloud hub's "event" field to a canonical
// category+type. Unknown keys are treated as unmapped (zero events, a
// warning) rather than guessed at.
var hubRawTypeTable = map[string]canonicalType{
	"contact.report":    {core.EventCategoryStateChange, core.EventTypeStateChanged},
	"motion.report":     {core.EventCategoryStateChange, core.EventTypeStateChanged},
	"leak.report":       {core.EventCategoryStateChange, core.EventTypeStateChanged},
	"vibration.report":  {core.EventCategoryStateChange, core.EventTypeStateChanged},
	"lock.report":       {core.EventCategoryAccess, core.EventTypeStateChanged},
	"button.report":     {core.EventCategoryButton, core.EventTypeButtonPressed},
	"battery.report":    {core.EventCategoryBattery, core.EventTypeBatteryLevelChanged},
	"device.statusReport": {core.EventCategoryStatus, core.EventTypeDeviceStatusReported},
}

// hubRawStateTable maps the hub's "data.state" string to a canonical
// DisplayState. Values outside this table are preserved verbatim on
// payload.rawStateValue but never surface as payload.displayState.
var hubRawStateTable = map[string]core.DisplayState{
	"open":         core.DisplayStateOpen,
	"closed":       core.DisplayStateClosed,
	"on":           core.DisplayStateOn,
	"off":          core.DisplayStateOff,
	"locked":       core.DisplayStateLocked,
	"unlocked":     core.DisplayStateUnlocked,
	"motion":       core.DisplayStateMotionDetected,
	"no_motion":    core.DisplayStateNoMotion,
	"leak":         core.DisplayStateLeakDetected,
	"dry":          core.DisplayStateDry,
	"vibration":    core.DisplayStateVibrationDetected,
	"no_vibration": core.DisplayStateNoVibration,
}

// vmsRawEventTypeTable maps a video-VMS event-type string to a canonical
// category+type.
var vmsRawEventTypeTable = map[string]canonicalType{
	"object_detected": {core.EventCategoryAnalytics, core.EventTypeObjectDetected},
	"motion_detected": {core.EventCategoryAnalytics, core.EventTypeObjectDetected},
	"access_granted":  {core.EventCategoryAccess, core.EventTypeAccessGranted},
	"access_denied":   {core.EventCategoryAccess, core.EventTypeAccessDenied},
	"camera_status":   {core.EventCategoryStatus, core.EventTypeDeviceStatusReported},
}
