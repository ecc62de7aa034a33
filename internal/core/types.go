// internal/core/types.go
package core

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ConnectorCategory is the closed set of upstream vendor integrations Fusion
// speaks to. New vendors are added here and in the drivers registry, never
// by duck-typing a new module.
type ConnectorCategory string

const (
	CategoryMQTTHub  ConnectorCategory = "mqtt-hub"
	CategoryVideoVMS ConnectorCategory = "video-vms"
)

// Connector is the identity of an upstream integration instance.
type Connector struct {
	ID             string            `json:"id" db:"id"`
	OrganizationID string            `json:"organizationId" db:"organization_id"`
	Category       ConnectorCategory `json:"category" db:"category"`
	Name           string            `json:"name" db:"name"`
	Cfg            json.RawMessage   `json:"cfg" db:"cfg"`
	EventsEnabled  bool              `json:"eventsEnabled" db:"events_enabled"`
}

// DeviceType is the canonical device-class vocabulary. Vendor-specific
// subtypes live in Device.Subtype.
type DeviceType string

const (
	DeviceTypeCamera       DeviceType = "Camera"
	DeviceTypeDoorSensor   DeviceType = "DoorSensor"
	DeviceTypeMotionSensor DeviceType = "MotionSensor"
	DeviceTypeSwitch       DeviceType = "Switch"
	DeviceTypeOutlet       DeviceType = "Outlet"
	DeviceTypeLock         DeviceType = "Lock"
	DeviceTypeLeak         DeviceType = "Leak"
	DeviceTypeVibration    DeviceType = "Vibration"
	DeviceTypeButton       DeviceType = "Button"
)

// Device is a logical endpoint beneath a connector. (ConnectorID, ExternalID)
// is unique; devices belong transitively to the connector's organization.
type Device struct {
	ID                string     `json:"id" db:"id"`
	ConnectorID       string     `json:"connectorId" db:"connector_id"`
	ExternalID        string     `json:"externalId" db:"external_id"`
	Name              string     `json:"name" db:"name"`
	Type              DeviceType `json:"type" db:"type"`
	Subtype           string     `json:"subtype,omitempty" db:"subtype"`
	Vendor            string     `json:"vendor,omitempty" db:"vendor"`
	Model             string     `json:"model,omitempty" db:"model"`
	Status            string     `json:"status,omitempty" db:"status"`
	BatteryPercentage *int       `json:"batteryPercentage,omitempty" db:"battery_percentage"`
	LastSeen          *time.Time `json:"lastSeen,omitempty" db:"last_seen"`
}

// Location is a physical site. Areas within it inherit its time zone and
// default arming schedule unless overridden.
type Location struct {
	ID                     string  `json:"id" db:"id"`
	OrganizationID         string  `json:"organizationId" db:"organization_id"`
	Name                   string  `json:"name" db:"name"`
	ParentID               *string `json:"parentId,omitempty" db:"parent_id"`
	TimeZone               string  `json:"timeZone" db:"time_zone"`
	ActiveArmingScheduleID *string `json:"activeArmingScheduleId,omitempty" db:"active_arming_schedule_id"`
}

// ArmedState is the closed set of Area lifecycle states.
type ArmedState string

const (
	ArmedStateDisarmed  ArmedState = "DISARMED"
	ArmedStateArmedAway ArmedState = "ARMED_AWAY"
	ArmedStateArmedStay ArmedState = "ARMED_STAY"
	ArmedStateTriggered ArmedState = "TRIGGERED"
)

// Area is a logical alarm zone. If LocationID is nil the area is
// "unassigned" and ignores location-default schedules.
type Area struct {
	ID                       string     `json:"id" db:"id"`
	OrganizationID           string     `json:"organizationId" db:"organization_id"`
	LocationID               *string    `json:"locationId,omitempty" db:"location_id"`
	Name                     string     `json:"name" db:"name"`
	ArmedState               ArmedState `json:"armedState" db:"armed_state"`
	OverrideArmingScheduleID *string    `json:"overrideArmingScheduleId,omitempty" db:"override_arming_schedule_id"`
	LastArmedStateChangeReason string   `json:"lastArmedStateChangeReason,omitempty" db:"last_armed_state_change_reason"`
	NextScheduledArmTime     *time.Time `json:"nextScheduledArmTime,omitempty" db:"next_scheduled_arm_time"`
	NextScheduledDisarmTime  *time.Time `json:"nextScheduledDisarmTime,omitempty" db:"next_scheduled_disarm_time"`
	IsArmingSkippedUntil     *time.Time `json:"isArmingSkippedUntil,omitempty" db:"is_arming_skipped_until"`
}

// CameraAssociation links a non-camera device to a video camera, used to
// attach video context (bookmarks, bestShot) to the device's events.
type CameraAssociation struct {
	DeviceID          string `json:"deviceId" db:"device_id"`
	CameraExternalID  string `json:"cameraExternalId" db:"camera_external_id"`
	CameraConnectorID string `json:"cameraConnectorId" db:"camera_connector_id"`
}

// ArmingSchedule is a local-time arm/disarm window, evaluated in the owning
// location's time zone.
type ArmingSchedule struct {
	ID              string `json:"id" db:"id"`
	OrganizationID  string `json:"organizationId" db:"organization_id"`
	Name            string `json:"name" db:"name"`
	ArmTimeLocal    string `json:"armTimeLocal" db:"arm_time_local"`       // "HH:MM"
	DisarmTimeLocal string `json:"disarmTimeLocal" db:"disarm_time_local"` // "HH:MM"
	DaysOfWeek      []int  `json:"daysOfWeek" db:"-"`                      // 0=Sunday .. 6=Saturday
}

// EventCategory is the canonical top-level classification of an event.
type EventCategory string

const (
	EventCategoryStateChange EventCategory = "STATE_CHANGE"
	EventCategoryAccess      EventCategory = "ACCESS"
	EventCategoryAnalytics   EventCategory = "ANALYTICS"
	EventCategoryDiagnostic  EventCategory = "DIAGNOSTIC"
	EventCategoryButton      EventCategory = "BUTTON"
	EventCategoryBattery     EventCategory = "BATTERY"
	EventCategoryStatus      EventCategory = "STATUS"
)

// EventType is the canonical, vendor-neutral event type.
type EventType string

const (
	EventTypeStateChanged         EventType = "STATE_CHANGED"
	EventTypeAccessGranted        EventType = "ACCESS_GRANTED"
	EventTypeAccessDenied         EventType = "ACCESS_DENIED"
	EventTypeObjectDetected       EventType = "OBJECT_DETECTED"
	EventTypeButtonPressed        EventType = "BUTTON_PRESSED"
	EventTypeBatteryLevelChanged  EventType = "BATTERY_LEVEL_CHANGED"
	EventTypeDeviceStatusReported EventType = "DEVICE_STATUS_REPORTED"
)

// DisplayState is the closed vocabulary canonical state parsers are allowed
// to emit. Unmapped raw values leave DisplayState empty; the raw value is
// preserved on Payload.RawStateValue.
type DisplayState string

const (
	DisplayStateOn                DisplayState = "ON"
	DisplayStateOff               DisplayState = "OFF"
	DisplayStateOpen              DisplayState = "OPEN"
	DisplayStateClosed            DisplayState = "CLOSED"
	DisplayStateLocked            DisplayState = "LOCKED"
	DisplayStateUnlocked          DisplayState = "UNLOCKED"
	DisplayStateMotionDetected    DisplayState = "MOTION_DETECTED"
	DisplayStateNoMotion          DisplayState = "NO_MOTION"
	DisplayStateLeakDetected      DisplayState = "LEAK_DETECTED"
	DisplayStateDry               DisplayState = "DRY"
	DisplayStateVibrationDetected DisplayState = "VIBRATION_DETECTED"
	DisplayStateNoVibration       DisplayState = "NO_VIBRATION"
	DisplayStateTriggered         DisplayState = "TRIGGERED"
)

// BestShot is a vendor-supplied thumbnail reference for a detected object.
// URL is populated by the Event Pipeline after it fetches and stores the
// actual image bytes (§4.4); it is empty on a frame that carried no
// retrievable thumbnail or whose fetch failed.
type BestShot struct {
	CameraExternalID string `json:"cameraExternalId"`
	ObjectTrackID    string `json:"objectTrackId"`
	URL              string `json:"url,omitempty"`
}

// EventPayload is the structured, optional-everywhere body of a
// StandardizedEvent. Absent fields are omitted from facts and resolve to
// empty string in templates, never compared as undefined.
type EventPayload struct {
	DisplayState   DisplayState `json:"displayState,omitempty"`
	RawStateValue  string       `json:"rawStateValue,omitempty"`
	DetectionType  string       `json:"detectionType,omitempty"`
	Confidence     *float64     `json:"confidence,omitempty"`
	ButtonNumber   *int         `json:"buttonNumber,omitempty"`
	PressType      string       `json:"pressType,omitempty"` // Press | LongPress
	BatteryPercent *int         `json:"batteryPercent,omitempty"`
	BestShot       *BestShot    `json:"bestShot,omitempty"`
}

// DeviceInfo is a denormalized snapshot carried on the event for consumers
// that need type/subtype without a device lookup.
type DeviceInfo struct {
	Type    DeviceType `json:"type"`
	Subtype string     `json:"subtype,omitempty"`
}

// StandardizedEvent is the canonical, vendor-neutral event record. EventID
// is unique; (ConnectorID, DeviceExternalID, Timestamp, Type) is treated as
// idempotency-equivalent for dedup within a small window.
type StandardizedEvent struct {
	EventID          string        `json:"eventId"`
	OrganizationID   string        `json:"organizationId"`
	ConnectorID      string        `json:"connectorId"`
	DeviceExternalID string        `json:"deviceId"`
	Category         EventCategory `json:"category"`
	Type             EventType     `json:"type"`
	Subtype          string        `json:"subtype,omitempty"`
	Timestamp        time.Time     `json:"timestamp"`
	Payload          EventPayload  `json:"payload"`
	DeviceInfo       *DeviceInfo   `json:"deviceInfo,omitempty"`
}

// NewEventID generates a fresh canonical event identifier.
func NewEventID() string {
	return uuid.NewString()
}
