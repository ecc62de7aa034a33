// internal/automation/config.go
package automation

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// TriggerKind is the closed set of ways an automation may fire (§4.1).
type TriggerKind string

const (
	TriggerEvent     TriggerKind = "EVENT"
	TriggerScheduled TriggerKind = "SCHEDULED"
)

// Trigger is the union of an event-driven rule tree and a scheduled
// time-window trigger. Only the fields matching Kind are populated.
type Trigger struct {
	Kind       TriggerKind `json:"kind" validate:"required,oneof=EVENT SCHEDULED"`
	Conditions RuleTree    `json:"conditions,omitempty"`

	// SCHEDULED fields: evaluated against now in TimeZone (§4.5.3).
	TimeLocal  string `json:"timeLocal,omitempty"`  // "HH:MM"
	DaysOfWeek []int  `json:"daysOfWeek,omitempty"` // 0=Sunday .. 6=Saturday
	TimeZone   string `json:"timeZone,omitempty"`
}

// ActionType is the closed set of action executors (§4.5.4).
type ActionType string

const (
	ActionCreateEvent           ActionType = "createEvent"
	ActionCreateBookmark        ActionType = "createBookmark"
	ActionSendHTTPRequest       ActionType = "sendHttpRequest"
	ActionSetDeviceState        ActionType = "setDeviceState"
	ActionSendPushNotification ActionType = "sendPushNotification"
	ActionArmArea               ActionType = "armArea"
	ActionDisarmArea             ActionType = "disarmArea"
)

// ActionRecord is one ordered step of an automation, carrying pre-resolution
// template parameters keyed by action Type.
type ActionRecord struct {
	Type   ActionType      `json:"type" validate:"required"`
	Params json.RawMessage `json:"params"`
}

// Config is the decoded shape of Automation.Config (§3).
type Config struct {
	Trigger Trigger        `json:"trigger" validate:"required"`
	Actions []ActionRecord `json:"actions" validate:"dive"`
}

func ParseConfig(raw json.RawMessage) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("automation: parse config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("automation: invalid config: %w", err)
	}
	return cfg, nil
}
