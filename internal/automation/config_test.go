package automation_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusion-sh/fusion/internal/automation"
)

func TestParseConfigValidEventTrigger(t *testing.T) {
	raw := json.RawMessage(`{
		"trigger": {"kind": "EVENT", "conditions": {"fact": "displayState", "operator": "eq", "value": "OPEN"}},
		"actions": [{"type": "createEvent", "params": {}}]
	}`)

	cfg, err := automation.ParseConfig(raw)
	require.NoError(t, err)
	assert.Equal(t, automation.TriggerEvent, cfg.Trigger.Kind)
	assert.Len(t, cfg.Actions, 1)
	assert.Equal(t, automation.ActionCreateEvent, cfg.Actions[0].Type)
}

func TestParseConfigValidScheduledTrigger(t *testing.T) {
	raw := json.RawMessage(`{
		"trigger": {"kind": "SCHEDULED", "timeLocal": "09:00", "daysOfWeek": [1,2,3,4,5], "timeZone": "America/New_York"},
		"actions": [{"type": "armArea", "params": {}}]
	}`)

	cfg, err := automation.ParseConfig(raw)
	require.NoError(t, err)
	assert.Equal(t, automation.TriggerScheduled, cfg.Trigger.Kind)
}

func TestParseConfigRejectsUnknownTriggerKind(t *testing.T) {
	raw := json.RawMessage(`{"trigger": {"kind": "BOGUS"}, "actions": []}`)
	_, err := automation.ParseConfig(raw)
	assert.Error(t, err)
}

func TestParseConfigRejectsMissingActionType(t *testing.T) {
	raw := json.RawMessage(`{
		"trigger": {"kind": "EVENT", "conditions": {"fact": "x", "operator": "eq", "value": "y"}},
		"actions": [{"params": {}}]
	}`)
	_, err := automation.ParseConfig(raw)
	assert.Error(t, err)
}

func TestParseConfigRejectsMalformedJSON(t *testing.T) {
	_, err := automation.ParseConfig(json.RawMessage(`not json`))
	assert.Error(t, err)
}
