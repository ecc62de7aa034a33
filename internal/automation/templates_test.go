package automation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fusion-sh/fusion/internal/automation"
	"github.com/fusion-sh/fusion/internal/core"
)

func TestResolveSubstitutesKnownPaths(t *testing.T) {
	evt := core.StandardizedEvent{
		EventID:          "evt-1",
		OrganizationID:   "org-1",
		ConnectorID:      "conn-1",
		DeviceExternalID: "dev-1",
		Category:         core.EventCategoryStateChange,
		Type:             core.EventTypeStateChanged,
		Timestamp:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Payload:          core.EventPayload{DisplayState: core.DisplayStateOpen},
	}
	device := &core.Device{ID: "dev-1", Name: "Front Door"}
	area := &core.Area{ID: "area-1", Name: "Lobby"}

	ctx := automation.BuildTemplateContext(evt, device, area, nil, nil, nil)

	out := automation.Resolve("{{ device.name }} in {{ area.name }} is {{ event.payload.displayState }}", ctx)
	assert.Equal(t, "Front Door in Lobby is OPEN", out)
}

func TestResolveUnknownPathBecomesEmptyString(t *testing.T) {
	evt := core.StandardizedEvent{EventID: "evt-1"}
	ctx := automation.BuildTemplateContext(evt, nil, nil, nil, nil, nil)

	out := automation.Resolve("device is {{ device.name }}, area is {{ area.name }}", ctx)
	assert.Equal(t, "device is , area is ", out)
}

func TestResolveLeavesNonTokenTextUntouched(t *testing.T) {
	evt := core.StandardizedEvent{EventID: "evt-1"}
	ctx := automation.BuildTemplateContext(evt, nil, nil, nil, nil, nil)

	out := automation.Resolve("no tokens here at all", ctx)
	assert.Equal(t, "no tokens here at all", out)
}
