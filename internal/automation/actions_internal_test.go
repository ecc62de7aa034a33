package automation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusion-sh/fusion/internal/core"
)

func TestCameraRefsForFiltersByTargetConnector(t *testing.T) {
	ac := ActionContext{
		CameraRefs: []core.CameraAssociation{
			{CameraExternalID: "cam-1", CameraConnectorID: "vms-a"},
			{CameraExternalID: "cam-2", CameraConnectorID: "vms-b"},
			{CameraExternalID: "cam-3", CameraConnectorID: "vms-a"},
		},
	}

	refs := cameraRefsFor(ac, "vms-a")
	assert.Equal(t, []string{"cam-1", "cam-3"}, refs)
}

func TestCameraRefsForNoMatches(t *testing.T) {
	ac := ActionContext{CameraRefs: []core.CameraAssociation{
		{CameraExternalID: "cam-1", CameraConnectorID: "vms-a"},
	}}
	refs := cameraRefsFor(ac, "vms-z")
	assert.Nil(t, refs)
}

func TestResolveScopedAreasSpecificAreasSkipsGatewayLookup(t *testing.T) {
	ac := ActionContext{} // Gateway is nil; a non-SPECIFIC_AREAS scoping would panic here
	ids, err := resolveScopedAreas(context.Background(), ac, areaScoping{
		Scoping:       "SPECIFIC_AREAS",
		TargetAreaIDs: []string{"area-1", "area-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"area-1", "area-2"}, ids)
}

func TestRunArmAreaRejectsInvalidArmMode(t *testing.T) {
	ac := ActionContext{}
	raw := []byte(`{"scoping":"SPECIFIC_AREAS","targetAreaIds":["area-1"],"armMode":"BOGUS"}`)
	err := runArmArea(context.Background(), ac, raw)
	assert.Error(t, err)
}

func TestBuildCreateBookmarkParamsUsesTriggeringEventTimestamp(t *testing.T) {
	eventTime := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	ac := ActionContext{Event: core.StandardizedEvent{Timestamp: eventTime}}

	params := buildCreateBookmarkParams(ac, createBookmarkRequest{})

	assert.Equal(t, eventTime.UnixMilli(), params.StartTimeMs)
}

func TestBuildCreateEventParamsUsesTriggeringEventTimestamp(t *testing.T) {
	eventTime := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	ac := ActionContext{Event: core.StandardizedEvent{Timestamp: eventTime}}

	params := buildCreateEventParams(ac, createEventRequest{})

	assert.Equal(t, eventTime, params.Timestamp)
}
