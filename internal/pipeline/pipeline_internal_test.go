package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusion-sh/fusion/internal/core"
)

func TestFanOutDeliversToSubscriberOfSameOrg(t *testing.T) {
	p := New(nil, nil)
	ch := p.Subscribe("org-1")

	evt := core.StandardizedEvent{EventID: "evt-1", OrganizationID: "org-1"}
	p.fanOut(evt)

	got := <-ch
	assert.Equal(t, "evt-1", got.EventID)
}

func TestFanOutSkipsOtherOrgSubscribers(t *testing.T) {
	p := New(nil, nil)
	ch := p.Subscribe("org-2")

	p.fanOut(core.StandardizedEvent{EventID: "evt-1", OrganizationID: "org-1"})

	select {
	case <-ch:
		t.Fatal("subscriber for a different org should not receive the event")
	default:
	}
}

func TestFanOutDropsOldestWhenSubscriberChannelIsFull(t *testing.T) {
	p := New(nil, nil)
	ch := p.Subscribe("org-1")

	for i := 0; i < subscriberQueueSize; i++ {
		p.fanOut(core.StandardizedEvent{EventID: "filler", OrganizationID: "org-1"})
	}

	// Channel is now full; one more send must drop the oldest and keep the newest.
	p.fanOut(core.StandardizedEvent{EventID: "newest", OrganizationID: "org-1"})

	var last core.StandardizedEvent
	for i := 0; i < subscriberQueueSize; i++ {
		last = <-ch
	}
	assert.Equal(t, "newest", last.EventID)
}

func TestUnsubscribeClosesChannelAndStopsDelivery(t *testing.T) {
	p := New(nil, nil)
	ch := p.Subscribe("org-1")
	p.Unsubscribe("org-1", ch)

	_, open := <-ch
	assert.False(t, open)
}

func TestCurrentDisplayStateUnknownDevice(t *testing.T) {
	p := New(nil, nil)
	_, ok := p.CurrentDisplayState("device-does-not-exist")
	assert.False(t, ok)
}

func TestCurrentDisplayStateAfterStateStore(t *testing.T) {
	p := New(nil, nil)
	p.states.Store("device-1", &deviceState{DisplayState: core.DisplayStateOn})

	state, ok := p.CurrentDisplayState("device-1")
	require.True(t, ok)
	assert.Equal(t, core.DisplayStateOn, state)
}

func TestAlarmDisplayStatesIsTheActiveReadingHalfOfEachSensorPair(t *testing.T) {
	assert.True(t, alarmDisplayStates[core.DisplayStateOpen])
	assert.True(t, alarmDisplayStates[core.DisplayStateMotionDetected])
	assert.True(t, alarmDisplayStates[core.DisplayStateLeakDetected])
	assert.True(t, alarmDisplayStates[core.DisplayStateVibrationDetected])

	assert.False(t, alarmDisplayStates[core.DisplayStateClosed])
	assert.False(t, alarmDisplayStates[core.DisplayStateNoMotion])
	assert.False(t, alarmDisplayStates[core.DisplayStateDry])
	assert.False(t, alarmDisplayStates[core.DisplayStateNoVibration])
	assert.False(t, alarmDisplayStates[core.DisplayState("")])
}
