package sessions

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fusion-sh/fusion/internal/core"
	"github.com/fusion-sh/fusion/internal/drivers"
)

func TestSleepBackoffReturnsFalseOnCancelledContext(t *testing.T) {
	m := &Manager{}
	w := &worker{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok := m.sleepBackoff(ctx, w)
	assert.False(t, ok)
	assert.Equal(t, 1, w.attempt)
}

func TestSleepBackoffIncrementsAttemptAcrossCalls(t *testing.T) {
	m := &Manager{}
	w := &worker{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 1; i <= 5; i++ {
		m.sleepBackoff(ctx, w)
		assert.Equal(t, i, w.attempt)
	}
}

func TestWorkerSetStateAndSnapshot(t *testing.T) {
	w := &worker{}
	w.setState(drivers.ConnectionStateConnected, "")
	state, reason := w.snapshot()
	assert.Equal(t, drivers.ConnectionStateConnected, state)
	assert.Equal(t, "", reason)

	w.setState(drivers.ConnectionStateFailed, "boom")
	state, reason = w.snapshot()
	assert.Equal(t, drivers.ConnectionStateFailed, state)
	assert.Equal(t, "boom", reason)
}

func TestManagerStatusUnknownConnector(t *testing.T) {
	m := NewManager(nil, nil, nil)
	_, ok := m.Status("does-not-exist")
	assert.False(t, ok)
}

func TestQueueDepthZeroBeforeDrainStarts(t *testing.T) {
	w := &worker{}
	assert.Equal(t, 0, w.queueDepth())
}

func TestQueueDepthReflectsBufferedFrames(t *testing.T) {
	w := &worker{frameQueue: make(chan drivers.RawFrame, 4)}
	w.frameQueue <- drivers.RawFrame{}
	w.frameQueue <- drivers.RawFrame{}
	assert.Equal(t, 2, w.queueDepth())
}

func TestManagerHeartbeatOnEmptyRegistry(t *testing.T) {
	m := NewManager(nil, nil, nil)
	hb := m.Heartbeat()
	assert.Equal(t, 0, hb.WorkerCount)
	assert.Equal(t, 0, hb.QueueDepthSum)
}

func TestManagerHeartbeatSumsWorkerQueueDepths(t *testing.T) {
	m := NewManager(nil, nil, nil)
	m.workers["conn-1"] = &worker{frameQueue: make(chan drivers.RawFrame, 4)}
	m.workers["conn-1"].frameQueue <- drivers.RawFrame{}
	m.workers["conn-2"] = &worker{frameQueue: make(chan drivers.RawFrame, 4)}
	m.workers["conn-2"].frameQueue <- drivers.RawFrame{}
	m.workers["conn-2"].frameQueue <- drivers.RawFrame{}

	hb := m.Heartbeat()
	assert.Equal(t, 2, hb.WorkerCount)
	assert.Equal(t, 3, hb.QueueDepthSum)
}

// fakeDriver implements drivers.Driver with no-op bodies, enough to satisfy
// vendorSessionKey's type assertion tests.
type fakeDriver struct{}

func (fakeDriver) Category() core.ConnectorCategory { return core.CategoryMQTTHub }
func (fakeDriver) Connect(ctx context.Context, cfg json.RawMessage, sessionKey string) (drivers.Conn, error) {
	return nil, nil
}
func (fakeDriver) Parse(connectorID string, cfg json.RawMessage, raw drivers.RawFrame) ([]core.StandardizedEvent, []string) {
	return nil, nil
}
func (fakeDriver) SetState(ctx context.Context, cfg json.RawMessage, externalDeviceID string, state drivers.ActionableState) error {
	return nil
}
func (fakeDriver) CreateEvent(ctx context.Context, cfg json.RawMessage, params drivers.CreateEventParams) error {
	return nil
}
func (fakeDriver) CreateBookmark(ctx context.Context, cfg json.RawMessage, cameraExternalID string, params drivers.CreateBookmarkParams) error {
	return nil
}
func (fakeDriver) FetchThumbnail(ctx context.Context, cfg json.RawMessage, cameraExternalID string, params drivers.ThumbnailParams) ([]byte, string, error) {
	return nil, "", nil
}

type fakeKeyedDriver struct {
	fakeDriver
	key   string
	found bool
}

func (f fakeKeyedDriver) SessionKey(cfg json.RawMessage) (string, bool) { return f.key, f.found }

func TestVendorSessionKeyFallsBackToConnectorIDWithoutSessionKeyer(t *testing.T) {
	got := vendorSessionKey(fakeDriver{}, nil, "conn-1")
	assert.Equal(t, "conn-1", got)
}

func TestVendorSessionKeyUsesDriverSessionKeyWhenFound(t *testing.T) {
	got := vendorSessionKey(fakeKeyedDriver{key: "hub:acct-1", found: true}, nil, "conn-1")
	assert.Equal(t, "hub:acct-1", got)
}

func TestVendorSessionKeyFallsBackWhenDriverReportsNotFound(t *testing.T) {
	got := vendorSessionKey(fakeKeyedDriver{key: "", found: false}, nil, "conn-1")
	assert.Equal(t, "conn-1", got)
}
