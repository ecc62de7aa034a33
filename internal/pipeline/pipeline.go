// internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fusion-sh/fusion/internal/areas"
	"github.com/fusion-sh/fusion/internal/core"
	"github.com/fusion-sh/fusion/internal/drivers"
	"github.com/fusion-sh/fusion/internal/gateway"
	"github.com/fusion-sh/fusion/internal/logging"
	"github.com/fusion-sh/fusion/internal/storage"
)

// alarmDisplayStates is the closed subset of canonical display states that
// represent an active sensor condition rather than its "clear" reading —
// the configured trigger rule an armed area reacts to (§4.6 trigger
// transition).
var alarmDisplayStates = map[core.DisplayState]bool{
	core.DisplayStateOpen:              true,
	core.DisplayStateMotionDetected:    true,
	core.DisplayStateLeakDetected:      true,
	core.DisplayStateVibrationDetected: true,
}

// dedupWindow is the minimum redelivery dedup window from invariant 6.
const dedupWindow = 5 * time.Second

// AutomationDispatcher is the subset of automation.Manager the pipeline
// needs, kept narrow to avoid a dependency cycle (automation depends on
// gateway, which the pipeline also depends on directly).
type AutomationDispatcher interface {
	Dispatch(ctx context.Context, evt core.StandardizedEvent)
}

// subscriberQueueSize bounds each tenant subscriber's fan-out channel;
// a slow UI stream drops its own oldest events rather than blocking
// ingestion (§5 backpressure policy, applied per-subscriber here).
const subscriberQueueSize = 256

// deviceState is the volatile, non-persisted "current display state" cache
// entry for one device (§4.4 step 2).
type deviceState struct {
	DisplayState core.DisplayState
}

// Pipeline is C4: it persists parsed events, updates the runtime
// last-seen/display-state cache, fans out to tenant subscribers, and
// dispatches to the Automation Engine. Submit runs on the calling connector
// worker and waits for its store round trips; subscriber fan-out never
// blocks, and automation executions run on the engine's own goroutines.
type Pipeline struct {
	gatewayFor  func(organizationID string) *gateway.Gateway
	automations AutomationDispatcher
	images      storage.ImageStore // optional; nil disables best-shot persistence

	states sync.Map // deviceID -> *deviceState

	subMu       sync.Mutex
	subscribers map[string][]chan core.StandardizedEvent // organizationId -> channels
}

func New(gatewayFor func(organizationID string) *gateway.Gateway, automations AutomationDispatcher) *Pipeline {
	return &Pipeline{
		gatewayFor:  gatewayFor,
		automations: automations,
		subscribers: make(map[string][]chan core.StandardizedEvent),
	}
}

// WithImageStore attaches the best-shot thumbnail store. Passing nil leaves
// best-shot persistence disabled; Submit then forwards BestShot as-is.
func (p *Pipeline) WithImageStore(images storage.ImageStore) *Pipeline {
	p.images = images
	return p
}

// Subscribe registers a tenant-scoped channel for fan-out (e.g. a UI
// stream). The returned channel is closed by Unsubscribe, never by the
// pipeline dropping it for backpressure.
func (p *Pipeline) Subscribe(organizationID string) chan core.StandardizedEvent {
	ch := make(chan core.StandardizedEvent, subscriberQueueSize)
	p.subMu.Lock()
	defer p.subMu.Unlock()
	p.subscribers[organizationID] = append(p.subscribers[organizationID], ch)
	return ch
}

func (p *Pipeline) Unsubscribe(organizationID string, ch chan core.StandardizedEvent) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	subs := p.subscribers[organizationID]
	for i, existing := range subs {
		if existing == ch {
			p.subscribers[organizationID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Submit runs the four steps of §4.4 for one parsed event. It is safe to
// call from many connector workers concurrently.
func (p *Pipeline) Submit(ctx context.Context, evt core.StandardizedEvent) {
	log := logging.ForOrg("pipeline", evt.OrganizationID)
	gw := p.gatewayFor(evt.OrganizationID)

	// A redelivery carrying a freshly generated eventId is still a
	// duplicate if it matches a recent equivalent event; such an event is
	// dropped here, before persist, state update, fan-out and automation
	// dispatch (invariant 6).
	if _, dup, err := gw.Events().FindRecentEquivalent(ctx, evt.ConnectorID, evt.DeviceExternalID, evt.Type, evt.Timestamp, dedupWindow); err == nil && dup {
		return
	}

	// Best-shot thumbnails are fetched and stored before persist so the
	// event row that lands carries a retrievable URL, not a vendor handle.
	if p.images != nil && evt.Payload.BestShot != nil && evt.Payload.BestShot.URL == "" {
		p.resolveBestShot(ctx, gw, &evt)
	}

	// Step 1: persist, idempotent on eventId. Never blocks downstream steps.
	if _, err := gw.Events().Insert(ctx, evt); err != nil {
		log.WithError(err).WithField("eventId", evt.EventID).Warn("persist event failed")
	}

	// Step 2: last-seen + volatile display-state cache.
	p.updateDeviceState(ctx, gw, evt)

	// Step 3: fan out to tenant subscribers, non-blocking.
	p.fanOut(evt)

	// Step 4: dispatch to the automation engine, fire-and-forget.
	p.automations.Dispatch(ctx, evt)
}

// resolveBestShot fetches the vendor thumbnail for evt's BestShot and
// replaces it with a stored, org-retrievable URL. Any failure along the way
// is logged and leaves BestShot.URL empty; it never fails the submit.
func (p *Pipeline) resolveBestShot(ctx context.Context, gw *gateway.Gateway, evt *core.StandardizedEvent) {
	log := logging.ForOrg("pipeline", evt.OrganizationID).WithField("eventId", evt.EventID)
	bs := evt.Payload.BestShot

	connectorID, err := p.cameraConnectorFor(ctx, gw, evt, bs.CameraExternalID)
	if err != nil {
		log.WithError(err).Debug("no camera connector resolved for best-shot")
		return
	}

	connector, err := gw.Connectors().GetByID(ctx, connectorID)
	if err != nil {
		log.WithError(err).Warn("camera connector lookup failed for best-shot")
		return
	}

	drv, err := drivers.GetDriver(connector.Category)
	if err != nil {
		log.WithError(err).Warn("no driver for best-shot camera connector")
		return
	}

	data, contentType, err := drv.FetchThumbnail(ctx, connector.Cfg, bs.CameraExternalID, drivers.ThumbnailParams{})
	if err != nil {
		log.WithError(err).Warn("fetch best-shot thumbnail failed")
		return
	}

	key := fmt.Sprintf("%s/%s", bs.CameraExternalID, bs.ObjectTrackID)
	url, err := p.images.SaveSnapshot(ctx, key, data, contentType)
	if err != nil {
		log.WithError(err).Warn("store best-shot thumbnail failed")
		return
	}
	bs.URL = url
}

// cameraConnectorFor finds which connector owns cameraExternalID: the
// event's own connector when it is itself a video-vms connector, otherwise
// the camera association recorded for the reporting device.
func (p *Pipeline) cameraConnectorFor(ctx context.Context, gw *gateway.Gateway, evt *core.StandardizedEvent, cameraExternalID string) (string, error) {
	if connector, err := gw.Connectors().GetByID(ctx, evt.ConnectorID); err == nil && connector.Category == core.CategoryVideoVMS {
		return connector.ID, nil
	}

	device, err := gw.Devices().FindByExternalID(ctx, evt.ConnectorID, evt.DeviceExternalID)
	if err != nil {
		return "", err
	}
	assocs, err := gw.Associations().ListCamerasForDevice(ctx, device.ID)
	if err != nil {
		return "", err
	}
	for _, a := range assocs {
		if a.CameraExternalID == cameraExternalID {
			return a.CameraConnectorID, nil
		}
	}
	return "", fmt.Errorf("no camera association for device %s matching %s", device.ID, cameraExternalID)
}

func (p *Pipeline) updateDeviceState(ctx context.Context, gw *gateway.Gateway, evt core.StandardizedEvent) {
	device, err := gw.Devices().FindByExternalID(ctx, evt.ConnectorID, evt.DeviceExternalID)
	if err != nil {
		return
	}
	if err := gw.Devices().UpdateLastSeen(ctx, device.ID, evt.Timestamp); err != nil {
		logging.ForOrg("pipeline", evt.OrganizationID).WithError(err).
			WithField("deviceId", device.ID).Warn("update last-seen failed")
	}
	if evt.Payload.DisplayState != "" {
		p.states.Store(device.ID, &deviceState{DisplayState: evt.Payload.DisplayState})
	}
	p.checkAreaTrigger(ctx, gw, evt, device)
}

// checkAreaTrigger transitions the reporting device's owning area into
// TRIGGERED when the event reports an active alarm condition and the area
// is currently armed (§4.6 trigger transition). A device with no area, or
// an area that's disarmed or already triggered, is a silent no-op.
func (p *Pipeline) checkAreaTrigger(ctx context.Context, gw *gateway.Gateway, evt core.StandardizedEvent, device core.Device) {
	if !alarmDisplayStates[evt.Payload.DisplayState] {
		return
	}
	area, found, err := gw.Devices().FindArea(ctx, device.ID)
	if err != nil || !found {
		return
	}
	if area.ArmedState != core.ArmedStateArmedAway && area.ArmedState != core.ArmedStateArmedStay {
		return
	}
	if err := areas.Trigger(ctx, gw, area.ID); err != nil {
		logging.ForOrg("pipeline", evt.OrganizationID).WithError(err).
			WithField("areaId", area.ID).Warn("area trigger failed")
	}
}

// CurrentDisplayState returns the volatile, in-memory display state last
// observed for a device, or ("", false) if none has been recorded.
func (p *Pipeline) CurrentDisplayState(deviceID string) (core.DisplayState, bool) {
	v, ok := p.states.Load(deviceID)
	if !ok {
		return "", false
	}
	return v.(*deviceState).DisplayState, true
}

func (p *Pipeline) fanOut(evt core.StandardizedEvent) {
	p.subMu.Lock()
	subs := append([]chan core.StandardizedEvent(nil), p.subscribers[evt.OrganizationID]...)
	p.subMu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
			// Overflow drops the oldest by making room, then retrying once;
			// a still-full channel after that means the subscriber is gone
			// or stalled, so the event is dropped for this subscriber.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}
}
