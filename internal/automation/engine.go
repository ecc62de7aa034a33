// internal/automation/engine.go
package automation

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fusion-sh/fusion/internal/core"
	"github.com/fusion-sh/fusion/internal/gateway"
	"github.com/fusion-sh/fusion/internal/logging"
	"github.com/fusion-sh/fusion/internal/store"
)

// maxConcurrentExecutions bounds in-flight automation executions per
// organization (§5 backpressure: "recommended 16").
const maxConcurrentExecutions = 16

// GatewayFactory builds the organization-scoped gateway an EngineContext
// uses for all its reads/writes.
type GatewayFactory func(organizationID string) *gateway.Gateway

// Manager owns one EngineContext per organization, created lazily and
// cached — mirroring the teacher's per-connector worker registry pattern
// (guarded map, built on first use).
type Manager struct {
	gatewayFor  GatewayFactory
	automations *store.AutomationRepo
	cache       *ConfigCache
	pushClient  *PushClient
	httpClient  *http.Client

	mu       sync.Mutex
	contexts map[string]*EngineContext
}

func NewManager(gatewayFor GatewayFactory, automations *store.AutomationRepo, cache *ConfigCache, push *PushClient, httpClient *http.Client) *Manager {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultActionTimeout}
	}
	return &Manager{
		gatewayFor:  gatewayFor,
		automations: automations,
		cache:       cache,
		pushClient:  push,
		httpClient:  httpClient,
		contexts:    make(map[string]*EngineContext),
	}
}

func (m *Manager) contextFor(organizationID string) *EngineContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ec, ok := m.contexts[organizationID]; ok {
		return ec
	}
	ec := newEngineContext(organizationID, m.gatewayFor(organizationID), m.cache, m.pushClient, m.httpClient)
	m.contexts[organizationID] = ec
	return ec
}

// Dispatch is fire-and-forget from the Event Pipeline's perspective: it
// returns as soon as eligible automations have been handed to the
// organization's bounded worker pool (§4.4 step 4, §4.5.6).
func (m *Manager) Dispatch(ctx context.Context, evt core.StandardizedEvent) {
	m.contextFor(evt.OrganizationID).dispatch(ctx, evt)
}

// TickScheduled evaluates every enabled scheduled automation across every
// organization, invoked by a periodic daemon (§4.5.3).
func (m *Manager) TickScheduled(ctx context.Context, now time.Time) {
	log := logging.For("automation.scheduler")

	rows, err := m.automations.FindEnabledScheduled(ctx)
	if err != nil {
		log.WithError(err).Error("list enabled scheduled automations")
		return
	}
	for _, row := range rows {
		m.contextFor(row.OrganizationID).tickOne(ctx, row, now)
	}
}

// EngineContext is the per-organization evaluation context (§4.5.1): the
// tenant-scoped gateway, an org-tagged logger, and the outbound action
// clients. Execution concurrency is capped by sem.
type EngineContext struct {
	organizationID string
	gateway        *gateway.Gateway
	cache          *ConfigCache
	pushClient     *PushClient
	httpClient     *http.Client
	log            *logrus.Entry
	sem            chan struct{}
}

func newEngineContext(organizationID string, gw *gateway.Gateway, cache *ConfigCache, push *PushClient, httpClient *http.Client) *EngineContext {
	return &EngineContext{
		organizationID: organizationID,
		gateway:        gw,
		cache:          cache,
		pushClient:     push,
		httpClient:     httpClient,
		log:            logging.ForOrg("automation.engine", organizationID),
		sem:            make(chan struct{}, maxConcurrentExecutions),
	}
}

func (e *EngineContext) dispatch(ctx context.Context, evt core.StandardizedEvent) {
	rows, err := e.gateway.Automations().FindEnabled(ctx)
	if err != nil {
		e.log.WithError(err).Warn("list enabled automations")
		return
	}

	for _, row := range rows {
		row := row
		select {
		case e.sem <- struct{}{}:
			go func() {
				defer func() { <-e.sem }()
				e.runForEvent(ctx, row, evt)
			}()
		default:
			e.log.WithField("automationId", row.ID).Warn("execution cap reached, dispatch rejected")
		}
	}
}

func (e *EngineContext) tickOne(ctx context.Context, row store.Automation, now time.Time) {
	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	default:
		e.log.WithField("automationId", row.ID).Warn("execution cap reached, scheduled tick skipped")
		return
	}

	cfg, err := e.cache.Get(ctx, row)
	if err != nil {
		e.log.WithField("automationId", row.ID).WithError(err).Warn("invalid automation config, skipping")
		return
	}
	if cfg.Trigger.Kind != TriggerScheduled {
		return
	}
	if !matchesScheduleWindow(cfg.Trigger, row.LastFiredAt, now) {
		return
	}
	e.executeScheduled(ctx, row, cfg, now)
}

// matchesScheduleWindow fires at most once per matching minute window,
// tracked via lastFiredAt (§4.5.3).
func matchesScheduleWindow(t Trigger, lastFiredAt *time.Time, now time.Time) bool {
	zone := t.TimeZone
	if zone == "" {
		zone = "UTC"
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return false
	}
	local := now.In(loc)

	daySet := map[int]bool{}
	for _, d := range t.DaysOfWeek {
		daySet[d] = true
	}
	if len(daySet) > 0 && !daySet[int(local.Weekday())] {
		return false
	}

	hour, minute, ok := parseHHMM(t.TimeLocal)
	if !ok || local.Hour() != hour || local.Minute() != minute {
		return false
	}
	if lastFiredAt != nil {
		lf := lastFiredAt.In(loc)
		if lf.Hour() == hour && lf.Minute() == minute && sameDay(lf, local) {
			return false
		}
	}
	return true
}

func parseHHMM(s string) (hour, minute int, ok bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, false
	}
	return t.Hour(), t.Minute(), true
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// runForEvent implements §4.5.6 steps 1-6 for one automation against one
// triggering event.
func (e *EngineContext) runForEvent(ctx context.Context, row store.Automation, evt core.StandardizedEvent) {
	cfg, err := e.cache.Get(ctx, row)
	if err != nil {
		e.log.WithField("automationId", row.ID).WithError(err).Warn("invalid automation config, skipping")
		return
	}
	if cfg.Trigger.Kind != TriggerEvent {
		return
	}

	device, facts := e.buildEventFacts(ctx, evt)
	matched, err := Evaluate(cfg.Trigger.Conditions, facts)
	if err != nil {
		e.log.WithField("automationId", row.ID).WithError(err).Warn("malformed rule tree, skipping")
		return
	}
	if !matched {
		return
	}

	e.execute(ctx, row, cfg, &evt, device, map[string]any{"event": evt})
}

func (e *EngineContext) executeScheduled(ctx context.Context, row store.Automation, cfg Config, now time.Time) {
	e.execute(ctx, row, cfg, nil, nil, map[string]any{"scheduledAt": now})
	if err := e.gateway.Automations().SetLastFiredAt(ctx, row.ID, now); err != nil {
		e.log.WithField("automationId", row.ID).WithError(err).Warn("persist lastFiredAt")
	}
}

func (e *EngineContext) buildEventFacts(ctx context.Context, evt core.StandardizedEvent) (*core.Device, Facts) {
	facts := Facts{
		"event.category": string(evt.Category),
		"event.type":     string(evt.Type),
		"connector.id":   evt.ConnectorID,
	}
	if evt.Subtype != "" {
		facts["event.subtype"] = evt.Subtype
	}
	if evt.Payload.DisplayState != "" {
		facts["event.displayState"] = string(evt.Payload.DisplayState)
	}
	if evt.Payload.RawStateValue != "" {
		facts["event.originalEventType"] = evt.Payload.RawStateValue
	}
	if evt.Payload.ButtonNumber != nil {
		facts["event.buttonNumber"] = *evt.Payload.ButtonNumber
	}
	if evt.Payload.PressType != "" {
		facts["event.buttonPressType"] = evt.Payload.PressType
	}

	device, err := e.gateway.Devices().FindByExternalID(ctx, evt.ConnectorID, evt.DeviceExternalID)
	if err != nil {
		return nil, facts
	}
	facts["device.id"] = device.ID
	facts["device.externalId"] = device.ExternalID
	facts["device.type"] = string(device.Type)
	if device.Subtype != "" {
		facts["device.subtype"] = device.Subtype
	}
	return &device, facts
}

// execute performs steps 3-6 of §4.5.6: create the execution record,
// resolve the action context once, run actions sequentially, and complete
// the execution with aggregated accounting.
func (e *EngineContext) execute(ctx context.Context, row store.Automation, cfg Config, evt *core.StandardizedEvent, device *core.Device, triggerContext map[string]any) {
	start := time.Now()
	execID := uuid.NewString()

	triggerJSON, err := json.Marshal(triggerContext)
	if err != nil {
		triggerJSON = []byte("{}")
	}
	var triggerEventID *string
	if evt != nil {
		id := evt.EventID
		triggerEventID = &id
	}

	exec := store.Execution{
		ID:               execID,
		AutomationID:     row.ID,
		TriggerTimestamp: start,
		TriggerEventID:   triggerEventID,
		TriggerContext:   triggerJSON,
		TotalActions:     len(cfg.Actions),
	}
	if err := e.gateway.Executions().Insert(ctx, exec); err != nil {
		e.log.WithField("automationId", row.ID).WithError(err).Warn("create execution record")
		return
	}

	ac := e.buildActionContext(ctx, evt, device)

	successful, failed := 0, 0
	for i, rec := range cfg.Actions {
		actionID := uuid.NewString()
		actionStart := time.Now()
		ae := store.ActionExecution{
			ID:           actionID,
			ExecutionID:  execID,
			ActionIndex:  i,
			ActionType:   string(rec.Type),
			ActionParams: rec.Params,
			StartedAt:    actionStart,
		}
		if err := e.gateway.Executions().InsertAction(ctx, ae); err != nil {
			e.log.WithField("automationId", row.ID).WithError(err).Warn("create action execution record")
			continue
		}

		actionErr := runAction(ctx, ac, rec)
		completedAt := time.Now()
		durationMs := completedAt.Sub(actionStart).Milliseconds()

		status := "success"
		var errMsg *string
		if actionErr != nil {
			status = "failure"
			msg := actionErr.Error()
			errMsg = &msg
			failed++
		} else {
			successful++
		}
		if err := e.gateway.Executions().CompleteAction(ctx, actionID, status, completedAt, durationMs, errMsg, 0); err != nil {
			e.log.WithField("automationId", row.ID).WithError(err).Warn("complete action execution record")
		}
	}

	status := "success"
	switch {
	case successful == 0 && failed > 0:
		status = "failure"
	case failed > 0:
		status = "partial_failure"
	}
	durationMs := time.Since(start).Milliseconds()
	if err := e.gateway.Executions().Complete(ctx, execID, status, successful, failed, durationMs); err != nil {
		e.log.WithField("automationId", row.ID).WithError(err).Warn("complete execution record")
	}
}

func (e *EngineContext) buildActionContext(ctx context.Context, evt *core.StandardizedEvent, device *core.Device) ActionContext {
	ac := ActionContext{
		Gateway:    e.gateway,
		Device:     device,
		HTTPClient: e.httpClient,
		PushClient: e.pushClient,
	}
	if evt != nil {
		ac.Event = *evt
	}
	if device != nil {
		if conn, err := e.gateway.Connectors().GetByID(ctx, device.ConnectorID); err == nil {
			ac.Connector = &conn
		}
		if refs, err := e.gateway.Associations().ListCamerasForDevice(ctx, device.ID); err == nil {
			ac.CameraRefs = refs
		}
		if area, found, err := e.gateway.Devices().FindArea(ctx, device.ID); err == nil && found {
			ac.Area = &area
			if area.LocationID != nil {
				if loc, err := e.gateway.Locations().GetByID(ctx, *area.LocationID); err == nil {
					ac.Location = &loc
					if loc.ActiveArmingScheduleID != nil {
						if sch, err := e.gateway.Schedules().GetByID(ctx, *loc.ActiveArmingScheduleID); err == nil {
							ac.Schedule = &sch
						}
					}
				}
			}
		}
	}
	ac.Template = BuildTemplateContext(ac.Event, device, ac.Area, ac.Location, ac.Connector, ac.Schedule)
	return ac
}
