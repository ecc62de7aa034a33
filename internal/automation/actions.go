// internal/automation/actions.go
package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fusion-sh/fusion/internal/areas"
	"github.com/fusion-sh/fusion/internal/core"
	"github.com/fusion-sh/fusion/internal/drivers"
	"github.com/fusion-sh/fusion/internal/gateway"
)

// DefaultActionTimeout bounds a single action's vendor/HTTP call (§5).
const DefaultActionTimeout = 30 * time.Second

const defaultBookmarkDurationMs = 5000

// ActionContext is everything an action executor needs: the resolved
// entities behind the triggering event, and the outbound clients. Building
// one resolves those entities once per execution (§4.5.6 step 4);
// executing actions does not re-resolve them.
type ActionContext struct {
	Gateway     *gateway.Gateway
	Event       core.StandardizedEvent
	Device      *core.Device
	Area        *core.Area
	Location    *core.Location
	Connector   *core.Connector
	Schedule    *core.ArmingSchedule
	CameraRefs  []core.CameraAssociation
	Template    TemplateContext
	HTTPClient  *http.Client
	PushClient  *PushClient
}

// headerTemplate is one entry of sendHttpRequest's headers list.
type headerTemplate struct {
	KeyTemplate   string `json:"keyTemplate"`
	ValueTemplate string `json:"valueTemplate"`
}

func runAction(ctx context.Context, ac ActionContext, rec ActionRecord) error {
	actionCtx, cancel := context.WithTimeout(ctx, DefaultActionTimeout)
	defer cancel()

	switch rec.Type {
	case ActionCreateEvent:
		return runCreateEvent(actionCtx, ac, rec.Params)
	case ActionCreateBookmark:
		return runCreateBookmark(actionCtx, ac, rec.Params)
	case ActionSendHTTPRequest:
		return runSendHTTPRequest(actionCtx, ac, rec.Params)
	case ActionSetDeviceState:
		return runSetDeviceState(actionCtx, ac, rec.Params)
	case ActionSendPushNotification:
		return runSendPushNotification(actionCtx, ac, rec.Params)
	case ActionArmArea:
		return runArmArea(actionCtx, ac, rec.Params)
	case ActionDisarmArea:
		return runDisarmArea(actionCtx, ac, rec.Params)
	default:
		return fmt.Errorf("automation: unknown action type %q", rec.Type)
	}
}

func driverAndConfig(ctx context.Context, ac ActionContext, connectorID string) (drivers.Driver, *core.Connector, error) {
	conn, err := ac.Gateway.Connectors().GetByID(ctx, connectorID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve target connector %s: %w", connectorID, err)
	}
	drv, err := drivers.GetDriver(conn.Category)
	if err != nil {
		return nil, nil, err
	}
	return drv, &conn, nil
}

// cameraRefsFor resolves the video camera external IDs associated with the
// triggering device, for createEvent/createBookmark against a video-VMS
// target (§4.5.5).
func cameraRefsFor(ac ActionContext, targetConnectorID string) []string {
	var refs []string
	for _, assoc := range ac.CameraRefs {
		if assoc.CameraConnectorID == targetConnectorID {
			refs = append(refs, assoc.CameraExternalID)
		}
	}
	return refs
}

type createEventRequest struct {
	TargetConnectorID   string `json:"targetConnectorId"`
	SourceTemplate      string `json:"sourceTemplate"`
	CaptionTemplate     string `json:"captionTemplate"`
	DescriptionTemplate string `json:"descriptionTemplate"`
}

// buildCreateEventParams stamps the vendor event with the triggering
// event's own timestamp (S5), not the time the action happened to run.
func buildCreateEventParams(ac ActionContext, p createEventRequest) drivers.CreateEventParams {
	return drivers.CreateEventParams{
		Source:      Resolve(p.SourceTemplate, ac.Template),
		Caption:     Resolve(p.CaptionTemplate, ac.Template),
		Description: Resolve(p.DescriptionTemplate, ac.Template),
		Timestamp:   ac.Event.Timestamp,
		CameraRefs:  cameraRefsFor(ac, p.TargetConnectorID),
	}
}

func runCreateEvent(ctx context.Context, ac ActionContext, raw json.RawMessage) error {
	var p createEventRequest
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("createEvent: decode params: %w", err)
	}
	drv, _, err := driverAndConfig(ctx, ac, p.TargetConnectorID)
	if err != nil {
		return fmt.Errorf("createEvent: %w", err)
	}
	conn, err := ac.Gateway.Connectors().GetByID(ctx, p.TargetConnectorID)
	if err != nil {
		return fmt.Errorf("createEvent: %w", err)
	}
	return drv.CreateEvent(ctx, conn.Cfg, buildCreateEventParams(ac, p))
}

type createBookmarkRequest struct {
	TargetConnectorID   string `json:"targetConnectorId"`
	NameTemplate        string `json:"nameTemplate"`
	DescriptionTemplate string `json:"descriptionTemplate"`
	DurationMsTemplate  string `json:"durationMsTemplate"`
	TagsTemplate        string `json:"tagsTemplate"`
}

// buildCreateBookmarkParams stamps the bookmark with the triggering event's
// own timestamp (S5: "each with startTimeMs == event.timestamp"), not the
// time the action happened to run.
func buildCreateBookmarkParams(ac ActionContext, p createBookmarkRequest) drivers.CreateBookmarkParams {
	durationMs := defaultBookmarkDurationMs
	if resolved := Resolve(p.DurationMsTemplate, ac.Template); resolved != "" {
		if n, err := strconv.Atoi(resolved); err == nil && n > 0 {
			durationMs = n
		}
	}

	var tags []string
	if tagsResolved := Resolve(p.TagsTemplate, ac.Template); tagsResolved != "" {
		for _, t := range strings.Split(tagsResolved, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}

	return drivers.CreateBookmarkParams{
		Name:        Resolve(p.NameTemplate, ac.Template),
		Description: Resolve(p.DescriptionTemplate, ac.Template),
		StartTimeMs: ac.Event.Timestamp.UnixMilli(),
		DurationMs:  durationMs,
		Tags:        tags,
	}
}

func runCreateBookmark(ctx context.Context, ac ActionContext, raw json.RawMessage) error {
	var p createBookmarkRequest
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("createBookmark: decode params: %w", err)
	}

	refs := cameraRefsFor(ac, p.TargetConnectorID)
	if len(refs) == 0 {
		return fmt.Errorf("createBookmark: no camera association for device, skipping")
	}

	drv, conn, err := driverAndConfig(ctx, ac, p.TargetConnectorID)
	if err != nil {
		return fmt.Errorf("createBookmark: %w", err)
	}

	params := buildCreateBookmarkParams(ac, p)

	var lastErr error
	for _, camID := range refs {
		if err := drv.CreateBookmark(ctx, conn.Cfg, camID, params); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func runSendHTTPRequest(ctx context.Context, ac ActionContext, raw json.RawMessage) error {
	var p struct {
		URLTemplate  string           `json:"urlTemplate"`
		Method       string           `json:"method"`
		Headers      []headerTemplate `json:"headers"`
		BodyTemplate string           `json:"bodyTemplate"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("sendHttpRequest: decode params: %w", err)
	}

	method := strings.ToUpper(p.Method)
	if method == "" {
		method = http.MethodGet
	}
	url := Resolve(p.URLTemplate, ac.Template)
	var body io.Reader
	if p.BodyTemplate != "" {
		body = bytes.NewBufferString(Resolve(p.BodyTemplate, ac.Template))
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("sendHttpRequest: build request: %w", err)
	}
	for _, h := range p.Headers {
		req.Header.Set(Resolve(h.KeyTemplate, ac.Template), Resolve(h.ValueTemplate, ac.Template))
	}

	client := ac.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("sendHttpRequest: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendHttpRequest: upstream returned %d", resp.StatusCode)
	}
	return nil
}

func runSetDeviceState(ctx context.Context, ac ActionContext, raw json.RawMessage) error {
	var p struct {
		TargetDeviceInternalID string                  `json:"targetDeviceInternalId"`
		TargetState            drivers.ActionableState `json:"targetState"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("setDeviceState: decode params: %w", err)
	}
	device, err := ac.Gateway.Devices().GetByID(ctx, p.TargetDeviceInternalID)
	if err != nil {
		return fmt.Errorf("setDeviceState: resolve device: %w", err)
	}
	conn, err := ac.Gateway.Connectors().GetByID(ctx, device.ConnectorID)
	if err != nil {
		return fmt.Errorf("setDeviceState: resolve connector: %w", err)
	}
	drv, err := drivers.GetDriver(conn.Category)
	if err != nil {
		return fmt.Errorf("setDeviceState: %w", err)
	}
	return drv.SetState(ctx, conn.Cfg, device.ExternalID, p.TargetState)
}

func runSendPushNotification(ctx context.Context, ac ActionContext, raw json.RawMessage) error {
	var p struct {
		TitleTemplate         string `json:"titleTemplate"`
		MessageTemplate       string `json:"messageTemplate"`
		TargetUserKeyTemplate string `json:"targetUserKeyTemplate"`
		Priority              *int   `json:"priority"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("sendPushNotification: decode params: %w", err)
	}
	if ac.PushClient == nil {
		return fmt.Errorf("sendPushNotification: no push client configured")
	}
	return ac.PushClient.Send(ctx, PushMessage{
		Title:      Resolve(p.TitleTemplate, ac.Template),
		Message:    Resolve(p.MessageTemplate, ac.Template),
		TargetUser: Resolve(p.TargetUserKeyTemplate, ac.Template),
		Priority:   p.Priority,
	})
}

// areaScoping is shared by armArea/disarmArea.
type areaScoping struct {
	Scoping       string   `json:"scoping"`
	TargetAreaIDs []string `json:"targetAreaIds"`
	ArmMode       string   `json:"armMode"`
}

func resolveScopedAreas(ctx context.Context, ac ActionContext, s areaScoping) ([]string, error) {
	if s.Scoping == "SPECIFIC_AREAS" {
		return s.TargetAreaIDs, nil
	}
	var locationID string
	if ac.Location != nil {
		locationID = ac.Location.ID
	}
	areaList, err := ac.Gateway.Areas().ListByLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(areaList))
	for _, a := range areaList {
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func runArmArea(ctx context.Context, ac ActionContext, raw json.RawMessage) error {
	var s areaScoping
	if err := json.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("armArea: decode params: %w", err)
	}
	ids, err := resolveScopedAreas(ctx, ac, s)
	if err != nil {
		return fmt.Errorf("armArea: %w", err)
	}
	mode := core.ArmedState(s.ArmMode)
	if mode != core.ArmedStateArmedAway && mode != core.ArmedStateArmedStay {
		return fmt.Errorf("armArea: invalid armMode %q", s.ArmMode)
	}
	var lastErr error
	for _, id := range ids {
		if err := areas.Arm(ctx, ac.Gateway, id, mode, areas.ReasonAutomationArm); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func runDisarmArea(ctx context.Context, ac ActionContext, raw json.RawMessage) error {
	var s areaScoping
	if err := json.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("disarmArea: decode params: %w", err)
	}
	ids, err := resolveScopedAreas(ctx, ac, s)
	if err != nil {
		return fmt.Errorf("disarmArea: %w", err)
	}
	var lastErr error
	for _, id := range ids {
		if err := areas.Disarm(ctx, ac.Gateway, id, areas.ReasonAutomationDisarm); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
