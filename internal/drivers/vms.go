// internal/drivers/vms.go
package drivers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fusion-sh/fusion/internal/core"
)

func init() {
	RegisterDriver(core.CategoryVideoVMS, func() Driver { return &vmsDriver{} })
}

// VMSConfig is the typed shape of a video-vms connector's cfg blob.
type VMSConfig struct {
	WebSocketURL string         `json:"webSocketUrl" validate:"required,url"`
	APIBaseURL   string         `json:"apiBaseUrl" validate:"required,url"`
	Credentials  VMSCredentials `json:"credentials"`
}

type VMSCredentials struct {
	APIKey         string    `json:"apiKey"`
	TokenExpiresAt time.Time `json:"tokenExpiresAt,omitempty"`
}

type vmsFrame struct {
	CameraID      string  `json:"cameraId"`
	TimestampMs   int64   `json:"timestamp"`
	EventType     string  `json:"eventType"`
	ObjectTrackID string  `json:"objectTrackId,omitempty"`
	Confidence    *float64 `json:"confidence,omitempty"`
}

type vmsDriver struct{}

func (d *vmsDriver) Category() core.ConnectorCategory { return core.CategoryVideoVMS }

func (d *vmsDriver) Parse(connectorID string, cfg json.RawMessage, raw RawFrame) ([]core.StandardizedEvent, []string) {
	var frame vmsFrame
	if err := json.Unmarshal(raw.Payload, &frame); err != nil {
		return nil, []string{fmt.Sprintf("malformed vms frame: %v", err)}
	}
	if frame.CameraID == "" {
		return nil, []string{"vms frame missing cameraId"}
	}
	ct, ok := vmsRawEventTypeTable[frame.EventType]
	if !ok {
		return nil, []string{fmt.Sprintf("unmapped vms event type %q", frame.EventType)}
	}

	ts := raw.ReceivedAt
	if frame.TimestampMs > 0 {
		ts = time.UnixMilli(frame.TimestampMs).UTC()
	}

	payload := core.EventPayload{Confidence: frame.Confidence}
	if frame.ObjectTrackID != "" {
		payload.BestShot = &core.BestShot{
			CameraExternalID: frame.CameraID,
			ObjectTrackID:    frame.ObjectTrackID,
		}
	}

	evt := core.StandardizedEvent{
		EventID:          core.NewEventID(),
		ConnectorID:      connectorID,
		DeviceExternalID: frame.CameraID,
		Category:         ct.Category,
		Type:             ct.Type,
		Timestamp:        ts,
		Payload:          payload,
		DeviceInfo:       &core.DeviceInfo{Type: core.DeviceTypeCamera},
	}
	return []core.StandardizedEvent{evt}, nil
}

type vmsConn struct {
	ws     *websocket.Conn
	frames chan RawFrame
	closed chan error
	once   sync.Once
}

func (c *vmsConn) Frames() <-chan RawFrame { return c.frames }
func (c *vmsConn) Closed() <-chan error    { return c.closed }

func (c *vmsConn) Close() {
	c.once.Do(func() {
		_ = c.ws.Close()
		close(c.closed)
	})
}

func (c *vmsConn) closeWith(err error) {
	c.once.Do(func() {
		c.closed <- err
		close(c.closed)
	})
}

func (d *vmsDriver) Connect(ctx context.Context, cfg json.RawMessage, sessionKey string) (Conn, error) {
	var vc VMSConfig
	if err := json.Unmarshal(cfg, &vc); err != nil {
		return nil, fmt.Errorf("%w: invalid vms config: %v", ErrTerminal, err)
	}
	if err := configValidate.Struct(vc); err != nil {
		return nil, fmt.Errorf("%w: invalid vms config: %v", ErrTerminal, err)
	}

	u, err := url.Parse(vc.WebSocketURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid webSocketUrl: %v", ErrTerminal, err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+vc.Credentials.APIKey)

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	ws, resp, err := websocket.DefaultDialer.DialContext(dialCtx, u.String(), header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: vms websocket auth rejected: %v", ErrTerminal, err)
		}
		return nil, fmt.Errorf("%w: vms websocket dial: %v", ErrTransient, err)
	}

	conn := &vmsConn{
		ws:     ws,
		frames: make(chan RawFrame, 256),
		closed: make(chan error, 1),
	}

	go conn.readLoop()

	return conn, nil
}

func (c *vmsConn) readLoop() {
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			c.closeWith(fmt.Errorf("%w: %v", ErrTransient, err))
			return
		}
		select {
		case c.frames <- RawFrame{Payload: payload, ReceivedAt: time.Now().UTC()}:
		default:
			// bounded queue overflow: this newest frame is dropped; the drop is not counted.
		}
	}
}

func (d *vmsDriver) SetState(ctx context.Context, cfg json.RawMessage, externalDeviceID string, state ActionableState) error {
	var vc VMSConfig
	if err := json.Unmarshal(cfg, &vc); err != nil {
		return fmt.Errorf("%w: invalid vms config: %v", ErrTerminal, err)
	}
	url := fmt.Sprintf("%s/devices/%s/state", strings.TrimSuffix(vc.APIBaseURL, "/"), externalDeviceID)
	body, _ := json.Marshal(map[string]string{"state": string(state)})
	return d.doJSON(ctx, vc, http.MethodPost, url, body)
}

func (d *vmsDriver) CreateEvent(ctx context.Context, cfg json.RawMessage, params CreateEventParams) error {
	var vc VMSConfig
	if err := json.Unmarshal(cfg, &vc); err != nil {
		return fmt.Errorf("%w: invalid vms config: %v", ErrTerminal, err)
	}
	url := fmt.Sprintf("%s/events", strings.TrimSuffix(vc.APIBaseURL, "/"))
	body, _ := json.Marshal(map[string]any{
		"source":      params.Source,
		"caption":     params.Caption,
		"description": params.Description,
		"timestamp":   params.Timestamp.UTC().Format(time.RFC3339),
		"cameraRefs":  params.CameraRefs,
	})
	return d.doJSON(ctx, vc, http.MethodPost, url, body)
}

func (d *vmsDriver) CreateBookmark(ctx context.Context, cfg json.RawMessage, cameraExternalID string, params CreateBookmarkParams) error {
	var vc VMSConfig
	if err := json.Unmarshal(cfg, &vc); err != nil {
		return fmt.Errorf("%w: invalid vms config: %v", ErrTerminal, err)
	}
	url := fmt.Sprintf("%s/cameras/%s/bookmarks", strings.TrimSuffix(vc.APIBaseURL, "/"), cameraExternalID)
	body, _ := json.Marshal(map[string]any{
		"name":        params.Name,
		"description": params.Description,
		"startTimeMs": params.StartTimeMs,
		"durationMs":  params.DurationMs,
		"tags":        params.Tags,
	})
	return d.doJSON(ctx, vc, http.MethodPost, url, body)
}

func (d *vmsDriver) FetchThumbnail(ctx context.Context, cfg json.RawMessage, cameraExternalID string, params ThumbnailParams) ([]byte, string, error) {
	var vc VMSConfig
	if err := json.Unmarshal(cfg, &vc); err != nil {
		return nil, "", fmt.Errorf("%w: invalid vms config: %v", ErrTerminal, err)
	}
	q := url.Values{}
	if params.Size != "" {
		q.Set("size", params.Size)
	}
	if params.AtMs != nil {
		q.Set("atMs", fmt.Sprintf("%d", *params.AtMs))
	}
	reqURL := fmt.Sprintf("%s/cameras/%s/thumbnail?%s", strings.TrimSuffix(vc.APIBaseURL, "/"), cameraExternalID, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrTerminal, err)
	}
	req.Header.Set("Authorization", "Bearer "+vc.Credentials.APIKey)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, "", fmt.Errorf("%w: vms rejected credentials (status %d)", ErrTerminal, resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		return nil, "", fmt.Errorf("%w: vms status %d", ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return nil, "", fmt.Errorf("%w: vms status %d: %s", ErrTerminal, resp.StatusCode, string(b))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (d *vmsDriver) doJSON(ctx context.Context, vc VMSConfig, method, reqURL string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTerminal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+vc.Credentials.APIKey)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: vms rejected credentials (status %d)", ErrTerminal, resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: vms status %d", ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: vms status %d: %s", ErrTerminal, resp.StatusCode, string(b))
	}
	return nil
}
