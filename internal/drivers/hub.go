// internal/drivers/hub.go
package drivers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/fusion-sh/fusion/internal/core"
)

func init() {
	RegisterDriver(core.CategoryMQTTHub, func() Driver { return &hubDriver{} })
}

// HubConfig is the typed shape of a mqtt-hub connector's cfg blob. The
// Credentials substructure is the only part C1's refresher is allowed to
// mutate.
type HubConfig struct {
	BrokerURL   string         `json:"brokerUrl" validate:"required,url"`
	TopicRoot   string         `json:"topicRoot" validate:"required"`
	AccountID   string         `json:"accountId" validate:"required"`
	APIBaseURL  string         `json:"apiBaseUrl" validate:"required,url"`
	Credentials HubCredentials `json:"credentials"`
}

// HubCredentials is the OAuth-style rotating token substructure owned
// exclusively by the token refresher (C1).
type HubCredentials struct {
	AccessToken    string    `json:"accessToken"`
	RefreshToken   string    `json:"refreshToken"`
	TokenExpiresAt time.Time `json:"tokenExpiresAt"`
}

type hubFrameData struct {
	State          string `json:"state"`
	ButtonNumber   *int   `json:"buttonNumber"`
	PressType      string `json:"pressType"`
	BatteryPercent *int   `json:"batteryPercent"`
}

type hubFrame struct {
	Event    string       `json:"event"`
	TimeMs   int64        `json:"time"`
	MsgID    string       `json:"msgid"`
	DeviceID string       `json:"deviceId"`
	Data     hubFrameData `json:"data"`
}

type hubDriver struct{}

func (d *hubDriver) Category() core.ConnectorCategory { return core.CategoryMQTTHub }

// SessionKey identifies the vendor-side account a hub session belongs to,
// independent of which connector row references it: two connector records
// re-provisioned against the same cloud account must share one live MQTT
// session rather than both dialing the broker.
func (d *hubDriver) SessionKey(cfg json.RawMessage) (string, bool) {
	var hc HubConfig
	if err := json.Unmarshal(cfg, &hc); err != nil || hc.AccountID == "" {
		return "", false
	}
	return "hub:" + hc.AccountID, true
}

// Parse is pure: it never touches the network and never fails on an unknown
// shape — it reports a warning and zero events instead.
func (d *hubDriver) Parse(connectorID string, cfg json.RawMessage, raw RawFrame) ([]core.StandardizedEvent, []string) {
	var frame hubFrame
	if err := json.Unmarshal(raw.Payload, &frame); err != nil {
		return nil, []string{fmt.Sprintf("malformed hub frame: %v", err)}
	}
	if frame.DeviceID == "" {
		return nil, []string{"hub frame missing deviceId"}
	}
	ct, ok := hubRawTypeTable[frame.Event]
	if !ok {
		return nil, []string{fmt.Sprintf("unmapped hub event type %q", frame.Event)}
	}

	ts := raw.ReceivedAt
	if frame.TimeMs > 0 {
		ts = time.UnixMilli(frame.TimeMs).UTC()
	}

	payload := core.EventPayload{}
	if frame.Data.State != "" {
		payload.RawStateValue = frame.Data.State
		if ds, ok := hubRawStateTable[strings.ToLower(frame.Data.State)]; ok {
			payload.DisplayState = ds
		}
	}
	if frame.Data.ButtonNumber != nil {
		payload.ButtonNumber = frame.Data.ButtonNumber
		payload.PressType = frame.Data.PressType
	}
	if frame.Data.BatteryPercent != nil {
		payload.BatteryPercent = frame.Data.BatteryPercent
	}

	evt := core.StandardizedEvent{
		EventID:          core.NewEventID(),
		ConnectorID:      connectorID,
		DeviceExternalID: frame.DeviceID,
		Category:         ct.Category,
		Type:             ct.Type,
		Timestamp:        ts,
		Payload:          payload,
	}
	return []core.StandardizedEvent{evt}, nil
}

type hubConn struct {
	client mqtt.Client
	frames chan RawFrame
	closed chan error
	once   sync.Once
}

func (c *hubConn) Frames() <-chan RawFrame { return c.frames }
func (c *hubConn) Closed() <-chan error    { return c.closed }

func (c *hubConn) Close() {
	c.once.Do(func() {
		if c.client != nil && c.client.IsConnected() {
			c.client.Disconnect(250)
		}
		close(c.closed)
	})
}

func (c *hubConn) closeWith(err error) {
	c.once.Do(func() {
		c.closed <- err
		close(c.closed)
	})
}

// Connect opens the MQTT session and subscribes to the account's report
// topic. AutoReconnect is deliberately left off: the session manager (C3)
// owns reconnect/backoff, not the paho client.
func (d *hubDriver) Connect(ctx context.Context, cfg json.RawMessage, sessionKey string) (Conn, error) {
	var hc HubConfig
	if err := json.Unmarshal(cfg, &hc); err != nil {
		return nil, fmt.Errorf("%w: invalid hub config: %v", ErrTerminal, err)
	}
	if err := configValidate.Struct(hc); err != nil {
		return nil, fmt.Errorf("%w: invalid hub config: %v", ErrTerminal, err)
	}

	conn := &hubConn{
		frames: make(chan RawFrame, 256),
		closed: make(chan error, 1),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(hc.BrokerURL)
	opts.SetClientID("fusion-hub-" + sessionKey)
	opts.SetUsername(hc.Credentials.AccessToken)
	opts.SetPassword("")
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(15 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		conn.closeWith(fmt.Errorf("%w: %v", ErrTransient, err))
	})

	client := mqtt.NewClient(opts)
	conn.client = client

	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("%w: mqtt connect timeout", ErrTransient)
	}
	if err := token.Error(); err != nil {
		if isAuthRejection(err) {
			return nil, fmt.Errorf("%w: %v", ErrTerminal, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	topic := fmt.Sprintf("%s/%s/+/report", strings.TrimSuffix(hc.TopicRoot, "/"), hc.AccountID)
	subToken := client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		select {
		case conn.frames <- RawFrame{Payload: msg.Payload(), ReceivedAt: time.Now().UTC()}:
		default:
			// bounded queue overflow: this newest frame is dropped; the
			// drop is not counted.
		}
	})
	if !subToken.WaitTimeout(10 * time.Second) {
		client.Disconnect(0)
		return nil, fmt.Errorf("%w: subscribe timeout", ErrTransient)
	}
	if err := subToken.Error(); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("%w: subscribe error: %v", ErrTransient, err)
	}

	return conn, nil
}

func isAuthRejection(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "not authorized") ||
		strings.Contains(strings.ToLower(err.Error()), "bad user name or password")
}

func (d *hubDriver) SetState(ctx context.Context, cfg json.RawMessage, externalDeviceID string, state ActionableState) error {
	var hc HubConfig
	if err := json.Unmarshal(cfg, &hc); err != nil {
		return fmt.Errorf("%w: invalid hub config: %v", ErrTerminal, err)
	}
	url := fmt.Sprintf("%s/devices/%s/state", strings.TrimSuffix(hc.APIBaseURL, "/"), externalDeviceID)
	body, _ := json.Marshal(map[string]string{"state": string(state)})
	return d.doJSON(ctx, hc, http.MethodPost, url, body)
}

func (d *hubDriver) CreateEvent(ctx context.Context, cfg json.RawMessage, params CreateEventParams) error {
	var hc HubConfig
	if err := json.Unmarshal(cfg, &hc); err != nil {
		return fmt.Errorf("%w: invalid hub config: %v", ErrTerminal, err)
	}
	url := fmt.Sprintf("%s/accounts/%s/events", strings.TrimSuffix(hc.APIBaseURL, "/"), hc.AccountID)
	body, _ := json.Marshal(map[string]any{
		"source":      params.Source,
		"caption":     params.Caption,
		"description": params.Description,
		"timestamp":   params.Timestamp.UTC().Format(time.RFC3339),
	})
	return d.doJSON(ctx, hc, http.MethodPost, url, body)
}

// CreateBookmark and FetchThumbnail are video-VMS concepts; the cloud hub
// has no camera/timeline surface to target, so these are terminal
// "unsupported" errors rather than transient failures.
func (d *hubDriver) CreateBookmark(ctx context.Context, cfg json.RawMessage, cameraExternalID string, params CreateBookmarkParams) error {
	return fmt.Errorf("%w: mqtt-hub connectors do not support bookmarks", ErrTerminal)
}

func (d *hubDriver) FetchThumbnail(ctx context.Context, cfg json.RawMessage, cameraExternalID string, params ThumbnailParams) ([]byte, string, error) {
	return nil, "", fmt.Errorf("%w: mqtt-hub connectors do not support thumbnails", ErrTerminal)
}

func (d *hubDriver) doJSON(ctx context.Context, hc HubConfig, method, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTerminal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+hc.Credentials.AccessToken)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: hub rejected credentials (status %d)", ErrTerminal, resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: hub status %d", ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: hub status %d: %s", ErrTerminal, resp.StatusCode, string(b))
	}
	return nil
}
