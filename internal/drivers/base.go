// internal/drivers/base.go
package drivers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fusion-sh/fusion/internal/core"
)

// configValidate checks the typed connector config structs each driver
// unmarshals its cfg blob into before dialing out.
var configValidate = validator.New()

// ConnectionState mirrors the session states the connector manager (C3)
// drives a worker through.
type ConnectionState string

const (
	ConnectionStateDisabled     ConnectionState = "Disabled"
	ConnectionStateConnecting   ConnectionState = "Connecting"
	ConnectionStateConnected    ConnectionState = "Connected"
	ConnectionStateReconnecting ConnectionState = "Reconnecting"
	ConnectionStateFailed       ConnectionState = "Failed"
)

// StatusUpdate is how a transport reports connectivity changes upward to the
// session worker that owns it.
type StatusUpdate struct {
	State  ConnectionState
	Reason string
}

// RawFrame is an unparsed vendor payload, timestamped at arrival so that the
// parser can fall back to it when the frame carries no usable timestamp.
type RawFrame struct {
	Payload    []byte
	ReceivedAt time.Time
}

// Conn is a live upstream session. Frames preserve arrival order; Closed
// fires exactly once, with nil for a clean shutdown and non-nil for a
// transport error that should drive the owning worker to Reconnecting.
type Conn interface {
	Frames() <-chan RawFrame
	Closed() <-chan error
	Close()
}

// Transport opens a connector's live upstream session. Implementations
// enforce their own connect/subscribe timeouts; the caller additionally
// bounds the call with a context deadline (connect 15s + subscribe 10s, per
// the session manager's timeout budget).
type Transport interface {
	Connect(ctx context.Context, cfg json.RawMessage, sessionKey string) (Conn, error)
}

// Parser turns one raw vendor frame into zero or more canonical events. It
// must be deterministic and allocation-only: no I/O, no mutation of shared
// state. Unknown frame shapes return zero events and zero or more warning
// strings, never an error.
type Parser interface {
	Parse(connectorID string, cfg json.RawMessage, raw RawFrame) ([]core.StandardizedEvent, []string)
}

// ActionableState is the closed vocabulary of states an automation (or a
// user) may command a device into.
type ActionableState string

const (
	ActionableStateOn       ActionableState = "ON"
	ActionableStateOff      ActionableState = "OFF"
	ActionableStateLocked   ActionableState = "LOCKED"
	ActionableStateUnlocked ActionableState = "UNLOCKED"
)

// CreateEventParams is the resolved request for an outbound createEvent
// command against a vendor endpoint.
type CreateEventParams struct {
	Source      string
	Caption     string
	Description string
	Timestamp   time.Time
	CameraRefs  []string
}

// CreateBookmarkParams is the resolved request for an outbound
// createBookmark command against a video-VMS connector.
type CreateBookmarkParams struct {
	Name        string
	Description string
	StartTimeMs int64
	DurationMs  int
	Tags        []string
}

// ThumbnailParams parameterizes a best-shot/thumbnail fetch.
type ThumbnailParams struct {
	Size string
	AtMs *int64
}

// Commander is the outbound command surface a connector's vendor exposes.
// Each method takes a snapshot of the connector's config and must
// distinguish transient failures (retryable) from terminal ones (ErrTerminal
// wrapped) so callers can classify per §7.
type Commander interface {
	SetState(ctx context.Context, cfg json.RawMessage, externalDeviceID string, state ActionableState) error
	CreateEvent(ctx context.Context, cfg json.RawMessage, params CreateEventParams) error
	CreateBookmark(ctx context.Context, cfg json.RawMessage, cameraExternalID string, params CreateBookmarkParams) error
	FetchThumbnail(ctx context.Context, cfg json.RawMessage, cameraExternalID string, params ThumbnailParams) ([]byte, string, error)
}

// Driver is the full per-category behavior: live transport, pure parser,
// outbound commands. New vendors are added by implementing Driver and
// registering it under a ConnectorCategory — never by ad-hoc dispatch.
type Driver interface {
	Category() core.ConnectorCategory
	Transport
	Parser
	Commander
}

type DriverFactory func() Driver

// SessionKeyer is implemented by drivers whose live upstream session is
// identified by something coarser than the connector row itself — e.g. a
// cloud hub account that can be referenced by more than one connector record
// across its lifetime. Drivers that don't implement it key purely by
// connector ID, which is always already unique.
type SessionKeyer interface {
	SessionKey(cfg json.RawMessage) (string, bool)
}

// registry: category -> factory. Guarded implicitly: writes only happen
// from init(), reads happen after program init completes, so no mutex is
// needed (mirrors the teacher's driver registry, which made the same
// assumption for its manufacturer:model keys).
var registry = map[core.ConnectorCategory]DriverFactory{}

// RegisterDriver is called from each vendor driver's init().
func RegisterDriver(category core.ConnectorCategory, f DriverFactory) {
	registry[category] = f
}

// GetDriver resolves the Driver registered for a connector category.
func GetDriver(category core.ConnectorCategory) (Driver, error) {
	f, ok := registry[category]
	if !ok {
		return nil, ErrDriverNotFound
	}
	return f(), nil
}
