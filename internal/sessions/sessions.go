// internal/sessions/sessions.go
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/fusion-sh/fusion/internal/core"
	"github.com/fusion-sh/fusion/internal/credentials"
	"github.com/fusion-sh/fusion/internal/drivers"
	"github.com/fusion-sh/fusion/internal/gateway"
	"github.com/fusion-sh/fusion/internal/logging"
)

// frameQueueSize bounds each worker's inbound frame queue (§5 backpressure:
// "recommended 1024 events per worker").
const frameQueueSize = 1024

const (
	baseBackoff = 5 * time.Second
	maxBackoff  = 60 * time.Second
)

// Submitter is the Event Pipeline's (C4) intake surface; kept narrow so
// sessions never needs to import the full pipeline package.
type Submitter interface {
	Submit(ctx context.Context, evt core.StandardizedEvent)
}

// Manager runs one worker per enabled connector and tears it down when the
// connector is disabled, mirroring the teacher's single mutex-guarded
// registry keyed by a session string.
type Manager struct {
	store      *credentials.Store
	gatewayFor func(organizationID string) *gateway.Gateway
	pipeline   Submitter
	proc       *process.Process // self-process handle for Heartbeat; nil if unavailable

	mu         sync.Mutex
	workers    map[string]*worker // connectorId -> worker
	sessionIdx map[string]string  // vendor session key -> connectorId
}

func NewManager(store *credentials.Store, gatewayFor func(organizationID string) *gateway.Gateway, pipeline Submitter) *Manager {
	var proc *process.Process
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		proc = p
	}
	return &Manager{
		store:      store,
		gatewayFor: gatewayFor,
		pipeline:   pipeline,
		proc:       proc,
		workers:    make(map[string]*worker),
		sessionIdx: make(map[string]string),
	}
}

// Heartbeat reports the registry's own size alongside the process's CPU and
// memory footprint, for a debug endpoint (§5 self-metrics).
type Heartbeat struct {
	WorkerCount          int     `json:"workerCount"`
	QueueDepthSum        int     `json:"queueDepthSum"`
	ProcessCPUPercent    float64 `json:"processCpuPercent"`
	ProcessMemoryRSS     uint64  `json:"processMemoryRssBytes"`
	ProcessMemoryPercent float32 `json:"processMemoryPercent"`
}

// Heartbeat snapshots the worker registry's depth and this process's own
// resource usage; cheap enough to poll from a debug endpoint on demand.
func (m *Manager) Heartbeat() Heartbeat {
	m.mu.Lock()
	workers := make([]*worker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.mu.Unlock()

	hb := Heartbeat{WorkerCount: len(workers)}
	for _, w := range workers {
		hb.QueueDepthSum += w.queueDepth()
	}

	if m.proc != nil {
		if cpu, err := m.proc.CPUPercent(); err == nil {
			hb.ProcessCPUPercent = cpu
		}
		if mem, err := m.proc.MemoryInfo(); err == nil && mem != nil {
			hb.ProcessMemoryRSS = mem.RSS
		}
		if memPct, err := m.proc.MemoryPercent(); err == nil {
			hb.ProcessMemoryPercent = memPct
		}
	}
	return hb
}

// worker owns one connector's live upstream session.
type worker struct {
	connectorID    string
	organizationID string
	sessionKey     string

	mu         sync.Mutex
	state      drivers.ConnectionState
	reason     string
	attempt    int
	cancel     context.CancelFunc
	doneCh     chan struct{}
	frameQueue chan drivers.RawFrame // set once drain starts; read by Heartbeat
}

// queueDepth reports how many frames are currently buffered waiting to be
// parsed, or 0 before the worker's drain loop has started.
func (w *worker) queueDepth() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.frameQueue == nil {
		return 0
	}
	return len(w.frameQueue)
}

func (w *worker) snapshot() (drivers.ConnectionState, string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state, w.reason
}

func (w *worker) setState(state drivers.ConnectionState, reason string) {
	w.mu.Lock()
	w.state = state
	w.reason = reason
	w.mu.Unlock()
}

// Status is the externally observable state of one connector's session.
type Status struct {
	ConnectorID string
	State       drivers.ConnectionState
	Reason      string
}

func (m *Manager) Status(connectorID string) (Status, bool) {
	m.mu.Lock()
	w, ok := m.workers[connectorID]
	m.mu.Unlock()
	if !ok {
		return Status{}, false
	}
	state, reason := w.snapshot()
	return Status{ConnectorID: connectorID, State: state, Reason: reason}, true
}

// Enable persists eventsEnabled=true and starts (or rebinds) the
// connector's worker, returning once Connected is reached or a definitive
// failure is observed (§4.3).
func (m *Manager) Enable(ctx context.Context, organizationID, connectorID string) error {
	gw := m.gatewayFor(organizationID)
	if err := setEventsEnabled(ctx, gw, connectorID, true); err != nil {
		return err
	}
	return m.startWorker(ctx, organizationID, connectorID)
}

// Disable persists eventsEnabled=false, signals the worker to close, and
// waits for it to drain.
func (m *Manager) Disable(ctx context.Context, organizationID, connectorID string) error {
	gw := m.gatewayFor(organizationID)
	if err := setEventsEnabled(ctx, gw, connectorID, false); err != nil {
		return err
	}
	m.stopWorker(connectorID)
	return nil
}

func setEventsEnabled(ctx context.Context, gw *gateway.Gateway, connectorID string, enabled bool) error {
	return gw.Connectors().SetEventsEnabled(ctx, connectorID, enabled)
}

// Reconnect forces the named connector's worker through a fresh connect
// attempt, resetting its backoff counter.
func (m *Manager) Reconnect(connectorID string) {
	m.mu.Lock()
	w, ok := m.workers[connectorID]
	m.mu.Unlock()
	if !ok {
		return
	}
	// Replace the worker with a fresh one, which starts with its backoff
	// counter at zero.
	m.stopWorker(connectorID)
	if err := m.startWorker(context.Background(), w.organizationID, connectorID); err != nil {
		logging.ForOrg("sessions", w.organizationID).WithError(err).
			WithField("connectorId", connectorID).Warn("reconnect connector session failed")
	}
}

// InitializeAll starts a worker for every enabled connector across every
// organization; idempotent, safe on startup.
func (m *Manager) InitializeAll(ctx context.Context, connectors []core.Connector) {
	for _, c := range connectors {
		if err := m.startWorker(ctx, c.OrganizationID, c.ID); err != nil {
			logging.ForOrg("sessions", c.OrganizationID).WithError(err).
				WithField("connectorId", c.ID).Warn("initialize connector session failed")
		}
	}
}

// ReconnectAll forces every running worker through a fresh connect
// attempt; idempotent, safe to call after a bulk config change.
func (m *Manager) ReconnectAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.workers))
	for id := range m.workers {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Reconnect(id)
	}
}

// vendorSessionKey resolves the identity a driver's live session is keyed
// by. Most drivers have no notion of an account shared across connector
// records, so their session key is just their own connector ID.
func vendorSessionKey(drv drivers.Driver, cfg json.RawMessage, connectorID string) string {
	if sk, ok := drv.(drivers.SessionKeyer); ok {
		if key, found := sk.SessionKey(cfg); found && key != "" {
			return key
		}
	}
	return connectorID
}

func (m *Manager) startWorker(ctx context.Context, organizationID, connectorID string) error {
	gw := m.gatewayFor(organizationID)
	conn, err := gw.Connectors().GetByID(ctx, connectorID)
	if err != nil {
		return fmt.Errorf("sessions: resolve connector %s: %w", connectorID, err)
	}

	drv, err := drivers.GetDriver(conn.Category)
	if err != nil {
		return fmt.Errorf("sessions: %w", err)
	}

	sessionKey := vendorSessionKey(drv, conn.Cfg, connectorID)

	m.mu.Lock()
	if existing, ok := m.workers[connectorID]; ok {
		m.mu.Unlock()
		state, _ := existing.snapshot()
		if state == drivers.ConnectionStateConnected || state == drivers.ConnectionStateConnecting {
			return nil
		}
		// A worker that is backing off or has failed is replaced by a
		// fresh one below.
		m.stopWorker(connectorID)
		m.mu.Lock()
	}

	// Another connector record already owns a live worker for this same
	// vendor session (e.g. re-provisioned against the same hub account);
	// rebind ownership to the new connector instead of dialing a second
	// session against the same upstream account.
	var rebindFrom *worker
	if prevConnectorID, ok := m.sessionIdx[sessionKey]; ok && prevConnectorID != connectorID {
		if prev, ok := m.workers[prevConnectorID]; ok {
			rebindFrom = prev
			delete(m.workers, prevConnectorID)
		}
	}

	w := &worker{
		connectorID:    connectorID,
		organizationID: organizationID,
		sessionKey:     sessionKey,
		state:          drivers.ConnectionStateConnecting,
		doneCh:         make(chan struct{}),
	}
	m.workers[connectorID] = w
	m.sessionIdx[sessionKey] = connectorID
	m.mu.Unlock()

	if rebindFrom != nil {
		logging.ForOrg("sessions", organizationID).
			WithField("sessionKey", sessionKey).
			WithField("previousConnectorId", rebindFrom.connectorID).
			WithField("connectorId", connectorID).
			Warn("rebinding live vendor session to new connector, previous owner still running")
		rebindFrom.setState(drivers.ConnectionStateDisabled, "rebound to another connector")
		if rebindFrom.cancel != nil {
			rebindFrom.cancel()
		}
		<-rebindFrom.doneCh
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	connected := make(chan error, 1)
	go m.runWorker(workerCtx, w, drv, connected)

	select {
	case err := <-connected:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) stopWorker(connectorID string) {
	m.mu.Lock()
	w, ok := m.workers[connectorID]
	if ok {
		delete(m.workers, connectorID)
		if w.sessionKey != "" && m.sessionIdx[w.sessionKey] == connectorID {
			delete(m.sessionIdx, w.sessionKey)
		}
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	w.setState(drivers.ConnectionStateDisabled, "")
	if w.cancel != nil {
		w.cancel()
	}
	<-w.doneCh
}

// runWorker drives one connector's full session lifecycle: connect,
// consume frames, reconnect with backoff on failure, until the context is
// cancelled (disable/shutdown).
func (m *Manager) runWorker(ctx context.Context, w *worker, drv drivers.Driver, connected chan<- error) {
	defer close(w.doneCh)

	reportedFirst := false

	for {
		if ctx.Err() != nil {
			return
		}

		cfg, err := m.store.RefreshIfNeeded(ctx, w.connectorID)
		if err != nil {
			w.setState(drivers.ConnectionStateFailed, err.Error())
			if !reportedFirst {
				connected <- err
				reportedFirst = true
			}
			if errors.Is(err, drivers.ErrTerminal) {
				return
			}
			if !m.sleepBackoff(ctx, w) {
				return
			}
			continue
		}

		connectCtx, cancelConnect := context.WithTimeout(ctx, 25*time.Second)
		conn, err := drv.Connect(connectCtx, cfg, w.connectorID)
		cancelConnect()
		if err != nil {
			w.setState(drivers.ConnectionStateReconnecting, err.Error())
			if !reportedFirst {
				connected <- err
				reportedFirst = true
			}
			if errors.Is(err, drivers.ErrTerminal) {
				w.setState(drivers.ConnectionStateFailed, err.Error())
				return
			}
			if !m.sleepBackoff(ctx, w) {
				return
			}
			continue
		}

		w.setState(drivers.ConnectionStateConnected, "")
		w.mu.Lock()
		w.attempt = 0
		w.mu.Unlock()
		if !reportedFirst {
			connected <- nil
			reportedFirst = true
		}

		m.drain(ctx, w, conn, drv)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		w.setState(drivers.ConnectionStateReconnecting, "transport closed")
		if !m.sleepBackoff(ctx, w) {
			return
		}
	}
}

// drain consumes frames from the live connection, parses them, and
// forwards parsed events to the pipeline, until the connection closes or
// the worker is cancelled. Overflow on the inbound queue drops the oldest
// frame, never blocking the transport's read loop; drops are not counted.
func (m *Manager) drain(ctx context.Context, w *worker, conn drivers.Conn, drv drivers.Driver) {
	queue := make(chan drivers.RawFrame, frameQueueSize)
	w.mu.Lock()
	w.frameQueue = queue
	w.mu.Unlock()
	go func() {
		for {
			select {
			case frame, ok := <-conn.Frames():
				if !ok {
					close(queue)
					return
				}
				select {
				case queue <- frame:
				default:
					select {
					case <-queue:
					default:
					}
					select {
					case queue <- frame:
					default:
					}
				}
			case <-ctx.Done():
				close(queue)
				return
			}
		}
	}()

	cfgCache, _ := m.store.GetConfig(ctx, w.connectorID)

	for {
		select {
		case frame, ok := <-queue:
			if !ok {
				return
			}
			events, warnings := drv.Parse(w.connectorID, cfgCache, frame)
			for _, warn := range warnings {
				logging.ForOrg("sessions", w.organizationID).
					WithField("connectorId", w.connectorID).Warn(warn)
			}
			for _, evt := range events {
				evt.OrganizationID = w.organizationID
				m.pipeline.Submit(ctx, evt)
			}
		case err := <-conn.Closed():
			if err != nil {
				w.setState(drivers.ConnectionStateReconnecting, err.Error())
			}
			return
		case <-ctx.Done():
			return
		}
	}
}

// sleepBackoff waits 5s·2^(n-1) capped at 60s before the next attempt,
// returning false if ctx was cancelled during the wait.
func (m *Manager) sleepBackoff(ctx context.Context, w *worker) bool {
	w.mu.Lock()
	w.attempt++
	n := w.attempt
	w.mu.Unlock()

	delay := baseBackoff * time.Duration(1<<uint(n-1))
	if delay > maxBackoff {
		delay = maxBackoff
	}

	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}
