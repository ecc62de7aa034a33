// internal/gateway/gateway.go
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fusion-sh/fusion/internal/core"
	"github.com/fusion-sh/fusion/internal/store"
)

// ErrCrossTenantAccess is returned when a caller, directly or through a
// resolved foreign key, reaches for an entity outside the gateway's
// organization. Per §4.7/§7 this is a programming error: it is never
// absorbed into a partial result.
var ErrCrossTenantAccess = errors.New("fusion: cross-tenant access")

// Repos bundles the persistence-layer repositories a Gateway scopes. It is
// constructed once against the shared database and handed to every
// per-organization Gateway; the database itself is the serialization point
// across tenants (§5).
type Repos struct {
	Connectors   *store.ConnectorRepo
	Devices      *store.DeviceRepo
	Locations    *store.LocationRepo
	Areas        *store.AreaRepo
	Schedules    *store.ScheduleRepo
	Events       *store.EventRepo
	Automations  *store.AutomationRepo
	Executions   *store.ExecutionRepo
	Associations *store.AssociationRepo
}

// Gateway is a thin, organization-scoped facade over Repos. Every method
// that resolves a specific entity verifies its OrganizationID matches
// before returning it.
type Gateway struct {
	organizationID string
	repos          Repos
}

func New(organizationID string, repos Repos) *Gateway {
	return &Gateway{organizationID: organizationID, repos: repos}
}

func (g *Gateway) OrganizationID() string { return g.organizationID }

func (g *Gateway) Automations() Automations   { return Automations{g} }
func (g *Gateway) Areas() Areas               { return Areas{g} }
func (g *Gateway) Locations() Locations       { return Locations{g} }
func (g *Gateway) Schedules() Schedules       { return Schedules{g} }
func (g *Gateway) Devices() Devices           { return Devices{g} }
func (g *Gateway) Connectors() Connectors     { return Connectors{g} }
func (g *Gateway) Events() Events             { return Events{g} }
func (g *Gateway) Executions() Executions     { return Executions{g} }
func (g *Gateway) Associations() Associations { return Associations{g} }

type Automations struct{ g *Gateway }

func (a Automations) FindEnabled(ctx context.Context) ([]store.Automation, error) {
	return a.g.repos.Automations.FindEnabled(ctx, a.g.organizationID)
}

func (a Automations) GetByID(ctx context.Context, id string) (store.Automation, error) {
	row, err := a.g.repos.Automations.GetByID(ctx, id)
	if err != nil {
		return store.Automation{}, err
	}
	if row.OrganizationID != a.g.organizationID {
		return store.Automation{}, fmt.Errorf("automation %s: %w", id, ErrCrossTenantAccess)
	}
	return row, nil
}

func (a Automations) SetLastFiredAt(ctx context.Context, id string, firedAt time.Time) error {
	return a.g.repos.Automations.SetLastFiredAt(ctx, id, firedAt)
}

type Areas struct{ g *Gateway }

func (a Areas) FindAll(ctx context.Context) ([]core.Area, error) {
	return a.g.repos.Areas.ListByOrg(ctx, a.g.organizationID)
}

func (a Areas) GetByID(ctx context.Context, id string) (core.Area, error) {
	area, err := a.g.repos.Areas.GetByID(ctx, id)
	if err != nil {
		return core.Area{}, err
	}
	if area.OrganizationID != a.g.organizationID {
		return core.Area{}, fmt.Errorf("area %s: %w", id, ErrCrossTenantAccess)
	}
	return area, nil
}

// SetArmedState persists an armed-state transition after verifying the
// area belongs to this organization (§4.6, §4.7).
func (a Areas) SetArmedState(ctx context.Context, id string, state core.ArmedState, reason string, nextArm, nextDisarm, skippedUntil *time.Time) error {
	if _, err := a.GetByID(ctx, id); err != nil {
		return err
	}
	return a.g.repos.Areas.UpdateArmedState(ctx, id, state, reason, nextArm, nextDisarm, skippedUntil)
}

func (a Areas) UpdateScheduleTimes(ctx context.Context, id string, nextArm, nextDisarm *time.Time) error {
	if _, err := a.GetByID(ctx, id); err != nil {
		return err
	}
	return a.g.repos.Areas.UpdateScheduleTimes(ctx, id, nextArm, nextDisarm)
}

func (a Areas) ListByLocation(ctx context.Context, locationID string) ([]core.Area, error) {
	loc, err := a.g.repos.Locations.GetByID(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if loc.OrganizationID != a.g.organizationID {
		return nil, fmt.Errorf("location %s: %w", locationID, ErrCrossTenantAccess)
	}
	return a.g.repos.Areas.ListByLocation(ctx, locationID)
}

type Locations struct{ g *Gateway }

func (l Locations) FindAll(ctx context.Context) ([]core.Location, error) {
	return l.g.repos.Locations.ListByOrg(ctx, l.g.organizationID)
}

func (l Locations) GetByID(ctx context.Context, id string) (core.Location, error) {
	loc, err := l.g.repos.Locations.GetByID(ctx, id)
	if err != nil {
		return core.Location{}, err
	}
	if loc.OrganizationID != l.g.organizationID {
		return core.Location{}, fmt.Errorf("location %s: %w", id, ErrCrossTenantAccess)
	}
	return loc, nil
}

type Schedules struct{ g *Gateway }

func (s Schedules) GetByID(ctx context.Context, id string) (core.ArmingSchedule, error) {
	sch, err := s.g.repos.Schedules.GetByID(ctx, id)
	if err != nil {
		return core.ArmingSchedule{}, err
	}
	if sch.OrganizationID != s.g.organizationID {
		return core.ArmingSchedule{}, fmt.Errorf("schedule %s: %w", id, ErrCrossTenantAccess)
	}
	return sch, nil
}

type Devices struct{ g *Gateway }

func (d Devices) FindByExternalID(ctx context.Context, connectorID, externalID string) (core.Device, error) {
	conn, err := d.g.repos.Connectors.GetByID(ctx, connectorID)
	if err != nil {
		return core.Device{}, err
	}
	if conn.OrganizationID != d.g.organizationID {
		return core.Device{}, fmt.Errorf("connector %s: %w", connectorID, ErrCrossTenantAccess)
	}
	return d.g.repos.Devices.FindByExternalID(ctx, connectorID, externalID)
}

func (d Devices) GetByID(ctx context.Context, id string) (core.Device, error) {
	dev, err := d.g.repos.Devices.GetByID(ctx, id)
	if err != nil {
		return core.Device{}, err
	}
	conn, err := d.g.repos.Connectors.GetByID(ctx, dev.ConnectorID)
	if err != nil {
		return core.Device{}, err
	}
	if conn.OrganizationID != d.g.organizationID {
		return core.Device{}, fmt.Errorf("device %s: %w", id, ErrCrossTenantAccess)
	}
	return dev, nil
}

func (d Devices) UpdateLastSeen(ctx context.Context, deviceID string, ts time.Time) error {
	if _, err := d.GetByID(ctx, deviceID); err != nil {
		return err
	}
	return d.g.repos.Devices.UpdateLastSeen(ctx, deviceID, ts)
}

// FindArea resolves the area a device belongs to, or (core.Area{}, false, nil)
// for an unassigned device.
func (d Devices) FindArea(ctx context.Context, deviceID string) (core.Area, bool, error) {
	areaID, found, err := d.g.repos.Devices.FindAreaID(ctx, deviceID)
	if err != nil || !found {
		return core.Area{}, false, err
	}
	area, err := Areas{d.g}.GetByID(ctx, areaID)
	if err != nil {
		return core.Area{}, false, err
	}
	return area, true, nil
}

func (d Devices) ListByArea(ctx context.Context, areaID string) ([]core.Device, error) {
	area, err := Areas{d.g}.GetByID(ctx, areaID)
	if err != nil {
		return nil, err
	}
	return d.g.repos.Devices.ListByArea(ctx, area.ID)
}

type Connectors struct{ g *Gateway }

func (c Connectors) FindEnabled(ctx context.Context) ([]core.Connector, error) {
	return c.g.repos.Connectors.ListEnabledByOrg(ctx, c.g.organizationID)
}

func (c Connectors) GetByID(ctx context.Context, id string) (core.Connector, error) {
	conn, err := c.g.repos.Connectors.GetByID(ctx, id)
	if err != nil {
		return core.Connector{}, err
	}
	if conn.OrganizationID != c.g.organizationID {
		return core.Connector{}, fmt.Errorf("connector %s: %w", id, ErrCrossTenantAccess)
	}
	return conn, nil
}

// SetEventsEnabled toggles a connector's ingestion flag after verifying it
// belongs to this organization.
func (c Connectors) SetEventsEnabled(ctx context.Context, id string, enabled bool) error {
	if _, err := c.GetByID(ctx, id); err != nil {
		return err
	}
	return c.g.repos.Connectors.SetEventsEnabled(ctx, id, enabled)
}

type Events struct{ g *Gateway }

// Insert refuses to persist an event stamped with a different organization
// than the gateway's own — the hard tenant-isolation boundary invariant 1
// depends on.
func (e Events) Insert(ctx context.Context, evt core.StandardizedEvent) (bool, error) {
	if evt.OrganizationID != e.g.organizationID {
		return false, fmt.Errorf("event %s: %w", evt.EventID, ErrCrossTenantAccess)
	}
	return e.g.repos.Events.Insert(ctx, evt)
}

// FindRecentEquivalent looks for a redelivery of evt under a freshly
// generated eventId, within window, matching on (connectorId,
// deviceExternalId, type) (invariant 6).
func (e Events) FindRecentEquivalent(ctx context.Context, connectorID, deviceExternalID string, eventType core.EventType, ts time.Time, window time.Duration) (string, bool, error) {
	return e.g.repos.Events.FindRecentEquivalent(ctx, connectorID, deviceExternalID, eventType, ts, window)
}

type Executions struct{ g *Gateway }

func (e Executions) Insert(ctx context.Context, exec store.Execution) error {
	return e.g.repos.Executions.InsertRunning(ctx, exec)
}

func (e Executions) Complete(ctx context.Context, id, status string, successful, failed int, durationMs int64) error {
	return e.g.repos.Executions.Complete(ctx, id, status, successful, failed, durationMs)
}

func (e Executions) InsertAction(ctx context.Context, ae store.ActionExecution) error {
	return e.g.repos.Executions.InsertActionRunning(ctx, ae)
}

func (e Executions) CompleteAction(ctx context.Context, id, status string, completedAt time.Time, durationMs int64, errMsg *string, retryCount int) error {
	return e.g.repos.Executions.CompleteAction(ctx, id, status, completedAt, durationMs, errMsg, retryCount)
}

type Associations struct{ g *Gateway }

func (a Associations) ListCamerasForDevice(ctx context.Context, deviceID string) ([]core.CameraAssociation, error) {
	return a.g.repos.Associations.ListCamerasForDevice(ctx, deviceID)
}
