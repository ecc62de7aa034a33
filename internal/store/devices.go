// internal/store/devices.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fusion-sh/fusion/internal/core"
)

var ErrDeviceNotFound = errors.New("device not found")

const (
	selectDeviceByIDQuery = `
		SELECT id, connector_id, external_id, name, type, subtype, vendor, model,
		       status, battery_percentage, last_seen
		FROM devices WHERE id = $1`

	selectDeviceByExternalIDQuery = `
		SELECT id, connector_id, external_id, name, type, subtype, vendor, model,
		       status, battery_percentage, last_seen
		FROM devices WHERE connector_id = $1 AND external_id = $2`

	selectDevicesByAreaQuery = `
		SELECT d.id, d.connector_id, d.external_id, d.name, d.type, d.subtype,
		       d.vendor, d.model, d.status, d.battery_percentage, d.last_seen
		FROM devices d
		JOIN area_devices ad ON ad.device_id = d.id
		WHERE ad.area_id = $1`

	insertDeviceQuery = `
		INSERT INTO devices (id, connector_id, external_id, name, type, subtype, vendor, model)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (connector_id, external_id) DO NOTHING`

	updateDeviceLastSeenQuery = `UPDATE devices SET last_seen = $1 WHERE id = $2`

	selectAreaIDForDeviceQuery = `SELECT area_id FROM area_devices WHERE device_id = $1 LIMIT 1`
)

type DeviceRepo struct {
	db *sqlx.DB
}

func NewDeviceRepo(db *sqlx.DB) *DeviceRepo {
	return &DeviceRepo{db: db}
}

func (r *DeviceRepo) GetByID(ctx context.Context, id string) (core.Device, error) {
	var d core.Device
	if err := r.db.GetContext(ctx, &d, selectDeviceByIDQuery, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Device{}, ErrDeviceNotFound
		}
		return core.Device{}, fmt.Errorf("get device %s: %w", id, err)
	}
	return d, nil
}

// FindByExternalID resolves a device from its vendor-native identity. This
// is the hot path from the event pipeline (C4), called once per parsed
// event.
func (r *DeviceRepo) FindByExternalID(ctx context.Context, connectorID, externalID string) (core.Device, error) {
	var d core.Device
	if err := r.db.GetContext(ctx, &d, selectDeviceByExternalIDQuery, connectorID, externalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Device{}, ErrDeviceNotFound
		}
		return core.Device{}, fmt.Errorf("find device %s/%s: %w", connectorID, externalID, err)
	}
	return d, nil
}

func (r *DeviceRepo) ListByArea(ctx context.Context, areaID string) ([]core.Device, error) {
	var out []core.Device
	if err := r.db.SelectContext(ctx, &out, selectDevicesByAreaQuery, areaID); err != nil {
		return nil, fmt.Errorf("list devices for area %s: %w", areaID, err)
	}
	return out, nil
}

func (r *DeviceRepo) Insert(ctx context.Context, d core.Device) error {
	if _, err := r.db.ExecContext(ctx, insertDeviceQuery,
		d.ID, d.ConnectorID, d.ExternalID, d.Name, d.Type, d.Subtype, d.Vendor, d.Model,
	); err != nil {
		return fmt.Errorf("insert device %s: %w", d.ID, err)
	}
	return nil
}

func (r *DeviceRepo) UpdateLastSeen(ctx context.Context, deviceID string, ts time.Time) error {
	if _, err := r.db.ExecContext(ctx, updateDeviceLastSeenQuery, ts, deviceID); err != nil {
		return fmt.Errorf("update last_seen for device %s: %w", deviceID, err)
	}
	return nil
}

// FindAreaID resolves the area a device belongs to. A device belongs to at
// most one area within its organization even though the underlying
// membership table is many-to-many (§3 Area↔Device); it returns ("", false)
// for an unassigned device.
func (r *DeviceRepo) FindAreaID(ctx context.Context, deviceID string) (string, bool, error) {
	var areaID string
	err := r.db.GetContext(ctx, &areaID, selectAreaIDForDeviceQuery, deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find area for device %s: %w", deviceID, err)
	}
	return areaID, true, nil
}
