// internal/store/associations.go
package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/fusion-sh/fusion/internal/core"
)

const selectCameraAssociationsForDeviceQuery = `
	SELECT device_id, camera_external_id, camera_connector_id
	FROM camera_associations WHERE device_id = $1`

type AssociationRepo struct {
	db *sqlx.DB
}

func NewAssociationRepo(db *sqlx.DB) *AssociationRepo {
	return &AssociationRepo{db: db}
}

// ListCamerasForDevice returns the video cameras associated with a
// (typically non-camera) device, used to attach video context to its
// triggered automations (§4.5.5).
func (r *AssociationRepo) ListCamerasForDevice(ctx context.Context, deviceID string) ([]core.CameraAssociation, error) {
	var out []core.CameraAssociation
	if err := r.db.SelectContext(ctx, &out, selectCameraAssociationsForDeviceQuery, deviceID); err != nil {
		return nil, fmt.Errorf("list camera associations for device %s: %w", deviceID, err)
	}
	return out, nil
}
