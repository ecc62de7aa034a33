// internal/store/locations.go
package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/fusion-sh/fusion/internal/core"
)

const (
	selectLocationByIDQuery = `
		SELECT id, organization_id, name, parent_id, time_zone, active_arming_schedule_id
		FROM locations WHERE id = $1`

	selectLocationsByOrgQuery = `
		SELECT id, organization_id, name, parent_id, time_zone, active_arming_schedule_id
		FROM locations WHERE organization_id = $1`

	updateLocationActiveScheduleQuery = `UPDATE locations SET active_arming_schedule_id = $1 WHERE id = $2`
)

type LocationRepo struct {
	db *sqlx.DB
}

func NewLocationRepo(db *sqlx.DB) *LocationRepo {
	return &LocationRepo{db: db}
}

func (r *LocationRepo) GetByID(ctx context.Context, id string) (core.Location, error) {
	var l core.Location
	if err := r.db.GetContext(ctx, &l, selectLocationByIDQuery, id); err != nil {
		return core.Location{}, fmt.Errorf("get location %s: %w", id, err)
	}
	return l, nil
}

func (r *LocationRepo) ListByOrg(ctx context.Context, organizationID string) ([]core.Location, error) {
	var out []core.Location
	if err := r.db.SelectContext(ctx, &out, selectLocationsByOrgQuery, organizationID); err != nil {
		return nil, fmt.Errorf("list locations for org %s: %w", organizationID, err)
	}
	return out, nil
}

func (r *LocationRepo) SetActiveSchedule(ctx context.Context, locationID string, scheduleID *string) error {
	if _, err := r.db.ExecContext(ctx, updateLocationActiveScheduleQuery, scheduleID, locationID); err != nil {
		return fmt.Errorf("set active schedule for location %s: %w", locationID, err)
	}
	return nil
}
