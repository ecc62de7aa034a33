// internal/store/areas.go
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

var ErrAreaNotFound = errors.New("area not found")

const (
	selectAreaByIDQuery = `
		SELECT id, organization_id, location_id, name, armed_state,
		       override_arming_schedule_id, last_armed_state_change_reason,
		       next_scheduled_arm_time, next_scheduled_disarm_time, is_arming_skipped_until
		FROM areas WHERE id = $1`

	selectAreasByOrgQuery = `
		SELECT id, organization_id, location_id, name, armed_state,
		       override_arming_schedule_id, last_armed_state_change_reason,
		       next_scheduled_arm_time, next_scheduled_disarm_time, is_arming_skipped_until
		FROM areas WHERE organization_id = $1`

	selectAreasByLocationQuery = `
		SELECT id, organization_id, location_id, name, armed_state,
		       override_arming_schedule_id, last_armed_state_change_reason,
		       next_scheduled_arm_time, next_scheduled_disarm_time, is_arming_skipped_until
		FROM areas WHERE location_id = $1`

	selectScheduledAreasQuery = `
		SELECT id, organization_id, location_id, name, armed_state,
		       override_arming_schedule_id, last_armed_state_change_reason,
		       next_scheduled_arm_time, next_scheduled_disarm_time, is_arming_skipped_until
		FROM areas WHERE override_arming_schedule_id IS NOT NULL OR location_id IN (
			SELECT id FROM locations WHERE active_arming_schedule_id IS NOT NULL
		)`

	updateAreaArmedStateQuery = `
		UPDATE areas SET armed_state = $1, last_armed_state_change_reason = $2,
		       next_scheduled_arm_time = $3, next_scheduled_disarm_time = $4,
		       is_arming_skipped_until = $5
		WHERE id = $6`

	updateAreaScheduleTimesQuery = `
		UPDATE areas SET next_scheduled_arm_time = $1, next_scheduled_disarm_time = $2
		WHERE id = $3`

	updateAreaOverrideScheduleQuery = `UPDATE areas SET override_arming_schedule_id = $1 WHERE id = $2`
)

type AreaRepo struct {
	db *sqlx.DB
}

func NewAreaRepo(db *sqlx.DB) *AreaRepo {
	return &AreaRepo{db: db}
}

func (r *AreaRepo) GetByID(ctx context.Context, id string) (core.Area, error) {
	var a core.Area
	if err := r.db.GetContext(ctx, &a, selectAreaByIDQuery, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Area{}, ErrAreaNotFound
		}
		return core.Area{}, fmt.Errorf("get area %s: %w", id, err)
	}
	return a, nil
}

func (r *AreaRepo) ListByOrg(ctx context.Context, organizationID string) ([]core.Area, error) {
	var out []core.Area
	if err := r.db.SelectContext(ctx, &out, selectAreasByOrgQuery, organizationID); err != nil {
		return nil, fmt.Errorf("list areas for org %s: %w", organizationID, err)
	}
	return out, nil
}

func (r *AreaRepo) ListByLocation(ctx context.Context, locationID string) ([]core.Area, error) {
	var out []core.Area
	if err := r.db.SelectContext(ctx, &out, selectAreasByLocationQuery, locationID); err != nil {
		return nil, fmt.Errorf("list areas for location %s: %w", locationID, err)
	}
	return out, nil
}

// ListScheduled returns every area with an effective arming schedule
// (override or location default), for the scheduler tick (§4.6).
func (r *AreaRepo) ListScheduled(ctx context.Context) ([]core.Area, error) {
	var out []core.Area
	if err := r.db.SelectContext(ctx, &out, selectScheduledAreasQuery); err != nil {
		return nil, fmt.Errorf("list scheduled areas: %w", err)
	}
	return out, nil
}

// UpdateArmedState persists a state transition. Any armed-state change
// clears isArmingSkippedUntil/nextScheduledArmTime/nextScheduledDisarmTime
// unless the caller supplies replacements (invariant: §4.6 step 1).
func (r *AreaRepo) UpdateArmedState(ctx context.Context, id string, state core.ArmedState, reason string, nextArm, nextDisarm, skippedUntil *time.Time) error {
	if _, err := r.db.ExecContext(ctx, updateAreaArmedStateQuery, state, reason, nextArm, nextDisarm, skippedUntil, id); err != nil {
		return fmt.Errorf("update armed state for area %s: %w", id, err)
	}
	return nil
}

func (r *AreaRepo) UpdateScheduleTimes(ctx context.Context, id string, nextArm, nextDisarm *time.Time) error {
	if _, err := r.db.ExecContext(ctx, updateAreaScheduleTimesQuery, nextArm, nextDisarm, id); err != nil {
		return fmt.Errorf("update schedule times for area %s: %w", id, err)
	}
	return nil
}

func (r *AreaRepo) SetOverrideSchedule(ctx context.Context, id string, scheduleID *string) error {
	if _, err := r.db.ExecContext(ctx, updateAreaOverrideScheduleQuery, scheduleID, id); err != nil {
		return fmt.Errorf("set override schedule for area %s: %w", id, err)
	}
	return nil
}
