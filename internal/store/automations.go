// internal/store/automations.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

var ErrAutomationNotFound = errors.New("automation not found")

// Automation is the persisted shape of an automation row; Config is kept
// opaque here and decoded by the automation package into its typed
// RuleTree/action records.
type Automation struct {
	ID              string          `db:"id"`
	OrganizationID  string          `db:"organization_id"`
	Name            string          `db:"name"`
	Enabled         bool            `db:"enabled"`
	LocationScopeID *string         `db:"location_scope_id"`
	Tags            []string        `db:"tags"`
	Config          json.RawMessage `db:"config"`
	LastFiredAt     *time.Time      `db:"last_fired_at"`
}

const (
	selectAutomationByIDQuery = `
		SELECT id, organization_id, name, enabled, location_scope_id, tags, config, last_fired_at
		FROM automations WHERE id = $1`

	selectEnabledAutomationsByOrgQuery = `
		SELECT id, organization_id, name, enabled, location_scope_id, tags, config, last_fired_at
		FROM automations WHERE organization_id = $1 AND enabled = true`

	selectEnabledScheduledAutomationsQuery = `
		SELECT id, organization_id, name, enabled, location_scope_id, tags, config, last_fired_at
		FROM automations WHERE enabled = true AND config->'trigger'->>'kind' = 'SCHEDULED'`

	updateAutomationLastFiredAtQuery = `UPDATE automations SET last_fired_at = $1 WHERE id = $2`
)

type AutomationRepo struct {
	db *sqlx.DB
}

func NewAutomationRepo(db *sqlx.DB) *AutomationRepo {
	return &AutomationRepo{db: db}
}

func (r *AutomationRepo) GetByID(ctx context.Context, id string) (Automation, error) {
	var a Automation
	if err := r.db.GetContext(ctx, &a, selectAutomationByIDQuery, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Automation{}, ErrAutomationNotFound
		}
		return Automation{}, fmt.Errorf("get automation %s: %w", id, err)
	}
	return a, nil
}

func (r *AutomationRepo) FindEnabled(ctx context.Context, organizationID string) ([]Automation, error) {
	var out []Automation
	if err := r.db.SelectContext(ctx, &out, selectEnabledAutomationsByOrgQuery, organizationID); err != nil {
		return nil, fmt.Errorf("list enabled automations for org %s: %w", organizationID, err)
	}
	return out, nil
}

// FindEnabledScheduled returns every enabled automation with a scheduled
// trigger, across organizations, for the scheduled-tick daemon (§4.5.3).
func (r *AutomationRepo) FindEnabledScheduled(ctx context.Context) ([]Automation, error) {
	var out []Automation
	if err := r.db.SelectContext(ctx, &out, selectEnabledScheduledAutomationsQuery); err != nil {
		return nil, fmt.Errorf("list enabled scheduled automations: %w", err)
	}
	return out, nil
}

func (r *AutomationRepo) SetLastFiredAt(ctx context.Context, id string, firedAt time.Time) error {
	if _, err := r.db.ExecContext(ctx, updateAutomationLastFiredAtQuery, firedAt, id); err != nil {
		return fmt.Errorf("set last_fired_at for automation %s: %w", id, err)
	}
	return nil
}
