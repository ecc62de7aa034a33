// internal/store/connectors.go
package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/fusion-sh/fusion/internal/core"
)

const (
	selectConnectorByIDQuery = `
		SELECT id, organization_id, category, name, cfg, events_enabled
		FROM connectors WHERE id = $1`

	selectEnabledConnectorsQuery = `
		SELECT id, organization_id, category, name, cfg, events_enabled
		FROM connectors WHERE events_enabled = true`

	selectEnabledConnectorsByOrgQuery = `
		SELECT id, organization_id, category, name, cfg, events_enabled
		FROM connectors WHERE organization_id = $1 AND events_enabled = true`

	updateConnectorEventsEnabledQuery = `UPDATE connectors SET events_enabled = $1 WHERE id = $2`
)

type ConnectorRepo struct {
	db *sqlx.DB
}

func NewConnectorRepo(db *sqlx.DB) *ConnectorRepo {
	return &ConnectorRepo{db: db}
}

func (r *ConnectorRepo) GetByID(ctx context.Context, id string) (core.Connector, error) {
	var c core.Connector
	if err := r.db.GetContext(ctx, &c, selectConnectorByIDQuery, id); err != nil {
		return core.Connector{}, fmt.Errorf("get connector %s: %w", id, err)
	}
	return c, nil
}

// ListEnabled returns every connector across every organization with
// eventsEnabled=true, used by the session manager's startup scan.
func (r *ConnectorRepo) ListEnabled(ctx context.Context) ([]core.Connector, error) {
	var out []core.Connector
	if err := r.db.SelectContext(ctx, &out, selectEnabledConnectorsQuery); err != nil {
		return nil, fmt.Errorf("list enabled connectors: %w", err)
	}
	return out, nil
}

func (r *ConnectorRepo) ListEnabledByOrg(ctx context.Context, organizationID string) ([]core.Connector, error) {
	var out []core.Connector
	if err := r.db.SelectContext(ctx, &out, selectEnabledConnectorsByOrgQuery, organizationID); err != nil {
		return nil, fmt.Errorf("list enabled connectors for org %s: %w", organizationID, err)
	}
	return out, nil
}

func (r *ConnectorRepo) SetEventsEnabled(ctx context.Context, id string, enabled bool) error {
	if _, err := r.db.ExecContext(ctx, updateConnectorEventsEnabledQuery, enabled, id); err != nil {
		return fmt.Errorf("set events_enabled for connector %s: %w", id, err)
	}
	return nil
}
