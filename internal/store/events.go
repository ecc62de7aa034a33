// internal/store/events.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fusion-sh/fusion/internal/core"
)

const (
	insertEventQuery = `
		INSERT INTO events (event_id, organization_id, connector_id, device_external_id,
		                     category, type, subtype, timestamp, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id) DO NOTHING
		RETURNING event_id`

	selectRecentEquivalentQuery = `
		SELECT event_id FROM events
		WHERE connector_id = $1 AND device_external_id = $2 AND type = $3
		  AND timestamp >= $4 AND timestamp <= $5
		ORDER BY timestamp DESC
		LIMIT 1`
)

type EventRepo struct {
	db *sqlx.DB
}

func NewEventRepo(db *sqlx.DB) *EventRepo {
	return &EventRepo{db: db}
}

// Insert persists an event, idempotent on eventId. inserted is false when
// the row already existed (a redelivery), matching invariant 6.
func (r *EventRepo) Insert(ctx context.Context, evt core.StandardizedEvent) (inserted bool, err error) {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return false, fmt.Errorf("marshal event payload: %w", err)
	}

	var returnedID string
	err = r.db.QueryRowContext(ctx, insertEventQuery,
		evt.EventID, evt.OrganizationID, evt.ConnectorID, evt.DeviceExternalID,
		evt.Category, evt.Type, evt.Subtype, evt.Timestamp, payload,
	).Scan(&returnedID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert event %s: %w", evt.EventID, err)
	}
	return true, nil
}

// FindRecentEquivalent looks for an event sharing (connectorId,
// deviceExternalId, type) within [ts-window, ts+window], used to dedup
// redeliveries that arrive under a freshly generated eventId.
func (r *EventRepo) FindRecentEquivalent(ctx context.Context, connectorID, deviceExternalID string, eventType core.EventType, ts time.Time, window time.Duration) (string, bool, error) {
	var existingID string
	err := r.db.GetContext(ctx, &existingID, selectRecentEquivalentQuery,
		connectorID, deviceExternalID, eventType, ts.Add(-window), ts.Add(window),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find recent equivalent event: %w", err)
	}
	return existingID, true, nil
}
