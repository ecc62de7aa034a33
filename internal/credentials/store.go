// internal/credentials/store.go
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fusion-sh/fusion/internal/core"
	"github.com/fusion-sh/fusion/internal/drivers"
	"github.com/fusion-sh/fusion/internal/logging"
)

// RefreshSkew is how far ahead of tokenExpiresAt the store refreshes
// proactively, per §4.1.
const RefreshSkew = 60 * time.Second

const (
	selectConnectorForRefreshQuery = `SELECT category, cfg FROM connectors WHERE id = $1`
	selectConnectorCfgQuery        = `SELECT cfg FROM connectors WHERE id = $1`
	updateConnectorCfgQuery        = `UPDATE connectors SET cfg = $1 WHERE id = $2`
)

// TokenRefresher performs the vendor-specific HTTP round trip that exchanges
// a refresh token for a new access token, returning the full updated config
// blob (new access/refresh token, new tokenExpiresAt, any newly-discovered
// identifiers such as a cloud account's homeId).
type TokenRefresher interface {
	Refresh(ctx context.Context, cfg json.RawMessage) (json.RawMessage, error)
}

// Store persists connector config and serializes token refresh per
// connector. Only one refresh may be in flight for a given connector at a
// time. Concurrent callers do not share one result: each RefreshToken call
// performs its own vendor refresh once it holds the connector's lock, so
// callers queued behind one another each receive a newly rotated token.
type Store struct {
	db         *sqlx.DB
	refreshers map[core.ConnectorCategory]TokenRefresher

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(db *sqlx.DB, refreshers map[core.ConnectorCategory]TokenRefresher) *Store {
	return &Store{
		db:         db,
		refreshers: refreshers,
		locks:      make(map[string]*sync.Mutex),
	}
}

func (s *Store) lockFor(connectorID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[connectorID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[connectorID] = m
	}
	return m
}

// GetConfig returns the connector's current config blob.
func (s *Store) GetConfig(ctx context.Context, connectorID string) (json.RawMessage, error) {
	var cfg json.RawMessage
	if err := s.db.GetContext(ctx, &cfg, selectConnectorCfgQuery, connectorID); err != nil {
		return nil, fmt.Errorf("load connector config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the connector's config blob, serialized against
// concurrent refreshes of the same connector.
func (s *Store) SaveConfig(ctx context.Context, connectorID string, cfg json.RawMessage) error {
	lock := s.lockFor(connectorID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.db.ExecContext(ctx, updateConnectorCfgQuery, cfg, connectorID); err != nil {
		return fmt.Errorf("save connector config: %w", err)
	}
	return nil
}

// RefreshToken refreshes the connector's credentials unconditionally,
// serialized per connector. On success the rotated config is written back
// before being returned; a write failure is logged but the refreshed config
// is still returned to the caller (§4.1 atomicity note).
func (s *Store) RefreshToken(ctx context.Context, connectorID string) (json.RawMessage, error) {
	lock := s.lockFor(connectorID)
	lock.Lock()
	defer lock.Unlock()

	var row struct {
		Category core.ConnectorCategory `db:"category"`
		Cfg      json.RawMessage        `db:"cfg"`
	}
	if err := s.db.GetContext(ctx, &row, selectConnectorForRefreshQuery, connectorID); err != nil {
		return nil, fmt.Errorf("load connector for refresh: %w", err)
	}

	refresher, ok := s.refreshers[row.Category]
	if !ok {
		// This category has no rotating credentials; the current config is
		// already current.
		return row.Cfg, nil
	}

	newCfg, err := refresher.Refresh(ctx, row.Cfg)
	if err != nil {
		if errors.Is(err, drivers.ErrTerminal) {
			logging.For("credentials").WithField("connectorId", connectorID).
				WithError(err).Warn("terminal token refresh failure, session requires operator intervention")
		}
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx, updateConnectorCfgQuery, newCfg, connectorID); err != nil {
		logging.For("credentials").WithField("connectorId", connectorID).
			WithError(err).Warn("rotated token persisted to memory but failed to write back; next restart will refresh again")
	}
	return newCfg, nil
}

// RefreshIfNeeded refreshes the connector's token only if it is within
// RefreshSkew of expiry (or already expired), otherwise returns the current
// config unchanged.
func (s *Store) RefreshIfNeeded(ctx context.Context, connectorID string) (json.RawMessage, error) {
	cfg, err := s.GetConfig(ctx, connectorID)
	if err != nil {
		return nil, err
	}
	if !expiresWithinSkew(cfg, RefreshSkew) {
		return cfg, nil
	}
	return s.RefreshToken(ctx, connectorID)
}

type credentialsPeek struct {
	Credentials struct {
		TokenExpiresAt time.Time `json:"tokenExpiresAt"`
	} `json:"credentials"`
}

func expiresWithinSkew(cfg json.RawMessage, skew time.Duration) bool {
	var p credentialsPeek
	if err := json.Unmarshal(cfg, &p); err != nil {
		return false
	}
	if p.Credentials.TokenExpiresAt.IsZero() {
		return false
	}
	return time.Until(p.Credentials.TokenExpiresAt) <= skew
}
