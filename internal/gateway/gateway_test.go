package gateway_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fusion-sh/fusion/internal/core"
	"github.com/fusion-sh/fusion/internal/gateway"
)

func TestEventsInsertRejectsCrossTenantEvent(t *testing.T) {
	gw := gateway.New("org-a", gateway.Repos{})

	evt := core.StandardizedEvent{
		EventID:        "evt-1",
		OrganizationID: "org-b",
		Timestamp:      time.Now(),
	}

	_, err := gw.Events().Insert(context.Background(), evt)
	assert.ErrorIs(t, err, gateway.ErrCrossTenantAccess)
}

func TestGatewayOrganizationID(t *testing.T) {
	gw := gateway.New("org-a", gateway.Repos{})
	assert.Equal(t, "org-a", gw.OrganizationID())
}
