package areas_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fusion-sh/fusion/internal/areas"
	"github.com/fusion-sh/fusion/internal/core"
	"github.com/fusion-sh/fusion/internal/gateway"
)

func TestArmRejectsInvalidMode(t *testing.T) {
	gw := gateway.New("org-1", gateway.Repos{})
	err := areas.Arm(context.Background(), gw, "area-1", core.ArmedStateDisarmed, areas.ReasonUserAction)
	assert.ErrorIs(t, err, areas.ErrInvalidArmMode)
}

func TestArmRejectsTriggeredAsTargetMode(t *testing.T) {
	gw := gateway.New("org-1", gateway.Repos{})
	err := areas.Arm(context.Background(), gw, "area-1", core.ArmedStateTriggered, areas.ReasonUserAction)
	assert.ErrorIs(t, err, areas.ErrInvalidArmMode)
}
