// internal/areas/scheduler.go
package areas

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fusion-sh/fusion/internal/core"
	"github.com/fusion-sh/fusion/internal/gateway"
	"github.com/fusion-sh/fusion/internal/logging"
	"github.com/fusion-sh/fusion/internal/store"
)

// GatewayFactory builds an organization-scoped gateway on demand; the
// scheduler is a cross-tenant daemon, so it resolves one gateway per area's
// organization rather than holding a single one.
type GatewayFactory func(organizationID string) *gateway.Gateway

// Scheduler runs the once-a-minute arming tick (§4.6).
type Scheduler struct {
	areas      *store.AreaRepo
	gatewayFor GatewayFactory
	cron       *cron.Cron
}

func NewScheduler(areaRepo *store.AreaRepo, gatewayFor GatewayFactory) *Scheduler {
	return &Scheduler{
		areas:      areaRepo,
		gatewayFor: gatewayFor,
		cron:       cron.New(),
	}
}

// Start registers the minute tick and begins running it in the
// background. Cancelling ctx does not stop the cron loop itself; call Stop
// from the same shutdown path.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc("@every 1m", func() { s.Tick(ctx, time.Now()) })
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Tick implements the five scheduler steps against every area with an
// effective schedule, across every organization (§4.6).
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	log := logging.For("areas.scheduler")

	scheduled, err := s.areas.ListScheduled(ctx)
	if err != nil {
		log.WithError(err).Error("list scheduled areas")
		return
	}

	for _, area := range scheduled {
		gw := s.gatewayFor(area.OrganizationID)
		if err := s.tickArea(ctx, gw, area, now); err != nil {
			log.WithError(err).WithField("areaId", area.ID).Warn("schedule tick failed for area")
		}
	}
}

func (s *Scheduler) tickArea(ctx context.Context, gw *gateway.Gateway, area core.Area, now time.Time) error {
	schedule, location, err := EffectiveSchedule(ctx, gw, area)
	if err != nil {
		return err
	}
	if schedule == nil {
		return nil
	}

	// Step 2: skip this cycle if arming is currently suppressed.
	if area.IsArmingSkippedUntil != nil && area.IsArmingSkippedUntil.After(now) {
		return nil
	}

	zone := "UTC"
	if location != nil && location.TimeZone != "" {
		zone = location.TimeZone
	}
	armAt, disarmAt, err := NextInstants(*schedule, zone, now)
	if err != nil {
		return err
	}

	// Step 3: arm instant passed and not already armed.
	if area.NextScheduledArmTime != nil && !area.NextScheduledArmTime.After(now) &&
		area.ArmedState == core.ArmedStateDisarmed {
		if err := Arm(ctx, gw, area.ID, core.ArmedStateArmedAway, ReasonSchedule); err != nil {
			return err
		}
	}

	// Step 4: disarm instant passed and currently armed.
	if area.NextScheduledDisarmTime != nil && !area.NextScheduledDisarmTime.After(now) &&
		(area.ArmedState == core.ArmedStateArmedAway || area.ArmedState == core.ArmedStateArmedStay) {
		if err := Disarm(ctx, gw, area.ID, ReasonSchedule); err != nil {
			return err
		}
	}

	// Step 5: persist the freshly computed next instants for UI display.
	return ScheduleTick(ctx, gw, area.ID, armAt, disarmAt)
}

// AreaResult is one area's outcome from a batch operation.
type AreaResult struct {
	AreaID string
	Err    error
}

// BatchArmLocation arms every area in a location, applying transitions
// independently per area and reporting partial failures rather than
// aborting the batch (§4.6).
func BatchArmLocation(ctx context.Context, gw *gateway.Gateway, locationID string, mode core.ArmedState, reason string) []AreaResult {
	areaList, err := gw.Areas().ListByLocation(ctx, locationID)
	if err != nil {
		return []AreaResult{{AreaID: "", Err: err}}
	}
	results := make([]AreaResult, 0, len(areaList))
	for _, a := range areaList {
		err := Arm(ctx, gw, a.ID, mode, reason)
		results = append(results, AreaResult{AreaID: a.ID, Err: err})
	}
	return results
}

// BatchDisarmLocation mirrors BatchArmLocation for disarm.
func BatchDisarmLocation(ctx context.Context, gw *gateway.Gateway, locationID string, reason string) []AreaResult {
	areaList, err := gw.Areas().ListByLocation(ctx, locationID)
	if err != nil {
		return []AreaResult{{AreaID: "", Err: err}}
	}
	results := make([]AreaResult, 0, len(areaList))
	for _, a := range areaList {
		err := Disarm(ctx, gw, a.ID, reason)
		results = append(results, AreaResult{AreaID: a.ID, Err: err})
	}
	return results
}
