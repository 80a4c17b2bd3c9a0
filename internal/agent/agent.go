// Package agent runs the autonomous maintenance checks: it evaluates every
// active vehicle, asks the advisor what to do and carries the plan out.
package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ukydev/carbuddy/internal/advisor"
	"github.com/ukydev/carbuddy/internal/db"
	"github.com/ukydev/carbuddy/internal/maintenance"
	"github.com/ukydev/carbuddy/internal/models"
	"github.com/ukydev/carbuddy/internal/notify"
	"github.com/ukydev/carbuddy/internal/places"
	"github.com/ukydev/carbuddy/internal/telemetry"
)

// Version is recorded with every logged agent action.
const Version = "1.0"

// Audit log action types.
const (
	ActionDailyAnalysis  = "daily_analysis"
	ActionUrgentAlert    = "urgent_alert"
	ActionLearningUpdate = "learning_update"
)

// DefaultLocation is used for owners without a home location (Rock Island, IL).
var DefaultLocation = models.Location{Lat: 41.5094, Lon: -90.5789}

// Store is the persistence the agent reads from.
type Store interface {
	GetActiveVehicleOwners(ctx context.Context) ([]models.Owner, error)
	GetMaintenanceHistory(ctx context.Context, vehicleID string) ([]models.ServiceRecord, error)
}

// Advisor produces recommendations and action plans.
type Advisor interface {
	GenerateRecommendation(ctx context.Context, facts advisor.VehicleFacts, history []advisor.HistoryFact) (advisor.ParsedRecommendation, error)
	DecideAction(ctx context.Context, vc advisor.VehicleContext) (advisor.ActionPlan, error)
}

// ShopFinder looks up repair shops.
type ShopFinder interface {
	FindNearby(ctx context.Context, loc models.Location, serviceType string, radiusMiles float64) ([]places.Shop, error)
}

// Notifier delivers messages to owners.
type Notifier interface {
	SendPush(ctx context.Context, userID, message string) notify.Result
	SendSMS(ctx context.Context, phone, message string) notify.Result
	SendEmail(ctx context.Context, address, subject, body string) notify.Result
	ScheduleNotification(ctx context.Context, userID, message string, sendTime time.Time) notify.Result
}

// Config tunes the agent.
type Config struct {
	Concurrency       int
	VehicleTimeout    time.Duration
	SearchRadiusMiles float64
	UrgentCooldown    time.Duration
	// DeliveryGrace bounds delivery of a plan whose vehicle timed out.
	DeliveryGrace time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 4
	}
	if c.VehicleTimeout <= 0 {
		c.VehicleTimeout = 60 * time.Second
	}
	if c.SearchRadiusMiles <= 0 {
		c.SearchRadiusMiles = 25
	}
	if c.UrgentCooldown <= 0 {
		c.UrgentCooldown = 24 * time.Hour
	}
	if c.DeliveryGrace <= 0 {
		c.DeliveryGrace = 10 * time.Second
	}
	return c
}

// Deps are the agent's collaborators. Metrics may be nil.
type Deps struct {
	Store         Store
	Actions       db.ActionCollection
	Notifications db.NotificationCollection
	Catalog       maintenance.Catalog
	Advisor       Advisor
	Shops         ShopFinder
	Notifier      Notifier
	Metrics       *telemetry.Metrics
}

// Agent runs the maintenance checks.
type Agent struct {
	Deps
	cfg Config
	now func() time.Time

	mu         sync.Mutex
	lastUrgent map[string]time.Time
}

// New creates an Agent.
func New(deps Deps, cfg Config) *Agent {
	return &Agent{
		Deps:       deps,
		cfg:        cfg.withDefaults(),
		now:        time.Now,
		lastUrgent: make(map[string]time.Time),
	}
}

// Summary describes one pass over the fleet.
type Summary struct {
	Owners   int `json:"owners"`
	Vehicles int `json:"vehicles"`
	Analyzed int `json:"analyzed"`
	Failed   int `json:"failed"`
	Actions  int `json:"actions"`
}

// DailyCheck analyzes every vehicle of every active owner. Vehicles are
// processed concurrently, each under its own timeout; a failing vehicle is
// logged and counted but does not stop the others. Only a failure to load
// the owners is returned.
func (a *Agent) DailyCheck(ctx context.Context) (Summary, error) {
	started := a.now()
	log.WithField("job", "daily-maintenance-check").Info("CarBuddy agent starting daily check")

	owners, err := a.Store.GetActiveVehicleOwners(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("agent: failed to load owners: %w", err)
	}

	var analyzed, failed, actions int64
	sum := Summary{Owners: len(owners)}

	g := new(errgroup.Group)
	g.SetLimit(a.cfg.Concurrency)
	for _, owner := range owners {
		for _, vehicle := range owner.Vehicles {
			sum.Vehicles++
			user := owner.User
			g.Go(func() error {
				vctx, cancel := context.WithTimeout(ctx, a.cfg.VehicleTimeout)
				defer cancel()

				n, err := a.AnalyzeVehicle(vctx, user, vehicle)
				atomic.AddInt64(&actions, int64(n))
				if err != nil {
					atomic.AddInt64(&failed, 1)
					a.Metrics.VehicleAnalyzed(ctx, "failed")
					log.WithFields(log.Fields{
						"job":        "daily-maintenance-check",
						"user_id":    user.ID.Hex(),
						"vehicle_id": vehicle.ID.Hex(),
					}).WithError(err).Error("Vehicle analysis failed")
					return nil
				}
				atomic.AddInt64(&analyzed, 1)
				a.Metrics.VehicleAnalyzed(ctx, "ok")
				return nil
			})
		}
	}
	_ = g.Wait()

	sum.Analyzed = int(analyzed)
	sum.Failed = int(failed)
	sum.Actions = int(actions)

	log.WithFields(log.Fields{
		"job":      "daily-maintenance-check",
		"owners":   sum.Owners,
		"vehicles": sum.Vehicles,
		"analyzed": sum.Analyzed,
		"failed":   sum.Failed,
		"actions":  sum.Actions,
		"duration": a.now().Sub(started),
	}).Info("Daily check completed")

	if err := ctx.Err(); err != nil {
		return sum, err
	}
	return sum, nil
}

// AnalyzeVehicle runs the full pipeline for one vehicle and returns how many
// actions were executed. If ctx expires while the advisor is thinking, the
// rule-based plan is still delivered under DeliveryGrace and the vehicle is
// reported as failed with the context error.
func (a *Agent) AnalyzeVehicle(ctx context.Context, user models.User, vehicle models.Vehicle) (int, error) {
	vehicleID := vehicle.ID.Hex()
	logger := log.WithFields(log.Fields{"user_id": user.ID.Hex(), "vehicle_id": vehicleID})

	history, err := a.Store.GetMaintenanceHistory(ctx, vehicleID)
	if err != nil {
		return 0, err
	}

	now := a.now()
	snapshot := Snapshot(vehicle)
	records := ToServiceRecords(history)
	report, err := maintenance.Report(snapshot, records, a.Catalog, now)
	if err != nil {
		return 0, err
	}
	recs, err := maintenance.Aggregate(snapshot, records, a.Catalog, now)
	if err != nil {
		return 0, err
	}

	facts := advisor.VehicleFacts{
		ID:             vehicleID,
		Make:           vehicle.Make,
		Model:          vehicle.Model,
		Year:           vehicle.Year,
		CurrentMileage: vehicle.CurrentMileage,
		ServiceStatus:  report,
	}
	historyFacts := toHistoryFacts(history)

	usedFallback := false
	analysis, err := a.Advisor.GenerateRecommendation(ctx, facts, historyFacts)
	if err != nil {
		logger.WithError(err).Warn("Recommendation unavailable, using rule-based analysis")
		analysis = advisor.FallbackRecommendation(recs)
		usedFallback = true
	}

	plan, err := a.Advisor.DecideAction(ctx, advisor.VehicleContext{
		Vehicle:         facts,
		History:         historyFacts,
		Recommendations: recs,
		Analysis:        analysis,
		Preferences:     user.EffectivePreferences(),
	})
	if err != nil {
		logger.WithError(err).Warn("Action plan unavailable, using rule-based plan")
		plan = advisor.FallbackActionPlan(recs)
		usedFallback = true
	}

	dctx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), a.cfg.DeliveryGrace)
		defer cancel()
	}
	outcomes := a.executeActions(dctx, user, vehicle, plan, recs)

	a.logAction(dctx, models.AgentAction{
		ActionType: ActionDailyAnalysis,
		UserID:     user.ID.Hex(),
		VehicleID:  vehicleID,
		Data: map[string]interface{}{
			"recommendations": len(recs),
			"message_to_user": analysis.MessageToUser,
			"reasoning":       plan.Reasoning,
			"fallback":        usedFallback,
			"actions":         outcomes,
		},
	})

	logger.WithFields(log.Fields{
		"recommendations": len(recs),
		"actions":         len(outcomes),
		"fallback":        usedFallback,
	}).Info("Vehicle analyzed")
	if err := ctx.Err(); err != nil {
		return len(outcomes), fmt.Errorf("agent: vehicle analysis cut short: %w", err)
	}
	return len(outcomes), nil
}

func (a *Agent) logAction(ctx context.Context, action models.AgentAction) {
	if a.Actions == nil {
		return
	}
	action.AgentVersion = Version
	action.Timestamp = a.now()
	if err := a.Actions.InsertAction(ctx, action); err != nil {
		log.WithFields(log.Fields{
			"action_type": action.ActionType,
			"vehicle_id":  action.VehicleID,
		}).WithError(err).Warn("Failed to log agent action")
	}
}

// Snapshot extracts what the evaluator needs from a vehicle.
func Snapshot(v models.Vehicle) maintenance.VehicleSnapshot {
	return maintenance.VehicleSnapshot{CurrentMileage: v.CurrentMileage, ModelYear: v.Year}
}

// ToServiceRecords converts stored records for the evaluator.
func ToServiceRecords(history []models.ServiceRecord) []maintenance.ServiceRecord {
	out := make([]maintenance.ServiceRecord, len(history))
	for i, r := range history {
		out[i] = maintenance.ServiceRecord{
			ServiceType:      r.ServiceType,
			DatePerformed:    r.DatePerformed,
			MileageAtService: r.MileageAtService,
		}
	}
	return out
}

func toHistoryFacts(history []models.ServiceRecord) []advisor.HistoryFact {
	out := make([]advisor.HistoryFact, len(history))
	for i, r := range history {
		out[i] = advisor.HistoryFact{
			ServiceType:      r.ServiceType,
			DatePerformed:    r.DatePerformed,
			MileageAtService: r.MileageAtService,
			Cost:             r.Cost,
			ShopName:         r.ShopName,
		}
	}
	return out
}
