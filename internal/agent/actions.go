package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/carbuddy/internal/advisor"
	"github.com/ukydev/carbuddy/internal/maintenance"
	"github.com/ukydev/carbuddy/internal/models"
	"github.com/ukydev/carbuddy/internal/notify"
	"github.com/ukydev/carbuddy/internal/places"
)

const (
	pushedShops  = 3
	emailedShops = 5
)

// ActionOutcome records what happened to one planned action.
type ActionOutcome struct {
	Type        string          `json:"type" bson:"type"`
	ServiceType string          `json:"service_type,omitempty" bson:"service_type,omitempty"`
	Results     []notify.Result `json:"results" bson:"results"`
	Error       string          `json:"error,omitempty" bson:"error,omitempty"`
}

func (a *Agent) executeActions(ctx context.Context, user models.User, vehicle models.Vehicle, plan advisor.ActionPlan, recs []maintenance.Recommendation) []ActionOutcome {
	urgent := hasUrgent(recs)
	outcomes := make([]ActionOutcome, 0, len(plan.Actions))
	for _, action := range plan.Actions {
		if ctx.Err() != nil {
			break
		}
		action.ServiceType = a.serviceTypeFor(action.ServiceType, recs)

		out := ActionOutcome{Type: action.Type, ServiceType: action.ServiceType}
		switch action.Type {
		case advisor.ActionNotification:
			out.Results = a.sendNotification(ctx, user, vehicle, action)
			if urgent && sentSMS(out.Results) {
				// The owner was just texted; the hourly urgent check waits a cooldown.
				a.noteUrgent(vehicle.ID.Hex(), a.now())
			}
		case advisor.ActionResearchMechanics:
			out.Results, out.Error = a.researchMechanics(ctx, user, action)
		case advisor.ActionScheduleFollowup:
			msg := Personalize(vehicle, action.Message)
			out.Results = []notify.Result{a.Notifier.ScheduleNotification(ctx, user.ID.Hex(), msg, a.followupTime(user, action.Timing))}
		case advisor.ActionPriceResearch:
			out.Results, out.Error = a.priceResearch(ctx, user, vehicle, action)
		default:
			out.Error = "unknown action type"
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

// serviceTypeFor returns serviceType when the catalog knows it, otherwise the
// top recommendation's type, otherwise "".
func (a *Agent) serviceTypeFor(serviceType string, recs []maintenance.Recommendation) string {
	if serviceType != "" {
		if _, err := a.Catalog.Lookup(serviceType); err == nil {
			return serviceType
		}
		log.WithField("service_type", serviceType).Warn("Planned service type is not in the catalog")
	}
	if len(recs) > 0 {
		return recs[0].ServiceType
	}
	return ""
}

func hasUrgent(recs []maintenance.Recommendation) bool {
	for _, r := range recs {
		if r.Status == maintenance.StatusOverdue && r.SafetyCritical {
			return true
		}
	}
	return false
}

func sentSMS(results []notify.Result) bool {
	for _, r := range results {
		if r.Channel == notify.ChannelSMS && r.OK() {
			return true
		}
	}
	return false
}

// Personalize prefixes message with the vehicle's name.
func Personalize(v models.Vehicle, message string) string {
	return fmt.Sprintf("Hi! Your %s %s", v.DisplayName(), strings.TrimSpace(message))
}

func (a *Agent) sendNotification(ctx context.Context, user models.User, vehicle models.Vehicle, action advisor.Action) []notify.Result {
	msg := Personalize(vehicle, action.Message)
	userID := user.ID.Hex()

	switch action.Timing {
	case advisor.TimingWithin24h, advisor.TimingWithinWeek:
		return []notify.Result{a.Notifier.ScheduleNotification(ctx, userID, msg, a.deliveryTime(user, action.Timing))}
	}

	results := []notify.Result{a.Notifier.SendPush(ctx, userID, msg)}
	if action.Priority == advisor.PriorityHigh {
		results = append(results, a.Notifier.SendSMS(ctx, user.Phone, msg))
	}
	return results
}

func (a *Agent) researchMechanics(ctx context.Context, user models.User, action advisor.Action) ([]notify.Result, string) {
	if action.ServiceType == "" {
		return nil, "no service type to research"
	}
	prefs := user.EffectivePreferences()
	loc := DefaultLocation
	if user.HomeLocation != nil && !user.HomeLocation.IsZero() {
		loc = *user.HomeLocation
	}
	radius := a.cfg.SearchRadiusMiles
	if prefs.MaxTravelMiles > 0 && prefs.MaxTravelMiles < radius {
		radius = prefs.MaxTravelMiles
	}

	shops, err := a.Shops.FindNearby(ctx, loc, action.ServiceType, radius)
	if err != nil {
		log.WithFields(log.Fields{
			"user_id":      user.ID.Hex(),
			"service_type": action.ServiceType,
		}).WithError(err).Warn("Mechanic research failed")
		return nil, err.Error()
	}
	ranked := places.Rank(shops)

	service := humanize(action.ServiceType)
	msg := fmt.Sprintf("I found some great options for your %s:\n%s", service, places.FormatShops(ranked, pushedShops))
	results := []notify.Result{a.Notifier.SendPush(ctx, user.ID.Hex(), msg)}

	if user.Email != "" && len(ranked) > 0 {
		results = append(results, a.Notifier.SendEmail(ctx, user.Email,
			fmt.Sprintf("Repair shops for your %s", service), shopEmail(ranked, emailedShops)))
	}
	return results, ""
}

func shopEmail(shops []places.Shop, n int) string {
	if len(shops) > n {
		shops = shops[:n]
	}
	var b strings.Builder
	b.WriteString("Here are the best-rated shops near you:\n\n")
	for i, s := range shops {
		fmt.Fprintf(&b, "%d. %s", i+1, s.Name)
		if s.Rating > 0 {
			fmt.Fprintf(&b, " (%.1f stars)", s.Rating)
		}
		fmt.Fprintf(&b, ", %.1f miles\n", s.DistanceMiles)
		if s.Address != "" {
			fmt.Fprintf(&b, "   %s\n", s.Address)
		}
		if s.Phone != "" {
			fmt.Fprintf(&b, "   %s\n", s.Phone)
		}
		if s.Website != "" {
			fmt.Fprintf(&b, "   %s\n", s.Website)
		}
		fmt.Fprintf(&b, "   %s\n", s.Reviews.Summary)
	}
	return b.String()
}

func (a *Agent) priceResearch(ctx context.Context, user models.User, vehicle models.Vehicle, action advisor.Action) ([]notify.Result, string) {
	if action.ServiceType == "" {
		return nil, "no service type to price"
	}
	cost := maintenance.EstimateCost(action.ServiceType)
	msg := fmt.Sprintf("%s typically costs $%d-$%d for your %s.",
		capitalize(humanize(action.ServiceType)), cost.Min, cost.Max, vehicle.DisplayName())
	if action.Message != "" {
		msg += " " + action.Message
	}
	return []notify.Result{a.Notifier.SendPush(ctx, user.ID.Hex(), msg)}, ""
}

// deliveryTime is the next occurrence of the owner's notification hour, one
// week out for within_week.
func (a *Agent) deliveryTime(user models.User, timing string) time.Time {
	t := NextPreferredTime(a.now(), user.EffectivePreferences().NotificationHour)
	if timing == advisor.TimingWithinWeek {
		t = t.AddDate(0, 0, 6)
	}
	return t
}

func (a *Agent) followupTime(user models.User, timing string) time.Time {
	if timing == advisor.TimingWithin24h {
		return a.deliveryTime(user, timing)
	}
	return a.deliveryTime(user, advisor.TimingWithinWeek)
}

// NextPreferredTime returns the first time strictly after now at hour:00 UTC.
func NextPreferredTime(now time.Time, hour int) time.Time {
	now = now.UTC()
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !t.After(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

func humanize(serviceType string) string {
	return strings.ReplaceAll(serviceType, "_", " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
