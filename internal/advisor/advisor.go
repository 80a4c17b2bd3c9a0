// Package advisor asks a generative model for maintenance advice and action
// plans, and parses its answers into typed values.
//
// Model output is untrusted. Parse failures surface as *ParseError and the
// caller picks a fallback explicitly (FallbackRecommendation,
// FallbackActionPlan); malformed text never becomes domain data.
package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ukydev/carbuddy/internal/maintenance"
	"github.com/ukydev/carbuddy/internal/models"
)

// ErrUnavailable is returned when the service has no completer configured.
var ErrUnavailable = errors.New("advisor: no model configured")

// Action types.
const (
	ActionNotification      = "notification"
	ActionResearchMechanics = "research_mechanics"
	ActionScheduleFollowup  = "schedule_followup"
	ActionPriceResearch     = "price_research"
)

// Priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Timings.
const (
	TimingImmediate  = "immediate"
	TimingWithin24h  = "within_24h"
	TimingWithinWeek = "within_week"
)

const (
	recommendationTemperature = 0.7
	decisionTemperature       = 0.3
)

// VehicleFacts is the vehicle as presented to the model.
type VehicleFacts struct {
	ID             string                          `json:"id"`
	Make           string                          `json:"make"`
	Model          string                          `json:"model"`
	Year           int                             `json:"year"`
	CurrentMileage int                             `json:"current_mileage"`
	ServiceStatus  []maintenance.ServiceReportItem `json:"service_status"`
}

// HistoryFact is one past service as presented to the model.
type HistoryFact struct {
	ServiceType      string    `json:"service_type"`
	DatePerformed    time.Time `json:"date_performed"`
	MileageAtService int       `json:"mileage_at_service"`
	Cost             float64   `json:"cost,omitempty"`
	ShopName         string    `json:"shop_name,omitempty"`
}

// VehicleContext is everything the model sees when deciding what to do.
type VehicleContext struct {
	Vehicle         VehicleFacts                 `json:"car_data"`
	History         []HistoryFact                `json:"maintenance_history"`
	Recommendations []maintenance.Recommendation `json:"recommendations"`
	Analysis        ParsedRecommendation         `json:"analysis"`
	Preferences     models.Preferences           `json:"user_preferences"`
}

// ParsedRecommendation is the model's maintenance analysis.
type ParsedRecommendation struct {
	UrgentItems           []string `json:"urgent_items"`
	UpcomingItems         []string `json:"upcoming_items"`
	PreventiveSuggestions []string `json:"preventive_suggestions"`
	MessageToUser         string   `json:"message_to_user"`
}

// Action is one step of an action plan.
type Action struct {
	Type        string `json:"type"`
	Priority    string `json:"priority"`
	Message     string `json:"message"`
	Timing      string `json:"timing"`
	ServiceType string `json:"service_type,omitempty"`
}

// ActionPlan is what the agent should do for one vehicle.
type ActionPlan struct {
	Actions   []Action `json:"actions"`
	Reasoning string   `json:"reasoning"`
}

// Service produces recommendations, action plans and image diagnoses.
type Service struct {
	completer Completer
	catalog   maintenance.Catalog
}

// New creates a Service that checks service types against the default
// catalog. A nil completer makes every call fail with ErrUnavailable.
func New(completer Completer) *Service {
	return &Service{completer: completer, catalog: maintenance.DefaultCatalog()}
}

// WithCatalog sets the catalog planned service types must belong to.
func (s *Service) WithCatalog(c maintenance.Catalog) *Service {
	s.catalog = c
	return s
}

// GenerateRecommendation asks the model to analyze a vehicle and its history.
func (s *Service) GenerateRecommendation(ctx context.Context, facts VehicleFacts, history []HistoryFact) (ParsedRecommendation, error) {
	if s == nil || s.completer == nil {
		return ParsedRecommendation{}, ErrUnavailable
	}
	carData, err := json.Marshal(facts)
	if err != nil {
		return ParsedRecommendation{}, fmt.Errorf("advisor: failed to encode vehicle: %w", err)
	}
	historyData, err := json.Marshal(history)
	if err != nil {
		return ParsedRecommendation{}, fmt.Errorf("advisor: failed to encode history: %w", err)
	}

	prompt := fmt.Sprintf("Car Data: %s\nMaintenance History: %s\n\nPlease analyze and provide maintenance recommendations.",
		carData, historyData)
	raw, err := s.completer.Complete(ctx, recommendationSystemPrompt, prompt, recommendationTemperature)
	if err != nil {
		return ParsedRecommendation{}, err
	}
	return ParseRecommendation(raw)
}

// DecideAction asks the model which actions to take for a vehicle.
func (s *Service) DecideAction(ctx context.Context, vc VehicleContext) (ActionPlan, error) {
	if s == nil || s.completer == nil {
		return ActionPlan{}, ErrUnavailable
	}
	payload, err := json.Marshal(vc)
	if err != nil {
		return ActionPlan{}, fmt.Errorf("advisor: failed to encode context: %w", err)
	}
	raw, err := s.completer.Complete(ctx, decisionSystemPrompt, string(payload), decisionTemperature)
	if err != nil {
		return ActionPlan{}, err
	}
	return ParseActionPlan(raw, s.catalog)
}

const recommendationSystemPrompt = `You are CarBuddy, an autonomous car maintenance agent. Your role is to:

1. Analyze car data and maintenance history
2. Identify upcoming maintenance needs
3. Prioritize recommendations by safety and cost
4. Generate proactive suggestions
5. Provide reasoning for each recommendation

Be conversational but authoritative. Focus on preventing problems before they occur.

Respond with JSON only, with this structure:
{
  "urgent_items": ["..."],
  "upcoming_items": ["..."],
  "preventive_suggestions": ["..."],
  "message_to_user": "Friendly personalized message"
}`

const decisionSystemPrompt = `You are an autonomous agent that decides which car maintenance actions to take.

Given the context, decide:
- Should we send a notification?
- Should we research mechanics?
- Should we schedule a follow-up?
- Should we research prices?
- What is the urgency?

Be proactive but not pushy. Only take actions that clearly benefit the user.
Notification messages are appended to "Hi! Your <year> <make> <model>", so start them with a verb.

Respond with JSON only:
{
  "actions": [
    {
      "type": "notification|research_mechanics|schedule_followup|price_research",
      "priority": "high|medium|low",
      "message": "...",
      "timing": "immediate|within_24h|within_week",
      "service_type": "oil_change"
    }
  ],
  "reasoning": "Why these actions were chosen"
}`
