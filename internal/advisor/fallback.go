package advisor

import (
	"fmt"
	"strings"

	"github.com/ukydev/carbuddy/internal/maintenance"
)

// FallbackRecommendation builds an analysis from the deterministic
// recommendations alone.
func FallbackRecommendation(recs []maintenance.Recommendation) ParsedRecommendation {
	out := ParsedRecommendation{
		UrgentItems:   []string{},
		UpcomingItems: []string{},
		PreventiveSuggestions: []string{
			"Check tire pressure and fluid levels once a month.",
		},
	}
	for _, r := range recs {
		switch r.Status {
		case maintenance.StatusOverdue:
			out.UrgentItems = append(out.UrgentItems, r.Reason)
		case maintenance.StatusDueSoon:
			out.UpcomingItems = append(out.UpcomingItems, r.Reason)
		}
	}

	switch {
	case len(out.UrgentItems) > 0:
		out.MessageToUser = fmt.Sprintf("You have %d overdue maintenance item(s). Most important: %s.",
			len(out.UrgentItems), out.UrgentItems[0])
	case len(out.UpcomingItems) > 0:
		out.MessageToUser = fmt.Sprintf("You have %d maintenance item(s) coming up soon. Next: %s.",
			len(out.UpcomingItems), out.UpcomingItems[0])
	default:
		out.MessageToUser = "Your vehicle is up to date on maintenance."
	}
	return out
}

// FallbackActionPlan builds a plan from the deterministic recommendations
// alone. recs must be sorted by priority, as Aggregate returns them.
func FallbackActionPlan(recs []maintenance.Recommendation) ActionPlan {
	if len(recs) == 0 {
		return ActionPlan{Actions: []Action{}, Reasoning: "no maintenance items need attention"}
	}

	top := recs[0]
	priority, timing := PriorityLow, TimingWithinWeek
	switch {
	case top.Status == maintenance.StatusOverdue && top.SafetyCritical:
		priority, timing = PriorityHigh, TimingImmediate
	case top.Status == maintenance.StatusOverdue:
		priority, timing = PriorityMedium, TimingWithin24h
	}

	actions := []Action{{
		Type:        ActionNotification,
		Priority:    priority,
		Message:     fmt.Sprintf("needs attention: %s.", top.Reason),
		Timing:      timing,
		ServiceType: top.ServiceType,
	}}
	if top.Status == maintenance.StatusOverdue {
		actions = append(actions, Action{
			Type:        ActionResearchMechanics,
			Priority:    priority,
			Message:     fmt.Sprintf("Shops for %s", humanize(top.ServiceType)),
			Timing:      TimingImmediate,
			ServiceType: top.ServiceType,
		})
	}

	return ActionPlan{
		Actions:   actions,
		Reasoning: fmt.Sprintf("rule-based plan from %d maintenance item(s)", len(recs)),
	}
}

func humanize(serviceType string) string {
	return strings.ReplaceAll(serviceType, "_", " ")
}
