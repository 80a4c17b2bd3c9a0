package advisor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/carbuddy/internal/maintenance"
)

// ParseError reports model output that could not be turned into a value.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("advisor: unparseable model output: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// stripFences removes a surrounding Markdown code fence, with or without a
// language tag.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// items decodes a list whose elements are strings or small objects.
type items []string

func (it *items) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*it = nil
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			continue
		}
		var obj map[string]interface{}
		if err := json.Unmarshal(r, &obj); err != nil {
			return fmt.Errorf("item is neither string nor object: %s", r)
		}
		if s := describe(obj); s != "" {
			out = append(out, s)
		}
	}
	*it = out
	return nil
}

func describe(obj map[string]interface{}) string {
	pick := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := obj[k].(string); ok && v != "" {
				return v
			}
		}
		return ""
	}
	head := pick("item", "service", "service_type", "name", "title")
	detail := pick("reason", "description", "details", "message")
	switch {
	case head != "" && detail != "":
		return head + ": " + detail
	case head != "":
		return head
	case detail != "":
		return detail
	}
	b, _ := json.Marshal(obj)
	return string(b)
}

// ParseRecommendation parses the model's analysis.
func ParseRecommendation(raw string) (ParsedRecommendation, error) {
	var doc struct {
		UrgentItems           items  `json:"urgent_items"`
		UpcomingItems         items  `json:"upcoming_items"`
		PreventiveSuggestions items  `json:"preventive_suggestions"`
		MessageToUser         string `json:"message_to_user"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &doc); err != nil {
		return ParsedRecommendation{}, &ParseError{Raw: raw, Err: err}
	}
	if strings.TrimSpace(doc.MessageToUser) == "" {
		return ParsedRecommendation{}, &ParseError{Raw: raw, Err: errors.New("missing message_to_user")}
	}
	return ParsedRecommendation{
		UrgentItems:           doc.UrgentItems,
		UpcomingItems:         doc.UpcomingItems,
		PreventiveSuggestions: doc.PreventiveSuggestions,
		MessageToUser:         strings.TrimSpace(doc.MessageToUser),
	}, nil
}

// ParseActionPlan parses the model's action plan. Actions of unknown type are
// dropped, as are notifications and follow-ups without a message. Unknown
// priorities and timings are normalised to medium and immediate. A
// service_type missing from catalog is cleared so the caller picks one.
func ParseActionPlan(raw string, catalog maintenance.Catalog) (ActionPlan, error) {
	var plan ActionPlan
	if err := json.Unmarshal([]byte(stripFences(raw)), &plan); err != nil {
		return ActionPlan{}, &ParseError{Raw: raw, Err: err}
	}

	kept := make([]Action, 0, len(plan.Actions))
	for _, a := range plan.Actions {
		a.Type = strings.ToLower(strings.TrimSpace(a.Type))
		if !isKnownAction(a.Type) {
			log.WithField("type", a.Type).Debug("Dropping action of unknown type")
			continue
		}
		a.Message = strings.TrimSpace(a.Message)
		if a.Message == "" && needsMessage(a.Type) {
			log.WithField("type", a.Type).Debug("Dropping action without message")
			continue
		}
		a.Priority = normalise(a.Priority, PriorityMedium, PriorityHigh, PriorityMedium, PriorityLow)
		a.Timing = normalise(a.Timing, TimingImmediate, TimingImmediate, TimingWithin24h, TimingWithinWeek)
		if a.ServiceType = strings.ToLower(strings.TrimSpace(a.ServiceType)); a.ServiceType != "" {
			if _, err := catalog.Lookup(a.ServiceType); err != nil {
				log.WithField("service_type", a.ServiceType).Debug("Clearing service type missing from catalog")
				a.ServiceType = ""
			}
		}
		kept = append(kept, a)
	}
	plan.Actions = kept
	return plan, nil
}

func needsMessage(t string) bool {
	return t == ActionNotification || t == ActionScheduleFollowup
}

func isKnownAction(t string) bool {
	switch t {
	case ActionNotification, ActionResearchMechanics, ActionScheduleFollowup, ActionPriceResearch:
		return true
	}
	return false
}

func normalise(v, fallback string, allowed ...string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return fallback
}
