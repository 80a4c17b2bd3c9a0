package maintenance

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// CostRange is an estimated price range in USD.
type CostRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

var costEstimates = map[string]CostRange{
	OilChange:           {Min: 30, Max: 80},
	BrakeInspection:     {Min: 100, Max: 300},
	TireRotation:        {Min: 20, Max: 50},
	AirFilter:           {Min: 15, Max: 40},
	TransmissionService: {Min: 150, Max: 400},
}

var defaultCost = CostRange{Min: 50, Max: 200}

// EstimateCost returns the static cost range for a service type.
func EstimateCost(serviceType string) CostRange {
	if c, ok := costEstimates[serviceType]; ok {
		return c
	}
	return defaultCost
}

// Recommendation is a service item that needs attention.
type Recommendation struct {
	ServiceType    string    `json:"service_type"`
	Status         Status    `json:"status"`
	Reason         string    `json:"reason"`
	Priority       int       `json:"priority"`
	SafetyCritical bool      `json:"safety_critical"`
	EstimatedCost  CostRange `json:"estimated_cost"`
}

// ServiceReportItem pairs a catalog entry with its evaluated status.
type ServiceReportItem struct {
	ServiceStatus
	SafetyCritical bool       `json:"safety_critical"`
	LastService    *time.Time `json:"last_service,omitempty"`
}

// LastService returns the most recent record of serviceType, or nil. Records
// sharing a date are ordered by mileage; a full tie keeps the earliest one in
// records.
func LastService(records []ServiceRecord, serviceType string) *ServiceRecord {
	var best *ServiceRecord
	for i := range records {
		r := &records[i]
		if r.ServiceType != serviceType {
			continue
		}
		if best == nil ||
			r.DatePerformed.After(best.DatePerformed) ||
			(r.DatePerformed.Equal(best.DatePerformed) && r.MileageAtService > best.MileageAtService) {
			best = r
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

// Report evaluates every catalog entry, in catalog order.
func Report(vehicle VehicleSnapshot, records []ServiceRecord, catalog Catalog, now time.Time) ([]ServiceReportItem, error) {
	items := make([]ServiceReportItem, 0, catalog.Len())
	for _, entry := range catalog.Entries() {
		last := LastService(records, entry.ServiceType)
		st, err := Evaluate(vehicle, last, entry, now)
		if err != nil {
			return nil, fmt.Errorf("maintenance: %s: %w", entry.ServiceType, err)
		}
		item := ServiceReportItem{ServiceStatus: st, SafetyCritical: entry.SafetyCritical}
		if last != nil {
			d := last.DatePerformed
			item.LastService = &d
		}
		items = append(items, item)
	}
	return items, nil
}

// Aggregate returns the due-soon and overdue items, highest priority first.
// Items of equal priority keep catalog order.
func Aggregate(vehicle VehicleSnapshot, records []ServiceRecord, catalog Catalog, now time.Time) ([]Recommendation, error) {
	report, err := Report(vehicle, records, catalog, now)
	if err != nil {
		return nil, err
	}
	recs := make([]Recommendation, 0, len(report))
	for _, item := range report {
		if item.Status == StatusCurrent {
			continue
		}
		recs = append(recs, Recommendation{
			ServiceType:    item.ServiceType,
			Status:         item.Status,
			Reason:         reasonFor(item.ServiceStatus, catalog),
			Priority:       item.Priority,
			SafetyCritical: item.SafetyCritical,
			EstimatedCost:  EstimateCost(item.ServiceType),
		})
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Priority > recs[j].Priority
	})
	return recs, nil
}

func reasonFor(st ServiceStatus, catalog Catalog) string {
	if st.MilesSince == nil || st.MonthsSince == nil {
		return st.Reason
	}
	miles, months := *st.MilesSince, int(math.Floor(*st.MonthsSince))
	if st.Status == StatusOverdue {
		entry, err := catalog.Lookup(st.ServiceType)
		if err == nil && miles <= entry.MileageInterval {
			return fmt.Sprintf("%d months since last %s", months, st.ServiceType)
		}
		return fmt.Sprintf("%d miles since last %s", miles, st.ServiceType)
	}
	return fmt.Sprintf("%s due soon (%d miles, %d months since last service)", st.ServiceType, miles, months)
}
