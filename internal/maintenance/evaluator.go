// Package maintenance decides whether a vehicle's service items are current,
// due soon or overdue, and turns those decisions into ranked recommendations.
// Everything here is pure: callers pass the evaluation time explicitly.
package maintenance

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Status is the classification of one service item.
type Status string

const (
	StatusCurrent Status = "current"
	StatusDueSoon Status = "due_soon"
	StatusOverdue Status = "overdue"
)

// Rank orders statuses current < due_soon < overdue.
func (s Status) Rank() int {
	switch s {
	case StatusDueSoon:
		return 1
	case StatusOverdue:
		return 2
	default:
		return 0
	}
}

const (
	daysPerMonth   = 30
	dueSoonPortion = 0.8
)

var (
	ErrMileageRegression = errors.New("vehicle mileage is below the mileage recorded at service")
	ErrServiceInFuture   = errors.New("service record is dated after the evaluation time")
)

// VehicleSnapshot is what the evaluator needs to know about a vehicle.
type VehicleSnapshot struct {
	CurrentMileage int
	ModelYear      int
}

// ServiceRecord is a historical maintenance event.
type ServiceRecord struct {
	ServiceType      string
	DatePerformed    time.Time
	MileageAtService int
}

// ServiceStatus is the evaluator output for one service type.
type ServiceStatus struct {
	ServiceType   string   `json:"service_type"`
	Status        Status   `json:"status"`
	MilesSince    *int     `json:"miles_since,omitempty"`
	MonthsSince   *float64 `json:"months_since,omitempty"`
	OverdueMiles  int      `json:"overdue_miles"`
	OverdueMonths float64  `json:"overdue_months"`
	Priority      int      `json:"priority"`
	Reason        string   `json:"reason,omitempty"`
}

// Evaluate classifies a single service item. last is nil when the vehicle has
// no record of this service type.
func Evaluate(vehicle VehicleSnapshot, last *ServiceRecord, entry ServiceCatalogEntry, now time.Time) (ServiceStatus, error) {
	st := ServiceStatus{
		ServiceType: entry.ServiceType,
		Priority:    entry.Priority,
	}

	if last == nil {
		st.Status = StatusOverdue
		st.OverdueMiles = vehicle.CurrentMileage
		st.Reason = fmt.Sprintf("no record of %s", entry.ServiceType)
		return st, nil
	}

	milesSince := vehicle.CurrentMileage - last.MileageAtService
	if milesSince < 0 {
		return ServiceStatus{}, fmt.Errorf("%w: %s at %d, vehicle at %d",
			ErrMileageRegression, entry.ServiceType, last.MileageAtService, vehicle.CurrentMileage)
	}
	elapsed := now.Sub(last.DatePerformed)
	if elapsed < 0 {
		return ServiceStatus{}, fmt.Errorf("%w: %s on %s", ErrServiceInFuture,
			entry.ServiceType, last.DatePerformed.Format(time.RFC3339))
	}
	daysSince := int(elapsed / (24 * time.Hour))
	monthsSince := float64(daysSince) / daysPerMonth

	st.MilesSince = &milesSince
	st.MonthsSince = &monthsSince

	interval := entry.MileageInterval
	st.OverdueMiles = max(0, milesSince-interval)

	overdueByTime, dueSoonByTime := false, false
	if entry.HasTimeInterval() {
		timeInterval := float64(*entry.TimeIntervalMonths)
		st.OverdueMonths = math.Max(0, monthsSince-timeInterval)
		overdueByTime = monthsSince > timeInterval
		dueSoonByTime = monthsSince > dueSoonPortion*timeInterval
	}

	switch {
	case milesSince > interval || overdueByTime:
		st.Status = StatusOverdue
	case float64(milesSince) > dueSoonPortion*float64(interval) || dueSoonByTime:
		st.Status = StatusDueSoon
	default:
		st.Status = StatusCurrent
	}
	return st, nil
}
