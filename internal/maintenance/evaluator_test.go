package maintenance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var evalNow = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func mileageOnly(serviceType string, interval, priority int) ServiceCatalogEntry {
	return ServiceCatalogEntry{ServiceType: serviceType, MileageInterval: interval, Priority: priority}
}

func daysAgo(n int) time.Time {
	return evalNow.Add(-time.Duration(n) * 24 * time.Hour)
}

func TestEvaluate_NoRecordIsOverdue(t *testing.T) {
	entry := mileageOnly("oil_change", 5000, 10)

	for _, mileage := range []int{0, 1, 4999, 120000} {
		st, err := Evaluate(VehicleSnapshot{CurrentMileage: mileage}, nil, entry, evalNow)
		require.NoError(t, err)
		assert.Equal(t, StatusOverdue, st.Status)
		assert.Equal(t, mileage, st.OverdueMiles)
		assert.Zero(t, st.OverdueMonths)
		assert.Nil(t, st.MilesSince)
		assert.Nil(t, st.MonthsSince)
		assert.Equal(t, "no record of oil_change", st.Reason)
		assert.Equal(t, 10, st.Priority)
	}
}

func TestEvaluate_Examples(t *testing.T) {
	tests := []struct {
		name          string
		entry         ServiceCatalogEntry
		lastMileage   int
		lastDaysAgo   int
		current       int
		want          Status
		wantOverdueMi int
	}{
		{"at due-soon boundary stays current", mileageOnly("oil_change", 5000, 10), 10000, 400, 14000, StatusCurrent, 0},
		{"just past due-soon boundary", mileageOnly("oil_change", 5000, 10), 10000, 400, 14001, StatusDueSoon, 0},
		{"at interval is due soon", mileageOnly("oil_change", 5000, 10), 10000, 400, 15000, StatusDueSoon, 0},
		{"past interval is overdue", mileageOnly("oil_change", 5000, 10), 10000, 400, 15500, StatusOverdue, 500},
		{"time interval drives due soon", DefaultCatalog().entries[1], 30000, 330, 32000, StatusDueSoon, 0},
		{"time interval drives overdue", DefaultCatalog().entries[1], 30000, 400, 32000, StatusOverdue, 0},
		{"recent and low mileage is current", DefaultCatalog().entries[0], 30000, 10, 30100, StatusCurrent, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			last := &ServiceRecord{ServiceType: tt.entry.ServiceType, DatePerformed: daysAgo(tt.lastDaysAgo), MileageAtService: tt.lastMileage}
			st, err := Evaluate(VehicleSnapshot{CurrentMileage: tt.current}, last, tt.entry, evalNow)
			require.NoError(t, err)
			assert.Equal(t, tt.want, st.Status)
			assert.Equal(t, tt.wantOverdueMi, st.OverdueMiles)
			require.NotNil(t, st.MilesSince)
			assert.Equal(t, tt.current-tt.lastMileage, *st.MilesSince)
			assert.Empty(t, st.Reason)
		})
	}
}

func TestEvaluate_MonthsSinceUsesThirtyDayMonths(t *testing.T) {
	entry := DefaultCatalog().entries[1] // brake_inspection, 12 months
	last := &ServiceRecord{ServiceType: entry.ServiceType, DatePerformed: daysAgo(330), MileageAtService: 1000}

	st, err := Evaluate(VehicleSnapshot{CurrentMileage: 3000}, last, entry, evalNow)
	require.NoError(t, err)
	require.NotNil(t, st.MonthsSince)
	assert.InDelta(t, 11.0, *st.MonthsSince, 1e-9)
	assert.Equal(t, StatusDueSoon, st.Status)
	assert.Zero(t, st.OverdueMonths)

	last.DatePerformed = daysAgo(450)
	st, err = Evaluate(VehicleSnapshot{CurrentMileage: 3000}, last, entry, evalNow)
	require.NoError(t, err)
	assert.Equal(t, StatusOverdue, st.Status)
	assert.InDelta(t, 3.0, st.OverdueMonths, 1e-9)
	assert.Zero(t, st.OverdueMiles)
}

func TestEvaluate_PartialDaysAreTruncated(t *testing.T) {
	entry := mileageOnly("x", 1000, 1)
	last := &ServiceRecord{ServiceType: "x", DatePerformed: evalNow.Add(-47 * time.Hour), MileageAtService: 0}

	st, err := Evaluate(VehicleSnapshot{CurrentMileage: 0}, last, entry, evalNow)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/30, *st.MonthsSince, 1e-9)
}

func TestEvaluate_MileageOnlyIgnoresElapsedTime(t *testing.T) {
	entry := mileageOnly("transmission_service", 30000, 7)
	last := &ServiceRecord{ServiceType: entry.ServiceType, DatePerformed: daysAgo(3650), MileageAtService: 50000}

	st, err := Evaluate(VehicleSnapshot{CurrentMileage: 51000}, last, entry, evalNow)
	require.NoError(t, err)
	assert.Equal(t, StatusCurrent, st.Status)
	assert.Zero(t, st.OverdueMonths)
}

func TestEvaluate_OverdueMagnitudesNeverNegative(t *testing.T) {
	for _, entry := range DefaultCatalog().Entries() {
		for _, days := range []int{0, 30, 200, 1000} {
			for _, miles := range []int{0, 100, 6000, 40000} {
				last := &ServiceRecord{ServiceType: entry.ServiceType, DatePerformed: daysAgo(days), MileageAtService: 20000}
				st, err := Evaluate(VehicleSnapshot{CurrentMileage: 20000 + miles}, last, entry, evalNow)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, st.OverdueMiles, 0)
				assert.GreaterOrEqual(t, st.OverdueMonths, 0.0)
			}
		}
	}
}

func TestEvaluate_MonotonicInMileage(t *testing.T) {
	for _, entry := range DefaultCatalog().Entries() {
		last := &ServiceRecord{ServiceType: entry.ServiceType, DatePerformed: daysAgo(90), MileageAtService: 10000}
		prev := -1
		for mileage := 10000; mileage <= 60000; mileage += 250 {
			st, err := Evaluate(VehicleSnapshot{CurrentMileage: mileage}, last, entry, evalNow)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, st.Status.Rank(), prev, "%s regressed at %d", entry.ServiceType, mileage)
			prev = st.Status.Rank()
		}
	}
}

func TestEvaluate_DataIntegrityErrors(t *testing.T) {
	entry := DefaultCatalog().entries[0]

	last := &ServiceRecord{ServiceType: entry.ServiceType, DatePerformed: daysAgo(10), MileageAtService: 20000}
	_, err := Evaluate(VehicleSnapshot{CurrentMileage: 19999}, last, entry, evalNow)
	assert.ErrorIs(t, err, ErrMileageRegression)

	last = &ServiceRecord{ServiceType: entry.ServiceType, DatePerformed: evalNow.Add(time.Hour), MileageAtService: 100}
	_, err = Evaluate(VehicleSnapshot{CurrentMileage: 200}, last, entry, evalNow)
	assert.ErrorIs(t, err, ErrServiceInFuture)
}

func TestEvaluate_PriorityIsStatic(t *testing.T) {
	entry := mileageOnly("tire_rotation", 7500, 6)
	for _, current := range []int{1000, 8000, 100000} {
		last := &ServiceRecord{ServiceType: entry.ServiceType, DatePerformed: daysAgo(1), MileageAtService: 1000}
		st, err := Evaluate(VehicleSnapshot{CurrentMileage: current}, last, entry, evalNow)
		require.NoError(t, err)
		assert.Equal(t, 6, st.Priority)
	}
}
