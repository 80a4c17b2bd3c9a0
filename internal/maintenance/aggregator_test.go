package maintenance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serviceTypes(recs []Recommendation) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ServiceType
	}
	return out
}

func TestAggregate_SortsByPriority(t *testing.T) {
	catalog, err := NewCatalog(
		mileageOnly("C", 1000, 6),
		mileageOnly("A", 1000, 10),
		mileageOnly("B", 1000, 9),
	)
	require.NoError(t, err)

	recs, err := Aggregate(VehicleSnapshot{CurrentMileage: 5000}, nil, catalog, evalNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, serviceTypes(recs))
}

func TestAggregate_EqualPrioritiesKeepCatalogOrder(t *testing.T) {
	catalog, err := NewCatalog(
		mileageOnly("first", 1000, 5),
		mileageOnly("top", 1000, 7),
		mileageOnly("second", 1000, 5),
		mileageOnly("third", 1000, 5),
	)
	require.NoError(t, err)

	recs, err := Aggregate(VehicleSnapshot{CurrentMileage: 100}, nil, catalog, evalNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"top", "first", "second", "third"}, serviceTypes(recs))
}

func TestAggregate_FiltersCurrentItems(t *testing.T) {
	records := []ServiceRecord{
		{ServiceType: OilChange, DatePerformed: daysAgo(20), MileageAtService: 41000},
		{ServiceType: BrakeInspection, DatePerformed: daysAgo(330), MileageAtService: 40000},
		{ServiceType: TireRotation, DatePerformed: daysAgo(20), MileageAtService: 30000},
		{ServiceType: TransmissionService, DatePerformed: daysAgo(900), MileageAtService: 40000},
		{ServiceType: AirFilter, DatePerformed: daysAgo(20), MileageAtService: 41000},
	}

	recs, err := Aggregate(VehicleSnapshot{CurrentMileage: 42000}, records, DefaultCatalog(), evalNow)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, BrakeInspection, recs[0].ServiceType)
	assert.Equal(t, StatusDueSoon, recs[0].Status)
	assert.True(t, recs[0].SafetyCritical)
	assert.Equal(t, "brake_inspection due soon (2000 miles, 11 months since last service)", recs[0].Reason)
	assert.Equal(t, CostRange{Min: 100, Max: 300}, recs[0].EstimatedCost)

	assert.Equal(t, TireRotation, recs[1].ServiceType)
	assert.Equal(t, StatusOverdue, recs[1].Status)
	assert.Equal(t, "12000 miles since last tire_rotation", recs[1].Reason)
	assert.Equal(t, 6, recs[1].Priority)
}

func TestAggregate_ReasonForTimeOverdue(t *testing.T) {
	records := []ServiceRecord{{ServiceType: OilChange, DatePerformed: daysAgo(215), MileageAtService: 1000}}
	catalog, err := NewCatalog(DefaultCatalog().entries[0])
	require.NoError(t, err)

	recs, err := Aggregate(VehicleSnapshot{CurrentMileage: 1500}, records, catalog, evalNow)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "7 months since last oil_change", recs[0].Reason)
}

func TestAggregate_NoHistoryFlagsEverything(t *testing.T) {
	recs, err := Aggregate(VehicleSnapshot{CurrentMileage: 0}, nil, DefaultCatalog(), evalNow)
	require.NoError(t, err)
	assert.Equal(t,
		[]string{OilChange, BrakeInspection, TransmissionService, TireRotation, AirFilter},
		serviceTypes(recs))
	for _, r := range recs {
		assert.Equal(t, StatusOverdue, r.Status)
		assert.Equal(t, "no record of "+r.ServiceType, r.Reason)
	}
}

func TestAggregate_PropagatesDataIntegrityError(t *testing.T) {
	records := []ServiceRecord{{ServiceType: OilChange, DatePerformed: daysAgo(5), MileageAtService: 9000}}

	recs, err := Aggregate(VehicleSnapshot{CurrentMileage: 8000}, records, DefaultCatalog(), evalNow)
	assert.ErrorIs(t, err, ErrMileageRegression)
	assert.Nil(t, recs)
}

func TestReport_IncludesAllEntriesInCatalogOrder(t *testing.T) {
	records := []ServiceRecord{{ServiceType: OilChange, DatePerformed: daysAgo(3), MileageAtService: 9900}}

	report, err := Report(VehicleSnapshot{CurrentMileage: 10000}, records, DefaultCatalog(), evalNow)
	require.NoError(t, err)
	require.Len(t, report, DefaultCatalog().Len())
	assert.Equal(t, OilChange, report[0].ServiceType)
	assert.Equal(t, StatusCurrent, report[0].Status)
	require.NotNil(t, report[0].LastService)
	assert.True(t, report[0].LastService.Equal(daysAgo(3)))
	assert.Nil(t, report[1].LastService)
	assert.Equal(t, StatusOverdue, report[1].Status)
}

func TestLastService_PicksMostRecent(t *testing.T) {
	records := []ServiceRecord{
		{ServiceType: OilChange, DatePerformed: daysAgo(100), MileageAtService: 1000},
		{ServiceType: TireRotation, DatePerformed: daysAgo(1), MileageAtService: 9000},
		{ServiceType: OilChange, DatePerformed: daysAgo(10), MileageAtService: 5000},
		{ServiceType: OilChange, DatePerformed: daysAgo(50), MileageAtService: 3000},
	}

	last := LastService(records, OilChange)
	require.NotNil(t, last)
	assert.Equal(t, 5000, last.MileageAtService)
	assert.Nil(t, LastService(records, AirFilter))
}

func TestLastService_TieBreaks(t *testing.T) {
	same := daysAgo(10)
	records := []ServiceRecord{
		{ServiceType: OilChange, DatePerformed: same, MileageAtService: 4000},
		{ServiceType: OilChange, DatePerformed: same, MileageAtService: 4500},
		{ServiceType: OilChange, DatePerformed: same, MileageAtService: 4200},
	}
	assert.Equal(t, 4500, LastService(records, OilChange).MileageAtService)

	records = []ServiceRecord{
		{ServiceType: OilChange, DatePerformed: same.In(time.FixedZone("x", 3600)), MileageAtService: 4000},
		{ServiceType: OilChange, DatePerformed: same, MileageAtService: 4000},
	}
	assert.Equal(t, "x", mustZone(LastService(records, OilChange).DatePerformed))
}

func mustZone(t time.Time) string {
	name, _ := t.Zone()
	return name
}

func TestLastService_ReturnsCopy(t *testing.T) {
	records := []ServiceRecord{{ServiceType: OilChange, DatePerformed: daysAgo(1), MileageAtService: 100}}
	last := LastService(records, OilChange)
	last.MileageAtService = 999
	assert.Equal(t, 100, records[0].MileageAtService)
}

func TestEstimateCost(t *testing.T) {
	assert.Equal(t, CostRange{Min: 30, Max: 80}, EstimateCost(OilChange))
	assert.Equal(t, CostRange{Min: 150, Max: 400}, EstimateCost(TransmissionService))
	assert.Equal(t, CostRange{Min: 50, Max: 200}, EstimateCost("wiper_blades"))
}
