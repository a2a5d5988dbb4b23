package tracking_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/apperrors"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/bus"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/geo"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/testsupport"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/tracking"
)

func setupReportService(t *testing.T) (*tracking.Service, *tracking.Store) {
	t.Helper()
	dbManager, logger := testsupport.SetupTestDBManager(t)
	store := tracking.NewStore(dbManager, logger)
	svc := tracking.NewService(store, bus.New(logger), geo.NewResolver("", logger), logger)
	return svc, store
}

func TestGenerateReportValidation(t *testing.T) {
	svc, _ := setupReportService(t)

	cases := []struct {
		name       string
		reportType tracking.ReportType
		params     tracking.ReportParams
		field      string
	}{
		{
			name:       "unknown report type",
			reportType: tracking.ReportType("bogus"),
			params:     tracking.ReportParams{StartDate: "2026-01-01", EndDate: "2026-01-31"},
			field:      "reportType",
		},
		{
			name:       "missing dates",
			reportType: tracking.ReportPageViews,
			params:     tracking.ReportParams{},
			field:      "dateRange",
		},
		{
			name:       "inverted date range",
			reportType: tracking.ReportPageViews,
			params:     tracking.ReportParams{StartDate: "2026-02-01", EndDate: "2026-01-01"},
			field:      "dateRange",
		},
		{
			name:       "grouping not allowed for report type",
			reportType: tracking.ReportEvents,
			params:     tracking.ReportParams{StartDate: "2026-01-01", EndDate: "2026-01-31", GroupBy: "device"},
			field:      "groupBy",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.GenerateReport(tc.reportType, tc.params)
			var verr *apperrors.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestGenerateReportEmptyRangeReturnsEmptySlice(t *testing.T) {
	svc, _ := setupReportService(t)

	for _, reportType := range []tracking.ReportType{
		tracking.ReportUserActivity,
		tracking.ReportPageViews,
		tracking.ReportEvents,
		tracking.ReportConversion,
	} {
		rows, err := svc.GenerateReport(reportType, tracking.ReportParams{
			StartDate: "2020-01-01",
			EndDate:   "2020-01-31",
		})
		require.NoError(t, err, string(reportType))
		assert.NotNil(t, rows, string(reportType))
		assert.Empty(t, rows, string(reportType))
	}
}

func TestPageViewsReportGroupsBySource(t *testing.T) {
	svc, store := setupReportService(t)
	db := store.DB()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	testsupport.CreateTestVisitWithSource(t, db, "s1", "/a", "google", base)
	testsupport.CreateTestVisitWithSource(t, db, "s1", "/b", "google", base.Add(time.Minute))
	testsupport.CreateTestVisitWithSource(t, db, "s2", "/a", "facebook", base.Add(2*time.Minute))

	rows, err := svc.GenerateReport(tracking.ReportPageViews, tracking.ReportParams{
		StartDate: "2026-03-10",
		EndDate:   "2026-03-10",
		GroupBy:   "source",
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "google", rows[0].Group)
	assert.Equal(t, int64(2), rows[0].PageViews)
	assert.Equal(t, int64(1), rows[0].Sessions)
	assert.Equal(t, "facebook", rows[1].Group)
	assert.Equal(t, int64(1), rows[1].PageViews)
}

func TestPageViewsReportDayBuckets(t *testing.T) {
	svc, store := setupReportService(t)
	db := store.DB()

	day1 := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	testsupport.CreateTestVisit(t, db, "s1", "/a", day1, true)
	testsupport.CreateTestVisit(t, db, "s1", "/b", day1.Add(time.Hour), false)
	testsupport.CreateTestVisit(t, db, "s2", "/a", day2, true)

	rows, err := svc.GenerateReport(tracking.ReportPageViews, tracking.ReportParams{
		StartDate: "2026-03-10",
		EndDate:   "2026-03-11",
		GroupBy:   "day",
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byDay := map[string]tracking.ReportRow{}
	for _, row := range rows {
		byDay[row.Group] = row
	}
	assert.Equal(t, int64(2), byDay["2026-03-10"].PageViews)
	assert.Equal(t, int64(1), byDay["2026-03-10"].LandingVisits)
	assert.Equal(t, int64(1), byDay["2026-03-11"].PageViews)
}

func TestPageViewsReportShowsCountryNamesForRegions(t *testing.T) {
	svc, store := setupReportService(t)
	db := store.DB()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	testsupport.CreateTestVisit(t, db, "s1", "/a", base, true)
	testsupport.CreateTestVisit(t, db, "s1", "/b", base.Add(time.Minute), false)
	spanish := testsupport.CreateTestVisit(t, db, "s2", "/a", base.Add(2*time.Minute), true)
	require.NoError(t, db.Model(spanish).Update("region", "ES").Error)

	rows, err := svc.GenerateReport(tracking.ReportPageViews, tracking.ReportParams{
		StartDate: "2026-03-10",
		EndDate:   "2026-03-10",
		GroupBy:   "region",
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "United States", rows[0].Group)
	assert.Equal(t, int64(2), rows[0].PageViews)
	assert.Equal(t, "Spain", rows[1].Group)
	assert.Equal(t, int64(1), rows[1].PageViews)
}

func TestUserActivityReportFiltersBySession(t *testing.T) {
	svc, store := setupReportService(t)
	db := store.DB()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	testsupport.CreateTestVisit(t, db, "member-1", "/a", base, true)
	testsupport.CreateTestVisit(t, db, "member-1", "/b", base.Add(time.Minute), false)
	testsupport.CreateTestVisit(t, db, "member-2", "/a", base, true)

	rows, err := svc.GenerateReport(tracking.ReportUserActivity, tracking.ReportParams{
		StartDate: "2026-03-10",
		EndDate:   "2026-03-10",
		UserID:    "member-1",
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "member-1", rows[0].Group)
	assert.Equal(t, int64(2), rows[0].PageViews)
	assert.NotEmpty(t, rows[0].FirstSeen)
	assert.NotEmpty(t, rows[0].LastSeen)
}

func TestConversionReportIncludesRate(t *testing.T) {
	svc, store := setupReportService(t)
	db := store.DB()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		testsupport.CreateTestVisit(t, db, "s1", "/landing", base.Add(time.Duration(i)*time.Minute), true)
	}
	visit := testsupport.CreateTestVisit(t, db, "s2", "/landing", base, true)
	testsupport.CreateTestConversion(t, db, visit.ID, "s2", "booking", base.Add(5*time.Minute))

	rows, err := svc.GenerateReport(tracking.ReportConversion, tracking.ReportParams{
		StartDate: "2026-03-10",
		EndDate:   "2026-03-10",
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t, "booking", rows[0].Group)
	assert.Equal(t, int64(1), rows[0].Conversions)
	assert.Equal(t, int64(5), rows[0].Visits)
	assert.InDelta(t, 0.2, rows[0].ConversionRate, 1e-9)
}

func TestEventsReportFiltersByType(t *testing.T) {
	svc, store := setupReportService(t)
	db := store.DB()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	visit := testsupport.CreateTestVisit(t, db, "s1", "/landing", base, true)
	testsupport.CreateTestConversion(t, db, visit.ID, "s1", "booking", base.Add(time.Minute))
	testsupport.CreateTestConversion(t, db, visit.ID, "s1", "signup", base.Add(2*time.Minute))

	rows, err := svc.GenerateReport(tracking.ReportEvents, tracking.ReportParams{
		StartDate: "2026-03-10",
		EndDate:   "2026-03-10",
		EventType: "signup",
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "signup", rows[0].Group)
}
