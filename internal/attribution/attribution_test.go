package attribution_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/attribution"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/testsupport"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/tracking"
)

func setupService(t *testing.T) (*attribution.Service, *tracking.Store) {
	t.Helper()
	dbManager, logger := testsupport.SetupTestDBManager(t)
	store := tracking.NewStore(dbManager, logger)
	return attribution.NewService(store, logger), store
}

// seedSession creates three visits at t1 < t2 < t3 and one conversion after
// t3, returning the visits and conversion.
func seedSession(t *testing.T, store *tracking.Store, sessionID string) ([]*tracking.PageVisit, *tracking.Conversion) {
	t.Helper()
	db := store.DB()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	visits := []*tracking.PageVisit{
		testsupport.CreateTestVisitWithSource(t, db, sessionID, "/", "google", base),
		testsupport.CreateTestVisit(t, db, sessionID, "/programs", base.Add(5*time.Minute), false),
		testsupport.CreateTestVisit(t, db, sessionID, "/schedule", base.Add(10*time.Minute), false),
	}
	conversion := testsupport.CreateTestConversion(t, db, visits[2].ID, sessionID, "booking", base.Add(12*time.Minute))
	return visits, conversion
}

func weightByVisit(records []tracking.AttributionRecord) map[uint]float64 {
	out := make(map[uint]float64, len(records))
	for _, r := range records {
		out[r.VisitID] = r.AttributionWeight
	}
	return out
}

func assertWeightsSumToOne(t *testing.T, records []tracking.AttributionRecord) {
	t.Helper()
	sum := 0.0
	for _, r := range records {
		sum += r.AttributionWeight
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestAttributeConversionModels(t *testing.T) {
	svc, store := setupService(t)
	visits, conversion := seedSession(t, store, "sess-models")

	t.Run("first touch credits earliest visit", func(t *testing.T) {
		records, err := svc.AttributeConversion(conversion.ID, tracking.ModelFirstTouch)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, visits[0].ID, records[0].VisitID)
		assert.InDelta(t, 1.0, records[0].AttributionWeight, 1e-9)
	})

	t.Run("last touch credits latest visit", func(t *testing.T) {
		records, err := svc.AttributeConversion(conversion.ID, tracking.ModelLastTouch)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, visits[2].ID, records[0].VisitID)
		assert.InDelta(t, 1.0, records[0].AttributionWeight, 1e-9)
	})

	t.Run("linear splits credit evenly", func(t *testing.T) {
		records, err := svc.AttributeConversion(conversion.ID, tracking.ModelLinear)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assertWeightsSumToOne(t, records)
		for _, r := range records {
			assert.InDelta(t, 1.0/3.0, r.AttributionWeight, 1e-9)
		}
	})

	t.Run("position weights edges over middle", func(t *testing.T) {
		records, err := svc.AttributeConversion(conversion.ID, tracking.ModelPosition)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assertWeightsSumToOne(t, records)

		weights := weightByVisit(records)
		assert.InDelta(t, 0.4, weights[visits[0].ID], 1e-9)
		assert.InDelta(t, 0.2, weights[visits[1].ID], 1e-9)
		assert.InDelta(t, 0.4, weights[visits[2].ID], 1e-9)
	})

	t.Run("unknown model falls back to last touch", func(t *testing.T) {
		records, err := svc.AttributeConversion(conversion.ID, tracking.AttributionModel("bogus"))
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, tracking.ModelLastTouch, records[0].AttributionModel)
		assert.Equal(t, visits[2].ID, records[0].VisitID)
	})
}

func TestAttributeConversionPositionSmallSessions(t *testing.T) {
	svc, store := setupService(t)
	db := store.DB()
	base := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)

	t.Run("single visit takes full weight", func(t *testing.T) {
		visit := testsupport.CreateTestVisit(t, db, "sess-one", "/", base, true)
		conversion := testsupport.CreateTestConversion(t, db, visit.ID, "sess-one", "booking", base.Add(time.Minute))

		records, err := svc.AttributeConversion(conversion.ID, tracking.ModelPosition)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.InDelta(t, 1.0, records[0].AttributionWeight, 1e-9)
	})

	t.Run("two visits split evenly", func(t *testing.T) {
		first := testsupport.CreateTestVisit(t, db, "sess-two", "/", base, true)
		testsupport.CreateTestVisit(t, db, "sess-two", "/pricing", base.Add(time.Minute), false)
		conversion := testsupport.CreateTestConversion(t, db, first.ID, "sess-two", "booking", base.Add(2*time.Minute))

		records, err := svc.AttributeConversion(conversion.ID, tracking.ModelPosition)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assertWeightsSumToOne(t, records)
		for _, r := range records {
			assert.InDelta(t, 0.5, r.AttributionWeight, 1e-9)
		}
	})

	t.Run("five visits keep edge weights and split middle", func(t *testing.T) {
		var last *tracking.PageVisit
		for i := 0; i < 5; i++ {
			last = testsupport.CreateTestVisit(t, db, "sess-five",
				"/step", base.Add(time.Duration(i)*time.Minute), i == 0)
		}
		conversion := testsupport.CreateTestConversion(t, db, last.ID, "sess-five", "booking", base.Add(10*time.Minute))

		records, err := svc.AttributeConversion(conversion.ID, tracking.ModelPosition)
		require.NoError(t, err)
		require.Len(t, records, 5)
		assertWeightsSumToOne(t, records)
	})
}

func TestAttributeConversionEdgeCases(t *testing.T) {
	svc, store := setupService(t)
	db := store.DB()

	t.Run("missing conversion is an error", func(t *testing.T) {
		_, err := svc.AttributeConversion(99999, tracking.ModelLinear)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "conversion not found")
	})

	t.Run("conversion without visits yields empty result", func(t *testing.T) {
		conversion := testsupport.CreateTestConversion(t, db, 0, "sess-untracked", "booking", time.Now().UTC())

		records, err := svc.AttributeConversion(conversion.ID, tracking.ModelLinear)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("visits after the conversion are excluded", func(t *testing.T) {
		base := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
		visit := testsupport.CreateTestVisit(t, db, "sess-late", "/", base, true)
		conversion := testsupport.CreateTestConversion(t, db, visit.ID, "sess-late", "booking", base.Add(time.Minute))
		testsupport.CreateTestVisit(t, db, "sess-late", "/after", base.Add(time.Hour), false)

		records, err := svc.AttributeConversion(conversion.ID, tracking.ModelLinear)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, visit.ID, records[0].VisitID)
	})

	t.Run("reattribution replaces prior records", func(t *testing.T) {
		base := time.Date(2026, 3, 13, 9, 0, 0, 0, time.UTC)
		testsupport.CreateTestVisit(t, db, "sess-redo", "/", base, true)
		v2 := testsupport.CreateTestVisit(t, db, "sess-redo", "/b", base.Add(time.Minute), false)
		conversion := testsupport.CreateTestConversion(t, db, v2.ID, "sess-redo", "booking", base.Add(2*time.Minute))

		_, err := svc.AttributeConversion(conversion.ID, tracking.ModelLinear)
		require.NoError(t, err)
		_, err = svc.AttributeConversion(conversion.ID, tracking.ModelLinear)
		require.NoError(t, err)

		stored, err := store.AttributionRecordsFor(conversion.ID, tracking.ModelLinear)
		require.NoError(t, err)
		assert.Len(t, stored, 2)
		assertWeightsSumToOne(t, stored)
	})
}

func TestGetAttributionAnalysis(t *testing.T) {
	svc, store := setupService(t)
	db := store.DB()
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	// Two sessions from google, one from facebook, each converting once.
	for i, source := range []string{"google", "google", "facebook"} {
		sessionID := "sess-analysis-" + source + string(rune('a'+i))
		visit := testsupport.CreateTestVisitWithSource(t, db, sessionID, "/", source, base.Add(time.Duration(i)*time.Minute))
		conversion := testsupport.CreateTestConversion(t, db, visit.ID, sessionID, "booking", base.Add(time.Hour))
		_, err := svc.AttributeConversion(conversion.ID, tracking.ModelLastTouch)
		require.NoError(t, err)
	}

	rows, err := svc.GetAttributionAnalysis(context.Background(), attribution.AnalysisFilters{
		From:  base.Add(-time.Hour),
		To:    base.Add(2 * time.Hour),
		Model: tracking.ModelLastTouch,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Ordered by attributed value descending.
	assert.Equal(t, "google", rows[0].UTMSource)
	assert.InDelta(t, 2.0, rows[0].AttributionValue, 1e-9)
	assert.Equal(t, int64(2), rows[0].Conversions)
	assert.Equal(t, "facebook", rows[1].UTMSource)

	comparison, err := svc.CompareAttributionModels(context.Background(), attribution.AnalysisFilters{
		From: base.Add(-time.Hour),
		To:   base.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	assert.Len(t, comparison, len(tracking.AllAttributionModels))
	assert.Len(t, comparison[tracking.ModelLastTouch], 2)
}
