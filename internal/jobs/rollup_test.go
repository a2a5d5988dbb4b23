package jobs_test

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/config"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/jobs"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/testsupport"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/tracking"
)

func TestRollupJobBuildsSnapshots(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	store := tracking.NewStore(dbManager, logger)
	db := store.DB()

	// Traffic inside the last day: 4 visits (2 landing), 1 conversion, two
	// form submissions of which one has been processed.
	recent := time.Now().UTC().Add(-2 * time.Hour)
	for i := 0; i < 4; i++ {
		sessionID := fmt.Sprintf("r-%d", i%2)
		visit := testsupport.CreateTestVisit(t, db, sessionID, "/programs",
			recent.Add(time.Duration(i)*time.Minute), i < 2)
		testsupport.CreateTestEngagement(t, db, visit.ID, 30, 50, recent.Add(time.Duration(i)*time.Minute))
		if i == 0 {
			testsupport.CreateTestConversion(t, db, visit.ID, sessionID, "booking",
				recent.Add(time.Duration(i)*time.Minute).Add(30*time.Second))
		}
	}
	processed := testsupport.CreateTestFormSubmission(t, db, "free-class", "r-0", "lead@example.com")
	require.NoError(t, db.Model(processed).Update("status", "processed").Error)
	testsupport.CreateTestFormSubmission(t, db, "contact", "r-1", "other@example.com")

	job := jobs.NewRollupJob(store, logger)
	require.NoError(t, job.Run())

	daily, err := store.SnapshotHistory(tracking.ReportTypeDaily, time.Time{}, time.Time{}, 1)
	require.NoError(t, err)
	require.Len(t, daily, 1)

	snapshot := daily[0]
	assert.Equal(t, 4, snapshot.PageViews)
	assert.Equal(t, 2, snapshot.LandingPageVisits)
	assert.Equal(t, 1, snapshot.Conversions)
	assert.Equal(t, 2, snapshot.FormSubmissions)
	assert.Equal(t, 1, snapshot.FormsProcessed)
	assert.Equal(t, 0, snapshot.FormErrors)
	// 1 conversion over 2 landing visits
	assert.InDelta(t, 0.5, snapshot.ConversionRate, 1e-9)
	// 4 visits at 30s each over 2 sessions
	assert.InDelta(t, 60.0, snapshot.AverageTimePerUser, 1e-9)

	var devices map[string]int
	require.NoError(t, json.Unmarshal(snapshot.Devices, &devices))
	assert.Equal(t, 4, devices["desktop"])

	var referrals map[string]int
	require.NoError(t, json.Unmarshal(snapshot.ReferralCounts, &referrals))
	assert.Equal(t, 4, referrals["direct"])

	// Weekly and monthly grains are written in the same run.
	weekly, err := store.SnapshotHistory(tracking.ReportTypeWeekly, time.Time{}, time.Time{}, 1)
	require.NoError(t, err)
	assert.Len(t, weekly, 1)
	monthly, err := store.SnapshotHistory(tracking.ReportTypeMonthly, time.Time{}, time.Time{}, 1)
	require.NoError(t, err)
	assert.Len(t, monthly, 1)
}

func TestCleanupJobRemovesExpiredRows(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	store := tracking.NewStore(dbManager, logger)
	db := store.DB()

	cfg := config.GetConfig()
	old := time.Now().UTC().AddDate(0, 0, -(cfg.RetentionDays + 10))
	fresh := time.Now().UTC().Add(-time.Hour)

	oldVisit := testsupport.CreateTestVisit(t, db, "old-sess", "/", old, true)
	testsupport.CreateTestEngagement(t, db, oldVisit.ID, 10, 10, old)
	testsupport.CreateTestConversion(t, db, oldVisit.ID, "old-sess", "booking", old)
	freshVisit := testsupport.CreateTestVisit(t, db, "new-sess", "/", fresh, true)

	job := jobs.NewCleanupJob(store, logger, cfg)
	require.NoError(t, job.Run())

	var visits []tracking.PageVisit
	require.NoError(t, db.Find(&visits).Error)
	require.Len(t, visits, 1)
	assert.Equal(t, freshVisit.ID, visits[0].ID)

	var conversions int64
	require.NoError(t, db.Model(&tracking.Conversion{}).Count(&conversions).Error)
	assert.Zero(t, conversions)

	var samples int64
	require.NoError(t, db.Model(&tracking.EngagementSample{}).Count(&samples).Error)
	assert.Zero(t, samples)
}
