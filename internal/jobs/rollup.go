package jobs

import (
	"encoding/json"
	"log/slog"
	"time"

	"gorm.io/datatypes"

	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/apperrors"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/tracking"
)

// RollupJob materializes daily, weekly and monthly snapshots from the raw
// visit tables. Unlike the realtime aggregator, rollups are recomputed from
// storage so restarts cannot lose them.
type RollupJob struct {
	store  *tracking.Store
	logger *slog.Logger
}

func NewRollupJob(store *tracking.Store, logger *slog.Logger) *RollupJob {
	return &RollupJob{store: store, logger: logger}
}

var rollupSpans = []struct {
	reportType tracking.MetricsReportType
	days       int
}{
	{tracking.ReportTypeDaily, 1},
	{tracking.ReportTypeWeekly, 7},
	{tracking.ReportTypeMonthly, 30},
}

// Run computes one snapshot per rollup grain over its trailing window.
func (j *RollupJob) Run() error {
	now := time.Now().UTC()

	for _, span := range rollupSpans {
		from := now.AddDate(0, 0, -span.days)

		snapshot, err := j.buildSnapshot(span.reportType, from, now)
		if err != nil {
			j.logger.Error("Failed to build rollup snapshot",
				slog.String("reportType", string(span.reportType)),
				slog.Any("error", err))
			return err
		}

		if err := j.store.InsertMetricsSnapshot(snapshot); err != nil {
			j.logger.Error("Failed to store rollup snapshot",
				slog.String("reportType", string(span.reportType)),
				slog.Any("error", err))
			return err
		}

		j.logger.Info("Stored rollup snapshot",
			slog.String("reportType", string(span.reportType)),
			slog.Int("pageViews", snapshot.PageViews),
			slog.Int("conversions", snapshot.Conversions))
	}

	return nil
}

type rollupTotals struct {
	PageViews         int
	LandingPageVisits int
	Sessions          int64
	EngagementSeconds float64
}

type dimensionCount struct {
	Key   string
	Count int
}

func (j *RollupJob) buildSnapshot(reportType tracking.MetricsReportType, from, to time.Time) (*tracking.MetricsSnapshot, error) {
	db := j.store.DB()

	var totals rollupTotals
	err := db.Raw(`
		SELECT
			COUNT(pv.id) AS page_views,
			COALESCE(SUM(pv.is_landing_page), 0) AS landing_page_visits,
			COUNT(DISTINCT pv.session_id) AS sessions,
			COALESCE(SUM(e.time_on_page), 0) AS engagement_seconds
		FROM page_visits pv
		LEFT JOIN (
			SELECT visit_id, MAX(time_on_page) AS time_on_page
			FROM engagement_samples
			GROUP BY visit_id
		) e ON e.visit_id = pv.id
		WHERE pv.visit_time >= ? AND pv.visit_time <= ?
	`, from, to).Scan(&totals).Error
	if err != nil {
		return nil, apperrors.WrapStorage("rollup totals", err)
	}

	var conversions int64
	err = db.Model(&tracking.Conversion{}).
		Where("conversion_time >= ? AND conversion_time <= ?", from, to).
		Count(&conversions).Error
	if err != nil {
		return nil, apperrors.WrapStorage("rollup conversions", err)
	}

	var formSubmissions, formsProcessed, formErrors int64
	err = db.Model(&tracking.FormSubmission{}).
		Where("created_at >= ? AND created_at <= ?", from, to).
		Count(&formSubmissions).Error
	if err != nil {
		return nil, apperrors.WrapStorage("rollup form submissions", err)
	}
	err = db.Model(&tracking.FormSubmission{}).
		Where("created_at >= ? AND created_at <= ? AND status IN ?", from, to, []string{"processed", "converted"}).
		Count(&formsProcessed).Error
	if err != nil {
		return nil, apperrors.WrapStorage("rollup forms processed", err)
	}
	err = db.Model(&tracking.FormSubmission{}).
		Where("created_at >= ? AND created_at <= ? AND status = ?", from, to, "error").
		Count(&formErrors).Error
	if err != nil {
		return nil, apperrors.WrapStorage("rollup form errors", err)
	}

	referrals, err := j.dimension(from, to,
		"CASE WHEN utm_source != '' THEN utm_source ELSE 'direct' END")
	if err != nil {
		return nil, err
	}
	devices, err := j.dimension(from, to, "device_type")
	if err != nil {
		return nil, err
	}
	regions, err := j.dimension(from, to, "region")
	if err != nil {
		return nil, err
	}

	averageTimePerUser := 0.0
	if totals.Sessions > 0 {
		averageTimePerUser = totals.EngagementSeconds / float64(totals.Sessions)
	}

	return &tracking.MetricsSnapshot{
		ReportType:         reportType,
		LandingPageVisits:  totals.LandingPageVisits,
		PageViews:          totals.PageViews,
		Conversions:        int(conversions),
		FormSubmissions:    int(formSubmissions),
		FormsProcessed:     int(formsProcessed),
		FormErrors:         int(formErrors),
		ReferralCounts:     referrals,
		Devices:            devices,
		Geography:          regions,
		AverageTimePerUser: averageTimePerUser,
		ConversionRate:     tracking.SafeRate(conversions, int64(totals.LandingPageVisits)),
		SnapshotTime:       to,
		CreatedAt:          to,
	}, nil
}

// dimension returns a JSON object counting visits per value of the given
// expression over the window.
func (j *RollupJob) dimension(from, to time.Time, expr string) (datatypes.JSON, error) {
	rows := []dimensionCount{}
	err := j.store.DB().Raw(`
		SELECT `+expr+` AS key, COUNT(*) AS count
		FROM page_visits
		WHERE visit_time >= ? AND visit_time <= ?
		GROUP BY key
	`, from, to).Scan(&rows).Error
	if err != nil {
		return nil, apperrors.WrapStorage("rollup dimension", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		if row.Key == "" {
			continue
		}
		counts[row.Key] = row.Count
	}

	raw, err := json.Marshal(counts)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
