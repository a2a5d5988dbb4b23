// Package insights derives trends, anomalies and behavioral patterns from
// stored visits, conversions and engagement samples, and composes them into
// actionable findings for landing pages.
package insights

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/apperrors"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/timeframe"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/tracking"
)

// minSampleVisits excludes pages and sources with too few visits to produce
// stable rates.
const minSampleVisits = 10

// anomalySigmas is the deviation multiplier for the daily-traffic rule.
const anomalySigmas = 2.0

// Service runs the analysis queries.
type Service struct {
	store  *tracking.Store
	logger *slog.Logger
}

// NewService wires an insight service.
func NewService(store *tracking.Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// PageTrend is the conversion-rate movement for one landing page between the
// two halves of the requested range.
type PageTrend struct {
	PageURL        string  `json:"pageUrl"`
	FirstHalfRate  float64 `json:"firstHalfRate"`
	SecondHalfRate float64 `json:"secondHalfRate"`
	Trend          float64 `json:"trend"`
}

type pageRateRow struct {
	PageURL     string
	Visits      int64
	Conversions int64
}

// ConversionRateTrends splits the range at its midpoint and computes the
// per-landing-page conversion rate change between the halves.
func (s *Service) ConversionRateTrends(ctx context.Context, frame *timeframe.TimeFrame) ([]PageTrend, error) {
	mid := frame.Midpoint()

	firstHalf, err := s.landingPageRates(ctx, frame.From, mid)
	if err != nil {
		return nil, err
	}
	secondHalf, err := s.landingPageRates(ctx, mid, frame.To)
	if err != nil {
		return nil, err
	}

	first := make(map[string]pageRateRow, len(firstHalf))
	pages := make(map[string]struct{}, len(firstHalf)+len(secondHalf))
	for _, row := range firstHalf {
		first[row.PageURL] = row
		pages[row.PageURL] = struct{}{}
	}
	second := make(map[string]pageRateRow, len(secondHalf))
	for _, row := range secondHalf {
		second[row.PageURL] = row
		pages[row.PageURL] = struct{}{}
	}

	trends := make([]PageTrend, 0, len(pages))
	for page := range pages {
		f := first[page]
		sc := second[page]
		firstRate := tracking.SafeRate(f.Conversions, f.Visits)
		secondRate := tracking.SafeRate(sc.Conversions, sc.Visits)
		trends = append(trends, PageTrend{
			PageURL:        page,
			FirstHalfRate:  firstRate,
			SecondHalfRate: secondRate,
			Trend:          secondRate - firstRate,
		})
	}

	sort.Slice(trends, func(i, j int) bool {
		return math.Abs(trends[i].Trend) > math.Abs(trends[j].Trend)
	})
	return trends, nil
}

func (s *Service) landingPageRates(ctx context.Context, from, to time.Time) ([]pageRateRow, error) {
	rows := []pageRateRow{}
	err := s.store.DB().WithContext(ctx).Raw(`
		SELECT
			pv.page_url,
			COUNT(DISTINCT pv.id) AS visits,
			COUNT(DISTINCT c.id) AS conversions
		FROM page_visits pv
		LEFT JOIN conversions c
			ON c.session_id = pv.session_id
			AND c.conversion_time >= ? AND c.conversion_time <= ?
		WHERE pv.is_landing_page = 1
		  AND pv.visit_time >= ? AND pv.visit_time <= ?
		GROUP BY pv.page_url
	`, from.UTC(), to.UTC(), from.UTC(), to.UTC()).Scan(&rows).Error
	if err != nil {
		return nil, apperrors.WrapStorage("landing page rates", err)
	}
	return rows, nil
}

// SourcePerformance is the conversion performance of one utm source.
type SourcePerformance struct {
	Source         string  `json:"source"`
	Visits         int64   `json:"visits"`
	Conversions    int64   `json:"conversions"`
	ConversionRate float64 `json:"conversionRate"`
}

// TrafficSourcePerformance computes per-source conversion rates over the
// range. Sources below the sample threshold are excluded; results are ordered
// by conversion rate descending.
func (s *Service) TrafficSourcePerformance(ctx context.Context, frame *timeframe.TimeFrame) ([]SourcePerformance, error) {
	rows := []SourcePerformance{}
	err := s.store.DB().WithContext(ctx).Raw(`
		SELECT
			pv.utm_source AS source,
			COUNT(DISTINCT pv.id) AS visits,
			COUNT(DISTINCT c.id) AS conversions
		FROM page_visits pv
		LEFT JOIN conversions c
			ON c.session_id = pv.session_id
			AND c.conversion_time >= ? AND c.conversion_time <= ?
		WHERE pv.utm_source != ''
		  AND pv.visit_time >= ? AND pv.visit_time <= ?
		GROUP BY pv.utm_source
		HAVING COUNT(DISTINCT pv.id) >= ?
	`, frame.From, frame.To, frame.From, frame.To, minSampleVisits).Scan(&rows).Error
	if err != nil {
		return nil, apperrors.WrapStorage("traffic source performance", err)
	}

	for i := range rows {
		rows[i].ConversionRate = tracking.SafeRate(rows[i].Conversions, rows[i].Visits)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].ConversionRate > rows[j].ConversionRate
	})
	return rows, nil
}

// TrafficAnomaly flags one day whose visit count deviates beyond the sigma
// rule from the window mean.
type TrafficAnomaly struct {
	Date          string  `json:"date"`
	Visits        int64   `json:"visits"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
}

// DetectTrafficAnomalies flags days where the visit count deviates from the
// window mean by more than two standard deviations, ordered by the magnitude
// of the percentage change. A window with uniform traffic yields no flags.
func (s *Service) DetectTrafficAnomalies(ctx context.Context, frame *timeframe.TimeFrame) ([]TrafficAnomaly, error) {
	daily, err := s.store.DailyVisitCounts(ctx, frame.From, frame.To)
	if err != nil {
		return nil, err
	}
	if len(daily) == 0 {
		return []TrafficAnomaly{}, nil
	}

	mean := 0.0
	for _, day := range daily {
		mean += float64(day.Count)
	}
	mean /= float64(len(daily))

	variance := 0.0
	for _, day := range daily {
		diff := float64(day.Count) - mean
		variance += diff * diff
	}
	variance /= float64(len(daily))

	if variance == 0 {
		return []TrafficAnomaly{}, nil
	}

	threshold := anomalySigmas * math.Sqrt(variance)
	anomalies := []TrafficAnomaly{}
	for _, day := range daily {
		change := float64(day.Count) - mean
		if math.Abs(change) <= threshold {
			continue
		}
		changePercent := 0.0
		if mean != 0 {
			changePercent = change / mean * 100
		}
		anomalies = append(anomalies, TrafficAnomaly{
			Date:          day.Date,
			Visits:        day.Count,
			Change:        change,
			ChangePercent: changePercent,
		})
	}

	sort.Slice(anomalies, func(i, j int) bool {
		return math.Abs(anomalies[i].ChangePercent) > math.Abs(anomalies[j].ChangePercent)
	})
	return anomalies, nil
}

// PagePattern summarizes on-page behavior for one landing page.
type PagePattern struct {
	PageURL        string  `json:"pageUrl"`
	Visits         int64   `json:"visits"`
	AvgTimeOnPage  float64 `json:"avgTimeOnPage"`  // seconds
	AvgScrollDepth float64 `json:"avgScrollDepth"` // 0-1
	BounceRate     float64 `json:"bounceRate"`     // 0-1
}

// DetectBehavioralPatterns computes engagement and bounce behavior per
// landing page with enough traffic. Engagement samples are cumulative, so
// the latest value per visit is what counts.
func (s *Service) DetectBehavioralPatterns(ctx context.Context, frame *timeframe.TimeFrame) ([]PagePattern, error) {
	rows := []PagePattern{}
	err := s.store.DB().WithContext(ctx).Raw(`
		WITH landing AS (
			SELECT id, page_url, session_id
			FROM page_visits
			WHERE is_landing_page = 1
			  AND visit_time >= ? AND visit_time <= ?
		), engagement AS (
			SELECT visit_id,
			       MAX(time_on_page) AS time_on_page,
			       MAX(scroll_depth) AS scroll_depth
			FROM engagement_samples
			GROUP BY visit_id
		), session_sizes AS (
			SELECT session_id, COUNT(*) AS pages
			FROM page_visits
			WHERE visit_time >= ? AND visit_time <= ?
			GROUP BY session_id
		)
		SELECT
			l.page_url,
			COUNT(l.id) AS visits,
			COALESCE(AVG(e.time_on_page), 0) AS avg_time_on_page,
			COALESCE(AVG(e.scroll_depth), 0) / 100.0 AS avg_scroll_depth,
			COUNT(DISTINCT CASE WHEN ss.pages = 1 THEN l.session_id END) * 1.0
				/ COUNT(DISTINCT l.session_id) AS bounce_rate
		FROM landing l
		LEFT JOIN engagement e ON e.visit_id = l.id
		LEFT JOIN session_sizes ss ON ss.session_id = l.session_id
		GROUP BY l.page_url
		HAVING COUNT(l.id) >= ?
		ORDER BY visits DESC
	`, frame.From, frame.To, frame.From, frame.To, minSampleVisits).Scan(&rows).Error
	if err != nil {
		return nil, apperrors.WrapStorage("behavioral patterns", err)
	}
	return rows, nil
}
