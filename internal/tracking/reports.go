package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/apperrors"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/timeframe"
)

// ReportType selects one of the on-demand report queries.
type ReportType string

const (
	ReportUserActivity ReportType = "user_activity"
	ReportPageViews    ReportType = "page_views"
	ReportEvents       ReportType = "events"
	ReportConversion   ReportType = "conversion"
)

// Report limits. Limit is clamped into [1, maxReportLimit].
const (
	defaultReportLimit = 100
	maxReportLimit     = 1000
)

// ReportParams carries the filters for GenerateReport. StartDate and EndDate
// are required ISO dates; the rest are optional per report type.
type ReportParams struct {
	StartDate      string
	EndDate        string
	GroupBy        string
	Limit          int
	UserID         string
	EventType      string
	ConversionGoal string
}

// ReportRow is one grouped result row. Only the fields relevant to the
// requested report type are populated.
type ReportRow struct {
	Group           string  `json:"group"`
	Visits          int64   `json:"visits,omitempty"`
	PageViews       int64   `json:"pageViews,omitempty"`
	LandingVisits   int64   `json:"landingVisits,omitempty"`
	Sessions        int64   `json:"sessions,omitempty"`
	Conversions     int64   `json:"conversions,omitempty"`
	ConversionValue float64 `json:"conversionValue,omitempty"`
	ConversionRate  float64 `json:"conversionRate,omitempty"`
	FirstSeen       string  `json:"firstSeen,omitempty"`
	LastSeen        string  `json:"lastSeen,omitempty"`
}

// Allowed groupBy values per report type. Validation fails fast before any
// query executes.
var reportGroupings = map[ReportType]map[string]string{
	ReportPageViews: {
		"":       "page_url",
		"page":   "page_url",
		"source": "utm_source",
		"device": "device_type",
		"region": "region",
		"day":    "bucket:day",
		"week":   "bucket:week",
		"month":  "bucket:month",
	},
	ReportUserActivity: {
		"":        "session_id",
		"session": "session_id",
		"day":     "bucket:day",
	},
	ReportEvents: {
		"":     "conversion_type",
		"type": "conversion_type",
		"day":  "bucket:day",
	},
	ReportConversion: {
		"":     "conversion_type",
		"goal": "conversion_type",
		"day":  "bucket:day",
	},
}

// GenerateReport runs the aggregate query for one report type. It returns an
// empty slice, never an error, when no rows match the valid filters.
func (s *Service) GenerateReport(reportType ReportType, params ReportParams) ([]ReportRow, error) {
	groupings, ok := reportGroupings[reportType]
	if !ok {
		return nil, apperrors.NewValidationError("reportType",
			fmt.Sprintf("unknown report type %q", reportType))
	}

	if params.StartDate == "" || params.EndDate == "" {
		return nil, apperrors.NewValidationError("dateRange", "startDate and endDate are required")
	}
	frame, err := timeframe.ParseRange(params.StartDate, params.EndDate)
	if err != nil {
		return nil, apperrors.NewValidationError("dateRange", err.Error())
	}

	grouping, ok := groupings[params.GroupBy]
	if !ok {
		return nil, apperrors.NewValidationError("groupBy",
			fmt.Sprintf("groupBy %q is not allowed for report %q", params.GroupBy, reportType))
	}

	limit := params.Limit
	if limit <= 0 {
		limit = defaultReportLimit
	}
	if limit > maxReportLimit {
		limit = maxReportLimit
	}

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(s.cfg.ReportTimeoutSeconds)*time.Second)
	defer cancel()

	switch reportType {
	case ReportPageViews:
		return s.pageViewsReport(ctx, frame, grouping, limit)
	case ReportUserActivity:
		return s.userActivityReport(ctx, frame, grouping, params.UserID, limit)
	case ReportEvents:
		return s.eventsReport(ctx, frame, grouping, params.EventType, limit)
	case ReportConversion:
		return s.conversionReport(ctx, frame, grouping, params.ConversionGoal, limit)
	}

	return []ReportRow{}, nil
}

// groupExpression resolves a grouping key into a SQL expression over the
// given timestamp column.
func groupExpression(grouping, timeColumn string) (string, error) {
	switch grouping {
	case "bucket:day":
		return timeframe.SQLiteBucketExpression(timeColumn, timeframe.BucketDay)
	case "bucket:week":
		return timeframe.SQLiteBucketExpression(timeColumn, timeframe.BucketWeek)
	case "bucket:month":
		return timeframe.SQLiteBucketExpression(timeColumn, timeframe.BucketMonth)
	default:
		return grouping, nil
	}
}

func (s *Service) pageViewsReport(ctx context.Context, frame *timeframe.TimeFrame, grouping string, limit int) ([]ReportRow, error) {
	expr, err := groupExpression(grouping, "visit_time")
	if err != nil {
		return nil, apperrors.NewValidationError("groupBy", err.Error())
	}

	rows := []ReportRow{}
	query := fmt.Sprintf(`
		SELECT
			%s AS "group",
			COUNT(*) AS page_views,
			COUNT(DISTINCT session_id) AS sessions,
			COALESCE(SUM(is_landing_page), 0) AS landing_visits
		FROM page_visits
		WHERE visit_time >= ? AND visit_time <= ?
		GROUP BY "group"
		ORDER BY page_views DESC
		LIMIT ?
	`, expr)

	err = s.store.DB().WithContext(ctx).
		Raw(query, frame.From, frame.To, limit).
		Scan(&rows).Error
	if err != nil {
		return nil, apperrors.WrapStorage("page_views report", err)
	}

	// Region rows group on the stored ISO code; reports show country names.
	if grouping == "region" {
		for i := range rows {
			rows[i].Group = s.geo.DisplayName(rows[i].Group)
		}
	}
	return rows, nil
}

func (s *Service) userActivityReport(ctx context.Context, frame *timeframe.TimeFrame, grouping, userID string, limit int) ([]ReportRow, error) {
	expr, err := groupExpression(grouping, "visit_time")
	if err != nil {
		return nil, apperrors.NewValidationError("groupBy", err.Error())
	}

	args := []interface{}{frame.From, frame.To}
	userFilter := ""
	if userID != "" {
		userFilter = "AND session_id = ?"
		args = append(args, userID)
	}
	args = append(args, limit)

	rows := []ReportRow{}
	query := fmt.Sprintf(`
		SELECT
			%s AS "group",
			COUNT(*) AS page_views,
			COUNT(DISTINCT session_id) AS sessions,
			strftime('%%Y-%%m-%%dT%%H:%%M:%%SZ', MIN(visit_time)) AS first_seen,
			strftime('%%Y-%%m-%%dT%%H:%%M:%%SZ', MAX(visit_time)) AS last_seen
		FROM page_visits
		WHERE visit_time >= ? AND visit_time <= ? %s
		GROUP BY "group"
		ORDER BY page_views DESC
		LIMIT ?
	`, expr, userFilter)

	err = s.store.DB().WithContext(ctx).Raw(query, args...).Scan(&rows).Error
	if err != nil {
		return nil, apperrors.WrapStorage("user_activity report", err)
	}
	return rows, nil
}

func (s *Service) eventsReport(ctx context.Context, frame *timeframe.TimeFrame, grouping, eventType string, limit int) ([]ReportRow, error) {
	expr, err := groupExpression(grouping, "conversion_time")
	if err != nil {
		return nil, apperrors.NewValidationError("groupBy", err.Error())
	}

	args := []interface{}{frame.From, frame.To}
	typeFilter := ""
	if eventType != "" {
		typeFilter = "AND conversion_type = ?"
		args = append(args, eventType)
	}
	args = append(args, limit)

	rows := []ReportRow{}
	query := fmt.Sprintf(`
		SELECT
			%s AS "group",
			COUNT(*) AS conversions,
			COALESCE(SUM(conversion_value), 0) AS conversion_value
		FROM conversions
		WHERE conversion_time >= ? AND conversion_time <= ? %s
		GROUP BY "group"
		ORDER BY conversions DESC
		LIMIT ?
	`, expr, typeFilter)

	err = s.store.DB().WithContext(ctx).Raw(query, args...).Scan(&rows).Error
	if err != nil {
		return nil, apperrors.WrapStorage("events report", err)
	}
	return rows, nil
}

func (s *Service) conversionReport(ctx context.Context, frame *timeframe.TimeFrame, grouping, conversionGoal string, limit int) ([]ReportRow, error) {
	rows, err := s.eventsReportWithGoal(ctx, frame, grouping, conversionGoal, limit)
	if err != nil {
		return nil, err
	}

	totalVisits, err := s.CountVisitsInFrame(ctx, frame)
	if err != nil {
		return nil, err
	}

	for i := range rows {
		rows[i].Visits = totalVisits
		rows[i].ConversionRate = SafeRate(rows[i].Conversions, totalVisits)
	}
	return rows, nil
}

func (s *Service) eventsReportWithGoal(ctx context.Context, frame *timeframe.TimeFrame, grouping, goal string, limit int) ([]ReportRow, error) {
	expr, err := groupExpression(grouping, "conversion_time")
	if err != nil {
		return nil, apperrors.NewValidationError("groupBy", err.Error())
	}

	args := []interface{}{frame.From, frame.To}
	goalFilter := ""
	if goal != "" {
		goalFilter = "AND conversion_type = ?"
		args = append(args, goal)
	}
	args = append(args, limit)

	rows := []ReportRow{}
	query := fmt.Sprintf(`
		SELECT
			%s AS "group",
			COUNT(*) AS conversions,
			COALESCE(SUM(conversion_value), 0) AS conversion_value
		FROM conversions
		WHERE conversion_time >= ? AND conversion_time <= ? %s
		GROUP BY "group"
		ORDER BY conversions DESC
		LIMIT ?
	`, expr, goalFilter)

	err = s.store.DB().WithContext(ctx).Raw(query, args...).Scan(&rows).Error
	if err != nil {
		return nil, apperrors.WrapStorage("conversion report", err)
	}
	return rows, nil
}

// CountVisitsInFrame counts all page visits inside the frame.
func (s *Service) CountVisitsInFrame(ctx context.Context, frame *timeframe.TimeFrame) (int64, error) {
	var count int64
	err := s.store.DB().WithContext(ctx).Model(&PageVisit{}).
		Where("visit_time >= ? AND visit_time <= ?", frame.From, frame.To).
		Count(&count).Error
	if err != nil {
		return 0, apperrors.WrapStorage("count visits", err)
	}
	return count, nil
}

// SafeRate divides numerator by denominator, yielding 0 for an empty
// denominator instead of NaN or a division error.
func SafeRate(numerator, denominator int64) float64 {
	if denominator == 0 {
		return 0
	}
	return float64(numerator) / float64(denominator)
}
