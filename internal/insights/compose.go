package insights

import (
	"context"
	"fmt"
	"sort"

	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/pkg/async"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/timeframe"
)

// InsightType classifies a finding.
type InsightType string

const (
	InsightPositive    InsightType = "positive"
	InsightNegative    InsightType = "negative"
	InsightWarning     InsightType = "warning"
	InsightOpportunity InsightType = "opportunity"
)

// severityOrder sorts findings worst-first.
var severityOrder = map[InsightType]int{
	InsightNegative:    0,
	InsightWarning:     1,
	InsightOpportunity: 2,
	InsightPositive:    3,
}

// Classification thresholds for composed findings. Rates are fractions.
const (
	trendMagnitudeThreshold = 0.05
	strongSourceRate        = 0.10
	weakSourceRate          = 0.02
	highTrafficVisits       = 100
	shortDwellSeconds       = 10
	highBounceRate          = 0.70
	longDwellSeconds        = 120
	deepScrollDepth         = 0.80
)

// Insight is one typed finding about a landing page or traffic source.
type Insight struct {
	Type    InsightType `json:"type"`
	Metric  string      `json:"metric"`
	Subject string      `json:"subject"`
	Message string      `json:"message"`
	Value   float64     `json:"value"`
}

// GenerateLandingPageInsights fans out the four analyses concurrently, then
// composes their results into a flat list of typed findings sorted by
// severity.
func (s *Service) GenerateLandingPageInsights(ctx context.Context, frame *timeframe.TimeFrame) ([]Insight, error) {
	pool := async.NewPool(4)
	results := pool.Execute(ctx, []async.Task{
		{Name: "trends", Execute: func() (interface{}, error) {
			return s.ConversionRateTrends(ctx, frame)
		}},
		{Name: "sources", Execute: func() (interface{}, error) {
			return s.TrafficSourcePerformance(ctx, frame)
		}},
		{Name: "anomalies", Execute: func() (interface{}, error) {
			return s.DetectTrafficAnomalies(ctx, frame)
		}},
		{Name: "patterns", Execute: func() (interface{}, error) {
			return s.DetectBehavioralPatterns(ctx, frame)
		}},
	})

	for name, result := range results {
		if result.Err != nil {
			return nil, fmt.Errorf("%s analysis: %w", name, result.Err)
		}
	}

	insights := []Insight{}

	if trends, ok := results["trends"].Data.([]PageTrend); ok {
		for _, trend := range trends {
			if trend.Trend > trendMagnitudeThreshold {
				insights = append(insights, Insight{
					Type:    InsightPositive,
					Metric:  "conversion_trend",
					Subject: trend.PageURL,
					Message: fmt.Sprintf("Conversion rate on %s is trending up %.1f points", trend.PageURL, trend.Trend*100),
					Value:   trend.Trend,
				})
			} else if trend.Trend < -trendMagnitudeThreshold {
				insights = append(insights, Insight{
					Type:    InsightNegative,
					Metric:  "conversion_trend",
					Subject: trend.PageURL,
					Message: fmt.Sprintf("Conversion rate on %s is trending down %.1f points", trend.PageURL, -trend.Trend*100),
					Value:   trend.Trend,
				})
			}
		}
	}

	if sources, ok := results["sources"].Data.([]SourcePerformance); ok {
		for _, source := range sources {
			if source.ConversionRate > strongSourceRate {
				insights = append(insights, Insight{
					Type:    InsightPositive,
					Metric:  "source_conversion",
					Subject: source.Source,
					Message: fmt.Sprintf("Traffic from %s converts at %.1f%%", source.Source, source.ConversionRate*100),
					Value:   source.ConversionRate,
				})
			}
			if source.Visits > highTrafficVisits && source.ConversionRate < weakSourceRate {
				insights = append(insights, Insight{
					Type:    InsightOpportunity,
					Metric:  "source_conversion",
					Subject: source.Source,
					Message: fmt.Sprintf("%s sends %d visits but converts only %.1f%%", source.Source, source.Visits, source.ConversionRate*100),
					Value:   source.ConversionRate,
				})
			}
		}
	}

	if anomalies, ok := results["anomalies"].Data.([]TrafficAnomaly); ok {
		for _, anomaly := range anomalies {
			insightType := InsightWarning
			if anomaly.Change > 0 {
				insightType = InsightPositive
			}
			insights = append(insights, Insight{
				Type:    insightType,
				Metric:  "traffic_anomaly",
				Subject: anomaly.Date,
				Message: fmt.Sprintf("Traffic on %s deviated %.0f%% from the period average", anomaly.Date, anomaly.ChangePercent),
				Value:   anomaly.ChangePercent,
			})
		}
	}

	if patterns, ok := results["patterns"].Data.([]PagePattern); ok {
		for _, pattern := range patterns {
			if pattern.AvgTimeOnPage < shortDwellSeconds && pattern.BounceRate > highBounceRate {
				insights = append(insights, Insight{
					Type:    InsightWarning,
					Metric:  "engagement",
					Subject: pattern.PageURL,
					Message: fmt.Sprintf("Visitors leave %s within seconds (%.0f%% bounce)", pattern.PageURL, pattern.BounceRate*100),
					Value:   pattern.BounceRate,
				})
			}
			if pattern.AvgTimeOnPage > longDwellSeconds && pattern.AvgScrollDepth > deepScrollDepth {
				insights = append(insights, Insight{
					Type:    InsightPositive,
					Metric:  "engagement",
					Subject: pattern.PageURL,
					Message: fmt.Sprintf("Visitors read %s thoroughly (avg %.0fs, %.0f%% scroll)", pattern.PageURL, pattern.AvgTimeOnPage, pattern.AvgScrollDepth*100),
					Value:   pattern.AvgTimeOnPage,
				})
			}
		}
	}

	sort.SliceStable(insights, func(i, j int) bool {
		return severityOrder[insights[i].Type] < severityOrder[insights[j].Type]
	})
	return insights, nil
}

// SuggestionPriority ranks a suggestion.
type SuggestionPriority string

const (
	PriorityHigh   SuggestionPriority = "high"
	PriorityMedium SuggestionPriority = "medium"
	PriorityLow    SuggestionPriority = "low"
)

var priorityOrder = map[SuggestionPriority]int{
	PriorityHigh:   0,
	PriorityMedium: 1,
	PriorityLow:    2,
}

// Suggestion is a prioritized action derived from one insight.
type Suggestion struct {
	Priority SuggestionPriority `json:"priority"`
	Metric   string             `json:"metric"`
	Subject  string             `json:"subject"`
	Action   string             `json:"action"`
}

// GetOptimizationSuggestions maps the composed insights to prioritized
// actions, sorted high to low.
func (s *Service) GetOptimizationSuggestions(ctx context.Context, frame *timeframe.TimeFrame) ([]Suggestion, error) {
	insights, err := s.GenerateLandingPageInsights(ctx, frame)
	if err != nil {
		return nil, err
	}

	suggestions := []Suggestion{}
	for _, insight := range insights {
		suggestion, ok := suggestionFor(insight)
		if !ok {
			continue
		}
		suggestions = append(suggestions, suggestion)
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return priorityOrder[suggestions[i].Priority] < priorityOrder[suggestions[j].Priority]
	})
	return suggestions, nil
}

func suggestionFor(insight Insight) (Suggestion, bool) {
	switch {
	case insight.Type == InsightNegative && insight.Metric == "conversion_trend":
		return Suggestion{
			Priority: PriorityHigh,
			Metric:   insight.Metric,
			Subject:  insight.Subject,
			Action:   fmt.Sprintf("Review recent changes to %s; its conversion rate dropped sharply", insight.Subject),
		}, true
	case insight.Type == InsightWarning && insight.Metric == "engagement":
		return Suggestion{
			Priority: PriorityHigh,
			Metric:   insight.Metric,
			Subject:  insight.Subject,
			Action:   fmt.Sprintf("Rework the above-the-fold content on %s to reduce bounces", insight.Subject),
		}, true
	case insight.Type == InsightWarning && insight.Metric == "traffic_anomaly":
		return Suggestion{
			Priority: PriorityMedium,
			Metric:   insight.Metric,
			Subject:  insight.Subject,
			Action:   fmt.Sprintf("Investigate the traffic drop on %s (campaign pause, outage, or tracking gap)", insight.Subject),
		}, true
	case insight.Type == InsightOpportunity:
		return Suggestion{
			Priority: PriorityMedium,
			Metric:   insight.Metric,
			Subject:  insight.Subject,
			Action:   fmt.Sprintf("Tailor landing content for %s traffic; volume is there but conversions lag", insight.Subject),
		}, true
	case insight.Type == InsightPositive && insight.Metric == "source_conversion":
		return Suggestion{
			Priority: PriorityLow,
			Metric:   insight.Metric,
			Subject:  insight.Subject,
			Action:   fmt.Sprintf("Consider increasing spend on %s; it converts well above baseline", insight.Subject),
		}, true
	case insight.Type == InsightPositive && insight.Metric == "conversion_trend":
		return Suggestion{
			Priority: PriorityLow,
			Metric:   insight.Metric,
			Subject:  insight.Subject,
			Action:   fmt.Sprintf("Document what changed on %s and apply it to weaker pages", insight.Subject),
		}, true
	}
	return Suggestion{}, false
}
