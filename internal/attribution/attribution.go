// Package attribution distributes conversion credit across the page visits
// of a session under the supported multi-touch models.
package attribution

import (
	"context"
	"log/slog"
	"time"

	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/apperrors"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/tracking"
)

// Position-based model weights. First and last touch each receive
// positionEdgeWeight; the remainder is split across middle visits.
const (
	positionEdgeWeight   = 0.4
	positionMiddleWeight = 0.2
)

// Service runs attribution against stored visits and conversions.
type Service struct {
	store  *tracking.Store
	logger *slog.Logger
}

// NewService wires an attribution service.
func NewService(store *tracking.Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// AttributeConversion assigns credit for one conversion across the visits of
// its session under the given model, replacing any previously stored records
// for that conversion and model. A conversion with no prior tracked visits
// yields an empty result; that is a valid state, not an error.
func (s *Service) AttributeConversion(conversionID uint, model tracking.AttributionModel) ([]tracking.AttributionRecord, error) {
	model = s.normalizeModel(model)

	conversion, err := s.store.ConversionByID(conversionID)
	if err != nil {
		return nil, err
	}
	if conversion == nil {
		return nil, apperrors.NewAttributionError(conversionID, "conversion not found")
	}

	sessionID := conversion.SessionID
	if sessionID == "" && conversion.VisitID != 0 {
		visit, err := s.store.VisitByID(conversion.VisitID)
		if err != nil {
			return nil, err
		}
		if visit != nil {
			sessionID = visit.SessionID
		}
	}
	if sessionID == "" {
		// Direct conversion with tracking blocked client-side.
		return []tracking.AttributionRecord{}, nil
	}

	visits, err := s.store.SessionVisitsBefore(sessionID, conversion.ConversionTime)
	if err != nil {
		return nil, err
	}
	if len(visits) == 0 {
		return []tracking.AttributionRecord{}, nil
	}

	weights := assignWeights(model, len(visits))
	now := time.Now().UTC()
	records := make([]tracking.AttributionRecord, 0, len(visits))
	for i, visit := range visits {
		if weights[i] == 0 {
			continue
		}
		records = append(records, tracking.AttributionRecord{
			ConversionID:      conversionID,
			VisitID:           visit.ID,
			AttributionModel:  model,
			AttributionWeight: weights[i],
			CreatedAt:         now,
		})
	}

	if err := s.store.ReplaceAttributionRecords(conversionID, model, records); err != nil {
		return nil, err
	}

	s.logger.Debug("Attributed conversion",
		slog.Uint64("conversionId", uint64(conversionID)),
		slog.String("model", string(model)),
		slog.Int("touchpoints", len(records)))

	return records, nil
}

// normalizeModel maps an unknown model string to last-touch. Callers passing
// garbage get a usable answer plus a warning instead of a hard failure.
func (s *Service) normalizeModel(model tracking.AttributionModel) tracking.AttributionModel {
	for _, known := range tracking.AllAttributionModels {
		if model == known {
			return model
		}
	}
	s.logger.Warn("Unknown attribution model, falling back to last-touch",
		slog.String("model", string(model)))
	return tracking.ModelLastTouch
}

// assignWeights returns per-visit weights in visit order. Weights always sum
// to 1.0 for n >= 1.
func assignWeights(model tracking.AttributionModel, n int) []float64 {
	weights := make([]float64, n)
	if n == 0 {
		return weights
	}

	switch model {
	case tracking.ModelFirstTouch:
		weights[0] = 1.0
	case tracking.ModelLastTouch:
		weights[n-1] = 1.0
	case tracking.ModelLinear:
		share := 1.0 / float64(n)
		for i := range weights {
			weights[i] = share
		}
	case tracking.ModelPosition:
		switch n {
		case 1:
			weights[0] = 1.0
		case 2:
			weights[0] = 0.5
			weights[1] = 0.5
		default:
			weights[0] = positionEdgeWeight
			weights[n-1] = positionEdgeWeight
			middleShare := positionMiddleWeight / float64(n-2)
			for i := 1; i < n-1; i++ {
				weights[i] = middleShare
			}
		}
	}

	return weights
}

// AnalysisFilters selects the conversions included in an analysis.
type AnalysisFilters struct {
	From  time.Time
	To    time.Time
	Model tracking.AttributionModel
}

// AnalysisRow aggregates attributed credit for one utm triple.
type AnalysisRow struct {
	UTMSource        string  `json:"utmSource"`
	UTMMedium        string  `json:"utmMedium"`
	UTMCampaign      string  `json:"utmCampaign"`
	AttributionValue float64 `json:"attributionValue"`
	Conversions      int64   `json:"conversions"`
}

// GetAttributionAnalysis sums attributed weight per utm source, medium and
// campaign for one model over a date range, ordered by attributed value
// descending.
func (s *Service) GetAttributionAnalysis(ctx context.Context, filters AnalysisFilters) ([]AnalysisRow, error) {
	model := s.normalizeModel(filters.Model)

	rows := []AnalysisRow{}
	err := s.store.DB().WithContext(ctx).Raw(`
		SELECT
			pv.utm_source,
			pv.utm_medium,
			pv.utm_campaign,
			SUM(ar.attribution_weight) AS attribution_value,
			COUNT(DISTINCT ar.conversion_id) AS conversions
		FROM attribution_records ar
		JOIN page_visits pv ON pv.id = ar.visit_id
		JOIN conversions c ON c.id = ar.conversion_id
		WHERE ar.attribution_model = ?
		  AND c.conversion_time >= ?
		  AND c.conversion_time <= ?
		GROUP BY pv.utm_source, pv.utm_medium, pv.utm_campaign
		ORDER BY attribution_value DESC
	`, model, filters.From.UTC(), filters.To.UTC()).Scan(&rows).Error
	if err != nil {
		return nil, apperrors.WrapStorage("attribution analysis", err)
	}
	return rows, nil
}

// CompareAttributionModels runs the analysis once per supported model and
// returns the rows keyed by model.
func (s *Service) CompareAttributionModels(ctx context.Context, filters AnalysisFilters) (map[tracking.AttributionModel][]AnalysisRow, error) {
	results := make(map[tracking.AttributionModel][]AnalysisRow, len(tracking.AllAttributionModels))
	for _, model := range tracking.AllAttributionModels {
		filters.Model = model
		rows, err := s.GetAttributionAnalysis(ctx, filters)
		if err != nil {
			return nil, err
		}
		results[model] = rows
	}
	return results, nil
}
