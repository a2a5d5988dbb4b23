// Package http contains the HTTP handlers for the analytics and forms API.
package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/apperrors"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/attribution"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/config"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/forms"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/insights"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/realtime"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/timeframe"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/tracking"
)

// API bundles the services behind the HTTP surface.
type API struct {
	tracking    *tracking.Service
	attribution *attribution.Service
	insights    *insights.Service
	forms       *forms.Service
	aggregator  *realtime.Aggregator
	logger      *slog.Logger
}

// NewAPI wires the handler set.
func NewAPI(
	trackingSvc *tracking.Service,
	attributionSvc *attribution.Service,
	insightsSvc *insights.Service,
	formsSvc *forms.Service,
	aggregator *realtime.Aggregator,
	logger *slog.Logger,
) *API {
	return &API{
		tracking:    trackingSvc,
		attribution: attributionSvc,
		insights:    insightsSvc,
		forms:       formsSvc,
		aggregator:  aggregator,
		logger:      logger,
	}
}

// respondError maps domain errors onto the structured failure payload.
// Internal detail stays in the logs; callers get a stable error code.
func respondError(ctx *cartridge.Context, err error) error {
	var validationErr *apperrors.ValidationError
	if errors.As(err, &validationErr) {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "validation_error",
			"message": validationErr.Error(),
		})
	}

	var attributionErr *apperrors.AttributionError
	if errors.As(err, &attributionErr) {
		return ctx.Status(http.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "attribution_error",
			"message": attributionErr.Error(),
		})
	}

	var storageErr *apperrors.StorageError
	if errors.As(err, &storageErr) {
		ctx.Logger.Error("Storage failure", slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "storage_error",
			"message": "a storage error occurred",
		})
	}

	ctx.Logger.Error("Unhandled error", slog.Any("error", err))
	return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"error":   "internal_error",
		"message": "an internal error occurred",
	})
}

// getClientIP prefers the forwarded address when running behind the proxy.
func getClientIP(c *fiber.Ctx) string {
	if forwarded := c.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	return c.IP()
}

type pageViewParams struct {
	Path        string `json:"path"`
	Referrer    string `json:"referrer"`
	SessionID   string `json:"sessionId"`
	DeviceInfo  string `json:"deviceInfo"`
	UTMSource   string `json:"utmSource"`
	UTMMedium   string `json:"utmMedium"`
	UTMCampaign string `json:"utmCampaign"`
}

// TrackPageViewAction handles POST /api/analytics/pageview.
func (a *API) TrackPageViewAction(ctx *cartridge.Context) error {
	var params pageViewParams
	if err := ctx.Ctx.BodyParser(&params); err != nil {
		return respondError(ctx, apperrors.NewValidationError("body", "invalid request body"))
	}

	result, err := a.tracking.TrackPageView(tracking.PageViewInput{
		PageURL:     params.Path,
		Referrer:    params.Referrer,
		SessionID:   params.SessionID,
		DeviceInfo:  params.DeviceInfo,
		UTMSource:   params.UTMSource,
		UTMMedium:   params.UTMMedium,
		UTMCampaign: params.UTMCampaign,
		UserAgent:   ctx.Get("User-Agent"),
		IPAddress:   getClientIP(ctx.Ctx),
	})
	if err != nil {
		return respondError(ctx, err)
	}

	return ctx.Status(http.StatusCreated).JSON(fiber.Map{
		"success":   true,
		"visitId":   result.VisitID,
		"sessionId": result.SessionID,
	})
}

type eventParams struct {
	EventType string                 `json:"eventType"`
	SessionID string                 `json:"sessionId"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// TrackEventAction handles POST /api/analytics/event.
func (a *API) TrackEventAction(ctx *cartridge.Context) error {
	var params eventParams
	if err := ctx.Ctx.BodyParser(&params); err != nil {
		return respondError(ctx, apperrors.NewValidationError("body", "invalid request body"))
	}

	_, err := a.tracking.TrackEvent(tracking.EventInput{
		EventType: params.EventType,
		SessionID: params.SessionID,
		Metadata:  params.Metadata,
	})
	if err != nil {
		return respondError(ctx, err)
	}

	return ctx.Status(http.StatusCreated).JSON(fiber.Map{"success": true})
}

type engagementParams struct {
	VisitID          uint   `json:"visitId"`
	SessionID        string `json:"sessionId"`
	TimeOnPage       int    `json:"timeOnPage"`
	ScrollDepth      int    `json:"scrollDepth"`
	ClickCount       int    `json:"clickCount"`
	FormInteractions int    `json:"formInteractions"`
}

// RecordEngagementAction handles POST /api/analytics/engagement.
func (a *API) RecordEngagementAction(ctx *cartridge.Context) error {
	var params engagementParams
	if err := ctx.Ctx.BodyParser(&params); err != nil {
		return respondError(ctx, apperrors.NewValidationError("body", "invalid request body"))
	}

	err := a.tracking.RecordEngagement(tracking.EngagementInput{
		VisitID:          params.VisitID,
		SessionID:        params.SessionID,
		TimeOnPage:       params.TimeOnPage,
		ScrollDepth:      params.ScrollDepth,
		ClickCount:       params.ClickCount,
		FormInteractions: params.FormInteractions,
	})
	if err != nil {
		return respondError(ctx, err)
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{"success": true})
}

// GenerateReportAction handles GET /api/analytics/reports/:reportType.
func (a *API) GenerateReportAction(ctx *cartridge.Context) error {
	reportType := tracking.ReportType(ctx.Ctx.Params("reportType"))

	limit := 0
	if raw := ctx.Ctx.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return respondError(ctx, apperrors.NewValidationError("limit", "limit must be an integer"))
		}
		limit = parsed
	}

	rows, err := a.tracking.GenerateReport(reportType, tracking.ReportParams{
		StartDate:      ctx.Ctx.Query("startDate"),
		EndDate:        ctx.Ctx.Query("endDate"),
		GroupBy:        ctx.Ctx.Query("groupBy"),
		Limit:          limit,
		UserID:         ctx.Ctx.Query("userId"),
		EventType:      ctx.Ctx.Query("eventType"),
		ConversionGoal: ctx.Ctx.Query("conversionGoal"),
	})
	if err != nil {
		return respondError(ctx, err)
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{
		"success": true,
		"report":  string(reportType),
		"rows":    rows,
	})
}

// RealtimeStatsAction handles GET /api/analytics/realtime/forms.
func (a *API) RealtimeStatsAction(ctx *cartridge.Context) error {
	return ctx.Status(http.StatusOK).JSON(fiber.Map{
		"success": true,
		"stats":   a.aggregator.Stats(),
	})
}

// ResetRealtimeStatsAction handles POST /api/analytics/realtime/reset.
func (a *API) ResetRealtimeStatsAction(ctx *cartridge.Context) error {
	a.aggregator.ResetStats()
	ctx.Logger.Info("Realtime counters reset via API")
	return ctx.Status(http.StatusOK).JSON(fiber.Map{"success": true})
}

// CleanupAction handles DELETE /api/analytics/cleanup.
func (a *API) CleanupAction(ctx *cartridge.Context) error {
	cfg := config.GetConfig()
	cutoff := time.Now().UTC().AddDate(0, 0, -cfg.RetentionDays)

	deleted, err := a.tracking.Store().DeleteOlderThan(cutoff)
	if err != nil {
		return respondError(ctx, err)
	}

	ctx.Logger.Info("Cleanup completed via API", slog.Int64("deleted", deleted))
	return ctx.Status(http.StatusOK).JSON(fiber.Map{
		"success": true,
		"deleted": deleted,
	})
}

type formSubmitParams struct {
	FormType  string                 `json:"formType"`
	SessionID string                 `json:"sessionId"`
	Name      string                 `json:"name"`
	Email     string                 `json:"email"`
	Phone     string                 `json:"phone"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// SubmitFormAction handles POST /api/forms/submit.
func (a *API) SubmitFormAction(ctx *cartridge.Context) error {
	var params formSubmitParams
	if err := ctx.Ctx.BodyParser(&params); err != nil {
		return respondError(ctx, apperrors.NewValidationError("body", "invalid request body"))
	}

	submission, err := a.forms.Submit(forms.SubmitInput{
		FormType:  params.FormType,
		SessionID: params.SessionID,
		Name:      params.Name,
		Email:     params.Email,
		Phone:     params.Phone,
		Metadata:  params.Metadata,
	})
	if err != nil {
		return respondError(ctx, err)
	}

	return ctx.Status(http.StatusCreated).JSON(fiber.Map{
		"success": true,
		"formId":  submission.ID,
		"status":  submission.Status,
	})
}

// parseFrame reads the startDate/endDate query pair.
func parseFrame(ctx *cartridge.Context) (*timeframe.TimeFrame, error) {
	startDate := ctx.Ctx.Query("startDate")
	endDate := ctx.Ctx.Query("endDate")
	if startDate == "" || endDate == "" {
		return nil, apperrors.NewValidationError("dateRange", "startDate and endDate are required")
	}
	frame, err := timeframe.ParseRange(startDate, endDate)
	if err != nil {
		return nil, apperrors.NewValidationError("dateRange", err.Error())
	}
	return frame, nil
}

// AttributionAnalysisAction handles GET /api/analytics/attribution.
func (a *API) AttributionAnalysisAction(ctx *cartridge.Context) error {
	frame, err := parseFrame(ctx)
	if err != nil {
		return respondError(ctx, err)
	}

	rows, err := a.attribution.GetAttributionAnalysis(ctx.Ctx.Context(), attribution.AnalysisFilters{
		From:  frame.From,
		To:    frame.To,
		Model: tracking.AttributionModel(ctx.Ctx.Query("model", string(tracking.ModelLastTouch))),
	})
	if err != nil {
		return respondError(ctx, err)
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{"success": true, "rows": rows})
}

// CompareAttributionModelsAction handles GET /api/analytics/attribution/compare.
func (a *API) CompareAttributionModelsAction(ctx *cartridge.Context) error {
	frame, err := parseFrame(ctx)
	if err != nil {
		return respondError(ctx, err)
	}

	comparison, err := a.attribution.CompareAttributionModels(ctx.Ctx.Context(), attribution.AnalysisFilters{
		From: frame.From,
		To:   frame.To,
	})
	if err != nil {
		return respondError(ctx, err)
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{"success": true, "models": comparison})
}

// AttributeConversionAction handles POST /api/analytics/attribution/:conversionId.
func (a *API) AttributeConversionAction(ctx *cartridge.Context) error {
	conversionID, err := strconv.ParseUint(ctx.Ctx.Params("conversionId"), 10, 64)
	if err != nil {
		return respondError(ctx, apperrors.NewValidationError("conversionId", "conversionId must be an integer"))
	}

	model := tracking.AttributionModel(ctx.Ctx.Query("model", string(tracking.ModelLastTouch)))
	records, err := a.attribution.AttributeConversion(uint(conversionID), model)
	if err != nil {
		return respondError(ctx, err)
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{"success": true, "records": records})
}

// LandingPageInsightsAction handles GET /api/analytics/insights.
func (a *API) LandingPageInsightsAction(ctx *cartridge.Context) error {
	frame, err := parseFrame(ctx)
	if err != nil {
		return respondError(ctx, err)
	}

	findings, err := a.insights.GenerateLandingPageInsights(ctx.Ctx.Context(), frame)
	if err != nil {
		return respondError(ctx, err)
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{"success": true, "insights": findings})
}

// OptimizationSuggestionsAction handles GET /api/analytics/suggestions.
func (a *API) OptimizationSuggestionsAction(ctx *cartridge.Context) error {
	frame, err := parseFrame(ctx)
	if err != nil {
		return respondError(ctx, err)
	}

	suggestions, err := a.insights.GetOptimizationSuggestions(ctx.Ctx.Context(), frame)
	if err != nil {
		return respondError(ctx, err)
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{"success": true, "suggestions": suggestions})
}

// HealthAction handles GET /_health.
func (a *API) HealthAction(ctx *cartridge.Context) error {
	return ctx.Status(http.StatusOK).JSON(fiber.Map{"status": "ok"})
}
