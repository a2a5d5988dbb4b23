package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/config"
	apphttp "github.com/orcaclubpro/united-tactical-defense-sub002/internal/http"
)

// publicCORSConfig is shared by the public tracking endpoints. The marketing
// site and any embedded booking widgets post cross-origin.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Referrer, User-Agent",
}

// MountAppRoutes mounts all application routes using cartridge's route API.
func MountAppRoutes(srv *cartridge.Server, api *apphttp.API) {
	cfg := config.GetConfig()

	// Rate limiting only applies in production; in development and test it
	// would interfere with local testing.
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// Public tracking ingestion: 70 requests per minute per IP covers
	// legitimate browsing (a pageview plus periodic engagement samples)
	// while capping abuse.
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(70),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Form submissions are far rarer than tracking beacons.
	formRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(10),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Public tracking config: CORS first so rejected requests still carry
	// CORS headers.
	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		WriteConcurrency: false,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	formAPIConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		WriteConcurrency: false,
		CustomMiddleware: []fiber.Handler{formRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	// Dashboard reads: same-origin only, no CORS.
	reportingConfig := &cartridge.RouteConfig{}

	// Privileged operations.
	adminConfig := &cartridge.RouteConfig{
		WriteConcurrency: false,
	}

	// === HEALTH ===
	srv.Get("/_health", api.HealthAction)

	// === PUBLIC TRACKING API ===
	srv.Post("/api/analytics/pageview", api.TrackPageViewAction, publicAPIConfig)
	srv.Post("/api/analytics/event", api.TrackEventAction, publicAPIConfig)
	srv.Post("/api/analytics/engagement", api.RecordEngagementAction, publicAPIConfig)

	// === LEAD CAPTURE ===
	srv.Post("/api/forms/submit", api.SubmitFormAction, formAPIConfig)

	// === REPORTING API ===
	srv.Get("/api/analytics/reports/:reportType", api.GenerateReportAction, reportingConfig)
	srv.Get("/api/analytics/realtime/forms", api.RealtimeStatsAction, reportingConfig)
	srv.Get("/api/analytics/attribution", api.AttributionAnalysisAction, reportingConfig)
	srv.Get("/api/analytics/attribution/compare", api.CompareAttributionModelsAction, reportingConfig)
	srv.Get("/api/analytics/insights", api.LandingPageInsightsAction, reportingConfig)
	srv.Get("/api/analytics/suggestions", api.OptimizationSuggestionsAction, reportingConfig)

	// === PRIVILEGED OPERATIONS ===
	srv.Post("/api/analytics/attribution/:conversionId", api.AttributeConversionAction, adminConfig)
	srv.Post("/api/analytics/realtime/reset", api.ResetRealtimeStatsAction, adminConfig)
	srv.Delete("/api/analytics/cleanup", api.CleanupAction, adminConfig)
}
