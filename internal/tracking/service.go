package tracking

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/apperrors"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/bus"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/config"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/geo"
)

// EventTypeConversion is the tracked event type that persists a Conversion.
const EventTypeConversion = "conversion"

// Service orchestrates tracking calls and report generation. It writes
// through the Store and publishes domain events for the real-time aggregator.
type Service struct {
	store  *Store
	events *bus.Bus
	geo    *geo.Resolver
	logger *slog.Logger
	cfg    *config.Config
}

// NewService wires a tracking service.
func NewService(store *Store, events *bus.Bus, resolver *geo.Resolver, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		events: events,
		geo:    resolver,
		logger: logger,
		cfg:    config.GetConfig(),
	}
}

// Store exposes the underlying store for read-side collaborators.
func (s *Service) Store() *Store {
	return s.store
}

// PageViewInput is the payload for TrackPageView.
type PageViewInput struct {
	PageURL     string
	Referrer    string
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	SessionID   string
	UserAgent   string
	IPAddress   string
	DeviceInfo  string
}

// PageViewResult reports the created visit and its (possibly generated)
// session id.
type PageViewResult struct {
	VisitID       uint   `json:"visitId"`
	SessionID     string `json:"sessionId"`
	IsLandingPage bool   `json:"isLandingPage"`
}

// TrackPageView validates and stores one page visit, then publishes a
// PageViewTracked event. VisitTime is server-assigned at write time so
// per-session ordering stays consistent for attribution.
func (s *Service) TrackPageView(input PageViewInput) (*PageViewResult, error) {
	if strings.TrimSpace(input.PageURL) == "" {
		return nil, apperrors.NewValidationError("pageUrl", "pageUrl is required")
	}

	sessionID := input.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	isLanding := ComputeIsLandingPage(input.PageURL, input.Referrer, s.cfg.SiteHost)
	deviceType := ClassifyDevice(input.DeviceInfo, input.UserAgent)
	region := s.geo.RegionForIP(input.IPAddress)
	now := time.Now().UTC()

	visit := &PageVisit{
		PageURL:       input.PageURL,
		Referrer:      input.Referrer,
		UTMSource:     input.UTMSource,
		UTMMedium:     input.UTMMedium,
		UTMCampaign:   input.UTMCampaign,
		UserAgent:     input.UserAgent,
		IPAddress:     input.IPAddress,
		SessionID:     sessionID,
		DeviceType:    deviceType,
		Region:        region,
		IsLandingPage: isLanding,
		VisitTime:     now,
		CreatedAt:     now,
	}

	if err := s.store.InsertPageVisit(visit); err != nil {
		s.logger.Error("Failed to store page visit", slog.Any("error", err))
		return nil, err
	}

	s.events.Publish(bus.PageViewTracked{
		VisitID:       visit.ID,
		SessionID:     sessionID,
		PageURL:       input.PageURL,
		ReferrerHost:  hostOf(input.Referrer),
		UTMSource:     input.UTMSource,
		DeviceType:    deviceType,
		Region:        region,
		IsLandingPage: isLanding,
		Timestamp:     now,
	})

	return &PageViewResult{
		VisitID:       visit.ID,
		SessionID:     sessionID,
		IsLandingPage: isLanding,
	}, nil
}

// EventInput is the payload for TrackEvent.
type EventInput struct {
	EventType string
	SessionID string
	Metadata  map[string]interface{}
}

// TrackEvent records a tracked event. For the conversion event type it also
// persists a Conversion row keyed to the session's most recent visit and
// publishes FormConverted; a conversion without a resolvable visit is still
// valid (tracking may be blocked client-side).
func (s *Service) TrackEvent(input EventInput) (*Conversion, error) {
	if strings.TrimSpace(input.EventType) == "" {
		return nil, apperrors.NewValidationError("eventType", "eventType is required")
	}

	if input.EventType != EventTypeConversion {
		// Non-conversion events are acknowledged but not persisted and
		// publish nothing; only conversions carry analytics weight here.
		s.logger.Debug("Tracked non-conversion event",
			slog.String("eventType", input.EventType),
			slog.String("sessionId", input.SessionID))
		return nil, nil
	}

	var visitID uint
	if input.SessionID != "" {
		visit, err := s.store.LatestVisitBySession(input.SessionID)
		if err != nil {
			return nil, err
		}
		if visit != nil {
			visitID = visit.ID
		}
	}

	conversionType := stringFromMetadata(input.Metadata, "conversionType", "event")
	value := floatFromMetadata(input.Metadata, "value")
	now := time.Now().UTC()

	conversion := &Conversion{
		VisitID:         visitID,
		SessionID:       input.SessionID,
		ConversionType:  conversionType,
		ConversionValue: value,
		ConversionData:  jsonFromMetadata(input.Metadata),
		ConversionTime:  now,
		CreatedAt:       now,
	}

	if err := s.store.InsertConversion(conversion); err != nil {
		s.logger.Error("Failed to store conversion", slog.Any("error", err))
		return nil, err
	}

	s.events.Publish(bus.FormConverted{
		ConversionID:   conversion.ID,
		VisitID:        visitID,
		SessionID:      input.SessionID,
		ConversionType: conversionType,
		Value:          value,
		Timestamp:      now,
	})

	return conversion, nil
}

// EngagementInput is the payload for RecordEngagement.
type EngagementInput struct {
	VisitID          uint
	SessionID        string
	TimeOnPage       int
	ScrollDepth      int
	ClickCount       int
	FormInteractions int
}

// RecordEngagement stores one periodic engagement sample for a visit.
// Clients send cumulative values; later samples supersede earlier ones
// for reporting purposes.
func (s *Service) RecordEngagement(input EngagementInput) error {
	if input.VisitID == 0 {
		return apperrors.NewValidationError("visitId", "visitId is required")
	}
	if input.TimeOnPage < 0 || input.ClickCount < 0 || input.FormInteractions < 0 {
		return apperrors.NewValidationError("engagement", "counters must not be negative")
	}
	if input.ScrollDepth < 0 || input.ScrollDepth > 100 {
		return apperrors.NewValidationError("scrollDepth", "scrollDepth must be between 0 and 100")
	}

	now := time.Now().UTC()
	err := s.store.InsertEngagementSample(&EngagementSample{
		VisitID:          input.VisitID,
		TimeOnPage:       input.TimeOnPage,
		ScrollDepth:      input.ScrollDepth,
		ClickCount:       input.ClickCount,
		FormInteractions: input.FormInteractions,
		EngagementTime:   now,
		CreatedAt:        now,
	})
	if err != nil {
		return err
	}

	s.events.Publish(bus.EngagementRecorded{
		VisitID:    input.VisitID,
		SessionID:  input.SessionID,
		TimeOnPage: input.TimeOnPage,
		Timestamp:  now,
	})
	return nil
}

// ComputeIsLandingPage reports whether a visit is the session entry point: a
// visit with no referrer, or a referrer on a different host than the site.
func ComputeIsLandingPage(pageURL, referrer, siteHost string) bool {
	if strings.TrimSpace(referrer) == "" {
		return true
	}

	referrerHost := hostOf(referrer)
	if referrerHost == "" {
		// Unparseable referrer is treated as external traffic.
		return true
	}

	currentHost := hostOf(pageURL)
	if currentHost == "" {
		currentHost = strings.ToLower(siteHost)
	}

	return !strings.EqualFold(referrerHost, currentHost)
}

// hostOf extracts a lowercased hostname from a URL, or "" when absent.
func hostOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

func stringFromMetadata(metadata map[string]interface{}, key, fallback string) string {
	if metadata == nil {
		return fallback
	}
	if value, ok := metadata[key].(string); ok && value != "" {
		return value
	}
	return fallback
}

func floatFromMetadata(metadata map[string]interface{}, key string) float64 {
	if metadata == nil {
		return 0
	}
	switch value := metadata[key].(type) {
	case float64:
		return value
	case int:
		return float64(value)
	default:
		return 0
	}
}

func jsonFromMetadata(metadata map[string]interface{}) datatypes.JSON {
	if metadata == nil {
		return nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil
	}
	return datatypes.JSON(data)
}
