// Package forms handles lead-capture submissions from the marketing site and
// feeds their lifecycle into the analytics event stream.
package forms

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/apperrors"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/bus"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/tracking"
)

// Submission lifecycle statuses.
const (
	StatusSubmitted = "submitted"
	StatusProcessed = "processed"
	StatusError     = "error"
	StatusConverted = "converted"
)

// Service stores submissions and publishes their lifecycle events.
type Service struct {
	store  *tracking.Store
	events *bus.Bus
	logger *slog.Logger
}

// NewService wires a forms service. It listens for conversions so the
// converting session's submission follows the lead into the converted status.
func NewService(store *tracking.Store, events *bus.Bus, logger *slog.Logger) *Service {
	s := &Service{store: store, events: events, logger: logger}
	events.Subscribe(bus.KindFormConverted, s.handleConversion)
	return s
}

func (s *Service) handleConversion(event bus.Event) {
	converted, ok := event.(bus.FormConverted)
	if !ok || converted.SessionID == "" {
		return
	}

	submission, err := s.store.LatestFormSubmissionBySession(converted.SessionID)
	if err != nil {
		s.logger.Error("Failed to look up submission for conversion",
			slog.String("sessionId", converted.SessionID),
			slog.Any("error", err))
		return
	}
	if submission == nil || submission.Status == StatusConverted || submission.Status == StatusError {
		return
	}

	if err := s.MarkConverted(submission.ID); err != nil {
		s.logger.Error("Failed to mark submission converted",
			slog.Uint64("formId", uint64(submission.ID)),
			slog.Any("error", err))
	}
}

// SubmitInput is one incoming lead-capture submission.
type SubmitInput struct {
	FormType  string
	SessionID string
	Name      string
	Email     string
	Phone     string
	Metadata  map[string]interface{}
}

// Submit validates and stores a submission, then advances it to processed.
// A validation failure is published as a form.error event so the realtime
// counters see it, and returned to the caller.
func (s *Service) Submit(input SubmitInput) (*tracking.FormSubmission, error) {
	now := time.Now().UTC()

	if err := validate(input); err != nil {
		s.events.Publish(bus.FormError{
			FormType:  input.FormType,
			SessionID: input.SessionID,
			Reason:    err.Error(),
			Timestamp: now,
		})
		return nil, err
	}

	submission := &tracking.FormSubmission{
		FormType:  input.FormType,
		SessionID: input.SessionID,
		Name:      strings.TrimSpace(input.Name),
		Email:     strings.ToLower(strings.TrimSpace(input.Email)),
		Phone:     normalizePhone(input.Phone),
		Status:    StatusSubmitted,
		Metadata:  metadataJSON(input.Metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.InsertFormSubmission(submission); err != nil {
		s.logger.Error("Failed to store form submission",
			slog.String("formType", input.FormType),
			slog.Any("error", err))
		s.events.Publish(bus.FormError{
			FormType:  input.FormType,
			SessionID: input.SessionID,
			Reason:    "storage failure",
			Timestamp: now,
		})
		return nil, err
	}

	s.events.Publish(bus.FormSubmitted{
		FormID:    submission.ID,
		FormType:  submission.FormType,
		SessionID: submission.SessionID,
		Timestamp: now,
	})

	if err := s.store.UpdateFormSubmissionStatus(submission.ID, StatusProcessed); err != nil {
		// The submission is stored; the stuck status is recoverable.
		s.logger.Error("Failed to advance submission status",
			slog.Uint64("formId", uint64(submission.ID)),
			slog.Any("error", err))
		return submission, nil
	}
	submission.Status = StatusProcessed

	s.events.Publish(bus.FormProcessed{
		FormID:    submission.ID,
		FormType:  submission.FormType,
		SessionID: submission.SessionID,
		Timestamp: time.Now().UTC(),
	})

	return submission, nil
}

// MarkConverted transitions a processed submission to converted, used when a
// lead books a session.
func (s *Service) MarkConverted(formID uint) error {
	return s.store.UpdateFormSubmissionStatus(formID, StatusConverted)
}

func validate(input SubmitInput) error {
	if strings.TrimSpace(input.FormType) == "" {
		return apperrors.NewValidationError("formType", "formType is required")
	}
	email := strings.TrimSpace(input.Email)
	phone := strings.TrimSpace(input.Phone)
	if email == "" && phone == "" {
		return apperrors.NewValidationError("contact", "email or phone is required")
	}
	if email != "" && !strings.Contains(email, "@") {
		return apperrors.NewValidationError("email", "email is not valid")
	}
	return nil
}

// normalizePhone strips formatting characters, keeping digits and a leading
// plus sign.
func normalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
		if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func metadataJSON(metadata map[string]interface{}) datatypes.JSON {
	if len(metadata) == 0 {
		return nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
