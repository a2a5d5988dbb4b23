// Package bus provides the process-wide publish/subscribe channel for domain
// events. Dispatch is synchronous and in-process; there is no persistence or
// replay. Payloads are tagged variants so subscribers switch on the concrete
// type instead of string event names.
package bus

import (
	"log/slog"
	"sync"
	"time"
)

// EventKind tags a domain event variant.
type EventKind string

const (
	KindPageViewTracked    EventKind = "pageview.tracked"
	KindEngagementRecorded EventKind = "engagement.recorded"
	KindFormSubmitted      EventKind = "form.submitted"
	KindFormProcessed      EventKind = "form.processed"
	KindFormConverted      EventKind = "form.converted"
	KindFormError          EventKind = "form.error"
)

// Event is the tagged union over all domain event payloads.
type Event interface {
	Kind() EventKind
	OccurredAt() time.Time
}

// PageViewTracked is published after a page visit has been stored.
type PageViewTracked struct {
	VisitID       uint
	SessionID     string
	PageURL       string
	ReferrerHost  string
	UTMSource     string
	DeviceType    string
	Region        string
	IsLandingPage bool
	Timestamp     time.Time
}

func (e PageViewTracked) Kind() EventKind       { return KindPageViewTracked }
func (e PageViewTracked) OccurredAt() time.Time { return e.Timestamp }

// EngagementRecorded is published after a periodic engagement sample has
// been stored. TimeOnPage is the cumulative seconds reported by the client.
type EngagementRecorded struct {
	VisitID    uint
	SessionID  string
	TimeOnPage int
	Timestamp  time.Time
}

func (e EngagementRecorded) Kind() EventKind       { return KindEngagementRecorded }
func (e EngagementRecorded) OccurredAt() time.Time { return e.Timestamp }

// FormSubmitted is published when a lead-capture form submission is received.
type FormSubmitted struct {
	FormID    uint
	FormType  string
	SessionID string
	Timestamp time.Time
}

func (e FormSubmitted) Kind() EventKind       { return KindFormSubmitted }
func (e FormSubmitted) OccurredAt() time.Time { return e.Timestamp }

// FormProcessed is published once a submission has been validated and stored.
type FormProcessed struct {
	FormID    uint
	FormType  string
	SessionID string
	Timestamp time.Time
}

func (e FormProcessed) Kind() EventKind       { return KindFormProcessed }
func (e FormProcessed) OccurredAt() time.Time { return e.Timestamp }

// FormConverted is published when a submission (or tracked event) qualifies
// as a conversion. ConversionID references the persisted Conversion row.
type FormConverted struct {
	ConversionID   uint
	VisitID        uint
	SessionID      string
	ConversionType string
	Value          float64
	Timestamp      time.Time
}

func (e FormConverted) Kind() EventKind       { return KindFormConverted }
func (e FormConverted) OccurredAt() time.Time { return e.Timestamp }

// FormError is published when submission processing fails.
type FormError struct {
	FormType  string
	SessionID string
	Reason    string
	Timestamp time.Time
}

func (e FormError) Kind() EventKind       { return KindFormError }
func (e FormError) OccurredAt() time.Time { return e.Timestamp }

// Handler reacts to a published event. Handlers run synchronously on the
// publisher's goroutine and must not block for unbounded time.
type Handler func(Event)

// Bus is the in-process event emitter. The zero value is not usable; create
// one with New and pass it by reference to publishers and subscribers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventKind][]Handler
	logger   *slog.Logger
}

// New creates an empty Bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		handlers: make(map[EventKind][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for one event kind.
func (b *Bus) Subscribe(kind EventKind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// SubscribeAll registers a handler for every known event kind.
func (b *Bus) SubscribeAll(h Handler) {
	for _, kind := range []EventKind{
		KindPageViewTracked, KindEngagementRecorded, KindFormSubmitted,
		KindFormProcessed, KindFormConverted, KindFormError,
	} {
		b.Subscribe(kind, h)
	}
}

// Publish dispatches the event to all subscribers of its kind. A panicking
// handler is recovered and logged so one subscriber cannot take down the
// publisher.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := b.handlers[event.Kind()]
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(event, h)
	}
}

func (b *Bus) dispatch(event Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Panic recovered in event handler",
				slog.String("kind", string(event.Kind())),
				slog.Any("panic", r))
		}
	}()
	h(event)
}
