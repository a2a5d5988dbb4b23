// Package realtime accumulates in-memory analytics counters from domain
// events and periodically materializes them as metrics snapshots. Counters
// are bucketed by UTC day and guarded by a single mutex; the aggregation and
// persist ticks run from the scheduler and never overlap a handler update
// mid-write.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"gorm.io/datatypes"

	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/apperrors"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/bus"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/config"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/tracking"
)

const dayKeyFormat = "2006-01-02"

// SnapshotWriter persists a materialized metrics snapshot.
type SnapshotWriter interface {
	InsertMetricsSnapshot(snapshot *tracking.MetricsSnapshot) error
}

// window holds the raw counters for one UTC day.
type window struct {
	landingPageVisits int
	pageViews         int
	conversions       int
	formSubmissions   int
	formsProcessed    int
	formErrors        int

	referrals map[string]int
	devices   map[string]int
	regions   map[string]int

	sessions          map[string]struct{}
	engagementSeconds int

	averageTimePerUser float64
	conversionRate     float64
}

func newWindow() *window {
	return &window{
		referrals: make(map[string]int),
		devices:   make(map[string]int),
		regions:   make(map[string]int),
		sessions:  make(map[string]struct{}),
	}
}

// recompute refreshes the derived metrics from the raw counters.
func (w *window) recompute() {
	if len(w.sessions) > 0 {
		w.averageTimePerUser = float64(w.engagementSeconds) / float64(len(w.sessions))
	} else {
		w.averageTimePerUser = 0
	}
	w.conversionRate = tracking.SafeRate(int64(w.conversions), int64(w.landingPageVisits))
}

// WindowView is a read-only copy of one day bucket for the stats endpoint.
type WindowView struct {
	LandingPageVisits  int            `json:"landingPageVisits"`
	PageViews          int            `json:"pageViews"`
	Conversions        int            `json:"conversions"`
	FormSubmissions    int            `json:"formSubmissions"`
	FormsProcessed     int            `json:"formsProcessed"`
	FormErrors         int            `json:"formErrors"`
	Referrals          map[string]int `json:"referrals"`
	Devices            map[string]int `json:"devices"`
	Regions            map[string]int `json:"regions"`
	Sessions           int            `json:"sessions"`
	AverageTimePerUser float64        `json:"averageTimePerUser"`
	ConversionRate     float64        `json:"conversionRate"`
}

// StatsView is the full in-memory state exposed over HTTP.
type StatsView struct {
	Days          map[string]WindowView `json:"days"`
	FailedFlushes int                   `json:"failedFlushes"`
}

// Aggregator is the in-process counter store. Create one per process with
// New; it subscribes itself to the event bus and stays registered for the
// process lifetime.
type Aggregator struct {
	mu            sync.Mutex
	windows       map[string]*window
	failedFlushes int

	writer SnapshotWriter
	logger *slog.Logger
	cfg    *config.Config
}

// New creates an aggregator and subscribes it to the domain event bus.
func New(events *bus.Bus, writer SnapshotWriter, logger *slog.Logger) *Aggregator {
	a := &Aggregator{
		windows: make(map[string]*window),
		writer:  writer,
		logger:  logger,
		cfg:     config.GetConfig(),
	}

	events.Subscribe(bus.KindPageViewTracked, a.handleEvent)
	events.Subscribe(bus.KindEngagementRecorded, a.handleEvent)
	events.Subscribe(bus.KindFormSubmitted, a.handleEvent)
	events.Subscribe(bus.KindFormProcessed, a.handleEvent)
	events.Subscribe(bus.KindFormConverted, a.handleEvent)
	events.Subscribe(bus.KindFormError, a.handleEvent)

	return a
}

func (a *Aggregator) handleEvent(event bus.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	w := a.windowFor(event.OccurredAt())

	switch e := event.(type) {
	case bus.PageViewTracked:
		w.pageViews++
		if e.IsLandingPage {
			w.landingPageVisits++
		}
		if e.SessionID != "" {
			w.sessions[e.SessionID] = struct{}{}
		}
		if source := referralKey(e); source != "" {
			w.referrals[source]++
		}
		if e.DeviceType != "" {
			w.devices[e.DeviceType]++
		}
		if e.Region != "" {
			w.regions[e.Region]++
		}
	case bus.EngagementRecorded:
		w.engagementSeconds += e.TimeOnPage
		if e.SessionID != "" {
			w.sessions[e.SessionID] = struct{}{}
		}
	case bus.FormSubmitted:
		w.formSubmissions++
	case bus.FormProcessed:
		w.formsProcessed++
	case bus.FormConverted:
		w.conversions++
	case bus.FormError:
		w.formErrors++
	}
}

// referralKey prefers the explicit utm source, falling back to the referrer
// host for organic traffic.
func referralKey(e bus.PageViewTracked) string {
	if e.UTMSource != "" {
		return e.UTMSource
	}
	return e.ReferrerHost
}

func (a *Aggregator) windowFor(at time.Time) *window {
	key := at.UTC().Format(dayKeyFormat)
	w, ok := a.windows[key]
	if !ok {
		w = newWindow()
		a.windows[key] = w
	}
	return w
}

// Aggregate recomputes derived metrics for every open window. It never
// touches storage.
func (a *Aggregator) Aggregate() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, w := range a.windows {
		w.recompute()
	}
}

// Flush materializes every open day window as a realtime MetricsSnapshot.
// Windows that persist successfully are cleared; a window whose write fails
// is retained for the next persist tick so no counters are lost. After
// FlushMaxRetries consecutive failed ticks the oldest day window is dropped
// to bound memory growth.
func (a *Aggregator) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.windows) == 0 {
		return nil
	}

	var firstErr error
	for _, key := range a.sortedDayKeys() {
		w := a.windows[key]
		w.recompute()

		snapshot, err := buildSnapshot(w)
		if err == nil {
			err = a.writer.InsertMetricsSnapshot(snapshot)
		}
		if err != nil {
			a.logger.Error("Failed to persist realtime snapshot",
				slog.String("day", key),
				slog.Any("error", err))
			if firstErr == nil {
				firstErr = &apperrors.FlushError{Attempt: a.failedFlushes + 1, Err: err}
			}
			continue
		}

		delete(a.windows, key)
	}

	if firstErr == nil {
		a.failedFlushes = 0
		return nil
	}

	a.failedFlushes++
	if a.failedFlushes >= a.cfg.FlushMaxRetries {
		a.dropOldestWindow()
		a.failedFlushes = 0
	}
	return firstErr
}

// dropOldestWindow discards the earliest retained day bucket. Callers hold
// the mutex.
func (a *Aggregator) dropOldestWindow() {
	keys := a.sortedDayKeys()
	if len(keys) == 0 {
		return
	}
	a.logger.Warn("Dropping oldest unflushed window after repeated flush failures",
		slog.String("day", keys[0]))
	delete(a.windows, keys[0])
}

func (a *Aggregator) sortedDayKeys() []string {
	keys := make([]string, 0, len(a.windows))
	for key := range a.windows {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func buildSnapshot(w *window) (*tracking.MetricsSnapshot, error) {
	referrals, err := json.Marshal(w.referrals)
	if err != nil {
		return nil, err
	}
	devices, err := json.Marshal(w.devices)
	if err != nil {
		return nil, err
	}
	regions, err := json.Marshal(w.regions)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &tracking.MetricsSnapshot{
		ReportType:         tracking.ReportTypeRealtime,
		LandingPageVisits:  w.landingPageVisits,
		PageViews:          w.pageViews,
		Conversions:        w.conversions,
		FormSubmissions:    w.formSubmissions,
		FormsProcessed:     w.formsProcessed,
		FormErrors:         w.formErrors,
		ReferralCounts:     datatypes.JSON(referrals),
		Devices:            datatypes.JSON(devices),
		Geography:          datatypes.JSON(regions),
		AverageTimePerUser: w.averageTimePerUser,
		ConversionRate:     w.conversionRate,
		SnapshotTime:       now,
		CreatedAt:          now,
	}, nil
}

// ResetStats clears all in-memory counters. Persisted snapshots are not
// affected. Safe to call repeatedly.
func (a *Aggregator) ResetStats() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.windows = make(map[string]*window)
	a.failedFlushes = 0
}

// Stats returns a deep copy of the current in-memory state.
func (a *Aggregator) Stats() StatsView {
	a.mu.Lock()
	defer a.mu.Unlock()

	view := StatsView{
		Days:          make(map[string]WindowView, len(a.windows)),
		FailedFlushes: a.failedFlushes,
	}
	for key, w := range a.windows {
		w.recompute()
		view.Days[key] = WindowView{
			LandingPageVisits:  w.landingPageVisits,
			PageViews:          w.pageViews,
			Conversions:        w.conversions,
			FormSubmissions:    w.formSubmissions,
			FormsProcessed:     w.formsProcessed,
			FormErrors:         w.formErrors,
			Referrals:          copyCounts(w.referrals),
			Devices:            copyCounts(w.devices),
			Regions:            copyCounts(w.regions),
			Sessions:           len(w.sessions),
			AverageTimePerUser: w.averageTimePerUser,
			ConversionRate:     w.conversionRate,
		}
	}
	return view
}

func copyCounts(src map[string]int) map[string]int {
	dst := make(map[string]int, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
