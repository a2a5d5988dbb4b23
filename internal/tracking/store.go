package tracking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/apperrors"
)

// storageRetryAttempts bounds transparent retries for transient failures.
const storageRetryAttempts = 3

// Store is the persistence boundary for the analytics core. All writes go
// through the serialized write path; reads use the shared pooled connection.
type Store struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
}

// NewStore creates a Store backed by the given database manager.
func NewStore(dbManager cartridge.DBManager, logger *slog.Logger) *Store {
	return &Store{dbManager: dbManager, logger: logger}
}

// DB exposes the underlying connection for read-side query composition.
func (s *Store) DB() *gorm.DB {
	return s.dbManager.GetConnection()
}

func (s *Store) write(op string, fn func(tx *gorm.DB) error) error {
	return apperrors.RetryStorage(s.logger, storageRetryAttempts, func() error {
		err := sqlite.PerformWrite(s.logger, s.dbManager.GetConnection(), fn)
		return apperrors.WrapStorage(op, err)
	})
}

// InsertPageVisit stores a new page visit row.
func (s *Store) InsertPageVisit(visit *PageVisit) error {
	return s.write("insert page_visit", func(tx *gorm.DB) error {
		return tx.Create(visit).Error
	})
}

// InsertEngagementSample stores one engagement sample for a visit.
func (s *Store) InsertEngagementSample(sample *EngagementSample) error {
	return s.write("insert engagement_sample", func(tx *gorm.DB) error {
		return tx.Create(sample).Error
	})
}

// InsertConversion stores a conversion row.
func (s *Store) InsertConversion(conversion *Conversion) error {
	return s.write("insert conversion", func(tx *gorm.DB) error {
		return tx.Create(conversion).Error
	})
}

// InsertFormSubmission stores a lead-capture submission.
func (s *Store) InsertFormSubmission(submission *FormSubmission) error {
	return s.write("insert form_submission", func(tx *gorm.DB) error {
		return tx.Create(submission).Error
	})
}

// UpdateFormSubmissionStatus transitions a submission's lifecycle status.
func (s *Store) UpdateFormSubmissionStatus(id uint, status string) error {
	return s.write("update form_submission status", func(tx *gorm.DB) error {
		return tx.Model(&FormSubmission{}).Where("id = ?", id).
			Update("status", status).Error
	})
}

// LatestFormSubmissionBySession returns the most recent stored submission for
// a session, or nil when the session never submitted a form.
func (s *Store) LatestFormSubmissionBySession(sessionID string) (*FormSubmission, error) {
	var submission FormSubmission
	err := s.DB().Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(1).
		First(&submission).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperrors.WrapStorage("select latest form_submission", err)
	}
	return &submission, nil
}

// ReplaceAttributionRecords deletes any prior records for the conversion and
// model, then inserts the new set in one transaction. Re-running attribution
// for a conversion is therefore idempotent.
func (s *Store) ReplaceAttributionRecords(conversionID uint, model AttributionModel, records []AttributionRecord) error {
	return s.write("replace attribution_records", func(tx *gorm.DB) error {
		if err := tx.Where("conversion_id = ? AND attribution_model = ?", conversionID, model).
			Delete(&AttributionRecord{}).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		return tx.Create(&records).Error
	})
}

// InsertMetricsSnapshot appends a snapshot row. History is retained for
// trend charts; snapshots are never updated in place.
func (s *Store) InsertMetricsSnapshot(snapshot *MetricsSnapshot) error {
	return s.write("insert metrics_snapshot", func(tx *gorm.DB) error {
		return tx.Create(snapshot).Error
	})
}

// ConversionByID fetches one conversion or nil when it does not exist.
func (s *Store) ConversionByID(id uint) (*Conversion, error) {
	var conversion Conversion
	err := s.DB().First(&conversion, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperrors.WrapStorage("select conversion", err)
	}
	return &conversion, nil
}

// VisitByID fetches one page visit or nil when it does not exist.
func (s *Store) VisitByID(id uint) (*PageVisit, error) {
	var visit PageVisit
	err := s.DB().First(&visit, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperrors.WrapStorage("select page_visit", err)
	}
	return &visit, nil
}

// LatestVisitBySession returns the most recent visit for a session, or nil
// when the session has no tracked visits.
func (s *Store) LatestVisitBySession(sessionID string) (*PageVisit, error) {
	var visit PageVisit
	err := s.DB().Where("session_id = ?", sessionID).
		Order("visit_time DESC").
		Limit(1).
		First(&visit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperrors.WrapStorage("select latest visit", err)
	}
	return &visit, nil
}

// SessionVisitsBefore returns all visits for a session with visitTime at or
// before the cutoff, ordered ascending by visitTime. Attribution ordering
// relies on this server-assigned timestamp ordering, not arrival order.
func (s *Store) SessionVisitsBefore(sessionID string, cutoff time.Time) ([]PageVisit, error) {
	var visits []PageVisit
	err := s.DB().Where("session_id = ? AND visit_time <= ?", sessionID, cutoff).
		Order("visit_time ASC").
		Find(&visits).Error
	if err != nil {
		return nil, apperrors.WrapStorage("select session visits", err)
	}
	return visits, nil
}

// AttributionRecordsFor returns the stored records for one conversion+model.
func (s *Store) AttributionRecordsFor(conversionID uint, model AttributionModel) ([]AttributionRecord, error) {
	var records []AttributionRecord
	err := s.DB().Where("conversion_id = ? AND attribution_model = ?", conversionID, model).
		Order("visit_id ASC").
		Find(&records).Error
	if err != nil {
		return nil, apperrors.WrapStorage("select attribution_records", err)
	}
	return records, nil
}

// VisitFilters is the typed predicate set for visit queries. Filters are
// AND-combined; zero values are skipped.
type VisitFilters struct {
	From        time.Time
	To          time.Time
	SessionID   string
	UTMSource   string
	LandingOnly bool
	Limit       int
}

// Apply composes the filters onto a query against page_visits.
func (f VisitFilters) Apply(query *gorm.DB) *gorm.DB {
	if !f.From.IsZero() {
		query = query.Where("visit_time >= ?", f.From)
	}
	if !f.To.IsZero() {
		query = query.Where("visit_time <= ?", f.To)
	}
	if f.SessionID != "" {
		query = query.Where("session_id = ?", f.SessionID)
	}
	if f.UTMSource != "" {
		query = query.Where("utm_source = ?", f.UTMSource)
	}
	if f.LandingOnly {
		query = query.Where("is_landing_page = ?", true)
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}
	return query
}

// CountVisits counts page visits matching the filters.
func (s *Store) CountVisits(filters VisitFilters) (int64, error) {
	var count int64
	err := filters.Apply(s.DB().Model(&PageVisit{})).Count(&count).Error
	if err != nil {
		return 0, apperrors.WrapStorage("count visits", err)
	}
	return count, nil
}

// DateCount pairs a date bucket with a count.
type DateCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// DailyVisitCounts returns visit counts grouped by UTC day over the window.
func (s *Store) DailyVisitCounts(ctx context.Context, from, to time.Time) ([]DateCount, error) {
	var results []DateCount
	err := s.DB().WithContext(ctx).Raw(`
		SELECT strftime('%Y-%m-%d', visit_time) AS date,
		       COUNT(*) AS count
		FROM page_visits
		WHERE visit_time >= ? AND visit_time <= ?
		GROUP BY date
		ORDER BY date ASC
	`, from.UTC(), to.UTC()).Scan(&results).Error
	if err != nil {
		return nil, apperrors.WrapStorage("daily visit counts", err)
	}
	return results, nil
}

// SnapshotHistory returns stored snapshots of one report type, newest first.
func (s *Store) SnapshotHistory(reportType MetricsReportType, from, to time.Time, limit int) ([]MetricsSnapshot, error) {
	var snapshots []MetricsSnapshot
	query := s.DB().Where("report_type = ?", reportType)
	if !from.IsZero() {
		query = query.Where("snapshot_time >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("snapshot_time <= ?", to)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Order("snapshot_time DESC").Find(&snapshots).Error
	if err != nil {
		return nil, apperrors.WrapStorage("select snapshots", err)
	}
	return snapshots, nil
}

// DeleteOlderThan removes analytics rows older than the cutoff in batches to
// avoid holding the write lock for long stretches. Returns rows removed.
func (s *Store) DeleteOlderThan(cutoff time.Time) (int64, error) {
	batchSize := 1000
	totalDeleted := int64(0)

	targets := []struct {
		model  interface{}
		column string
	}{
		{&EngagementSample{}, "engagement_time"},
		{&AttributionRecord{}, "created_at"},
		{&Conversion{}, "conversion_time"},
		{&PageVisit{}, "visit_time"},
	}

	for _, target := range targets {
		for {
			var affected int64
			err := s.write("cleanup old rows", func(tx *gorm.DB) error {
				result := tx.Where(target.column+" < ?", cutoff).
					Limit(batchSize).
					Delete(target.model)
				affected = result.RowsAffected
				return result.Error
			})
			if err != nil {
				return totalDeleted, err
			}

			totalDeleted += affected
			if affected < int64(batchSize) {
				break
			}

			// Small delay between batches to prevent lock contention
			time.Sleep(100 * time.Millisecond)
		}
	}

	return totalDeleted, nil
}
