package jobs

import (
	"log/slog"
	"time"

	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/config"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/tracking"
)

// CleanupJob removes raw analytics rows older than the retention period.
// Aggregated snapshots are kept; only per-visit rows age out. This helps
// with GDPR data minimization and reduces storage usage.
type CleanupJob struct {
	store  *tracking.Store
	logger *slog.Logger
	cfg    *config.Config
}

func NewCleanupJob(store *tracking.Store, logger *slog.Logger, cfg *config.Config) *CleanupJob {
	return &CleanupJob{
		store:  store,
		logger: logger,
		cfg:    cfg,
	}
}

// Run deletes visits, engagement samples, conversions and attribution
// records past retention.
func (j *CleanupJob) Run() error {
	retentionDays := j.cfg.RetentionDays
	cutoffDate := time.Now().UTC().AddDate(0, 0, -retentionDays)

	j.logger.Info("Starting cleanup of old analytics rows",
		slog.Int("retention_days", retentionDays),
		slog.Time("cutoff_date", cutoffDate))

	deleted, err := j.store.DeleteOlderThan(cutoffDate)
	if err != nil {
		j.logger.Error("Failed to delete old analytics rows",
			slog.Any("error", err),
			slog.Int64("deleted_so_far", deleted))
		return err
	}

	if deleted == 0 {
		j.logger.Debug("No old analytics rows to clean up")
		return nil
	}

	j.logger.Info("Cleaned up old analytics rows",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", retentionDays))

	return nil
}
