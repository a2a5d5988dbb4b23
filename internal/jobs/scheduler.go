// Package jobs runs the background work: the real-time aggregator's two
// timers, periodic metric rollups, and retention cleanup.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/config"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/realtime"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/tracking"
)

// Scheduler is responsible for running background jobs
type Scheduler struct {
	store      *tracking.Store
	aggregator *realtime.Aggregator
	logger     *slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	enabled    bool
	isRunning  bool
	cfg        *config.Config

	// Mutex to prevent concurrent batch job executions. The aggregator's
	// two timers are exempt: they only touch the aggregator's own state
	// and must stay on schedule.
	processingMutex sync.Mutex
	isProcessing    bool

	rollupJob  *RollupJob
	cleanupJob *CleanupJob

	aggregateTicker *time.Ticker
	persistTicker   *time.Ticker
	rollupTicker    *time.Ticker
	cleanupTicker   *time.Ticker
}

func NewScheduler(store *tracking.Store, aggregator *realtime.Aggregator, logger *slog.Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := config.GetConfig()

	s := &Scheduler{
		store:      store,
		aggregator: aggregator,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		enabled:    true,
		isRunning:  false,
		cfg:        cfg,
	}

	s.rollupJob = NewRollupJob(store, logger)
	s.cleanupJob = NewCleanupJob(store, logger, cfg)

	return s, nil
}

// executeJobSafely runs a batch job only if no other batch job is executing
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func() error) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start begins all background jobs
func (s *Scheduler) Start() error {
	if !s.enabled {
		s.logger.Info("Background jobs are disabled.")
		return nil
	}

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.logger.Info("Starting background jobs...")

	s.isRunning = true

	s.startAggregationTimers()
	s.startRollupJob()
	s.startCleanupJob()

	s.logger.Info("Background jobs started",
		slog.Bool("enabled", s.enabled),
		slog.Bool("isRunning", s.isRunning))

	return nil
}

// startAggregationTimers runs the aggregator's two independent ticks: the
// aggregation tick recomputes derived metrics in memory, the persist tick
// flushes windows to storage. They never run batch jobs and never skip.
func (s *Scheduler) startAggregationTimers() {
	aggregateInterval := time.Duration(s.cfg.AggregationIntervalSeconds) * time.Second
	persistInterval := time.Duration(s.cfg.PersistIntervalSeconds) * time.Second
	s.logger.Info("Starting realtime aggregation timers",
		slog.Duration("aggregateInterval", aggregateInterval),
		slog.Duration("persistInterval", persistInterval))

	s.aggregateTicker = time.NewTicker(aggregateInterval)
	s.persistTicker = time.NewTicker(persistInterval)

	go func() {
		for {
			select {
			case <-s.aggregateTicker.C:
				s.aggregator.Aggregate()
			case <-s.ctx.Done():
				s.logger.Info("Aggregation timer stopped")
				return
			}
		}
	}()

	go func() {
		for {
			select {
			case <-s.persistTicker.C:
				if err := s.aggregator.Flush(); err != nil {
					s.logger.Error("Persist tick failed", slog.Any("error", err))
				}
			case <-s.ctx.Done():
				s.logger.Info("Persist timer stopped")
				return
			}
		}
	}()
}

func (s *Scheduler) startRollupJob() {
	interval := 24 * time.Hour
	s.logger.Info("Starting metrics rollup job", slog.Duration("interval", interval))
	s.rollupTicker = time.NewTicker(interval)

	go func() {
		// Run initial rollup
		s.logger.Info("Running initial metrics rollup...")
		s.executeJobSafely("metrics_rollup", s.rollupJob.Run)

		for {
			select {
			case <-s.rollupTicker.C:
				s.executeJobSafely("metrics_rollup", s.rollupJob.Run)
			case <-s.ctx.Done():
				s.logger.Info("Metrics rollup job stopped")
				return
			}
		}
	}()
}

func (s *Scheduler) startCleanupJob() {
	interval := 24 * time.Hour
	s.logger.Info("Starting cleanup job", slog.Duration("interval", interval))
	s.cleanupTicker = time.NewTicker(interval)

	go func() {
		// Run initial cleanup
		s.logger.Info("Running initial cleanup...")
		s.executeJobSafely("cleanup", s.cleanupJob.Run)

		for {
			select {
			case <-s.cleanupTicker.C:
				s.executeJobSafely("cleanup", s.cleanupJob.Run)
			case <-s.ctx.Done():
				s.logger.Info("Cleanup job stopped")
				return
			}
		}
	}()
}

// FlushNow triggers an immediate persist tick, used on shutdown so buffered
// counters are not lost.
func (s *Scheduler) FlushNow() error {
	return s.aggregator.Flush()
}

// Stop halts all background jobs.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.enabled = false

	for _, ticker := range []*time.Ticker{
		s.aggregateTicker, s.persistTicker, s.rollupTicker, s.cleanupTicker,
	} {
		if ticker != nil {
			ticker.Stop()
		}
	}

	if err := s.aggregator.Flush(); err != nil {
		s.logger.Error("Final flush on shutdown failed", slog.Any("error", err))
	}

	s.cancel()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}
