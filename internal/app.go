// Package internal contains core application functionality
package internal

import (
	"fmt"

	"github.com/karloscodes/cartridge"

	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/attribution"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/bus"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/config"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/database"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/forms"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/geo"
	apphttp "github.com/orcaclubpro/united-tactical-defense-sub002/internal/http"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/insights"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/jobs"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/realtime"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/tracking"
)

// Application wraps cartridge.Application with the analytics components.
type Application struct {
	*cartridge.Application
	DBManager  *database.DBManager
	Events     *bus.Bus
	Aggregator *realtime.Aggregator
	Geo        *geo.Resolver
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	cfg := config.GetConfig()
	return NewAppWithConfig(cfg)
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	events := bus.New(logger)
	resolver := geo.NewResolver(cfg.GeoDBPath, logger)

	store := tracking.NewStore(dbManager, logger)
	trackingSvc := tracking.NewService(store, events, resolver, logger)
	attributionSvc := attribution.NewService(store, logger)
	insightsSvc := insights.NewService(store, logger)
	formsSvc := forms.NewService(store, events, logger)

	aggregator := realtime.New(events, store, logger)

	scheduler, err := jobs.NewScheduler(store, aggregator, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize jobs: %w", err)
	}

	api := apphttp.NewAPI(trackingSvc, attributionSvc, insightsSvc, formsSvc, aggregator, logger)

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:    cfg,
		Logger:    logger,
		DBManager: dbManager,
		RouteMountFunc: func(srv *cartridge.Server) {
			MountAppRoutes(srv, api)
		},
		BackgroundWorkers: []cartridge.BackgroundWorker{scheduler},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start background jobs: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
		Events:      events,
		Aggregator:  aggregator,
		Geo:         resolver,
	}, nil
}
