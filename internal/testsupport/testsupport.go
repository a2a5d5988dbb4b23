package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/cache"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/config"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/tracking"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager behind the DBManager
// interface the stores expect.
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

var _ cartridge.DBManager = (*TestDBManager)(nil)

// allModels returns every persisted model for migration.
func allModels() []any {
	return []any{
		&cache.CacheRecord{},
		&tracking.PageVisit{},
		&tracking.EngagementSample{},
		&tracking.Conversion{},
		&tracking.AttributionRecord{},
		&tracking.MetricsSnapshot{},
		&tracking.FormSubmission{},
	}
}

// SetupTestDB creates a test database with all models migrated. Uses a named
// in-memory database with cache=shared so multiple connections within a test
// share the same database; the database is cached per root test name so
// subtests and helpers see one database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	cfg := config.GetConfig()

	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set UDTWEB_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	testLogger := GetLogger()
	dbManager := NewTestDBManager(db)

	return dbManager, testLogger
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)

	var tables []string
	for _, name := range tableNames {
		if name != "migrations" && name != "schema_migrations" {
			tables = append(tables, name)
		}
	}

	if len(tables) == 0 {
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CreateTestVisit inserts a page visit with sensible defaults. Overrides go
// through the returned pointer before further fixtures reference it.
func CreateTestVisit(t *testing.T, db *gorm.DB, sessionID, pageURL string, visitTime time.Time, landing bool) *tracking.PageVisit {
	t.Helper()

	visit := &tracking.PageVisit{
		PageURL:       pageURL,
		SessionID:     sessionID,
		DeviceType:    "desktop",
		Region:        "US",
		IsLandingPage: landing,
		VisitTime:     visitTime.UTC(),
		CreatedAt:     visitTime.UTC(),
	}
	require.NoError(t, db.Create(visit).Error)
	return visit
}

// CreateTestVisitWithSource inserts a landing visit tagged with a utm source.
func CreateTestVisitWithSource(t *testing.T, db *gorm.DB, sessionID, pageURL, utmSource string, visitTime time.Time) *tracking.PageVisit {
	t.Helper()

	visit := &tracking.PageVisit{
		PageURL:       pageURL,
		SessionID:     sessionID,
		UTMSource:     utmSource,
		DeviceType:    "desktop",
		Region:        "US",
		IsLandingPage: true,
		VisitTime:     visitTime.UTC(),
		CreatedAt:     visitTime.UTC(),
	}
	require.NoError(t, db.Create(visit).Error)
	return visit
}

// CreateTestConversion inserts a conversion tied to a visit.
func CreateTestConversion(t *testing.T, db *gorm.DB, visitID uint, sessionID, conversionType string, at time.Time) *tracking.Conversion {
	t.Helper()

	conversion := &tracking.Conversion{
		VisitID:        visitID,
		SessionID:      sessionID,
		ConversionType: conversionType,
		ConversionTime: at.UTC(),
		CreatedAt:      at.UTC(),
	}
	require.NoError(t, db.Create(conversion).Error)
	return conversion
}

// CreateTestEngagement inserts one engagement sample for a visit.
func CreateTestEngagement(t *testing.T, db *gorm.DB, visitID uint, timeOnPage, scrollDepth int, at time.Time) *tracking.EngagementSample {
	t.Helper()

	sample := &tracking.EngagementSample{
		VisitID:        visitID,
		TimeOnPage:     timeOnPage,
		ScrollDepth:    scrollDepth,
		EngagementTime: at.UTC(),
		CreatedAt:      at.UTC(),
	}
	require.NoError(t, db.Create(sample).Error)
	return sample
}

// CreateTestFormSubmission inserts a lead-capture submission.
func CreateTestFormSubmission(t *testing.T, db *gorm.DB, formType, sessionID, email string) *tracking.FormSubmission {
	t.Helper()

	submission := &tracking.FormSubmission{
		FormType:  formType,
		SessionID: sessionID,
		Name:      "Test Lead",
		Email:     email,
		Status:    "submitted",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, db.Create(submission).Error)
	return submission
}

// RouteMounter mounts application routes onto a cartridge server. It matches
// the signature of the production route setup so tests can reuse it.
type RouteMounter func(*cartridge.Server)

// CreateTestApp creates a Fiber app with the given routes mounted over a
// fresh test database.
func CreateTestApp(t *testing.T, db *gorm.DB, mount RouteMounter) *fiber.App {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := config.GetConfig()
	appConfig.Environment = config.Test

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	mount(srv)
	return srv.App()
}
