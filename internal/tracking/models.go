// Package tracking contains the analytics data model, the persistence
// boundary over SQLite, and the tracking/reporting service.
package tracking

import (
	"time"

	"gorm.io/datatypes"
)

// MetricsReportType is the time-grain of a stored snapshot.
type MetricsReportType string

const (
	ReportTypeRealtime MetricsReportType = "realtime"
	ReportTypeDaily    MetricsReportType = "daily"
	ReportTypeWeekly   MetricsReportType = "weekly"
	ReportTypeMonthly  MetricsReportType = "monthly"
)

// AttributionModel distributes conversion credit across a session's visits.
type AttributionModel string

const (
	ModelFirstTouch AttributionModel = "first"
	ModelLastTouch  AttributionModel = "last"
	ModelLinear     AttributionModel = "linear"
	ModelPosition   AttributionModel = "position"
)

// AllAttributionModels lists the supported models in comparison order.
var AllAttributionModels = []AttributionModel{
	ModelFirstTouch, ModelLastTouch, ModelLinear, ModelPosition,
}

// PageVisit represents one tracked navigation. Rows are immutable after
// creation; VisitTime is server-assigned so per-session ordering is
// consistent regardless of arrival order.
type PageVisit struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	PageURL       string `gorm:"index;not null"`
	Referrer      string
	UTMSource     string `gorm:"index"`
	UTMMedium     string
	UTMCampaign   string
	UserAgent     string
	IPAddress     string
	SessionID     string    `gorm:"index:idx_session_visit_time;size:64;not null"`
	DeviceType    string    `gorm:"index"`
	Region        string    `gorm:"index"`
	IsLandingPage bool      `gorm:"index;not null;default:false"`
	VisitTime     time.Time `gorm:"index:idx_session_visit_time;not null"`
	CreatedAt     time.Time
}

// EngagementSample is a periodic snapshot of in-page behavior for one visit.
// Clients send one every 15 seconds and on unload; TimeOnPage is cumulative
// at time of send and last-writer-wins across samples.
type EngagementSample struct {
	ID               uint      `gorm:"primaryKey;autoIncrement"`
	VisitID          uint      `gorm:"index;not null"`
	TimeOnPage       int       `gorm:"not null;default:0"` // seconds
	ScrollDepth      int       `gorm:"not null;default:0"` // 0-100
	ClickCount       int       `gorm:"not null;default:0"`
	FormInteractions int       `gorm:"not null;default:0"`
	EngagementTime   time.Time `gorm:"index;not null"`
	CreatedAt        time.Time
}

// Conversion is a discrete qualifying action tied to a visit. Created once,
// never mutated.
type Conversion struct {
	ID              uint           `gorm:"primaryKey;autoIncrement"`
	VisitID         uint           `gorm:"index;not null"`
	SessionID       string         `gorm:"index;size:64;not null"`
	ConversionType  string         `gorm:"index;not null"`
	ConversionValue float64        `gorm:"not null;default:0"`
	ConversionData  datatypes.JSON `gorm:"type:text"`
	ConversionTime  time.Time      `gorm:"index;not null"`
	CreatedAt       time.Time
}

// AttributionRecord assigns a fraction of a conversion's credit to one visit
// under one model. Weights for a conversion+model sum to 1.0.
type AttributionRecord struct {
	ID                uint             `gorm:"primaryKey;autoIncrement"`
	ConversionID      uint             `gorm:"uniqueIndex:idx_attr_unique;not null"`
	VisitID           uint             `gorm:"uniqueIndex:idx_attr_unique;not null"`
	AttributionModel  AttributionModel `gorm:"uniqueIndex:idx_attr_unique;size:16;not null"`
	AttributionWeight float64          `gorm:"not null"`
	CreatedAt         time.Time
}

// MetricsSnapshot is an append-only materialized rollup of counters, written
// by the real-time aggregator's persist tick and the scheduled batch rollup.
// Dimension maps are serialized as JSON.
type MetricsSnapshot struct {
	ID                 uint              `gorm:"primaryKey;autoIncrement"`
	ReportType         MetricsReportType `gorm:"index:idx_snapshot_type_time;size:16;not null"`
	LandingPageVisits  int               `gorm:"not null;default:0"`
	PageViews          int               `gorm:"not null;default:0"`
	Conversions        int               `gorm:"not null;default:0"`
	FormSubmissions    int               `gorm:"not null;default:0"`
	FormsProcessed     int               `gorm:"not null;default:0"`
	FormErrors         int               `gorm:"not null;default:0"`
	ReferralCounts     datatypes.JSON    `gorm:"type:text"`
	Devices            datatypes.JSON    `gorm:"type:text"`
	Geography          datatypes.JSON    `gorm:"type:text"`
	AverageTimePerUser float64           `gorm:"not null;default:0"`
	ConversionRate     float64           `gorm:"not null;default:0"`
	SnapshotTime       time.Time         `gorm:"index:idx_snapshot_type_time;not null"`
	CreatedAt          time.Time
}

// FormSubmission is a stored lead-capture submission. The booking/CRM
// forwarding pipeline consumes these rows separately; the analytics core only
// reads them through domain events.
type FormSubmission struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	FormType  string `gorm:"index;not null"`
	SessionID string `gorm:"index;size:64"`
	Name      string
	Email     string `gorm:"index"`
	Phone     string
	Status    string         `gorm:"index;not null;default:'submitted'"` // submitted|processed|error|converted
	Metadata  datatypes.JSON `gorm:"type:text"`
	CreatedAt time.Time      `gorm:"index"`
	UpdatedAt time.Time
}
