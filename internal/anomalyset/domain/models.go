// Package domain contains the anomaly-set aggregate and its persistence model.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	signaldomain "github.com/terralens/geosignal/internal/signal/domain"
	"gorm.io/datatypes"
)

// Location pins an anomaly to a point on the map.
type Location struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Region string  `json:"region,omitempty"`
}

// Anomaly is a single detected deviation at a monitored area of interest.
// Anomalies are value objects embedded in a set, never independently
// addressable.
type Anomaly struct {
	AOIID       string              `json:"aoi_id"`
	AOIName     string              `json:"aoi_name"`
	Domain      signaldomain.Domain `json:"domain"`
	Magnitude   float64             `json:"magnitude"`
	Confidence  float64             `json:"confidence"`
	Baseline    *float64            `json:"baseline,omitempty"`
	Timestamp   string              `json:"timestamp"`
	Location    *Location           `json:"location,omitempty"`
	Description string              `json:"description,omitempty"`
}

// AnomalySet is a named, owned, rerunnable collection of anomalies plus its
// run history. Run metadata is mutated only by the rerun orchestrator's
// success path; Version is the optimistic concurrency token compared on
// every run-metadata patch.
type AnomalySet struct {
	ID              snowflake.ID                   `json:"id" gorm:"primaryKey"`
	UserID          string                         `json:"user_id" gorm:"type:text;not null;index:idx_anomaly_sets_user"`
	Name            string                         `json:"name" gorm:"type:text;not null"`
	Description     string                         `json:"description" gorm:"type:text"`
	Anomalies       datatypes.JSONType[[]Anomaly]  `json:"anomalies" gorm:"type:jsonb"`
	OriginalQueryID *snowflake.ID                  `json:"original_query_id,omitempty"`
	RunCount        int                            `json:"run_count" gorm:"not null;default:0"`
	LastRunAt       *time.Time                     `json:"last_run_at,omitempty"`
	LastRunResults  datatypes.JSONType[[]signaldomain.Signal] `json:"last_run_results" gorm:"type:jsonb"`
	Version         int64                          `json:"version" gorm:"not null;default:0"`
	CreatedAt       time.Time                      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AnomalySet) TableName() string { return "anomaly_sets" }

var (
	ErrNotFound        = errors.New("anomaly_set_not_found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidUser     = errors.New("invalid_user")
	ErrInvalidName     = errors.New("invalid_name")
	ErrVersionConflict = errors.New("version_conflict")
)
