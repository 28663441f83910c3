// Package domain contains persistence models for the model-call usage ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UsageRecord stores one call to the generation service. Records are
// append-only: once written they are never modified or deleted.
type UsageRecord struct {
	ID               snowflake.ID  `json:"id" gorm:"primaryKey"`
	UserID           string        `json:"user_id" gorm:"type:text;not null;index:idx_gpt_usage_user_ts,priority:1"`
	QueryID          *snowflake.ID `json:"query_id,omitempty"`
	Timestamp        time.Time     `json:"timestamp" gorm:"not null;index:idx_gpt_usage_user_ts,priority:2"`
	Model            string        `json:"model" gorm:"type:text;not null"`
	Endpoint         string        `json:"endpoint" gorm:"type:text;not null"`
	Purpose          string        `json:"purpose" gorm:"type:text"`
	PromptTokens     int           `json:"prompt_tokens" gorm:"not null"`
	CompletionTokens int           `json:"completion_tokens" gorm:"not null"`
	TotalTokens      int           `json:"total_tokens" gorm:"not null"`
	InputCost        float64       `json:"input_cost" gorm:"not null"`
	OutputCost       float64       `json:"output_cost" gorm:"not null"`
	TotalCost        float64       `json:"total_cost" gorm:"not null"`
	CacheHit         bool          `json:"cache_hit" gorm:"not null;default:false"`
	ResponseTimeMS   int           `json:"response_time_ms" gorm:"not null;default:0"`
	Error            string        `json:"error,omitempty" gorm:"type:text"`
	AnomalyCount     *int          `json:"anomaly_count,omitempty"`
	SignalCount      *int          `json:"signal_count,omitempty"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "gpt_usage" }

// DailyUsageSummary is the per-user-per-day additive aggregate, upserted on
// every ledger write.
type DailyUsageSummary struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID      string       `json:"user_id" gorm:"type:text;not null;uniqueIndex:ux_gpt_daily_user_date,priority:1"`
	Date        string       `json:"date" gorm:"type:text;not null;uniqueIndex:ux_gpt_daily_user_date,priority:2"` // YYYY-MM-DD
	TotalCalls  int64        `json:"total_calls" gorm:"not null;default:0"`
	TotalTokens int64        `json:"total_tokens" gorm:"not null;default:0"`
	TotalCost   float64      `json:"total_cost" gorm:"not null;default:0"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (DailyUsageSummary) TableName() string { return "gpt_daily_usage" }

// UsageAlertConfig holds a user's advisory spend/usage thresholds. Crossing
// a threshold produces a logged warning and never blocks the call.
type UsageAlertConfig struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID           string       `json:"user_id" gorm:"type:text;not null;uniqueIndex:ux_gpt_usage_alerts_user"`
	DailyCostLimit   *float64     `json:"daily_cost_limit,omitempty"`
	MonthlyCostLimit *float64     `json:"monthly_cost_limit,omitempty"`
	DailyTokenLimit  *int64       `json:"daily_token_limit,omitempty"`
	AlertEmail       string       `json:"alert_email,omitempty" gorm:"type:text"`
	UpdatedAt        time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UsageAlertConfig) TableName() string { return "gpt_usage_alerts" }
