package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	InsertRecord(ctx context.Context, db *gorm.DB, record *UsageRecord) error
	FindRecordsSince(ctx context.Context, db *gorm.DB, userID string, since time.Time) ([]UsageRecord, error)
	FindRecordsPage(ctx context.Context, db *gorm.DB, userID string, limit, offset int) ([]UsageRecord, error)
	SumCostSince(ctx context.Context, db *gorm.DB, userID string, since time.Time) (float64, error)

	AddToDailySummary(ctx context.Context, db *gorm.DB, delta DailySummaryDelta) error
	FindDailySummary(ctx context.Context, db *gorm.DB, userID, date string) (*DailyUsageSummary, error)
	FindDailySummariesFrom(ctx context.Context, db *gorm.DB, userID, fromDate string) ([]DailyUsageSummary, error)

	FindAlertConfig(ctx context.Context, db *gorm.DB, userID string) (*UsageAlertConfig, error)
	UpsertAlertConfig(ctx context.Context, db *gorm.DB, config *UsageAlertConfig) error
}

// DailySummaryDelta is one ledger write folded into the daily aggregate.
type DailySummaryDelta struct {
	SummaryID int64 // snowflake ID used only when the row is first inserted
	UserID    string
	Date      string
	Calls     int64
	Tokens    int64
	Cost      float64
	Now       time.Time
}
