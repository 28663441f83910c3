package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/terralens/geosignal/internal/usage/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() usagedomain.Repository {
	return &repo{}
}

func (r *repo) InsertRecord(ctx context.Context, db *gorm.DB, record *usagedomain.UsageRecord) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repo) FindRecordsSince(ctx context.Context, db *gorm.DB, userID string, since time.Time) ([]usagedomain.UsageRecord, error) {
	var records []usagedomain.UsageRecord
	err := db.WithContext(ctx).
		Where("user_id = ? AND timestamp >= ?", userID, since).
		Order("timestamp ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) FindRecordsPage(ctx context.Context, db *gorm.DB, userID string, limit, offset int) ([]usagedomain.UsageRecord, error) {
	var records []usagedomain.UsageRecord
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) SumCostSince(ctx context.Context, db *gorm.DB, userID string, since time.Time) (float64, error) {
	var sum *float64
	err := db.WithContext(ctx).
		Model(&usagedomain.UsageRecord{}).
		Select("SUM(total_cost)").
		Where("user_id = ? AND timestamp >= ?", userID, since).
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}

// AddToDailySummary upserts the user/day aggregate additively.
func (r *repo) AddToDailySummary(ctx context.Context, db *gorm.DB, delta usagedomain.DailySummaryDelta) error {
	summary := usagedomain.DailyUsageSummary{
		ID:          snowflake.ID(delta.SummaryID),
		UserID:      delta.UserID,
		Date:        delta.Date,
		TotalCalls:  delta.Calls,
		TotalTokens: delta.Tokens,
		TotalCost:   delta.Cost,
		UpdatedAt:   delta.Now,
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]any{
			"total_calls":  gorm.Expr("gpt_daily_usage.total_calls + ?", delta.Calls),
			"total_tokens": gorm.Expr("gpt_daily_usage.total_tokens + ?", delta.Tokens),
			"total_cost":   gorm.Expr("gpt_daily_usage.total_cost + ?", delta.Cost),
			"updated_at":   delta.Now,
		}),
	}).Create(&summary).Error
}

func (r *repo) FindDailySummary(ctx context.Context, db *gorm.DB, userID, date string) (*usagedomain.DailyUsageSummary, error) {
	var summary usagedomain.DailyUsageSummary
	err := db.WithContext(ctx).
		Where("user_id = ? AND date = ?", userID, date).
		First(&summary).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &summary, nil
}

func (r *repo) FindDailySummariesFrom(ctx context.Context, db *gorm.DB, userID, fromDate string) ([]usagedomain.DailyUsageSummary, error) {
	var summaries []usagedomain.DailyUsageSummary
	err := db.WithContext(ctx).
		Where("user_id = ? AND date >= ?", userID, fromDate).
		Order("date ASC").
		Find(&summaries).Error
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

func (r *repo) FindAlertConfig(ctx context.Context, db *gorm.DB, userID string) (*usagedomain.UsageAlertConfig, error) {
	var config usagedomain.UsageAlertConfig
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&config).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &config, nil
}

func (r *repo) UpsertAlertConfig(ctx context.Context, db *gorm.DB, config *usagedomain.UsageAlertConfig) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"daily_cost_limit":   config.DailyCostLimit,
			"monthly_cost_limit": config.MonthlyCostLimit,
			"daily_token_limit":  config.DailyTokenLimit,
			"alert_email":        config.AlertEmail,
			"updated_at":         config.UpdatedAt,
		}),
	}).Create(config).Error
}
