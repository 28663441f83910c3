package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	anomalysetdomain "github.com/terralens/geosignal/internal/anomalyset/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() anomalysetdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, set *anomalysetdomain.AnomalySet) error {
	return db.WithContext(ctx).Create(set).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*anomalysetdomain.AnomalySet, error) {
	var set anomalysetdomain.AnomalySet
	err := db.WithContext(ctx).Where("id = ?", id).First(&set).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &set, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID string, limit int) ([]anomalysetdomain.AnomalySet, error) {
	var sets []anomalysetdomain.AnomalySet
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&sets).Error
	if err != nil {
		return nil, err
	}
	return sets, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&anomalysetdomain.AnomalySet{}).Error
}

// UpdateRunMetadata patches run metadata with a compare-and-swap on Version.
// Zero affected rows means another rerun won the race.
func (r *repo) UpdateRunMetadata(ctx context.Context, db *gorm.DB, patch anomalysetdomain.RunMetadataPatch) error {
	result := db.WithContext(ctx).
		Model(&anomalysetdomain.AnomalySet{}).
		Where("id = ? AND version = ?", patch.ID, patch.Version).
		Updates(map[string]any{
			"run_count":        patch.RunCount,
			"last_run_at":      patch.LastRunAt,
			"last_run_results": datatypes.NewJSONType(patch.LastRunResults),
			"version":          patch.Version + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return anomalysetdomain.ErrVersionConflict
	}
	return nil
}
