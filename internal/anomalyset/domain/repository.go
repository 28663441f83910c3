package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, set *AnomalySet) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*AnomalySet, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID string, limit int) ([]AnomalySet, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	UpdateRunMetadata(ctx context.Context, db *gorm.DB, patch RunMetadataPatch) error
}
