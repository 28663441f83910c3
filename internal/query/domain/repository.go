package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, query *Query) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Query, error)
	CountSince(ctx context.Context, db *gorm.DB, userID string, since time.Time) (int64, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status QueryStatus, completedAt time.Time) error
}
