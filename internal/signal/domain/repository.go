package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	BatchInsert(ctx context.Context, db *gorm.DB, signals []Signal) error
	FindByQueryID(ctx context.Context, db *gorm.DB, queryID snowflake.ID) ([]Signal, error)
}
