package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	querydomain "github.com/terralens/geosignal/internal/query/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() querydomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, query *querydomain.Query) error {
	return db.WithContext(ctx).Create(query).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*querydomain.Query, error) {
	var query querydomain.Query
	err := db.WithContext(ctx).Where("id = ?", id).First(&query).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &query, nil
}

func (r *repo) CountSince(ctx context.Context, db *gorm.DB, userID string, since time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&querydomain.Query{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&count).Error
	return count, err
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status querydomain.QueryStatus, completedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE queries SET status = ?, completed_at = ? WHERE id = ?`,
		status,
		completedAt,
		id,
	).Error
}
