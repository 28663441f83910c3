package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	signaldomain "github.com/terralens/geosignal/internal/signal/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() signaldomain.Repository {
	return &repo{}
}

func (r *repo) BatchInsert(ctx context.Context, db *gorm.DB, signals []signaldomain.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&signals).Error
}

func (r *repo) FindByQueryID(ctx context.Context, db *gorm.DB, queryID snowflake.ID) ([]signaldomain.Signal, error) {
	var signals []signaldomain.Signal
	err := db.WithContext(ctx).Raw(
		`SELECT id, query_id, user_id, instrument, direction, confidence, magnitude, thesis, aoi_id, domain, created_at
		 FROM signals WHERE query_id = ? ORDER BY id ASC`,
		queryID,
	).Scan(&signals).Error
	if err != nil {
		return nil, err
	}
	return signals, nil
}
