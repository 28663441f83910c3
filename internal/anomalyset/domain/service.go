package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	signaldomain "github.com/terralens/geosignal/internal/signal/domain"
)

type Service interface {
	Store(ctx context.Context, req StoreRequest) (snowflake.ID, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]AnomalySet, error)
	Get(ctx context.Context, id snowflake.ID) (*AnomalySet, error)
	Delete(ctx context.Context, id snowflake.ID, userID string) error
	CreateFromQuery(ctx context.Context, req CreateFromQueryRequest) (snowflake.ID, error)
}

type StoreRequest struct {
	Name            string        `json:"name"`
	Description     string        `json:"description"`
	UserID          string        `json:"-"`
	Anomalies       []Anomaly     `json:"anomalies"`
	OriginalQueryID *snowflake.ID `json:"original_query_id,omitempty"`
}

type CreateFromQueryRequest struct {
	QueryID     snowflake.ID `json:"query_id"`
	UserID      string       `json:"-"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
}

// RunMetadataPatch is the rerun success-path update. Version must match the
// value read before generation; the patch fails with ErrVersionConflict
// otherwise.
type RunMetadataPatch struct {
	ID             snowflake.ID
	Version        int64
	RunCount       int
	LastRunAt      time.Time
	LastRunResults []signaldomain.Signal
}
