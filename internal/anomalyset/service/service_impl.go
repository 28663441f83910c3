package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	anomalysetdomain "github.com/terralens/geosignal/internal/anomalyset/domain"
	"github.com/terralens/geosignal/internal/clock"
	signaldomain "github.com/terralens/geosignal/internal/signal/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultListLimit = 20

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       anomalysetdomain.Repository
	SignalRepo signaldomain.Repository
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       anomalysetdomain.Repository
	signalRepo signaldomain.Repository
}

func New(p Params) anomalysetdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("anomalyset.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		signalRepo: p.SignalRepo,
	}
}

func (s *Service) Store(ctx context.Context, req anomalysetdomain.StoreRequest) (snowflake.ID, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return 0, anomalysetdomain.ErrInvalidUser
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return 0, anomalysetdomain.ErrInvalidName
	}

	anomalies := req.Anomalies
	if anomalies == nil {
		// An empty anomaly list is accepted.
		anomalies = []anomalysetdomain.Anomaly{}
	}

	set := &anomalysetdomain.AnomalySet{
		ID:              s.genID.Generate(),
		UserID:          userID,
		Name:            name,
		Description:     strings.TrimSpace(req.Description),
		Anomalies:       datatypes.NewJSONType(anomalies),
		OriginalQueryID: req.OriginalQueryID,
		RunCount:        0,
		CreatedAt:       s.clock.Now(),
	}

	if err := s.repo.Insert(ctx, s.db, set); err != nil {
		return 0, err
	}

	s.log.Info("anomaly set stored",
		zap.String("anomaly_set_id", set.ID.String()),
		zap.String("user_id", userID),
		zap.Int("anomaly_count", len(anomalies)),
	)
	return set.ID, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]anomalysetdomain.AnomalySet, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, anomalysetdomain.ErrInvalidUser
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.repo.ListByUser(ctx, s.db, userID, limit)
}

// Get has no ownership check; callers that know the requesting user enforce
// ownership themselves.
func (s *Service) Get(ctx context.Context, id snowflake.ID) (*anomalysetdomain.AnomalySet, error) {
	return s.repo.FindByID(ctx, s.db, id)
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID, userID string) error {
	set, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if set == nil {
		return anomalysetdomain.ErrNotFound
	}
	if set.UserID != strings.TrimSpace(userID) {
		return anomalysetdomain.ErrUnauthorized
	}
	if err := s.repo.Delete(ctx, s.db, id); err != nil {
		return err
	}
	s.log.Info("anomaly set deleted",
		zap.String("anomaly_set_id", id.String()),
		zap.String("user_id", set.UserID),
	)
	return nil
}

// CreateFromQuery derives a set from the signal collection of a prior
// analysis run, deduplicating by AOI (first occurrence wins).
func (s *Service) CreateFromQuery(ctx context.Context, req anomalysetdomain.CreateFromQueryRequest) (snowflake.ID, error) {
	signals, err := s.signalRepo.FindByQueryID(ctx, s.db, req.QueryID)
	if err != nil {
		return 0, err
	}
	if len(signals) == 0 {
		return 0, signaldomain.ErrEmptyResult
	}

	now := s.clock.Now().Format(time.RFC3339)
	seen := make(map[string]bool, len(signals))
	anomalies := make([]anomalysetdomain.Anomaly, 0, len(signals))
	for _, sig := range signals {
		aoiID := sig.AOIID
		if aoiID == "" {
			aoiID = sig.Instrument
		}
		if seen[aoiID] {
			continue
		}
		seen[aoiID] = true

		domain := sig.Domain
		if !domain.Valid() {
			domain = signaldomain.DomainPort
		}
		anomalies = append(anomalies, anomalysetdomain.Anomaly{
			AOIID:       aoiID,
			AOIName:     aoiID,
			Domain:      domain,
			Magnitude:   sig.Magnitude,
			Confidence:  sig.Confidence,
			Timestamp:   now,
			Description: sig.Thesis,
		})
	}

	queryID := req.QueryID
	return s.Store(ctx, anomalysetdomain.StoreRequest{
		Name:            req.Name,
		Description:     req.Description,
		UserID:          req.UserID,
		Anomalies:       anomalies,
		OriginalQueryID: &queryID,
	})
}
