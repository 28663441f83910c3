package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/terralens/geosignal/internal/clock"
	"github.com/terralens/geosignal/internal/config"
	querydomain "github.com/terralens/geosignal/internal/query/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	planFree = "free"
	planPro  = "pro"
)

type Params struct {
	fx.In

	Cfg   config.Config
	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  querydomain.Repository
}

type Service struct {
	cfg   config.Config
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  querydomain.Repository
}

func New(p Params) querydomain.Service {
	return &Service{
		cfg:   p.Cfg,
		db:    p.DB,
		log:   p.Log.Named("query.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// LogQueryStart admits or denies a tracked query against the caller's
// monthly plan allowance. A denial writes nothing.
func (s *Service) LogQueryStart(ctx context.Context, userID, prompt string, params querydomain.StartParams) (querydomain.AdmissionResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return querydomain.AdmissionResult{}, querydomain.ErrInvalidUser
	}

	plan := strings.ToLower(strings.TrimSpace(params.Plan))
	if plan == "" {
		plan = planFree
	}
	limit := s.planLimit(plan)

	now := s.clock.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	used, err := s.repo.CountSince(ctx, s.db, userID, monthStart)
	if err != nil {
		return querydomain.AdmissionResult{}, err
	}
	if used >= int64(limit) {
		s.log.Warn("query admission denied",
			zap.String("user_id", userID),
			zap.String("plan", plan),
			zap.Int64("used", used),
			zap.Int("limit", limit),
		)
		return querydomain.AdmissionResult{
			Allowed: false,
			Reason:  "monthly_query_limit_reached",
			Plan:    plan,
		}, nil
	}

	query := &querydomain.Query{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Prompt:    prompt,
		Status:    querydomain.QueryStatusPending,
		Plan:      plan,
		RunNumber: params.RunNumber,
		CreatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, query); err != nil {
		return querydomain.AdmissionResult{}, err
	}

	queryID := query.ID
	return querydomain.AdmissionResult{
		Allowed: true,
		Plan:    plan,
		QueryID: &queryID,
	}, nil
}

func (s *Service) MarkComplete(ctx context.Context, queryID snowflake.ID) error {
	return s.repo.UpdateStatus(ctx, s.db, queryID, querydomain.QueryStatusComplete, s.clock.Now())
}

// MarkFailed records that a query was allocated but its generation never
// completed, so no orphaned pending rows accumulate.
func (s *Service) MarkFailed(ctx context.Context, queryID snowflake.ID) error {
	return s.repo.UpdateStatus(ctx, s.db, queryID, querydomain.QueryStatusFailed, s.clock.Now())
}

func (s *Service) Get(ctx context.Context, queryID snowflake.ID) (*querydomain.Query, error) {
	query, err := s.repo.FindByID(ctx, s.db, queryID)
	if err != nil {
		return nil, err
	}
	if query == nil {
		return nil, querydomain.ErrNotFound
	}
	return query, nil
}

func (s *Service) planLimit(plan string) int {
	switch plan {
	case planPro:
		return s.cfg.ProPlanQueryLimit
	default:
		return s.cfg.FreePlanQueryLimit
	}
}
