package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	anomalysetdomain "github.com/terralens/geosignal/internal/anomalyset/domain"
	"github.com/terralens/geosignal/internal/clock"
	"github.com/terralens/geosignal/internal/generation"
	"github.com/terralens/geosignal/internal/metrics"
	querydomain "github.com/terralens/geosignal/internal/query/domain"
	rerundomain "github.com/terralens/geosignal/internal/rerun/domain"
	"github.com/terralens/geosignal/internal/signal/compare"
	signaldomain "github.com/terralens/geosignal/internal/signal/domain"
	usagedomain "github.com/terralens/geosignal/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultMaxSignals = 10

	generationEndpoint = "signals/generate"
	rerunPurpose       = "anomaly_rerun"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	AnomalySets anomalysetdomain.Repository
	Queries     querydomain.Service
	Signals     signaldomain.Repository
	Usage       usagedomain.Service
	Generator   generation.Provider
	Locker      *Locker          `optional:"true"`
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	anomalySets anomalysetdomain.Repository
	queries     querydomain.Service
	signals     signaldomain.Repository
	usage       usagedomain.Service
	generator   generation.Provider
	locker      *Locker
	metrics     *metrics.Metrics
}

func New(p Params) rerundomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("rerun.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		anomalySets: p.AnomalySets,
		queries:     p.Queries,
		signals:     p.Signals,
		usage:       p.Usage,
		generator:   p.Generator,
		locker:      p.Locker,
		metrics:     p.Metrics,
	}
}

// Rerun re-analyzes a stored anomaly set. Run metadata is patched only on
// the success path; a rerun that allocated a query but failed downstream
// marks that query failed instead of leaving it pending.
func (s *Service) Rerun(ctx context.Context, req rerundomain.RerunRequest) (*rerundomain.RerunResponse, error) {
	started := time.Now()

	if strings.TrimSpace(req.UserID) == "" {
		return nil, anomalysetdomain.ErrInvalidUser
	}

	set, err := s.anomalySets.FindByID(ctx, s.db, req.AnomalySetID)
	if err != nil {
		return nil, err
	}
	if set == nil {
		return nil, anomalysetdomain.ErrNotFound
	}
	if set.UserID != req.UserID {
		return nil, anomalysetdomain.ErrUnauthorized
	}

	lockToken, acquired, err := s.locker.TryLock(ctx, set.ID)
	if err != nil {
		// Serialization is best-effort; the version check still guards the
		// patch when redis is unreachable.
		s.log.Warn("rerun lock unavailable", zap.String("anomaly_set_id", set.ID.String()), zap.Error(err))
	} else if !acquired {
		return nil, rerundomain.ErrRerunInProgress
	}
	defer func() {
		if lockToken != "" {
			if err := s.locker.Release(context.WithoutCancel(ctx), set.ID, lockToken); err != nil {
				s.log.Warn("rerun lock release failed", zap.String("anomaly_set_id", set.ID.String()), zap.Error(err))
			}
		}
	}()

	anomalies := filterByDomain(set.Anomalies.Data(), req.FocusDomains)

	maxSignals := req.MaxSignals
	if maxSignals <= 0 {
		maxSignals = defaultMaxSignals
	}

	var newQueryID *snowflake.ID
	if req.SaveAsNewQuery {
		admission, err := s.queries.LogQueryStart(ctx, req.UserID, "Rerun analysis on: "+set.Name, querydomain.StartParams{
			RunNumber: set.RunCount + 1,
		})
		if err != nil {
			return nil, err
		}
		if !admission.Allowed {
			s.countRerun("denied")
			return nil, &rerundomain.QuotaDeniedError{Reason: admission.Reason, Plan: admission.Plan}
		}
		newQueryID = admission.QueryID
	}

	var previous []signaldomain.Signal
	if req.CompareWithPrevious {
		if prev := set.LastRunResults.Data(); len(prev) > 0 {
			previous = prev
		}
	}

	marketContext := generation.DefaultMarketContext()
	marketContextUsed := rerundomain.MarketContextDefaultBaseline
	if req.MarketContext != nil {
		marketContext = *req.MarketContext
		marketContextUsed = rerundomain.MarketContextCallerProvided
	}

	genRes, genErr := s.generator.Generate(ctx, generation.Request{
		Anomalies:     anomalies,
		MarketContext: marketContext,
		MaxSignals:    maxSignals,
	})
	if genErr != nil {
		s.countGeneration("error")
		s.countRerun("failed")
		s.recordUsage(ctx, req.UserID, newQueryID, nil, len(anomalies), genErr)
		s.compensateQuery(ctx, newQueryID)
		return nil, fmt.Errorf("%w: %v", rerundomain.ErrUpstreamFailure, genErr)
	}
	s.countGeneration("success")
	s.recordUsage(ctx, req.UserID, newQueryID, genRes, len(anomalies), nil)

	now := s.clock.Now()
	signals := genRes.Signals
	for i := range signals {
		if signals[i].ID == 0 {
			signals[i].ID = s.genID.Generate()
		}
		signals[i].UserID = req.UserID
		if newQueryID != nil {
			signals[i].QueryID = *newQueryID
		}
		if signals[i].CreatedAt.IsZero() {
			signals[i].CreatedAt = now
		}
	}

	patch := anomalysetdomain.RunMetadataPatch{
		ID:             set.ID,
		Version:        set.Version,
		RunCount:       set.RunCount + 1,
		LastRunAt:      now,
		LastRunResults: signals,
	}
	if err := s.patchRunMetadata(ctx, &patch); err != nil {
		s.countRerun("failed")
		s.compensateQuery(ctx, newQueryID)
		return nil, err
	}

	if newQueryID != nil {
		if err := s.signals.BatchInsert(ctx, s.db, signals); err != nil {
			s.log.Warn("signal batch insert failed", zap.String("query_id", newQueryID.String()), zap.Error(err))
		}
		if err := s.queries.MarkComplete(ctx, *newQueryID); err != nil {
			s.log.Warn("query completion mark failed", zap.String("query_id", newQueryID.String()), zap.Error(err))
		}
	}

	var comparison *compare.Result
	if previous != nil {
		result := compare.Compare(previous, signals)
		comparison = &result
	}

	s.countRerun("success")

	generatedAt := genRes.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = now
	}
	return &rerundomain.RerunResponse{
		AnomalySet: rerundomain.AnomalySetSummary{
			ID:           set.ID,
			Name:         set.Name,
			AnomalyCount: len(anomalies),
			RunCount:     patch.RunCount,
		},
		Signals:    signals,
		Summary:    genRes.Summary,
		Comparison: comparison,
		Metadata: rerundomain.RerunMetadata{
			ProcessingTimeMS:  time.Since(started).Milliseconds(),
			GeneratedAt:       generatedAt,
			MarketContextUsed: marketContextUsed,
			NewQueryID:        newQueryID,
		},
	}, nil
}

// patchRunMetadata applies the CAS update with one bounded retry: on a
// version conflict the set is re-read and the patch recomputed against the
// fresh run count.
func (s *Service) patchRunMetadata(ctx context.Context, patch *anomalysetdomain.RunMetadataPatch) error {
	err := s.anomalySets.UpdateRunMetadata(ctx, s.db, *patch)
	if !errors.Is(err, anomalysetdomain.ErrVersionConflict) {
		return err
	}

	fresh, ferr := s.anomalySets.FindByID(ctx, s.db, patch.ID)
	if ferr != nil {
		return ferr
	}
	if fresh == nil {
		return anomalysetdomain.ErrNotFound
	}
	patch.Version = fresh.Version
	patch.RunCount = fresh.RunCount + 1
	return s.anomalySets.UpdateRunMetadata(ctx, s.db, *patch)
}

// recordUsage appends the generation call to the ledger. Ledger failures are
// logged, not propagated: a completed generation must not be failed
// retroactively by its own accounting.
func (s *Service) recordUsage(ctx context.Context, userID string, queryID *snowflake.ID, res *generation.Response, anomalyCount int, genErr error) {
	req := usagedomain.LogUsageRequest{
		UserID:       userID,
		QueryID:      queryID,
		Model:        "unknown",
		Endpoint:     generationEndpoint,
		Purpose:      rerunPurpose,
		AnomalyCount: &anomalyCount,
	}
	if res != nil {
		if res.Model != "" {
			req.Model = res.Model
		}
		req.PromptTokens = res.PromptTokens
		req.CompletionTokens = res.CompletionTokens
		req.CacheHit = res.CacheHit
		req.ResponseTimeMS = int(res.ProcessingTimeMS)
		signalCount := len(res.Signals)
		req.SignalCount = &signalCount
	}
	if genErr != nil {
		req.Error = genErr.Error()
	}
	if _, err := s.usage.LogUsage(ctx, req); err != nil {
		s.log.Warn("usage ledger write failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// compensateQuery marks an allocated query failed after a downstream error.
func (s *Service) compensateQuery(ctx context.Context, queryID *snowflake.ID) {
	if queryID == nil {
		return
	}
	if err := s.queries.MarkFailed(ctx, *queryID); err != nil {
		s.log.Warn("query failure mark failed", zap.String("query_id", queryID.String()), zap.Error(err))
	}
}

func (s *Service) countRerun(status string) {
	if s.metrics != nil {
		s.metrics.Reruns.WithLabelValues(status).Inc()
	}
}

func (s *Service) countGeneration(status string) {
	if s.metrics != nil {
		s.metrics.GenerationRequests.WithLabelValues(status).Inc()
	}
}

func filterByDomain(anomalies []anomalysetdomain.Anomaly, focus []signaldomain.Domain) []anomalysetdomain.Anomaly {
	if len(focus) == 0 {
		return anomalies
	}
	wanted := make(map[signaldomain.Domain]struct{}, len(focus))
	for _, d := range focus {
		wanted[d] = struct{}{}
	}
	filtered := make([]anomalysetdomain.Anomaly, 0, len(anomalies))
	for _, a := range anomalies {
		if _, ok := wanted[a.Domain]; ok {
			filtered = append(filtered, a)
		}
	}
	return filtered
}
