package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/terralens/geosignal/internal/clock"
	"github.com/terralens/geosignal/internal/config"
	"github.com/terralens/geosignal/internal/metrics"
	"github.com/terralens/geosignal/internal/providers/email"
	usagedomain "github.com/terralens/geosignal/internal/usage/domain"
	"github.com/terralens/geosignal/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultHistoryLimit = 50
	defaultSummaryDays  = 30
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    usagedomain.Repository
	Pricing *config.PricingConfigHolder
	Metrics *metrics.Metrics `optional:"true"`
	Email   email.Provider   `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    usagedomain.Repository
	pricing *config.PricingConfigHolder
	metrics *metrics.Metrics
	email   email.Provider
}

func New(p Params) usagedomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("usage.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		pricing: p.Pricing,
		metrics: p.Metrics,
		email:   p.Email,
	}
}

// LogUsage appends one ledger record, folds it into the day's summary and
// evaluates alert thresholds. The computed cost is returned to the caller
// regardless of the alert outcome.
func (s *Service) LogUsage(ctx context.Context, req usagedomain.LogUsageRequest) (*usagedomain.LogUsageResult, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, usagedomain.ErrInvalidUser
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return nil, usagedomain.ErrInvalidModel
	}
	endpoint := strings.TrimSpace(req.Endpoint)
	if endpoint == "" {
		return nil, usagedomain.ErrInvalidEndpoint
	}
	if req.PromptTokens < 0 || req.CompletionTokens < 0 || req.ResponseTimeMS < 0 {
		return nil, usagedomain.ErrInvalidTokens
	}

	price := s.pricing.Current().Resolve(model)
	// total_tokens is derived, not trusted from the caller.
	totalTokens := req.PromptTokens + req.CompletionTokens
	inputCost := float64(req.PromptTokens) / 1000 * price.Input
	outputCost := float64(req.CompletionTokens) / 1000 * price.Output
	totalCost := inputCost + outputCost

	now := s.clock.Now()
	record := &usagedomain.UsageRecord{
		ID:               s.genID.Generate(),
		UserID:           userID,
		QueryID:          req.QueryID,
		Timestamp:        now,
		Model:            model,
		Endpoint:         endpoint,
		Purpose:          strings.TrimSpace(req.Purpose),
		PromptTokens:     req.PromptTokens,
		CompletionTokens: req.CompletionTokens,
		TotalTokens:      totalTokens,
		InputCost:        inputCost,
		OutputCost:       outputCost,
		TotalCost:        totalCost,
		CacheHit:         req.CacheHit,
		ResponseTimeMS:   req.ResponseTimeMS,
		Error:            strings.TrimSpace(req.Error),
		AnomalyCount:     req.AnomalyCount,
		SignalCount:      req.SignalCount,
	}

	if err := s.repo.InsertRecord(ctx, s.db, record); err != nil {
		return nil, err
	}

	if err := s.repo.AddToDailySummary(ctx, s.db, usagedomain.DailySummaryDelta{
		SummaryID: int64(s.genID.Generate()),
		UserID:    userID,
		Date:      now.Format("2006-01-02"),
		Calls:     1,
		Tokens:    int64(totalTokens),
		Cost:      totalCost,
		Now:       now,
	}); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.UsageCostUSD.Add(totalCost)
	}

	s.evaluateAlerts(ctx, userID, now)

	return &usagedomain.LogUsageResult{
		UsageID: record.ID,
		Cost: usagedomain.CostBreakdownAmounts{
			InputCost:  inputCost,
			OutputCost: outputCost,
			TotalCost:  totalCost,
		},
	}, nil
}

func (s *Service) GetUserStats(ctx context.Context, userID string, timeframe usagedomain.Timeframe) (*usagedomain.UsageStats, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, usagedomain.ErrInvalidUser
	}
	if !timeframe.Valid() {
		return nil, usagedomain.ErrInvalidTimeframe
	}

	since := s.timeframeStart(timeframe)
	records, err := s.repo.FindRecordsSince(ctx, s.db, userID, since)
	if err != nil {
		return nil, err
	}

	stats := &usagedomain.UsageStats{
		Timeframe:  timeframe,
		Since:      since,
		ByModel:    make(map[string]*usagedomain.ModelBreakdown),
		ByEndpoint: make(map[string]*usagedomain.EndpointBreakdown),
	}

	var totalResponseTime int64
	var cacheHits int64
	for _, record := range records {
		stats.TotalCalls++
		if record.Error == "" {
			stats.SuccessfulCalls++
		} else {
			stats.FailedCalls++
		}
		stats.TotalTokens += int64(record.TotalTokens)
		stats.TotalCost += record.TotalCost
		totalResponseTime += int64(record.ResponseTimeMS)
		if record.CacheHit {
			cacheHits++
		}

		byModel := stats.ByModel[record.Model]
		if byModel == nil {
			byModel = &usagedomain.ModelBreakdown{}
			stats.ByModel[record.Model] = byModel
		}
		byModel.Calls++
		byModel.TotalTokens += int64(record.TotalTokens)
		byModel.TotalCost += record.TotalCost

		byEndpoint := stats.ByEndpoint[record.Endpoint]
		if byEndpoint == nil {
			byEndpoint = &usagedomain.EndpointBreakdown{}
			stats.ByEndpoint[record.Endpoint] = byEndpoint
		}
		byEndpoint.Calls++
		byEndpoint.TotalTokens += int64(record.TotalTokens)
		byEndpoint.TotalCost += record.TotalCost
		byEndpoint.AvgResponseTimeMS += float64(record.ResponseTimeMS) // running sum, divided below
	}

	if stats.TotalCalls > 0 {
		calls := float64(stats.TotalCalls)
		stats.AvgTokensPerCall = float64(stats.TotalTokens) / calls
		stats.AvgCostPerCall = stats.TotalCost / calls
		stats.AvgResponseTimeMS = float64(totalResponseTime) / calls
		stats.CacheHitRate = float64(cacheHits) / calls * 100
	}
	for _, byEndpoint := range stats.ByEndpoint {
		if byEndpoint.Calls > 0 {
			byEndpoint.AvgResponseTimeMS /= float64(byEndpoint.Calls)
		}
	}

	return stats, nil
}

func (s *Service) GetHistory(ctx context.Context, userID string, page pagination.Pagination) (*usagedomain.HistoryResponse, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, usagedomain.ErrInvalidUser
	}
	page = page.Normalize(defaultHistoryLimit)

	// Fetch one extra row to detect whether more pages remain.
	records, err := s.repo.FindRecordsPage(ctx, s.db, userID, page.Limit+1, page.Offset)
	if err != nil {
		return nil, err
	}

	pageInfo := pagination.BuildPageInfo(len(records), page)
	if len(records) > page.Limit {
		records = records[:page.Limit]
	}
	return &usagedomain.HistoryResponse{
		Records:  records,
		PageInfo: pageInfo,
	}, nil
}

func (s *Service) GetDailySummaries(ctx context.Context, userID string, days int) (*usagedomain.DailySummariesResponse, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, usagedomain.ErrInvalidUser
	}
	if days <= 0 {
		days = defaultSummaryDays
	}

	fromDate := s.clock.Now().AddDate(0, 0, -days).Format("2006-01-02")
	summaries, err := s.repo.FindDailySummariesFrom(ctx, s.db, userID, fromDate)
	if err != nil {
		return nil, err
	}

	resp := &usagedomain.DailySummariesResponse{Summaries: summaries}
	for _, summary := range summaries {
		resp.TotalCost += summary.TotalCost
		resp.TotalTokens += summary.TotalTokens
	}
	if len(summaries) > 0 {
		resp.DailyAverageCost = resp.TotalCost / float64(len(summaries))
	}
	return resp, nil
}

func (s *Service) GetCostBreakdown(ctx context.Context, userID string, groupBy usagedomain.GroupBy) (*usagedomain.CostBreakdownResponse, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, usagedomain.ErrInvalidUser
	}
	if !groupBy.Valid() {
		return nil, usagedomain.ErrInvalidGroupBy
	}

	records, err := s.repo.FindRecordsSince(ctx, s.db, userID, time.Time{})
	if err != nil {
		return nil, err
	}

	groups := make(map[string]*usagedomain.CostBreakdownGroup)
	for _, record := range records {
		key := groupKey(record, groupBy)
		group := groups[key]
		if group == nil {
			group = &usagedomain.CostBreakdownGroup{Key: key}
			groups[key] = group
		}
		group.Calls++
		group.TotalCost += record.TotalCost
		group.TotalTokens += int64(record.TotalTokens)
		group.AvgResponseTimeMS += float64(record.ResponseTimeMS) // running sum, divided below
	}

	out := make([]usagedomain.CostBreakdownGroup, 0, len(groups))
	for _, group := range groups {
		calls := float64(group.Calls)
		group.AvgResponseTimeMS /= calls
		group.AvgCost = group.TotalCost / calls
		group.AvgTokens = float64(group.TotalTokens) / calls
		out = append(out, *group)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalCost > out[j].TotalCost
	})

	return &usagedomain.CostBreakdownResponse{
		GroupBy: groupBy,
		Groups:  out,
	}, nil
}

func (s *Service) SetAlerts(ctx context.Context, req usagedomain.SetAlertsRequest) (*usagedomain.UsageAlertConfig, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, usagedomain.ErrInvalidUser
	}

	now := s.clock.Now()
	existing, err := s.repo.FindAlertConfig(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	alertConfig := &usagedomain.UsageAlertConfig{
		ID:        s.genID.Generate(),
		UserID:    userID,
		UpdatedAt: now,
	}
	if existing != nil {
		// Patch semantics: unset fields keep their stored values.
		alertConfig.ID = existing.ID
		alertConfig.DailyCostLimit = existing.DailyCostLimit
		alertConfig.MonthlyCostLimit = existing.MonthlyCostLimit
		alertConfig.DailyTokenLimit = existing.DailyTokenLimit
		alertConfig.AlertEmail = existing.AlertEmail
	}
	if req.DailyCostLimit != nil {
		alertConfig.DailyCostLimit = req.DailyCostLimit
	}
	if req.MonthlyCostLimit != nil {
		alertConfig.MonthlyCostLimit = req.MonthlyCostLimit
	}
	if req.DailyTokenLimit != nil {
		alertConfig.DailyTokenLimit = req.DailyTokenLimit
	}
	if req.AlertEmail != nil {
		alertConfig.AlertEmail = strings.TrimSpace(*req.AlertEmail)
	}

	if err := s.repo.UpsertAlertConfig(ctx, s.db, alertConfig); err != nil {
		return nil, err
	}
	return alertConfig, nil
}

// timeframeStart computes the inclusive lower bound of a stats window.
// "today" is local midnight, not a rolling 24 hours.
func (s *Service) timeframeStart(timeframe usagedomain.Timeframe) time.Time {
	now := s.clock.Now()
	switch timeframe {
	case usagedomain.TimeframeToday:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	case usagedomain.TimeframeWeek:
		return now.AddDate(0, 0, -7)
	case usagedomain.TimeframeMonth:
		return now.AddDate(0, 0, -30)
	default:
		return time.Time{}
	}
}

func groupKey(record usagedomain.UsageRecord, groupBy usagedomain.GroupBy) string {
	switch groupBy {
	case usagedomain.GroupByModel:
		return record.Model
	case usagedomain.GroupByEndpoint:
		return record.Endpoint
	default:
		if record.Purpose == "" {
			return "unspecified"
		}
		return record.Purpose
	}
}
