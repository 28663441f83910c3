package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/terralens/geosignal/pkg/db/pagination"
)

// Timeframe selects the window for usage statistics.
type Timeframe string

const (
	TimeframeToday Timeframe = "today"
	TimeframeWeek  Timeframe = "week"
	TimeframeMonth Timeframe = "month"
	TimeframeAll   Timeframe = "all"
)

func (t Timeframe) Valid() bool {
	switch t {
	case TimeframeToday, TimeframeWeek, TimeframeMonth, TimeframeAll:
		return true
	default:
		return false
	}
}

// GroupBy selects the dimension for cost breakdowns.
type GroupBy string

const (
	GroupByPurpose  GroupBy = "purpose"
	GroupByModel    GroupBy = "model"
	GroupByEndpoint GroupBy = "endpoint"
)

func (g GroupBy) Valid() bool {
	switch g {
	case GroupByPurpose, GroupByModel, GroupByEndpoint:
		return true
	default:
		return false
	}
}

type Service interface {
	LogUsage(ctx context.Context, req LogUsageRequest) (*LogUsageResult, error)
	GetUserStats(ctx context.Context, userID string, timeframe Timeframe) (*UsageStats, error)
	GetHistory(ctx context.Context, userID string, page pagination.Pagination) (*HistoryResponse, error)
	GetDailySummaries(ctx context.Context, userID string, days int) (*DailySummariesResponse, error)
	GetCostBreakdown(ctx context.Context, userID string, groupBy GroupBy) (*CostBreakdownResponse, error)
	SetAlerts(ctx context.Context, req SetAlertsRequest) (*UsageAlertConfig, error)
}

type LogUsageRequest struct {
	UserID           string        `json:"-"`
	QueryID          *snowflake.ID `json:"query_id,omitempty"`
	Model            string        `json:"model"`
	Endpoint         string        `json:"endpoint"`
	Purpose          string        `json:"purpose"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	CacheHit         bool          `json:"cache_hit"`
	ResponseTimeMS   int           `json:"response_time_ms"`
	Error            string        `json:"error,omitempty"`
	AnomalyCount     *int          `json:"anomaly_count,omitempty"`
	SignalCount      *int          `json:"signal_count,omitempty"`
}

// CostBreakdownAmounts is the derived cost of one call.
type CostBreakdownAmounts struct {
	InputCost  float64 `json:"input_cost"`
	OutputCost float64 `json:"output_cost"`
	TotalCost  float64 `json:"total_cost"`
}

type LogUsageResult struct {
	UsageID snowflake.ID         `json:"usage_id"`
	Cost    CostBreakdownAmounts `json:"cost_breakdown"`
}

type ModelBreakdown struct {
	Calls       int64   `json:"calls"`
	TotalTokens int64   `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`
}

type EndpointBreakdown struct {
	Calls             int64   `json:"calls"`
	TotalTokens       int64   `json:"total_tokens"`
	TotalCost         float64 `json:"total_cost"`
	AvgResponseTimeMS float64 `json:"avg_response_time_ms"`
}

type UsageStats struct {
	Timeframe         Timeframe                     `json:"timeframe"`
	Since             time.Time                     `json:"since"`
	TotalCalls        int64                         `json:"total_calls"`
	SuccessfulCalls   int64                         `json:"successful_calls"`
	FailedCalls       int64                         `json:"failed_calls"`
	TotalTokens       int64                         `json:"total_tokens"`
	TotalCost         float64                       `json:"total_cost"`
	AvgTokensPerCall  float64                       `json:"avg_tokens_per_call"`
	AvgCostPerCall    float64                       `json:"avg_cost_per_call"`
	AvgResponseTimeMS float64                       `json:"avg_response_time_ms"`
	CacheHitRate      float64                       `json:"cache_hit_rate"` // percent
	ByModel           map[string]*ModelBreakdown    `json:"by_model"`
	ByEndpoint        map[string]*EndpointBreakdown `json:"by_endpoint"`
}

type HistoryResponse struct {
	Records  []UsageRecord       `json:"records"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type DailySummariesResponse struct {
	Summaries        []DailyUsageSummary `json:"summaries"`
	TotalCost        float64             `json:"total_cost"`
	TotalTokens      int64               `json:"total_tokens"`
	DailyAverageCost float64             `json:"daily_average_cost"`
}

type CostBreakdownGroup struct {
	Key               string  `json:"key"`
	Calls             int64   `json:"calls"`
	TotalCost         float64 `json:"total_cost"`
	TotalTokens       int64   `json:"total_tokens"`
	AvgResponseTimeMS float64 `json:"avg_response_time_ms"`
	AvgCost           float64 `json:"avg_cost"`
	AvgTokens         float64 `json:"avg_tokens"`
}

type CostBreakdownResponse struct {
	GroupBy GroupBy              `json:"group_by"`
	Groups  []CostBreakdownGroup `json:"groups"`
}

type SetAlertsRequest struct {
	UserID           string   `json:"-"`
	DailyCostLimit   *float64 `json:"daily_cost_limit,omitempty"`
	MonthlyCostLimit *float64 `json:"monthly_cost_limit,omitempty"`
	DailyTokenLimit  *int64   `json:"daily_token_limit,omitempty"`
	AlertEmail       *string  `json:"alert_email,omitempty"`
}

var (
	ErrInvalidUser      = errors.New("invalid_user")
	ErrInvalidModel     = errors.New("invalid_model")
	ErrInvalidEndpoint  = errors.New("invalid_endpoint")
	ErrInvalidTokens    = errors.New("invalid_token_counts")
	ErrInvalidTimeframe = errors.New("invalid_timeframe")
	ErrInvalidGroupBy   = errors.New("invalid_group_by")
)
