// Package generation reaches the LLM-backed signal analysis service. The
// service is an opaque, potentially slow, potentially failing dependency;
// its prompt handling is out of scope here.
package generation

import (
	"context"
	"time"

	anomalysetdomain "github.com/terralens/geosignal/internal/anomalyset/domain"
	signaldomain "github.com/terralens/geosignal/internal/signal/domain"
)

// MarketContext frames generation against current market conditions.
type MarketContext struct {
	VIXLevel          float64  `json:"vix_level"`
	DollarIndex       float64  `json:"dollar_index"`
	CommodityTrends   []string `json:"commodity_trends"`
	GeopoliticalEvents []string `json:"geopolitical_events"`
}

// DefaultMarketContext is the neutral baseline used whenever the caller
// supplies no context. It is deliberately not a live market fetch.
func DefaultMarketContext() MarketContext {
	return MarketContext{
		VIXLevel:          20,
		DollarIndex:       100,
		CommodityTrends:   []string{"Stable commodity prices"},
		GeopoliticalEvents: []string{"No major events"},
	}
}

type Request struct {
	Anomalies     []anomalysetdomain.Anomaly `json:"anomalies"`
	MarketContext MarketContext              `json:"market_context"`
	MaxSignals    int                        `json:"max_signals"`
}

type Response struct {
	Signals          []signaldomain.Signal `json:"signals"`
	Summary          string                `json:"summary"`
	GeneratedAt      time.Time             `json:"generated_at"`
	Status           string                `json:"status"`
	ProcessingTimeMS int64                 `json:"processing_time_ms"`

	// Token accounting reported by the service, fed into the usage ledger.
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	CacheHit         bool   `json:"cache_hit"`
}

type Provider interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// NoOpProvider returns an empty, successful response. It keeps the wiring
// alive in environments without an analysis endpoint.
type NoOpProvider struct{}

func (p *NoOpProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	return &Response{
		Signals:     []signaldomain.Signal{},
		Summary:     "generation disabled",
		GeneratedAt: time.Now().UTC(),
		Status:      "skipped",
	}, nil
}
