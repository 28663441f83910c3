// Package domain defines the rerun orchestration contract: re-analyze a
// stored anomaly set, persist the new run metadata and optionally diff the
// outcome against the previous run.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/terralens/geosignal/internal/generation"
	"github.com/terralens/geosignal/internal/signal/compare"
	signaldomain "github.com/terralens/geosignal/internal/signal/domain"
)

type Service interface {
	Rerun(ctx context.Context, req RerunRequest) (*RerunResponse, error)
}

type RerunRequest struct {
	AnomalySetID snowflake.ID `json:"-"`
	UserID       string       `json:"-"`

	FocusDomains        []signaldomain.Domain     `json:"focus_domains,omitempty"`
	MarketContext       *generation.MarketContext `json:"market_context,omitempty"`
	MaxSignals          int                       `json:"max_signals,omitempty"`
	SaveAsNewQuery      bool                      `json:"save_as_new_query,omitempty"`
	CompareWithPrevious bool                      `json:"compare_with_previous,omitempty"`
}

// MarketContextCallerProvided and MarketContextDefaultBaseline record which
// market context shaped a run.
const (
	MarketContextCallerProvided  = "caller_provided"
	MarketContextDefaultBaseline = "default_baseline"
)

type AnomalySetSummary struct {
	ID           snowflake.ID `json:"id"`
	Name         string       `json:"name"`
	AnomalyCount int          `json:"anomaly_count"` // after focus-domain filtering
	RunCount     int          `json:"run_count"`
}

type RerunMetadata struct {
	ProcessingTimeMS  int64         `json:"processing_time_ms"`
	GeneratedAt       time.Time     `json:"generated_at"`
	MarketContextUsed string        `json:"market_context_used"`
	NewQueryID        *snowflake.ID `json:"new_query_id,omitempty"`
}

type RerunResponse struct {
	AnomalySet AnomalySetSummary     `json:"anomaly_set"`
	Signals    []signaldomain.Signal `json:"signals"`
	Summary    string                `json:"summary"`
	Comparison *compare.Result       `json:"comparison,omitempty"`
	Metadata   RerunMetadata         `json:"metadata"`
}

var (
	// ErrQuotaDenied marks an admission-gate refusal; no state was mutated.
	ErrQuotaDenied = errors.New("quota_denied")
	// ErrUpstreamFailure marks a generation-service failure.
	ErrUpstreamFailure = errors.New("generation_failed")
	// ErrRerunInProgress marks a lost race on the per-set rerun lock.
	ErrRerunInProgress = errors.New("rerun_in_progress")
)

// QuotaDeniedError carries the gate's reason and plan to the transport layer.
type QuotaDeniedError struct {
	Reason string
	Plan   string
}

func (e *QuotaDeniedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrQuotaDenied.Error(), e.Reason)
}

func (e *QuotaDeniedError) Unwrap() error { return ErrQuotaDenied }
