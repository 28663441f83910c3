// Package domain contains the tracked-query model and the admission gate
// contract that guards billable reruns.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type QueryStatus string

const (
	QueryStatusPending  QueryStatus = "pending"
	QueryStatusComplete QueryStatus = "complete"
	QueryStatusFailed   QueryStatus = "failed"
)

// Query is one tracked analysis run, allocated by the admission gate before
// any billable generation happens.
type Query struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID      string       `json:"user_id" gorm:"type:text;not null;index:idx_queries_user_created,priority:1"`
	Prompt      string       `json:"prompt" gorm:"type:text;not null"`
	Status      QueryStatus  `json:"status" gorm:"type:text;not null"`
	Plan        string       `json:"plan" gorm:"type:text;not null"`
	RunNumber   int          `json:"run_number"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_queries_user_created,priority:2"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// TableName sets the database table name.
func (Query) TableName() string { return "queries" }

// StartParams carries rerun metadata into the gate.
type StartParams struct {
	Plan      string `json:"plan,omitempty"`
	RunNumber int    `json:"run_number,omitempty"`
}

// AdmissionResult is the gate's verdict. A denied result carries no QueryID
// and must abort the caller with no side effects.
type AdmissionResult struct {
	Allowed bool          `json:"allowed"`
	Reason  string        `json:"reason,omitempty"`
	Plan    string        `json:"plan,omitempty"`
	QueryID *snowflake.ID `json:"query_id,omitempty"`
}

type Service interface {
	LogQueryStart(ctx context.Context, userID, prompt string, params StartParams) (AdmissionResult, error)
	MarkComplete(ctx context.Context, queryID snowflake.ID) error
	MarkFailed(ctx context.Context, queryID snowflake.ID) error
	Get(ctx context.Context, queryID snowflake.ID) (*Query, error)
}

var (
	ErrNotFound    = errors.New("query_not_found")
	ErrInvalidUser = errors.New("invalid_user")
)
