package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/terralens/geosignal/internal/clock"
	"github.com/terralens/geosignal/internal/config"
	querydomain "github.com/terralens/geosignal/internal/query/domain"
	queryrepo "github.com/terralens/geosignal/internal/query/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, dsn string, freeLimit int) (*Service, *gorm.DB, *clock.FakeClock, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&querydomain.Query{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fakeClock := clock.NewFakeClock(time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC))

	svc := New(Params{
		Cfg:   config.Config{FreePlanQueryLimit: freeLimit, ProPlanQueryLimit: 500},
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fakeClock,
		Repo:  queryrepo.Provide(),
	}).(*Service)

	return svc, db, fakeClock, node
}

func TestLogQueryStart_AllowsWithinAllowance(t *testing.T) {
	svc, db, _, _ := newTestService(t, "file:query_allow?mode=memory&cache=shared", 2)
	ctx := context.Background()

	result, err := svc.LogQueryStart(ctx, "user-1", "Rerun analysis on: Gulf refinery watch", querydomain.StartParams{RunNumber: 3})
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, "free", result.Plan)
	require.NotNil(t, result.QueryID)

	var query querydomain.Query
	require.NoError(t, db.First(&query, "id = ?", *result.QueryID).Error)
	assert.Equal(t, querydomain.QueryStatusPending, query.Status)
	assert.Equal(t, 3, query.RunNumber)
}

func TestLogQueryStart_DenialWritesNothing(t *testing.T) {
	svc, db, _, _ := newTestService(t, "file:query_deny?mode=memory&cache=shared", 1)
	ctx := context.Background()

	first, err := svc.LogQueryStart(ctx, "user-1", "first", querydomain.StartParams{})
	require.NoError(t, err)
	require.True(t, first.Allowed)

	second, err := svc.LogQueryStart(ctx, "user-1", "second", querydomain.StartParams{})
	require.NoError(t, err)
	assert.False(t, second.Allowed)
	assert.Equal(t, "monthly_query_limit_reached", second.Reason)
	assert.Equal(t, "free", second.Plan)
	assert.Nil(t, second.QueryID)

	var count int64
	require.NoError(t, db.Model(&querydomain.Query{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestLogQueryStart_AllowanceResetsEachMonth(t *testing.T) {
	svc, db, fakeClock, node := newTestService(t, "file:query_month?mode=memory&cache=shared", 1)
	ctx := context.Background()

	// A query from last month must not count against this month.
	old := querydomain.Query{
		ID:        node.Generate(),
		UserID:    "user-1",
		Prompt:    "stale",
		Status:    querydomain.QueryStatusComplete,
		Plan:      "free",
		CreatedAt: fakeClock.Now().AddDate(0, -1, 0),
	}
	require.NoError(t, db.Create(&old).Error)

	result, err := svc.LogQueryStart(ctx, "user-1", "fresh", querydomain.StartParams{})
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestLogQueryStart_ProPlanAllowance(t *testing.T) {
	svc, _, _, _ := newTestService(t, "file:query_pro?mode=memory&cache=shared", 0)
	ctx := context.Background()

	denied, err := svc.LogQueryStart(ctx, "user-1", "free plan", querydomain.StartParams{})
	require.NoError(t, err)
	assert.False(t, denied.Allowed)

	allowed, err := svc.LogQueryStart(ctx, "user-1", "pro plan", querydomain.StartParams{Plan: "pro"})
	require.NoError(t, err)
	assert.True(t, allowed.Allowed)
	assert.Equal(t, "pro", allowed.Plan)
}

func TestMarkCompleteAndFailed(t *testing.T) {
	svc, db, fakeClock, _ := newTestService(t, "file:query_mark?mode=memory&cache=shared", 10)
	ctx := context.Background()

	first, err := svc.LogQueryStart(ctx, "user-1", "one", querydomain.StartParams{})
	require.NoError(t, err)
	second, err := svc.LogQueryStart(ctx, "user-1", "two", querydomain.StartParams{})
	require.NoError(t, err)

	fakeClock.Advance(5 * time.Second)
	require.NoError(t, svc.MarkComplete(ctx, *first.QueryID))
	require.NoError(t, svc.MarkFailed(ctx, *second.QueryID))

	var completed, failed querydomain.Query
	require.NoError(t, db.First(&completed, "id = ?", *first.QueryID).Error)
	require.NoError(t, db.First(&failed, "id = ?", *second.QueryID).Error)
	assert.Equal(t, querydomain.QueryStatusComplete, completed.Status)
	require.NotNil(t, completed.CompletedAt)
	assert.Equal(t, querydomain.QueryStatusFailed, failed.Status)
	require.NotNil(t, failed.CompletedAt)
}

func TestGet_NotFound(t *testing.T) {
	svc, _, _, node := newTestService(t, "file:query_get?mode=memory&cache=shared", 10)
	ctx := context.Background()

	_, err := svc.Get(ctx, node.Generate())
	assert.ErrorIs(t, err, querydomain.ErrNotFound)
}
