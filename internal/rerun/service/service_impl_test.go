package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	anomalysetdomain "github.com/terralens/geosignal/internal/anomalyset/domain"
	anomalysetrepo "github.com/terralens/geosignal/internal/anomalyset/repository"
	"github.com/terralens/geosignal/internal/clock"
	"github.com/terralens/geosignal/internal/config"
	"github.com/terralens/geosignal/internal/generation"
	querydomain "github.com/terralens/geosignal/internal/query/domain"
	queryrepo "github.com/terralens/geosignal/internal/query/repository"
	queryservice "github.com/terralens/geosignal/internal/query/service"
	rerundomain "github.com/terralens/geosignal/internal/rerun/domain"
	signaldomain "github.com/terralens/geosignal/internal/signal/domain"
	signalrepo "github.com/terralens/geosignal/internal/signal/repository"
	usagedomain "github.com/terralens/geosignal/internal/usage/domain"
	usagerepo "github.com/terralens/geosignal/internal/usage/repository"
	usageservice "github.com/terralens/geosignal/internal/usage/service"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fakeProvider struct {
	resp    *generation.Response
	err     error
	lastReq *generation.Request
}

func (p *fakeProvider) Generate(ctx context.Context, req generation.Request) (*generation.Response, error) {
	p.lastReq = &req
	if p.err != nil {
		return nil, p.err
	}
	return p.resp, nil
}

type rerunFixture struct {
	svc      *Service
	db       *gorm.DB
	clock    *clock.FakeClock
	provider *fakeProvider
	setRepo  anomalysetdomain.Repository
	node     *snowflake.Node
}

func newRerunFixture(t *testing.T, dsn string, freeLimit int) *rerunFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&anomalysetdomain.AnomalySet{},
		&signaldomain.Signal{},
		&querydomain.Query{},
		&usagedomain.UsageRecord{},
		&usagedomain.DailyUsageSummary{},
		&usagedomain.UsageAlertConfig{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fakeClock := clock.NewFakeClock(time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	queries := queryservice.New(queryservice.Params{
		Cfg:   config.Config{FreePlanQueryLimit: freeLimit, ProPlanQueryLimit: 500},
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fakeClock,
		Repo:  queryrepo.Provide(),
	})
	usage := usageservice.New(usageservice.Params{
		DB:      db,
		Log:     log,
		GenID:   node,
		Clock:   fakeClock,
		Repo:    usagerepo.Provide(),
		Pricing: config.NewStaticPricingHolder(config.DefaultPricingConfig()),
	})

	provider := &fakeProvider{
		resp: &generation.Response{
			Signals: []signaldomain.Signal{
				{Instrument: "HG", Direction: signaldomain.DirectionLong, Confidence: 0.7, AOIID: "aoi-1", Domain: signaldomain.DomainPort},
			},
			Summary:          "copper flows firming",
			GeneratedAt:      fakeClock.Now(),
			Status:           "complete",
			ProcessingTimeMS: 1200,
			Model:            "gpt-4o",
			PromptTokens:     800,
			CompletionTokens: 300,
		},
	}

	setRepo := anomalysetrepo.Provide()
	svc := New(Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       fakeClock,
		AnomalySets: setRepo,
		Queries:     queries,
		Signals:     signalrepo.Provide(),
		Usage:       usage,
		Generator:   provider,
	}).(*Service)

	return &rerunFixture{
		svc:      svc,
		db:       db,
		clock:    fakeClock,
		provider: provider,
		setRepo:  setRepo,
		node:     node,
	}
}

func (f *rerunFixture) seedSet(t *testing.T, userID string, anomalies []anomalysetdomain.Anomaly, lastRun []signaldomain.Signal) *anomalysetdomain.AnomalySet {
	t.Helper()
	set := &anomalysetdomain.AnomalySet{
		ID:        f.node.Generate(),
		UserID:    userID,
		Name:      "Shanghai port cluster",
		Anomalies: datatypes.NewJSONType(anomalies),
		CreatedAt: f.clock.Now(),
	}
	if lastRun != nil {
		set.LastRunResults = datatypes.NewJSONType(lastRun)
		set.RunCount = 1
		lastRunAt := f.clock.Now().Add(-time.Hour)
		set.LastRunAt = &lastRunAt
	}
	require.NoError(t, f.setRepo.Insert(context.Background(), f.db, set))
	return set
}

func portAnomalies() []anomalysetdomain.Anomaly {
	return []anomalysetdomain.Anomaly{
		{AOIID: "aoi-1", AOIName: "Yangshan Terminal", Domain: signaldomain.DomainPort, Magnitude: 2.4, Confidence: 0.8},
		{AOIID: "aoi-2", AOIName: "Atacama Copper Mine", Domain: signaldomain.DomainMine, Magnitude: 1.1, Confidence: 0.6},
	}
}

func TestRerun_SuccessUpdatesRunMetadata(t *testing.T) {
	f := newRerunFixture(t, "file:rerun_success?mode=memory&cache=shared", 10)
	set := f.seedSet(t, "user-1", portAnomalies(), nil)
	ctx := context.Background()

	f.clock.Advance(30 * time.Minute)
	resp, err := f.svc.Rerun(ctx, rerundomain.RerunRequest{
		AnomalySetID: set.ID,
		UserID:       "user-1",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, resp.AnomalySet.RunCount)
	assert.Equal(t, 2, resp.AnomalySet.AnomalyCount)
	require.Len(t, resp.Signals, 1)
	assert.Equal(t, "HG", resp.Signals[0].Instrument)
	assert.Nil(t, resp.Comparison)
	assert.Nil(t, resp.Metadata.NewQueryID)
	assert.Equal(t, rerundomain.MarketContextDefaultBaseline, resp.Metadata.MarketContextUsed)

	stored, err := f.setRepo.FindByID(ctx, f.db, set.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.RunCount)
	require.NotNil(t, stored.LastRunAt)
	assert.WithinDuration(t, f.clock.Now(), *stored.LastRunAt, time.Second)
	assert.Len(t, stored.LastRunResults.Data(), 1)
	assert.Equal(t, int64(1), stored.Version)

	// No query allocated, but the generation call is still in the ledger.
	var queryCount int64
	require.NoError(t, f.db.Model(&querydomain.Query{}).Count(&queryCount).Error)
	assert.Equal(t, int64(0), queryCount)

	var record usagedomain.UsageRecord
	require.NoError(t, f.db.First(&record, "user_id = ?", "user-1").Error)
	assert.Equal(t, "gpt-4o", record.Model)
	assert.Equal(t, 1100, record.TotalTokens)
	assert.Empty(t, record.Error)
}

func TestRerun_SaveAsNewQueryPersistsSignals(t *testing.T) {
	f := newRerunFixture(t, "file:rerun_query?mode=memory&cache=shared", 10)
	set := f.seedSet(t, "user-1", portAnomalies(), nil)
	ctx := context.Background()

	resp, err := f.svc.Rerun(ctx, rerundomain.RerunRequest{
		AnomalySetID:   set.ID,
		UserID:         "user-1",
		SaveAsNewQuery: true,
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Metadata.NewQueryID)

	var query querydomain.Query
	require.NoError(t, f.db.First(&query, "id = ?", *resp.Metadata.NewQueryID).Error)
	assert.Equal(t, querydomain.QueryStatusComplete, query.Status)
	assert.Equal(t, 1, query.RunNumber)
	assert.Equal(t, "Rerun analysis on: Shanghai port cluster", query.Prompt)

	var persisted []signaldomain.Signal
	require.NoError(t, f.db.Where("query_id = ?", *resp.Metadata.NewQueryID).Find(&persisted).Error)
	require.Len(t, persisted, 1)
	assert.Equal(t, "user-1", persisted[0].UserID)
}

func TestRerun_QuotaDenialMutatesNothing(t *testing.T) {
	f := newRerunFixture(t, "file:rerun_quota?mode=memory&cache=shared", 0)
	set := f.seedSet(t, "user-1", portAnomalies(), nil)
	ctx := context.Background()

	_, err := f.svc.Rerun(ctx, rerundomain.RerunRequest{
		AnomalySetID:   set.ID,
		UserID:         "user-1",
		SaveAsNewQuery: true,
	})
	require.ErrorIs(t, err, rerundomain.ErrQuotaDenied)

	var denied *rerundomain.QuotaDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "monthly_query_limit_reached", denied.Reason)
	assert.Equal(t, "free", denied.Plan)

	stored, err := f.setRepo.FindByID(ctx, f.db, set.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.RunCount)
	assert.Nil(t, stored.LastRunAt)

	var queryCount int64
	require.NoError(t, f.db.Model(&querydomain.Query{}).Count(&queryCount).Error)
	assert.Equal(t, int64(0), queryCount)
}

func TestRerun_FocusDomainFiltering(t *testing.T) {
	f := newRerunFixture(t, "file:rerun_focus?mode=memory&cache=shared", 10)
	set := f.seedSet(t, "user-1", portAnomalies(), nil)
	ctx := context.Background()

	resp, err := f.svc.Rerun(ctx, rerundomain.RerunRequest{
		AnomalySetID: set.ID,
		UserID:       "user-1",
		FocusDomains: []signaldomain.Domain{signaldomain.DomainPort},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, resp.AnomalySet.AnomalyCount)
	require.NotNil(t, f.provider.lastReq)
	require.Len(t, f.provider.lastReq.Anomalies, 1)
	assert.Equal(t, "aoi-1", f.provider.lastReq.Anomalies[0].AOIID)
}

func TestRerun_CallerMarketContext(t *testing.T) {
	f := newRerunFixture(t, "file:rerun_market?mode=memory&cache=shared", 10)
	set := f.seedSet(t, "user-1", portAnomalies(), nil)
	ctx := context.Background()

	resp, err := f.svc.Rerun(ctx, rerundomain.RerunRequest{
		AnomalySetID:  set.ID,
		UserID:        "user-1",
		MarketContext: &generation.MarketContext{VIXLevel: 34, DollarIndex: 97},
	})
	require.NoError(t, err)
	assert.Equal(t, rerundomain.MarketContextCallerProvided, resp.Metadata.MarketContextUsed)
	require.NotNil(t, f.provider.lastReq)
	assert.Equal(t, 34.0, f.provider.lastReq.MarketContext.VIXLevel)
}

func TestRerun_AuthorizationAndMissing(t *testing.T) {
	f := newRerunFixture(t, "file:rerun_auth?mode=memory&cache=shared", 10)
	set := f.seedSet(t, "user-1", portAnomalies(), nil)
	ctx := context.Background()

	_, err := f.svc.Rerun(ctx, rerundomain.RerunRequest{
		AnomalySetID: set.ID,
		UserID:       "intruder",
	})
	require.ErrorIs(t, err, anomalysetdomain.ErrUnauthorized)

	stored, err := f.setRepo.FindByID(ctx, f.db, set.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.RunCount)

	_, err = f.svc.Rerun(ctx, rerundomain.RerunRequest{
		AnomalySetID: f.node.Generate(),
		UserID:       "user-1",
	})
	require.ErrorIs(t, err, anomalysetdomain.ErrNotFound)
}

func TestRerun_GenerationFailureCompensates(t *testing.T) {
	f := newRerunFixture(t, "file:rerun_genfail?mode=memory&cache=shared", 10)
	set := f.seedSet(t, "user-1", portAnomalies(), nil)
	f.provider.err = errors.New("analysis service unavailable")
	ctx := context.Background()

	_, err := f.svc.Rerun(ctx, rerundomain.RerunRequest{
		AnomalySetID:   set.ID,
		UserID:         "user-1",
		SaveAsNewQuery: true,
	})
	require.ErrorIs(t, err, rerundomain.ErrUpstreamFailure)

	// Run metadata untouched.
	stored, err := f.setRepo.FindByID(ctx, f.db, set.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.RunCount)
	assert.Nil(t, stored.LastRunAt)

	// The allocated query is marked failed rather than left pending.
	var query querydomain.Query
	require.NoError(t, f.db.First(&query, "user_id = ?", "user-1").Error)
	assert.Equal(t, querydomain.QueryStatusFailed, query.Status)

	// The failed call is still metered.
	var record usagedomain.UsageRecord
	require.NoError(t, f.db.First(&record, "user_id = ?", "user-1").Error)
	assert.Equal(t, "analysis service unavailable", record.Error)
	assert.Equal(t, "unknown", record.Model)
}

func TestRerun_ComparisonAgainstPreviousRun(t *testing.T) {
	f := newRerunFixture(t, "file:rerun_compare?mode=memory&cache=shared", 10)
	previous := []signaldomain.Signal{
		{Instrument: "HG", Direction: signaldomain.DirectionShort, Confidence: 0.5},
		{Instrument: "CL", Direction: signaldomain.DirectionLong, Confidence: 0.6},
	}
	set := f.seedSet(t, "user-1", portAnomalies(), previous)
	ctx := context.Background()

	resp, err := f.svc.Rerun(ctx, rerundomain.RerunRequest{
		AnomalySetID:        set.ID,
		UserID:              "user-1",
		CompareWithPrevious: true,
	})
	require.NoError(t, err)

	require.NotNil(t, resp.Comparison)
	// Current run holds only HG long 0.70: CL removed, HG flipped short→long
	// with a 0.20 confidence move.
	assert.Equal(t, 1, resp.Comparison.Summary.RemovedCount)
	assert.Equal(t, 0, resp.Comparison.Summary.AddedCount)
	assert.Equal(t, 1, resp.Comparison.Summary.DirectionChangesCount)
	assert.Equal(t, 1, resp.Comparison.Summary.ConfidenceChangesCount)

	// Second run count: the seeded previous run was run 1.
	assert.Equal(t, 2, resp.AnomalySet.RunCount)
}

// contendedSetRepo injects a competing writer: before the first `conflicts`
// metadata patches it bumps the row's version and run count directly, the way
// a concurrent rerun landing between read and patch would.
type contendedSetRepo struct {
	anomalysetdomain.Repository
	t         *testing.T
	db        *gorm.DB
	conflicts int
	calls     int
}

func (r *contendedSetRepo) UpdateRunMetadata(ctx context.Context, db *gorm.DB, patch anomalysetdomain.RunMetadataPatch) error {
	r.calls++
	if r.calls <= r.conflicts {
		err := r.db.Model(&anomalysetdomain.AnomalySet{}).
			Where("id = ?", patch.ID).
			Updates(map[string]any{
				"run_count": gorm.Expr("run_count + 1"),
				"version":   gorm.Expr("version + 1"),
			}).Error
		require.NoError(r.t, err)
	}
	return r.Repository.UpdateRunMetadata(ctx, db, patch)
}

func TestRerun_VersionConflictRetriesAgainstFreshRow(t *testing.T) {
	f := newRerunFixture(t, "file:rerun_cas_retry?mode=memory&cache=shared", 10)
	set := f.seedSet(t, "user-1", portAnomalies(), nil)
	contended := &contendedSetRepo{Repository: f.setRepo, t: t, db: f.db, conflicts: 1}
	f.svc.anomalySets = contended
	ctx := context.Background()

	resp, err := f.svc.Rerun(ctx, rerundomain.RerunRequest{
		AnomalySetID: set.ID,
		UserID:       "user-1",
	})
	require.NoError(t, err)

	// One conflict, one retry: the patch is recomputed against the row the
	// competing writer left behind (run 1, version 1) instead of the stale read.
	assert.Equal(t, 2, contended.calls)
	assert.Equal(t, 2, resp.AnomalySet.RunCount)

	stored, err := f.setRepo.FindByID(ctx, f.db, set.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.RunCount)
	assert.Equal(t, int64(2), stored.Version)
	assert.Len(t, stored.LastRunResults.Data(), 1)
}

func TestRerun_VersionConflictOnRetrySurfacesAndCompensates(t *testing.T) {
	f := newRerunFixture(t, "file:rerun_cas_exhaust?mode=memory&cache=shared", 10)
	set := f.seedSet(t, "user-1", portAnomalies(), nil)
	contended := &contendedSetRepo{Repository: f.setRepo, t: t, db: f.db, conflicts: 100}
	f.svc.anomalySets = contended
	ctx := context.Background()

	_, err := f.svc.Rerun(ctx, rerundomain.RerunRequest{
		AnomalySetID:   set.ID,
		UserID:         "user-1",
		SaveAsNewQuery: true,
	})
	require.ErrorIs(t, err, anomalysetdomain.ErrVersionConflict)

	// The retry is bounded: exactly one re-read and second attempt.
	assert.Equal(t, 2, contended.calls)

	// The allocated query is compensated, not left pending.
	var query querydomain.Query
	require.NoError(t, f.db.First(&query, "user_id = ?", "user-1").Error)
	assert.Equal(t, querydomain.QueryStatusFailed, query.Status)
}

func TestRerun_CompareRequestedWithoutPreviousRun(t *testing.T) {
	f := newRerunFixture(t, "file:rerun_noprev?mode=memory&cache=shared", 10)
	set := f.seedSet(t, "user-1", portAnomalies(), nil)
	ctx := context.Background()

	resp, err := f.svc.Rerun(ctx, rerundomain.RerunRequest{
		AnomalySetID:        set.ID,
		UserID:              "user-1",
		CompareWithPrevious: true,
	})
	require.NoError(t, err)
	assert.Nil(t, resp.Comparison)
}
