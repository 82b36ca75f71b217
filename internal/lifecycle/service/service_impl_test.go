package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	aggregatedomain "github.com/smallbiznis/certify/internal/aggregate/domain"
	aggregaterepository "github.com/smallbiznis/certify/internal/aggregate/repository"
	"github.com/smallbiznis/certify/internal/clock"
	"github.com/smallbiznis/certify/internal/config"
	customerdomain "github.com/smallbiznis/certify/internal/customer/domain"
	customerrepository "github.com/smallbiznis/certify/internal/customer/repository"
	historydomain "github.com/smallbiznis/certify/internal/history/domain"
	historyrepository "github.com/smallbiznis/certify/internal/history/repository"
	"github.com/smallbiznis/certify/internal/lifecycle/domain"
	"github.com/smallbiznis/certify/internal/observability/metrics"
	"github.com/smallbiznis/certify/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db        *gorm.DB
	svc       domain.Service
	clock     *clock.FakeClock
	genID     *snowflake.Node
	customers customerdomain.Repository
	history   historydomain.Repository
	counts    aggregatedomain.Repository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&customerdomain.Customer{},
		&historydomain.StatusHistoryRecord{},
		&aggregatedomain.MonthlyCount{},
		&aggregatedomain.MonthlyCountByType{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	m, err := metrics.New(metrics.Config{}, noop.NewMeterProvider())
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))
	env := &testEnv{
		db:        db,
		clock:     fake,
		genID:     node,
		customers: customerrepository.Provide(),
		history:   historyrepository.Provide(),
		counts:    aggregaterepository.Provide(),
	}

	env.svc = New(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Config:    config.Config{MaxReasonLength: 500, TransitionRetries: 3},
		Clock:     fake,
		Customers: env.customers,
		History:   env.history,
		Counts:    env.counts,
		Metrics:   m,
	})
	return env
}

func (e *testEnv) seedCustomer(t *testing.T, st status.Status) customerdomain.Customer {
	t.Helper()
	now := e.clock.Now()
	id := e.genID.Generate()
	customer := customerdomain.Customer{
		ID:        id,
		Name:      "Acme GmbH",
		Email:     fmt.Sprintf("billing+%s@acme.example", id),
		Status:    st,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, e.customers.Insert(context.Background(), e.db, &customer))
	return customer
}

func (e *testEnv) historyFor(t *testing.T, id snowflake.ID) []*historydomain.StatusHistoryRecord {
	t.Helper()
	records, err := e.history.ListByCustomer(context.Background(), e.db, historydomain.ListFilter{CustomerID: id})
	require.NoError(t, err)
	return records
}

func TestTransition_HappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := env.seedCustomer(t, status.StatusNew)

	result, err := env.svc.Transition(ctx, domain.TransitionRequest{
		CustomerID:   customer.ID.String(),
		TargetStatus: "NOTIFIED",
		Reason:       "letter sent",
		Actor:        "clerk-7",
	})
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, status.StatusNotified, result.Customer.Status)
	assert.Equal(t, int64(1), result.Customer.Version)
	require.NotNil(t, result.History)
	require.NotNil(t, result.History.FromStatus)
	assert.Equal(t, status.StatusNew, *result.History.FromStatus)
	assert.Equal(t, status.StatusNotified, result.History.ToStatus)
	require.NotNil(t, result.History.Reason)
	assert.Equal(t, "letter sent", *result.History.Reason)
	assert.Equal(t, "clerk-7", result.History.Actor)

	stored, err := env.customers.FindByID(ctx, env.db, customer.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, status.StatusNotified, stored.Status)
	assert.Equal(t, int64(1), stored.Version)
	assert.Nil(t, stored.CertifiedAt)
}

func TestTransition_RejectedPairWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := env.seedCustomer(t, status.StatusNew)

	_, err := env.svc.Transition(ctx, domain.TransitionRequest{
		CustomerID:   customer.ID.String(),
		TargetStatus: "CERTIFIED",
	})
	var ruleErr *domain.RuleViolationError
	require.ErrorAs(t, err, &ruleErr)
	assert.Equal(t, status.StatusNew, ruleErr.From)
	assert.Equal(t, status.StatusCertified, ruleErr.To)
	assert.Equal(t, []status.Status{
		status.StatusNotified,
		status.StatusAborted,
		status.StatusCertifiedElsewhere,
	}, ruleErr.Allowed)

	stored, err := env.customers.FindByID(ctx, env.db, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, status.StatusNew, stored.Status)
	assert.Equal(t, int64(0), stored.Version)
	assert.Empty(t, env.historyFor(t, customer.ID))
}

func TestTransition_SameStatusIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := env.seedCustomer(t, status.StatusNotified)

	result, err := env.svc.Transition(ctx, domain.TransitionRequest{
		CustomerID:   customer.ID.String(),
		TargetStatus: "notified",
	})
	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.Nil(t, result.History)
	assert.Equal(t, status.StatusNotified, result.Customer.Status)
	assert.Empty(t, env.historyFor(t, customer.ID))

	count, err := env.counts.GetForMonth(ctx, env.db, "2026-03")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestTransition_CertificationSetsDateAndIncrements(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	certType := "ISO9001"
	customer := env.seedCustomer(t, status.StatusSubmitted)
	require.NoError(t, env.db.Exec(`UPDATE customers SET certificate_type = ? WHERE id = ?`, certType, customer.ID).Error)

	result, err := env.svc.Transition(ctx, domain.TransitionRequest{
		CustomerID:   customer.ID.String(),
		TargetStatus: "CERTIFIED",
		Actor:        "auditor-1",
	})
	require.NoError(t, err)
	assert.True(t, result.Applied)
	require.NotNil(t, result.Customer.CertifiedAt)
	assert.Equal(t, env.clock.Now(), result.Customer.CertifiedAt.UTC())

	count, err := env.counts.GetForMonth(ctx, env.db, "2026-03")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	rows, err := env.counts.GetForMonthByType(ctx, env.db, "2026-03")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, certType, rows[0].CertificateType)
	assert.Equal(t, int64(1), rows[0].Count)
}

func TestTransition_ExistingCertificationDateIsKept(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := env.seedCustomer(t, status.StatusCertifiedElsewhere)
	earlier := time.Date(2025, 11, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, env.db.Exec(`UPDATE customers SET certified_at = ? WHERE id = ?`, earlier, customer.ID).Error)

	result, err := env.svc.Transition(ctx, domain.TransitionRequest{
		CustomerID:   customer.ID.String(),
		TargetStatus: "CERTIFIED",
	})
	require.NoError(t, err)
	assert.True(t, result.Applied)

	stored, err := env.customers.FindByID(ctx, env.db, customer.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CertifiedAt)
	assert.Equal(t, earlier, stored.CertifiedAt.UTC())

	count, err := env.counts.GetForMonth(ctx, env.db, "2026-03")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestTransition_UnknownStatus(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, status.StatusNew)

	_, err := env.svc.Transition(context.Background(), domain.TransitionRequest{
		CustomerID:   customer.ID.String(),
		TargetStatus: "BOGUS",
	})
	assert.ErrorIs(t, err, status.ErrUnknownStatus)
}

func TestTransition_CustomerNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Transition(context.Background(), domain.TransitionRequest{
		CustomerID:   env.genID.Generate().String(),
		TargetStatus: "NOTIFIED",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransition_ReasonTooLong(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, status.StatusNew)

	long := make([]byte, 501)
	for i := range long {
		long[i] = 'x'
	}
	_, err := env.svc.Transition(context.Background(), domain.TransitionRequest{
		CustomerID:   customer.ID.String(),
		TargetStatus: "NOTIFIED",
		Reason:       string(long),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidReason)
}

func TestTransition_HistoryChainsAcrossRestarts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := env.seedCustomer(t, status.StatusNew)

	steps := []string{"NOTIFIED", "ABORTED", "NEW", "CERTIFIED_ELSEWHERE", "SUBMITTED", "CERTIFIED"}
	for _, step := range steps {
		env.clock.Advance(time.Minute)
		_, err := env.svc.Transition(ctx, domain.TransitionRequest{
			CustomerID:   customer.ID.String(),
			TargetStatus: step,
		})
		require.NoError(t, err, step)
	}

	records := env.historyFor(t, customer.ID)
	require.Len(t, records, len(steps))

	require.NotNil(t, records[0].FromStatus)
	assert.Equal(t, status.StatusNew, *records[0].FromStatus)
	for i := 1; i < len(records); i++ {
		require.NotNil(t, records[i].FromStatus)
		assert.Equal(t, records[i-1].ToStatus, *records[i].FromStatus)
		assert.True(t, records[i].ChangedAt.After(records[i-1].ChangedAt))
	}
	assert.Equal(t, status.StatusCertified, records[len(records)-1].ToStatus)
}

func TestTransition_ConcurrentCertificationsSameMonth(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const n = 10
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		customer := env.seedCustomer(t, status.StatusSubmitted)
		ids = append(ids, customer.ID.String())
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, id := range ids {
		wg.Add(1)
		go func(idx int, customerID string) {
			defer wg.Done()
			_, errs[idx] = env.svc.Transition(ctx, domain.TransitionRequest{
				CustomerID:   customerID,
				TargetStatus: "CERTIFIED",
			})
		}(i, id)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	count, err := env.counts.GetForMonth(ctx, env.db, "2026-03")
	require.NoError(t, err)
	assert.Equal(t, int64(n), count)
}

// conflictingRepo fails the guarded write a fixed number of times before
// delegating to the real repository.
type conflictingRepo struct {
	customerdomain.Repository
	mu        sync.Mutex
	conflicts int
}

func (r *conflictingRepo) UpdateStatus(ctx context.Context, db *gorm.DB, update customerdomain.StatusUpdate) (int64, error) {
	r.mu.Lock()
	remaining := r.conflicts
	if remaining > 0 {
		r.conflicts--
	}
	r.mu.Unlock()
	if remaining > 0 {
		return 0, nil
	}
	return r.Repository.UpdateStatus(ctx, db, update)
}

func newConflictingEnv(t *testing.T, conflicts, retries int) (*testEnv, *conflictingRepo) {
	t.Helper()
	env := newTestEnv(t)
	repo := &conflictingRepo{Repository: env.customers, conflicts: conflicts}

	m, err := metrics.New(metrics.Config{}, noop.NewMeterProvider())
	require.NoError(t, err)

	env.svc = New(Params{
		DB:        env.db,
		Log:       zap.NewNop(),
		GenID:     env.genID,
		Config:    config.Config{MaxReasonLength: 500, TransitionRetries: retries},
		Clock:     env.clock,
		Customers: repo,
		History:   env.history,
		Counts:    env.counts,
		Metrics:   m,
	})
	return env, repo
}

func TestTransition_RetriesAfterVersionConflict(t *testing.T) {
	env, _ := newConflictingEnv(t, 2, 3)
	customer := env.seedCustomer(t, status.StatusNew)

	result, err := env.svc.Transition(context.Background(), domain.TransitionRequest{
		CustomerID:   customer.ID.String(),
		TargetStatus: "NOTIFIED",
	})
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Len(t, env.historyFor(t, customer.ID), 1)
}

func TestTransition_ConflictRetriesExhausted(t *testing.T) {
	env, _ := newConflictingEnv(t, 10, 2)
	customer := env.seedCustomer(t, status.StatusNew)

	_, err := env.svc.Transition(context.Background(), domain.TransitionRequest{
		CustomerID:   customer.ID.String(),
		TargetStatus: "NOTIFIED",
	})
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)
	assert.Empty(t, env.historyFor(t, customer.ID))
}

func TestAllowedTargets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp, err := env.svc.AllowedTargets(ctx, domain.AllowedTargetsRequest{Status: "new"})
	require.NoError(t, err)
	assert.Equal(t, status.StatusNew, resp.Status)
	assert.Equal(t, []status.Status{
		status.StatusNotified,
		status.StatusAborted,
		status.StatusCertifiedElsewhere,
	}, resp.Targets)

	resp, err = env.svc.AllowedTargets(ctx, domain.AllowedTargetsRequest{Status: "CERTIFIED"})
	require.NoError(t, err)
	assert.Empty(t, resp.Targets)

	_, err = env.svc.AllowedTargets(ctx, domain.AllowedTargetsRequest{Status: "NOPE"})
	assert.ErrorIs(t, err, status.ErrUnknownStatus)
}
