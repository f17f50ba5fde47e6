package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/searchgate/server/internal/module/ledger"
	"github.com/searchgate/server/internal/module/search"
	"github.com/searchgate/server/internal/module/usage"
	"github.com/searchgate/server/internal/ratelimit"
	apperrors "github.com/searchgate/server/internal/shared/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(ctx context.Context, req search.Request) (*search.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*search.Response), args.Error(1)
}

type blockedLimiter struct{}

func (blockedLimiter) Allow(ctx context.Context, key string) (ratelimit.Decision, error) {
	return ratelimit.Decision{Allowed: false, RetryAfter: 30 * time.Second}, nil
}

func newTestPipeline(t *testing.T, limiter ratelimit.Limiter) (*Service, *MockExecutor, *ledger.Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&ledger.CreditBalance{}, &usage.Record{}))

	if limiter == nil {
		limiter = ratelimit.NewMemoryLimiter(1000, time.Minute)
	}

	executor := new(MockExecutor)
	ledgerService := ledger.NewService(ledger.NewRepository(db), zap.NewNop())
	recorder := usage.NewRecorder(usage.NewRepository(db), zap.NewNop())
	service := NewService(executor, ledgerService, limiter, recorder, nil, zap.NewNop())
	return service, executor, ledgerService, db
}

func seedBalance(t *testing.T, ledgerService *ledger.Service, accountID string, credits int64) {
	t.Helper()
	require.NoError(t, ledgerService.TopUp(context.Background(), accountID, credits))
}

func TestSearchDebitsEngineCosts(t *testing.T) {
	service, executor, ledgerService, db := newTestPipeline(t, nil)
	ctx := context.Background()
	seedBalance(t, ledgerService, "acct-1", 100)

	executor.On("Execute", mock.Anything, mock.Anything).Return(&search.Response{
		Results: []search.Result{
			{Title: "a", URL: "https://a.example", Position: 1, Engine: "google"},
			{Title: "b", URL: "https://b.example", Position: 2, Engine: "duckduckgo"},
		},
		NumberOfResults: 2,
		InstanceUsed:    "https://searx.example",
		EnginesUsed:     []string{"duckduckgo", "google"},
		Attempts:        1,
	}, nil)

	outcome, err := service.Search(ctx, "acct-1", search.Request{
		Query:   "golang",
		Engines: []string{"google", "duckduckgo"},
	})
	require.NoError(t, err)

	// google costs 1, duckduckgo costs 2.
	assert.Equal(t, int64(3), outcome.CreditsCharged)
	assert.Equal(t, int64(97), outcome.BalanceAfter)

	balance, err := ledgerService.Balance(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, int64(97), balance.Balance)
	assert.Equal(t, int64(3), balance.TotalUsed)

	var records []*usage.Record
	require.NoError(t, db.Find(&records).Error)
	require.Len(t, records, 1)
	assert.Equal(t, usage.StatusSuccess, records[0].Status)
	assert.Equal(t, int64(3), records[0].CreditsCharged)
	assert.Equal(t, 2, records[0].ResultsCount)
}

func TestSearchChargesActualEnginesNotRequested(t *testing.T) {
	service, executor, ledgerService, _ := newTestPipeline(t, nil)
	ctx := context.Background()
	seedBalance(t, ledgerService, "acct-1", 100)

	// duckduckgo (2) + google (1) requested, only google responded.
	executor.On("Execute", mock.Anything, mock.Anything).Return(&search.Response{
		Results:      []search.Result{{Title: "a", URL: "https://a.example", Position: 1, Engine: "google"}},
		InstanceUsed: "https://searx.example",
		EnginesUsed:  []string{"google"},
		Attempts:     1,
	}, nil)

	outcome, err := service.Search(ctx, "acct-1", search.Request{
		Query:   "golang",
		Engines: []string{"google", "duckduckgo"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), outcome.CreditsCharged)

	balance, err := ledgerService.Balance(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, int64(99), balance.Balance)
}

func TestSearchUpstreamFailureReleasesCredits(t *testing.T) {
	service, executor, ledgerService, db := newTestPipeline(t, nil)
	ctx := context.Background()
	seedBalance(t, ledgerService, "acct-1", 100)

	executor.On("Execute", mock.Anything, mock.Anything).Return(nil, &search.ExhaustedError{
		Attempts: 3,
		Last:     errors.New("status 502"),
	})

	_, err := service.Search(ctx, "acct-1", search.Request{Query: "golang", Engines: []string{"google"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstreamFailure)

	// The failed search must not cost anything.
	balance, err := ledgerService.Balance(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance.Balance)
	assert.Equal(t, int64(0), balance.TotalUsed)

	var records []*usage.Record
	require.NoError(t, db.Find(&records).Error)
	require.Len(t, records, 1)
	assert.Equal(t, usage.StatusError, records[0].Status)
	assert.Equal(t, int64(0), records[0].CreditsCharged)
}

func TestSearchInsufficientCredits(t *testing.T) {
	service, executor, ledgerService, db := newTestPipeline(t, nil)
	ctx := context.Background()
	seedBalance(t, ledgerService, "acct-1", 1)

	// duckduckgo costs 2, balance is 1.
	_, err := service.Search(ctx, "acct-1", search.Request{Query: "golang", Engines: []string{"duckduckgo"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientCredits)

	balance, err := ledgerService.Balance(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), balance.Balance)

	var count int64
	require.NoError(t, db.Model(&usage.Record{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
	executor.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestSearchUnknownAccountTreatedAsInsufficient(t *testing.T) {
	service, executor, _, _ := newTestPipeline(t, nil)

	_, err := service.Search(context.Background(), "acct-missing", search.Request{Query: "golang"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientCredits)
	executor.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestSearchRateLimitedSkipsLedger(t *testing.T) {
	service, executor, ledgerService, db := newTestPipeline(t, blockedLimiter{})
	ctx := context.Background()
	seedBalance(t, ledgerService, "acct-1", 100)

	_, err := service.Search(ctx, "acct-1", search.Request{Query: "golang"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrRateLimited)

	balance, err := ledgerService.Balance(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance.Balance)

	var count int64
	require.NoError(t, db.Model(&usage.Record{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
	executor.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestSearchDefaultEngineSetCostsOne(t *testing.T) {
	service, executor, ledgerService, _ := newTestPipeline(t, nil)
	ctx := context.Background()
	seedBalance(t, ledgerService, "acct-1", 10)

	executor.On("Execute", mock.Anything, mock.Anything).Return(&search.Response{
		Results:      []search.Result{{Title: "a", URL: "https://a.example", Position: 1}},
		InstanceUsed: "https://searx.example",
		Attempts:     1,
	}, nil)

	outcome, err := service.Search(ctx, "acct-1", search.Request{Query: "golang"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), outcome.CreditsCharged)
	assert.Equal(t, int64(9), outcome.BalanceAfter)
}
