package instance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Mock repository ---

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) ListActive(ctx context.Context) ([]*SearchInstance, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*SearchInstance), args.Error(1)
}

func (m *MockRepository) UpdateHealth(ctx context.Context, id uuid.UUID, status HealthStatus, responseTimeMs int64, checkedAt time.Time) error {
	args := m.Called(ctx, id, status, responseTimeMs, checkedAt)
	return args.Error(0)
}

func (m *MockRepository) Upsert(ctx context.Context, inst *SearchInstance) error {
	args := m.Called(ctx, inst)
	return args.Error(0)
}

func testInstance(url string, priority int, status HealthStatus) *SearchInstance {
	return &SearchInstance{
		ID:           uuid.New(),
		URL:          url,
		IsActive:     true,
		HealthStatus: status,
		Priority:     priority,
	}
}

func TestSelectCandidatesFiltersUnhealthy(t *testing.T) {
	repo := new(MockRepository)
	repo.On("ListActive", mock.Anything).Return([]*SearchInstance{
		testInstance("https://a.example", 30, HealthStatusUnhealthy),
		testInstance("https://b.example", 20, HealthStatusUnhealthy),
		testInstance("https://c.example", 10, HealthStatusHealthy),
	}, nil)

	r := NewRegistry(repo, nil, RegistryConfig{}, zap.NewNop())
	require.NoError(t, r.Refresh(context.Background()))

	candidates := r.SelectCandidates()
	require.Len(t, candidates, 1)
	assert.Equal(t, "https://c.example", candidates[0].URL)
}

func TestSelectCandidatesOrdersByPriority(t *testing.T) {
	repo := new(MockRepository)
	repo.On("ListActive", mock.Anything).Return([]*SearchInstance{
		testInstance("https://low.example", 1, HealthStatusHealthy),
		testInstance("https://high.example", 100, HealthStatusHealthy),
		testInstance("https://mid.example", 50, HealthStatusHealthy),
	}, nil)

	r := NewRegistry(repo, nil, RegistryConfig{}, zap.NewNop())
	require.NoError(t, r.Refresh(context.Background()))

	candidates := r.SelectCandidates()
	require.Len(t, candidates, 3)
	assert.Equal(t, "https://high.example", candidates[0].URL)
	assert.Equal(t, "https://mid.example", candidates[1].URL)
	assert.Equal(t, "https://low.example", candidates[2].URL)
}

func TestSelectCandidatesFallsBackToDefaults(t *testing.T) {
	repo := new(MockRepository)
	repo.On("ListActive", mock.Anything).Return([]*SearchInstance{
		testInstance("https://down.example", 10, HealthStatusUnhealthy),
	}, nil)

	r := NewRegistry(repo, nil, RegistryConfig{
		DefaultURLs: []string{"https://fallback.example"},
	}, zap.NewNop())
	require.NoError(t, r.Refresh(context.Background()))

	candidates := r.SelectCandidates()
	require.Len(t, candidates, 1)
	assert.Equal(t, "https://fallback.example", candidates[0].URL)
	assert.Equal(t, HealthStatusUnknown, candidates[0].HealthStatus)
}

func TestSelectCandidatesSkipsInactive(t *testing.T) {
	inactive := testInstance("https://off.example", 99, HealthStatusHealthy)
	inactive.IsActive = false

	repo := new(MockRepository)
	repo.On("ListActive", mock.Anything).Return([]*SearchInstance{
		inactive,
		testInstance("https://on.example", 1, HealthStatusHealthy),
	}, nil)

	r := NewRegistry(repo, nil, RegistryConfig{}, zap.NewNop())
	require.NoError(t, r.Refresh(context.Background()))

	candidates := r.SelectCandidates()
	require.Len(t, candidates, 1)
	assert.Equal(t, "https://on.example", candidates[0].URL)
}

func TestMarkHealthUpdatesSnapshot(t *testing.T) {
	repo := new(MockRepository)
	repo.On("ListActive", mock.Anything).Return([]*SearchInstance{
		testInstance("https://a.example", 10, HealthStatusHealthy),
	}, nil)

	r := NewRegistry(repo, nil, RegistryConfig{DefaultURLs: []string{"https://fallback.example"}}, zap.NewNop())
	require.NoError(t, r.Refresh(context.Background()))

	r.MarkHealth("https://a.example", HealthStatusUnhealthy)

	candidates := r.SelectCandidates()
	require.Len(t, candidates, 1)
	assert.Equal(t, "https://fallback.example", candidates[0].URL)
}
