package gateway

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/searchgate/server/internal/module/ledger"
	"github.com/searchgate/server/internal/module/pricing"
	"github.com/searchgate/server/internal/module/search"
	"github.com/searchgate/server/internal/module/usage"
	"github.com/searchgate/server/internal/ratelimit"
	apperrors "github.com/searchgate/server/internal/shared/errors"
	"github.com/searchgate/server/internal/shared/metrics"
	"go.uber.org/zap"
)

// SearchExecutor runs one upstream search with failover.
type SearchExecutor interface {
	Execute(ctx context.Context, req search.Request) (*search.Response, error)
}

// SearchOutcome is a settled search with its billing result.
type SearchOutcome struct {
	Response       *search.Response
	CreditsCharged int64
	BalanceAfter   int64
	ResponseTimeMs int64
}

// Service is the metered search pipeline. Every request passes rate
// limiting, credit reservation, the upstream call, and settlement, in that
// order, and leaves exactly one usage record behind.
type Service struct {
	executor SearchExecutor
	ledger   *ledger.Service
	limiter  ratelimit.Limiter
	usage    *usage.Recorder
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewService creates a new gateway service. Metrics may be nil.
func NewService(
	executor SearchExecutor,
	ledgerService *ledger.Service,
	limiter ratelimit.Limiter,
	recorder *usage.Recorder,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	return &Service{
		executor: executor,
		ledger:   ledgerService,
		limiter:  limiter,
		usage:    recorder,
		metrics:  m,
		logger:   logger,
	}
}

// Search runs the full admission and billing pipeline for one query.
//
// Credits are reserved for the requested engines before the upstream call
// and settled afterwards against the engines that actually responded. An
// upstream failure releases the reservation in full, so a failed search
// never costs anything.
func (s *Service) Search(ctx context.Context, accountID string, req search.Request) (*SearchOutcome, error) {
	decision, err := s.limiter.Allow(ctx, accountID)
	if err != nil {
		return nil, apperrors.Internal("rate limit check failed", err)
	}
	if !decision.Allowed {
		s.countSearch("rate_limited")
		retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		return nil, apperrors.RateLimited(retryAfter)
	}

	estimatedCost := pricing.CostForEngines(req.Engines)
	reservation, err := s.ledger.Reserve(ctx, accountID, estimatedCost)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientCredits) || errors.Is(err, ledger.ErrBalanceNotFound) {
			s.countSearch("insufficient_credits")
			return nil, apperrors.InsufficientCredits(s.currentBalance(ctx, accountID), estimatedCost)
		}
		return nil, apperrors.Internal("credit reservation failed", err)
	}

	// Settlement must run even when the caller goes away mid-request.
	settleCtx := context.WithoutCancel(ctx)
	defer func() {
		if err := s.ledger.Release(settleCtx, reservation); err != nil {
			s.logger.Error("failed to release reservation",
				zap.String("account_id", accountID),
				zap.Error(err),
			)
		}
	}()

	start := time.Now()
	resp, err := s.executor.Execute(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		s.countSearch("upstream_error")
		s.recordUsage(settleCtx, usage.Attempt{
			AccountID:      accountID,
			Query:          req.Query,
			Engines:        req.Engines,
			Status:         usage.StatusError,
			ResponseTimeMs: elapsed.Milliseconds(),
		})

		var exhausted *search.ExhaustedError
		if errors.As(err, &exhausted) {
			return nil, apperrors.UpstreamFailure(exhausted.Attempts, exhausted.Last)
		}
		return nil, apperrors.UpstreamFailure(1, err)
	}

	finalCost := pricing.CostForEngines(resp.EnginesUsed)
	if err := s.ledger.Commit(settleCtx, reservation, finalCost); err != nil {
		// The reservation stays debited at the estimated cost.
		s.logger.Error("failed to commit reservation",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
		finalCost = estimatedCost
	}

	s.countSearch("success")
	if s.metrics != nil {
		s.metrics.SearchDuration.Observe(elapsed.Seconds())
		s.metrics.CreditsDebitedTotal.Add(float64(finalCost))
	}
	s.recordUsage(settleCtx, usage.Attempt{
		AccountID:      accountID,
		Query:          req.Query,
		Engines:        resp.EnginesUsed,
		ResultsCount:   len(resp.Results),
		Status:         usage.StatusSuccess,
		ResponseTimeMs: elapsed.Milliseconds(),
		CreditsCharged: finalCost,
	})

	return &SearchOutcome{
		Response:       resp,
		CreditsCharged: finalCost,
		BalanceAfter:   s.currentBalance(ctx, accountID),
		ResponseTimeMs: elapsed.Milliseconds(),
	}, nil
}

func (s *Service) currentBalance(ctx context.Context, accountID string) int64 {
	balance, err := s.ledger.Balance(ctx, accountID)
	if err != nil {
		return 0
	}
	return balance.Balance
}

func (s *Service) recordUsage(ctx context.Context, a usage.Attempt) {
	if err := s.usage.Record(ctx, a); err != nil {
		s.logger.Error("failed to record usage",
			zap.String("account_id", a.AccountID),
			zap.Error(err),
		)
	}
}

func (s *Service) countSearch(outcome string) {
	if s.metrics != nil {
		s.metrics.SearchesTotal.WithLabelValues(outcome).Inc()
	}
}
