package ledger

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reservation is a pending, already-applied debit. It must be resolved
// exactly once, by Commit or Release.
type Reservation struct {
	ID        uuid.UUID
	AccountID string
	Amount    int64

	settled atomic.Bool
}

// Service implements the credit ledger operations.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// NewService creates a new ledger service.
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Reserve atomically debits cost from the account balance, failing with
// ErrInsufficientCredits when the balance is below cost. The debit is applied
// immediately; Commit confirms it and Release reverses it.
func (s *Service) Reserve(ctx context.Context, accountID string, cost int64) (*Reservation, error) {
	if err := s.repo.Debit(ctx, accountID, cost); err != nil {
		return nil, err
	}
	return &Reservation{
		ID:        uuid.New(),
		AccountID: accountID,
		Amount:    cost,
	}, nil
}

// Commit confirms a reservation at finalCost. When the final cost differs
// from the reserved amount the difference is settled atomically: a cheaper
// outcome refunds the difference, a more expensive one debits it. If the
// extra debit fails on insufficient balance the charge stays at the reserved
// amount rather than failing an already-successful request.
func (s *Service) Commit(ctx context.Context, r *Reservation, finalCost int64) error {
	if !r.settled.CompareAndSwap(false, true) {
		return ErrReservationSettled
	}

	switch {
	case finalCost == r.Amount:
		return nil
	case finalCost < r.Amount:
		return s.repo.Refund(ctx, r.AccountID, r.Amount-finalCost)
	default:
		err := s.repo.Debit(ctx, r.AccountID, finalCost-r.Amount)
		if errors.Is(err, ErrInsufficientCredits) {
			s.logger.Warn("commit adjustment exceeds balance, charging reserved amount",
				zap.String("account_id", r.AccountID),
				zap.Int64("reserved", r.Amount),
				zap.Int64("final_cost", finalCost),
			)
			return nil
		}
		return err
	}
}

// Release reverses a reservation in full. It is idempotent against Commit:
// a reservation that was already settled is left untouched.
func (s *Service) Release(ctx context.Context, r *Reservation) error {
	if !r.settled.CompareAndSwap(false, true) {
		return nil
	}
	return s.repo.Refund(ctx, r.AccountID, r.Amount)
}

// TopUp credits the account balance. Used only by payment settlement.
func (s *Service) TopUp(ctx context.Context, accountID string, credits int64) error {
	if err := s.repo.TopUp(ctx, accountID, credits, time.Now().UTC()); err != nil {
		return err
	}
	s.logger.Info("credits added",
		zap.String("account_id", accountID),
		zap.Int64("credits", credits),
	)
	return nil
}

// Balance returns the current balance row for an account.
func (s *Service) Balance(ctx context.Context, accountID string) (*CreditBalance, error) {
	return s.repo.GetBalance(ctx, accountID)
}
