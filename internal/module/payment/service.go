package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/searchgate/server/internal/module/ledger"
	"github.com/searchgate/server/internal/module/pricing"
	"github.com/searchgate/server/internal/shared/metrics"
	"go.uber.org/zap"
)

// AccountVerifier reports whether an account is known to the system.
type AccountVerifier interface {
	Exists(ctx context.Context, accountID string) (bool, error)
}

// Service settles payment events into credits. Settlement is idempotent on
// the external payment ID and safe under redelivery.
type Service struct {
	repo     Repository
	ledger   *ledger.Service
	accounts AccountVerifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewService creates a new settlement service. Metrics may be nil.
func NewService(repo Repository, ledgerService *ledger.Service, accounts AccountVerifier, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		ledger:   ledgerService,
		accounts: accounts,
		metrics:  m,
		logger:   logger,
	}
}

// HandleSucceeded settles a successful payment. The purchase row is written
// before the ledger top-up, so a crash between the two leaves a pending row
// that the next redelivery finishes. Credits are granted at most once.
//
// SettlementRejected is returned only for validation failures, which no
// redelivery can cure. Infrastructure failures return an error with no
// result; the webhook answers non-2xx for those so the provider redelivers
// until the top-up lands.
func (s *Service) HandleSucceeded(ctx context.Context, event SettlementEvent) (SettlementResult, error) {
	result, err := s.settle(ctx, event)
	s.recordResult(result)
	return result, err
}

func (s *Service) settle(ctx context.Context, event SettlementEvent) (SettlementResult, error) {
	if event.ExternalPaymentID == "" {
		return SettlementRejected, fmt.Errorf("payment event has no payment id")
	}
	if event.AccountID == "" {
		return SettlementRejected, fmt.Errorf("%w: payment %s carries no account", ErrUnknownAccount, event.ExternalPaymentID)
	}

	if s.accounts != nil {
		known, err := s.accounts.Exists(ctx, event.AccountID)
		if err != nil {
			return "", fmt.Errorf("verify account: %w", err)
		}
		if !known {
			return SettlementRejected, fmt.Errorf("%w: %s", ErrUnknownAccount, event.AccountID)
		}
	}

	quote, err := pricing.Calculate(event.AmountUsdCents)
	if err != nil {
		return SettlementRejected, fmt.Errorf("price payment %s: %w", event.ExternalPaymentID, err)
	}

	purchase := &CreditPurchase{
		ID:                uuid.New(),
		AccountID:         event.AccountID,
		ExternalPaymentID: event.ExternalPaymentID,
		AmountUsdCents:    event.AmountUsdCents,
		CreditsGranted:    quote.Credits,
		DiscountPercent:   quote.DiscountPercent,
		Status:            PurchaseStatusPending,
	}

	if err := s.repo.Create(ctx, purchase); err != nil {
		if !errors.Is(err, ErrDuplicatePurchase) {
			return "", fmt.Errorf("record purchase: %w", err)
		}
		return s.settleExisting(ctx, event.ExternalPaymentID)
	}

	return s.grantCredits(ctx, purchase)
}

// settleExisting handles redelivery of an already recorded payment. A
// completed row means credits were granted; a pending row means the ledger
// top-up did not finish last time and is retried now.
func (s *Service) settleExisting(ctx context.Context, externalPaymentID string) (SettlementResult, error) {
	purchase, err := s.repo.GetByExternalID(ctx, externalPaymentID)
	if err != nil {
		return "", fmt.Errorf("load purchase: %w", err)
	}

	switch purchase.Status {
	case PurchaseStatusCompleted:
		s.logger.Info("payment already settled",
			zap.String("external_payment_id", externalPaymentID),
			zap.String("account_id", purchase.AccountID),
		)
		return SettlementAlreadyApplied, nil
	case PurchaseStatusPending:
		return s.grantCredits(ctx, purchase)
	default:
		return SettlementRejected, fmt.Errorf("payment %s previously failed", externalPaymentID)
	}
}

func (s *Service) grantCredits(ctx context.Context, purchase *CreditPurchase) (SettlementResult, error) {
	if err := s.ledger.TopUp(ctx, purchase.AccountID, purchase.CreditsGranted); err != nil {
		// The pending row is already durable. Reporting this as an error
		// with no result makes the webhook fail the delivery, and the
		// redelivery finishes the top-up via settleExisting.
		return "", fmt.Errorf("grant credits: %w", err)
	}

	if err := s.repo.UpdateStatus(ctx, purchase.ID.String(), PurchaseStatusCompleted, ""); err != nil {
		// Credits are already granted. The pending row stays and the next
		// redelivery retries this update via the idempotent ledger path.
		s.logger.Error("failed to mark purchase completed",
			zap.String("purchase_id", purchase.ID.String()),
			zap.Error(err),
		)
	}

	s.logger.Info("payment settled",
		zap.String("external_payment_id", purchase.ExternalPaymentID),
		zap.String("account_id", purchase.AccountID),
		zap.Int64("amount_usd_cents", purchase.AmountUsdCents),
		zap.Int64("credits_granted", purchase.CreditsGranted),
	)
	return SettlementApplied, nil
}

// HandleFailed records a failed payment. It never touches the ledger.
func (s *Service) HandleFailed(ctx context.Context, event SettlementEvent, reason string) error {
	if event.ExternalPaymentID == "" {
		return fmt.Errorf("payment event has no payment id")
	}

	purchase := &CreditPurchase{
		ID:                uuid.New(),
		AccountID:         event.AccountID,
		ExternalPaymentID: event.ExternalPaymentID,
		AmountUsdCents:    event.AmountUsdCents,
		Status:            PurchaseStatusFailed,
		FailureReason:     reason,
	}
	if err := s.repo.Create(ctx, purchase); err != nil {
		if errors.Is(err, ErrDuplicatePurchase) {
			return nil
		}
		return fmt.Errorf("record failed payment: %w", err)
	}

	s.logger.Warn("payment failed",
		zap.String("external_payment_id", event.ExternalPaymentID),
		zap.String("account_id", event.AccountID),
		zap.String("reason", reason),
	)
	return nil
}

// ListPurchases returns recent purchases for an account.
func (s *Service) ListPurchases(ctx context.Context, accountID string, limit int) ([]*CreditPurchase, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListByAccount(ctx, accountID, limit)
}

func (s *Service) recordResult(result SettlementResult) {
	if result == "" || s.metrics == nil {
		return
	}
	s.metrics.PaymentsSettledTotal.WithLabelValues(string(result)).Inc()
}
