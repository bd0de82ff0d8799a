package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"walletledger/internal/models"
	"walletledger/internal/reference"
	"walletledger/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=service.go -destination=../../test/mock_ledger_repository.go -package=test LedgerRepository

// LedgerRepository is the store contract the engine runs against. Every
// mutating method is a single atomic unit of work holding the wallet lock.
type LedgerRepository interface {
	Credit(ctx context.Context, userID uuid.UUID, p models.TxParams) (*models.Transaction, error)
	Debit(ctx context.Context, userID uuid.UUID, p models.TxParams) (*models.Transaction, error)
	Reverse(ctx context.Context, origRef, reversalRef, reason string) (*models.Transaction, error)
	GetOrCreateWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, bool, error)
	GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.Transaction, error)
	GetByReference(ctx context.Context, ref string) (*models.Transaction, error)
	CreatePendingFunding(ctx context.Context, userID uuid.UUID, p models.TxParams) (*models.Transaction, error)
	SettleFunding(ctx context.Context, ref string, success bool) (*models.Transaction, error)
}

// LedgerService orchestrates wallet mutations: it validates amounts and
// sources, fills in references and descriptions, and retries serialization
// failures. Balance invariants themselves are enforced by the store under
// the wallet lock.
type LedgerService struct {
	repo       LedgerRepository
	logger     *slog.Logger
	maxRetries int
}

func NewLedgerService(repo LedgerRepository, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		repo:       repo,
		logger:     logger,
		maxRetries: 3,
	}
}

func (s *LedgerService) Credit(ctx context.Context, userID uuid.UUID, p models.TxParams) (*models.Transaction, error) {
	if err := validateAmount(p.Amount); err != nil {
		s.logger.Error("Credit failed: invalid amount",
			slog.String("user_id", userID.String()),
			slog.Any("amount", p.Amount),
		)
		return nil, err
	}
	if p.Source == "" {
		p.Source = models.SourceFunding
	}
	if !p.Source.Valid() {
		return nil, repository.ErrInvalidSource
	}
	if p.Reference == "" {
		p.Reference = reference.Generate(reference.PrefixCredit)
	}
	if p.Description == "" {
		p.Description = fmt.Sprintf("Wallet credited with %s", p.Amount.StringFixed(2))
	}

	return s.withRetries(ctx, "credit", userID, p.Amount, func() (*models.Transaction, error) {
		return s.repo.Credit(ctx, userID, p)
	})
}

func (s *LedgerService) Debit(ctx context.Context, userID uuid.UUID, p models.TxParams) (*models.Transaction, error) {
	if err := validateAmount(p.Amount); err != nil {
		s.logger.Error("Debit failed: invalid amount",
			slog.String("user_id", userID.String()),
			slog.Any("amount", p.Amount),
		)
		return nil, err
	}
	if p.Source == "" {
		p.Source = models.SourceOrderPayment
	}
	if !p.Source.Valid() {
		return nil, repository.ErrInvalidSource
	}
	if p.Reference == "" {
		p.Reference = reference.Generate(reference.PrefixDebit)
	}
	if p.Description == "" {
		p.Description = fmt.Sprintf("Wallet debited with %s", p.Amount.StringFixed(2))
	}

	return s.withRetries(ctx, "debit", userID, p.Amount, func() (*models.Transaction, error) {
		return s.repo.Debit(ctx, userID, p)
	})
}

// ReverseTransaction creates the algebraic opposite of a COMPLETED
// transaction and marks the original REVERSED. Reversing a reversal is not
// supported: the reversal marks its original REVERSED, and REVERSED rows are
// rejected with ErrInvalidState.
func (s *LedgerService) ReverseTransaction(ctx context.Context, origRef, reason string) (*models.Transaction, error) {
	reversalRef := reference.Generate(reference.PrefixReverse)

	txn, err := s.repo.Reverse(ctx, origRef, reversalRef, reason)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrTransactionNotFound):
			s.logger.Warn("Reversal failed: transaction not found",
				slog.String("reference", origRef),
			)
		case errors.Is(err, repository.ErrInvalidState):
			s.logger.Warn("Reversal failed: transaction not reversible",
				slog.String("reference", origRef),
			)
		case errors.Is(err, repository.ErrInsufficientBalance):
			s.logger.Warn("Reversal failed: insufficient balance to reverse credit",
				slog.String("reference", origRef),
			)
		default:
			s.logger.Error("Reversal failed",
				slog.String("reference", origRef),
				slog.Any("err", err),
			)
		}
		return nil, err
	}

	s.logger.Info("Transaction reversed",
		slog.String("reference", origRef),
		slog.String("reversal_reference", txn.Reference),
	)
	return txn, nil
}

// OnUserCreated is the wallet lifecycle hook. The user-management
// collaborator must call it synchronously after committing a new user; it is
// idempotent, so retries of the surrounding flow are safe.
func (s *LedgerService) OnUserCreated(ctx context.Context, userID uuid.UUID) (*models.Wallet, bool, error) {
	wallet, created, err := s.repo.GetOrCreateWallet(ctx, userID)
	if err != nil {
		s.logger.Error("Wallet creation hook failed",
			slog.String("user_id", userID.String()),
			slog.Any("err", err),
		)
		return nil, false, err
	}
	if created {
		s.logger.Info("Wallet created for new user",
			slog.String("user_id", userID.String()),
		)
	}
	return wallet, created, nil
}

// GetOrCreateWallet is the defensive fallback for callers that may race the
// lifecycle hook.
func (s *LedgerService) GetOrCreateWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	wallet, _, err := s.repo.GetOrCreateWallet(ctx, userID)
	if err != nil {
		s.logger.Error("GetOrCreateWallet failed",
			slog.String("user_id", userID.String()),
			slog.Any("err", err),
		)
		return nil, err
	}
	return wallet, nil
}

// GetBalance returns zero for an absent wallet rather than failing.
func (s *LedgerService) GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	balance, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			return decimal.Zero, nil
		}
		s.logger.Error("GetBalance failed",
			slog.String("user_id", userID.String()),
			slog.Any("err", err),
		)
		return decimal.Zero, err
	}
	return balance, nil
}

func (s *LedgerService) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.Transaction, error) {
	txns, err := s.repo.ListTransactions(ctx, userID, limit)
	if err != nil {
		s.logger.Error("ListTransactions failed",
			slog.String("user_id", userID.String()),
			slog.Any("err", err),
		)
		return nil, err
	}
	return txns, nil
}

func (s *LedgerService) GetTransactionByReference(ctx context.Context, ref string) (*models.Transaction, error) {
	txn, err := s.repo.GetByReference(ctx, ref)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return nil, err
		}
		s.logger.Error("GetTransactionByReference failed",
			slog.String("reference", ref),
			slog.Any("err", err),
		)
		return nil, err
	}
	return txn, nil
}

// InitiateFunding records a funding attempt as a PENDING credit and returns
// it. The wallet is only credited when SettleFunding reports success from
// the payment gateway.
func (s *LedgerService) InitiateFunding(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, paymentMethod string) (*models.Transaction, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if _, err := s.GetOrCreateWallet(ctx, userID); err != nil {
		return nil, err
	}

	txn, err := s.repo.CreatePendingFunding(ctx, userID, models.TxParams{
		Amount:      amount,
		Source:      models.SourceFunding,
		Reference:   reference.Generate(reference.PrefixFunding),
		Description: fmt.Sprintf("Wallet funding of %s", amount.StringFixed(2)),
		Metadata:    models.Metadata{models.MetaPaymentMethod: paymentMethod},
	})
	if err != nil {
		s.logger.Error("InitiateFunding failed",
			slog.String("user_id", userID.String()),
			slog.Any("amount", amount),
			slog.Any("err", err),
		)
		return nil, err
	}

	s.logger.Info("Funding initiated",
		slog.String("user_id", userID.String()),
		slog.String("reference", txn.Reference),
		slog.Any("amount", amount),
	)
	return txn, nil
}

func (s *LedgerService) SettleFunding(ctx context.Context, ref string, success bool) (*models.Transaction, error) {
	txn, err := s.repo.SettleFunding(ctx, ref, success)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) || errors.Is(err, repository.ErrInvalidState) {
			s.logger.Warn("SettleFunding rejected",
				slog.String("reference", ref),
				slog.Any("err", err),
			)
		} else {
			s.logger.Error("SettleFunding failed",
				slog.String("reference", ref),
				slog.Any("err", err),
			)
		}
		return nil, err
	}

	s.logger.Info("Funding settled",
		slog.String("reference", ref),
		slog.String("status", string(txn.Status)),
	)
	return txn, nil
}

// withRetries re-runs a unit of work on serialization failures. Retrying is
// safe because the reference is fixed before the first attempt: a retry that
// actually applied surfaces as ErrDuplicateReference.
func (s *LedgerService) withRetries(ctx context.Context, op string, userID uuid.UUID, amount decimal.Decimal, fn func() (*models.Transaction, error)) (*models.Transaction, error) {
	var lastErr error
	for i := 0; i < s.maxRetries; i++ {
		txn, err := fn()
		if err == nil {
			return txn, nil
		}
		if isRetryableError(err) {
			s.logger.Warn("Retrying "+op,
				slog.String("user_id", userID.String()),
				slog.Int("attempt", i+1),
				slog.Any("err", err),
			)
			time.Sleep(time.Duration(1<<i) * 10 * time.Millisecond)
			lastErr = err
			continue
		}

		switch {
		case errors.Is(err, repository.ErrWalletNotFound):
			s.logger.Error(op+" failed: wallet not found",
				slog.String("user_id", userID.String()),
				slog.Any("amount", amount),
			)
		case errors.Is(err, repository.ErrInsufficientBalance):
			s.logger.Warn(op+" failed: insufficient balance",
				slog.String("user_id", userID.String()),
				slog.Any("amount", amount),
			)
		case errors.Is(err, repository.ErrDuplicateReference):
			s.logger.Warn(op+" failed: duplicate reference",
				slog.String("user_id", userID.String()),
			)
		case errors.Is(err, repository.ErrLockTimeout):
			s.logger.Warn(op+" failed: wallet lock timeout",
				slog.String("user_id", userID.String()),
			)
		default:
			s.logger.Error(op+" failed",
				slog.String("user_id", userID.String()),
				slog.Any("amount", amount),
				slog.Any("err", err),
			)
		}
		return nil, err
	}
	s.logger.Error(op+" failed after retries",
		slog.String("user_id", userID.String()),
		slog.Any("amount", amount),
		slog.Any("err", lastErr),
	)
	return nil, lastErr
}

// validateAmount rejects non-positive amounts and sub-cent precision. The
// conservation invariant only holds exactly at fixed 2-decimal precision.
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return repository.ErrInvalidAmount
	}
	if amount.Exponent() < -2 {
		return repository.ErrInvalidAmount
	}
	return nil
}

func isRetryableError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
