package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"walletledger/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const txnColumns = `id, wallet_id, type, amount, balance_before, balance_after, status, source, reference, description, metadata, created_at, updated_at`

// LedgerPGRepository persists wallets and transactions in Postgres. Every
// mutating method is one database transaction: the wallet row is taken
// FOR UPDATE before its balance is read, and the transaction insert plus the
// balance update commit together or not at all.
type LedgerPGRepository struct {
	pool        *pgxpool.Pool
	logger      *slog.Logger
	lockTimeout time.Duration
}

func NewLedgerPGRepository(pool *pgxpool.Pool, logger *slog.Logger, lockTimeout time.Duration) *LedgerPGRepository {
	if lockTimeout <= 0 {
		lockTimeout = 3 * time.Second
	}
	return &LedgerPGRepository{
		pool:        pool,
		logger:      logger,
		lockTimeout: lockTimeout,
	}
}

func (r *LedgerPGRepository) Credit(ctx context.Context, userID uuid.UUID, p models.TxParams) (*models.Transaction, error) {
	return r.applyEntry(ctx, userID, models.TxTypeCredit, p)
}

func (r *LedgerPGRepository) Debit(ctx context.Context, userID uuid.UUID, p models.TxParams) (*models.Transaction, error) {
	return r.applyEntry(ctx, userID, models.TxTypeDebit, p)
}

// applyEntry runs one locked unit of work: lock wallet, compute balances,
// insert the COMPLETED transaction, update the wallet.
func (r *LedgerPGRepository) applyEntry(ctx context.Context, userID uuid.UUID, txType models.TxType, p models.TxParams) (*models.Transaction, error) {
	op := "credit"
	if txType == models.TxTypeDebit {
		op = "debit"
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		r.logger.Error("Failed to begin transaction",
			slog.String("user_id", userID.String()),
			slog.Any("err", err),
		)
		return nil, &StoreError{Op: op, Err: err}
	}
	defer r.rollback(ctx, tx, userID)

	balanceBefore, err := r.lockWallet(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	var balanceAfter decimal.Decimal
	if txType == models.TxTypeCredit {
		balanceAfter = balanceBefore.Add(p.Amount)
	} else {
		if balanceBefore.LessThan(p.Amount) {
			return nil, &InsufficientBalanceError{Available: balanceBefore, Required: p.Amount}
		}
		balanceAfter = balanceBefore.Sub(p.Amount)
	}

	txn, err := insertTransaction(ctx, tx, txnRow{
		walletID:      userID,
		txType:        txType,
		amount:        p.Amount,
		balanceBefore: balanceBefore,
		balanceAfter:  balanceAfter,
		status:        models.TxStatusCompleted,
		source:        p.Source,
		reference:     p.Reference,
		description:   p.Description,
		metadata:      p.Metadata,
	})
	if err != nil {
		if mapped := mapPgError(err); mapped != err {
			return nil, mapped
		}
		r.logger.Error("Failed to insert transaction",
			slog.String("user_id", userID.String()),
			slog.String("reference", p.Reference),
			slog.Any("err", err),
		)
		return nil, &StoreError{Op: op, Err: err}
	}

	if err := r.updateBalance(ctx, tx, userID, balanceAfter); err != nil {
		return nil, &StoreError{Op: op, Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("Failed to commit transaction",
			slog.String("user_id", userID.String()),
			slog.Any("err", err),
		)
		return nil, &StoreError{Op: op, Err: err}
	}
	return txn, nil
}

// Reverse undoes a COMPLETED transaction: the original row is locked first,
// then its wallet, so a transaction cannot be reversed twice and the balance
// check for a credit reversal happens under the same lock as the write.
func (r *LedgerPGRepository) Reverse(ctx context.Context, origRef, reversalRef, reason string) (*models.Transaction, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		r.logger.Error("Failed to begin transaction",
			slog.String("reference", origRef),
			slog.Any("err", err),
		)
		return nil, &StoreError{Op: "reverse", Err: err}
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			r.logger.Error("Failed to rollback transaction",
				slog.String("reference", origRef),
				slog.Any("err", err),
			)
		}
	}()

	if err := r.setLockTimeout(ctx, tx); err != nil {
		return nil, &StoreError{Op: "reverse", Err: err}
	}

	orig, err := scanTransaction(tx.QueryRow(ctx,
		"SELECT "+txnColumns+" FROM wallet_transactions WHERE reference = $1 FOR UPDATE", origRef))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		if mapped := mapPgError(err); mapped != err {
			return nil, mapped
		}
		r.logger.Error("Failed to select transaction for update",
			slog.String("reference", origRef),
			slog.Any("err", err),
		)
		return nil, &StoreError{Op: "reverse", Err: err}
	}

	if orig.Status != models.TxStatusCompleted {
		return nil, ErrInvalidState
	}
	// Reversal chains are not supported; undo a bad reversal with an
	// ADMIN_ADJUSTMENT instead.
	if orig.Source == models.SourceReversal {
		return nil, ErrInvalidState
	}

	balance, err := r.lockWallet(ctx, tx, orig.WalletID)
	if err != nil {
		return nil, err
	}

	reversalType := orig.Type.Opposite()
	var newBalance decimal.Decimal
	if reversalType == models.TxTypeDebit {
		// Reversing a credit debits the wallet; the funds may already be
		// spent, in which case the original stays COMPLETED.
		if balance.LessThan(orig.Amount) {
			return nil, &InsufficientBalanceError{Available: balance, Required: orig.Amount}
		}
		newBalance = balance.Sub(orig.Amount)
	} else {
		newBalance = balance.Add(orig.Amount)
	}

	reversal, err := insertTransaction(ctx, tx, txnRow{
		walletID:      orig.WalletID,
		txType:        reversalType,
		amount:        orig.Amount,
		balanceBefore: balance,
		balanceAfter:  newBalance,
		status:        models.TxStatusCompleted,
		source:        models.SourceReversal,
		reference:     reversalRef,
		description:   fmt.Sprintf("Reversal of %s. Reason: %s", origRef, reason),
		metadata: models.Metadata{
			models.MetaOriginalReference: origRef,
			models.MetaReversalReason:    reason,
		},
	})
	if err != nil {
		if mapped := mapPgError(err); mapped != err {
			return nil, mapped
		}
		r.logger.Error("Failed to insert reversal transaction",
			slog.String("reference", origRef),
			slog.Any("err", err),
		)
		return nil, &StoreError{Op: "reverse", Err: err}
	}

	_, err = tx.Exec(ctx,
		"UPDATE wallet_transactions SET status = $1, updated_at = NOW() WHERE id = $2",
		models.TxStatusReversed, orig.ID)
	if err != nil {
		return nil, &StoreError{Op: "reverse", Err: err}
	}

	if err := r.updateBalance(ctx, tx, orig.WalletID, newBalance); err != nil {
		return nil, &StoreError{Op: "reverse", Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("Failed to commit reversal",
			slog.String("reference", origRef),
			slog.Any("err", err),
		)
		return nil, &StoreError{Op: "reverse", Err: err}
	}
	return reversal, nil
}

// GetOrCreateWallet is idempotent; the bool reports whether a new wallet row
// was created by this call.
func (r *LedgerPGRepository) GetOrCreateWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, bool, error) {
	tag, err := r.pool.Exec(ctx,
		"INSERT INTO wallets (user_id, balance) VALUES ($1, 0) ON CONFLICT (user_id) DO NOTHING", userID)
	if err != nil {
		r.logger.Error("Failed to upsert wallet",
			slog.String("user_id", userID.String()),
			slog.Any("err", err),
		)
		return nil, false, &StoreError{Op: "get_or_create_wallet", Err: err}
	}
	created := tag.RowsAffected() == 1

	wallet, err := r.GetWallet(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return wallet, created, nil
}

func (r *LedgerPGRepository) GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	err := r.pool.QueryRow(ctx,
		"SELECT user_id, balance, created_at, updated_at FROM wallets WHERE user_id = $1", userID).
		Scan(&w.UserID, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get wallet",
			slog.String("user_id", userID.String()),
			slog.Any("err", err),
		)
		return nil, &StoreError{Op: "get_wallet", Err: err}
	}
	return &w, nil
}

func (r *LedgerPGRepository) GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.pool.QueryRow(ctx, "SELECT balance FROM wallets WHERE user_id = $1", userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrWalletNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get balance",
			slog.String("user_id", userID.String()),
			slog.Any("err", err),
		)
		return decimal.Zero, &StoreError{Op: "get_balance", Err: err}
	}
	return balance, nil
}

// ListTransactions returns the wallet's transactions newest first. limit <= 0
// means no cap. An absent wallet yields an empty list, not an error.
func (r *LedgerPGRepository) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.Transaction, error) {
	query := "SELECT " + txnColumns + " FROM wallet_transactions WHERE wallet_id = $1 ORDER BY created_at DESC, id DESC"
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list transactions",
			slog.String("user_id", userID.String()),
			slog.Any("err", err),
		)
		return nil, &StoreError{Op: "list_transactions", Err: err}
	}
	defer rows.Close()

	txns := make([]models.Transaction, 0)
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, &StoreError{Op: "list_transactions", Err: err}
		}
		txns = append(txns, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "list_transactions", Err: err}
	}
	return txns, nil
}

func (r *LedgerPGRepository) GetByReference(ctx context.Context, ref string) (*models.Transaction, error) {
	txn, err := scanTransaction(r.pool.QueryRow(ctx,
		"SELECT "+txnColumns+" FROM wallet_transactions WHERE reference = $1", ref))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get transaction by reference",
			slog.String("reference", ref),
			slog.Any("err", err),
		)
		return nil, &StoreError{Op: "get_by_reference", Err: err}
	}
	return txn, nil
}

// CreatePendingFunding records a funding attempt as a PENDING credit. The
// balance fields are placeholders equal to the current balance; they are
// finalized exactly once when the attempt settles.
func (r *LedgerPGRepository) CreatePendingFunding(ctx context.Context, userID uuid.UUID, p models.TxParams) (*models.Transaction, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, &StoreError{Op: "create_pending_funding", Err: err}
	}
	defer r.rollback(ctx, tx, userID)

	var balance decimal.Decimal
	err = tx.QueryRow(ctx, "SELECT balance FROM wallets WHERE user_id = $1", userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, &StoreError{Op: "create_pending_funding", Err: err}
	}

	txn, err := insertTransaction(ctx, tx, txnRow{
		walletID:      userID,
		txType:        models.TxTypeCredit,
		amount:        p.Amount,
		balanceBefore: balance,
		balanceAfter:  balance,
		status:        models.TxStatusPending,
		source:        models.SourceFunding,
		reference:     p.Reference,
		description:   p.Description,
		metadata:      p.Metadata,
	})
	if err != nil {
		if mapped := mapPgError(err); mapped != err {
			return nil, mapped
		}
		r.logger.Error("Failed to insert pending funding",
			slog.String("user_id", userID.String()),
			slog.String("reference", p.Reference),
			slog.Any("err", err),
		)
		return nil, &StoreError{Op: "create_pending_funding", Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, &StoreError{Op: "create_pending_funding", Err: err}
	}
	return txn, nil
}

// SettleFunding moves a PENDING funding transaction to COMPLETED (crediting
// the wallet) or FAILED, depending on the gateway outcome.
func (r *LedgerPGRepository) SettleFunding(ctx context.Context, ref string, success bool) (*models.Transaction, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, &StoreError{Op: "settle_funding", Err: err}
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			r.logger.Error("Failed to rollback transaction",
				slog.String("reference", ref),
				slog.Any("err", err),
			)
		}
	}()

	if err := r.setLockTimeout(ctx, tx); err != nil {
		return nil, &StoreError{Op: "settle_funding", Err: err}
	}

	pending, err := scanTransaction(tx.QueryRow(ctx,
		"SELECT "+txnColumns+" FROM wallet_transactions WHERE reference = $1 FOR UPDATE", ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		if mapped := mapPgError(err); mapped != err {
			return nil, mapped
		}
		return nil, &StoreError{Op: "settle_funding", Err: err}
	}

	if pending.Status != models.TxStatusPending {
		return nil, ErrInvalidState
	}

	if !success {
		settled, err := scanTransaction(tx.QueryRow(ctx,
			"UPDATE wallet_transactions SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING "+txnColumns,
			models.TxStatusFailed, pending.ID))
		if err != nil {
			return nil, &StoreError{Op: "settle_funding", Err: err}
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, &StoreError{Op: "settle_funding", Err: err}
		}
		return settled, nil
	}

	balance, err := r.lockWallet(ctx, tx, pending.WalletID)
	if err != nil {
		return nil, err
	}
	newBalance := balance.Add(pending.Amount)

	settled, err := scanTransaction(tx.QueryRow(ctx,
		`UPDATE wallet_transactions
		 SET status = $1, balance_before = $2, balance_after = $3, updated_at = NOW()
		 WHERE id = $4 RETURNING `+txnColumns,
		models.TxStatusCompleted, balance, newBalance, pending.ID))
	if err != nil {
		return nil, &StoreError{Op: "settle_funding", Err: err}
	}

	if err := r.updateBalance(ctx, tx, pending.WalletID, newBalance); err != nil {
		return nil, &StoreError{Op: "settle_funding", Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, &StoreError{Op: "settle_funding", Err: err}
	}
	return settled, nil
}

// lockWallet takes the wallet row FOR UPDATE and returns its balance. This
// is the single mutual-exclusion point: everything after it happens under
// the per-wallet lock until commit.
func (r *LedgerPGRepository) lockWallet(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (decimal.Decimal, error) {
	if err := r.setLockTimeout(ctx, tx); err != nil {
		return decimal.Zero, &StoreError{Op: "lock_wallet", Err: err}
	}

	var balance decimal.Decimal
	err := tx.QueryRow(ctx, "SELECT balance FROM wallets WHERE user_id = $1 FOR UPDATE", userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrWalletNotFound
	}
	if err != nil {
		if mapped := mapPgError(err); mapped != err {
			return decimal.Zero, mapped
		}
		r.logger.Error("Failed to select wallet for update",
			slog.String("user_id", userID.String()),
			slog.Any("err", err),
		)
		return decimal.Zero, &StoreError{Op: "lock_wallet", Err: err}
	}
	return balance, nil
}

// setLockTimeout bounds the FOR UPDATE wait. SET LOCAL is scoped to the
// current transaction, so repeated calls within one tx are harmless.
func (r *LedgerPGRepository) setLockTimeout(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%d'", r.lockTimeout.Milliseconds()))
	return err
}

func (r *LedgerPGRepository) updateBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID, balance decimal.Decimal) error {
	_, err := tx.Exec(ctx,
		"UPDATE wallets SET balance = $1, updated_at = NOW() WHERE user_id = $2", balance, userID)
	if err != nil {
		r.logger.Error("Failed to update wallet balance",
			slog.String("user_id", userID.String()),
			slog.Any("err", err),
		)
	}
	return err
}

func (r *LedgerPGRepository) rollback(ctx context.Context, tx pgx.Tx, userID uuid.UUID) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		r.logger.Error("Failed to rollback transaction",
			slog.String("user_id", userID.String()),
			slog.Any("err", err),
		)
	}
}

type txnRow struct {
	walletID      uuid.UUID
	txType        models.TxType
	amount        decimal.Decimal
	balanceBefore decimal.Decimal
	balanceAfter  decimal.Decimal
	status        models.TxStatus
	source        models.TxSource
	reference     string
	description   string
	metadata      models.Metadata
}

func insertTransaction(ctx context.Context, tx pgx.Tx, row txnRow) (*models.Transaction, error) {
	if row.metadata == nil {
		row.metadata = models.Metadata{}
	}
	return scanTransaction(tx.QueryRow(ctx,
		`INSERT INTO wallet_transactions
		 (wallet_id, type, amount, balance_before, balance_after, status, source, reference, description, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+txnColumns,
		row.walletID, row.txType, row.amount, row.balanceBefore, row.balanceAfter,
		row.status, row.source, row.reference, row.description, row.metadata))
}

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(
		&t.ID, &t.WalletID, &t.Type, &t.Amount, &t.BalanceBefore, &t.BalanceAfter,
		&t.Status, &t.Source, &t.Reference, &t.Description, &t.Metadata,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// mapPgError translates the Postgres error codes the engine cares about into
// typed failures; anything else passes through unchanged.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation: only the reference index applies here
			return ErrDuplicateReference
		case "55P03": // lock_not_available: lock_timeout expired
			return ErrLockTimeout
		}
	}
	return err
}
