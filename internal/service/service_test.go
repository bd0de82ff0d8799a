package service_test

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"walletledger/internal/models"
	"walletledger/internal/repository"
	"walletledger/internal/service"
	"walletledger/internal/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func setupService(t *testing.T) (*service.LedgerService, func()) {
	pool, teardown := testutil.SetupTestDB(t)
	repo := repository.NewLedgerPGRepository(pool, testLogger, 3*time.Second)
	return service.NewLedgerService(repo, testLogger), teardown
}

func TestService_Credit_FillsDefaults(t *testing.T) {
	svc, teardown := setupService(t)
	defer teardown()
	ctx := context.Background()
	userID := uuid.New()

	_, _, err := svc.OnUserCreated(ctx, userID)
	require.NoError(t, err)

	txn, err := svc.Credit(ctx, userID, models.TxParams{Amount: decimal.RequireFromString("500.00")})
	assert.NoError(t, err)
	assert.Equal(t, models.SourceFunding, txn.Source)
	assert.Equal(t, "Wallet credited with 500.00", txn.Description)
	assert.Regexp(t, regexp.MustCompile(`^CREDIT-[0-9A-F]{12}$`), txn.Reference)

	txn, err = svc.Debit(ctx, userID, models.TxParams{Amount: decimal.RequireFromString("120.00")})
	assert.NoError(t, err)
	assert.Equal(t, models.SourceOrderPayment, txn.Source)
	assert.Equal(t, "Wallet debited with 120.00", txn.Description)
	assert.Regexp(t, regexp.MustCompile(`^DEBIT-[0-9A-F]{12}$`), txn.Reference)
}

func TestService_InvalidAmounts(t *testing.T) {
	svc, teardown := setupService(t)
	defer teardown()
	ctx := context.Background()
	userID := uuid.New()
	_, _, err := svc.OnUserCreated(ctx, userID)
	require.NoError(t, err)

	for _, raw := range []string{"0", "-10.00", "0.001"} {
		_, err := svc.Credit(ctx, userID, models.TxParams{Amount: decimal.RequireFromString(raw)})
		assert.ErrorIs(t, err, repository.ErrInvalidAmount, "amount %s", raw)

		_, err = svc.Debit(ctx, userID, models.TxParams{Amount: decimal.RequireFromString(raw)})
		assert.ErrorIs(t, err, repository.ErrInvalidAmount, "amount %s", raw)
	}

	// Nothing was written.
	txns, err := svc.ListTransactions(ctx, userID, 0)
	assert.NoError(t, err)
	assert.Empty(t, txns)
}

func TestService_InvalidSource(t *testing.T) {
	svc, teardown := setupService(t)
	defer teardown()
	ctx := context.Background()
	userID := uuid.New()
	_, _, err := svc.OnUserCreated(ctx, userID)
	require.NoError(t, err)

	_, err = svc.Credit(ctx, userID, models.TxParams{
		Amount: decimal.RequireFromString("10.00"),
		Source: models.TxSource("GIFT"),
	})
	assert.ErrorIs(t, err, repository.ErrInvalidSource)
}

func TestService_ReverseTransaction(t *testing.T) {
	svc, teardown := setupService(t)
	defer teardown()
	ctx := context.Background()
	userID := uuid.New()
	_, _, err := svc.OnUserCreated(ctx, userID)
	require.NoError(t, err)

	credit, err := svc.Credit(ctx, userID, models.TxParams{Amount: decimal.RequireFromString("300.00")})
	require.NoError(t, err)

	reversal, err := svc.ReverseTransaction(ctx, credit.Reference, "operator error")
	assert.NoError(t, err)
	assert.Equal(t, models.TxTypeDebit, reversal.Type)
	assert.Regexp(t, regexp.MustCompile(`^REV-[0-9A-F]{12}$`), reversal.Reference)

	balance, err := svc.GetBalance(ctx, userID)
	assert.NoError(t, err)
	assert.True(t, balance.Equal(decimal.Zero))

	// Reversing an already-REVERSED transaction is rejected.
	_, err = svc.ReverseTransaction(ctx, credit.Reference, "again")
	assert.ErrorIs(t, err, repository.ErrInvalidState)
}

func TestService_OnUserCreated_Idempotent(t *testing.T) {
	svc, teardown := setupService(t)
	defer teardown()
	ctx := context.Background()
	userID := uuid.New()

	wallet, created, err := svc.OnUserCreated(ctx, userID)
	assert.NoError(t, err)
	assert.True(t, created)
	assert.True(t, wallet.Balance.Equal(decimal.Zero))

	_, created, err = svc.OnUserCreated(ctx, userID)
	assert.NoError(t, err)
	assert.False(t, created)
}

func TestService_GetBalance_AbsentWalletIsZero(t *testing.T) {
	svc, teardown := setupService(t)
	defer teardown()

	balance, err := svc.GetBalance(context.Background(), uuid.New())
	assert.NoError(t, err)
	assert.True(t, balance.Equal(decimal.Zero))
}

func TestService_ExplicitReference_Idempotency(t *testing.T) {
	svc, teardown := setupService(t)
	defer teardown()
	ctx := context.Background()
	userID := uuid.New()
	_, _, err := svc.OnUserCreated(ctx, userID)
	require.NoError(t, err)

	p := models.TxParams{Amount: decimal.RequireFromString("100.00"), Reference: "R1"}
	_, err = svc.Credit(ctx, userID, p)
	require.NoError(t, err)

	// A retry with the same reference reports already-applied.
	_, err = svc.Credit(ctx, userID, p)
	assert.ErrorIs(t, err, repository.ErrDuplicateReference)

	balance, err := svc.GetBalance(ctx, userID)
	assert.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("100.00")))
}

func TestService_FundingFlow(t *testing.T) {
	svc, teardown := setupService(t)
	defer teardown()
	ctx := context.Background()
	userID := uuid.New()

	// InitiateFunding creates the wallet on demand.
	pending, err := svc.InitiateFunding(ctx, userID, decimal.RequireFromString("1000.00"), "paystack")
	assert.NoError(t, err)
	assert.Equal(t, models.TxStatusPending, pending.Status)
	assert.Regexp(t, regexp.MustCompile(`^FUND-[0-9A-F]{12}$`), pending.Reference)
	assert.Equal(t, "paystack", pending.Metadata[models.MetaPaymentMethod])
	assert.Equal(t, "Wallet funding of 1000.00", pending.Description)

	settled, err := svc.SettleFunding(ctx, pending.Reference, true)
	assert.NoError(t, err)
	assert.Equal(t, models.TxStatusCompleted, settled.Status)

	balance, err := svc.GetBalance(ctx, userID)
	assert.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("1000.00")))
}
