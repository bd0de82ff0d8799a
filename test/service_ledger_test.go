package test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"walletledger/internal/models"
	"walletledger/internal/repository"
	"walletledger/internal/service"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestCredit_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRepo := NewMockLedgerRepository(ctrl)
	svc := service.NewLedgerService(mockRepo, testLogger)
	userID := uuid.New()
	amount := decimal.RequireFromString("100.99")

	want := &models.Transaction{
		WalletID:     userID,
		Type:         models.TxTypeCredit,
		Amount:       amount,
		Status:       models.TxStatusCompleted,
		Source:       models.SourceFunding,
		BalanceAfter: amount,
	}
	mockRepo.EXPECT().
		Credit(gomock.Any(), userID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, p models.TxParams) (*models.Transaction, error) {
			assert.True(t, p.Amount.Equal(amount))
			assert.Equal(t, models.SourceFunding, p.Source)
			assert.True(t, strings.HasPrefix(p.Reference, "CREDIT-"))
			assert.Equal(t, "Wallet credited with 100.99", p.Description)
			return want, nil
		})

	txn, err := svc.Credit(context.Background(), userID, models.TxParams{Amount: amount})
	assert.NoError(t, err)
	assert.Equal(t, want, txn)
}

func TestCredit_InvalidAmount_NoStoreCall(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRepo := NewMockLedgerRepository(ctrl)
	svc := service.NewLedgerService(mockRepo, testLogger)
	userID := uuid.New()

	_, err := svc.Credit(context.Background(), userID, models.TxParams{Amount: decimal.Zero})
	assert.ErrorIs(t, err, repository.ErrInvalidAmount)

	_, err = svc.Credit(context.Background(), userID, models.TxParams{Amount: decimal.RequireFromString("-5")})
	assert.ErrorIs(t, err, repository.ErrInvalidAmount)

	// Sub-cent precision is rejected.
	_, err = svc.Credit(context.Background(), userID, models.TxParams{Amount: decimal.RequireFromString("1.005")})
	assert.ErrorIs(t, err, repository.ErrInvalidAmount)
}

func TestDebit_InsufficientBalance(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRepo := NewMockLedgerRepository(ctrl)
	svc := service.NewLedgerService(mockRepo, testLogger)
	userID := uuid.New()

	mockRepo.EXPECT().
		Debit(gomock.Any(), userID, gomock.Any()).
		Return(nil, &repository.InsufficientBalanceError{
			Available: decimal.RequireFromString("30.00"),
			Required:  decimal.RequireFromString("100.00"),
		})

	_, err := svc.Debit(context.Background(), userID, models.TxParams{Amount: decimal.RequireFromString("100.00")})
	assert.ErrorIs(t, err, repository.ErrInsufficientBalance)

	var insufficient *repository.InsufficientBalanceError
	assert.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Available.Equal(decimal.RequireFromString("30.00")))
}

func TestCredit_RetriesSerializationFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRepo := NewMockLedgerRepository(ctrl)
	svc := service.NewLedgerService(mockRepo, testLogger)
	userID := uuid.New()
	amount := decimal.RequireFromString("10.00")
	want := &models.Transaction{Type: models.TxTypeCredit, Amount: amount}

	gomock.InOrder(
		mockRepo.EXPECT().
			Credit(gomock.Any(), userID, gomock.Any()).
			Return(nil, &pgconn.PgError{Code: "40001"}),
		mockRepo.EXPECT().
			Credit(gomock.Any(), userID, gomock.Any()).
			Return(want, nil),
	)

	txn, err := svc.Credit(context.Background(), userID, models.TxParams{Amount: amount})
	assert.NoError(t, err)
	assert.Equal(t, want, txn)
}

func TestCredit_DuplicateReference_NoRetry(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRepo := NewMockLedgerRepository(ctrl)
	svc := service.NewLedgerService(mockRepo, testLogger)
	userID := uuid.New()

	mockRepo.EXPECT().
		Credit(gomock.Any(), userID, gomock.Any()).
		Return(nil, repository.ErrDuplicateReference)

	_, err := svc.Credit(context.Background(), userID, models.TxParams{
		Amount:    decimal.RequireFromString("10.00"),
		Reference: "R1",
	})
	assert.ErrorIs(t, err, repository.ErrDuplicateReference)
}

func TestReverseTransaction_GeneratesReversalReference(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRepo := NewMockLedgerRepository(ctrl)
	svc := service.NewLedgerService(mockRepo, testLogger)

	want := &models.Transaction{Type: models.TxTypeCredit, Source: models.SourceReversal}
	mockRepo.EXPECT().
		Reverse(gomock.Any(), "DEBIT-ABCDEF000001", gomock.Any(), "order cancelled").
		DoAndReturn(func(_ context.Context, _, reversalRef, _ string) (*models.Transaction, error) {
			assert.True(t, strings.HasPrefix(reversalRef, "REV-"))
			return want, nil
		})

	txn, err := svc.ReverseTransaction(context.Background(), "DEBIT-ABCDEF000001", "order cancelled")
	assert.NoError(t, err)
	assert.Equal(t, want, txn)
}

func TestGetBalance_AbsentWalletIsZero(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRepo := NewMockLedgerRepository(ctrl)
	svc := service.NewLedgerService(mockRepo, testLogger)
	userID := uuid.New()

	mockRepo.EXPECT().
		GetBalance(gomock.Any(), userID).
		Return(decimal.Zero, repository.ErrWalletNotFound)

	balance, err := svc.GetBalance(context.Background(), userID)
	assert.NoError(t, err)
	assert.True(t, balance.Equal(decimal.Zero))
}

func TestOnUserCreated_PropagatesCreated(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRepo := NewMockLedgerRepository(ctrl)
	svc := service.NewLedgerService(mockRepo, testLogger)
	userID := uuid.New()
	wallet := &models.Wallet{UserID: userID, Balance: decimal.Zero}

	mockRepo.EXPECT().
		GetOrCreateWallet(gomock.Any(), userID).
		Return(wallet, true, nil)

	got, created, err := svc.OnUserCreated(context.Background(), userID)
	assert.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, wallet, got)
}

func TestInitiateFunding_BuildsPendingCredit(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRepo := NewMockLedgerRepository(ctrl)
	svc := service.NewLedgerService(mockRepo, testLogger)
	userID := uuid.New()
	amount := decimal.RequireFromString("1000.00")

	mockRepo.EXPECT().
		GetOrCreateWallet(gomock.Any(), userID).
		Return(&models.Wallet{UserID: userID}, false, nil)
	mockRepo.EXPECT().
		CreatePendingFunding(gomock.Any(), userID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, p models.TxParams) (*models.Transaction, error) {
			assert.True(t, strings.HasPrefix(p.Reference, "FUND-"))
			assert.Equal(t, models.SourceFunding, p.Source)
			assert.Equal(t, "flutterwave", p.Metadata[models.MetaPaymentMethod])
			return &models.Transaction{Status: models.TxStatusPending, Reference: p.Reference}, nil
		})

	txn, err := svc.InitiateFunding(context.Background(), userID, amount, "flutterwave")
	assert.NoError(t, err)
	assert.Equal(t, models.TxStatusPending, txn.Status)
}
