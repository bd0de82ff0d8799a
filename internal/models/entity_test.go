package models_test

import (
	"testing"

	"walletledger/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestTxStatus_Transitions(t *testing.T) {
	cases := []struct {
		from, to models.TxStatus
		allowed  bool
	}{
		{models.TxStatusPending, models.TxStatusCompleted, true},
		{models.TxStatusPending, models.TxStatusFailed, true},
		{models.TxStatusPending, models.TxStatusReversed, false},
		{models.TxStatusCompleted, models.TxStatusReversed, true},
		{models.TxStatusCompleted, models.TxStatusFailed, false},
		{models.TxStatusCompleted, models.TxStatusPending, false},
		{models.TxStatusFailed, models.TxStatusCompleted, false},
		{models.TxStatusReversed, models.TxStatusCompleted, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}

	assert.True(t, models.TxStatusFailed.Terminal())
	assert.True(t, models.TxStatusReversed.Terminal())
	assert.False(t, models.TxStatusPending.Terminal())
	assert.False(t, models.TxStatusCompleted.Terminal())
}

func TestTxType_Opposite(t *testing.T) {
	assert.Equal(t, models.TxTypeDebit, models.TxTypeCredit.Opposite())
	assert.Equal(t, models.TxTypeCredit, models.TxTypeDebit.Opposite())
}

func TestEnums_Valid(t *testing.T) {
	assert.True(t, models.SourceAdminAdjustment.Valid())
	assert.False(t, models.TxSource("GIFT").Valid())
	assert.True(t, models.TxTypeCredit.Valid())
	assert.False(t, models.TxType("TRANSFER").Valid())
	assert.False(t, models.TxStatus("ARCHIVED").Valid())
}
