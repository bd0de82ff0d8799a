package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TxType encodes the direction of a balance change. Amounts are always
// positive; direction lives here, never in the sign.
type TxType string

const (
	TxTypeCredit TxType = "CREDIT"
	TxTypeDebit  TxType = "DEBIT"
)

func (t TxType) Valid() bool {
	return t == TxTypeCredit || t == TxTypeDebit
}

// Opposite returns the type a reversal of this transaction must have.
func (t TxType) Opposite() TxType {
	if t == TxTypeCredit {
		return TxTypeDebit
	}
	return TxTypeCredit
}

type TxStatus string

const (
	TxStatusPending   TxStatus = "PENDING"
	TxStatusCompleted TxStatus = "COMPLETED"
	TxStatusFailed    TxStatus = "FAILED"
	TxStatusReversed  TxStatus = "REVERSED"
)

func (s TxStatus) Valid() bool {
	switch s {
	case TxStatusPending, TxStatusCompleted, TxStatusFailed, TxStatusReversed:
		return true
	}
	return false
}

// Terminal statuses accept no further transitions.
func (s TxStatus) Terminal() bool {
	return s == TxStatusFailed || s == TxStatusReversed
}

// CanTransitionTo enforces the status machine:
// PENDING -> COMPLETED | FAILED, COMPLETED -> REVERSED.
func (s TxStatus) CanTransitionTo(next TxStatus) bool {
	switch s {
	case TxStatusPending:
		return next == TxStatusCompleted || next == TxStatusFailed
	case TxStatusCompleted:
		return next == TxStatusReversed
	}
	return false
}

type TxSource string

const (
	SourceFunding         TxSource = "FUNDING"
	SourceOrderPayment    TxSource = "ORDER_PAYMENT"
	SourceRefund          TxSource = "REFUND"
	SourceReversal        TxSource = "REVERSAL"
	SourceAdminAdjustment TxSource = "ADMIN_ADJUSTMENT"
)

func (s TxSource) Valid() bool {
	switch s {
	case SourceFunding, SourceOrderPayment, SourceRefund, SourceReversal, SourceAdminAdjustment:
		return true
	}
	return false
}

// Metadata is an opaque key/value bag stored as JSONB alongside a
// transaction (gateway references, order ids, reversal context).
type Metadata map[string]any

// Metadata keys written by the engine itself.
const (
	MetaOriginalReference = "original_reference"
	MetaReversalReason    = "reversal_reason"
	MetaPaymentMethod     = "payment_method"
)

type Wallet struct {
	UserID    uuid.UUID       `db:"user_id" json:"userId"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}

// Transaction is immutable once COMPLETED; only Status (and UpdatedAt) may
// change afterwards, and only to REVERSED.
type Transaction struct {
	ID            int64           `db:"id" json:"id"`
	WalletID      uuid.UUID       `db:"wallet_id" json:"walletId"`
	Type          TxType          `db:"type" json:"type"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	BalanceBefore decimal.Decimal `db:"balance_before" json:"balanceBefore"`
	BalanceAfter  decimal.Decimal `db:"balance_after" json:"balanceAfter"`
	Status        TxStatus        `db:"status" json:"status"`
	Source        TxSource        `db:"source" json:"source"`
	Reference     string          `db:"reference" json:"reference"`
	Description   string          `db:"description" json:"description"`
	Metadata      Metadata        `db:"metadata" json:"metadata"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updatedAt"`
}

// TxParams carries the caller-supplied part of a credit or debit. Reference
// and Description are filled in by the service when left empty.
type TxParams struct {
	Amount      decimal.Decimal
	Source      TxSource
	Description string
	Reference   string
	Metadata    Metadata
}
