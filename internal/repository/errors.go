package repository

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be a positive decimal with at most 2 decimal places")
	ErrInvalidSource       = errors.New("unknown transaction source")
	ErrDuplicateReference  = errors.New("transaction reference already exists")
	ErrInvalidState        = errors.New("transaction status does not allow this operation")
	ErrLockTimeout         = errors.New("could not acquire wallet lock in time")
)

// InsufficientBalanceError reports how much was available versus required.
// errors.Is(err, ErrInsufficientBalance) matches it.
type InsufficientBalanceError struct {
	Available decimal.Decimal
	Required  decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, required %s",
		e.Available.StringFixed(2), e.Required.StringFixed(2))
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// StoreError wraps an unexpected persistence failure with the operation that
// hit it. The cause stays reachable via errors.As/Is.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("ledger store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
