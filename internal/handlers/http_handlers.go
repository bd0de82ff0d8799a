package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"walletledger/internal/models"
	"walletledger/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=http_handlers.go -destination=../../test/mock_ledger_service.go -package=test LedgerService

// Funding requests below this are rejected at the boundary.
var minFundingAmount = decimal.NewFromInt(100)

type LedgerService interface {
	Credit(ctx context.Context, userID uuid.UUID, p models.TxParams) (*models.Transaction, error)
	Debit(ctx context.Context, userID uuid.UUID, p models.TxParams) (*models.Transaction, error)
	ReverseTransaction(ctx context.Context, origRef, reason string) (*models.Transaction, error)
	OnUserCreated(ctx context.Context, userID uuid.UUID) (*models.Wallet, bool, error)
	GetOrCreateWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.Transaction, error)
	GetTransactionByReference(ctx context.Context, ref string) (*models.Transaction, error)
	InitiateFunding(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, paymentMethod string) (*models.Transaction, error)
	SettleFunding(ctx context.Context, ref string, success bool) (*models.Transaction, error)
}

// WalletHTTPHandler exposes the ledger engine to external callers. It does
// no authentication; the caller identity arrives as the user_id path
// segment, and ownership of a looked-up transaction is the only check made
// here.
type WalletHTTPHandler struct {
	service  LedgerService
	currency string
}

func NewWalletHTTPHandler(service LedgerService, currency string) *WalletHTTPHandler {
	return &WalletHTTPHandler{service: service, currency: currency}
}

func (h *WalletHTTPHandler) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/api/v1")
	{
		wallets := v1.Group("/wallets/:user_id")
		{
			wallets.POST("", h.HandleUserCreated)
			wallets.GET("", h.HandleGetWallet)
			wallets.GET("/balance", h.HandleGetBalance)
			wallets.GET("/transactions", h.HandleListTransactions)
			wallets.GET("/transactions/:reference", h.HandleGetTransaction)
			wallets.POST("/credit", h.HandleCredit)
			wallets.POST("/debit", h.HandleDebit)
			wallets.POST("/fund", h.HandleInitiateFunding)
		}
		v1.POST("/transactions/:reference/reverse", h.HandleReverse)
		v1.POST("/transactions/:reference/settle", h.HandleSettleFunding)
	}
}

// HandleUserCreated is the HTTP form of the user-lifecycle hook; the user
// service calls it once after committing a new user. Safe to retry.
func (h *WalletHTTPHandler) HandleUserCreated(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	wallet, created, err := h.service.OnUserCreated(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, wallet)
}

func (h *WalletHTTPHandler) HandleGetWallet(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	wallet, err := h.service.GetOrCreateWallet(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}

func (h *WalletHTTPHandler) HandleGetBalance(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	balance, err := h.service.GetBalance(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"balance":  balance.StringFixed(2),
		"currency": h.currency,
	})
}

func (h *WalletHTTPHandler) HandleListTransactions(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit parameter"})
			return
		}
		limit = parsed
	}
	txns, err := h.service.ListTransactions(c.Request.Context(), userID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":        len(txns),
		"transactions": txns,
	})
}

func (h *WalletHTTPHandler) HandleGetTransaction(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	txn, err := h.service.GetTransactionByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}
	if txn.WalletID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "you don't have permission to view this transaction"})
		return
	}
	c.JSON(http.StatusOK, txn)
}

func (h *WalletHTTPHandler) HandleCredit(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	var req models.CreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": repository.ErrInvalidAmount.Error()})
		return
	}

	txn, err := h.service.Credit(c.Request.Context(), userID, models.TxParams{
		Amount:      amount,
		Source:      models.TxSource(req.Source),
		Description: req.Description,
		Reference:   req.Reference,
		Metadata:    req.Metadata,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":     "Wallet credited successfully",
		"transaction": txn,
	})
}

func (h *WalletHTTPHandler) HandleDebit(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	var req models.DebitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": repository.ErrInvalidAmount.Error()})
		return
	}

	txn, err := h.service.Debit(c.Request.Context(), userID, models.TxParams{
		Amount:      amount,
		Source:      models.TxSource(req.Source),
		Description: req.Description,
		Reference:   req.Reference,
		Metadata:    req.Metadata,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":     "Wallet debited successfully",
		"transaction": txn,
	})
}

func (h *WalletHTTPHandler) HandleInitiateFunding(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	var req models.FundingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": repository.ErrInvalidAmount.Error()})
		return
	}
	if amount.LessThan(minFundingAmount) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "minimum funding amount is " + minFundingAmount.StringFixed(2)})
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = "paystack"
	}

	txn, err := h.service.InitiateFunding(c.Request.Context(), userID, amount, req.PaymentMethod)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":               "Funding initiated successfully",
		"transaction_reference": txn.Reference,
		"amount":                txn.Amount.StringFixed(2),
		"payment_method":        req.PaymentMethod,
		"status":                txn.Status,
	})
}

func (h *WalletHTTPHandler) HandleReverse(c *gin.Context) {
	var req models.ReverseRequest
	// Reason is optional; an empty body is fine.
	_ = c.ShouldBindJSON(&req)

	txn, err := h.service.ReverseTransaction(c.Request.Context(), c.Param("reference"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":     "Transaction reversed successfully",
		"transaction": txn,
	})
}

func (h *WalletHTTPHandler) HandleSettleFunding(c *gin.Context) {
	var req models.SettleFundingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	txn, err := h.service.SettleFunding(c.Request.Context(), c.Param("reference"), *req.Success)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":     "Funding settled",
		"transaction": txn,
	})
}

func (h *WalletHTTPHandler) userID(c *gin.Context) (uuid.UUID, bool) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return uuid.Nil, false
	}
	return userID, true
}

// respondError maps engine failures onto HTTP statuses: validation problems
// are 400, missing rows 404, state conflicts 409, lock timeouts and store
// failures 503 (retryable with the same reference).
func respondError(c *gin.Context, err error) {
	var insufficient *repository.InsufficientBalanceError
	if errors.As(err, &insufficient) {
		c.JSON(http.StatusConflict, gin.H{
			"error":     insufficient.Error(),
			"available": insufficient.Available.StringFixed(2),
			"required":  insufficient.Required.StringFixed(2),
		})
		return
	}

	status := http.StatusServiceUnavailable
	switch {
	case errors.Is(err, repository.ErrInvalidAmount), errors.Is(err, repository.ErrInvalidSource):
		status = http.StatusBadRequest
	case errors.Is(err, repository.ErrWalletNotFound), errors.Is(err, repository.ErrTransactionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrInsufficientBalance),
		errors.Is(err, repository.ErrDuplicateReference),
		errors.Is(err, repository.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, repository.ErrLockTimeout):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
