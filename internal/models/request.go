package models

// Amounts cross the HTTP boundary as decimal strings, never floats.

type CreditRequest struct {
	Amount      string   `json:"amount" binding:"required"`
	Source      string   `json:"source" binding:"omitempty,oneof=FUNDING ORDER_PAYMENT REFUND REVERSAL ADMIN_ADJUSTMENT"`
	Description string   `json:"description"`
	Reference   string   `json:"reference"`
	Metadata    Metadata `json:"metadata"`
}

type DebitRequest struct {
	Amount      string   `json:"amount" binding:"required"`
	Source      string   `json:"source" binding:"omitempty,oneof=FUNDING ORDER_PAYMENT REFUND REVERSAL ADMIN_ADJUSTMENT"`
	Description string   `json:"description"`
	Reference   string   `json:"reference"`
	Metadata    Metadata `json:"metadata"`
}

type FundingRequest struct {
	Amount        string `json:"amount" binding:"required"`
	PaymentMethod string `json:"paymentMethod" binding:"omitempty,oneof=paystack flutterwave"`
}

type ReverseRequest struct {
	Reason string `json:"reason"`
}

type SettleFundingRequest struct {
	Success *bool `json:"success" binding:"required"`
}
