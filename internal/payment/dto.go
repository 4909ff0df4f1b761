package payment

import (
	"time"

	"github.com/shopspring/decimal"

	errors "storefront-payments/internal"
	"storefront-payments/internal/core/common/validation"
	"storefront-payments/internal/core/datamodel/transaction"
)

// SubmitRequest is the inbound charge request from the API facade.
// ReferenceNumber is optional: a retry of an earlier indeterminate submit
// carries the original reference so the charge is never duplicated.
type SubmitRequest struct {
	UserID          int64           `json:"user_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Provider        string          `json:"provider"`
	Method          string          `json:"method"`
	Description     string          `json:"description"`
	ReferenceNumber string          `json:"reference_number,omitempty"`

	CardNumber      string `json:"card_number,omitempty"`
	CardExpiryMonth string `json:"card_expiry_month,omitempty"`
	CardExpiryYear  string `json:"card_expiry_year,omitempty"`
	CardCVV         string `json:"card_cvv,omitempty"`
	WalletID        string `json:"wallet_id,omitempty"`
	BankAccount     string `json:"bank_account,omitempty"`
	CryptoAddress   string `json:"crypto_address,omitempty"`

	CustomerEmail string `json:"customer_email,omitempty"`
}

func (r *SubmitRequest) Validate() error {
	v := validation.NewValidator()

	v.Field("user_id", r.UserID).Required()
	v.Field("amount", r.Amount).PositiveAmount()
	v.Field("currency", r.Currency).Required().Currency()
	v.Field("method", r.Method).Required().OneOf([]string{
		string(transaction.MethodCard),
		string(transaction.MethodBank),
		string(transaction.MethodWallet),
		string(transaction.MethodCrypto),
	}, errors.ErrCodeInvalidMethod)
	v.Field("description", r.Description).MaxLength(500)

	switch transaction.Method(r.Method) {
	case transaction.MethodCard:
		v.Field("card_number", r.CardNumber).Required().MinLength(12).MaxLength(19)
		v.Field("card_expiry_month", r.CardExpiryMonth).Required()
		v.Field("card_expiry_year", r.CardExpiryYear).Required()
		v.Field("card_cvv", r.CardCVV).Required().MinLength(3).MaxLength(4)
	case transaction.MethodWallet:
		v.Field("wallet_id", r.WalletID).Required()
	case transaction.MethodBank:
		v.Field("bank_account", r.BankAccount).Required()
	case transaction.MethodCrypto:
		v.Field("crypto_address", r.CryptoAddress).Required()
	}

	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// RefundRequest is the inbound refund request.
type RefundRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

func (r *RefundRequest) Validate() error {
	v := validation.NewValidator()

	v.Field("amount", r.Amount).PositiveAmount()
	v.Field("reason", r.Reason).MaxLength(500)

	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// TransactionView is the caller-facing projection of a transaction. Raw
// instrument data never appears here, only masked metadata.
type TransactionView struct {
	ReferenceNumber       string          `json:"reference_number"`
	ProviderTransactionID *string         `json:"provider_transaction_id,omitempty"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	RefundedAmount        decimal.Decimal `json:"refunded_amount"`
	DisputedAmount        decimal.Decimal `json:"disputed_amount"`
	Provider              string          `json:"provider"`
	Method                string          `json:"method"`
	Status                string          `json:"status"`
	FailureReason         *string         `json:"failure_reason,omitempty"`
	Description           string          `json:"description,omitempty"`
	MaskedNumber          *string         `json:"masked_number,omitempty"`
	CardBrand             *string         `json:"card_brand,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	ProcessedAt           *time.Time      `json:"processed_at,omitempty"`
	RefundedAt            *time.Time      `json:"refunded_at,omitempty"`
}

func ToView(t *transaction.Transaction) *TransactionView {
	return &TransactionView{
		ReferenceNumber:       t.ReferenceNumber,
		ProviderTransactionID: t.ProviderTransactionID,
		Amount:                t.Amount,
		Currency:              t.Currency,
		RefundedAmount:        t.RefundedAmount,
		DisputedAmount:        t.DisputedAmount,
		Provider:              t.Provider,
		Method:                string(t.Method),
		Status:                string(t.Status),
		FailureReason:         t.FailureReason,
		Description:           t.Description,
		MaskedNumber:          t.MaskedNumber,
		CardBrand:             t.CardBrand,
		CreatedAt:             t.CreatedAt,
		ProcessedAt:           t.ProcessedAt,
		RefundedAt:            t.RefundedAt,
	}
}
