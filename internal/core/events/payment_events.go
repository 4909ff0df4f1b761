package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventTypePaymentCompleted = "payment.completed"
	EventTypePaymentFailed    = "payment.failed"
	EventTypePaymentRefunded  = "payment.refunded"
	EventTypePaymentDisputed  = "payment.disputed"
)

type PaymentCompletedEvent struct {
	BaseEvent
	ReferenceNumber       string          `json:"reference_number"`
	ProviderTransactionID string          `json:"provider_transaction_id"`
	Provider              string          `json:"provider"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	UserID                int64           `json:"user_id"`
}

func NewPaymentCompletedEvent(reference, providerTxnID, providerName string, amount decimal.Decimal, currency string, userID int64) *PaymentCompletedEvent {
	return &PaymentCompletedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.NewString(),
			Type:      EventTypePaymentCompleted,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"reference_number":        reference,
				"provider_transaction_id": providerTxnID,
				"provider":                providerName,
				"amount":                  amount.String(),
				"currency":                currency,
				"user_id":                 userID,
			},
		},
		ReferenceNumber:       reference,
		ProviderTransactionID: providerTxnID,
		Provider:              providerName,
		Amount:                amount,
		Currency:              currency,
		UserID:                userID,
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	ReferenceNumber string          `json:"reference_number"`
	Provider        string          `json:"provider"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	FailureReason   string          `json:"failure_reason"`
}

func NewPaymentFailedEvent(reference, providerName string, amount decimal.Decimal, currency, failureReason string) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.NewString(),
			Type:      EventTypePaymentFailed,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"reference_number": reference,
				"provider":         providerName,
				"amount":           amount.String(),
				"currency":         currency,
				"failure_reason":   failureReason,
			},
		},
		ReferenceNumber: reference,
		Provider:        providerName,
		Amount:          amount,
		Currency:        currency,
		FailureReason:   failureReason,
	}
}

type PaymentRefundedEvent struct {
	BaseEvent
	ReferenceNumber string          `json:"reference_number"`
	RefundAmount    decimal.Decimal `json:"refund_amount"`
	RefundedTotal   decimal.Decimal `json:"refunded_total"`
	Currency        string          `json:"currency"`
	FullyRefunded   bool            `json:"fully_refunded"`
}

func NewPaymentRefundedEvent(reference string, refundAmount, refundedTotal decimal.Decimal, currency string, fullyRefunded bool) *PaymentRefundedEvent {
	return &PaymentRefundedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.NewString(),
			Type:      EventTypePaymentRefunded,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"reference_number": reference,
				"refund_amount":    refundAmount.String(),
				"refunded_total":   refundedTotal.String(),
				"currency":         currency,
				"fully_refunded":   fullyRefunded,
			},
		},
		ReferenceNumber: reference,
		RefundAmount:    refundAmount,
		RefundedTotal:   refundedTotal,
		Currency:        currency,
		FullyRefunded:   fullyRefunded,
	}
}

type PaymentDisputedEvent struct {
	BaseEvent
	ReferenceNumber string          `json:"reference_number"`
	DisputedAmount  decimal.Decimal `json:"disputed_amount"`
	Currency        string          `json:"currency"`
}

func NewPaymentDisputedEvent(reference string, disputedAmount decimal.Decimal, currency string) *PaymentDisputedEvent {
	return &PaymentDisputedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.NewString(),
			Type:      EventTypePaymentDisputed,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"reference_number": reference,
				"disputed_amount":  disputedAmount.String(),
				"currency":         currency,
			},
		},
		ReferenceNumber: reference,
		DisputedAmount:  disputedAmount,
		Currency:        currency,
	}
}
