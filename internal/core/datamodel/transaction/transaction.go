package transaction

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a transaction. Provider-native status
// strings never reach this type; adapters normalize at their boundary.
type Status string

const (
	StatusPending           Status = "pending"
	StatusProcessing        Status = "processing"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
	StatusCancelled         Status = "cancelled"
	StatusPartiallyRefunded Status = "partially_refunded"
	StatusRefunded          Status = "refunded"
	StatusDisputed          Status = "disputed"
)

// transitions holds the only legal status edges. No code path may move a
// transaction between states that are not connected here.
var transitions = map[Status][]Status{
	StatusPending:           {StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled},
	StatusProcessing:        {StatusCompleted, StatusFailed},
	StatusCompleted:         {StatusPartiallyRefunded, StatusRefunded, StatusDisputed},
	StatusPartiallyRefunded: {StatusRefunded, StatusDisputed},
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible from s.
// DISPUTED is treated as terminal here; administrative dispute resolution
// happens outside this service.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed,
		StatusCancelled, StatusPartiallyRefunded, StatusRefunded, StatusDisputed:
		return true
	}
	return false
}

// Method is the payment instrument class.
type Method string

const (
	MethodCard   Method = "card"
	MethodBank   Method = "bank"
	MethodWallet Method = "wallet"
	MethodCrypto Method = "crypto"
)

func (m Method) IsValid() bool {
	switch m {
	case MethodCard, MethodBank, MethodWallet, MethodCrypto:
		return true
	}
	return false
}

// Transaction is the record of one payment attempt and its lifecycle.
// Rows are never deleted; refunds and disputes accumulate on the same row.
type Transaction struct {
	ID                    int64           `json:"id" gorm:"primaryKey"`
	ReferenceNumber       string          `json:"reference_number" gorm:"column:reference_number;not null;uniqueIndex"`
	ProviderTransactionID *string         `json:"provider_transaction_id,omitempty" gorm:"column:provider_transaction_id;uniqueIndex"`
	Amount                decimal.Decimal `json:"amount" gorm:"column:amount;type:numeric(20,4);not null"`
	Currency              string          `json:"currency" gorm:"column:currency;type:char(3);not null"`
	RefundedAmount        decimal.Decimal `json:"refunded_amount" gorm:"column:refunded_amount;type:numeric(20,4);not null;default:0"`
	DisputedAmount        decimal.Decimal `json:"disputed_amount" gorm:"column:disputed_amount;type:numeric(20,4);not null;default:0"`
	Provider              string          `json:"provider" gorm:"column:provider;not null"`
	Method                Method          `json:"method" gorm:"column:method;not null"`
	Status                Status          `json:"status" gorm:"column:status;default:pending"`
	FailureReason         *string         `json:"failure_reason,omitempty" gorm:"column:failure_reason"`
	UserID                int64           `json:"user_id" gorm:"column:user_id;not null"`
	Description           string          `json:"description" gorm:"column:description"`
	MaskedNumber          *string         `json:"masked_number,omitempty" gorm:"column:masked_number"`
	CardBrand             *string         `json:"card_brand,omitempty" gorm:"column:card_brand"`
	CreatedAt             time.Time       `json:"created_at" gorm:"column:created_at"`
	UpdatedAt             time.Time       `json:"updated_at" gorm:"column:updated_at"`
	ProcessedAt           *time.Time      `json:"processed_at,omitempty" gorm:"column:processed_at"`
	FailedAt              *time.Time      `json:"failed_at,omitempty" gorm:"column:failed_at"`
	WebhookReceivedAt     *time.Time      `json:"webhook_received_at,omitempty" gorm:"column:webhook_received_at"`
	RefundedAt            *time.Time      `json:"refunded_at,omitempty" gorm:"column:refunded_at"`
	DisputedAt            *time.Time      `json:"disputed_at,omitempty" gorm:"column:disputed_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// RefundableBalance is the amount still available for refund. Disputes are
// tracked independently and do not reduce this balance.
func (t *Transaction) RefundableBalance() decimal.Decimal {
	return t.Amount.Sub(t.RefundedAmount)
}

// IsRefundable reports whether a refund may be initiated at all.
func (t *Transaction) IsRefundable() bool {
	return t.Status == StatusCompleted || t.Status == StatusPartiallyRefunded
}
