// Package provider defines the capability contract every payment provider
// adapter implements, plus the registry that binds provider names to
// credentials and adapters.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"storefront-payments/internal/core/datamodel/transaction"
)

// ChargeRequest is a synchronous authorization attempt. ReferenceNumber
// doubles as the idempotency token: submitting the same token twice must
// never produce two distinct charges.
type ChargeRequest struct {
	ReferenceNumber string
	Amount          decimal.Decimal
	Currency        string
	Method          transaction.Method

	// Instrument data; which fields are set depends on Method.
	CardNumber      string
	CardExpiryMonth string
	CardExpiryYear  string
	CardCVV         string
	WalletID        string
	BankAccount     string
	CryptoAddress   string

	CustomerEmail string
	Description   string
}

// ChargeResult is the provider's synchronous answer to a charge. Status is
// already normalized: COMPLETED for a settled charge, PROCESSING when the
// provider models an intermediate pending state resolved later by webhook.
type ChargeResult struct {
	ProviderTransactionID string
	Status                transaction.Status
	MaskedNumber          string
	CardBrand             string
}

// RefundRequest targets a previously accepted charge.
type RefundRequest struct {
	ProviderTransactionID string
	ReferenceNumber       string
	Amount                decimal.Decimal
	Currency              string
	Reason                string
}

type RefundResult struct {
	ProviderRefundID string
	Status           transaction.Status
}

// WebhookEvent is the canonical form every provider webhook payload is
// normalized into, regardless of how the provider nests its fields.
type WebhookEvent struct {
	ProviderTransactionID string
	ReferenceNumber       string
	Status                transaction.Status
	Amount                decimal.Decimal
	Currency              string
	EventAt               time.Time
}

// PaymentProvider is the uniform contract for one external payment provider.
// Implementations own their wire format entirely; nothing provider-specific
// leaks past this interface.
type PaymentProvider interface {
	Name() string
	Supports(method transaction.Method) bool

	// Charge must be safe to retry with the same ReferenceNumber without
	// double-charging. Adapters for providers without native idempotency
	// support dedupe on the token themselves.
	Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error)

	// Refund submits a refund against an accepted charge. The orchestrator
	// validates the refundable balance first; providers should re-validate.
	Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error)

	// VerifySignature checks the provider's webhook signature scheme over the
	// raw, unparsed body. Must use a constant-time comparison.
	VerifySignature(rawBody []byte, signatureHeader string) bool

	// ParseWebhook normalizes a raw payload into a WebhookEvent. Callers must
	// verify the signature first; parsing never touches storage.
	ParseWebhook(rawBody []byte) (*WebhookEvent, error)
}

// ErrorKind distinguishes the two classes of provider call failure.
type ErrorKind int

const (
	// KindRejected: the provider explicitly declined. Terminal.
	KindRejected ErrorKind = iota
	// KindIndeterminate: timeout, connection failure, or 5xx. The charge may
	// or may not have gone through; the caller must not assume failure.
	KindIndeterminate
)

// Error is a classified provider call failure.
type Error struct {
	Kind     ErrorKind
	Provider string
	Code     string
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewRejected builds a terminal-decline error.
func NewRejected(providerName, code, message string) *Error {
	return &Error{Kind: KindRejected, Provider: providerName, Code: code, Message: message}
}

// NewIndeterminate builds an unknown-outcome error.
func NewIndeterminate(providerName, message string, cause error) *Error {
	return &Error{Kind: KindIndeterminate, Provider: providerName, Message: message, Cause: cause}
}

// IsRejected reports whether err is a terminal provider decline.
func IsRejected(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindRejected
}

// IsIndeterminate reports whether the outcome of the provider call is unknown.
func IsIndeterminate(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindIndeterminate
}
