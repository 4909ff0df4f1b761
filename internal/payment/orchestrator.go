package payment

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	errors "storefront-payments/internal"
	"storefront-payments/internal/core/datamodel/transaction"
	"storefront-payments/internal/core/events"
	"storefront-payments/internal/provider"
	"storefront-payments/internal/webhook"
)

// StoreAPI is the persistence contract for transactions. Implementations
// return errors.ErrTransactionNotFound for missing rows and
// errors.ErrStaleTransition when a compare-and-transition loses a race.
type StoreAPI interface {
	Create(tx *transaction.Transaction) error
	GetByReference(reference string) (*transaction.Transaction, error)
	GetByProviderID(providerTxnID string) (*transaction.Transaction, error)

	// CompareAndTransition is the only mutation path for status changes. It
	// applies fields and moves reference from expected to next atomically,
	// failing if the stored status no longer matches expected.
	CompareAndTransition(reference string, expected, next transaction.Status, fields map[string]interface{}) error
}

// Orchestrator drives the transaction lifecycle: it creates transactions,
// invokes providers, applies synchronous results, reconciles asynchronous
// webhook results and drives refunds. All status movement funnels through
// the store's compare-and-transition.
type Orchestrator struct {
	store         StoreAPI
	registry      *provider.Registry
	verifier      *webhook.Verifier
	eventBus      *events.EventBus
	logger        *slog.Logger
	chargeTimeout time.Duration
}

func NewOrchestrator(store StoreAPI, registry *provider.Registry, verifier *webhook.Verifier, eventBus *events.EventBus, chargeTimeout time.Duration, logger *slog.Logger) *Orchestrator {
	if chargeTimeout <= 0 {
		chargeTimeout = 30 * time.Second
	}
	return &Orchestrator{
		store:         store,
		registry:      registry,
		verifier:      verifier,
		eventBus:      eventBus,
		logger:        logger,
		chargeTimeout: chargeTimeout,
	}
}

// Submit validates the request, creates (or resumes) a pending transaction
// and attempts the charge. On an indeterminate provider outcome the
// transaction stays pending and the returned error is retryable; the
// returned view is still valid so the caller can report "pending".
func (o *Orchestrator) Submit(ctx context.Context, req *SubmitRequest) (*TransactionView, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	providerName := req.Provider
	if providerName == "" {
		providerName = o.registry.Default()
	}

	_, adapter, err := o.registry.Resolve(providerName)
	if err != nil {
		o.logger.Warn("submit for unknown provider", "provider", providerName)
		return nil, errors.ErrUnknownProvider
	}

	method := transaction.Method(req.Method)
	if !adapter.Supports(method) {
		return nil, errors.ErrUnsupportedMethod
	}

	tx, err := o.resumeOrCreate(req, adapter.Name(), method)
	if err != nil {
		return nil, err
	}

	// A terminal transaction, or one the provider already accepted, is not
	// charged again: retrying with the same reference is an idempotent no-op.
	if tx.Status.IsTerminal() || tx.ProviderTransactionID != nil {
		o.logger.Info("submit is a no-op for settled reference",
			"reference_number", tx.ReferenceNumber,
			"status", tx.Status)
		return ToView(tx), nil
	}

	return o.charge(ctx, tx, adapter, req)
}

func (o *Orchestrator) resumeOrCreate(req *SubmitRequest, providerName string, method transaction.Method) (*transaction.Transaction, error) {
	if req.ReferenceNumber != "" {
		existing, err := o.store.GetByReference(req.ReferenceNumber)
		if err == nil {
			// A resumed reference must belong to the caller and carry the
			// original parameters. Anything else is not a retry.
			if existing.UserID != req.UserID {
				o.logger.Warn("submit resume denied for foreign reference",
					"reference_number", req.ReferenceNumber,
					"user_id", req.UserID)
				return nil, errors.ErrUnauthorizedAccess
			}
			if !existing.Amount.Equal(req.Amount) || existing.Currency != req.Currency ||
				existing.Provider != providerName || existing.Method != method {
				o.logger.Warn("submit resume with mismatched parameters",
					"reference_number", req.ReferenceNumber,
					"user_id", req.UserID)
				return nil, errors.ErrReferenceConflict
			}
			return existing, nil
		}
		if appErr, ok := errors.IsAppError(err); !ok || appErr.Code != errors.ErrCodeTransactionNotFound {
			return nil, err
		}
		// Caller-supplied token for a reference we have never seen: fall
		// through and create the transaction under that reference.
	}

	reference := req.ReferenceNumber
	if reference == "" {
		reference = uuid.NewString()
	}

	tx := &transaction.Transaction{
		ReferenceNumber: reference,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Provider:        providerName,
		Method:          method,
		Status:          transaction.StatusPending,
		UserID:          req.UserID,
		Description:     req.Description,
	}

	if err := o.store.Create(tx); err != nil {
		o.logger.Error("failed to create transaction", "error", err, "reference_number", reference)
		return nil, errors.NewInternalError("failed to create transaction", err)
	}

	o.logger.Info("transaction created",
		"reference_number", reference,
		"provider", providerName,
		"amount", req.Amount.String(),
		"currency", req.Currency)

	return tx, nil
}

func (o *Orchestrator) charge(ctx context.Context, tx *transaction.Transaction, adapter provider.PaymentProvider, req *SubmitRequest) (*TransactionView, error) {
	chargeReq := &provider.ChargeRequest{
		ReferenceNumber: tx.ReferenceNumber,
		Amount:          tx.Amount,
		Currency:        tx.Currency,
		Method:          tx.Method,
		CardNumber:      req.CardNumber,
		CardExpiryMonth: req.CardExpiryMonth,
		CardExpiryYear:  req.CardExpiryYear,
		CardCVV:         req.CardCVV,
		WalletID:        req.WalletID,
		BankAccount:     req.BankAccount,
		CryptoAddress:   req.CryptoAddress,
		CustomerEmail:   req.CustomerEmail,
		Description:     req.Description,
	}

	// A caller that is already gone before the charge goes on the wire gets
	// a clean cancellation. After this point the charge always runs to its
	// outcome.
	if err := ctx.Err(); err != nil {
		if casErr := o.store.CompareAndTransition(tx.ReferenceNumber, transaction.StatusPending, transaction.StatusCancelled, nil); casErr != nil {
			o.logger.Error("failed to cancel abandoned submission",
				"reference_number", tx.ReferenceNumber, "error", casErr)
		}
		o.logger.Info("submission cancelled before charge",
			"reference_number", tx.ReferenceNumber)
		return nil, err
	}

	// The charge runs on a context detached from the caller: once the wire
	// request is in flight its result must be applied even if the caller
	// goes away, otherwise a sent charge would have no recorded outcome.
	chargeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.chargeTimeout)
	defer cancel()

	result, err := adapter.Charge(chargeCtx, chargeReq)

	switch {
	case err == nil:
		return o.applyChargeResult(ctx, tx, result)

	case provider.IsRejected(err):
		return o.applyRejection(ctx, tx, err)

	default:
		// Indeterminate: the provider may or may not have processed the
		// charge. The transaction stays pending and is reconciled by a
		// retried submit or by the provider's webhook, whichever comes first.
		o.logger.Warn("provider outcome indeterminate, transaction stays pending",
			"reference_number", tx.ReferenceNumber,
			"provider", tx.Provider,
			"error", err)
		return ToView(tx), errors.NewIndeterminateError("payment could not be confirmed, retry with the same reference", err)
	}
}

func (o *Orchestrator) applyChargeResult(ctx context.Context, tx *transaction.Transaction, result *provider.ChargeResult) (*TransactionView, error) {
	now := time.Now().UTC()
	fields := map[string]interface{}{
		"provider_transaction_id": result.ProviderTransactionID,
		"processed_at":            now,
	}
	if result.MaskedNumber != "" {
		fields["masked_number"] = result.MaskedNumber
	}
	if result.CardBrand != "" {
		fields["card_brand"] = result.CardBrand
	}

	next := result.Status
	if next != transaction.StatusCompleted && next != transaction.StatusProcessing {
		o.logger.Error("adapter returned unexpected charge status",
			"reference_number", tx.ReferenceNumber,
			"status", next)
		next = transaction.StatusProcessing
	}

	err := o.store.CompareAndTransition(tx.ReferenceNumber, transaction.StatusPending, next, fields)
	if err != nil {
		if appErr, ok := errors.IsAppError(err); ok && appErr.Code == errors.ErrCodeStaleTransition {
			// A webhook raced us and already moved the transaction; its
			// result stands and ours is the duplicate.
			o.logger.Info("charge result already applied by webhook",
				"reference_number", tx.ReferenceNumber)
			return o.Get(ctx, tx.ReferenceNumber)
		}
		return nil, err
	}

	tx.Status = next
	tx.ProviderTransactionID = &result.ProviderTransactionID
	tx.ProcessedAt = &now

	o.logger.Info("charge accepted",
		"reference_number", tx.ReferenceNumber,
		"provider_transaction_id", result.ProviderTransactionID,
		"status", next)

	if next == transaction.StatusCompleted {
		o.eventBus.Publish(ctx, events.NewPaymentCompletedEvent(
			tx.ReferenceNumber, result.ProviderTransactionID, tx.Provider,
			tx.Amount, tx.Currency, tx.UserID))
	}

	return ToView(tx), nil
}

func (o *Orchestrator) applyRejection(ctx context.Context, tx *transaction.Transaction, cause error) (*TransactionView, error) {
	reason := cause.Error()
	now := time.Now().UTC()
	fields := map[string]interface{}{
		"failure_reason": reason,
		"failed_at":      now,
	}

	err := o.store.CompareAndTransition(tx.ReferenceNumber, transaction.StatusPending, transaction.StatusFailed, fields)
	if err != nil {
		if appErr, ok := errors.IsAppError(err); ok && appErr.Code == errors.ErrCodeStaleTransition {
			o.logger.Warn("rejection raced another transition",
				"reference_number", tx.ReferenceNumber)
		} else {
			o.logger.Error("failed to record rejection",
				"reference_number", tx.ReferenceNumber, "error", err)
		}
	} else {
		tx.Status = transaction.StatusFailed
		tx.FailureReason = &reason
		tx.FailedAt = &now
	}

	o.logger.Info("charge rejected by provider",
		"reference_number", tx.ReferenceNumber,
		"provider", tx.Provider,
		"reason", reason)

	o.eventBus.Publish(ctx, events.NewPaymentFailedEvent(
		tx.ReferenceNumber, tx.Provider, tx.Amount, tx.Currency, reason))

	return ToView(tx), errors.NewRejectedError(reason).WithCause(cause)
}

// ReconcileWebhook applies an asynchronous provider callback. The signature
// is checked before any parsing or lookup of untrusted content. Duplicate
// deliveries are no-ops; a lost compare-and-transition race surfaces as
// StaleTransition so the HTTP layer can ask the provider to redeliver.
func (o *Orchestrator) ReconcileWebhook(ctx context.Context, providerName string, rawBody []byte, signatureHeader string) error {
	if !o.verifier.Verify(providerName, rawBody, signatureHeader) {
		o.logger.Warn("webhook signature verification failed",
			"provider", providerName,
			"body_size", len(rawBody))
		return errors.ErrInvalidSignature
	}

	event, err := o.verifier.Parse(providerName, rawBody)
	if err != nil {
		o.logger.Warn("webhook rejected during parse",
			"provider", providerName,
			"error", err)
		return errors.ErrInvalidSignature.WithCause(err)
	}

	tx, err := o.locate(event)
	if err != nil {
		o.logger.Warn("webhook references unknown transaction",
			"provider", providerName,
			"provider_transaction_id", event.ProviderTransactionID,
			"reference_number", event.ReferenceNumber)
		return errors.ErrUnknownTransaction
	}

	return o.applyWebhook(ctx, tx, event, false)
}

func (o *Orchestrator) locate(event *provider.WebhookEvent) (*transaction.Transaction, error) {
	tx, err := o.store.GetByProviderID(event.ProviderTransactionID)
	if err == nil {
		return tx, nil
	}
	if event.ReferenceNumber != "" {
		return o.store.GetByReference(event.ReferenceNumber)
	}
	return nil, err
}

func (o *Orchestrator) applyWebhook(ctx context.Context, tx *transaction.Transaction, event *provider.WebhookEvent, retried bool) error {
	if tx.Status == event.Status {
		o.logger.Info("duplicate webhook delivery ignored",
			"reference_number", tx.ReferenceNumber,
			"status", event.Status)
		return nil
	}

	if !tx.Status.CanTransitionTo(event.Status) {
		// The event targets a state we cannot legally reach from here, which
		// means it was already applied (possibly through an intermediate
		// state). Applied-at-most-once makes this a no-op, not an error.
		o.logger.Warn("webhook transition not applicable, dropping",
			"reference_number", tx.ReferenceNumber,
			"current_status", tx.Status,
			"target_status", event.Status)
		return nil
	}

	now := time.Now().UTC()
	fields := map[string]interface{}{
		"webhook_received_at": now,
	}
	if tx.ProviderTransactionID == nil && event.ProviderTransactionID != "" {
		fields["provider_transaction_id"] = event.ProviderTransactionID
	}

	switch event.Status {
	case transaction.StatusCompleted:
		fields["processed_at"] = now
	case transaction.StatusFailed:
		fields["failed_at"] = now
		fields["failure_reason"] = "reported failed by provider webhook"
	case transaction.StatusRefunded:
		fields["refunded_at"] = now
		fields["refunded_amount"] = tx.Amount
	case transaction.StatusPartiallyRefunded:
		fields["refunded_at"] = now
		if event.Amount.IsPositive() {
			fields["refunded_amount"] = event.Amount
		}
	case transaction.StatusDisputed:
		fields["disputed_at"] = now
		if event.Amount.IsPositive() {
			fields["disputed_amount"] = event.Amount
		} else {
			fields["disputed_amount"] = tx.Amount
		}
	}

	err := o.store.CompareAndTransition(tx.ReferenceNumber, tx.Status, event.Status, fields)
	if err != nil {
		appErr, ok := errors.IsAppError(err)
		if ok && appErr.Code == errors.ErrCodeStaleTransition && !retried {
			// Lost a race with a concurrent delivery or a submit retry.
			// Re-read once: if the target state is already in place the
			// duplicate is dropped, otherwise the conflict is surfaced.
			fresh, readErr := o.store.GetByReference(tx.ReferenceNumber)
			if readErr != nil {
				return readErr
			}
			return o.applyWebhook(ctx, fresh, event, true)
		}
		return err
	}

	o.logger.Info("webhook reconciled",
		"reference_number", tx.ReferenceNumber,
		"from_status", tx.Status,
		"to_status", event.Status,
		"provider_transaction_id", event.ProviderTransactionID)

	o.publishWebhookEvent(ctx, tx, event)
	return nil
}

func (o *Orchestrator) publishWebhookEvent(ctx context.Context, tx *transaction.Transaction, event *provider.WebhookEvent) {
	switch event.Status {
	case transaction.StatusCompleted:
		o.eventBus.Publish(ctx, events.NewPaymentCompletedEvent(
			tx.ReferenceNumber, event.ProviderTransactionID, tx.Provider,
			tx.Amount, tx.Currency, tx.UserID))
	case transaction.StatusFailed:
		o.eventBus.Publish(ctx, events.NewPaymentFailedEvent(
			tx.ReferenceNumber, tx.Provider, tx.Amount, tx.Currency,
			"reported failed by provider webhook"))
	case transaction.StatusRefunded:
		o.eventBus.Publish(ctx, events.NewPaymentRefundedEvent(
			tx.ReferenceNumber, event.Amount, tx.Amount, tx.Currency, true))
	case transaction.StatusPartiallyRefunded:
		o.eventBus.Publish(ctx, events.NewPaymentRefundedEvent(
			tx.ReferenceNumber, event.Amount, event.Amount, tx.Currency, false))
	case transaction.StatusDisputed:
		o.eventBus.Publish(ctx, events.NewPaymentDisputedEvent(
			tx.ReferenceNumber, event.Amount, tx.Currency))
	}
}

// Refund validates the refundable balance before any provider call, submits
// the refund and applies the new totals through compare-and-transition.
func (o *Orchestrator) Refund(ctx context.Context, reference string, req *RefundRequest) (*TransactionView, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	tx, err := o.store.GetByReference(reference)
	if err != nil {
		return nil, err
	}

	if !tx.IsRefundable() || tx.ProviderTransactionID == nil {
		return nil, errors.ErrNotRefundable
	}

	if req.Amount.GreaterThan(tx.RefundableBalance()) {
		o.logger.Warn("refund exceeds refundable balance",
			"reference_number", reference,
			"requested", req.Amount.String(),
			"refundable", tx.RefundableBalance().String())
		return nil, errors.ErrExcessiveRefund
	}

	_, adapter, err := o.registry.Resolve(tx.Provider)
	if err != nil {
		return nil, errors.ErrUnknownProvider
	}

	refundCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.chargeTimeout)
	defer cancel()

	_, err = adapter.Refund(refundCtx, &provider.RefundRequest{
		ProviderTransactionID: *tx.ProviderTransactionID,
		ReferenceNumber:       tx.ReferenceNumber,
		Amount:                req.Amount,
		Currency:              tx.Currency,
		Reason:                req.Reason,
	})
	if err != nil {
		if provider.IsRejected(err) {
			o.logger.Warn("refund rejected by provider",
				"reference_number", reference, "error", err)
			return nil, errors.NewRejectedError("refund rejected by provider").WithCause(err)
		}
		o.logger.Warn("refund outcome indeterminate, totals unchanged",
			"reference_number", reference, "error", err)
		return nil, errors.NewIndeterminateError("refund could not be confirmed", err)
	}

	newTotal := tx.RefundedAmount.Add(req.Amount)
	next := transaction.StatusPartiallyRefunded
	fullyRefunded := newTotal.Equal(tx.Amount)
	if fullyRefunded {
		next = transaction.StatusRefunded
	}

	now := time.Now().UTC()
	fields := map[string]interface{}{
		"refunded_amount": newTotal,
		"refunded_at":     now,
	}

	if err := o.store.CompareAndTransition(reference, tx.Status, next, fields); err != nil {
		// Concurrent webhook or operator action changed the state under us.
		// The provider refund went through, so the caller must re-read and
		// reconcile rather than retry blindly.
		o.logger.Error("refund state transition lost a race",
			"reference_number", reference, "error", err)
		return nil, err
	}

	tx.Status = next
	tx.RefundedAmount = newTotal
	tx.RefundedAt = &now

	o.logger.Info("refund applied",
		"reference_number", reference,
		"refund_amount", req.Amount.String(),
		"refunded_total", newTotal.String(),
		"status", next)

	o.eventBus.Publish(ctx, events.NewPaymentRefundedEvent(
		reference, req.Amount, newTotal, tx.Currency, fullyRefunded))

	return ToView(tx), nil
}

// Get returns the caller-facing view of a transaction.
func (o *Orchestrator) Get(_ context.Context, reference string) (*TransactionView, error) {
	tx, err := o.store.GetByReference(reference)
	if err != nil {
		return nil, err
	}
	return ToView(tx), nil
}

// GetOwned is Get plus the explicit ownership check used by the facade.
func (o *Orchestrator) GetOwned(ctx context.Context, reference string, userID int64) (*TransactionView, error) {
	tx, err := o.store.GetByReference(reference)
	if err != nil {
		return nil, err
	}
	if err := CheckOwnership(tx, userID); err != nil {
		return nil, err
	}
	return ToView(tx), nil
}
