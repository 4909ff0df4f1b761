package postgres

import (
	"errors"
	"log/slog"

	"gorm.io/gorm"

	apperrors "storefront-payments/internal"
	"storefront-payments/internal/core/datamodel/transaction"
)

// Repository is the gorm-backed transaction store.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

func (r *Repository) Create(tx *transaction.Transaction) error {
	if err := r.db.Create(tx).Error; err != nil {
		r.logger.Error("failed to insert transaction",
			"reference_number", tx.ReferenceNumber,
			"error", err)
		return apperrors.NewInternalError("failed to create transaction", err)
	}
	return nil
}

func (r *Repository) GetByReference(reference string) (*transaction.Transaction, error) {
	var tx transaction.Transaction
	err := r.db.Where("reference_number = ?", reference).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		r.logger.Error("failed to query transaction by reference",
			"reference_number", reference,
			"error", err)
		return nil, apperrors.NewInternalError("failed to query transaction", err)
	}
	return &tx, nil
}

func (r *Repository) GetByProviderID(providerTxnID string) (*transaction.Transaction, error) {
	var tx transaction.Transaction
	err := r.db.Where("provider_transaction_id = ?", providerTxnID).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		r.logger.Error("failed to query transaction by provider id",
			"provider_transaction_id", providerTxnID,
			"error", err)
		return nil, apperrors.NewInternalError("failed to query transaction", err)
	}
	return &tx, nil
}

// CompareAndTransition moves a transaction from expected to next in a single
// guarded UPDATE. The status predicate in the WHERE clause makes the
// transition atomic under concurrent webhooks and retries without row locks.
// provider_transaction_id is write-once: an existing value is never replaced.
func (r *Repository) CompareAndTransition(reference string, expected, next transaction.Status, fields map[string]interface{}) error {
	updates := make(map[string]interface{}, len(fields)+1)
	for column, value := range fields {
		if column == "provider_transaction_id" {
			updates[column] = gorm.Expr("COALESCE(provider_transaction_id, ?)", value)
			continue
		}
		updates[column] = value
	}
	updates["status"] = next

	result := r.db.Model(&transaction.Transaction{}).
		Where("reference_number = ? AND status = ?", reference, expected).
		Updates(updates)

	if result.Error != nil {
		r.logger.Error("transition update failed",
			"reference_number", reference,
			"from_status", expected,
			"to_status", next,
			"error", result.Error)
		return apperrors.NewInternalError("failed to update transaction status", result.Error)
	}

	if result.RowsAffected == 0 {
		// Either the row does not exist or its status moved under us.
		// Distinguish the two so callers can treat staleness as a race.
		var count int64
		if err := r.db.Model(&transaction.Transaction{}).
			Where("reference_number = ?", reference).
			Count(&count).Error; err != nil {
			return apperrors.NewInternalError("failed to query transaction", err)
		}
		if count == 0 {
			return apperrors.ErrTransactionNotFound
		}
		return apperrors.ErrStaleTransition
	}

	return nil
}
