package payment

import (
	errors "storefront-payments/internal"
	"storefront-payments/internal/core/datamodel/transaction"
)

// CheckOwnership rejects access to a transaction created by another user.
// Lookups are by opaque reference number, so this is the only barrier
// between customers.
func CheckOwnership(tx *transaction.Transaction, userID int64) error {
	if tx.UserID != userID {
		return errors.ErrUnauthorizedAccess
	}
	return nil
}
