package transaction_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"storefront-payments/internal/core/datamodel/transaction"
)

func TestTransaction(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Transaction Datamodel Suite")
}

var _ = Describe("Status", func() {
	Describe("CanTransitionTo", func() {
		It("allows the full pending fan-out", func() {
			Expect(transaction.StatusPending.CanTransitionTo(transaction.StatusProcessing)).To(BeTrue())
			Expect(transaction.StatusPending.CanTransitionTo(transaction.StatusCompleted)).To(BeTrue())
			Expect(transaction.StatusPending.CanTransitionTo(transaction.StatusFailed)).To(BeTrue())
			Expect(transaction.StatusPending.CanTransitionTo(transaction.StatusCancelled)).To(BeTrue())
		})

		It("only settles processing into completed or failed", func() {
			Expect(transaction.StatusProcessing.CanTransitionTo(transaction.StatusCompleted)).To(BeTrue())
			Expect(transaction.StatusProcessing.CanTransitionTo(transaction.StatusFailed)).To(BeTrue())
			Expect(transaction.StatusProcessing.CanTransitionTo(transaction.StatusCancelled)).To(BeFalse())
			Expect(transaction.StatusProcessing.CanTransitionTo(transaction.StatusRefunded)).To(BeFalse())
		})

		It("allows refund and dispute paths from completed", func() {
			Expect(transaction.StatusCompleted.CanTransitionTo(transaction.StatusPartiallyRefunded)).To(BeTrue())
			Expect(transaction.StatusCompleted.CanTransitionTo(transaction.StatusRefunded)).To(BeTrue())
			Expect(transaction.StatusCompleted.CanTransitionTo(transaction.StatusDisputed)).To(BeTrue())
		})

		It("continues refunding from partially refunded", func() {
			Expect(transaction.StatusPartiallyRefunded.CanTransitionTo(transaction.StatusRefunded)).To(BeTrue())
			Expect(transaction.StatusPartiallyRefunded.CanTransitionTo(transaction.StatusDisputed)).To(BeTrue())
			Expect(transaction.StatusPartiallyRefunded.CanTransitionTo(transaction.StatusCompleted)).To(BeFalse())
		})

		It("rejects any move out of terminal states", func() {
			for _, terminal := range []transaction.Status{
				transaction.StatusFailed,
				transaction.StatusCancelled,
				transaction.StatusRefunded,
				transaction.StatusDisputed,
			} {
				Expect(terminal.CanTransitionTo(transaction.StatusPending)).To(BeFalse())
				Expect(terminal.CanTransitionTo(transaction.StatusCompleted)).To(BeFalse())
			}
		})

		It("never allows a transaction back to pending", func() {
			for _, s := range []transaction.Status{
				transaction.StatusProcessing,
				transaction.StatusCompleted,
				transaction.StatusFailed,
				transaction.StatusRefunded,
			} {
				Expect(s.CanTransitionTo(transaction.StatusPending)).To(BeFalse())
			}
		})
	})

	Describe("IsTerminal", func() {
		It("marks failed, cancelled, refunded and disputed terminal", func() {
			Expect(transaction.StatusFailed.IsTerminal()).To(BeTrue())
			Expect(transaction.StatusCancelled.IsTerminal()).To(BeTrue())
			Expect(transaction.StatusRefunded.IsTerminal()).To(BeTrue())
			Expect(transaction.StatusDisputed.IsTerminal()).To(BeTrue())
		})

		It("keeps live states non-terminal", func() {
			Expect(transaction.StatusPending.IsTerminal()).To(BeFalse())
			Expect(transaction.StatusProcessing.IsTerminal()).To(BeFalse())
			Expect(transaction.StatusCompleted.IsTerminal()).To(BeFalse())
			Expect(transaction.StatusPartiallyRefunded.IsTerminal()).To(BeFalse())
		})
	})
})

var _ = Describe("Transaction", func() {
	Describe("RefundableBalance", func() {
		It("subtracts only the refunded total from the amount", func() {
			tx := &transaction.Transaction{
				Amount:         decimal.RequireFromString("100.00"),
				RefundedAmount: decimal.RequireFromString("25.50"),
				DisputedAmount: decimal.RequireFromString("40.00"),
			}
			Expect(tx.RefundableBalance().String()).To(Equal("74.5"))
		})

		It("reaches zero when fully refunded", func() {
			tx := &transaction.Transaction{
				Amount:         decimal.RequireFromString("80.00"),
				RefundedAmount: decimal.RequireFromString("80.00"),
			}
			Expect(tx.RefundableBalance().IsZero()).To(BeTrue())
		})
	})

	Describe("IsRefundable", func() {
		It("allows refunds only from completed and partially refunded", func() {
			tx := &transaction.Transaction{Status: transaction.StatusCompleted}
			Expect(tx.IsRefundable()).To(BeTrue())

			tx.Status = transaction.StatusPartiallyRefunded
			Expect(tx.IsRefundable()).To(BeTrue())

			for _, s := range []transaction.Status{
				transaction.StatusPending,
				transaction.StatusProcessing,
				transaction.StatusFailed,
				transaction.StatusRefunded,
				transaction.StatusDisputed,
			} {
				tx.Status = s
				Expect(tx.IsRefundable()).To(BeFalse())
			}
		})
	})
})
