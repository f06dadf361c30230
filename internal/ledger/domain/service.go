package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Service is the ledger store: append-only financial postings plus the
// derived store-credit balance and the reconciliation queue. Writers that
// need atomicity with order/invoice updates pass the enclosing transaction.
type Service interface {
	RecordPayment(ctx context.Context, tx *gorm.DB, pt PaymentTransaction) (PaymentTransaction, error)
	RecordAccountTransaction(ctx context.Context, tx *gorm.DB, at AccountTransaction) (AccountTransaction, error)
	RecordAdjustment(ctx context.Context, tx *gorm.DB, adj Adjustment) (Adjustment, error)
	CompleteAdjustment(ctx context.Context, tx *gorm.DB, id snowflake.ID, paymentTxID snowflake.ID) error

	StoreCreditBalance(ctx context.Context, customerID snowflake.ID) (float64, error)

	QueueReconciliation(ctx context.Context, item ReconciliationItem) error
	ListReconciliationItems(ctx context.Context, unresolvedOnly bool) ([]ReconciliationItem, error)

	ListAdjustments(ctx context.Context, orderID snowflake.ID) ([]Adjustment, error)
	GetAdjustment(ctx context.Context, id snowflake.ID) (Adjustment, error)
}

var (
	ErrInvalidCustomer      = errors.New("invalid_customer")
	ErrInvalidOrder         = errors.New("invalid_order")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrAdjustmentNotFound   = errors.New("adjustment_not_found")
	ErrAdjustmentNotPending = errors.New("adjustment_not_pending")
)
