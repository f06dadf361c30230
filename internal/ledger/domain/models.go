package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// TransactionType classifies payment transactions.
type TransactionType string

const (
	TransactionTypeAuthCapture       TransactionType = "auth_capture"
	TransactionTypeAdditionalPayment TransactionType = "additional_payment"
	TransactionTypeRefund            TransactionType = "refund"
)

// PaymentMethod is how money moved.
type PaymentMethod string

const (
	PaymentMethodCard       PaymentMethod = "card"
	PaymentMethodACH        PaymentMethod = "ach"
	PaymentMethodManual     PaymentMethod = "manual"
	PaymentMethodCardRefund PaymentMethod = "card_refund"
)

// TransactionStatus is the terminal status of a payment transaction row.
type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// PaymentTransaction is the append-only audit row for money that moved (or
// was declined). Never mutated after write.
type PaymentTransaction struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	CustomerID  snowflake.ID      `gorm:"not null;index"`
	OrderID     snowflake.ID      `gorm:"not null;index"`
	InvoiceID   *snowflake.ID     `gorm:"index"`
	Type        TransactionType   `gorm:"type:text;not null"`
	Amount      float64           `gorm:"not null"`
	Method      PaymentMethod     `gorm:"type:text;not null"`
	GatewayTxID string            `gorm:"type:text;index"`
	Status      TransactionStatus `gorm:"type:text;not null"`
	CardLast4   string            `gorm:"type:text"`
	CardBrand   string            `gorm:"type:text"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PaymentTransaction) TableName() string { return "payment_transactions" }

// AccountDirection represents credit or debit account postings.
type AccountDirection string

const (
	AccountDirectionCredit AccountDirection = "credit"
	AccountDirectionDebit  AccountDirection = "debit"
)

// AccountReferenceType says what a posting refers to.
type AccountReferenceType string

const (
	ReferenceTypePayment    AccountReferenceType = "payment"
	ReferenceTypeRefund     AccountReferenceType = "refund"
	ReferenceTypeCreditMemo AccountReferenceType = "credit_memo"
)

// AccountTransaction feeds the customer's running store-credit balance,
// derived as sum(credits) - sum(debits). Append-only.
type AccountTransaction struct {
	ID            snowflake.ID         `gorm:"primaryKey"`
	CustomerID    snowflake.ID         `gorm:"not null;index"`
	OrderID       snowflake.ID         `gorm:"not null;index"`
	Direction     AccountDirection     `gorm:"type:text;not null"`
	ReferenceType AccountReferenceType `gorm:"type:text;not null"`
	Amount        float64              `gorm:"not null"`
	ProcessedBy   string               `gorm:"type:text"`
	GatewayTxID   string               `gorm:"type:text"`
	CreatedAt     time.Time            `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AccountTransaction) TableName() string { return "account_transactions" }

// AdjustmentType classifies reconciliation events.
type AdjustmentType string

const (
	AdjustmentTypeAdditionalPayment AdjustmentType = "additional_payment"
	AdjustmentTypeCreditMemoIssued  AdjustmentType = "credit_memo_issued"
	AdjustmentTypePartialRefund     AdjustmentType = "partial_refund"
)

// AdjustmentStatus is the lifecycle of an adjustment row.
type AdjustmentStatus string

const (
	AdjustmentStatusCompleted AdjustmentStatus = "completed"
	AdjustmentStatusPending   AdjustmentStatus = "pending"
)

// Adjustment records one reconciliation event: why an order's money changed
// after initial payment. Immutable once completed; pending rows (payment
// links) are completed exactly once by fulfillment.
type Adjustment struct {
	ID             snowflake.ID     `gorm:"primaryKey"`
	OrderID        snowflake.ID     `gorm:"not null;index"`
	CustomerID     snowflake.ID     `gorm:"not null;index"`
	Type           AdjustmentType   `gorm:"type:text;not null"`
	OriginalAmount float64          `gorm:"not null"`
	NewAmount      float64          `gorm:"not null"`
	// DifferenceAmount is signed; positive means the customer owes more.
	DifferenceAmount float64          `gorm:"not null"`
	PaymentMethod    PaymentMethod    `gorm:"type:text"`
	Status           AdjustmentStatus `gorm:"type:text;not null"`
	CreditMemoID     *snowflake.ID    `gorm:"index"`
	RefundID         *snowflake.ID    `gorm:"index"`
	PaymentTxID      *snowflake.ID    `gorm:"index"`
	Reason           string           `gorm:"type:text"`
	CreatedAt        time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Adjustment) TableName() string { return "adjustments" }

// ReconciliationItem is queued when a downstream ledger write fails after the
// gateway already captured money. These are never dropped; an operator (or a
// retry job) resolves them by hand.
type ReconciliationItem struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	OrderID     snowflake.ID      `gorm:"not null;index"`
	CustomerID  snowflake.ID      `gorm:"not null;index"`
	GatewayTxID string            `gorm:"type:text;not null"`
	Amount      float64           `gorm:"not null"`
	FailedStep  string            `gorm:"type:text;not null"`
	Detail      datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	ResolvedAt  *time.Time        `gorm:""`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ReconciliationItem) TableName() string { return "reconciliation_items" }
