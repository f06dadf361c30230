package capture

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/ninerx/paycore/internal/balance"
	gatewaydomain "github.com/ninerx/paycore/internal/gateway/domain"
	ledgerdomain "github.com/ninerx/paycore/internal/ledger/domain"
)

// Request is one capture attempt against an order.
type Request struct {
	OrderID snowflake.ID
	Method  ledgerdomain.PaymentMethod
	Amount  float64

	CardToken  string
	CardLast4  string
	CardBrand  string
	Expiration string

	Billing gatewaydomain.Billing

	ProcessedBy string
}

// Receipt is the successful outcome of a capture. Reconciliation is set when
// the gateway captured money but a ledger write failed and was queued; the
// payment is real either way.
type Receipt struct {
	OrderID        snowflake.ID               `json:"order_id"`
	TransactionID  string                     `json:"transaction_id"`
	AuthCode       string                     `json:"auth_code,omitempty"`
	Amount         float64                    `json:"amount"`
	InvoiceID      snowflake.ID               `json:"invoice_id,omitempty"`
	InvoiceNumber  string                     `json:"invoice_number,omitempty"`
	InvoiceCreated bool                       `json:"invoice_created"`
	Balance        balance.Balance            `json:"balance"`
	Reconciliation bool                       `json:"reconciliation,omitempty"`
	Method         ledgerdomain.PaymentMethod `json:"method"`
}

var (
	ErrOrderNotFound = errors.New("order_not_found")
	ErrOrderVoid     = errors.New("order_void")
)

// ValidationError rejects bad input before the gateway is touched.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

func validationErr(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
