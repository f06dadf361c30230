package adjustment

import (
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/ninerx/paycore/internal/balance"
	gatewaydomain "github.com/ninerx/paycore/internal/gateway/domain"
	ledgerdomain "github.com/ninerx/paycore/internal/ledger/domain"
)

// Action is the closed set of reconciliation actions. Increase actions apply
// when the customer owes more, decrease actions when the customer is owed.
type Action string

const (
	ActionCollectPayment  Action = "collect_payment"
	ActionSendPaymentLink Action = "send_payment_link"
	ActionUseCredit       Action = "use_credit"
	ActionIssueCreditMemo Action = "issue_credit_memo"
	ActionProcessRefund   Action = "process_refund"
)

func (a Action) increases() bool {
	switch a {
	case ActionCollectPayment, ActionSendPaymentLink, ActionUseCredit:
		return true
	}
	return false
}

func (a Action) decreases() bool {
	switch a {
	case ActionIssueCreditMemo, ActionProcessRefund:
		return true
	}
	return false
}

func (a Action) valid() bool {
	return a.increases() || a.decreases()
}

// ResolveRequest asks for one reconciliation of an order whose total changed
// after payment.
type ResolveRequest struct {
	OrderID  snowflake.ID
	Action   Action
	NewTotal float64
	Reason   string

	ProcessedBy string

	// Saved payment method, required by collect_payment.
	Method     ledgerdomain.PaymentMethod
	CardToken  string
	CardLast4  string
	CardBrand  string
	Expiration string
	Billing    gatewaydomain.Billing

	// AllowUnreferenced lets the caller force a refund attempt when no
	// original gateway transaction id is on file. Degraded: the gateway
	// may reject it.
	AllowUnreferenced bool
}

// Resolution is the outcome of a resolved adjustment.
type Resolution struct {
	Adjustment ledgerdomain.Adjustment `json:"adjustment"`
	Balance    balance.Balance         `json:"balance"`
	// Degraded marks a refund attempted without an original transaction
	// reference.
	Degraded bool `json:"degraded,omitempty"`
}

var (
	ErrOrderNotFound   = errors.New("order_not_found")
	ErrNoPaymentOnFile = errors.New("no_payment_on_file")
	ErrNoDifference    = errors.New("no_total_difference")
	ErrUnknownAction   = errors.New("unknown_adjustment_action")
	ErrInvalidNewTotal = errors.New("invalid_new_total")
	// ErrActionMismatch is returned when the chosen action belongs to the
	// opposite sign branch (e.g. a credit memo for an increase).
	ErrActionMismatch     = errors.New("adjustment_action_mismatch")
	ErrInsufficientCredit = errors.New("insufficient_credit")
	ErrSavedMethodMissing = errors.New("saved_payment_method_missing")
	// ErrRefundUnsafe is surfaced instead of silently substituting a
	// credit memo when no original transaction id exists; the caller
	// decides whether to force the degraded path.
	ErrRefundUnsafe = errors.New("refund_without_original_transaction")
)
