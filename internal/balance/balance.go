// Package balance computes total owed, amount paid, balance due, and payment
// status from an order snapshot. Everything here is pure: no side effects, no
// DB access, deterministic for a given snapshot.
package balance

import (
	"math"

	orderdomain "github.com/ninerx/paycore/internal/order/domain"
)

// AmountTolerance absorbs float rounding: amounts within a cent of each other
// are treated as equal.
const AmountTolerance = 0.01

// Balance is the snapshot returned to callers. Status display and balance
// math are independent facts; both are surfaced, and an order manually marked
// paid with insufficient paid_amount still carries a positive Due.
type Balance struct {
	Total       float64                   `json:"total"`
	Paid        float64                   `json:"paid"`
	Due         float64                   `json:"due"`
	Status      orderdomain.PaymentStatus `json:"status"`
	AmountToPay float64                   `json:"amount_to_pay"`
}

// FeeSettings are configured partial-payment fees and discounts. They are
// accepted as inputs but not yet applied to totals; the upstream
// configuration exists without a wired formula.
type FeeSettings struct {
	LateFeePercent       float64
	EarlyPaymentDiscount float64
	ProcessingFeePercent float64
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Equal reports whether two amounts are the same within tolerance.
func Equal(a, b float64) bool {
	return math.Abs(a-b) <= AmountTolerance
}

// Subtotal sums quantity * unit price across every size variant of every line.
func Subtotal(items []orderdomain.OrderItem) float64 {
	var subtotal float64
	for _, item := range items {
		for _, size := range item.Sizes {
			subtotal += float64(size.Quantity) * size.UnitPrice
		}
	}
	return round2(subtotal)
}

// AppliesPOSurcharges reports whether handling/freight surcharges apply: the
// order is a purchase order whose PO has not been accepted.
func AppliesPOSurcharges(order orderdomain.Order) bool {
	return order.IsPurchaseOrder && !order.POAccepted
}

// Total is subtotal + shipping + tax - discount, plus PO surcharges when they
// apply.
func Total(order orderdomain.Order) float64 {
	total := Subtotal(order.Items) + order.ShippingCost + order.TaxAmount - order.DiscountAmount
	if AppliesPOSurcharges(order) {
		total += order.POHandlingFee + order.POFreightFee
	}
	return round2(total)
}

// EffectiveTotal is the stored order total when one exists, otherwise the
// item-derived total. Adjustments edit total_amount directly, so a stored
// total always wins over recomputing from line items.
func EffectiveTotal(order orderdomain.Order) float64 {
	if order.TotalAmount > 0 {
		return round2(order.TotalAmount)
	}
	return Total(order)
}

// Due is total minus paid, floored at zero within tolerance.
func Due(order orderdomain.Order) float64 {
	due := EffectiveTotal(order) - order.PaidAmount
	if due <= AmountTolerance {
		return 0
	}
	return round2(due)
}

// DeriveStatus recomputes payment status from amounts alone. This is what
// gets persisted after money moves or a total changes; a stale "paid" mark
// does not survive a total increase. The stored status only wins for states
// the amounts cannot distinguish (unpaid vs pending).
func DeriveStatus(order orderdomain.Order) orderdomain.PaymentStatus {
	return StatusFromAmounts(EffectiveTotal(order), order.PaidAmount, order.PaymentStatus)
}

// StatusFromAmounts derives payment status from a total and paid amount. For
// orders whose total was edited upstream the caller passes the edited total
// directly instead of recomputing from line items.
func StatusFromAmounts(total, paid float64, stored orderdomain.PaymentStatus) orderdomain.PaymentStatus {
	switch {
	case total-paid <= AmountTolerance && paid > 0:
		return orderdomain.PaymentStatusPaid
	case paid > 0 && paid < total:
		return orderdomain.PaymentStatusPartialPaid
	case stored == orderdomain.PaymentStatusPending:
		return orderdomain.PaymentStatusPending
	default:
		return orderdomain.PaymentStatusUnpaid
	}
}

// DisplayStatus is what callers see: a manual "paid" mark wins for display
// even when paid_amount falls short, while Due independently reports the
// shortfall. Status text and balance math are separate facts.
func DisplayStatus(order orderdomain.Order) orderdomain.PaymentStatus {
	if order.PaymentStatus == orderdomain.PaymentStatusPaid {
		return orderdomain.PaymentStatusPaid
	}
	return DeriveStatus(order)
}

// AmountToPay is the balance due for a partially paid order, the full total
// otherwise.
func AmountToPay(order orderdomain.Order) float64 {
	if DeriveStatus(order) == orderdomain.PaymentStatusPartialPaid {
		return Due(order)
	}
	return EffectiveTotal(order)
}

// SnapshotFromTotals assembles a balance view from stored totals, for orders
// whose total was edited upstream rather than derived from line items.
func SnapshotFromTotals(total, paid float64, stored orderdomain.PaymentStatus) Balance {
	due := total - paid
	if due <= AmountTolerance {
		due = 0
	} else {
		due = round2(due)
	}
	status := StatusFromAmounts(total, paid, stored)
	display := status
	if stored == orderdomain.PaymentStatusPaid {
		display = orderdomain.PaymentStatusPaid
	}
	amountToPay := round2(total)
	if status == orderdomain.PaymentStatusPartialPaid {
		amountToPay = due
	}
	return Balance{
		Total:       round2(total),
		Paid:        round2(paid),
		Due:         due,
		Status:      display,
		AmountToPay: amountToPay,
	}
}

// Snapshot assembles the full balance view for an order.
func Snapshot(order orderdomain.Order) Balance {
	return Balance{
		Total:       EffectiveTotal(order),
		Paid:        round2(order.PaidAmount),
		Due:         Due(order),
		Status:      DisplayStatus(order),
		AmountToPay: AmountToPay(order),
	}
}
