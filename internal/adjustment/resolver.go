// Package adjustment reconciles an order's financial records after its total
// changes post-payment. One handler per action; every branch re-derives the
// order's payment status through the balance engine.
package adjustment

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/ninerx/paycore/internal/activity"
	"github.com/ninerx/paycore/internal/balance"
	"github.com/ninerx/paycore/internal/gateway"
	gatewaydomain "github.com/ninerx/paycore/internal/gateway/domain"
	ledgerdomain "github.com/ninerx/paycore/internal/ledger/domain"
	"github.com/ninerx/paycore/internal/metrics"
	"github.com/ninerx/paycore/internal/notify"
	orderdomain "github.com/ninerx/paycore/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Resolver executes reconciliation actions against the gateway and ledger.
type Resolver interface {
	Resolve(ctx context.Context, req ResolveRequest) (*Resolution, error)
	// FulfillPaymentLink completes a pending send_payment_link adjustment
	// once the customer has paid out of band.
	FulfillPaymentLink(ctx context.Context, adjustmentID snowflake.ID, gatewayTxID string, processedBy string) (*Resolution, error)
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Gateways gateway.Source
	Ledger   ledgerdomain.Service
	Activity activity.Service
	Notifier notify.Hook
	Metrics  *metrics.Metrics `optional:"true"`
}

type resolver struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	gateways gateway.Source
	ledger   ledgerdomain.Service
	activity activity.Service
	notifier notify.Hook
	metrics  *metrics.Metrics
}

func NewResolver(p Params) Resolver {
	return &resolver{
		db:       p.DB,
		log:      p.Log.Named("adjustment.resolver"),
		genID:    p.GenID,
		gateways: p.Gateways,
		ledger:   p.Ledger,
		activity: p.Activity,
		notifier: p.Notifier,
		metrics:  p.Metrics,
	}
}

func (r *resolver) Resolve(ctx context.Context, req ResolveRequest) (*Resolution, error) {
	if !req.Action.valid() {
		return nil, ErrUnknownAction
	}
	if req.NewTotal < 0 {
		return nil, ErrInvalidNewTotal
	}

	order, err := r.loadOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.PaidAmount <= 0 {
		return nil, ErrNoPaymentOnFile
	}
	// Normalize so orders without a stored total diff against the
	// item-derived one, the same number every balance read uses.
	order.TotalAmount = balance.EffectiveTotal(order)

	difference := round2(req.NewTotal - order.TotalAmount)
	if math.Abs(difference) <= balance.AmountTolerance {
		return nil, ErrNoDifference
	}

	// Wrong-branch actions are rejected before any side effect.
	if difference > 0 && !req.Action.increases() {
		return nil, ErrActionMismatch
	}
	if difference < 0 && !req.Action.decreases() {
		return nil, ErrActionMismatch
	}

	var resolution *Resolution
	switch req.Action {
	case ActionCollectPayment:
		resolution, err = r.collectPayment(ctx, order, req, difference)
	case ActionSendPaymentLink:
		resolution, err = r.sendPaymentLink(ctx, order, req, difference)
	case ActionUseCredit:
		resolution, err = r.useCredit(ctx, order, req, difference)
	case ActionIssueCreditMemo:
		resolution, err = r.issueCreditMemo(ctx, order, req, difference)
	case ActionProcessRefund:
		resolution, err = r.processRefund(ctx, order, req, difference)
	default:
		return nil, ErrUnknownAction
	}
	if err != nil {
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.AdjustmentsTotal.WithLabelValues(string(req.Action)).Inc()
	}
	r.activity.Record(ctx, req.ProcessedBy, "adjustment."+string(req.Action), "order", order.ID, map[string]any{
		"original_amount": order.TotalAmount,
		"new_amount":      req.NewTotal,
		"difference":      difference,
	})
	return resolution, nil
}

// collectPayment charges the saved payment method for the difference.
func (r *resolver) collectPayment(ctx context.Context, order orderdomain.Order, req ResolveRequest, difference float64) (*Resolution, error) {
	if req.Method == "" {
		req.Method = ledgerdomain.PaymentMethodCard
	}
	if req.Method == ledgerdomain.PaymentMethodCard && strings.TrimSpace(req.CardToken) == "" {
		return nil, ErrSavedMethodMissing
	}

	client, err := r.gateways.ClientFor(req.Method)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := client.AuthorizeCapture(ctx, gatewaydomain.Request{
		Amount:     difference,
		Method:     string(req.Method),
		RefID:      uuid.NewString(),
		CardToken:  req.CardToken,
		CardLast4:  req.CardLast4,
		CardBrand:  req.CardBrand,
		Expiration: req.Expiration,
		Billing:    req.Billing,
	})
	if r.metrics != nil {
		r.metrics.GatewayLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}

	var resolution *Resolution
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fresh, err := r.applyTotals(ctx, tx, order.ID, req.NewTotal, difference)
		if err != nil {
			return err
		}

		pt, err := r.ledger.RecordPayment(ctx, tx, ledgerdomain.PaymentTransaction{
			CustomerID:  order.CustomerID,
			OrderID:     order.ID,
			Type:        ledgerdomain.TransactionTypeAdditionalPayment,
			Amount:      difference,
			Method:      req.Method,
			GatewayTxID: result.TransactionID,
			Status:      ledgerdomain.TransactionStatusCompleted,
			CardLast4:   req.CardLast4,
			CardBrand:   req.CardBrand,
		})
		if err != nil {
			return err
		}

		if _, err := r.ledger.RecordAccountTransaction(ctx, tx, ledgerdomain.AccountTransaction{
			CustomerID:    order.CustomerID,
			OrderID:       order.ID,
			Direction:     ledgerdomain.AccountDirectionCredit,
			ReferenceType: ledgerdomain.ReferenceTypePayment,
			Amount:        difference,
			ProcessedBy:   req.ProcessedBy,
			GatewayTxID:   result.TransactionID,
		}); err != nil {
			return err
		}

		adj, err := r.ledger.RecordAdjustment(ctx, tx, ledgerdomain.Adjustment{
			OrderID:          order.ID,
			CustomerID:       order.CustomerID,
			Type:             ledgerdomain.AdjustmentTypeAdditionalPayment,
			OriginalAmount:   order.TotalAmount,
			NewAmount:        req.NewTotal,
			DifferenceAmount: difference,
			PaymentMethod:    req.Method,
			Status:           ledgerdomain.AdjustmentStatusCompleted,
			PaymentTxID:      &pt.ID,
			Reason:           req.Reason,
		})
		if err != nil {
			return err
		}

		resolution = &Resolution{Adjustment: adj, Balance: balance.SnapshotFromTotals(fresh.TotalAmount, fresh.PaidAmount, fresh.PaymentStatus)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolution, nil
}

// sendPaymentLink records a pending adjustment and dispatches a
// payment-request notification. No money moves and paid_amount is untouched
// until the link is fulfilled.
func (r *resolver) sendPaymentLink(ctx context.Context, order orderdomain.Order, req ResolveRequest, difference float64) (*Resolution, error) {
	var resolution *Resolution
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fresh, err := r.applyTotals(ctx, tx, order.ID, req.NewTotal, 0)
		if err != nil {
			return err
		}

		adj, err := r.ledger.RecordAdjustment(ctx, tx, ledgerdomain.Adjustment{
			OrderID:          order.ID,
			CustomerID:       order.CustomerID,
			Type:             ledgerdomain.AdjustmentTypeAdditionalPayment,
			OriginalAmount:   order.TotalAmount,
			NewAmount:        req.NewTotal,
			DifferenceAmount: difference,
			Status:           ledgerdomain.AdjustmentStatusPending,
			Reason:           req.Reason,
		})
		if err != nil {
			return err
		}

		resolution = &Resolution{Adjustment: adj, Balance: balance.SnapshotFromTotals(fresh.TotalAmount, fresh.PaidAmount, fresh.PaymentStatus)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.notifier.Notify(ctx, notify.Event{
		Type:       notify.EventPaymentLinkSent,
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Payload: map[string]any{
			"adjustment_id": resolution.Adjustment.ID.String(),
			"amount_due":    difference,
		},
	})
	return resolution, nil
}

// useCredit settles the difference from the customer's credit line plus
// store credit, no gateway call. Store credit is consumed only for the part
// the credit line cannot cover.
func (r *resolver) useCredit(ctx context.Context, order orderdomain.Order, req ResolveRequest, difference float64) (*Resolution, error) {
	creditLimit, err := r.customerCreditLimit(ctx, order.CustomerID)
	if err != nil {
		return nil, err
	}
	storeCredit, err := r.ledger.StoreCreditBalance(ctx, order.CustomerID)
	if err != nil {
		return nil, err
	}
	if creditLimit+storeCredit+balance.AmountTolerance < difference {
		return nil, ErrInsufficientCredit
	}

	fromStoreCredit := round2(difference - creditLimit)
	if fromStoreCredit < 0 {
		fromStoreCredit = 0
	}

	var resolution *Resolution
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fresh, err := r.applyTotals(ctx, tx, order.ID, req.NewTotal, difference)
		if err != nil {
			return err
		}

		if fromStoreCredit > 0 {
			if _, err := r.ledger.RecordAccountTransaction(ctx, tx, ledgerdomain.AccountTransaction{
				CustomerID:    order.CustomerID,
				OrderID:       order.ID,
				Direction:     ledgerdomain.AccountDirectionDebit,
				ReferenceType: ledgerdomain.ReferenceTypeCreditMemo,
				Amount:        fromStoreCredit,
				ProcessedBy:   req.ProcessedBy,
			}); err != nil {
				return err
			}
		}

		adj, err := r.ledger.RecordAdjustment(ctx, tx, ledgerdomain.Adjustment{
			OrderID:          order.ID,
			CustomerID:       order.CustomerID,
			Type:             ledgerdomain.AdjustmentTypeAdditionalPayment,
			OriginalAmount:   order.TotalAmount,
			NewAmount:        req.NewTotal,
			DifferenceAmount: difference,
			Status:           ledgerdomain.AdjustmentStatusCompleted,
			Reason:           req.Reason,
		})
		if err != nil {
			return err
		}

		resolution = &Resolution{Adjustment: adj, Balance: balance.SnapshotFromTotals(fresh.TotalAmount, fresh.PaidAmount, fresh.PaymentStatus)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolution, nil
}

// issueCreditMemo grants store credit for the decrease. The money already
// received stays received; paid_amount is not reduced.
func (r *resolver) issueCreditMemo(ctx context.Context, order orderdomain.Order, req ResolveRequest, difference float64) (*Resolution, error) {
	magnitude := round2(-difference)

	var resolution *Resolution
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fresh, err := r.applyTotals(ctx, tx, order.ID, req.NewTotal, 0)
		if err != nil {
			return err
		}

		grant, err := r.ledger.RecordAccountTransaction(ctx, tx, ledgerdomain.AccountTransaction{
			CustomerID:    order.CustomerID,
			OrderID:       order.ID,
			Direction:     ledgerdomain.AccountDirectionCredit,
			ReferenceType: ledgerdomain.ReferenceTypeCreditMemo,
			Amount:        magnitude,
			ProcessedBy:   req.ProcessedBy,
		})
		if err != nil {
			return err
		}

		adj, err := r.ledger.RecordAdjustment(ctx, tx, ledgerdomain.Adjustment{
			OrderID:          order.ID,
			CustomerID:       order.CustomerID,
			Type:             ledgerdomain.AdjustmentTypeCreditMemoIssued,
			OriginalAmount:   order.TotalAmount,
			NewAmount:        req.NewTotal,
			DifferenceAmount: difference,
			Status:           ledgerdomain.AdjustmentStatusCompleted,
			CreditMemoID:     &grant.ID,
			Reason:           req.Reason,
		})
		if err != nil {
			return err
		}

		resolution = &Resolution{Adjustment: adj, Balance: balance.SnapshotFromTotals(fresh.TotalAmount, fresh.PaidAmount, fresh.PaymentStatus)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolution, nil
}

// processRefund returns the decrease through the gateway against the original
// capture.
func (r *resolver) processRefund(ctx context.Context, order orderdomain.Order, req ResolveRequest, difference float64) (*Resolution, error) {
	magnitude := round2(-difference)

	original, err := r.originalGatewayTransaction(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	degraded := false
	if original == nil {
		if !req.AllowUnreferenced {
			return nil, ErrRefundUnsafe
		}
		degraded = true
		r.log.Warn("refund attempted without original gateway transaction",
			zap.String("order_id", order.ID.String()),
			zap.Float64("amount", magnitude),
		)
	}

	method := ledgerdomain.PaymentMethodCardRefund
	client, err := r.gateways.ClientFor(ledgerdomain.PaymentMethodCard)
	if err != nil {
		return nil, err
	}

	refundReq := gatewaydomain.RefundRequest{
		Amount: magnitude,
		RefID:  uuid.NewString(),
	}
	if original != nil {
		refundReq.OriginalTransactionID = original.GatewayTxID
		refundReq.CardLast4 = original.CardLast4
	}

	start := time.Now()
	result, err := client.Refund(ctx, refundReq)
	if r.metrics != nil {
		r.metrics.GatewayLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}
	if r.metrics != nil {
		r.metrics.RefundsTotal.Inc()
	}

	var resolution *Resolution
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fresh, err := r.applyTotals(ctx, tx, order.ID, req.NewTotal, -magnitude)
		if err != nil {
			return err
		}

		pt, err := r.ledger.RecordPayment(ctx, tx, ledgerdomain.PaymentTransaction{
			CustomerID:  order.CustomerID,
			OrderID:     order.ID,
			Type:        ledgerdomain.TransactionTypeRefund,
			Amount:      magnitude,
			Method:      method,
			GatewayTxID: result.RefundID,
			Status:      ledgerdomain.TransactionStatusCompleted,
		})
		if err != nil {
			return err
		}

		if _, err := r.ledger.RecordAccountTransaction(ctx, tx, ledgerdomain.AccountTransaction{
			CustomerID:    order.CustomerID,
			OrderID:       order.ID,
			Direction:     ledgerdomain.AccountDirectionDebit,
			ReferenceType: ledgerdomain.ReferenceTypeRefund,
			Amount:        magnitude,
			ProcessedBy:   req.ProcessedBy,
			GatewayTxID:   result.RefundID,
		}); err != nil {
			return err
		}

		adj, err := r.ledger.RecordAdjustment(ctx, tx, ledgerdomain.Adjustment{
			OrderID:          order.ID,
			CustomerID:       order.CustomerID,
			Type:             ledgerdomain.AdjustmentTypePartialRefund,
			OriginalAmount:   order.TotalAmount,
			NewAmount:        req.NewTotal,
			DifferenceAmount: difference,
			PaymentMethod:    method,
			Status:           ledgerdomain.AdjustmentStatusCompleted,
			RefundID:         &pt.ID,
			PaymentTxID:      &pt.ID,
			Reason:           req.Reason,
		})
		if err != nil {
			return err
		}

		resolution = &Resolution{Adjustment: adj, Balance: balance.SnapshotFromTotals(fresh.TotalAmount, fresh.PaidAmount, fresh.PaymentStatus), Degraded: degraded}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolution, nil
}

func (r *resolver) FulfillPaymentLink(ctx context.Context, adjustmentID snowflake.ID, gatewayTxID string, processedBy string) (*Resolution, error) {
	adj, err := r.ledger.GetAdjustment(ctx, adjustmentID)
	if err != nil {
		return nil, err
	}
	if adj.Status != ledgerdomain.AdjustmentStatusPending {
		return nil, ledgerdomain.ErrAdjustmentNotPending
	}

	var resolution *Resolution
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fresh, err := r.applyPaidDelta(ctx, tx, adj.OrderID, adj.DifferenceAmount)
		if err != nil {
			return err
		}

		pt, err := r.ledger.RecordPayment(ctx, tx, ledgerdomain.PaymentTransaction{
			CustomerID:  adj.CustomerID,
			OrderID:     adj.OrderID,
			Type:        ledgerdomain.TransactionTypeAdditionalPayment,
			Amount:      adj.DifferenceAmount,
			Method:      ledgerdomain.PaymentMethodCard,
			GatewayTxID: gatewayTxID,
			Status:      ledgerdomain.TransactionStatusCompleted,
		})
		if err != nil {
			return err
		}

		if _, err := r.ledger.RecordAccountTransaction(ctx, tx, ledgerdomain.AccountTransaction{
			CustomerID:    adj.CustomerID,
			OrderID:       adj.OrderID,
			Direction:     ledgerdomain.AccountDirectionCredit,
			ReferenceType: ledgerdomain.ReferenceTypePayment,
			Amount:        adj.DifferenceAmount,
			ProcessedBy:   processedBy,
			GatewayTxID:   gatewayTxID,
		}); err != nil {
			return err
		}

		if err := r.ledger.CompleteAdjustment(ctx, tx, adj.ID, pt.ID); err != nil {
			return err
		}

		adj.Status = ledgerdomain.AdjustmentStatusCompleted
		adj.PaymentTxID = &pt.ID
		resolution = &Resolution{Adjustment: adj, Balance: balance.SnapshotFromTotals(fresh.TotalAmount, fresh.PaidAmount, fresh.PaymentStatus)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.activity.Record(ctx, processedBy, "adjustment.payment_link_fulfilled", "order", adj.OrderID, map[string]any{
		"adjustment_id": adj.ID.String(),
		"amount":        adj.DifferenceAmount,
	})
	return resolution, nil
}

// applyTotals sets the order's new total, bumps paid_amount by paidDelta,
// and re-derives payment status, all under the order row lock.
func (r *resolver) applyTotals(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, newTotal, paidDelta float64) (orderdomain.Order, error) {
	result := tx.WithContext(ctx).Exec(
		`UPDATE orders
		 SET total_amount = ?, paid_amount = paid_amount + ?, updated_at = ?
		 WHERE id = ?`,
		newTotal,
		paidDelta,
		time.Now().UTC(),
		orderID,
	)
	if result.Error != nil {
		return orderdomain.Order{}, result.Error
	}
	if result.RowsAffected == 0 {
		return orderdomain.Order{}, ErrOrderNotFound
	}

	return r.rederiveStatus(ctx, tx, orderID, &newTotal)
}

func (r *resolver) applyPaidDelta(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, paidDelta float64) (orderdomain.Order, error) {
	result := tx.WithContext(ctx).Exec(
		`UPDATE orders
		 SET paid_amount = paid_amount + ?, updated_at = ?
		 WHERE id = ?`,
		paidDelta,
		time.Now().UTC(),
		orderID,
	)
	if result.Error != nil {
		return orderdomain.Order{}, result.Error
	}
	if result.RowsAffected == 0 {
		return orderdomain.Order{}, ErrOrderNotFound
	}

	return r.rederiveStatus(ctx, tx, orderID, nil)
}

func (r *resolver) rederiveStatus(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, overrideTotal *float64) (orderdomain.Order, error) {
	var fresh orderdomain.Order
	if err := tx.WithContext(ctx).Preload("Items.Sizes").Preload("Items").
		Where("id = ?", orderID).First(&fresh).Error; err != nil {
		return orderdomain.Order{}, err
	}
	if overrideTotal != nil {
		fresh.TotalAmount = *overrideTotal
	}

	// The resolver's input is the edited total, already priced upstream,
	// so status derives from stored amounts rather than line items.
	status := balance.StatusFromAmounts(fresh.TotalAmount, fresh.PaidAmount, fresh.PaymentStatus)
	if err := tx.WithContext(ctx).Exec(
		`UPDATE orders SET payment_status = ? WHERE id = ?`,
		status, orderID,
	).Error; err != nil {
		return orderdomain.Order{}, err
	}
	fresh.PaymentStatus = status
	return fresh, nil
}

func (r *resolver) loadOrder(ctx context.Context, orderID snowflake.ID) (orderdomain.Order, error) {
	var order orderdomain.Order
	err := r.db.WithContext(ctx).
		Preload("Items.Sizes").
		Preload("Items").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return orderdomain.Order{}, ErrOrderNotFound
		}
		return orderdomain.Order{}, err
	}
	return order, nil
}

func (r *resolver) customerCreditLimit(ctx context.Context, customerID snowflake.ID) (float64, error) {
	var limit float64
	err := r.db.WithContext(ctx).Raw(
		`SELECT COALESCE(credit_limit, 0) FROM customers WHERE id = ?`,
		customerID,
	).Scan(&limit).Error
	if err != nil {
		return 0, err
	}
	return limit, nil
}

// originalGatewayTransaction finds the most recent completed capture with a
// gateway reference for the order.
func (r *resolver) originalGatewayTransaction(ctx context.Context, orderID snowflake.ID) (*ledgerdomain.PaymentTransaction, error) {
	var pt ledgerdomain.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ? AND gateway_tx_id <> '' AND type <> ?",
			orderID,
			ledgerdomain.TransactionStatusCompleted,
			ledgerdomain.TransactionTypeRefund,
		).
		Order("created_at DESC").
		First(&pt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pt, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

var Module = fx.Module("adjustment.resolver",
	fx.Provide(NewResolver),
)
