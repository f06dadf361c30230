// Package capture drives the checkout payment sequence: gateway capture,
// then the durable financial writes, then best-effort side effects.
package capture

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/ninerx/paycore/internal/activity"
	"github.com/ninerx/paycore/internal/balance"
	"github.com/ninerx/paycore/internal/config"
	"github.com/ninerx/paycore/internal/gateway"
	gatewaydomain "github.com/ninerx/paycore/internal/gateway/domain"
	"github.com/ninerx/paycore/internal/inventory"
	invoicedomain "github.com/ninerx/paycore/internal/invoice/domain"
	ledgerdomain "github.com/ninerx/paycore/internal/ledger/domain"
	"github.com/ninerx/paycore/internal/metrics"
	"github.com/ninerx/paycore/internal/notify"
	orderdomain "github.com/ninerx/paycore/internal/order/domain"
	"github.com/ninerx/paycore/internal/sequence"
	"github.com/ninerx/paycore/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Orchestrator is the capture entrypoint exposed to the API layer.
type Orchestrator interface {
	Capture(ctx context.Context, req Request) (*Receipt, error)
	// ClearAttempt resolves a poisoned attempt after an operator confirms
	// the gateway outcome of a timed-out capture.
	ClearAttempt(orderID snowflake.ID, amount float64)
	GetBalance(ctx context.Context, orderID snowflake.ID) (balance.Balance, error)
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Cfg       config.Config
	Gateways  gateway.Source
	Ledger    ledgerdomain.Service
	Allocator sequence.Allocator
	Inventory inventory.Service
	Activity  activity.Service
	Notifier  notify.Hook
	Metrics   *metrics.Metrics `optional:"true"`
}

type orchestrator struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	cfg       config.Config
	gateways  gateway.Source
	ledger    ledgerdomain.Service
	allocator sequence.Allocator
	inventory inventory.Service
	activity  activity.Service
	notifier  notify.Hook
	metrics   *metrics.Metrics
	attempts  *attempts
}

func NewOrchestrator(p Params) Orchestrator {
	return &orchestrator{
		db:        p.DB,
		log:       p.Log.Named("capture.orchestrator"),
		genID:     p.GenID,
		cfg:       p.Cfg,
		gateways:  p.Gateways,
		ledger:    p.Ledger,
		allocator: p.Allocator,
		inventory: p.Inventory,
		activity:  p.Activity,
		notifier:  p.Notifier,
		metrics:   p.Metrics,
		attempts:  newAttempts(),
	}
}

func (o *orchestrator) Capture(ctx context.Context, req Request) (*Receipt, error) {
	order, err := o.loadOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	if err := validate(order, req); err != nil {
		return nil, err
	}

	key, err := o.attempts.begin(req.OrderID, req.Amount)
	if err != nil {
		return nil, err
	}

	client, err := o.gateways.ClientFor(req.Method)
	if err != nil {
		o.attempts.finish(key)
		return nil, err
	}

	result, err := o.callGateway(ctx, client, req)
	if err != nil {
		if errors.Is(err, gatewaydomain.ErrGatewayTimeout) {
			// Unknown outcome: poison the attempt so an identical
			// retry is rejected instead of double-charging.
			o.attempts.markUnresolved(key)
			return nil, err
		}
		o.attempts.finish(key)
		if decline, ok := gatewaydomain.AsDecline(err); ok {
			o.recordDecline(ctx, order, req, decline)
			return nil, err
		}
		return nil, err
	}
	defer o.attempts.finish(key)

	receipt, ledgerErr := o.persist(ctx, order, req, result)
	if ledgerErr != nil {
		// Money moved. This must never surface as a payment failure:
		// queue it for manual reconciliation and hand back a receipt.
		o.queueReconciliation(ctx, order, req, result, ledgerErr)
		return &Receipt{
			OrderID:        order.ID,
			TransactionID:  result.TransactionID,
			AuthCode:       result.AuthCode,
			Amount:         req.Amount,
			Method:         req.Method,
			Reconciliation: true,
		}, nil
	}

	o.sideEffects(ctx, order, req, receipt)
	return receipt, nil
}

func (o *orchestrator) ClearAttempt(orderID snowflake.ID, amount float64) {
	o.attempts.clear(orderID, amount)
}

func (o *orchestrator) GetBalance(ctx context.Context, orderID snowflake.ID) (balance.Balance, error) {
	order, err := o.loadOrder(ctx, orderID)
	if err != nil {
		return balance.Balance{}, err
	}
	return balance.Snapshot(order), nil
}

func (o *orchestrator) loadOrder(ctx context.Context, orderID snowflake.ID) (orderdomain.Order, error) {
	var order orderdomain.Order
	err := o.db.WithContext(ctx).
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

func validate(order orderdomain.Order, req Request) error {
	if order.Void {
		return ErrOrderVoid
	}
	if req.Amount <= 0 {
		return validationErr("amount", "must be greater than zero")
	}
	// Over-collection requires an explicit adjustment, never a capture.
	if req.Amount > balance.Due(order)+balance.AmountTolerance {
		return validationErr("amount", "exceeds the order balance due")
	}
	switch req.Method {
	case ledgerdomain.PaymentMethodCard, ledgerdomain.PaymentMethodACH, ledgerdomain.PaymentMethodManual:
	default:
		return validationErr("method", "unsupported payment method")
	}
	if req.Method == ledgerdomain.PaymentMethodCard {
		if strings.TrimSpace(req.CardToken) == "" {
			return validationErr("card_token", "required for card payments")
		}
		if strings.TrimSpace(req.Billing.FirstName) == "" || strings.TrimSpace(req.Billing.LastName) == "" {
			return validationErr("billing", "billing name is required")
		}
		if strings.TrimSpace(req.Billing.Zip) == "" {
			return validationErr("billing.zip", "billing zip is required")
		}
	}
	return nil
}

func (o *orchestrator) callGateway(ctx context.Context, client gatewaydomain.Client, req Request) (*gatewaydomain.Result, error) {
	start := time.Now()
	result, err := client.AuthorizeCapture(ctx, gatewaydomain.Request{
		Amount:     req.Amount,
		Method:     string(req.Method),
		RefID:      uuid.NewString(),
		CardToken:  req.CardToken,
		CardLast4:  req.CardLast4,
		CardBrand:  req.CardBrand,
		Expiration: req.Expiration,
		Billing:    req.Billing,
	})
	if o.metrics != nil {
		o.metrics.GatewayLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if decline, ok := gatewaydomain.AsDecline(err); ok && o.metrics != nil {
			o.metrics.DeclinesTotal.WithLabelValues(decline.Code).Inc()
		}
		return nil, err
	}
	if o.metrics != nil {
		o.metrics.CapturesTotal.WithLabelValues(string(req.Method)).Inc()
	}
	return result, nil
}

// recordDecline keeps an audit row for declined attempts. Best-effort: a
// decline leaves no required ledger state behind.
func (o *orchestrator) recordDecline(ctx context.Context, order orderdomain.Order, req Request, decline *gatewaydomain.DeclineError) {
	_, err := o.ledger.RecordPayment(ctx, nil, ledgerdomain.PaymentTransaction{
		CustomerID: order.CustomerID,
		OrderID:    order.ID,
		Type:       ledgerdomain.TransactionTypeAuthCapture,
		Amount:     req.Amount,
		Method:     req.Method,
		Status:     ledgerdomain.TransactionStatusFailed,
		CardLast4:  req.CardLast4,
		CardBrand:  req.CardBrand,
	})
	if err != nil {
		o.log.Warn("declined-attempt audit write failed",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
	}
	o.log.Info("payment declined",
		zap.String("order_id", order.ID.String()),
		zap.String("code", decline.Code),
		zap.String("reason", decline.Reason),
	)
}

// persist runs the durable financial writes as one transaction: payment
// transaction, order paid_amount/status, invoice upsert, account credit.
func (o *orchestrator) persist(ctx context.Context, order orderdomain.Order, req Request, result *gatewaydomain.Result) (*Receipt, error) {
	receipt := &Receipt{
		OrderID:       order.ID,
		TransactionID: result.TransactionID,
		AuthCode:      result.AuthCode,
		Amount:        req.Amount,
		Method:        req.Method,
	}

	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The guarded increment also takes the order row lock, which
		// serializes racing captures (and their invoice upserts) on
		// the same order.
		updated := tx.WithContext(ctx).Exec(
			`UPDATE orders
			 SET paid_amount = paid_amount + ?, updated_at = ?
			 WHERE id = ? AND void = ?`,
			req.Amount,
			time.Now().UTC(),
			order.ID,
			false,
		)
		if updated.Error != nil {
			return updated.Error
		}
		if updated.RowsAffected == 0 {
			return ErrOrderVoid
		}

		var fresh orderdomain.Order
		if err := tx.WithContext(ctx).Preload("Items.Sizes").Preload("Items").
			Where("id = ?", order.ID).First(&fresh).Error; err != nil {
			return err
		}

		status := balance.DeriveStatus(fresh)
		if err := tx.WithContext(ctx).Exec(
			`UPDATE orders SET payment_status = ? WHERE id = ?`,
			status, order.ID,
		).Error; err != nil {
			return err
		}
		fresh.PaymentStatus = status

		pt, err := o.ledger.RecordPayment(ctx, tx, ledgerdomain.PaymentTransaction{
			CustomerID:  order.CustomerID,
			OrderID:     order.ID,
			Type:        ledgerdomain.TransactionTypeAuthCapture,
			Amount:      req.Amount,
			Method:      req.Method,
			GatewayTxID: result.TransactionID,
			Status:      ledgerdomain.TransactionStatusCompleted,
			CardLast4:   req.CardLast4,
			CardBrand:   req.CardBrand,
		})
		if err != nil {
			return err
		}

		invoice, created, err := o.upsertInvoice(ctx, tx, fresh, req, result)
		if err != nil {
			return err
		}
		receipt.InvoiceID = invoice.ID
		receipt.InvoiceNumber = invoice.InvoiceNumber
		receipt.InvoiceCreated = created

		if err := tx.WithContext(ctx).Exec(
			`UPDATE payment_transactions SET invoice_id = ? WHERE id = ?`,
			invoice.ID, pt.ID,
		).Error; err != nil {
			return err
		}

		if _, err := o.ledger.RecordAccountTransaction(ctx, tx, ledgerdomain.AccountTransaction{
			CustomerID:    order.CustomerID,
			OrderID:       order.ID,
			Direction:     ledgerdomain.AccountDirectionCredit,
			ReferenceType: ledgerdomain.ReferenceTypePayment,
			Amount:        req.Amount,
			ProcessedBy:   req.ProcessedBy,
			GatewayTxID:   result.TransactionID,
		}); err != nil {
			return err
		}

		receipt.Balance = balance.Snapshot(fresh)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// upsertInvoice creates the order's invoice on the first successful payment
// and updates it in place on later ones.
func (o *orchestrator) upsertInvoice(ctx context.Context, tx *gorm.DB, order orderdomain.Order, req Request, result *gatewaydomain.Result) (invoicedomain.Invoice, bool, error) {
	var existing invoicedomain.Invoice
	err := tx.WithContext(ctx).Where("order_id = ?", order.ID).First(&existing).Error
	if err == nil {
		return o.updateInvoice(ctx, tx, existing, order, req, result)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return invoicedomain.Invoice{}, false, err
	}

	number, err := o.allocator.AllocateTx(ctx, tx, o.cfg.InvoicePrefix)
	if err != nil {
		return invoicedomain.Invoice{}, false, err
	}

	now := time.Now().UTC()
	due := now.AddDate(0, 0, 30)
	invoice := invoicedomain.Invoice{
		ID:            o.genID.Generate(),
		InvoiceNumber: number,
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		Amount:        balance.Subtotal(order.Items),
		TaxAmount:     order.TaxAmount,
		TotalAmount:   balance.EffectiveTotal(order),
		PaidAmount:    order.PaidAmount,
		PaymentStatus: order.PaymentStatus,
		PaymentMethod: string(req.Method),
		TransactionID: result.TransactionID,
		DueAt:         &due,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := tx.WithContext(ctx).Create(&invoice).Error; err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return invoicedomain.Invoice{}, false, err
		}
		// Lost the unique-order race: a concurrent capture created the
		// invoice between our read and this insert. Update its row.
		if err := tx.WithContext(ctx).Where("order_id = ?", order.ID).First(&existing).Error; err != nil {
			return invoicedomain.Invoice{}, false, err
		}
		return o.updateInvoice(ctx, tx, existing, order, req, result)
	}
	return invoice, true, nil
}

func (o *orchestrator) updateInvoice(ctx context.Context, tx *gorm.DB, existing invoicedomain.Invoice, order orderdomain.Order, req Request, result *gatewaydomain.Result) (invoicedomain.Invoice, bool, error) {
	update := tx.WithContext(ctx).Model(&invoicedomain.Invoice{}).
		Where("id = ?", existing.ID).
		Updates(map[string]any{
			"paid_amount":    order.PaidAmount,
			"payment_status": order.PaymentStatus,
			"payment_method": string(req.Method),
			"transaction_id": result.TransactionID,
			"updated_at":     time.Now().UTC(),
		})
	if update.Error != nil {
		return invoicedomain.Invoice{}, false, update.Error
	}
	existing.PaidAmount = order.PaidAmount
	existing.PaymentStatus = order.PaymentStatus
	return existing, false, nil
}

func (o *orchestrator) queueReconciliation(ctx context.Context, order orderdomain.Order, req Request, result *gatewaydomain.Result, cause error) {
	if o.metrics != nil {
		o.metrics.ReconciliationQueued.Inc()
	}
	_ = o.ledger.QueueReconciliation(ctx, ledgerdomain.ReconciliationItem{
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		GatewayTxID: result.TransactionID,
		Amount:      req.Amount,
		FailedStep:  "persist_financial_records",
		Detail: map[string]any{
			"error":  cause.Error(),
			"method": string(req.Method),
		},
	})
}

// sideEffects runs after commit: stock decrement, activity log, notification.
// Failures here never roll back the payment.
func (o *orchestrator) sideEffects(ctx context.Context, order orderdomain.Order, req Request, receipt *Receipt) {
	o.inventory.DecrementForOrder(ctx, order)

	o.activity.Record(ctx, req.ProcessedBy, "payment.captured", "order", order.ID, map[string]any{
		"amount":         req.Amount,
		"method":         string(req.Method),
		"transaction_id": receipt.TransactionID,
	})

	if receipt.InvoiceCreated {
		o.notifier.Notify(ctx, notify.Event{
			Type:       notify.EventInvoiceCreated,
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			Payload: map[string]any{
				"invoice_number": receipt.InvoiceNumber,
			},
		})
	}
	if receipt.Balance.Status == orderdomain.PaymentStatusPaid {
		o.notifier.Notify(ctx, notify.Event{
			Type:       notify.EventOrderPaid,
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			Payload: map[string]any{
				"order_number": order.OrderNumber,
				"total":        receipt.Balance.Total,
			},
		})
	}
}
