package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/ninerx/paycore/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("ledger.service"),
		genID: p.GenID,
	}
}

func (s *Service) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

// RecordPayment appends a payment transaction row. Rows are the
// audit-of-record for money movement and are never updated.
func (s *Service) RecordPayment(ctx context.Context, tx *gorm.DB, pt ledgerdomain.PaymentTransaction) (ledgerdomain.PaymentTransaction, error) {
	if pt.CustomerID == 0 {
		return ledgerdomain.PaymentTransaction{}, ledgerdomain.ErrInvalidCustomer
	}
	if pt.OrderID == 0 {
		return ledgerdomain.PaymentTransaction{}, ledgerdomain.ErrInvalidOrder
	}
	if pt.Amount <= 0 {
		return ledgerdomain.PaymentTransaction{}, ledgerdomain.ErrInvalidAmount
	}

	pt.ID = s.genID.Generate()
	pt.CreatedAt = time.Now().UTC()
	if err := s.conn(tx).WithContext(ctx).Create(&pt).Error; err != nil {
		return ledgerdomain.PaymentTransaction{}, err
	}
	return pt, nil
}

func (s *Service) RecordAccountTransaction(ctx context.Context, tx *gorm.DB, at ledgerdomain.AccountTransaction) (ledgerdomain.AccountTransaction, error) {
	if at.CustomerID == 0 {
		return ledgerdomain.AccountTransaction{}, ledgerdomain.ErrInvalidCustomer
	}
	if at.Amount <= 0 {
		return ledgerdomain.AccountTransaction{}, ledgerdomain.ErrInvalidAmount
	}

	at.ID = s.genID.Generate()
	at.CreatedAt = time.Now().UTC()
	if err := s.conn(tx).WithContext(ctx).Create(&at).Error; err != nil {
		return ledgerdomain.AccountTransaction{}, err
	}
	return at, nil
}

func (s *Service) RecordAdjustment(ctx context.Context, tx *gorm.DB, adj ledgerdomain.Adjustment) (ledgerdomain.Adjustment, error) {
	if adj.OrderID == 0 {
		return ledgerdomain.Adjustment{}, ledgerdomain.ErrInvalidOrder
	}
	if adj.CustomerID == 0 {
		return ledgerdomain.Adjustment{}, ledgerdomain.ErrInvalidCustomer
	}

	adj.ID = s.genID.Generate()
	now := time.Now().UTC()
	adj.CreatedAt = now
	adj.UpdatedAt = now
	if err := s.conn(tx).WithContext(ctx).Create(&adj).Error; err != nil {
		return ledgerdomain.Adjustment{}, err
	}
	return adj, nil
}

// CompleteAdjustment flips a pending adjustment to completed exactly once.
// The guarded WHERE keeps two concurrent fulfillments from both succeeding.
func (s *Service) CompleteAdjustment(ctx context.Context, tx *gorm.DB, id snowflake.ID, paymentTxID snowflake.ID) error {
	var txRef *snowflake.ID
	if paymentTxID != 0 {
		txRef = &paymentTxID
	}
	result := s.conn(tx).WithContext(ctx).
		Model(&ledgerdomain.Adjustment{}).
		Where("id = ? AND status = ?", id, ledgerdomain.AdjustmentStatusPending).
		Updates(map[string]any{
			"status":        ledgerdomain.AdjustmentStatusCompleted,
			"payment_tx_id": txRef,
			"updated_at":    time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ledgerdomain.ErrAdjustmentNotPending
	}
	return nil
}

// StoreCreditBalance derives the customer's store credit from account
// postings: sum(credits) - sum(debits).
func (s *Service) StoreCreditBalance(ctx context.Context, customerID snowflake.ID) (float64, error) {
	if customerID == 0 {
		return 0, ledgerdomain.ErrInvalidCustomer
	}

	var balance float64
	err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(CASE WHEN direction = 'credit' THEN amount ELSE -amount END), 0)
		 FROM account_transactions
		 WHERE customer_id = ? AND reference_type = ?`,
		customerID,
		ledgerdomain.ReferenceTypeCreditMemo,
	).Scan(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// QueueReconciliation records a captured-but-unrecorded payment. This runs
// outside the failed transaction and must not itself fail silently.
func (s *Service) QueueReconciliation(ctx context.Context, item ledgerdomain.ReconciliationItem) error {
	item.ID = s.genID.Generate()
	item.CreatedAt = time.Now().UTC()

	err := s.db.WithContext(ctx).Create(&item).Error
	if err != nil {
		// Last resort: the log line is the only remaining record.
		s.log.Error("failed to queue reconciliation item",
			zap.String("order_id", item.OrderID.String()),
			zap.String("gateway_tx_id", item.GatewayTxID),
			zap.Float64("amount", item.Amount),
			zap.String("failed_step", item.FailedStep),
			zap.Error(err),
		)
		return err
	}

	s.log.Warn("reconciliation item queued",
		zap.String("order_id", item.OrderID.String()),
		zap.String("gateway_tx_id", item.GatewayTxID),
		zap.String("failed_step", item.FailedStep),
	)
	return nil
}

func (s *Service) ListReconciliationItems(ctx context.Context, unresolvedOnly bool) ([]ledgerdomain.ReconciliationItem, error) {
	query := s.db.WithContext(ctx).Order("created_at ASC")
	if unresolvedOnly {
		query = query.Where("resolved_at IS NULL")
	}

	var items []ledgerdomain.ReconciliationItem
	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Service) ListAdjustments(ctx context.Context, orderID snowflake.ID) ([]ledgerdomain.Adjustment, error) {
	if orderID == 0 {
		return nil, ledgerdomain.ErrInvalidOrder
	}

	var adjustments []ledgerdomain.Adjustment
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&adjustments).Error
	if err != nil {
		return nil, err
	}
	return adjustments, nil
}

func (s *Service) GetAdjustment(ctx context.Context, id snowflake.ID) (ledgerdomain.Adjustment, error) {
	var adj ledgerdomain.Adjustment
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&adj).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledgerdomain.Adjustment{}, ledgerdomain.ErrAdjustmentNotFound
		}
		return ledgerdomain.Adjustment{}, err
	}
	return adj, nil
}
