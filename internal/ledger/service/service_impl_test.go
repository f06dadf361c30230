package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/ninerx/paycore/internal/ledger/domain"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupLedger(t *testing.T) (ledgerdomain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	prepareLedgerSchema(t, db)

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	svc := NewService(Params{DB: db, Log: zap.NewNop(), GenID: node})
	return svc, db, node
}

func prepareLedgerSchema(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := db.Exec(`CREATE TABLE payment_transactions (
		id BIGINT PRIMARY KEY,
		customer_id BIGINT NOT NULL,
		order_id BIGINT NOT NULL,
		invoice_id BIGINT,
		type TEXT NOT NULL,
		amount REAL NOT NULL,
		method TEXT NOT NULL,
		gateway_tx_id TEXT,
		status TEXT NOT NULL,
		card_last4 TEXT,
		card_brand TEXT,
		created_at TIMESTAMP NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create payment_transactions: %v", err)
	}
	if err := db.Exec(`CREATE TABLE account_transactions (
		id BIGINT PRIMARY KEY,
		customer_id BIGINT NOT NULL,
		order_id BIGINT NOT NULL,
		direction TEXT NOT NULL,
		reference_type TEXT NOT NULL,
		amount REAL NOT NULL,
		processed_by TEXT,
		gateway_tx_id TEXT,
		created_at TIMESTAMP NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create account_transactions: %v", err)
	}
	if err := db.Exec(`CREATE TABLE adjustments (
		id BIGINT PRIMARY KEY,
		order_id BIGINT NOT NULL,
		customer_id BIGINT NOT NULL,
		type TEXT NOT NULL,
		original_amount REAL NOT NULL,
		new_amount REAL NOT NULL,
		difference_amount REAL NOT NULL,
		payment_method TEXT,
		status TEXT NOT NULL,
		credit_memo_id BIGINT,
		refund_id BIGINT,
		payment_tx_id BIGINT,
		reason TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create adjustments: %v", err)
	}
	if err := db.Exec(`CREATE TABLE reconciliation_items (
		id BIGINT PRIMARY KEY,
		order_id BIGINT NOT NULL,
		customer_id BIGINT NOT NULL,
		gateway_tx_id TEXT NOT NULL,
		amount REAL NOT NULL,
		failed_step TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '{}',
		resolved_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create reconciliation_items: %v", err)
	}
}

func TestRecordPaymentValidation(t *testing.T) {
	svc, _, node := setupLedger(t)
	ctx := context.Background()

	_, err := svc.RecordPayment(ctx, nil, ledgerdomain.PaymentTransaction{
		OrderID: node.Generate(),
		Amount:  10,
	})
	if err != ledgerdomain.ErrInvalidCustomer {
		t.Fatalf("expected ErrInvalidCustomer, got %v", err)
	}

	_, err = svc.RecordPayment(ctx, nil, ledgerdomain.PaymentTransaction{
		CustomerID: node.Generate(),
		Amount:     10,
	})
	if err != ledgerdomain.ErrInvalidOrder {
		t.Fatalf("expected ErrInvalidOrder, got %v", err)
	}

	_, err = svc.RecordPayment(ctx, nil, ledgerdomain.PaymentTransaction{
		CustomerID: node.Generate(),
		OrderID:    node.Generate(),
		Amount:     0,
	})
	if err != ledgerdomain.ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestStoreCreditBalanceCountsOnlyCreditMemoPostings(t *testing.T) {
	svc, _, node := setupLedger(t)
	ctx := context.Background()
	customerID := node.Generate()
	orderID := node.Generate()

	// A regular payment credit must not inflate store credit.
	if _, err := svc.RecordAccountTransaction(ctx, nil, ledgerdomain.AccountTransaction{
		CustomerID:    customerID,
		OrderID:       orderID,
		Direction:     ledgerdomain.AccountDirectionCredit,
		ReferenceType: ledgerdomain.ReferenceTypePayment,
		Amount:        100,
	}); err != nil {
		t.Fatalf("record payment credit: %v", err)
	}

	// Credit memo grant of 50, then 20 consumed.
	if _, err := svc.RecordAccountTransaction(ctx, nil, ledgerdomain.AccountTransaction{
		CustomerID:    customerID,
		OrderID:       orderID,
		Direction:     ledgerdomain.AccountDirectionCredit,
		ReferenceType: ledgerdomain.ReferenceTypeCreditMemo,
		Amount:        50,
	}); err != nil {
		t.Fatalf("record credit memo grant: %v", err)
	}
	if _, err := svc.RecordAccountTransaction(ctx, nil, ledgerdomain.AccountTransaction{
		CustomerID:    customerID,
		OrderID:       orderID,
		Direction:     ledgerdomain.AccountDirectionDebit,
		ReferenceType: ledgerdomain.ReferenceTypeCreditMemo,
		Amount:        20,
	}); err != nil {
		t.Fatalf("record credit memo debit: %v", err)
	}

	got, err := svc.StoreCreditBalance(ctx, customerID)
	if err != nil {
		t.Fatalf("store credit balance: %v", err)
	}
	if got != 30 {
		t.Fatalf("expected store credit 30.00, got %.2f", got)
	}
}

func TestCompleteAdjustmentExactlyOnce(t *testing.T) {
	svc, _, node := setupLedger(t)
	ctx := context.Background()

	adj, err := svc.RecordAdjustment(ctx, nil, ledgerdomain.Adjustment{
		OrderID:          node.Generate(),
		CustomerID:       node.Generate(),
		Type:             ledgerdomain.AdjustmentTypeAdditionalPayment,
		OriginalAmount:   100,
		NewAmount:        130,
		DifferenceAmount: 30,
		Status:           ledgerdomain.AdjustmentStatusPending,
	})
	if err != nil {
		t.Fatalf("record adjustment: %v", err)
	}

	paymentTxID := node.Generate()
	if err := svc.CompleteAdjustment(ctx, nil, adj.ID, paymentTxID); err != nil {
		t.Fatalf("complete adjustment: %v", err)
	}

	if err := svc.CompleteAdjustment(ctx, nil, adj.ID, paymentTxID); err != ledgerdomain.ErrAdjustmentNotPending {
		t.Fatalf("expected ErrAdjustmentNotPending on second completion, got %v", err)
	}

	stored, err := svc.GetAdjustment(ctx, adj.ID)
	if err != nil {
		t.Fatalf("get adjustment: %v", err)
	}
	if stored.Status != ledgerdomain.AdjustmentStatusCompleted {
		t.Fatalf("expected completed, got %s", stored.Status)
	}
	if stored.PaymentTxID == nil || *stored.PaymentTxID != paymentTxID {
		t.Fatalf("expected payment tx reference %s, got %v", paymentTxID, stored.PaymentTxID)
	}
}

func TestQueueReconciliationAndList(t *testing.T) {
	svc, db, node := setupLedger(t)
	ctx := context.Background()
	orderID := node.Generate()

	if err := svc.QueueReconciliation(ctx, ledgerdomain.ReconciliationItem{
		OrderID:     orderID,
		CustomerID:  node.Generate(),
		GatewayTxID: "tx-123",
		Amount:      75,
		FailedStep:  "persist_financial_records",
		Detail:      map[string]any{"error": "write failed"},
	}); err != nil {
		t.Fatalf("queue reconciliation: %v", err)
	}

	items, err := svc.ListReconciliationItems(ctx, true)
	if err != nil {
		t.Fatalf("list reconciliation: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 unresolved item, got %d", len(items))
	}
	if items[0].GatewayTxID != "tx-123" {
		t.Fatalf("expected gateway tx tx-123, got %s", items[0].GatewayTxID)
	}

	if err := db.Exec(`UPDATE reconciliation_items SET resolved_at = CURRENT_TIMESTAMP WHERE order_id = ?`, orderID).Error; err != nil {
		t.Fatalf("resolve item: %v", err)
	}

	items, err = svc.ListReconciliationItems(ctx, true)
	if err != nil {
		t.Fatalf("list reconciliation: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no unresolved items, got %d", len(items))
	}

	items, err = svc.ListReconciliationItems(ctx, false)
	if err != nil {
		t.Fatalf("list all reconciliation: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item including resolved, got %d", len(items))
	}
}

func TestGetAdjustmentNotFound(t *testing.T) {
	svc, _, node := setupLedger(t)

	_, err := svc.GetAdjustment(context.Background(), node.Generate())
	if err != ledgerdomain.ErrAdjustmentNotFound {
		t.Fatalf("expected ErrAdjustmentNotFound, got %v", err)
	}
}
