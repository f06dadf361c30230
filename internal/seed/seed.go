// Package seed bootstraps the rows the payment core cannot run without.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	customerdomain "github.com/ninerx/paycore/internal/customer/domain"
	"github.com/ninerx/paycore/internal/inventory"
	invoicedomain "github.com/ninerx/paycore/internal/invoice/domain"
	orderdomain "github.com/ninerx/paycore/internal/order/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	demoCustomerEmail = "demo@paycore.local"
	demoOrderNumber   = "SO-100001"
)

// EnsureInvoiceSequence creates the counter row for the configured prefix if
// it does not exist yet. Concurrent startups race safely: the insert is
// idempotent on the prefix.
func EnsureInvoiceSequence(db *gorm.DB, node *snowflake.Node, prefix string) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	seq := invoicedomain.InvoiceSequence{
		ID:        node.Generate(),
		Prefix:    prefix,
		NextNo:    1,
		UpdatedAt: time.Now().UTC(),
	}
	return db.WithContext(ctx).
		Exec(`INSERT INTO invoice_sequences (id, prefix, next_no, updated_at) VALUES (?, ?, ?, ?) ON CONFLICT (prefix) DO NOTHING`,
			seq.ID, seq.Prefix, seq.NextNo, seq.UpdatedAt).Error
}

// EnsureDemoData seeds one customer, one unpaid order and its stock rows for
// local development.
func EnsureDemoData(db *gorm.DB, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		customer, err := ensureDemoCustomer(ctx, tx, node)
		if err != nil {
			return err
		}
		return ensureDemoOrder(ctx, tx, node, customer.ID)
	})
}

func ensureDemoCustomer(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (customerdomain.Customer, error) {
	var customer customerdomain.Customer
	err := tx.WithContext(ctx).Where("email = ?", demoCustomerEmail).First(&customer).Error
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return customer, err
	}

	now := time.Now().UTC()
	customer = customerdomain.Customer{
		ID:          node.Generate(),
		Name:        "Demo Customer",
		Email:       demoCustomerEmail,
		CreditLimit: 500,
		Metadata:    datatypes.JSONMap{"seeded": true},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.WithContext(ctx).Create(&customer).Error; err != nil {
		return customer, err
	}
	return customer, nil
}

func ensureDemoOrder(ctx context.Context, tx *gorm.DB, node *snowflake.Node, customerID snowflake.ID) error {
	var existing orderdomain.Order
	err := tx.WithContext(ctx).Where("order_number = ?", demoOrderNumber).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := time.Now().UTC()
	productID := node.Generate()

	size := inventory.ProductSize{
		ID:        node.Generate(),
		ProductID: productID,
		Size:      "M",
		Stock:     100,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&size).Error; err != nil {
		return err
	}

	order := orderdomain.Order{
		ID:            node.Generate(),
		OrderNumber:   demoOrderNumber,
		CustomerID:    customerID,
		ShippingCost:  10,
		TaxAmount:     7.5,
		TotalAmount:   117.5,
		PaymentStatus: orderdomain.PaymentStatusUnpaid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := tx.WithContext(ctx).Create(&order).Error; err != nil {
		return err
	}

	item := orderdomain.OrderItem{
		ID:        node.Generate(),
		OrderID:   order.ID,
		ProductID: productID,
		Name:      "Demo Tee",
		CreatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&item).Error; err != nil {
		return err
	}

	qty := orderdomain.SizeQuantity{
		ID:            node.Generate(),
		OrderItemID:   item.ID,
		ProductSizeID: size.ID,
		Size:          "M",
		Quantity:      4,
		UnitPrice:     25,
	}
	return tx.WithContext(ctx).Create(&qty).Error
}
