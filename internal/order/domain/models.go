// Package domain contains persistence models for orders.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// PaymentStatus represents order payment lifecycle states.
type PaymentStatus string

const (
	PaymentStatusUnpaid      PaymentStatus = "unpaid"
	PaymentStatusPending     PaymentStatus = "pending"
	PaymentStatusPartialPaid PaymentStatus = "partial_paid"
	PaymentStatusPaid        PaymentStatus = "paid"
)

// Order is the financial record for one checkout. Orders are never deleted;
// Void is a terminal soft-state.
type Order struct {
	ID             snowflake.ID  `gorm:"primaryKey"`
	OrderNumber    string        `gorm:"type:text;not null;uniqueIndex"`
	CustomerID     snowflake.ID  `gorm:"not null;index"`
	ShippingCost   float64       `gorm:"not null;default:0"`
	TaxAmount      float64       `gorm:"not null;default:0"`
	DiscountAmount float64       `gorm:"not null;default:0"`
	TotalAmount    float64       `gorm:"not null;default:0"`
	PaidAmount     float64       `gorm:"not null;default:0"`
	PaymentStatus  PaymentStatus `gorm:"type:text;not null;default:'unpaid'"`
	Void           bool          `gorm:"not null;default:false"`

	// Purchase-order surcharges apply only while the PO is unaccepted.
	IsPurchaseOrder bool    `gorm:"not null;default:false"`
	POAccepted      bool    `gorm:"not null;default:false"`
	POHandlingFee   float64 `gorm:"not null;default:0"`
	POFreightFee    float64 `gorm:"not null;default:0"`

	EstimatedDelivery *time.Time `gorm:""`
	CreatedAt         time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`

	Items []OrderItem `gorm:"foreignKey:OrderID"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// OrderItem is one product line on an order, priced per size variant.
type OrderItem struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	OrderID   snowflake.ID `gorm:"not null;index"`
	ProductID snowflake.ID `gorm:"not null;index"`
	Name      string       `gorm:"type:text;not null"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`

	Sizes []SizeQuantity `gorm:"foreignKey:OrderItemID"`
}

// TableName sets the database table name.
func (OrderItem) TableName() string { return "order_items" }

// SizeQuantity is the per-size quantity and unit price of an order item.
type SizeQuantity struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	OrderItemID   snowflake.ID `gorm:"not null;index"`
	ProductSizeID snowflake.ID `gorm:"not null;index"`
	Size          string       `gorm:"type:text;not null"`
	Quantity      int64        `gorm:"not null"`
	UnitPrice     float64      `gorm:"not null"`
}

// TableName sets the database table name.
func (SizeQuantity) TableName() string { return "order_size_quantities" }
