// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/ninerx/paycore/internal/order/domain"
)

// Invoice is the 1:1 billing record for an order. It is created lazily by the
// first successful payment and updated in place by later ones.
type Invoice struct {
	ID            snowflake.ID              `gorm:"primaryKey"`
	InvoiceNumber string                    `gorm:"type:text;not null;uniqueIndex"`
	OrderID       snowflake.ID              `gorm:"not null;uniqueIndex:ux_invoices_order"`
	CustomerID    snowflake.ID              `gorm:"not null;index"`
	Amount        float64                   `gorm:"not null;default:0"`
	TaxAmount     float64                   `gorm:"not null;default:0"`
	TotalAmount   float64                   `gorm:"not null;default:0"`
	PaidAmount    float64                   `gorm:"not null;default:0"`
	PaymentStatus orderdomain.PaymentStatus `gorm:"type:text;not null;default:'unpaid'"`
	PaymentMethod string                    `gorm:"type:text;not null"`
	TransactionID string                    `gorm:"type:text"`
	DueAt         *time.Time                `gorm:""`
	CreatedAt     time.Time                 `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time                 `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceSequence is the shared counter row behind invoice numbering, one row
// per prefix. NextNo is only ever advanced by a guarded update.
type InvoiceSequence struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Prefix    string       `gorm:"type:text;not null;uniqueIndex"`
	NextNo    int64        `gorm:"not null;default:1"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (InvoiceSequence) TableName() string { return "invoice_sequences" }
