// Package notify is the fire-and-forget notification hook. Events are
// persisted first, then dispatch is attempted; failures are logged and never
// block the financial write path.
package notify

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	EventPaymentLinkSent = "payment.link_sent"
	EventOrderPaid       = "order.paid"
	EventInvoiceCreated  = "invoice.created"
)

// Event is one notification to a customer or internal channel.
type Event struct {
	Type       string
	OrderID    snowflake.ID
	CustomerID snowflake.ID
	Payload    map[string]any
}

// NotificationEvent is the persisted form of an Event.
type NotificationEvent struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	Type       string            `gorm:"type:text;not null;index"`
	OrderID    snowflake.ID      `gorm:"not null;index"`
	CustomerID snowflake.ID      `gorm:"not null;index"`
	Payload    datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (NotificationEvent) TableName() string { return "notification_events" }

// Hook dispatches notifications best-effort.
type Hook interface {
	Notify(ctx context.Context, event Event)
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type hook struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewHook(p Params) Hook {
	return &hook{
		db:    p.DB,
		log:   p.Log.Named("notify.hook"),
		genID: p.GenID,
	}
}

func (h *hook) Notify(ctx context.Context, event Event) {
	record := NotificationEvent{
		ID:         h.genID.Generate(),
		Type:       event.Type,
		OrderID:    event.OrderID,
		CustomerID: event.CustomerID,
		Payload:    datatypes.JSONMap(event.Payload),
		CreatedAt:  time.Now().UTC(),
	}
	if record.Payload == nil {
		record.Payload = datatypes.JSONMap{}
	}

	if err := h.db.WithContext(ctx).Create(&record).Error; err != nil {
		h.log.Warn("notification dropped",
			zap.String("type", event.Type),
			zap.String("order_id", event.OrderID.String()),
			zap.Error(err),
		)
		return
	}

	h.log.Info("notification dispatched",
		zap.String("type", event.Type),
		zap.String("order_id", event.OrderID.String()),
	)
}

var Module = fx.Module("notify",
	fx.Provide(NewHook),
)
