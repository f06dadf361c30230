package migration

import (
	"github.com/bwmarrin/snowflake"
	"github.com/ninerx/paycore/internal/activity"
	"github.com/ninerx/paycore/internal/config"
	customerdomain "github.com/ninerx/paycore/internal/customer/domain"
	"github.com/ninerx/paycore/internal/inventory"
	invoicedomain "github.com/ninerx/paycore/internal/invoice/domain"
	ledgerdomain "github.com/ninerx/paycore/internal/ledger/domain"
	"github.com/ninerx/paycore/internal/notify"
	orderdomain "github.com/ninerx/paycore/internal/order/domain"
	"github.com/ninerx/paycore/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, node *snowflake.Node, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// sqlite is for local development only; AutoMigrate keeps it
			// usable without the postgres migration driver.
			if err := conn.AutoMigrate(
				&customerdomain.Customer{},
				&orderdomain.Order{},
				&orderdomain.OrderItem{},
				&orderdomain.SizeQuantity{},
				&inventory.ProductSize{},
				&invoicedomain.Invoice{},
				&invoicedomain.InvoiceSequence{},
				&ledgerdomain.PaymentTransaction{},
				&ledgerdomain.AccountTransaction{},
				&ledgerdomain.Adjustment{},
				&ledgerdomain.ReconciliationItem{},
				&notify.NotificationEvent{},
				&activity.ActivityLog{},
			); err != nil {
				return err
			}
		}

		if err := seed.EnsureInvoiceSequence(conn, node, cfg.InvoicePrefix); err != nil {
			return err
		}
		if cfg.SeedDemoData {
			return seed.EnsureDemoData(conn, node)
		}
		return nil
	}),
)
