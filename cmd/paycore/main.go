package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/ninerx/paycore/internal/activity"
	"github.com/ninerx/paycore/internal/adjustment"
	"github.com/ninerx/paycore/internal/capture"
	"github.com/ninerx/paycore/internal/config"
	"github.com/ninerx/paycore/internal/gateway"
	"github.com/ninerx/paycore/internal/inventory"
	"github.com/ninerx/paycore/internal/ledger"
	"github.com/ninerx/paycore/internal/logger"
	"github.com/ninerx/paycore/internal/metrics"
	"github.com/ninerx/paycore/internal/migration"
	"github.com/ninerx/paycore/internal/notify"
	"github.com/ninerx/paycore/internal/sequence"
	"github.com/ninerx/paycore/internal/server"
	"github.com/ninerx/paycore/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		metrics.Module,
		migration.Module,

		// Payment core domains
		sequence.Module,
		ledger.Module,
		gateway.Module,
		inventory.Module,
		notify.Module,
		activity.Module,
		capture.Module,
		adjustment.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
