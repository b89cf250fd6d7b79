package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/config"
	"github.com/smallbiznis/billbook/internal/migration"
	"github.com/smallbiznis/billbook/internal/observability"
	"github.com/smallbiznis/billbook/internal/server"
	"github.com/smallbiznis/billbook/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		// Customers, products, inventory and invoices are pulled in by the server.
		server.Module,

		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
