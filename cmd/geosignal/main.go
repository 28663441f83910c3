package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/terralens/geosignal/internal/anomalyset"
	"github.com/terralens/geosignal/internal/clock"
	"github.com/terralens/geosignal/internal/config"
	"github.com/terralens/geosignal/internal/generation"
	"github.com/terralens/geosignal/internal/logger"
	"github.com/terralens/geosignal/internal/metrics"
	"github.com/terralens/geosignal/internal/migration"
	"github.com/terralens/geosignal/internal/observability"
	"github.com/terralens/geosignal/internal/providers/email"
	"github.com/terralens/geosignal/internal/query"
	"github.com/terralens/geosignal/internal/rerun"
	"github.com/terralens/geosignal/internal/server"
	"github.com/terralens/geosignal/internal/signal"
	"github.com/terralens/geosignal/internal/usage"
	"github.com/terralens/geosignal/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		metrics.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Domains
		anomalyset.Module,
		signal.Module,
		query.Module,
		usage.Module,
		rerun.Module,

		// Providers
		generation.Module,
		email.Module,

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
