package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/staybridge/channelsync/internal/bookingstore"
	"github.com/staybridge/channelsync/internal/channel"
	"github.com/staybridge/channelsync/internal/clock"
	"github.com/staybridge/channelsync/internal/config"
	"github.com/staybridge/channelsync/internal/connector"
	"github.com/staybridge/channelsync/internal/logger"
	"github.com/staybridge/channelsync/internal/migration"
	"github.com/staybridge/channelsync/internal/overbooking"
	"github.com/staybridge/channelsync/internal/parity"
	"github.com/staybridge/channelsync/internal/performance"
	"github.com/staybridge/channelsync/internal/ratesource"
	"github.com/staybridge/channelsync/internal/reservation"
	"github.com/staybridge/channelsync/internal/scheduler"
	"github.com/staybridge/channelsync/internal/server"
	"github.com/staybridge/channelsync/internal/snapshot"
	syncmodule "github.com/staybridge/channelsync/internal/sync"
	"github.com/staybridge/channelsync/pkg/db"
	"github.com/staybridge/channelsync/pkg/redis"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		fx.Provide(RegisterSnowflake),
		config.Module,
		logger.Module,
		clock.Module,
		db.Module,
		redis.Module,
		migration.Module,

		connector.Module,
		channel.Module,
		bookingstore.Module,
		ratesource.Module,
		snapshot.Module,
		syncmodule.Module,
		reservation.Module,
		parity.Module,
		overbooking.Module,
		performance.Module,

		scheduler.Module,
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
