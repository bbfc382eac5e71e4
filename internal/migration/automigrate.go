package migration

import (
	"github.com/staybridge/channelsync/internal/bookingstore"
	channeldomain "github.com/staybridge/channelsync/internal/channel/domain"
	"github.com/staybridge/channelsync/internal/parity"
	"github.com/staybridge/channelsync/internal/performance"
	"github.com/staybridge/channelsync/internal/ratesource"
	reservationdomain "github.com/staybridge/channelsync/internal/reservation/domain"
	syncdomain "github.com/staybridge/channelsync/internal/sync/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func autoMigrate(conn *gorm.DB, log *zap.Logger) error {
	log.Info("running gorm automigration")
	return conn.AutoMigrate(
		&channeldomain.Channel{},
		&channeldomain.RoomMapping{},
		&bookingstore.RoomType{},
		&bookingstore.Room{},
		&bookingstore.Booking{},
		&ratesource.RoomRate{},
		&syncdomain.SyncRecord{},
		&reservationdomain.ReservationMapping{},
		&parity.RateParityLog{},
		&performance.ChannelPerformance{},
	)
}
