package migration

import (
	"github.com/staybridge/channelsync/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		// The versioned migrations target postgres. Other dialects fall
		// back to gorm's automigration, which covers local development.
		if cfg.DBType != "postgres" {
			return autoMigrate(conn, log)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
