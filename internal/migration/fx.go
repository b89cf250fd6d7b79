package migration

import (
	"strings"

	"github.com/smallbiznis/billbook/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Migrate),
)

// Migrate brings the schema up to date unless DATABASE_MIGRATE is off.
func Migrate(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	if !cfg.DBMigrate {
		log.Info("schema migration disabled")
		return nil
	}

	dbType := strings.ToLower(strings.TrimSpace(cfg.DBType))
	if dbType != "postgres" {
		log.Info("auto migrating schema", zap.String("db_type", dbType))
		return AutoMigrate(conn)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	log.Info("applying schema migrations")
	return RunMigrations(sqlDB)
}
