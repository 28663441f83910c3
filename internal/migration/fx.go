package migration

import (
	anomalysetdomain "github.com/terralens/geosignal/internal/anomalyset/domain"
	"github.com/terralens/geosignal/internal/config"
	querydomain "github.com/terralens/geosignal/internal/query/domain"
	signaldomain "github.com/terralens/geosignal/internal/signal/domain"
	usagedomain "github.com/terralens/geosignal/internal/usage/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// Local sqlite runs have no migration driver; let gorm build
			// the schema directly.
			return conn.AutoMigrate(
				&anomalysetdomain.AnomalySet{},
				&signaldomain.Signal{},
				&querydomain.Query{},
				&usagedomain.UsageRecord{},
				&usagedomain.DailyUsageSummary{},
				&usagedomain.UsageAlertConfig{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
