package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"creatorpay-engine/pkg/config"
	"creatorpay-engine/pkg/db"
	"creatorpay-engine/pkg/featureflags"
	"creatorpay-engine/pkg/gen"
	"creatorpay-engine/pkg/health"
	"creatorpay-engine/pkg/logger"
	"creatorpay-engine/pkg/measure"
	"creatorpay-engine/pkg/otelcol"
	"creatorpay-engine/pkg/redis"
	"creatorpay-engine/pkg/runlock"
	"creatorpay-engine/pkg/task"
	"creatorpay-engine/services/campaign"
	"creatorpay-engine/services/ledger"
	"creatorpay-engine/services/reconciler"
	"creatorpay-engine/services/selector"
	"creatorpay-engine/services/submission"
	"creatorpay-engine/services/tracker"
	"creatorpay-engine/services/tracking"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		gen.Module,
		otelcol.Module,
		featureflags.Module,
		runlock.Module,
		task.Client,
		task.Server,
		measure.Module,
		selector.Module,
		tracking.Module,
		ledger.Module,
		reconciler.Module,
		tracker.Module,
		tracker.Worker,
		tracker.Schedule,
		health.Module,
		fx.Invoke(migrate),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "development" {
		return &fxevent.ZapLogger{Logger: logger.Named("fx")}
	}
	return fxevent.NopLogger
})

func migrate(cfg *config.Config, conn *gorm.DB) error {
	if !cfg.Database.AutoMigrate {
		return nil
	}

	if err := conn.AutoMigrate(
		&campaign.Campaign{},
		&submission.Clip{},
		&submission.Submission{},
		&tracking.Sample{},
		&ledger.Balance{},
		&ledger.EarningEntry{},
		&tracker.Run{},
	); err != nil {
		zap.L().Error("[Migrate] auto migration failed", zap.Error(err))
		return err
	}

	zap.L().Info("[Migrate] schema up to date")
	return nil
}
