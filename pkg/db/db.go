package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"creatorpay-engine/pkg/config"
	"creatorpay-engine/pkg/errutil"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/prometheus"
)

var Module = fx.Module("database",
	fx.Provide(
		Dialect,
		New,
	),
	fx.Invoke(RegisterConnectionPool, RegisterPlugins),
)

const (
	connectAttempts = 5
	connectBackoff  = 3 * time.Second
)

// Dialect picks the gorm dialector for DATABASE.TYPE. sqlite treats DBNAME as
// the DSN so local runs can point at a file or ":memory:".
func Dialect(cfg *config.Config) (gorm.Dialector, error) {
	d := cfg.Database
	switch strings.ToLower(d.Type) {
	case "", "postgres", "postgresql":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
			d.Host, d.User, d.Password, d.DBNAME, d.Port, d.SSLMode, d.Timezone)
		return postgres.Open(dsn), nil
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			d.User, d.Password, d.Host, d.Port, d.DBNAME)
		return mysql.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(d.DBNAME), nil
	default:
		return nil, errutil.ValidationFailed("unsupported database type", nil,
			errutil.WithDetails(errutil.Detail{Field: "DATABASE.TYPE", Message: d.Type}))
	}
}

type Params struct {
	fx.In
	Config    *config.Config
	Dialector gorm.Dialector
	Logger    *zap.Logger
}

func New(p Params) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	logLevel := logger.Info
	showSQL := true
	if p.Config.AppEnv == "production" {
		logLevel = logger.Warn
		showSQL = false
	}

	gormLogger := NewZapGormLogger(p.Logger, logLevel, showSQL)

	for i := 0; i < connectAttempts; i++ {
		db, err = gorm.Open(p.Dialector, &gorm.Config{
			Logger:         gormLogger,
			TranslateError: true,
			NowFunc: func() time.Time {
				return time.Now().UTC()
			},
		})
		if err == nil {
			break
		}
		zap.L().Warn("[DB] Database not ready, retrying...", zap.Int("retry", i+1), zap.Duration("backoff", connectBackoff), zap.Error(err))
		time.Sleep(connectBackoff)
	}

	if err != nil {
		zap.L().Error("[DB] Failed to connect to database", zap.Error(err))
		return nil, fmt.Errorf("connect database: %w", err)
	}

	zap.L().Info("[DB] Database connection configured", zap.String("dialect", p.Dialector.Name()))

	return db, nil
}

type connectionPoolParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	DB        *gorm.DB
	Config    *config.Config
}

func RegisterConnectionPool(p connectionPoolParams) error {
	sqlDB, err := p.DB.DB()
	if err != nil {
		zap.L().Error("[DB] Failed to get sql.DB from gorm", zap.Error(err))
		return err
	}

	cp := p.Config.Database.ConnectionPool
	sqlDB.SetMaxIdleConns(cp.MaxIdleConn)
	sqlDB.SetMaxOpenConns(cp.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cp.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cp.ConnMaxIdleTime)

	zap.L().Info("[DB] Connection pool configured",
		zap.Int("max_idle", cp.MaxIdleConn),
		zap.Int("max_open", cp.MaxOpenConns),
	)
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			zap.L().Info("[DB] Closing connection pool...")
			return sqlDB.Close()
		},
	})
	return nil
}

// RegisterPlugins attaches tracing and pool metrics when enabled in config.
func RegisterPlugins(cfg *config.Config, db *gorm.DB) error {
	if cfg.Database.EnableTracing {
		if err := Otel(db); err != nil {
			return err
		}
	}
	if cfg.Database.EnableMetrics {
		if err := Metric(db, cfg.Database.DBNAME); err != nil {
			return err
		}
	}
	return nil
}

func Otel(db *gorm.DB) error {
	if err := db.Use(otelgorm.NewPlugin()); err != nil {
		zap.L().Error("[DB] Failed to register db telemetry", zap.Error(err))
		return err
	}

	return nil
}

// Metric exposes connection pool gauges on the default Prometheus registry,
// which the health server serves on /metrics.
func Metric(db *gorm.DB, dbName string) error {
	if dbName == "" {
		dbName = db.Dialector.Name()
	}

	if err := db.Use(prometheus.New(prometheus.Config{
		DBName:          dbName,
		RefreshInterval: 15,
		StartServer:     false,
	})); err != nil {
		zap.L().Error("[DB] Failed to register db metrics", zap.Error(err))
		return err
	}
	return nil
}
