package db

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/britonmearsty/secureuploadhub-sub006/internal/models"
	cfgpkg "github.com/britonmearsty/secureuploadhub-sub006/pkg/config"
	gormzap "github.com/britonmearsty/secureuploadhub-sub006/pkg/gormlog"
)

// Open connects to postgres and applies the pool limits from cfg.
func Open(l *zap.SugaredLogger, cfg *cfgpkg.Config) (*gorm.DB, error) {
	dc := cfg.Database
	if dc.DSN == "" {
		l.Error("database DSN is empty")
		return nil, gorm.ErrInvalidDB
	}
	gdb, err := gorm.Open(postgres.Open(dc.DSN), &gorm.Config{Logger: gormzap.New(l)})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if dc.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(dc.MaxOpenConns)
	}
	if dc.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(dc.MaxIdleConns)
	}
	if dc.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(dc.ConnMaxLifetime)
	}
	l.Infow("postgres configured", "max_open_conns", dc.MaxOpenConns, "max_idle_conns", dc.MaxIdleConns)
	return gdb, nil
}

func migrate(l *zap.SugaredLogger, cfg *cfgpkg.Config, gdb *gorm.DB) error {
	if !cfg.Database.AutoMigrate {
		l.Infow("automigrate disabled")
		return nil
	}
	tables := models.All()
	if err := gdb.AutoMigrate(tables...); err != nil {
		l.Errorw("automigrate failed", "err", err)
		return err
	}
	l.Infow("automigrate completed", "tables", len(tables))
	return nil
}

func registerLifecycle(lc fx.Lifecycle, l *zap.SugaredLogger, gdb *gorm.DB) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			if err := sqlDB.PingContext(ctx); err != nil {
				l.Errorw("postgres ping failed", "err", err)
				return err
			}
			return nil
		},
		OnStop: func(context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				l.Warnw("gorm: get sql.DB failed", "err", err)
				return nil
			}
			l.Infow("closing postgres connection pool")
			return sqlDB.Close()
		},
	})
}

var Module = fx.Options(
	fx.Provide(Open),
	fx.Invoke(migrate),
	fx.Invoke(registerLifecycle),
)
