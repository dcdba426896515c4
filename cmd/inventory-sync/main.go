// cmd/inventory-sync/main.go
package main

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/TheBigWealth89/product-reservation/internal/pkg/bootstrap"
	"github.com/TheBigWealth89/product-reservation/internal/pkg/logger"
	"github.com/TheBigWealth89/product-reservation/internal/pkg/redis"
	"github.com/TheBigWealth89/product-reservation/internal/pkg/zookeeper"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/application"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/infrastructure"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/infrastructure/adapter"
)

const serviceName = "inventory-sync"

// main 组装库存同步进程：启动时先跑一轮全量重算，之后按周期执行。
// 多实例部署时通过 Zookeeper 分布式锁保证单实例执行。
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	db, err := infrastructure.OpenMySQL(cfg.Infra.Mysql.DSN)
	if err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to connect to mysql")
	}

	redisClient := redis.NewClient(cfg.Infra.Redis.Addr, cfg.Infra.Redis.DB)
	ledger, err := adapter.NewHoldLedgerRedisAdapter(redisClient)
	if err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to initialize hold ledger")
	}

	var locker application.Locker
	var zkConn *zookeeper.Conn
	if cfg.Infra.Zookeeper.Enabled {
		zkConn, err = zookeeper.Connect(cfg.Infra.Zookeeper.Servers)
		if err != nil {
			logger.Logger().Fatal().Err(err).Msg("failed to connect to zookeeper")
		}
		locker = zookeeper.NewDistributedLock(zkConn, "inventory-sync")
	}

	reserves := infrastructure.NewGormReservationRepository(db)
	products := infrastructure.NewGormProductRepository(db)
	tracer := otel.Tracer(serviceName)
	syncSvc := application.NewSyncService(ledger, products, reserves, tracer, locker)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8084,
		RunWorkers: func(ctx context.Context) error {
			// 启动即同步一轮，尽快修复上次停机期间积累的漂移
			if err := syncSvc.SyncOnce(ctx); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("Startup inventory sync failed")
			}

			ticker := time.NewTicker(cfg.Reservation.SyncInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := syncSvc.SyncOnce(ctx); err != nil {
						logger.Ctx(ctx).Error().Err(err).Msg("Periodic inventory sync failed")
					}
				}
			}
		},
		OnShutdown: func(ctx context.Context) {
			if zkConn != nil {
				zkConn.Close()
			}
			redisClient.Close()
		},
	})
}
