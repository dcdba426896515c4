// cmd/expiry-reconciler/main.go
package main

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/TheBigWealth89/product-reservation/internal/pkg/bootstrap"
	"github.com/TheBigWealth89/product-reservation/internal/pkg/logger"
	"github.com/TheBigWealth89/product-reservation/internal/pkg/redis"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/application"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/infrastructure"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/infrastructure/adapter"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/interfaces"
)

const serviceName = "expiry-reconciler"

// main 组装过期回收进程：键过期通知订阅（低延迟）加周期扫表（兜底）。
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

	reserves := infrastructure.NewGormReservationRepository(db)
	tracer := otel.Tracer(serviceName)
	expirySvc := application.NewExpiryService(ledger, reserves, tracer)
	listener := interfaces.NewExpiryListenerAdapter(redisClient.GetClient(), expirySvc, 4)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8083,
		RunWorkers: func(ctx context.Context) error {
			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return listener.Start(ctx)
			})
			g.Go(func() error {
				runSweeper(ctx, expirySvc, cfg.Reservation.SweepInterval)
				return nil
			})
			return g.Wait()
		},
		OnShutdown: func(ctx context.Context) {
			listener.Stop(ctx)
			redisClient.Close()
		},
	})
}

// runSweeper 周期性扫描过期未回收的 pending 预订。
// 通知路径丢事件或进程宕机时，这里保证最终回收。
func runSweeper(ctx context.Context, expiry *application.ExpiryService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := expiry.SweepExpired(ctx, time.Now())
			if err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("Expiry sweep failed")
				continue
			}
			if n > 0 {
				logger.Ctx(ctx).Info().Int("reclaimed", n).Msg("Expiry sweep reclaimed overdue holds")
			}
		}
	}
}
