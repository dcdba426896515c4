// cmd/fulfillment-worker/main.go
package main

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/TheBigWealth89/product-reservation/internal/pkg/bootstrap"
	"github.com/TheBigWealth89/product-reservation/internal/pkg/logger"
	"github.com/TheBigWealth89/product-reservation/internal/pkg/mq"
	"github.com/TheBigWealth89/product-reservation/internal/pkg/redis"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/application"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/infrastructure"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/infrastructure/adapter"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/interfaces"
)

const serviceName = "fulfillment-worker"

// main 组装履约工作进程：结算队列消费者加上任务表的定期清理。
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

	settlementReader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.SettlementTopic, cfg.Infra.Kafka.ConsumerGroup)
	settlementWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.SettlementTopic)
	dltWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.SettlementDLT)

	reserves := infrastructure.NewGormReservationRepository(db)
	jobs := infrastructure.NewGormSettlementJobStore(db)
	producer := adapter.NewSettlementKafkaProducer(settlementWriter, jobs)

	tracer := otel.Tracer(serviceName)
	fulfillSvc := application.NewFulfillmentService(reserves, tracer)
	recoverySvc := application.NewRecoveryService(jobs, reserves, ledger, producer, tracer, cfg.Reservation.Queue.Backoff)

	consumer := interfaces.NewSettlementConsumerAdapter(
		settlementReader, dltWriter, fulfillSvc, producer, jobs,
		cfg.Reservation.Queue.MaxAttempts, cfg.Reservation.Queue.Backoff,
	)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8082,
		RunWorkers: func(ctx context.Context) error {
			if err := consumer.Start(ctx); err != nil {
				return err
			}
			if cfg.Reservation.Janitor.Enabled {
				go runJanitor(ctx, recoverySvc, cfg.Reservation.Janitor.Interval, cfg.Reservation.Janitor.Retention)
			}
			return nil
		},
		OnShutdown: func(ctx context.Context) {
			consumer.Stop(ctx)
			settlementWriter.Close()
			dltWriter.Close()
			redisClient.Close()
		},
	})
}

// runJanitor 周期性清理已完成的任务记录，并对滞留的死信任务告警。
func runJanitor(ctx context.Context, recovery *application.RecoveryService, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := recovery.PurgeCompleted(ctx, retention); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("Settlement job janitor pass failed")
			}
		}
	}
}
