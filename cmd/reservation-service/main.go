// cmd/reservation-service/main.go
package main

import (
	"context"

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

const serviceName = "reservation-service"

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	db, err := infrastructure.OpenMySQL(cfg.Infra.Mysql.DSN)
	if err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to connect to mysql")
	}
	if err := infrastructure.Migrate(db); err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to run migrations")
	}

	redisClient := redis.NewClient(cfg.Infra.Redis.Addr, cfg.Infra.Redis.DB)
	ledger, err := adapter.NewHoldLedgerRedisAdapter(redisClient)
	if err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to initialize hold ledger")
	}

	settlementWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.SettlementTopic)

	reserves := infrastructure.NewGormReservationRepository(db)
	products := infrastructure.NewGormProductRepository(db)
	jobs := infrastructure.NewGormSettlementJobStore(db)
	producer := adapter.NewSettlementKafkaProducer(settlementWriter, jobs)

	tracer := otel.Tracer(serviceName)
	payments := adapter.NewPaymentHTTPAdapter(cfg.Payment.AuthorizeURL, tracer)

	reserveSvc := application.NewReserveService(ledger, reserves, products, cfg.Reservation.HoldTTL, tracer)
	checkoutSvc := application.NewCheckoutService(ledger, reserves, payments, tracer)
	recoverySvc := application.NewRecoveryService(jobs, reserves, ledger, producer, tracer, cfg.Reservation.Queue.Backoff)

	httpHandler := interfaces.NewReservationHandler(reserveSvc, checkoutSvc)
	webhookHandler := interfaces.NewWebhookHandler(producer, reserves, cfg.Reservation.Queue.Backoff)
	adminHandler := interfaces.NewAdminHandler(recoverySvc)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8080,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			httpHandler.RegisterRoutes(appCtx.Mux)
			webhookHandler.RegisterRoutes(appCtx.Mux)
			adminHandler.RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: func(ctx context.Context) {
			settlementWriter.Close()
			redisClient.Close()
		},
	})
}
