// internal/service/reservation/application/fulfillment_service.go
package application

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/TheBigWealth89/product-reservation/internal/pkg/logger"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/domain"
)

// FulfillmentService 执行支付确认后的履约：
// 加锁读取预订行，幂等跳过已完成的，条件扣减持久库存并落为 completed。
// 整个流程在仓储的单个事务里完成，这里只做编排与观测。
type FulfillmentService struct {
	reserves domain.ReservationRepository
	tracer   trace.Tracer
}

func NewFulfillmentService(reserves domain.ReservationRepository, tracer trace.Tracer) *FulfillmentService {
	return &FulfillmentService{reserves: reserves, tracer: tracer}
}

// Fulfill 处理单个 fulfill 任务。返回 nil 表示任务终结（完成或幂等跳过），
// 返回错误表示本次尝试失败、任务应按退避策略重试。
func (s *FulfillmentService) Fulfill(ctx context.Context, orderID uint) error {
	ctx, span := s.tracer.Start(ctx, "app.Fulfill")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", int64(orderID)))

	fulfilled, err := s.reserves.Fulfill(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrDurableStockExhausted) {
			// 持久库存与易失计数不一致的罕见窗口，重试前先让同步作业兜底
			span.SetStatus(codes.Error, "durable stock exhausted")
			logger.Ctx(ctx).Error().Err(err).
				Uint("order_id", orderID).
				Msg("Durable inventory exhausted during fulfillment")
		}
		return err
	}

	if !fulfilled {
		span.AddEvent("Fulfillment skipped, reservation not in payment_pending state")
		logger.Ctx(ctx).Info().
			Uint("order_id", orderID).
			Msg("Fulfillment skipped (already completed or no longer payable)")
		return nil
	}

	settlementsCompletedTotal.Inc()
	logger.Ctx(ctx).Info().
		Uint("order_id", orderID).
		Msg("Order fulfilled, durable inventory decremented")
	return nil
}
