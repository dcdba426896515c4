// internal/service/reservation/application/checkout_service.go
package application

import (
	"context"
	"fmt"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/TheBigWealth89/product-reservation/internal/pkg/logger"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/domain"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/domain/port"
)

// CheckoutService 是结算 Saga 的协调器：
//
//	校验购物车 -> pending 批量划入 payment_pending（先提交）
//	-> 请求支付授权 -> 失败则补偿回 pending
//
// payment_pending 流转先于授权调用提交，外部慢调用不持有任何行锁。
// 实际履约推迟到支付回调确认成功之后（webhook 入队 fulfill 任务）。
type CheckoutService struct {
	ledger   port.HoldLedger
	reserves domain.ReservationRepository
	payments port.PaymentAuthorizer
	tracer   trace.Tracer
}

func NewCheckoutService(ledger port.HoldLedger, reserves domain.ReservationRepository, payments port.PaymentAuthorizer, tracer trace.Tracer) *CheckoutService {
	return &CheckoutService{
		ledger:   ledger,
		reserves: reserves,
		payments: payments,
		tracer:   tracer,
	}
}

// Checkout 对用户购物车执行结算 Saga。
func (s *CheckoutService) Checkout(ctx context.Context, userID string) (*CheckoutResult, error) {
	ctx, span := s.tracer.Start(ctx, "app.Checkout")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	// 步骤 1: 原子校验整个购物车，过期条目在脚本里同步剔除
	valid, expired, err := s.ledger.ValidateCart(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result := &CheckoutResult{ExpiredEntries: entryStrings(expired)}
	if len(valid) == 0 {
		span.SetStatus(codes.Error, "no valid holds")
		if len(expired) > 0 {
			// 购物车非空，但所有持留都已过 TTL
			return result, domain.ErrReservationExpired
		}
		return result, domain.ErrNoValidHolds
	}

	// 步骤 2: 批量流转 pending -> payment_pending，单独提交。
	// 不在 pending 的行被静默排除（与并发过期回收的良性竞争）。
	reservationIDs := entryStrings(valid)
	orders, err := s.reserves.TransitionToPaymentPending(ctx, reservationIDs)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(orders) == 0 {
		span.SetStatus(codes.Error, "nothing to settle")
		return result, domain.ErrNothingToSettle
	}

	var amountCents int64
	orderIDs := make([]uint, 0, len(orders))
	affected := make([]string, 0, len(orders))
	for _, o := range orders {
		amountCents += int64(math.Round(o.Amount * 100))
		orderIDs = append(orderIDs, o.ID)
		affected = append(affected, o.ReservationID)
	}
	result.OrderIDs = orderIDs
	result.AmountCents = amountCents
	span.SetAttributes(
		attribute.Int("checkout.order_count", len(orders)),
		attribute.Int64("checkout.amount_cents", amountCents),
	)

	// 步骤 3/4: 流转已提交后才发起外部授权调用
	handle, err := s.payments.Authorize(ctx, amountCents, orderIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "payment authorization failed")
		return result, s.compensate(ctx, affected, err)
	}

	span.AddEvent("Payment authorization created, fulfillment deferred to provider callback")
	result.AuthorizationHandle = handle
	return result, nil
}

// compensate 把刚刚划入 payment_pending 的行退回 pending。
// 预订保持有效、库存不动：失败的只是这一次支付尝试。
// 补偿本身失败是致命状况，只记录并上报，不做自动恢复，
// 行保持失败前的状态等待人工排查。
func (s *CheckoutService) compensate(ctx context.Context, reservationIDs []string, cause error) error {
	checkoutCompensationsTotal.Inc()
	logger.Ctx(ctx).Warn().Err(cause).
		Int("reservations", len(reservationIDs)).
		Msg("Payment authorization failed, compensating back to pending")

	reverted, err := s.reserves.RevertToPending(ctx, reservationIDs)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Strs("reservation_ids", reservationIDs).
			Msg("CRITICAL: compensation failed, manual intervention required")
		return fmt.Errorf("%w: %v", domain.ErrCompensationFailed, err)
	}

	logger.Ctx(ctx).Info().
		Int64("reverted", reverted).
		Msg("Compensation successful, reservations are back in pending state")
	return fmt.Errorf("%w: %v", domain.ErrPaymentAuthorizationFailed, cause)
}

func entryStrings(entries []domain.CartEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.String())
	}
	return out
}
