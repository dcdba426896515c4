// internal/service/reservation/application/expiry_service.go
package application

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/TheBigWealth89/product-reservation/internal/pkg/logger"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/domain"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/domain/port"
)

// ExpiryService 负责过期回收：把超时未结算的 pending 预订落为 expired，
// 归还易失计数并从购物车剔除。同一预订只允许一个回收者真正执行归还，
// 由仓储层的受保护状态流转保证（只有把行从 pending 翻成 expired 的
// 那一次调用得到 transitioned=true）。
//
// 两条触发路径共用同一个 expireOne：
//   - Redis 键过期通知（低延迟，尽力而为）
//   - 周期性扫表（兜底，覆盖通知丢失与进程宕机窗口）
type ExpiryService struct {
	ledger   port.HoldLedger
	reserves domain.ReservationRepository
	tracer   trace.Tracer

	sweepBatch int
}

func NewExpiryService(ledger port.HoldLedger, reserves domain.ReservationRepository, tracer trace.Tracer) *ExpiryService {
	return &ExpiryService{
		ledger:     ledger,
		reserves:   reserves,
		tracer:     tracer,
		sweepBatch: 200,
	}
}

// ExpireByKey 处理一条 Redis 过期键通知。非持留键的通知被忽略。
func (s *ExpiryService) ExpireByKey(ctx context.Context, key string) error {
	productID, userID, token, err := domain.ParseHoldKey(key)
	if err != nil {
		// 实例级订阅会收到所有过期键，非持留键直接忽略
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "app.ExpireByKey")
	defer span.End()
	span.SetAttributes(attribute.String("hold.key", key))

	entry := domain.CartEntry{ProductID: productID, Token: token}
	return s.expireOne(ctx, userID, entry)
}

// SweepExpired 扫描 expires_at 已过的 pending 行并逐条回收。
// 返回真正流转的条数。多个清扫者拿到同一批候选行是安全的，
// 每行的守卫流转只让一个赢家真正归还。
func (s *ExpiryService) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	ctx, span := s.tracer.Start(ctx, "app.SweepExpired")
	defer span.End()

	rows, err := s.reserves.FindExpiredPending(ctx, now, s.sweepBatch)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	transitioned := 0
	for _, r := range rows {
		entry, err := domain.ParseCartEntry(r.ReservationID)
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).
				Str("reservation_id", r.ReservationID).
				Msg("Skipping reservation with unparsable id during sweep")
			continue
		}
		if err := s.expireOne(ctx, r.UserID, entry); err != nil {
			// 单条失败不终止本轮，下一轮清扫会重试
			logger.Ctx(ctx).Error().Err(err).
				Str("reservation_id", r.ReservationID).
				Msg("Failed to expire reservation during sweep")
			continue
		}
		transitioned++
	}

	span.SetAttributes(attribute.Int("sweep.transitioned", transitioned))
	return transitioned, nil
}

// expireOne 对单条预订执行回收。只有赢得状态流转的调用归还库存，
// 落库与归还之间的宕机窗口由库存同步作业修复。
func (s *ExpiryService) expireOne(ctx context.Context, userID string, entry domain.CartEntry) error {
	transitioned, err := s.reserves.Expire(ctx, entry.String())
	if err != nil {
		return err
	}
	if !transitioned {
		// 已被结算、取消或另一个回收者抢先处理
		return nil
	}

	holdsExpiredTotal.Inc()
	if _, err := s.ledger.Restore(ctx, entry.ProductID); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("product_id", entry.ProductID).
			Msg("Failed to restore volatile count after expiry, sync will reconcile")
	}
	if err := s.ledger.RemoveCartEntry(ctx, userID, entry); err != nil {
		logger.Ctx(ctx).Warn().Err(err).
			Str("user_id", userID).
			Msg("Failed to prune expired cart entry, cart validation will drop it")
	}

	logger.Ctx(ctx).Info().
		Str("reservation_id", entry.String()).
		Str("user_id", userID).
		Msg("Reservation expired, stock restored")
	return nil
}
