// internal/service/reservation/application/sync_service.go
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

// Locker 是同步作业的可选互斥原语。多实例部署时用分布式锁
// 保证同一时刻只有一个实例在重算计数。
type Locker interface {
	Lock() error
	Unlock() error
}

// SyncService 重算每个商品的可售计数并覆写易失存储：
//
//	available = max(0, 持久库存 - 活跃持留数)
//
// 活跃持留 = 未超时的 pending + 结算中的 payment_pending。
// 这是对抗计数漂移（宕机窗口、通知丢失、负向超卖计数）的唯一权威修复。
type SyncService struct {
	ledger   port.HoldLedger
	products domain.ProductRepository
	reserves domain.ReservationRepository
	tracer   trace.Tracer
	locker   Locker
}

func NewSyncService(ledger port.HoldLedger, products domain.ProductRepository, reserves domain.ReservationRepository, tracer trace.Tracer, locker Locker) *SyncService {
	return &SyncService{
		ledger:   ledger,
		products: products,
		reserves: reserves,
		tracer:   tracer,
		locker:   locker,
	}
}

// SyncOnce 执行一轮全量重算。配置了 locker 时先抢锁，抢不到直接返回错误。
func (s *SyncService) SyncOnce(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "app.SyncOnce")
	defer span.End()

	if s.locker != nil {
		if err := s.locker.Lock(); err != nil {
			span.RecordError(err)
			return err
		}
		defer func() {
			if err := s.locker.Unlock(); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Msg("Failed to release sync lock")
			}
		}()
	}

	now := time.Now()
	products, err := s.products.ListAll(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}
	activeHolds, err := s.reserves.CountActiveHolds(ctx, now)
	if err != nil {
		span.RecordError(err)
		return err
	}

	counts := make(map[string]int64, len(products))
	for _, p := range products {
		available := p.Inventory - activeHolds[p.ID]
		if available < 0 {
			available = 0
		}
		counts[p.ID] = available
	}

	if err := s.ledger.SetAvailable(ctx, counts); err != nil {
		span.RecordError(err)
		return err
	}

	inventorySyncLastRun.SetToCurrentTime()
	span.SetAttributes(attribute.Int("sync.products", len(counts)))
	logger.Ctx(ctx).Info().
		Int("products", len(counts)).
		Msg("Inventory sync completed, volatile counts rewritten")
	return nil
}
