// internal/service/reservation/application/reserve_service.go
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/TheBigWealth89/product-reservation/internal/pkg/logger"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/domain"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/domain/port"
)

// ReserveService 负责预订链路：原子占用易失库存，再落持久预订记录。
// 两个存储之间没有事务，持久写失败时必须显式回补易失计数。
type ReserveService struct {
	ledger   port.HoldLedger
	reserves domain.ReservationRepository
	products domain.ProductRepository
	holdTTL  time.Duration
	tracer   trace.Tracer
}

func NewReserveService(ledger port.HoldLedger, reserves domain.ReservationRepository, products domain.ProductRepository, holdTTL time.Duration, tracer trace.Tracer) *ReserveService {
	return &ReserveService{
		ledger:   ledger,
		reserves: reserves,
		products: products,
		holdTTL:  holdTTL,
		tracer:   tracer,
	}
}

// Reserve 为用户占用一件商品。
// 占用顺序是固定的：先易失计数（原子判定），后持久行，最后 hold 标记与购物车。
func (s *ReserveService) Reserve(ctx context.Context, productID, userID string) (*ReserveResult, error) {
	ctx, span := s.tracer.Start(ctx, "app.Reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("product.id", productID),
		attribute.String("user.id", userID),
	)

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	newCount, err := s.ledger.TryPlaceHold(ctx, productID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if newCount < 0 {
		// 计数在脚本里已经减过了，负值就是超卖信号；
		// 不回补，Inventory Sync 会把负计数拉回真值。
		holdsRejectedTotal.Inc()
		span.SetStatus(codes.Error, "out of stock")
		return nil, domain.ErrOutOfStock
	}

	token := uuid.New().String()
	reservation, err := domain.NewReservation(productID, userID, token, product.Price, s.holdTTL)
	if err != nil {
		return nil, err
	}

	if err := s.reserves.Create(ctx, reservation); err != nil {
		// 持久写失败：易失计数已经扣掉，必须显式回补
		if _, restoreErr := s.ledger.Restore(ctx, productID); restoreErr != nil {
			logger.Ctx(ctx).Error().Err(restoreErr).
				Str("product_id", productID).
				Msg("failed to restore ledger after reservation insert failure; inventory sync will heal")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist reservation")
		return nil, err
	}

	entry := domain.CartEntry{ProductID: productID, Token: token}
	if err := s.ledger.PlaceHoldMarker(ctx, productID, userID, token, s.holdTTL); err != nil {
		s.compensateReservation(ctx, reservation, productID)
		return nil, fmt.Errorf("failed to place hold marker: %w", err)
	}
	if err := s.ledger.AddCartEntry(ctx, userID, entry); err != nil {
		s.compensateReservation(ctx, reservation, productID)
		return nil, fmt.Errorf("failed to add cart entry: %w", err)
	}

	holdsPlacedTotal.Inc()
	logger.Ctx(ctx).Info().
		Str("product_id", productID).
		Str("user_id", userID).
		Int64("inventory", newCount).
		Msgf("Product reserved, hold expires in %s", s.holdTTL)
	span.AddEvent("Hold placed and reservation persisted")

	return &ReserveResult{
		Token:         token,
		ReservationID: reservation.ReservationID,
		Inventory:     newCount,
		ExpiresAt:     reservation.ExpiresAt,
	}, nil
}

// compensateReservation 撤销一次未完成的预订：取消持久行并回补计数。
// 取消失败时把行留给过期回收器按 expires_at 兜底。
func (s *ReserveService) compensateReservation(ctx context.Context, reservation *domain.Reservation, productID string) {
	if cancelled, _, err := s.reserves.Cancel(ctx, reservation.ReservationID); err != nil || !cancelled {
		logger.Ctx(ctx).Warn().Err(err).
			Str("reservation_id", reservation.ReservationID).
			Msg("could not cancel reservation during compensation; expiry sweep will reclaim it")
		return
	}
	if _, err := s.ledger.Restore(ctx, productID); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("product_id", productID).
			Msg("failed to restore ledger during compensation; inventory sync will heal")
	}
}

// GetProduct 返回商品的持久行，可售数量优先取自 Hold Ledger 的实时计数。
func (s *ReserveService) GetProduct(ctx context.Context, productID string) (*ProductView, error) {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	view := &ProductView{
		ID:        product.ID,
		Name:      product.Name,
		Price:     product.Price,
		Inventory: product.Inventory,
	}
	if reader, ok := s.ledger.(port.AvailableReader); ok {
		if available, found, err := reader.GetAvailable(ctx, productID); err == nil && found {
			view.Inventory = available
		}
	}
	return view, nil
}
