// internal/service/reservation/interfaces/webhook_handler.go
package interfaces

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"github.com/TheBigWealth89/product-reservation/internal/pkg/logger"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/domain"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/domain/port"
)

// WebhookHandler 接收支付服务商的回调。payment_succeeded 事件
// 按 metadata 中的订单列表逐单生成 fulfill 任务入队，
// 其余事件类型记录后直接确认。
type WebhookHandler struct {
	producer port.SettlementProducer
	reserves domain.ReservationRepository
	backoff  time.Duration
}

func NewWebhookHandler(producer port.SettlementProducer, reserves domain.ReservationRepository, backoff time.Duration) *WebhookHandler {
	return &WebhookHandler{producer: producer, reserves: reserves, backoff: backoff}
}

// RegisterRoutes 在 ServeMux 上注册回调路由
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/payment", h.paymentWebhookHandler)
}

func (h *WebhookHandler) paymentWebhookHandler(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	tracer := otel.Tracer(serviceName)
	ctx, span := tracer.Start(ctx, "api.PaymentWebhook")
	defer span.End()

	var event domain.PaymentEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "invalid event payload", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("payment.event_type", event.Type))

	if event.Type != domain.PaymentSucceededEvent {
		logger.Ctx(ctx).Info().
			Str("event_type", event.Type).
			Msg("Ignoring payment event")
		w.WriteHeader(http.StatusOK)
		return
	}

	enqueued := 0
	for _, raw := range strings.Split(event.Metadata.OrderIDs, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		orderID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			logger.Ctx(ctx).Warn().
				Str("order_id", raw).
				Msg("Skipping unparsable order id in payment event")
			continue
		}

		userID := ""
		if reservation, err := h.reserves.FindByOrderID(ctx, uint(orderID)); err != nil {
			logger.Ctx(ctx).Warn().Err(err).
				Uint64("order_id", orderID).
				Msg("Could not resolve reservation for payment event, enqueueing without user")
		} else {
			userID = reservation.UserID
		}

		job := domain.NewFulfillJob(uint(orderID), userID, h.backoff)
		if err := h.producer.Enqueue(ctx, job); err != nil {
			// 返回 5xx 让服务商按自身策略重投整个事件，
			// 重复投递由履约侧的幂等检查吸收
			span.RecordError(err)
			logger.Ctx(ctx).Error().Err(err).
				Uint64("order_id", orderID).
				Msg("Failed to enqueue fulfill job from payment webhook")
			writeError(w, http.StatusInternalServerError, "failed to enqueue fulfillment")
			return
		}
		enqueued++
	}

	span.SetAttributes(attribute.Int("fulfill.jobs_enqueued", enqueued))
	logger.Ctx(ctx).Info().
		Int("jobs", enqueued).
		Msg("Payment succeeded, fulfill jobs enqueued")
	w.WriteHeader(http.StatusOK)
}
