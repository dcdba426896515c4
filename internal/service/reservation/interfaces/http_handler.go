// internal/service/reservation/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"github.com/TheBigWealth89/product-reservation/internal/pkg/logger"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/application"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/domain"
)

const serviceName = "reservation-service"

// ReservationHandler 封装了预订服务的 HTTP 处理器
type ReservationHandler struct {
	reserve  *application.ReserveService
	checkout *application.CheckoutService
}

// NewReservationHandler 创建一个新的 HTTP 处理器实例
func NewReservationHandler(reserve *application.ReserveService, checkout *application.CheckoutService) *ReservationHandler {
	return &ReservationHandler{reserve: reserve, checkout: checkout}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *ReservationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("POST /reserve", h.reserveHandler)
	mux.HandleFunc("POST /checkout", h.checkoutHandler)
	mux.HandleFunc("GET /products/{id}", h.productHandler)
}

type reserveRequest struct {
	ProductID string `json:"productId"`
	UserID    string `json:"userId"`
}

func (h *ReservationHandler) reserveHandler(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	tracer := otel.Tracer(serviceName)
	ctx, span := tracer.Start(ctx, "api.Reserve")
	defer span.End()

	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ProductID == "" || req.UserID == "" {
		http.Error(w, "productId and userId are required", http.StatusBadRequest)
		return
	}
	span.SetAttributes(
		attribute.String("product.id", req.ProductID),
		attribute.String("user.id", req.UserID),
	)

	result, err := h.reserve.Reserve(ctx, req.ProductID, req.UserID)
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, domain.ErrOutOfStock):
			writeError(w, http.StatusConflict, "out of stock")
		case errors.Is(err, domain.ErrProductNotFound):
			writeError(w, http.StatusNotFound, "product not found")
		default:
			logger.Ctx(ctx).Error().Err(err).Msg("Reserve request failed")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

type checkoutRequest struct {
	UserID string `json:"userId"`
}

func (h *ReservationHandler) checkoutHandler(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	tracer := otel.Tracer(serviceName)
	ctx, span := tracer.Start(ctx, "api.Checkout")
	defer span.End()

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("user.id", req.UserID))

	result, err := h.checkout.Checkout(ctx, req.UserID)
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, domain.ErrNoValidHolds),
			errors.Is(err, domain.ErrReservationExpired),
			errors.Is(err, domain.ErrNothingToSettle):
			// 带上已剔除的过期条目，前端据此提示用户重选
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"error":          "no valid reservations to settle",
				"expiredEntries": result.ExpiredEntries,
			})
		case errors.Is(err, domain.ErrPaymentAuthorizationFailed):
			writeError(w, http.StatusBadGateway, "payment authorization failed, reservations restored")
		case errors.Is(err, domain.ErrCompensationFailed):
			logger.Ctx(ctx).Error().Err(err).Msg("Checkout left reservations in payment_pending")
			writeError(w, http.StatusInternalServerError, "checkout failed")
		default:
			logger.Ctx(ctx).Error().Err(err).Msg("Checkout request failed")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *ReservationHandler) productHandler(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	view, err := h.reserve.GetProduct(ctx, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		logger.Ctx(ctx).Error().Err(err).Msg("Product lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, view)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
