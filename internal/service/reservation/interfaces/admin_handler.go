// internal/service/reservation/interfaces/admin_handler.go
package interfaces

import (
	"errors"
	"net/http"

	"github.com/TheBigWealth89/product-reservation/internal/pkg/logger"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/application"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/domain"
)

// AdminHandler 暴露死信任务的运维端点。
type AdminHandler struct {
	recovery *application.RecoveryService
}

func NewAdminHandler(recovery *application.RecoveryService) *AdminHandler {
	return &AdminHandler{recovery: recovery}
}

// RegisterRoutes 在 ServeMux 上注册运维路由
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/jobs/failed", h.listFailedHandler)
	mux.HandleFunc("POST /admin/jobs/{id}/retry", h.retryJobHandler)
	mux.HandleFunc("POST /admin/jobs/{id}/cancel", h.cancelJobHandler)
}

func (h *AdminHandler) listFailedHandler(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.recovery.ListFailed(r.Context())
	if err != nil {
		logger.Ctx(r.Context()).Error().Err(err).Msg("Failed to list dead-lettered jobs")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

func (h *AdminHandler) retryJobHandler(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if err := h.recovery.RetryJob(r.Context(), jobID); err != nil {
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			writeError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, domain.ErrJobNotFailed):
			writeError(w, http.StatusConflict, "job is not in failed state")
		default:
			logger.Ctx(r.Context()).Error().Err(err).Str("job_id", jobID).Msg("Failed to retry job")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "requeued", "jobId": jobID})
}

func (h *AdminHandler) cancelJobHandler(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if err := h.recovery.CancelJob(r.Context(), jobID); err != nil {
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			writeError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, domain.ErrReservationNotFound):
			writeError(w, http.StatusConflict, "reservation for job no longer exists")
		default:
			logger.Ctx(r.Context()).Error().Err(err).Str("job_id", jobID).Msg("Failed to cancel job")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "jobId": jobID})
}
