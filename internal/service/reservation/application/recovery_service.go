// internal/service/reservation/application/recovery_service.go
package application

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/TheBigWealth89/product-reservation/internal/pkg/logger"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/domain"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/domain/port"
)

const failedJobListLimit = 200

// RecoveryService 提供死信任务的运维出口：列出失败任务、
// 重置后重新入队，或放弃履约并取消对应预订。
// 失败任务不会被自动处理，这里的每个动作都由运维显式触发。
type RecoveryService struct {
	jobs     domain.SettlementJobStore
	reserves domain.ReservationRepository
	ledger   port.HoldLedger
	producer port.SettlementProducer
	tracer   trace.Tracer

	backoff time.Duration
}

func NewRecoveryService(jobs domain.SettlementJobStore, reserves domain.ReservationRepository, ledger port.HoldLedger, producer port.SettlementProducer, tracer trace.Tracer, backoff time.Duration) *RecoveryService {
	return &RecoveryService{
		jobs:     jobs,
		reserves: reserves,
		ledger:   ledger,
		producer: producer,
		tracer:   tracer,
		backoff:  backoff,
	}
}

// ListFailed 返回进入死信状态的结算任务。
func (s *RecoveryService) ListFailed(ctx context.Context) ([]*domain.SettlementJobRecord, error) {
	return s.jobs.ListByState(ctx, domain.JobStateFailed, failedJobListLimit)
}

// RetryJob 把失败任务的尝试次数清零并重新投入结算队列。
func (s *RecoveryService) RetryJob(ctx context.Context, jobID string) error {
	ctx, span := s.tracer.Start(ctx, "app.RetryJob")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", jobID))

	record, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return err
	}
	if record.State != domain.JobStateFailed {
		// 只允许重试死信任务，waiting/active/completed 的任务不可重复入队
		return domain.ErrJobNotFailed
	}
	job, err := jobFromRecord(record)
	if err != nil {
		return err
	}

	job.Attempts = 0
	job.BackoffMillis = s.backoff.Milliseconds()
	if err := s.producer.Enqueue(ctx, job); err != nil {
		span.RecordError(err)
		return err
	}

	logger.Ctx(ctx).Info().
		Str("job_id", jobID).
		Uint("order_id", job.OrderID).
		Msg("Dead-lettered settlement job re-enqueued")
	return nil
}

// CancelJob 放弃失败任务对应的履约：预订落为 cancelled，
// 归还易失计数并剔除购物车条目，最后删除任务记录。
// 已处于终态的预订不再移动库存。
func (s *RecoveryService) CancelJob(ctx context.Context, jobID string) error {
	ctx, span := s.tracer.Start(ctx, "app.CancelJob")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", jobID))

	record, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return err
	}
	job, err := jobFromRecord(record)
	if err != nil {
		return err
	}

	reservation, err := s.reserves.FindByOrderID(ctx, job.OrderID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	cancelled, _, err := s.reserves.Cancel(ctx, reservation.ReservationID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if cancelled {
		if entry, perr := domain.ParseCartEntry(reservation.ReservationID); perr == nil {
			if _, rerr := s.ledger.Restore(ctx, entry.ProductID); rerr != nil {
				logger.Ctx(ctx).Error().Err(rerr).
					Str("product_id", entry.ProductID).
					Msg("Failed to restore volatile count after cancellation, sync will reconcile")
			}
			if rerr := s.ledger.RemoveCartEntry(ctx, reservation.UserID, entry); rerr != nil {
				logger.Ctx(ctx).Warn().Err(rerr).
					Str("user_id", reservation.UserID).
					Msg("Failed to prune cart entry after cancellation")
			}
		}
	}

	if err := s.jobs.Delete(ctx, jobID); err != nil {
		span.RecordError(err)
		return err
	}

	logger.Ctx(ctx).Info().
		Str("job_id", jobID).
		Uint("order_id", job.OrderID).
		Bool("reservation_cancelled", cancelled).
		Msg("Settlement job cancelled by operator")
	return nil
}

// PurgeCompleted 清理早于保留期的 completed 任务记录，
// 并对滞留过久的 failed 任务打告警日志，提醒运维处理。
func (s *RecoveryService) PurgeCompleted(ctx context.Context, retention time.Duration) error {
	cutoff := time.Now().Add(-retention)
	purged, err := s.jobs.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if purged > 0 {
		logger.Ctx(ctx).Info().
			Int64("purged", purged).
			Msg("Purged completed settlement job records")
	}

	failed, err := s.jobs.ListByState(ctx, domain.JobStateFailed, failedJobListLimit)
	if err != nil {
		return err
	}
	for _, f := range failed {
		if f.UpdatedAt.Before(cutoff) {
			logger.Ctx(ctx).Warn().
				Str("job_id", f.ID).
				Time("failed_since", f.UpdatedAt).
				Msg("Dead-lettered settlement job awaiting operator action")
		}
	}
	return nil
}

func jobFromRecord(record *domain.SettlementJobRecord) (*domain.SettlementJob, error) {
	var job domain.SettlementJob
	if err := json.Unmarshal([]byte(record.Payload), &job); err != nil {
		return nil, errors.Wrapf(err, "unmarshal settlement job payload, job %s", record.ID)
	}
	return &job, nil
}
