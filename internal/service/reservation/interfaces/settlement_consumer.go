// internal/service/reservation/interfaces/settlement_consumer.go
package interfaces

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"github.com/TheBigWealth89/product-reservation/internal/pkg/logger"
	"github.com/TheBigWealth89/product-reservation/internal/pkg/mq"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/application"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/domain"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/domain/port"
)

// SettlementConsumerAdapter 是一个驱动适配器，它消费结算队列并驱动履约服务。
// 处理失败的消息按固定退避重新入队，次数耗尽后转入死信主题，
// 任务表里对应的记录同步落为 failed，等待运维处理。
type SettlementConsumerAdapter struct {
	reader    *kafka.Reader
	dltWriter *kafka.Writer
	fulfill   *application.FulfillmentService
	producer  port.SettlementProducer
	jobs      domain.SettlementJobStore

	maxAttempts int
	backoff     time.Duration

	wg      sync.WaitGroup
	stopped bool
}

func NewSettlementConsumerAdapter(
	reader *kafka.Reader,
	dltWriter *kafka.Writer,
	fulfill *application.FulfillmentService,
	producer port.SettlementProducer,
	jobs domain.SettlementJobStore,
	maxAttempts int,
	backoff time.Duration,
) *SettlementConsumerAdapter {
	return &SettlementConsumerAdapter{
		reader:      reader,
		dltWriter:   dltWriter,
		fulfill:     fulfill,
		producer:    producer,
		jobs:        jobs,
		maxAttempts: maxAttempts,
		backoff:     backoff,
	}
}

// Start 开始消费结算主题。这是一个长期运行的方法。
func (a *SettlementConsumerAdapter) Start(ctx context.Context) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("✅ Settlement Consumer Adapter started.")
		for {
			if a.stopped {
				return
			}
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Msg("🛑 Settlement Consumer Adapter shutting down.")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("Failed to fetch settlement message, retrying")
				time.Sleep(1 * time.Second)
				continue
			}

			propagator := otel.GetTextMapPropagator()
			headerCarrier := mq.KafkaHeaderCarrier(msg.Headers)
			newCtx := propagator.Extract(ctx, &headerCarrier)

			if processingErr := a.processMessage(newCtx, msg); processingErr != nil {
				a.handleFailure(newCtx, msg, processingErr)
			}

			// 成功或已移交（重试 / 死信）的消息都提交 Offset
			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("Failed to commit messages")
			}
		}
	}()
	return nil
}

// Stop 优雅地停止消费者。
func (a *SettlementConsumerAdapter) Stop(ctx context.Context) {
	a.stopped = true
	a.reader.Close()
	a.wg.Wait()
	logger.Ctx(ctx).Info().Msg("✅ Settlement Consumer Adapter stopped.")
}

// processMessage 反序列化任务并调用履约服务。
func (a *SettlementConsumerAdapter) processMessage(ctx context.Context, msg kafka.Message) error {
	var job domain.SettlementJob
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		return err
	}
	if job.Type != domain.JobTypeFulfill {
		logger.Ctx(ctx).Warn().Str("job_type", string(job.Type)).Msg("Skipping unknown settlement job type")
		return nil
	}

	if err := a.jobs.MarkActive(ctx, job.ID, job.Attempts); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("job_id", job.ID).Msg("Failed to mark job active")
	}

	if err := a.fulfill.Fulfill(ctx, job.OrderID); err != nil {
		return err
	}

	if err := a.jobs.MarkCompleted(ctx, job.ID); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("job_id", job.ID).Msg("Failed to mark job completed")
	}
	return nil
}

// handleFailure 决定失败消息的去向：退避后重试，或转入死信主题。
func (a *SettlementConsumerAdapter) handleFailure(ctx context.Context, msg kafka.Message, processingErr error) {
	var job domain.SettlementJob
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		// 连载荷都解析不了的消息直接进死信
		a.sendToDlt(ctx, msg, fmt.Errorf("unmarshal job payload: %v (original error %v)", err, processingErr))
		return
	}

	nextAttempt := job.Attempts + 1
	if nextAttempt < a.maxAttempts {
		logger.Ctx(ctx).Warn().Err(processingErr).
			Str("job_id", job.ID).
			Int("attempt", nextAttempt).
			Int("max_attempts", a.maxAttempts).
			Msg("Settlement job failed, re-enqueueing with backoff")

		// 固定退避，与载荷里声明的间隔一致
		time.Sleep(time.Duration(job.BackoffMillis) * time.Millisecond)
		job.Attempts = nextAttempt
		if err := a.producer.Enqueue(ctx, &job); err != nil {
			logger.Ctx(ctx).Error().Err(err).
				Str("job_id", job.ID).
				Msg("Failed to re-enqueue settlement job, sending to DLT")
			a.sendToDlt(ctx, msg, processingErr)
			a.markFailed(ctx, job.ID, processingErr)
		}
		return
	}

	logger.Ctx(ctx).Error().Err(processingErr).
		Str("job_id", job.ID).
		Int("attempts", nextAttempt).
		Msg("🚨 Settlement job exhausted retries, dead-lettering")
	a.sendToDlt(ctx, msg, processingErr)
	a.markFailed(ctx, job.ID, processingErr)
	application.SettlementDeadLettered()
}

func (a *SettlementConsumerAdapter) sendToDlt(ctx context.Context, msg kafka.Message, cause error) {
	headers := append(msg.Headers,
		kafka.Header{Key: mq.HeaderOriginalTopic, Value: []byte(msg.Topic)},
		kafka.Header{Key: mq.HeaderOriginalPartition, Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: mq.HeaderOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: mq.HeaderExceptionMessage, Value: []byte(cause.Error())},
	)
	if err := mq.ProduceMessage(ctx, a.dltWriter, msg.Key, msg.Value, headers...); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("key", string(msg.Key)).
			Msg("CRITICAL: failed to publish message to DLT, job state table is the only trace")
	}
}

func (a *SettlementConsumerAdapter) markFailed(ctx context.Context, jobID string, cause error) {
	if err := a.jobs.MarkFailed(ctx, jobID, cause.Error()); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("job_id", jobID).Msg("Failed to mark job as failed")
	}
}
