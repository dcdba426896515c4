// internal/service/reservation/infrastructure/adapter/settlement_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/TheBigWealth89/product-reservation/internal/pkg/mq"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/domain"
)

// SettlementKafkaProducer 是 port.SettlementProducer 的 Kafka 实现。
// 每次入队同时维护持久任务表：首投创建 waiting 记录，
// 重试投递只把已有记录刷回 waiting。
type SettlementKafkaProducer struct {
	writer *kafka.Writer
	jobs   domain.SettlementJobStore
}

func NewSettlementKafkaProducer(writer *kafka.Writer, jobs domain.SettlementJobStore) *SettlementKafkaProducer {
	return &SettlementKafkaProducer{writer: writer, jobs: jobs}
}

func (p *SettlementKafkaProducer) Enqueue(ctx context.Context, job *domain.SettlementJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "marshal settlement job")
	}

	// 运维重试会把同一任务 ID 以 attempts=0 再次入队，
	// 因此先查记录是否存在，存在则刷回 waiting 而不是重复创建
	if _, ferr := p.jobs.FindByID(ctx, job.ID); ferr != nil {
		if !errors.Is(ferr, domain.ErrJobNotFound) {
			return ferr
		}
		rec := &domain.SettlementJobRecord{
			ID:       job.ID,
			Type:     job.Type,
			Payload:  string(payload),
			Attempts: job.Attempts,
			State:    domain.JobStateWaiting,
		}
		if err := p.jobs.Create(ctx, rec); err != nil {
			return err
		}
	} else {
		if err := p.jobs.MarkWaiting(ctx, job.ID, job.Attempts); err != nil {
			return err
		}
	}

	// 以任务 ID 作为分区键，同一任务的重试保持在同一分区内有序
	err = mq.ProduceMessage(ctx, p.writer, []byte(job.ID), payload,
		kafka.Header{Key: mq.HeaderAttempts, Value: []byte(strconv.Itoa(job.Attempts))})
	return errors.Wrap(err, "produce settlement job")
}
