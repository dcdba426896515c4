// internal/service/reservation/infrastructure/job_store.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/domain"
)

// GormSettlementJobStore 是 domain.SettlementJobStore 的 GORM 实现。
// 消息本体走 Kafka，这张表只承载任务的可观测状态与运维恢复入口。
type GormSettlementJobStore struct {
	db *gorm.DB
}

func NewGormSettlementJobStore(db *gorm.DB) *GormSettlementJobStore {
	return &GormSettlementJobStore{db: db}
}

func (s *GormSettlementJobStore) Create(ctx context.Context, rec *domain.SettlementJobRecord) error {
	model := &SettlementJobModel{
		ID:       rec.ID,
		Type:     string(rec.Type),
		Payload:  rec.Payload,
		Attempts: rec.Attempts,
		State:    string(rec.State),
	}
	return errors.Wrap(s.db.WithContext(ctx).Create(model).Error, "create settlement job")
}

func (s *GormSettlementJobStore) FindByID(ctx context.Context, id string) (*domain.SettlementJobRecord, error) {
	var model SettlementJobModel
	err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, errors.Wrap(err, "find settlement job")
	}
	return toDomainJobRecord(&model), nil
}

func (s *GormSettlementJobStore) ListByState(ctx context.Context, state domain.JobState, limit int) ([]*domain.SettlementJobRecord, error) {
	var models []SettlementJobModel
	err := s.db.WithContext(ctx).
		Where("state = ?", string(state)).
		Order("updated_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "list settlement jobs")
	}
	out := make([]*domain.SettlementJobRecord, 0, len(models))
	for i := range models {
		out = append(out, toDomainJobRecord(&models[i]))
	}
	return out, nil
}

func (s *GormSettlementJobStore) MarkActive(ctx context.Context, id string, attempts int) error {
	return s.setState(ctx, id, domain.JobStateActive, attempts, "")
}

func (s *GormSettlementJobStore) MarkCompleted(ctx context.Context, id string) error {
	return errors.Wrap(s.db.WithContext(ctx).Model(&SettlementJobModel{}).
		Where("id = ?", id).
		Update("state", string(domain.JobStateCompleted)).Error, "mark job completed")
}

func (s *GormSettlementJobStore) MarkFailed(ctx context.Context, id string, lastError string) error {
	return errors.Wrap(s.db.WithContext(ctx).Model(&SettlementJobModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"state":      string(domain.JobStateFailed),
			"last_error": lastError,
		}).Error, "mark job failed")
}

func (s *GormSettlementJobStore) MarkWaiting(ctx context.Context, id string, attempts int) error {
	return s.setState(ctx, id, domain.JobStateWaiting, attempts, "")
}

func (s *GormSettlementJobStore) Delete(ctx context.Context, id string) error {
	return errors.Wrap(s.db.WithContext(ctx).
		Delete(&SettlementJobModel{}, "id = ?", id).Error, "delete settlement job")
}

func (s *GormSettlementJobStore) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("state = ? AND updated_at < ?", string(domain.JobStateCompleted), cutoff).
		Delete(&SettlementJobModel{})
	return result.RowsAffected, errors.Wrap(result.Error, "delete completed jobs")
}

func (s *GormSettlementJobStore) setState(ctx context.Context, id string, state domain.JobState, attempts int, lastError string) error {
	updates := map[string]interface{}{
		"state":    string(state),
		"attempts": attempts,
	}
	if lastError != "" {
		updates["last_error"] = lastError
	}
	return errors.Wrapf(s.db.WithContext(ctx).Model(&SettlementJobModel{}).
		Where("id = ?", id).
		Updates(updates).Error, "mark job %s", state)
}
