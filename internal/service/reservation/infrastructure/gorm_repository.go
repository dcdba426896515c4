// internal/service/reservation/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/domain"
)

// GormReservationRepository 是 domain.ReservationRepository 的 GORM 实现。
// 所有状态流转都在行锁或状态守卫条件的保护下执行，
// 与并发的回收器 / 工作进程以数据库行锁为串行化点。
type GormReservationRepository struct {
	db *gorm.DB
}

func NewGormReservationRepository(db *gorm.DB) *GormReservationRepository {
	return &GormReservationRepository{db: db}
}

func (r *GormReservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	model := &ReservationModel{
		ProductID:     res.ProductID,
		UserID:        res.UserID,
		ReservationID: res.ReservationID,
		Status:        string(res.Status),
		ExpiresAt:     res.ExpiresAt,
		Amount:        res.Amount,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return errors.Wrap(err, "create reservation")
	}
	res.ID = model.ID
	return nil
}

func (r *GormReservationRepository) FindByOrderID(ctx context.Context, orderID uint) (*domain.Reservation, error) {
	var model ReservationModel
	err := r.db.WithContext(ctx).First(&model, orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrReservationNotFound
		}
		return nil, errors.Wrap(err, "find reservation")
	}
	return toDomainReservation(&model), nil
}

// TransitionToPaymentPending 先锁定仍处于 pending 的行，再做一次批量更新。
// 不在 pending 的行（例如刚被过期回收）被静默排除。
func (r *GormReservationRepository) TransitionToPaymentPending(ctx context.Context, reservationIDs []string) ([]*domain.Reservation, error) {
	var updated []*domain.Reservation
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var models []ReservationModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("reservation_id IN ? AND status = ?", reservationIDs, string(domain.StatusPending)).
			Find(&models).Error; err != nil {
			return err
		}
		if len(models) == 0 {
			return nil
		}

		ids := make([]uint, 0, len(models))
		for i := range models {
			ids = append(ids, models[i].ID)
		}
		now := time.Now()
		if err := tx.Model(&ReservationModel{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":     string(domain.StatusPaymentPending),
				"updated_at": now,
			}).Error; err != nil {
			return err
		}

		for i := range models {
			models[i].Status = string(domain.StatusPaymentPending)
			models[i].UpdatedAt = now
			updated = append(updated, toDomainReservation(&models[i]))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "transition to payment_pending")
	}
	return updated, nil
}

func (r *GormReservationRepository) RevertToPending(ctx context.Context, reservationIDs []string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&ReservationModel{}).
		Where("reservation_id IN ? AND status = ?", reservationIDs, string(domain.StatusPaymentPending)).
		Updates(map[string]interface{}{
			"status":     string(domain.StatusPending),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "revert to pending")
	}
	return result.RowsAffected, nil
}

// Expire 的状态守卫保证每个 Hold 只被标记一次：
// 竞争失败的一方观察到非 pending 状态后直接放弃。
func (r *GormReservationRepository) Expire(ctx context.Context, reservationID string) (bool, error) {
	transitioned := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model ReservationModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("reservation_id = ?", reservationID).
			First(&model).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if model.Status != string(domain.StatusPending) {
			return nil
		}
		if err := tx.Model(&model).Updates(map[string]interface{}{
			"status":     string(domain.StatusExpired),
			"updated_at": time.Now(),
		}).Error; err != nil {
			return err
		}
		transitioned = true
		return nil
	})
	if err != nil {
		return false, errors.Wrap(err, "expire reservation")
	}
	return transitioned, nil
}

// FindExpiredPending 只做普通读，不加行锁：候选行在独立事务里
// 逐行走 Expire，读时加的锁在本查询提交后即失效，挡不住并发回收器。
// 多个实例拿到同一批候选行是允许的，串行化点是 Expire 的守卫流转，
// 输掉流转的一方拿到 transitioned=false。
func (r *GormReservationRepository) FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]*domain.Reservation, error) {
	var models []ReservationModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", string(domain.StatusPending), now).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "find expired pending")
	}
	out := make([]*domain.Reservation, 0, len(models))
	for i := range models {
		out = append(out, toDomainReservation(&models[i]))
	}
	return out, nil
}

// Fulfill 在一个事务内完成履约。订单已是 completed 时报告幂等重放，
// 持久库存扣减影响 0 行时整个事务回滚。
func (r *GormReservationRepository) Fulfill(ctx context.Context, orderID uint) (bool, error) {
	fulfilled := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model ReservationModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, orderID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrReservationNotFound
			}
			return err
		}

		// 幂等重放：任务至少投递一次，已完成的订单直接确认成功
		if model.Status == string(domain.StatusCompleted) {
			return nil
		}
		// 意料之外的状态（已取消、已过期、被补偿回 pending）：跳过，不再流转
		if model.Status != string(domain.StatusPaymentPending) {
			return nil
		}

		result := tx.Model(&ProductModel{}).
			Where("id = ? AND inventory > 0", model.ProductID).
			UpdateColumn("inventory", gorm.Expr("inventory - 1"))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// 持久真值已耗尽：数据一致性告警，不允许被静默吞掉
			return domain.ErrDurableStockExhausted
		}

		now := time.Now()
		if err := tx.Model(&model).Updates(map[string]interface{}{
			"status":       string(domain.StatusCompleted),
			"updated_at":   now,
			"completed_at": now,
		}).Error; err != nil {
			return err
		}
		fulfilled = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return fulfilled, nil
}

func (r *GormReservationRepository) Cancel(ctx context.Context, reservationID string) (bool, *domain.Reservation, error) {
	var (
		cancelled bool
		res       *domain.Reservation
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model ReservationModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("reservation_id = ?", reservationID).
			First(&model).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrReservationNotFound
			}
			return err
		}
		res = toDomainReservation(&model)
		if domain.Status(model.Status).IsTerminal() {
			return nil
		}
		if err := tx.Model(&model).Updates(map[string]interface{}{
			"status":     string(domain.StatusCancelled),
			"updated_at": time.Now(),
		}).Error; err != nil {
			return err
		}
		cancelled = true
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	return cancelled, res, nil
}

func (r *GormReservationRepository) CountActiveHolds(ctx context.Context, now time.Time) (map[string]int64, error) {
	type row struct {
		ProductID string
		Total     int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&ReservationModel{}).
		Select("product_id, COUNT(*) AS total").
		Where("(status = ? AND expires_at > ?) OR status = ?",
			string(domain.StatusPending), now, string(domain.StatusPaymentPending)).
		Group("product_id").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "count active holds")
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.ProductID] = r.Total
	}
	return counts, nil
}

// GormProductRepository 是 domain.ProductRepository 的 GORM 实现。
type GormProductRepository struct {
	db *gorm.DB
}

func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

func (r *GormProductRepository) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	var model ProductModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, errors.Wrap(err, "find product")
	}
	return toDomainProduct(&model), nil
}

func (r *GormProductRepository) ListAll(ctx context.Context) ([]*domain.Product, error) {
	var models []ProductModel
	if err := r.db.WithContext(ctx).Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	out := make([]*domain.Product, 0, len(models))
	for i := range models {
		out = append(out, toDomainProduct(&models[i]))
	}
	return out, nil
}
