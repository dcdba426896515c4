// internal/service/reservation/domain/repository.go
package domain

import (
	"context"
	"time"
)

// ReservationRepository 定义了 Hold 聚合的持久化接口。
// 位于领域层，由基础设施层实现。所有状态流转方法都以行锁
// 或状态守卫条件保证与并发的回收器 / 工作进程串行化。
type ReservationRepository interface {
	Create(ctx context.Context, r *Reservation) error
	FindByOrderID(ctx context.Context, orderID uint) (*Reservation, error)

	// TransitionToPaymentPending 将一批 pending 预订批量划入结算流程，
	// 返回实际受影响的行。不在 pending 状态的行被静默排除
	// （与并发过期回收之间的良性竞争）。
	TransitionToPaymentPending(ctx context.Context, reservationIDs []string) ([]*Reservation, error)

	// RevertToPending 是支付授权失败后的补偿：把刚刚划入
	// payment_pending 的行退回 pending，返回受影响行数。
	RevertToPending(ctx context.Context, reservationIDs []string) (int64, error)

	// Expire 锁定单行并将 pending 预订标记为 expired。
	// 返回是否真的发生了流转；false 表示该行已被其他路径处理。
	Expire(ctx context.Context, reservationID string) (bool, error)

	// FindExpiredPending 返回已过 TTL 仍处于 pending 的候选行。
	// 不同回收器实例可能返回重叠的候选集，逐行 Expire 负责去重。
	FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]*Reservation, error)

	// Fulfill 在单个事务内完成履约：锁行、幂等检查、
	// 条件扣减持久库存、标记 completed。
	// 订单已是 completed 时返回 (false, nil)（幂等重放）。
	// 持久库存扣减影响 0 行时返回 ErrDurableStockExhausted。
	Fulfill(ctx context.Context, orderID uint) (bool, error)

	// Cancel 锁定单行并取消一个非终态预订。
	// 返回流转是否发生及该行（用于回补库存）。
	Cancel(ctx context.Context, reservationID string) (bool, *Reservation, error)

	// CountActiveHolds 按商品统计未过期 pending 与 payment_pending 的行数，
	// 供 Inventory Sync 重算可售计数。
	CountActiveHolds(ctx context.Context, now time.Time) (map[string]int64, error)
}

// ProductRepository 提供商品持久真值的读取。
type ProductRepository interface {
	FindByID(ctx context.Context, id string) (*Product, error)
	ListAll(ctx context.Context) ([]*Product, error)
}

// SettlementJobRecord 是任务在持久任务表中的可见形态，
// 供运维端点和死信排查使用。
type SettlementJobRecord struct {
	ID        string
	Type      JobType
	Payload   string // 序列化后的 SettlementJob
	Attempts  int
	State     JobState
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SettlementJobStore 维护任务的持久可见状态。
// 消息本身走队列，这张表只负责可观测性与运维恢复路径。
type SettlementJobStore interface {
	Create(ctx context.Context, rec *SettlementJobRecord) error
	FindByID(ctx context.Context, id string) (*SettlementJobRecord, error)
	ListByState(ctx context.Context, state JobState, limit int) ([]*SettlementJobRecord, error)
	MarkActive(ctx context.Context, id string, attempts int) error
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, lastError string) error
	MarkWaiting(ctx context.Context, id string, attempts int) error
	Delete(ctx context.Context, id string) error
	// DeleteCompletedBefore 清理早于给定时间的 completed 任务行。
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
