// internal/service/reservation/domain/reservation.go
package domain

import (
	"fmt"
	"time"
)

// Status 定义了一次库存预订（Hold）的生命周期状态。
type Status string

const (
	StatusPending        Status = "pending"         // 已占用易失库存，等待结算
	StatusPaymentPending Status = "payment_pending" // 购物车校验通过，等待支付结果
	StatusCompleted      Status = "completed"       // 已支付并扣减持久库存，终态
	StatusCancelled      Status = "cancelled"       // 运维取消或结算永久失败，终态
	StatusExpired        Status = "expired"         // TTL 到期回收，终态
)

// IsTerminal 报告状态是否为终态。终态之后不允许任何流转。
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusExpired
}

// Reservation 是 Hold 聚合的根实体，对应持久层的一行预订记录。
// 一行记录只代表一个商品单件的占用；completed / cancelled 之后不可变。
type Reservation struct {
	ID            uint
	ProductID     string
	UserID        string
	ReservationID string // 规范形式 "{productId}:rev-{token}"，每个 Hold 唯一
	Status        Status
	ExpiresAt     time.Time
	Amount        float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

// NewReservation 创建一个处于 pending 状态的新预订。
func NewReservation(productID, userID, token string, amount float64, ttl time.Duration) (*Reservation, error) {
	if productID == "" || userID == "" || token == "" {
		return nil, fmt.Errorf("%w: product, user and token are required", ErrInvalidTransition)
	}
	now := time.Now()
	return &Reservation{
		ProductID:     productID,
		UserID:        userID,
		ReservationID: CartEntry{ProductID: productID, Token: token}.String(),
		Status:        StatusPending,
		ExpiresAt:     now.Add(ttl),
		Amount:        amount,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// MarkPaymentPending 在购物车校验通过后，将预订划入结算流程。
func (r *Reservation) MarkPaymentPending() error {
	if r.Status != StatusPending {
		return transitionError(r.Status, StatusPaymentPending)
	}
	r.Status = StatusPaymentPending
	r.UpdatedAt = time.Now()
	return nil
}

// RevertToPending 是支付授权失败后的补偿流转。
// 预订本身仍然有效，只是这次支付尝试失败了，库存不做任何回补。
func (r *Reservation) RevertToPending() error {
	if r.Status != StatusPaymentPending {
		return transitionError(r.Status, StatusPending)
	}
	r.Status = StatusPending
	r.UpdatedAt = time.Now()
	return nil
}

// MarkCompleted 在持久库存扣减成功后落入终态。
func (r *Reservation) MarkCompleted() error {
	if r.Status != StatusPaymentPending {
		return transitionError(r.Status, StatusCompleted)
	}
	now := time.Now()
	r.Status = StatusCompleted
	r.UpdatedAt = now
	r.CompletedAt = &now
	return nil
}

// MarkExpired 由过期回收器调用，只允许从 pending 进入。
func (r *Reservation) MarkExpired() error {
	if r.Status != StatusPending {
		return transitionError(r.Status, StatusExpired)
	}
	r.Status = StatusExpired
	r.UpdatedAt = time.Now()
	return nil
}

// MarkCancelled 由运维动作或结算永久失败触发。
func (r *Reservation) MarkCancelled() error {
	if r.Status.IsTerminal() {
		return transitionError(r.Status, StatusCancelled)
	}
	r.Status = StatusCancelled
	r.UpdatedAt = time.Now()
	return nil
}

func transitionError(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
