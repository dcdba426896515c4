// internal/service/reservation/domain/events.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobType 区分结算队列中的任务种类。
type JobType string

const (
	// JobTypeFulfill 针对单个已支付订单做持久库存扣减。
	JobTypeFulfill JobType = "fulfill"
)

// JobState 是任务在持久任务表中的状态。
type JobState string

const (
	JobStateWaiting   JobState = "waiting"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed" // 死信，等待运维重试或取消
)

// SettlementJob 是结算队列消息的载荷。
// Attempts 随消息传递，消费失败时自增后重新入队。
type SettlementJob struct {
	ID                string   `json:"id"`
	Type              JobType  `json:"type"`
	OrderID           uint     `json:"orderId,omitempty"`
	ReservationTokens []string `json:"reservationTokens,omitempty"`
	UserID            string   `json:"userId,omitempty"`
	Attempts          int      `json:"attempts"`
	BackoffMillis     int64    `json:"backoff"`
}

// NewFulfillJob 创建一个针对单个订单的履约任务。
func NewFulfillJob(orderID uint, userID string, backoff time.Duration) *SettlementJob {
	return &SettlementJob{
		ID:            uuid.New().String(),
		Type:          JobTypeFulfill,
		OrderID:       orderID,
		UserID:        userID,
		BackoffMillis: backoff.Milliseconds(),
	}
}

// InventoryUpdate 是 Hold Ledger 每次变更后对外发布的消息体。
type InventoryUpdate struct {
	ProductID    string `json:"productId"`
	NewInventory int64  `json:"newInventory"`
}

// PaymentEvent 是支付服务商回调的事件契约。
// metadata.order_ids 是逗号分隔的订单 ID 列表。
type PaymentEvent struct {
	Type     string `json:"type"`
	Metadata struct {
		OrderIDs string `json:"order_ids"`
	} `json:"metadata"`
}

// PaymentSucceededEvent 是唯一会触发履约的回调事件类型。
const PaymentSucceededEvent = "payment_succeeded"
