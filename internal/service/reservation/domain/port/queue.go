// internal/service/reservation/domain/port/queue.go
package port

import (
	"context"

	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/domain"
)

// SettlementProducer 是结算队列的生产端出站端口。
// 队列保证至少一次投递，消费方必须幂等。
type SettlementProducer interface {
	Enqueue(ctx context.Context, job *domain.SettlementJob) error
}
