// internal/service/reservation/interfaces/expiry_listener.go
package interfaces

import (
	"context"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/TheBigWealth89/product-reservation/internal/pkg/logger"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/application"
)

// 订阅所有库的键过期事件，需要 Redis 开启 notify-keyspace-events Ex
const expiredEventPattern = "__keyevent@*__:expired"

// ExpiryListenerAdapter 订阅 Redis 键过期通知并驱动过期回收服务。
// 通知是尽力而为的（Redis 重启或订阅断连会丢事件），
// 低延迟回收靠它，正确性靠周期性扫表兜底。
type ExpiryListenerAdapter struct {
	client *goredis.Client
	expiry *application.ExpiryService

	workers int
	pubsub  *goredis.PubSub
	wg      sync.WaitGroup
}

func NewExpiryListenerAdapter(client *goredis.Client, expiry *application.ExpiryService, workers int) *ExpiryListenerAdapter {
	if workers <= 0 {
		workers = 4
	}
	return &ExpiryListenerAdapter{
		client:  client,
		expiry:  expiry,
		workers: workers,
	}
}

// Start 建立订阅并启动处理协程池。这是一个长期运行的方法。
func (a *ExpiryListenerAdapter) Start(ctx context.Context) error {
	a.pubsub = a.client.PSubscribe(ctx, expiredEventPattern)
	// 确认订阅建立，失败直接报给调用方
	if _, err := a.pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := a.pubsub.Channel()
	for i := 0; i < a.workers; i++ {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			for msg := range ch {
				a.handleExpiredKey(ctx, msg.Payload)
			}
		}()
	}

	logger.Ctx(ctx).Info().
		Str("pattern", expiredEventPattern).
		Int("workers", a.workers).
		Msg("✅ Expiry Listener Adapter started.")
	return nil
}

// Stop 关闭订阅并等待在途事件处理完毕。
func (a *ExpiryListenerAdapter) Stop(ctx context.Context) {
	if a.pubsub != nil {
		a.pubsub.Close()
	}
	a.wg.Wait()
	logger.Ctx(ctx).Info().Msg("✅ Expiry Listener Adapter stopped.")
}

func (a *ExpiryListenerAdapter) handleExpiredKey(ctx context.Context, key string) {
	// 订阅面向整个实例，非持留键在 ExpireByKey 内被直接忽略
	if err := a.expiry.ExpireByKey(ctx, key); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("key", key).
			Msg("Failed to reclaim expired hold from notification, sweep will retry")
	}
}
