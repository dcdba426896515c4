// internal/service/reservation/infrastructure/adapter/holdledger_redis_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/TheBigWealth89/product-reservation/internal/pkg/logger"
	"github.com/TheBigWealth89/product-reservation/internal/pkg/redis"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/domain"
)

const (
	placeHoldScriptName    = "place_hold"
	validateCartScriptName = "validate_cart"
)

// HoldLedgerRedisAdapter 是 port.HoldLedger 接口的 Redis 实现。
// 创建时加载所有需要的 Lua 脚本；TryPlaceHold 和 ValidateCart
// 都在 Redis 端以单个脚本执行，不存在 check-then-act 的竞争窗口。
type HoldLedgerRedisAdapter struct {
	redisClient *redis.Client
}

// NewHoldLedgerRedisAdapter 创建一个新的 Hold Ledger 适配器实例。
func NewHoldLedgerRedisAdapter(redisClient *redis.Client) (*HoldLedgerRedisAdapter, error) {
	if err := redisClient.LoadScriptFromContent(placeHoldScriptName, placeHoldScript); err != nil {
		return nil, fmt.Errorf("failed to load critical place_hold script: %w", err)
	}
	if err := redisClient.LoadScriptFromContent(validateCartScriptName, validateCartScript); err != nil {
		return nil, fmt.Errorf("failed to load critical validate_cart script: %w", err)
	}
	return &HoldLedgerRedisAdapter{redisClient: redisClient}, nil
}

// TryPlaceHold 原子递减并返回递减后的计数。
// 负值意味着库存已被抢完，调用方据此返回 OutOfStock；
// 计数本身保持负值，由 Inventory Sync 周期性拉回正确值。
func (a *HoldLedgerRedisAdapter) TryPlaceHold(ctx context.Context, productID string) (int64, error) {
	result, err := a.redisClient.RunScript(ctx, placeHoldScriptName, []string{domain.InventoryKey(productID)})
	if err != nil {
		return 0, fmt.Errorf("hold ledger failed to run script: %w", err)
	}
	newCount, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected result type from Lua script: %T", result)
	}
	if newCount >= 0 {
		a.publishUpdate(ctx, productID, newCount)
	}
	return newCount, nil
}

// PlaceHoldMarker 写入带 TTL 的 hold 标记，过期回收依赖它的超时事件。
func (a *HoldLedgerRedisAdapter) PlaceHoldMarker(ctx context.Context, productID, userID, token string, ttl time.Duration) error {
	key := domain.HoldKey(productID, userID, token)
	return a.redisClient.GetClient().SetEx(ctx, key, "reserved", ttl).Err()
}

func (a *HoldLedgerRedisAdapter) AddCartEntry(ctx context.Context, userID string, entry domain.CartEntry) error {
	return a.redisClient.GetClient().SAdd(ctx, domain.CartKey(userID), entry.String()).Err()
}

func (a *HoldLedgerRedisAdapter) RemoveCartEntry(ctx context.Context, userID string, entry domain.CartEntry) error {
	return a.redisClient.GetClient().SRem(ctx, domain.CartKey(userID), entry.String()).Err()
}

// ValidateCart 在一次脚本执行中对整个购物车做存活校验，
// 标记已消失的条目同时从购物车移除，防止校验和使用之间再次过期。
func (a *HoldLedgerRedisAdapter) ValidateCart(ctx context.Context, userID string) ([]domain.CartEntry, []domain.CartEntry, error) {
	result, err := a.redisClient.RunScript(ctx, validateCartScriptName,
		[]string{domain.CartKey(userID)}, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("hold ledger failed to run script: %w", err)
	}

	pair, ok := result.([]interface{})
	if !ok || len(pair) != 2 {
		return nil, nil, fmt.Errorf("unexpected result shape from Lua script: %T", result)
	}
	valid, err := toCartEntries(pair[0])
	if err != nil {
		return nil, nil, err
	}
	expired, err := toCartEntries(pair[1])
	if err != nil {
		return nil, nil, err
	}
	return valid, expired, nil
}

// Restore 原子递增计数，用于过期与取消补偿路径。
func (a *HoldLedgerRedisAdapter) Restore(ctx context.Context, productID string) (int64, error) {
	newCount, err := a.redisClient.GetClient().Incr(ctx, domain.InventoryKey(productID)).Result()
	if err != nil {
		return 0, fmt.Errorf("hold ledger failed to restore stock: %w", err)
	}
	a.publishUpdate(ctx, productID, newCount)
	return newCount, nil
}

// SetAvailable 覆写一批商品的可售计数（Inventory Sync 专用）。
func (a *HoldLedgerRedisAdapter) SetAvailable(ctx context.Context, available map[string]int64) error {
	pipe := a.redisClient.GetClient().Pipeline()
	for productID, count := range available {
		pipe.Set(ctx, domain.InventoryKey(productID), count, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hold ledger failed to overwrite counters: %w", err)
	}
	for productID, count := range available {
		a.publishUpdate(ctx, productID, count)
	}
	return nil
}

// GetAvailable 读取单个商品的可售计数，供商品读路径展示。
// Key 不存在时返回 (0, false)。
func (a *HoldLedgerRedisAdapter) GetAvailable(ctx context.Context, productID string) (int64, bool, error) {
	val, err := a.redisClient.GetClient().Get(ctx, domain.InventoryKey(productID)).Int64()
	if err != nil {
		if err == goredis.Nil {
			return 0, false, nil
		}
		return 0, false, err
	}
	return val, true, nil
}

func (a *HoldLedgerRedisAdapter) publishUpdate(ctx context.Context, productID string, newInventory int64) {
	payload, err := json.Marshal(domain.InventoryUpdate{ProductID: productID, NewInventory: newInventory})
	if err != nil {
		return
	}
	if err := a.redisClient.GetClient().Publish(ctx, domain.InventoryUpdatesChannel, payload).Err(); err != nil {
		// 发布失败不影响主流程，展示层的下一次更新会覆盖
		logger.Ctx(ctx).Warn().Err(err).Str("product_id", productID).Msg("failed to publish inventory update")
	}
}

func toCartEntries(raw interface{}) ([]domain.CartEntry, error) {
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected entry list type from Lua script: %T", raw)
	}
	entries := make([]domain.CartEntry, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected entry type from Lua script: %T", item)
		}
		entry, err := domain.ParseCartEntry(s)
		if err != nil {
			// 脚本侧已把畸形条目从购物车剔除，这里只能忽略
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

var placeHoldScript = `
-- KEYS[1]: 商品可售计数的 Key, 例如: inventory:product-42

-- 计数递减与读取必须是同一步：并发的抢占者拿到的返回值
-- 互不相同，负值即为超卖信号。
return redis.call('decr', KEYS[1])
`

var validateCartScript = `
-- KEYS[1]: 购物车集合的 Key, 例如: cart:user-1234
-- ARGV[1]: 用户 ID

-- 对整个购物车做一次原子存活校验：
-- hold 标记还在的条目进 valid，消失的条目移出购物车并进 expired。
local entries = redis.call('smembers', KEYS[1])
local valid = {}
local expired = {}

for _, entry in ipairs(entries) do
    local sep = string.find(entry, ':rev-', 1, true)
    if sep then
        local productId = string.sub(entry, 1, sep - 1)
        local token = string.sub(entry, sep + 5)
        local holdKey = 'reservation:product:' .. productId .. ':user-' .. ARGV[1] .. ':rev-' .. token
        if redis.call('exists', holdKey) == 1 then
            table.insert(valid, entry)
        else
            redis.call('srem', KEYS[1], entry)
            table.insert(expired, entry)
        end
    else
        -- 无法解析的历史条目直接清掉
        redis.call('srem', KEYS[1], entry)
        table.insert(expired, entry)
    end
end

return {valid, expired}
`
