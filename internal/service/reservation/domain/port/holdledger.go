// internal/service/reservation/domain/port/holdledger.go
package port

import (
	"context"
	"time"

	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/domain"
)

// HoldLedger 是易失可售计数存储的出站端口。
// TryPlaceHold / ValidateCart 必须在存储端以单个不可分割的
// 脚本执行，调用方不允许拆成先读后写两次往返。
type HoldLedger interface {
	// TryPlaceHold 原子递减商品可售计数并返回递减后的值。
	// 递减前的值 <= 0 时递减依然发生，负的返回值向调用方
	// 传达 OutOfStock，此时不得创建持久预订。
	TryPlaceHold(ctx context.Context, productID string) (int64, error)

	// PlaceHoldMarker 写入带 TTL 的 hold 标记。
	PlaceHoldMarker(ctx context.Context, productID, userID, token string, ttl time.Duration) error

	// AddCartEntry / RemoveCartEntry 维护用户购物车集合。
	AddCartEntry(ctx context.Context, userID string, entry domain.CartEntry) error
	RemoveCartEntry(ctx context.Context, userID string, entry domain.CartEntry) error

	// ValidateCart 在一次原子操作中校验整个购物车：
	// hold 标记仍存在的条目归入 valid，已消失的条目从购物车
	// 移除并归入 expired。
	ValidateCart(ctx context.Context, userID string) (valid, expired []domain.CartEntry, err error)

	// Restore 原子递增可售计数（过期 / 补偿路径），并发布库存变更。
	Restore(ctx context.Context, productID string) (int64, error)

	// SetAvailable 覆写一批商品的可售计数（Inventory Sync 专用）。
	SetAvailable(ctx context.Context, available map[string]int64) error
}

// AvailableReader 是 HoldLedger 的可选扩展：读取单个商品的实时可售计数，
// 供商品读路径在持久行之上展示更新鲜的数字。
type AvailableReader interface {
	GetAvailable(ctx context.Context, productID string) (int64, bool, error)
}
