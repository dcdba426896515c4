// internal/service/reservation/domain/keys.go
package domain

import (
	"fmt"
	"strings"
)

// 易失存储的规范 Key 命名。历史上存在过多套不兼容的写法，
// 这里是唯一认可的方案，解析失败的 Key 一律忽略。
//
//	hold 标记:  reservation:product:{productId}:user-{userId}:rev-{token}
//	库存计数:   inventory:product-{productId}
//	购物车:     cart:user-{userId}，成员为 "{productId}:rev-{token}"
const (
	holdKeyPrefix = "reservation:product:"

	// InventoryUpdatesChannel 是 Hold Ledger 每次变更后发布
	// {productId, newInventory} 的频道，由展示层消费。
	InventoryUpdatesChannel = "inventory-updates"
)

// CartEntry 是购物车中的一个条目：商品与预订令牌的配对。
type CartEntry struct {
	ProductID string
	Token     string
}

func (e CartEntry) String() string {
	return e.ProductID + ":rev-" + e.Token
}

// ParseCartEntry 解析 "{productId}:rev-{token}" 形式的条目。
func ParseCartEntry(raw string) (CartEntry, error) {
	idx := strings.Index(raw, ":rev-")
	if idx <= 0 || idx+5 >= len(raw) {
		return CartEntry{}, fmt.Errorf("malformed cart entry %q", raw)
	}
	return CartEntry{ProductID: raw[:idx], Token: raw[idx+5:]}, nil
}

// HoldKey 返回带 TTL 的 hold 标记 Key。
func HoldKey(productID, userID, token string) string {
	return fmt.Sprintf("%s%s:user-%s:rev-%s", holdKeyPrefix, productID, userID, token)
}

// InventoryKey 返回商品可售计数 Key。
func InventoryKey(productID string) string {
	return "inventory:product-" + productID
}

// CartKey 返回用户购物车 Key。
func CartKey(userID string) string {
	return "cart:user-" + userID
}

// ParseHoldKey 从过期通知里还原 hold 标记的三元组。
func ParseHoldKey(key string) (productID, userID, token string, err error) {
	if !strings.HasPrefix(key, holdKeyPrefix) {
		return "", "", "", fmt.Errorf("not a hold key: %q", key)
	}
	rest := strings.Split(strings.TrimPrefix(key, holdKeyPrefix), ":")
	if len(rest) != 3 ||
		!strings.HasPrefix(rest[1], "user-") ||
		!strings.HasPrefix(rest[2], "rev-") {
		return "", "", "", fmt.Errorf("malformed hold key: %q", key)
	}
	return rest[0], strings.TrimPrefix(rest[1], "user-"), strings.TrimPrefix(rest[2], "rev-"), nil
}
