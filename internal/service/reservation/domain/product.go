// internal/service/reservation/domain/product.go
package domain

import "time"

// Product 的 Inventory 字段是持久真值，
// 只允许履约流程和取消补偿修改它。
type Product struct {
	ID        string
	Name      string
	Price     float64
	Inventory int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
