// internal/service/reservation/application/dto.go
package application

import "time"

// ReserveResult 是一次成功预订的返回值。
type ReserveResult struct {
	Token         string    `json:"reservationToken"`
	ReservationID string    `json:"reservationId"`
	Inventory     int64     `json:"inventory"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// CheckoutResult 携带结算协调器的输出。
// ExpiredEntries 报告校验时被剔除的购物车条目，
// 即便结算失败也会返回给调用方。
type CheckoutResult struct {
	AuthorizationHandle string   `json:"clientSecret,omitempty"`
	OrderIDs            []uint   `json:"orderIds,omitempty"`
	AmountCents         int64    `json:"amountCents"`
	ExpiredEntries      []string `json:"expiredOrInvalid,omitempty"`
}

// ProductView 是商品读路径的返回值：持久行加上实时可售计数。
type ProductView struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Inventory int64   `json:"inventory"`
}
