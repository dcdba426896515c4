// internal/service/reservation/domain/errors.go
package domain

import "errors"

// 错误分类，见各使用方：
//   - ErrOutOfStock / ErrNoValidHolds / ErrReservationExpired 面向用户，映射为 4xx。
//   - ErrDurableStockExhausted 是数据一致性告警：持久扣减影响 0 行。
//   - ErrPaymentAuthorizationFailed 触发补偿，预订保持有效。
//   - ErrCompensationFailed 致命，需要人工介入，系统不做自动恢复。
var (
	ErrOutOfStock                 = errors.New("out of stock")
	ErrNoValidHolds               = errors.New("no valid reservations found in cart")
	ErrNothingToSettle            = errors.New("no reservations eligible for settlement")
	ErrReservationExpired         = errors.New("reservation expired")
	ErrReservationNotFound        = errors.New("reservation not found")
	ErrProductNotFound            = errors.New("product not found")
	ErrDurableStockExhausted      = errors.New("durable inventory exhausted")
	ErrPaymentAuthorizationFailed = errors.New("payment authorization failed")
	ErrCompensationFailed         = errors.New("compensation failed, manual intervention required")
	ErrInvalidTransition          = errors.New("invalid reservation state transition")
	ErrJobNotFound                = errors.New("settlement job not found")
	ErrJobNotFailed               = errors.New("settlement job is not in failed state")
)
