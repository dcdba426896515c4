// internal/service/reservation/domain/port/payment.go
package port

import "context"

// PaymentAuthorizer 是外部支付服务商的出站端口。
// 只消费授权请求这一个面；支付结果通过回调（webhook）进入系统。
type PaymentAuthorizer interface {
	// Authorize 以聚合金额（分）发起一次支付授权，
	// orderIDs 作为元数据附在授权上，成功时返回授权句柄。
	// 失败必须映射为 domain.ErrPaymentAuthorizationFailed。
	Authorize(ctx context.Context, amountCents int64, orderIDs []uint) (handle string, err error)
}
