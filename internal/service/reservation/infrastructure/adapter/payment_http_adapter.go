// internal/service/reservation/infrastructure/adapter/payment_http_adapter.go
package adapter

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/TheBigWealth89/product-reservation/internal/pkg/httpclient"
	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/domain"
)

// PaymentHTTPAdapter 是 port.PaymentAuthorizer 的出站 HTTP 实现。
// 授权调用发生在 payment_pending 流转提交之后，不持有任何行锁。
type PaymentHTTPAdapter struct {
	authorizeURL string
	client       *httpclient.Client
}

// NewPaymentHTTPAdapter 创建一个新的支付授权适配器。
func NewPaymentHTTPAdapter(authorizeURL string, tracer trace.Tracer) *PaymentHTTPAdapter {
	return &PaymentHTTPAdapter{
		authorizeURL: authorizeURL,
		client:       httpclient.NewClient(tracer),
	}
}

type authorizeRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Metadata struct {
		OrderIDs string `json:"order_ids"`
	} `json:"metadata"`
}

type authorizeResponse struct {
	ClientSecret string `json:"client_secret"`
}

// Authorize 以聚合金额发起一次支付授权，订单 ID 集合随元数据传给服务商。
func (a *PaymentHTTPAdapter) Authorize(ctx context.Context, amountCents int64, orderIDs []uint) (string, error) {
	ids := make([]string, 0, len(orderIDs))
	for _, id := range orderIDs {
		ids = append(ids, strconv.FormatUint(uint64(id), 10))
	}

	reqBody := authorizeRequest{Amount: amountCents, Currency: "usd"}
	reqBody.Metadata.OrderIDs = strings.Join(ids, ",")

	var body authorizeResponse
	if err := a.client.PostJSON(ctx, "payment.Authorize", a.authorizeURL, reqBody, &body); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPaymentAuthorizationFailed, err)
	}
	return body.ClientSecret, nil
}
